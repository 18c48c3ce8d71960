// ABOUTME: Authenticated game RPC endpoint with per-operation rate limits
// ABOUTME: Order is fixed: authenticate, rate-limit, validate, handle

package gateway

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/manaproject/auth-gateway/internal/auth"
	"github.com/manaproject/auth-gateway/internal/chat"
	"github.com/manaproject/auth-gateway/internal/store"
)

// API RPC operations. Closed set, same dispatch rules as the auth endpoint.
const (
	opChatSend       = "chat.send"
	opPlayerSave     = "player.save"
	opProgressResume = "progress.resume"
)

type apiRPCRequest struct {
	Op string `json:"op"`

	// chat.send
	FlowID         string         `json:"flowId,omitempty"`
	Message        string         `json:"message,omitempty"`
	Vars           map[string]any `json:"vars,omitempty"`
	OverrideConfig map[string]any `json:"overrideConfig,omitempty"`

	// player.save
	State *saveState `json:"state,omitempty"`
	ETag  string     `json:"etag,omitempty"`
}

type saveState struct {
	Scene string          `json:"scene"`
	Flags json.RawMessage `json:"flags,omitempty"`
}

func (s *Server) handleAPIRPC(w http.ResponseWriter, r *http.Request) {
	// Authentication comes first: an unauthenticated request never consumes
	// rate-limit budget.
	token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Bearer token required")
		return
	}
	userID, err := s.tokens.Verify(token)
	if err != nil {
		s.writeTokenError(w, err)
		return
	}

	var req apiRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if decision := s.limiter.Admit(req.Op, userID); !decision.Allowed {
		retryMs := decision.RetryAfter.Milliseconds()
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":   "rate_limited",
			"message": "Too many requests",
			"op":      req.Op,
			"retryMs": retryMs,
		})
		return
	}

	switch req.Op {
	case opChatSend:
		s.handleChatSend(w, r, userID, &req)
	case opPlayerSave:
		s.handlePlayerSave(w, r, userID, &req)
	case opProgressResume:
		s.handleProgressResume(w, r, userID)
	default:
		writeError(w, http.StatusBadRequest, "op_unknown", "Unknown operation: "+req.Op)
	}
}

// handleChatSend proxies a chat message to the inference backend with the
// caller's identity injected into the flow variables.
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request, userID string, req *apiRPCRequest) {
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "message is required")
		return
	}
	flowID := req.FlowID
	if flowID == "" {
		flowID = s.chatFlowID
	}
	if flowID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "flowId is required")
		return
	}

	vars := make(map[string]any, len(req.Vars)+1)
	for k, v := range req.Vars {
		vars[k] = v
	}
	vars["userId"] = userID

	data, err := s.chat.Send(r.Context(), flowID, &chat.Request{
		Question:       req.Message,
		Variables:      vars,
		OverrideConfig: req.OverrideConfig,
	})
	if err != nil {
		if errors.Is(err, chat.ErrUpstream) {
			writeError(w, http.StatusBadGateway, "gateway_error", "Chat service temporarily unavailable")
			return
		}
		s.logger.Error("chat send failed", "error", err, "flow_id", flowID)
		writeError(w, http.StatusInternalServerError, "server_error", "Chat request failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

// handlePlayerSave replaces the caller's save state and returns a fresh etag.
func (s *Server) handlePlayerSave(w http.ResponseWriter, r *http.Request, userID string, req *apiRPCRequest) {
	if req.State == nil || req.State.Scene == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "state.scene is required")
		return
	}

	flags := "{}"
	if len(req.State.Flags) > 0 {
		flags = string(req.State.Flags)
	}

	etag := uuid.NewString()
	err := s.store.UpsertPlayerSave(r.Context(), &store.PlayerSave{
		UserID: userID,
		Scene:  req.State.Scene,
		Flags:  flags,
		ETag:   etag,
	})
	if err != nil {
		s.logger.Error("player save failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "server_error", "Could not save progress")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "etag": etag})
}

// handleProgressResume returns the caller's save state if one exists.
func (s *Server) handleProgressResume(w http.ResponseWriter, r *http.Request, userID string) {
	save, err := s.store.GetPlayerSave(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hasSave": false})
			return
		}
		s.logger.Error("progress resume failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "server_error", "Could not load progress")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"hasSave": true,
		"state": map[string]any{
			"scene": save.Scene,
			"flags": json.RawMessage(save.Flags),
		},
		"etag": save.ETag,
	})
}
