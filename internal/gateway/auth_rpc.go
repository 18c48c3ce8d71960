// ABOUTME: Unauthenticated auth RPC endpoint for WebAuthn ceremonies
// ABOUTME: Dispatches register/login start/finish and token validation

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/manaproject/auth-gateway/internal/auth"
	"github.com/manaproject/auth-gateway/internal/ceremony"
	"github.com/manaproject/auth-gateway/internal/store"
)

// Auth RPC operations. The set is closed: dispatch is an exhaustive switch
// and anything else is op_unknown.
const (
	opRegisterStart  = "webauthn.register.start"
	opRegisterFinish = "webauthn.register.finish"
	opLoginStart     = "webauthn.login.start"
	opLoginFinish    = "webauthn.login.finish"
	opAuthValidate   = "auth.validate"
)

type authRPCRequest struct {
	Op          string          `json:"op"`
	UserHint    string          `json:"userHint,omitempty"`
	UserID      string          `json:"userId,omitempty"`
	Attestation json.RawMessage `json:"attestation,omitempty"`
	Nonce       string          `json:"nonce,omitempty"`
	Assertion   json.RawMessage `json:"assertion,omitempty"`
}

func (s *Server) handleAuthRPC(w http.ResponseWriter, r *http.Request) {
	var req authRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	switch req.Op {
	case opRegisterStart:
		s.handleRegisterStart(w, r, &req)
	case opRegisterFinish:
		s.handleRegisterFinish(w, r, &req)
	case opLoginStart:
		s.handleLoginStart(w, r)
	case opLoginFinish:
		s.handleLoginFinish(w, r, &req)
	case opAuthValidate:
		s.handleAuthValidate(w, r)
	default:
		writeError(w, http.StatusBadRequest, "op_unknown", "Unknown operation: "+req.Op)
	}
}

func (s *Server) handleRegisterStart(w http.ResponseWriter, r *http.Request, req *authRPCRequest) {
	result, err := s.ceremonies.RegisterStart(r.Context(), req.UserHint)
	if err != nil {
		s.logger.Error("register start failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "could not start registration")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"userId":    result.UserID,
		"publicKey": result.Options.Response,
	})
}

func (s *Server) handleRegisterFinish(w http.ResponseWriter, r *http.Request, req *authRPCRequest) {
	if req.UserID == "" || len(req.Attestation) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "userId and attestation are required")
		return
	}

	result, err := s.ceremonies.RegisterFinish(r.Context(), req.UserID, req.Attestation)
	if err != nil {
		s.writeCeremonyError(w, err, "registration")
		return
	}

	user, err := s.store.GetUser(r.Context(), result.UserID)
	if err != nil {
		s.logger.Error("user lookup after registration failed", "error", err, "user_id", result.UserID)
		writeError(w, http.StatusInternalServerError, "server_error", "could not complete registration")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"access_token": result.Token,
		"token_type":   "Bearer",
		"expires_in":   int(s.tokenTTL.Seconds()),
		"user":         toUserInfo(user),
	})
}

func (s *Server) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	result, err := s.ceremonies.LoginStart(r.Context())
	if err != nil {
		s.logger.Error("login start failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "could not start authentication")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"nonce":     result.Nonce,
		"publicKey": result.Options.Response,
	})
}

func (s *Server) handleLoginFinish(w http.ResponseWriter, r *http.Request, req *authRPCRequest) {
	if req.Nonce == "" || len(req.Assertion) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "nonce and assertion are required")
		return
	}

	result, err := s.ceremonies.LoginFinish(r.Context(), req.Nonce, req.Assertion)
	if err != nil {
		s.writeCeremonyError(w, err, "authentication")
		return
	}

	user, err := s.store.GetUser(r.Context(), result.UserID)
	if err != nil {
		s.logger.Error("user lookup after login failed", "error", err, "user_id", result.UserID)
		writeError(w, http.StatusInternalServerError, "server_error", "could not complete authentication")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"access_token": result.Token,
		"token_type":   "Bearer",
		"expires_in":   int(s.tokenTTL.Seconds()),
		"user":         toUserInfo(user),
		"hasSave":      result.HasSave,
	})
}

// handleAuthValidate verifies a bearer token and reports the account's
// current standing: the user must still exist and own at least one active
// credential.
func (s *Server) handleAuthValidate(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "token_missing", "Authorization token required")
		return
	}

	userID, err := s.tokens.Verify(token)
	if err != nil {
		s.writeTokenError(w, err)
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "user_not_found", "User account no longer exists")
			return
		}
		s.logger.Error("user lookup failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "server_error", "could not validate token")
		return
	}

	creds, err := s.store.GetCredentialsByUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("credential lookup failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "server_error", "could not validate token")
		return
	}
	if len(creds) == 0 {
		writeError(w, http.StatusUnauthorized, "credentials_revoked", "User credentials have been revoked")
		return
	}

	hasSave, err := s.store.HasPlayerSave(r.Context(), userID)
	if err != nil {
		s.logger.Error("save lookup failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "server_error", "could not validate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"user":    toUserInfo(user),
		"hasSave": hasSave,
	})
}

// writeCeremonyError maps ceremony sentinels to the external error contract.
// Anything unrecognized is an internal failure.
func (s *Server) writeCeremonyError(w http.ResponseWriter, err error, flow string) {
	switch {
	case errors.Is(err, ceremony.ErrChallengeExpired):
		writeError(w, http.StatusUnauthorized, "challenge_expired", flow+" challenge expired or not found")
	case errors.Is(err, ceremony.ErrAttestationFailed):
		writeError(w, http.StatusUnauthorized, "attestation_failed", "WebAuthn attestation verification failed")
	case errors.Is(err, ceremony.ErrCredentialNotFound):
		writeError(w, http.StatusNotFound, "credential_not_found", "Unknown credential")
	case errors.Is(err, ceremony.ErrAssertionFailed):
		writeError(w, http.StatusUnauthorized, "assertion_failed", "WebAuthn assertion verification failed")
	default:
		s.logger.Error(flow+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "could not complete "+flow)
	}
}

func (s *Server) writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		writeError(w, http.StatusUnauthorized, "token_expired", "Token has expired")
	default:
		writeError(w, http.StatusUnauthorized, "token_invalid", "Invalid authorization token")
	}
}
