// ABOUTME: HTTP gateway exposing the auth and game RPC surfaces
// ABOUTME: Routes, panic recovery, and the health endpoint live here

package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/manaproject/auth-gateway/internal/auth"
	"github.com/manaproject/auth-gateway/internal/ceremony"
	"github.com/manaproject/auth-gateway/internal/chat"
	"github.com/manaproject/auth-gateway/internal/ratelimit"
	"github.com/manaproject/auth-gateway/internal/store"
)

// Server dispatches the gateway's RPC operations. Both RPC endpoints accept a
// JSON body whose "op" field selects the operation from a closed set.
type Server struct {
	ceremonies *ceremony.Service
	tokens     auth.Issuer
	store      store.Store
	limiter    *ratelimit.Limiter
	chat       *chat.Client
	chatFlowID string
	tokenTTL   time.Duration
	logger     *slog.Logger
}

// Options carries the collaborators the server dispatches to.
type Options struct {
	Ceremonies *ceremony.Service
	Tokens     auth.Issuer
	Store      store.Store
	Limiter    *ratelimit.Limiter
	Chat       *chat.Client
	ChatFlowID string
	TokenTTL   time.Duration
	Logger     *slog.Logger
}

// New creates a gateway server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ceremonies: opts.Ceremonies,
		tokens:     opts.Tokens,
		store:      opts.Store,
		limiter:    opts.Limiter,
		chat:       opts.Chat,
		chatFlowID: opts.ChatFlowID,
		tokenTTL:   opts.TokenTTL,
		logger:     logger.With("component", "gateway"),
	}
}

// RegisterRoutes attaches the gateway's endpoints to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/rpc", s.recoverPanics(s.handleAuthRPC))
	mux.HandleFunc("POST /api/rpc", s.recoverPanics(s.handleAPIRPC))
	mux.HandleFunc("GET /health", s.handleHealth)
}

// recoverPanics converts a handler panic into a generic server_error so no
// internal state leaks through the external interface.
func (s *Server) recoverPanics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "server_error", "operation failed")
			}
		}()
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
