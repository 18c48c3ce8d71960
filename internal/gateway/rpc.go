// ABOUTME: JSON envelope helpers shared by the RPC endpoints
// ABOUTME: Error bodies always carry a stable kind plus a readable message

package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/manaproject/auth-gateway/internal/store"
)

// userInfo is the public view of a user returned by auth operations.
type userInfo struct {
	ID            string `json:"id"`
	EmailVerified bool   `json:"email_verified"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func toUserInfo(u *store.User) userInfo {
	info := userInfo{ID: u.ID, EmailVerified: u.EmailVerified}
	if !u.CreatedAt.IsZero() {
		info.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	return info
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// writeError sends the structured error envelope. Every failed operation
// resolves to one of the stable kinds; message is for humans only.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{
		"error":   kind,
		"message": message,
	})
}
