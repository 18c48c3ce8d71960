// ABOUTME: Bearer token extraction for HTTP requests
// ABOUTME: Parses the Authorization header ahead of token verification

package auth

import (
	"errors"
	"strings"
)

// ErrNoBearerToken is returned when the Authorization header is missing,
// malformed, or carries an empty token.
var ErrNoBearerToken = errors.New("bearer token required")

// ExtractBearerToken extracts a bearer token from an Authorization header value.
func ExtractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrNoBearerToken
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", ErrNoBearerToken
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", ErrNoBearerToken
	}
	return token, nil
}
