// ABOUTME: Unit tests for JWT session token issuance and verification
// ABOUTME: Covers round-trip, tampering, expiry, and issuer/audience mismatch

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-jwt-signing")

func TestJWTIssuer_RoundTrip(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	userID := "user-123"
	token, err := issuer.Issue(userID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	gotID, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if gotID != userID {
		t.Errorf("Verify() = %q, want %q", gotID, userID)
	}
}

func TestJWTIssuer_InvalidToken(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				other := NewJWTIssuer([]byte("different-secret"), time.Hour)
				token, _ := other.Issue("user-123")
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTIssuer_TamperedSignature(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	token, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := issuer.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(tampered) error = %v, want ErrInvalidToken", err)
	}
}

func TestJWTIssuer_ExpiredToken(t *testing.T) {
	// Token that expired an hour ago
	issuer := NewJWTIssuer(testSecret, -time.Hour)

	token, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = NewJWTIssuer(testSecret, time.Hour).Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

// signForeign mints a token with arbitrary claims using the test secret.
func signForeign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return token
}

func TestJWTIssuer_ClaimMismatch(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)
	now := time.Now()

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{
			name: "wrong issuer",
			claims: jwt.MapClaims{
				"sub": "user-123",
				"iss": "other-deployment",
				"aud": TokenAudience,
				"iat": now.Unix(),
				"exp": now.Add(time.Hour).Unix(),
			},
		},
		{
			name: "wrong audience",
			claims: jwt.MapClaims{
				"sub": "user-123",
				"iss": TokenIssuer,
				"aud": "other-api",
				"iat": now.Unix(),
				"exp": now.Add(time.Hour).Unix(),
			},
		},
		{
			name: "missing sub",
			claims: jwt.MapClaims{
				"iss": TokenIssuer,
				"aud": TokenAudience,
				"iat": now.Unix(),
				"exp": now.Add(time.Hour).Unix(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(signForeign(t, tt.claims))
			if !errors.Is(err, ErrClaimMismatch) {
				t.Errorf("Verify() error = %v, want ErrClaimMismatch", err)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc123", want: "abc123"},
		{name: "missing header", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic abc123", wantErr: true},
		{name: "empty token", header: "Bearer ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearerToken(tt.header)
			if tt.wantErr {
				if !errors.Is(err, ErrNoBearerToken) {
					t.Errorf("ExtractBearerToken() error = %v, want ErrNoBearerToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractBearerToken() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractBearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
