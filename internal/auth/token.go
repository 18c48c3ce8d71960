// ABOUTME: JWT session token issuance and verification for authenticated requests
// ABOUTME: Uses HS256 signing with fixed issuer/audience claims and configurable TTL

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Fixed claim values. Tokens minted for a different deployment carry
// different issuer/audience values and fail verification here.
const (
	TokenIssuer   = "mana-auth"
	TokenAudience = "mana-api"
)

// Token errors
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
	ErrClaimMismatch = errors.New("token claim mismatch")
)

// Issuer creates and verifies session tokens for authenticated subjects
type Issuer interface {
	Issue(userID string) (string, error)
	Verify(tokenString string) (userID string, err error)
}

// JWTIssuer implements Issuer using HS256 signed JWTs
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTIssuer creates a new JWT issuer with the given secret and token lifetime
func NewJWTIssuer(secret []byte, ttl time.Duration) *JWTIssuer {
	return &JWTIssuer{secret: secret, ttl: ttl}
}

// Issue creates a signed session token for the given user ID
func (i *JWTIssuer) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": TokenIssuer,
		"aud": TokenAudience,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates the token signature, expiry, and issuer/audience claims,
// and extracts the subject. Each failure kind maps to a distinct error:
// ErrExpiredToken, ErrClaimMismatch, or ErrInvalidToken.
func (i *JWTIssuer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString,
		func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method is HS256
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
			return "", ErrClaimMismatch
		default:
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: missing sub", ErrClaimMismatch)
	}

	return sub, nil
}

// Ensure JWTIssuer implements Issuer
var _ Issuer = (*JWTIssuer)(nil)
