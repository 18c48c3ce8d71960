// ABOUTME: Store interface and data types for mana-gateway persistence
// ABOUTME: Defines User, Credential, PlayerSave structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
// Revoked credentials are reported with the same error as unknown ones
// so callers cannot distinguish revocation from absence.
var ErrNotFound = errors.New("not found")

// User represents an account created during a registration ceremony
type User struct {
	ID            string
	EmailVerified bool
	Preferences   string // JSON blob
	CreatedAt     time.Time
}

// Credential represents a registered WebAuthn credential.
// One user may own multiple credentials.
type Credential struct {
	CredentialID []byte
	UserID       string
	PublicKey    []byte
	SignCount    uint32
	Transports   string // JSON array
	Revoked      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PlayerSave represents a player's persisted game state
type PlayerSave struct {
	UserID    string
	Scene     string
	Flags     string // JSON blob
	ETag      string
	UpdatedAt time.Time
}

// Store defines the interface for mana-gateway persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, userID string) error
	GetUser(ctx context.Context, userID string) (*User, error)

	// Credentials
	// RegisterCredential creates the owning user (if absent) and upserts the
	// credential in a single transaction. A conflicting credential_id updates
	// sign count and metadata instead of erroring.
	RegisterCredential(ctx context.Context, cred *Credential) error
	GetCredential(ctx context.Context, credentialID []byte) (*Credential, error)
	GetCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error)
	UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error
	RevokeCredential(ctx context.Context, credentialID []byte) error

	// Player saves
	UpsertPlayerSave(ctx context.Context, save *PlayerSave) error
	GetPlayerSave(ctx context.Context, userID string) (*PlayerSave, error)
	HasPlayerSave(ctx context.Context, userID string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
