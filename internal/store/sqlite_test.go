// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers user creation, credential upsert/lookup/revocation, and player saves

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestCreateUser_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, "user-1"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	// Second insert must be a no-op, not an error
	if err := s.CreateUser(ctx, "user-1"); err != nil {
		t.Fatalf("CreateUser (repeat) failed: %v", err)
	}

	user, err := s.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want %q", user.ID, "user-1")
	}
	if user.EmailVerified {
		t.Error("new user should not be email verified")
	}
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUser(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser error = %v, want ErrNotFound", err)
	}
}

func TestRegisterCredential_CreatesUserAndCredential(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cred := &Credential{
		CredentialID: []byte{0x01, 0x02, 0x03},
		UserID:       "user-1",
		PublicKey:    []byte("pubkey"),
		SignCount:    0,
		Transports:   `["internal"]`,
	}

	if err := s.RegisterCredential(ctx, cred); err != nil {
		t.Fatalf("RegisterCredential failed: %v", err)
	}

	// User must exist from the same transaction
	if _, err := s.GetUser(ctx, "user-1"); err != nil {
		t.Fatalf("GetUser after registration failed: %v", err)
	}

	got, err := s.GetCredential(ctx, cred.CredentialID)
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("credential.UserID = %q, want %q", got.UserID, "user-1")
	}
	if string(got.PublicKey) != "pubkey" {
		t.Errorf("credential.PublicKey = %q, want %q", got.PublicKey, "pubkey")
	}
	if got.Transports != `["internal"]` {
		t.Errorf("credential.Transports = %q", got.Transports)
	}
}

func TestRegisterCredential_UpsertDoesNotDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cred := &Credential{
		CredentialID: []byte{0xaa, 0xbb},
		UserID:       "user-1",
		PublicKey:    []byte("pubkey"),
		SignCount:    0,
	}

	if err := s.RegisterCredential(ctx, cred); err != nil {
		t.Fatalf("RegisterCredential failed: %v", err)
	}

	// Retried finish: same credential, updated counter
	cred.SignCount = 3
	cred.Transports = `["usb"]`
	if err := s.RegisterCredential(ctx, cred); err != nil {
		t.Fatalf("RegisterCredential (retry) failed: %v", err)
	}

	creds, err := s.GetCredentialsByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetCredentialsByUser failed: %v", err)
	}
	if len(creds) != 1 {
		t.Fatalf("credential count = %d, want 1", len(creds))
	}
	if creds[0].SignCount != 3 {
		t.Errorf("SignCount = %d, want 3", creds[0].SignCount)
	}
	if creds[0].Transports != `["usb"]` {
		t.Errorf("Transports = %q, want updated value", creds[0].Transports)
	}
}

func TestGetCredential_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCredential(context.Background(), []byte{0xde, 0xad})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCredential error = %v, want ErrNotFound", err)
	}
}

func TestGetCredential_RevokedLooksLikeUnknown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cred := &Credential{
		CredentialID: []byte{0x10},
		UserID:       "user-1",
		PublicKey:    []byte("pubkey"),
	}
	if err := s.RegisterCredential(ctx, cred); err != nil {
		t.Fatalf("RegisterCredential failed: %v", err)
	}

	if err := s.RevokeCredential(ctx, cred.CredentialID); err != nil {
		t.Fatalf("RevokeCredential failed: %v", err)
	}

	_, err := s.GetCredential(ctx, cred.CredentialID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCredential for revoked credential = %v, want ErrNotFound", err)
	}
}

func TestUpdateSignCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cred := &Credential{
		CredentialID: []byte{0x20},
		UserID:       "user-1",
		PublicKey:    []byte("pubkey"),
		SignCount:    1,
	}
	if err := s.RegisterCredential(ctx, cred); err != nil {
		t.Fatalf("RegisterCredential failed: %v", err)
	}

	if err := s.UpdateSignCount(ctx, cred.CredentialID, 7); err != nil {
		t.Fatalf("UpdateSignCount failed: %v", err)
	}

	got, err := s.GetCredential(ctx, cred.CredentialID)
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got.SignCount != 7 {
		t.Errorf("SignCount = %d, want 7", got.SignCount)
	}
}

func TestUpdateSignCount_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateSignCount(context.Background(), []byte{0x99}, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSignCount error = %v, want ErrNotFound", err)
	}
}

func TestPlayerSave_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, "user-1"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	has, err := s.HasPlayerSave(ctx, "user-1")
	if err != nil {
		t.Fatalf("HasPlayerSave failed: %v", err)
	}
	if has {
		t.Error("HasPlayerSave = true before any save")
	}

	save := &PlayerSave{
		UserID: "user-1",
		Scene:  "intro",
		Flags:  `{"met_guide":true}`,
		ETag:   "etag-1",
	}
	if err := s.UpsertPlayerSave(ctx, save); err != nil {
		t.Fatalf("UpsertPlayerSave failed: %v", err)
	}

	// Overwrite with a newer save
	save.Scene = "forest"
	save.ETag = "etag-2"
	if err := s.UpsertPlayerSave(ctx, save); err != nil {
		t.Fatalf("UpsertPlayerSave (overwrite) failed: %v", err)
	}

	got, err := s.GetPlayerSave(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPlayerSave failed: %v", err)
	}
	if got.Scene != "forest" || got.ETag != "etag-2" {
		t.Errorf("save = {%q %q}, want {forest etag-2}", got.Scene, got.ETag)
	}

	has, err = s.HasPlayerSave(ctx, "user-1")
	if err != nil {
		t.Fatalf("HasPlayerSave failed: %v", err)
	}
	if !has {
		t.Error("HasPlayerSave = false after save")
	}
}

func TestGetPlayerSave_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetPlayerSave(context.Background(), "user-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPlayerSave error = %v, want ErrNotFound", err)
	}
}
