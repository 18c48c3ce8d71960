// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/credential/save persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			email_verified INTEGER NOT NULL DEFAULT 0,
			preferences    TEXT NOT NULL DEFAULT '{}',
			created_at     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS webauthn_credentials (
			credential_id BLOB PRIMARY KEY,
			user_id       TEXT NOT NULL REFERENCES users(id),
			public_key    BLOB NOT NULL,
			sign_count    INTEGER NOT NULL DEFAULT 0,
			transports    TEXT,
			revoked       INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_webauthn_credentials_user
			ON webauthn_credentials(user_id);

		CREATE TABLE IF NOT EXISTS player_saves (
			user_id    TEXT PRIMARY KEY REFERENCES users(id),
			scene      TEXT NOT NULL,
			flags      TEXT NOT NULL DEFAULT '{}',
			etag       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping verifies the database connection is alive
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser inserts a new user row. It is idempotent: creating a user
// that already exists is a no-op.
func (s *SQLiteStore) CreateUser(ctx context.Context, userID string) error {
	query := `
		INSERT INTO users (id, email_verified, preferences, created_at)
		VALUES (?, 0, '{}', ?)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, userID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "user_id", userID)
	return nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*User, error) {
	query := `
		SELECT id, email_verified, preferences, created_at
		FROM users
		WHERE id = ?
	`

	var user User
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.EmailVerified,
		&user.Preferences,
		&createdAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// RegisterCredential creates the owning user if absent and upserts the
// credential, all inside a single transaction so a partially-registered
// credential is never visible. A conflict on credential_id updates the
// sign count and transports, which makes a retried finish step idempotent.
func (s *SQLiteStore) RegisterCredential(ctx context.Context, cred *Credential) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email_verified, preferences, created_at)
		VALUES (?, 0, '{}', ?)
		ON CONFLICT (id) DO NOTHING
	`, cred.UserID, now)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO webauthn_credentials (
			credential_id, user_id, public_key, sign_count, transports, revoked, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (credential_id) DO UPDATE SET
			sign_count = excluded.sign_count,
			transports = excluded.transports,
			updated_at = excluded.updated_at
	`, cred.CredentialID, cred.UserID, cred.PublicKey, cred.SignCount, cred.Transports, now, now)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registration: %w", err)
	}

	s.logger.Debug("registered credential", "user_id", cred.UserID)
	return nil
}

// GetCredential retrieves a credential by its credential ID.
// Revoked credentials are excluded: both unknown and revoked credentials
// return ErrNotFound so revocation state never leaks.
func (s *SQLiteStore) GetCredential(ctx context.Context, credentialID []byte) (*Credential, error) {
	query := `
		SELECT credential_id, user_id, public_key, sign_count, transports, revoked, created_at, updated_at
		FROM webauthn_credentials
		WHERE credential_id = ? AND revoked = 0
	`

	return s.scanCredential(s.db.QueryRowContext(ctx, query, credentialID))
}

func (s *SQLiteStore) scanCredential(row *sql.Row) (*Credential, error) {
	var cred Credential
	var transports sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&cred.CredentialID,
		&cred.UserID,
		&cred.PublicKey,
		&cred.SignCount,
		&transports,
		&cred.Revoked,
		&createdAtStr,
		&updatedAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning credential: %w", err)
	}

	if transports.Valid {
		cred.Transports = transports.String
	}

	cred.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	cred.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &cred, nil
}

// GetCredentialsByUser retrieves all non-revoked credentials owned by a user.
func (s *SQLiteStore) GetCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error) {
	query := `
		SELECT credential_id, user_id, public_key, sign_count, transports, revoked, created_at, updated_at
		FROM webauthn_credentials
		WHERE user_id = ? AND revoked = 0
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var creds []*Credential
	for rows.Next() {
		var cred Credential
		var transports sql.NullString
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(
			&cred.CredentialID,
			&cred.UserID,
			&cred.PublicKey,
			&cred.SignCount,
			&transports,
			&cred.Revoked,
			&createdAtStr,
			&updatedAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning credential row: %w", err)
		}

		if transports.Valid {
			cred.Transports = transports.String
		}

		cred.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		cred.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		creds = append(creds, &cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credential rows: %w", err)
	}

	return creds, nil
}

// UpdateSignCount unconditionally sets the stored signature counter.
// Monotonicity is the ceremony's responsibility: the registry has no
// cryptographic context to tell a replay from a legitimate re-sync.
func (s *SQLiteStore) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	query := `
		UPDATE webauthn_credentials
		SET sign_count = ?, updated_at = ?
		WHERE credential_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, signCount, time.Now().UTC().Format(time.RFC3339), credentialID)
	if err != nil {
		return fmt.Errorf("updating sign count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated sign count", "sign_count", signCount)
	return nil
}

// RevokeCredential marks a credential as revoked.
// Returns ErrNotFound if the credential doesn't exist.
func (s *SQLiteStore) RevokeCredential(ctx context.Context, credentialID []byte) error {
	query := `
		UPDATE webauthn_credentials
		SET revoked = 1, updated_at = ?
		WHERE credential_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), credentialID)
	if err != nil {
		return fmt.Errorf("revoking credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("revoked credential")
	return nil
}

// UpsertPlayerSave creates or replaces a player's save state.
func (s *SQLiteStore) UpsertPlayerSave(ctx context.Context, save *PlayerSave) error {
	query := `
		INSERT INTO player_saves (user_id, scene, flags, etag, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			scene = excluded.scene,
			flags = excluded.flags,
			etag = excluded.etag,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		save.UserID,
		save.Scene,
		save.Flags,
		save.ETag,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting player save: %w", err)
	}

	s.logger.Debug("saved player state", "user_id", save.UserID, "scene", save.Scene)
	return nil
}

// GetPlayerSave retrieves a player's save state.
// Returns ErrNotFound if the user has no save.
func (s *SQLiteStore) GetPlayerSave(ctx context.Context, userID string) (*PlayerSave, error) {
	query := `
		SELECT user_id, scene, flags, etag, updated_at
		FROM player_saves
		WHERE user_id = ?
	`

	var save PlayerSave
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&save.UserID,
		&save.Scene,
		&save.Flags,
		&save.ETag,
		&updatedAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying player save: %w", err)
	}

	save.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &save, nil
}

// HasPlayerSave reports whether a user has any save state.
func (s *SQLiteStore) HasPlayerSave(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM player_saves WHERE user_id = ? LIMIT 1`, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying player save: %w", err)
	}
	return true, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
