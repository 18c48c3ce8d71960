// ABOUTME: WebAuthn registration and login ceremonies for the gateway
// ABOUTME: Orchestrates challenges, credential storage, and token issuance

package ceremony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/manaproject/auth-gateway/internal/auth"
	"github.com/manaproject/auth-gateway/internal/challenge"
	"github.com/manaproject/auth-gateway/internal/store"
)

const (
	regKeyPrefix   = "reg:"
	loginKeyPrefix = "auth:"

	defaultDisplayName = "Mana User"
)

// Config carries the relying-party identity for ceremony verification.
type Config struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

// Service runs WebAuthn registration and login ceremonies end to end. A
// successful finish of either ceremony yields a signed session token.
type Service struct {
	wa         *webauthn.WebAuthn
	challenges *challenge.Store
	store      store.Store
	tokens     auth.Issuer
	logger     *slog.Logger
}

// New builds a ceremony service for the given relying party.
func New(cfg Config, challenges *challenge.Store, st store.Store, tokens auth.Issuer, logger *slog.Logger) (*Service, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		},
		AttestationPreference: protocol.PreferNoAttestation,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		wa:         wa,
		challenges: challenges,
		store:      st,
		tokens:     tokens,
		logger:     logger.With("component", "ceremony"),
	}, nil
}

// RegisterStartResult is the client-facing half of a registration ceremony.
type RegisterStartResult struct {
	UserID  string
	Options *protocol.CredentialCreation
}

// RegisterStart mints a fresh user identifier and issues creation options.
// Nothing is persisted until the ceremony finishes: abandoned starts leave
// only a challenge entry that expires on its own.
func (s *Service) RegisterStart(ctx context.Context, userHint string) (*RegisterStartResult, error) {
	userID := uuid.NewString()

	displayName := defaultDisplayName
	if userHint != "" {
		displayName = userHint
	}
	user := &webAuthnUser{id: userID, displayName: displayName}

	options, session, err := s.wa.BeginRegistration(user)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}

	s.challenges.Issue(regKeyPrefix+userID, session)
	s.logger.DebugContext(ctx, "registration started", "user_id", userID)

	return &RegisterStartResult{UserID: userID, Options: options}, nil
}

// RegisterFinishResult carries the session token minted after a successful
// registration.
type RegisterFinishResult struct {
	UserID string
	Token  string
}

// RegisterFinish verifies an attestation response against the pending
// challenge for userID, persists the user and credential atomically, and
// issues a session token.
func (s *Service) RegisterFinish(ctx context.Context, userID string, attestation json.RawMessage) (*RegisterFinishResult, error) {
	session, err := s.challenges.Consume(regKeyPrefix + userID)
	if err != nil {
		return nil, ErrChallengeExpired
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(attestation))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttestationFailed, err)
	}

	user := &webAuthnUser{id: userID, displayName: defaultDisplayName}
	credential, err := s.wa.CreateCredential(user, *session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttestationFailed, err)
	}

	transports, err := json.Marshal(credential.Transport)
	if err != nil {
		return nil, fmt.Errorf("marshal transports: %w", err)
	}

	if err := s.store.RegisterCredential(ctx, &store.Credential{
		CredentialID: credential.ID,
		UserID:       userID,
		PublicKey:    credential.PublicKey,
		SignCount:    credential.Authenticator.SignCount,
		Transports:   string(transports),
	}); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}

	token, err := s.tokens.Issue(userID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.InfoContext(ctx, "credential registered", "user_id", userID)
	return &RegisterFinishResult{UserID: userID, Token: token}, nil
}

// LoginStartResult is the client-facing half of a login ceremony. The nonce
// keys the pending challenge and must be echoed back on finish.
type LoginStartResult struct {
	Nonce   string
	Options *protocol.CredentialAssertion
}

// LoginStart issues discoverable-credential assertion options under a fresh
// nonce. No account is named up front: the authenticator's user handle
// identifies the account on finish.
func (s *Service) LoginStart(ctx context.Context) (*LoginStartResult, error) {
	nonce := uuid.NewString()

	options, session, err := s.wa.BeginDiscoverableLogin()
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}

	s.challenges.Issue(loginKeyPrefix+nonce, session)
	s.logger.DebugContext(ctx, "login started", "nonce", nonce)

	return &LoginStartResult{Nonce: nonce, Options: options}, nil
}

// LoginFinishResult carries the session token and save-game status after a
// successful login.
type LoginFinishResult struct {
	UserID  string
	Token   string
	HasSave bool
}

// LoginFinish verifies an assertion response against the pending challenge
// for nonce, enforces the signature-counter policy, persists the new counter,
// and issues a session token. The counter write lands before the token so a
// replayed assertion can never authenticate twice.
func (s *Service) LoginFinish(ctx context.Context, nonce string, assertion json.RawMessage) (*LoginFinishResult, error) {
	session, err := s.challenges.Consume(loginKeyPrefix + nonce)
	if err != nil {
		return nil, ErrChallengeExpired
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(assertion))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionFailed, err)
	}

	stored, err := s.store.GetCredential(ctx, parsed.RawID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("lookup credential: %w", err)
	}

	owner := &webAuthnUser{
		id:          stored.UserID,
		displayName: defaultDisplayName,
		credentials: []webauthn.Credential{toWebAuthnCredential(stored)},
	}

	credential, err := s.wa.ValidateDiscoverableLogin(func(rawID, userHandle []byte) (webauthn.User, error) {
		if !bytes.Equal(rawID, stored.CredentialID) {
			return nil, ErrCredentialNotFound
		}
		return owner, nil
	}, *session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionFailed, err)
	}

	// The library flags a non-increasing counter instead of failing the
	// ceremony. Treat it as a failure: only the pair of zero counters, which
	// some authenticators never increment, is exempt.
	newCount := credential.Authenticator.SignCount
	if credential.Authenticator.CloneWarning ||
		(newCount <= stored.SignCount && !(newCount == 0 && stored.SignCount == 0)) {
		s.logger.WarnContext(ctx, "sign counter did not advance",
			"user_id", stored.UserID, "stored", stored.SignCount, "asserted", newCount)
		return nil, fmt.Errorf("%w: signature counter did not advance", ErrAssertionFailed)
	}

	if err := s.store.UpdateSignCount(ctx, stored.CredentialID, newCount); err != nil {
		return nil, fmt.Errorf("update sign count: %w", err)
	}

	token, err := s.tokens.Issue(stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	hasSave, err := s.store.HasPlayerSave(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("check player save: %w", err)
	}

	s.logger.InfoContext(ctx, "login succeeded", "user_id", stored.UserID)
	return &LoginFinishResult{UserID: stored.UserID, Token: token, HasSave: hasSave}, nil
}
