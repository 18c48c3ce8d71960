// ABOUTME: Adapter exposing stored users and credentials to go-webauthn
// ABOUTME: Bridges store rows to the webauthn.User interface

package ceremony

import (
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/manaproject/auth-gateway/internal/store"
)

// webAuthnUser satisfies webauthn.User for ceremony calls. During
// registration the credential list is empty; during login it carries the
// credentials already registered for the account.
type webAuthnUser struct {
	id          string
	displayName string
	credentials []webauthn.Credential
}

func (u *webAuthnUser) WebAuthnID() []byte                         { return []byte(u.id) }
func (u *webAuthnUser) WebAuthnName() string                       { return "user_" + u.id }
func (u *webAuthnUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// toWebAuthnCredential converts a stored credential row into the library's
// representation so assertion verification sees the persisted public key and
// signature counter.
func toWebAuthnCredential(c *store.Credential) webauthn.Credential {
	var transports []protocol.AuthenticatorTransport
	if c.Transports != "" {
		// Best effort: a malformed transports blob only loses hints.
		_ = json.Unmarshal([]byte(c.Transports), &transports)
	}
	return webauthn.Credential{
		ID:        c.CredentialID,
		PublicKey: c.PublicKey,
		Transport: transports,
		Authenticator: webauthn.Authenticator{
			SignCount: c.SignCount,
		},
	}
}
