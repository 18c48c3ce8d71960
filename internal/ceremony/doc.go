// Package ceremony implements the WebAuthn registration and login ceremonies
// for the gateway.
//
// # Registration
//
// A registration ceremony is two round trips:
//
//	result, _ := svc.RegisterStart(ctx, userHint)   // mint user ID + options
//	finish, _ := svc.RegisterFinish(ctx, result.UserID, attestationJSON)
//
// Start mints a fresh user identifier and stores the pending challenge under
// it; nothing is persisted until finish verifies the attestation and writes
// the user and credential in one transaction. An abandoned start leaves only
// a challenge entry that expires on its own.
//
// # Login
//
// Login uses discoverable credentials: no account is named up front.
//
//	result, _ := svc.LoginStart(ctx)                // nonce + assertion options
//	finish, _ := svc.LoginFinish(ctx, result.Nonce, assertionJSON)
//
// The authenticator's user handle identifies the account. Finish enforces the
// signature-counter policy (counters must strictly increase unless both sides
// are zero) and persists the new counter before issuing the session token, so
// a replayed assertion can never authenticate twice.
//
// # Error Contract
//
// Failures callers can act on are sentinel errors: ErrChallengeExpired,
// ErrAttestationFailed, ErrAssertionFailed, and ErrCredentialNotFound.
// Revoked credentials are reported as ErrCredentialNotFound, identical to
// credentials that never existed. Any other error is internal.
package ceremony
