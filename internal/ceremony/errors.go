// ABOUTME: Ceremony failure kinds surfaced to the dispatcher
// ABOUTME: Each maps to a stable external error code and status

package ceremony

import "errors"

// Ceremony errors. Anything else returned by the ceremony is an internal
// failure (persistence, configuration) and must not reach the caller as-is.
var (
	// ErrChallengeExpired covers a challenge that is missing, already
	// consumed, or past its TTL. The ceremony must be restarted from start.
	ErrChallengeExpired = errors.New("challenge expired or not found")

	// ErrAttestationFailed is a cryptographic or protocol failure while
	// verifying a registration response.
	ErrAttestationFailed = errors.New("attestation verification failed")

	// ErrAssertionFailed is a cryptographic or protocol failure while
	// verifying an authentication response, including a non-increasing
	// signature counter (possible cloned authenticator).
	ErrAssertionFailed = errors.New("assertion verification failed")

	// ErrCredentialNotFound covers unknown and revoked credentials alike.
	ErrCredentialNotFound = errors.New("credential not found")
)
