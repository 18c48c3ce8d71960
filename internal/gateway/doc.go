// Package gateway exposes the HTTP surface of the auth gateway.
//
// # Endpoints
//
// Two RPC endpoints and a health check:
//
//   - POST /auth/rpc — unauthenticated ceremony operations:
//     webauthn.register.start, webauthn.register.finish,
//     webauthn.login.start, webauthn.login.finish, and auth.validate.
//   - POST /api/rpc — authenticated game operations: chat.send,
//     player.save, progress.resume.
//   - GET /health — database ping.
//
// Both RPC endpoints take a JSON body whose "op" field selects the operation
// from a closed set; anything else is a 400 op_unknown.
//
// # Request Pipeline
//
// The API endpoint processes every request in a fixed order: authenticate,
// rate-limit, validate input, handle. A request that fails authentication
// never consumes rate-limit budget. Rate-limited responses are 429 with a
// Retry-After header and a retryMs hint in the body.
//
// # Errors
//
// Failures are a JSON object {error, message} where error is a stable kind
// (challenge_expired, attestation_failed, assertion_failed,
// credential_not_found, unauthorized, token_expired, token_invalid,
// rate_limited, bad_request, op_unknown, server_error, gateway_error).
// Handler panics are recovered at the dispatcher boundary and reported as
// server_error with no internal detail.
package gateway
