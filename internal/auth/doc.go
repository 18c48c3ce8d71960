// Package auth provides session token issuance and verification for
// mana-gateway.
//
// Tokens are HS256-signed JWTs carrying {sub, iss, aud, iat, exp}. The
// issuer and audience are fixed constants so tokens minted by a different
// deployment fail verification with a claim mismatch rather than being
// accepted. Tokens are stateless: expiry is the only termination, there is
// no revocation list.
package auth
