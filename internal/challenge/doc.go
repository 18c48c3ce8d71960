// Package challenge provides a short-TTL, single-use store for in-flight
// WebAuthn ceremony sessions keyed by ceremony context.
package challenge
