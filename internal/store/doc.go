// Package store provides persistence for mana-gateway: users, WebAuthn
// credentials, and player save state, backed by SQLite.
package store
