// Package chat is a thin client for the upstream inference backend.
// The gateway proxies authenticated chat requests through it with a hard
// timeout; failures surface as gateway errors, never as hung requests.
package chat
