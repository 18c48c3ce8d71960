// Package ratelimit provides fixed-window admission control keyed by
// (operation, principal). It is advisory abuse prevention, not a
// correctness mechanism.
package ratelimit
