package models

import "strings"

// Store keys. Everything the faucet owns lives under the "faucet:" prefix so
// the service can share a Redis database or Postgres table with other tenants.
const (
	KeyWorkflow       = "faucet:workflow"
	KeyHistory        = "faucet:history"
	KeyReferenceCache = "faucet:refset:handles"
	keyCooldownPrefix = "faucet:cooldown:"
	keyLeasePrefix    = "faucet:lease:"
)

// SanitizeKeySegment escapes delimiter characters in key segments so a handle
// containing ':' cannot address a neighbouring key.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// CooldownKey is the key holding the last successful distribution instant
// for an identity.
func CooldownKey(identity string) string {
	return keyCooldownPrefix + SanitizeKeySegment(identity)
}

// LeaseKey is the key of the per-identity distribution lease.
func LeaseKey(identity string) string {
	return keyLeasePrefix + SanitizeKeySegment(identity)
}
