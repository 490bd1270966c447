// Package authd provides a token issuance and validation engine for two
// principal kinds: end-user accounts (username/password) and machine clients
// (API keys), with store-backed revocable refresh tokens.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authd is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (TokenRequest, TokenResponse, Problem, etc.). Flow orchestration
// lives under internal/ and is never exported. Credential hashing, opaque key
// generation, JWT signing, entity storage, and the read-through entity cache
// live in the password, apikey, jwt, store, and cache sub-packages.
//
// # What this package must NOT do
//
//   - Expose database handles, Redis clients, or signing key material in its
//     public API.
//   - Perform I/O during construction (Builder is allocation-only until Build).
//   - Decide error presentation: Engine returns typed errors and the HTTP
//     boundary alone translates them into Problem envelopes.
//
// # Performance contract
//
// VerifyToken is the hot path: signature verification only, no store
// round-trips. Token and Revoke are allowed one store round-trip per entity
// they touch, fronted by the entity cache when enabled.
package authd
