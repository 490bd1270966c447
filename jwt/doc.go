// Package jwt wraps token signing and verification for the engine. A Manager
// resolves one algorithm/key pair per principal kind at construction time
// (rs256 with PEM key material, or hs256 with a shared secret) and exposes
// typed issue/verify operations plus an untyped verify that infers the kind
// from the claim set.
package jwt
