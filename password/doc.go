// Package password implements the stored-credential scheme: PBKDF2-SHA256
// with a per-hash random salt, serialized as a dot-delimited triple of
// iteration count, base64 salt, and base64 derived key.
//
// Hash output is non-deterministic (fresh salt per call); Verify re-derives
// with the parameters embedded in the stored string and compares in constant
// time. A wrong password is a false return, never an error.
package password
