// Package httpapi exposes the auth engine over HTTP: the token, revocation,
// and verification endpoints plus the OpenID discovery surface. Every error
// leaves the boundary as an RFC-7807-shaped problem document with a trace id;
// server-side detail is only included in development mode.
package httpapi
