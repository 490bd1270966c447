// Package flows contains the token grant and revocation flow runners. Each
// flow receives its dependencies as a struct of functions wired once by the
// root engine, so the flows stay free of root package imports and every
// failure point is classified for root-level error mapping.
package flows
