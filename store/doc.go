// Package store defines the durable entity model (users, clients, roles,
// refresh tokens) and its keyed-lookup interface, with a PostgreSQL
// implementation for production and an in-memory implementation for tests
// and local development.
//
// The store is the sole owner of durable rows. Numeric ids never leave the
// service; external callers see only public keys (UUIDs) and, for clients,
// API keys. Username is unique among non-deleted users and slug is unique
// among clients, both enforced here.
package store
