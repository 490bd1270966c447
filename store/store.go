package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no row matches a keyed lookup.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateUsername is returned when user creation collides with an
	// existing non-deleted user.
	ErrDuplicateUsername = errors.New("store: username already exists")
	// ErrDuplicateSlug is returned when client creation collides with an
	// existing slug.
	ErrDuplicateSlug = errors.New("store: slug already exists")
)

// Fixed role names. Roles are seeded lazily: resolving the default role for a
// principal kind creates the row if it does not exist yet.
const (
	RoleAdmin  = "Admin"
	RoleUser   = "User"
	RoleClient = "Client"
)

// Role is a named role referenced by users and clients.
type Role struct {
	ID        int       `json:"id"`
	PublicKey string    `json:"public_key"`
	Name      string    `json:"name"`
	Created   time.Time `json:"created"`
}

// User is an end-user account principal. PasswordHash is never serialized.
type User struct {
	ID           int       `json:"id"`
	PublicKey    string    `json:"public_key"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	RoleID       int       `json:"role_id"`
	Deleted      bool      `json:"-"`
	Created      time.Time `json:"created"`
}

// Client is a machine principal authenticating with API keys. Keys are issued
// in a primary/secondary pair so one can be rotated while the other stays in
// service.
type Client struct {
	ID              int       `json:"id"`
	PublicKey       string    `json:"public_key"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Enabled         bool      `json:"enabled"`
	PrimaryAPIKey   string    `json:"-"`
	SecondaryAPIKey string    `json:"-"`
	RoleID          int       `json:"role_id"`
	Created         time.Time `json:"created"`
}

// RefreshToken is an opaque, revocable credential row owned by exactly one
// principal: ClientID or UserID is set, never both. Rows are soft-lifecycle
// only: revocation stamps Revoked, nothing is deleted.
type RefreshToken struct {
	ID        int        `json:"id"`
	PublicKey string     `json:"public_key"`
	Token     string     `json:"token"`
	ClientID  int        `json:"client_id,omitempty"`
	UserID    int        `json:"user_id,omitempty"`
	Created   time.Time  `json:"created"`
	Expires   time.Time  `json:"expires"`
	Revoked   *time.Time `json:"revoked,omitempty"`
}

// Active reports whether the token is usable at the given instant: not
// revoked and not expired.
func (t RefreshToken) Active(now time.Time) bool {
	return t.Revoked == nil && now.Before(t.Expires)
}

// Store is the durable entity interface consumed by the engine. Every method
// honors the caller's context deadline and returns [ErrNotFound] when no row
// matches.
type Store interface {
	GetUserByID(ctx context.Context, id int) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByPublicKey(ctx context.Context, publicKey string) (*User, error)
	CreateUser(ctx context.Context, u *User) (*User, error)

	GetClientByID(ctx context.Context, id int) (*Client, error)
	GetClientByAPIKey(ctx context.Context, apiKey string) (*Client, error)
	GetClientByPublicKey(ctx context.Context, publicKey string) (*Client, error)
	CreateClient(ctx context.Context, c *Client) (*Client, error)
	UpdateClientKeys(ctx context.Context, id int, primary, secondary string) (*Client, error)

	// EnsureRole resolves a role by name, creating the row idempotently when
	// absent. Concurrent first calls must not produce duplicate rows.
	EnsureRole(ctx context.Context, name string) (*Role, error)

	CreateRefreshToken(ctx context.Context, t *RefreshToken) (*RefreshToken, error)
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	// RevokeRefreshToken stamps the active row matching owner and token.
	// Exactly one of clientID or userID is nonzero. An already-revoked or
	// absent row returns ErrNotFound; double revoke is not a no-op.
	RevokeRefreshToken(ctx context.Context, clientID, userID int, token string, now time.Time) (*RefreshToken, error)

	Ping(ctx context.Context) error
}
