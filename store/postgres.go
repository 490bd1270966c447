package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ConnectionConfig holds database connection pool settings.
type ConnectionConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// Postgres is the production Store backed by database/sql with the lib/pq
// driver. All uniqueness rules are enforced by constraints in the schema.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a pooled connection and verifies it with a ping bounded
// by cfg.Timeout.
func OpenPostgres(cfg ConnectionConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}
	if cfg.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing handle. Used by tests with sqlmock.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close releases the underlying pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// EnsureSchema creates the tables and constraints if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema setup failed: %w", err)
		}
	}
	return nil
}

const userColumns = `id, public_key, first_name, last_name, email, username, password_hash, role_id, created`

func (p *Postgres) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.PublicKey, &u.FirstName, &u.LastName,
		&u.Email, &u.Username, &u.PasswordHash, &u.RoleID, &u.Created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user scan failed: %w", err)
	}
	return &u, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id int) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted = FALSE`, id)
	return p.scanUser(row)
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1) AND deleted = FALSE`, username)
	return p.scanUser(row)
}

func (p *Postgres) GetUserByPublicKey(ctx context.Context, publicKey string) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE public_key = $1 AND deleted = FALSE`, publicKey)
	return p.scanUser(row)
}

func (p *Postgres) CreateUser(ctx context.Context, u *User) (*User, error) {
	publicKey := u.PublicKey
	if publicKey == "" {
		publicKey = uuid.NewString()
	}

	row := p.db.QueryRowContext(ctx,
		`INSERT INTO users (public_key, first_name, last_name, email, username, password_hash, role_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+userColumns,
		publicKey, u.FirstName, u.LastName, u.Email, u.Username, u.PasswordHash, u.RoleID,
	)

	created, err := p.scanUser(row)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateUsername
	}
	return created, err
}

const clientColumns = `id, public_key, name, slug, enabled, primary_api_key, secondary_api_key, role_id, created`

func (p *Postgres) scanClient(row *sql.Row) (*Client, error) {
	var c Client
	err := row.Scan(
		&c.ID, &c.PublicKey, &c.Name, &c.Slug, &c.Enabled,
		&c.PrimaryAPIKey, &c.SecondaryAPIKey, &c.RoleID, &c.Created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("client scan failed: %w", err)
	}
	return &c, nil
}

func (p *Postgres) GetClientByID(ctx context.Context, id int) (*Client, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	return p.scanClient(row)
}

func (p *Postgres) GetClientByAPIKey(ctx context.Context, apiKey string) (*Client, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients
		 WHERE primary_api_key = $1 OR secondary_api_key = $1`, apiKey)
	return p.scanClient(row)
}

func (p *Postgres) GetClientByPublicKey(ctx context.Context, publicKey string) (*Client, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE public_key = $1`, publicKey)
	return p.scanClient(row)
}

func (p *Postgres) CreateClient(ctx context.Context, c *Client) (*Client, error) {
	publicKey := c.PublicKey
	if publicKey == "" {
		publicKey = uuid.NewString()
	}

	row := p.db.QueryRowContext(ctx,
		`INSERT INTO clients (public_key, name, slug, enabled, primary_api_key, secondary_api_key, role_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+clientColumns,
		publicKey, c.Name, c.Slug, c.Enabled, c.PrimaryAPIKey, c.SecondaryAPIKey, c.RoleID,
	)

	created, err := p.scanClient(row)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateSlug
	}
	return created, err
}

func (p *Postgres) UpdateClientKeys(ctx context.Context, id int, primary, secondary string) (*Client, error) {
	row := p.db.QueryRowContext(ctx,
		`UPDATE clients SET primary_api_key = $2, secondary_api_key = $3
		 WHERE id = $1
		 RETURNING `+clientColumns,
		id, primary, secondary,
	)
	return p.scanClient(row)
}

// EnsureRole is the lazy role seeding path: insert-or-ignore guarded by the
// unique constraint on name, then read back. Concurrent first calls race on
// the insert and both land on the same row.
func (p *Postgres) EnsureRole(ctx context.Context, name string) (*Role, error) {
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO roles (public_key, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		uuid.NewString(), name,
	); err != nil {
		return nil, fmt.Errorf("role insert failed: %w", err)
	}

	var r Role
	err := p.db.QueryRowContext(ctx,
		`SELECT id, public_key, name, created FROM roles WHERE name = $1`, name,
	).Scan(&r.ID, &r.PublicKey, &r.Name, &r.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role scan failed: %w", err)
	}
	return &r, nil
}

const refreshColumns = `id, public_key, token, client_id, user_id, created, expires, revoked`

func (p *Postgres) scanRefreshToken(row *sql.Row) (*RefreshToken, error) {
	var (
		t        RefreshToken
		clientID sql.NullInt64
		userID   sql.NullInt64
		revoked  sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.PublicKey, &t.Token, &clientID, &userID,
		&t.Created, &t.Expires, &revoked,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("refresh token scan failed: %w", err)
	}
	t.ClientID = int(clientID.Int64)
	t.UserID = int(userID.Int64)
	if revoked.Valid {
		at := revoked.Time
		t.Revoked = &at
	}
	return &t, nil
}

func (p *Postgres) CreateRefreshToken(ctx context.Context, t *RefreshToken) (*RefreshToken, error) {
	publicKey := t.PublicKey
	if publicKey == "" {
		publicKey = uuid.NewString()
	}

	row := p.db.QueryRowContext(ctx,
		`INSERT INTO refresh_tokens (public_key, token, client_id, user_id, expires)
		 VALUES ($1, $2, NULLIF($3, 0), NULLIF($4, 0), $5)
		 RETURNING `+refreshColumns,
		publicKey, t.Token, t.ClientID, t.UserID, t.Expires,
	)
	return p.scanRefreshToken(row)
}

func (p *Postgres) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE token = $1`, token)
	return p.scanRefreshToken(row)
}

func (p *Postgres) RevokeRefreshToken(ctx context.Context, clientID, userID int, token string, now time.Time) (*RefreshToken, error) {
	// The revoked IS NULL guard makes double revoke a not-found, and keeps
	// the stamp a single atomic row update.
	row := p.db.QueryRowContext(ctx,
		`UPDATE refresh_tokens SET revoked = $4
		 WHERE token = $1
		   AND revoked IS NULL
		   AND (client_id = NULLIF($2, 0) OR user_id = NULLIF($3, 0))
		 RETURNING `+refreshColumns,
		token, clientID, userID, now.UTC(),
	)
	return p.scanRefreshToken(row)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id SERIAL PRIMARY KEY,
		public_key UUID NOT NULL UNIQUE,
		name TEXT NOT NULL UNIQUE,
		created TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		public_key UUID NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role_id INTEGER REFERENCES roles(id) ON DELETE SET NULL,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_username_live
		ON users (LOWER(username)) WHERE deleted = FALSE`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_live
		ON users (LOWER(email)) WHERE deleted = FALSE`,
	`CREATE TABLE IF NOT EXISTS clients (
		id SERIAL PRIMARY KEY,
		public_key UUID NOT NULL UNIQUE,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		primary_api_key TEXT NOT NULL,
		secondary_api_key TEXT NOT NULL,
		role_id INTEGER REFERENCES roles(id) ON DELETE SET NULL,
		created TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS clients_primary_api_key ON clients (primary_api_key)`,
	`CREATE INDEX IF NOT EXISTS clients_secondary_api_key ON clients (secondary_api_key)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id SERIAL PRIMARY KEY,
		public_key UUID NOT NULL UNIQUE,
		token TEXT NOT NULL,
		client_id INTEGER REFERENCES clients(id),
		user_id INTEGER REFERENCES users(id),
		created TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires TIMESTAMPTZ NOT NULL,
		revoked TIMESTAMPTZ,
		CHECK (client_id IS NOT NULL OR user_id IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS refresh_tokens_token ON refresh_tokens (token)`,
}
