package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store for tests and local development. It applies
// the same uniqueness rules as the PostgreSQL implementation.
type Memory struct {
	mu sync.RWMutex

	users    map[int]*User
	clients  map[int]*Client
	roles    map[string]*Role
	refresh  map[int]*RefreshToken
	nextID   int
	nextRTID int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:   make(map[int]*User),
		clients: make(map[int]*Client),
		roles:   make(map[string]*Role),
		refresh: make(map[int]*RefreshToken),
	}
}

func (m *Memory) nextEntityID() int {
	m.nextID++
	return m.nextID
}

func (m *Memory) GetUserByID(ctx context.Context, id int) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok || u.Deleted {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if !u.Deleted && strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetUserByPublicKey(ctx context.Context, publicKey string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if !u.Deleted && u.PublicKey == publicKey {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateUser(ctx context.Context, u *User) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Deleted {
			continue
		}
		if strings.EqualFold(existing.Username, u.Username) ||
			strings.EqualFold(existing.Email, u.Email) {
			return nil, ErrDuplicateUsername
		}
	}

	cp := *u
	cp.ID = m.nextEntityID()
	if cp.PublicKey == "" {
		cp.PublicKey = uuid.NewString()
	}
	if cp.Created.IsZero() {
		cp.Created = time.Now().UTC()
	}
	m.users[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (m *Memory) GetClientByID(ctx context.Context, id int) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) GetClientByAPIKey(ctx context.Context, apiKey string) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		if c.PrimaryAPIKey == apiKey || c.SecondaryAPIKey == apiKey {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetClientByPublicKey(ctx context.Context, publicKey string) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		if c.PublicKey == publicKey {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateClient(ctx context.Context, c *Client) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.clients {
		if strings.EqualFold(existing.Slug, c.Slug) {
			return nil, ErrDuplicateSlug
		}
	}

	cp := *c
	cp.ID = m.nextEntityID()
	if cp.PublicKey == "" {
		cp.PublicKey = uuid.NewString()
	}
	if cp.Created.IsZero() {
		cp.Created = time.Now().UTC()
	}
	m.clients[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (m *Memory) UpdateClientKeys(ctx context.Context, id int, primary, secondary string) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.PrimaryAPIKey = primary
	c.SecondaryAPIKey = secondary

	cp := *c
	return &cp, nil
}

func (m *Memory) EnsureRole(ctx context.Context, name string) (*Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.roles[name]; ok {
		cp := *r
		return &cp, nil
	}

	r := &Role{
		ID:        m.nextEntityID(),
		PublicKey: uuid.NewString(),
		Name:      name,
		Created:   time.Now().UTC(),
	}
	m.roles[name] = r

	cp := *r
	return &cp, nil
}

func (m *Memory) CreateRefreshToken(ctx context.Context, t *RefreshToken) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.nextRTID++
	cp.ID = m.nextRTID
	if cp.PublicKey == "" {
		cp.PublicKey = uuid.NewString()
	}
	if cp.Created.IsZero() {
		cp.Created = time.Now().UTC()
	}
	m.refresh[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (m *Memory) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.refresh {
		if t.Token == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) RevokeRefreshToken(ctx context.Context, clientID, userID int, token string, now time.Time) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.refresh {
		if t.Token != token || t.Revoked != nil {
			continue
		}
		if clientID != 0 && t.ClientID != clientID {
			continue
		}
		if userID != 0 && t.UserID != userID {
			continue
		}
		revoked := now.UTC()
		t.Revoked = &revoked

		cp := *t
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}
