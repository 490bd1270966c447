package flows

import (
	"context"
	"time"

	"github.com/finvault/authd/store"
)

// FailureKind classifies flow failures for root-level error mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailurePrincipalNotFound
	FailureBadPassword
	FailureHashCorrupt
	FailureClientDisabled
	FailureRefreshNotFound
	FailureRefreshInactive
	FailureRefreshCreate
	FailureIssueAccess
	FailureStore
)

// TokenOut is the issued token pair returned by successful grant flows.
type TokenOut struct {
	TokenType    string
	ExpiresIn    int
	AccessToken  string
	RefreshToken string
}

// GrantResult carries either the issued tokens or failure metadata.
type GrantResult struct {
	Failure FailureKind
	Err     error
	Out     TokenOut
}

func failure(kind FailureKind, err error) GrantResult {
	return GrantResult{Failure: kind, Err: err}
}

// UserGrantDeps captures the username+password flow dependencies.
type UserGrantDeps struct {
	LookupUser     func(ctx context.Context, username string) (*store.User, error)
	VerifyPassword func(stored, candidate string) (bool, error)
	IssueUser      func(u *store.User) (token string, expiresIn int, err error)
}

// RunUserGrant verifies a user's password and issues an access token. User
// grants never attach a refresh token.
func RunUserGrant(ctx context.Context, username, password string, deps UserGrantDeps) GrantResult {
	user, err := deps.LookupUser(ctx, username)
	if err != nil {
		return failure(FailurePrincipalNotFound, err)
	}

	ok, err := deps.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return failure(FailureHashCorrupt, err)
	}
	if !ok {
		return failure(FailureBadPassword, nil)
	}

	access, expiresIn, err := deps.IssueUser(user)
	if err != nil {
		return failure(FailureIssueAccess, err)
	}

	return GrantResult{Out: TokenOut{
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		AccessToken: access,
	}}
}

// ClientGrantDeps captures the api-key flow dependencies.
type ClientGrantDeps struct {
	LookupClient    func(ctx context.Context, apiKey string) (*store.Client, error)
	NewRefreshToken func() (string, error)
	RefreshTTL      func() time.Duration
	StoreRefresh    func(ctx context.Context, t *store.RefreshToken) (*store.RefreshToken, error)
	IssueClient     func(c *store.Client, ttl time.Duration) (token string, expiresIn int, err error)
	Now             func() time.Time
}

// RunClientGrant resolves a client by API key, mints and persists a fresh
// refresh token, and issues an access token with the refresh token attached.
func RunClientGrant(ctx context.Context, apiKey string, deps ClientGrantDeps) GrantResult {
	client, err := deps.LookupClient(ctx, apiKey)
	if err != nil {
		return failure(FailurePrincipalNotFound, err)
	}
	if !client.Enabled {
		return failure(FailureClientDisabled, nil)
	}

	opaque, err := deps.NewRefreshToken()
	if err != nil {
		return failure(FailureRefreshCreate, err)
	}

	now := deps.Now()
	stored, err := deps.StoreRefresh(ctx, &store.RefreshToken{
		Token:    opaque,
		ClientID: client.ID,
		Expires:  now.Add(deps.RefreshTTL()),
	})
	if err != nil {
		return failure(FailureStore, err)
	}

	access, expiresIn, err := deps.IssueClient(client, 0)
	if err != nil {
		return failure(FailureIssueAccess, err)
	}

	return GrantResult{Out: TokenOut{
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		AccessToken:  access,
		RefreshToken: stored.Token,
	}}
}

// RefreshGrantDeps captures the refresh-token exchange dependencies.
type RefreshGrantDeps struct {
	LookupToken  func(ctx context.Context, token string) (*store.RefreshToken, error)
	LookupClient func(ctx context.Context, id int) (*store.Client, error)
	LookupUser   func(ctx context.Context, id int) (*store.User, error)
	IssueClient  func(c *store.Client, ttl time.Duration) (token string, expiresIn int, err error)
	IssueUser    func(u *store.User) (token string, expiresIn int, err error)
	Now          func() time.Time
}

// RunRefreshGrant exchanges an active refresh token for a new access token.
// The new token's expiry window is clamped to the refresh token's remaining
// lifetime, so an access token never outlives the credential it came from.
func RunRefreshGrant(ctx context.Context, refreshToken string, deps RefreshGrantDeps) GrantResult {
	row, err := deps.LookupToken(ctx, refreshToken)
	if err != nil {
		return failure(FailureRefreshNotFound, err)
	}

	now := deps.Now()
	if !row.Active(now) {
		return failure(FailureRefreshInactive, nil)
	}

	if row.ClientID != 0 {
		client, err := deps.LookupClient(ctx, row.ClientID)
		if err != nil {
			return failure(FailurePrincipalNotFound, err)
		}
		if !client.Enabled {
			return failure(FailureClientDisabled, nil)
		}

		access, expiresIn, err := deps.IssueClient(client, row.Expires.Sub(now))
		if err != nil {
			return failure(FailureIssueAccess, err)
		}
		return GrantResult{Out: TokenOut{
			TokenType:    "Bearer",
			ExpiresIn:    expiresIn,
			AccessToken:  access,
			RefreshToken: row.Token,
		}}
	}

	user, err := deps.LookupUser(ctx, row.UserID)
	if err != nil {
		return failure(FailurePrincipalNotFound, err)
	}

	access, expiresIn, err := deps.IssueUser(user)
	if err != nil {
		return failure(FailureIssueAccess, err)
	}
	return GrantResult{Out: TokenOut{
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		AccessToken:  access,
		RefreshToken: row.Token,
	}}
}
