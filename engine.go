package authd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/finvault/authd/apikey"
	"github.com/finvault/authd/cache"
	"github.com/finvault/authd/internal/flows"
	tokens "github.com/finvault/authd/jwt"
	"github.com/finvault/authd/password"
	"github.com/finvault/authd/store"
)

// Engine is the auth orchestrator: the single entry point that classifies a
// token request, runs the matching grant flow, and owns the refresh-token
// lifecycle. Engine methods are safe for concurrent use after Build.
type Engine struct {
	config Config
	store  store.Store
	cache  *cache.Cache
	hasher *password.Hasher
	tokens *tokens.Manager
	flows  flows.Service
	logger Logger

	metrics metricsRegistry
	ready   bool
}

/*
====================================
FLOW WIRING
====================================
*/

func (e *Engine) buildFlows() flows.Service {
	return flows.New(flows.Deps{
		User: flows.UserGrantDeps{
			LookupUser:     e.lookupUserByUsername,
			VerifyPassword: e.verifyPassword,
			IssueUser:      e.issueUserToken,
		},
		Client: flows.ClientGrantDeps{
			LookupClient:    e.lookupClientByAPIKey,
			NewRefreshToken: e.newRefreshToken,
			RefreshTTL:      func() time.Duration { return e.config.Refresh.TTL },
			StoreRefresh:    e.store.CreateRefreshToken,
			IssueClient:     e.issueClientToken,
			Now:             time.Now,
		},
		Refresh: flows.RefreshGrantDeps{
			LookupToken:  e.lookupRefreshToken,
			LookupClient: e.lookupClientByID,
			LookupUser:   e.lookupUserByID,
			IssueClient:  e.issueClientToken,
			IssueUser:    e.issueUserToken,
			Now:          time.Now,
		},
		Revoke: flows.RevokeDeps{
			Revoke:          e.store.RevokeRefreshToken,
			InvalidateToken: e.invalidateRefreshToken,
			Now:             time.Now,
			Warn:            e.logger.Warnf,
		},
	})
}

/*
====================================
LOOKUPS (store fronted by the entity cache)
====================================
*/

func (e *Engine) lookupUserByUsername(ctx context.Context, username string) (*store.User, error) {
	// Username lookups are not cached: they sit on the password-verification
	// path and always want the freshest row.
	u, err := e.store.GetUserByUsername(ctx, username)
	return u, mapStoreError(err)
}

func (e *Engine) lookupUserByID(ctx context.Context, id int) (*store.User, error) {
	u, err := cache.GetOrLoad(ctx, e.cache,
		cache.Key{Kind: tokens.KindUser.String(), Field: cache.FieldID, Value: strconv.Itoa(id)},
		func(ctx context.Context) (*store.User, error) {
			return e.store.GetUserByID(ctx, id)
		})
	return u, mapStoreError(err)
}

func (e *Engine) lookupClientByAPIKey(ctx context.Context, key string) (*store.Client, error) {
	// The embedded type tag rules out wrong-entity keys before any store
	// round-trip.
	if _, err := apikey.Decode(key, apikey.TagClient); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyType, err)
	}

	c, err := cache.GetOrLoad(ctx, e.cache,
		cache.Key{Kind: tokens.KindClient.String(), Field: cache.FieldAPIKey, Value: key},
		func(ctx context.Context) (*store.Client, error) {
			return e.store.GetClientByAPIKey(ctx, key)
		})
	return c, mapStoreError(err)
}

func (e *Engine) lookupClientByID(ctx context.Context, id int) (*store.Client, error) {
	c, err := cache.GetOrLoad(ctx, e.cache,
		cache.Key{Kind: tokens.KindClient.String(), Field: cache.FieldID, Value: strconv.Itoa(id)},
		func(ctx context.Context) (*store.Client, error) {
			return e.store.GetClientByID(ctx, id)
		})
	return c, mapStoreError(err)
}

func (e *Engine) lookupRefreshToken(ctx context.Context, token string) (*store.RefreshToken, error) {
	if _, err := apikey.Decode(token, apikey.TagRefresh); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyType, err)
	}

	t, err := cache.GetOrLoad(ctx, e.cache,
		cache.Key{Kind: "refresh", Field: cache.FieldAPIKey, Value: token},
		func(ctx context.Context) (*store.RefreshToken, error) {
			return e.store.GetRefreshToken(ctx, token)
		})
	return t, mapStoreError(err)
}

// UserByPublicKey resolves a user by its external identifier through the
// entity cache.
func (e *Engine) UserByPublicKey(ctx context.Context, publicKey string) (*store.User, error) {
	if !e.ready {
		return nil, ErrEngineNotReady
	}
	u, err := cache.GetOrLoad(ctx, e.cache,
		cache.Key{Kind: tokens.KindUser.String(), Field: cache.FieldPublicKey, Value: publicKey},
		func(ctx context.Context) (*store.User, error) {
			return e.store.GetUserByPublicKey(ctx, publicKey)
		})
	return u, mapStoreError(err)
}

// ClientByPublicKey resolves a client by its external identifier through the
// entity cache.
func (e *Engine) ClientByPublicKey(ctx context.Context, publicKey string) (*store.Client, error) {
	if !e.ready {
		return nil, ErrEngineNotReady
	}
	c, err := cache.GetOrLoad(ctx, e.cache,
		cache.Key{Kind: tokens.KindClient.String(), Field: cache.FieldPublicKey, Value: publicKey},
		func(ctx context.Context) (*store.Client, error) {
			return e.store.GetClientByPublicKey(ctx, publicKey)
		})
	return c, mapStoreError(err)
}

func (e *Engine) invalidateRefreshToken(ctx context.Context, token string) error {
	return e.cache.Invalidate(ctx,
		cache.Key{Kind: "refresh", Field: cache.FieldAPIKey, Value: token})
}

func (e *Engine) verifyPassword(stored, candidate string) (bool, error) {
	ok, err := e.hasher.Verify(stored, candidate)
	if errors.Is(err, password.ErrFormat) {
		return false, fmt.Errorf("%w: %v", ErrHashFormat, err)
	}
	return ok, err
}

func (e *Engine) newRefreshToken() (string, error) {
	return apikey.Generate(apikey.TagRefresh, e.config.Refresh.TokenLength)
}

func (e *Engine) issueUserToken(u *store.User) (string, int, error) {
	token, expiresIn, err := e.tokens.Issue(tokens.KindUser, tokens.Claims{
		PublicKey:  u.PublicKey,
		GivenName:  u.FirstName,
		FamilyName: u.LastName,
		Email:      u.Email,
	}, 0)
	if err == nil {
		e.logger.Infof("authd: issued user token id=%d public_key=%s", u.ID, u.PublicKey)
	}
	return token, expiresIn, err
}

func (e *Engine) issueClientToken(c *store.Client, ttl time.Duration) (string, int, error) {
	token, expiresIn, err := e.tokens.Issue(tokens.KindClient, tokens.Claims{
		PublicKey: c.PublicKey,
		Name:      c.Name,
		Slug:      c.Slug,
	}, ttl)
	if err == nil {
		e.logger.Infof("authd: issued client token id=%d public_key=%s", c.ID, c.PublicKey)
	}
	return token, expiresIn, err
}

func mapStoreError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

/*
====================================
TOKEN REQUESTS
====================================
*/

// Token classifies req into exactly one grant kind and runs the matching
// flow. Requests that populate zero or multiple credential groups are
// rejected before any dispatch.
func (e *Engine) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if !e.ready {
		return nil, ErrEngineNotReady
	}

	kind, problems := req.Classify()
	if kind == GrantUnknown {
		e.metrics.inc(MetricRequestRejected)
		return nil, &ValidationError{Errors: problems}
	}

	var (
		result          flows.GrantResult
		success, failed MetricID
	)
	switch kind {
	case GrantUser:
		success, failed = MetricTokenUserSuccess, MetricTokenUserFailure
		result = e.flows.UserGrant(ctx, req.Username, req.Password)
	case GrantClient:
		success, failed = MetricTokenClientSuccess, MetricTokenClientFailure
		result = e.flows.ClientGrant(ctx, req.APIKey)
	default:
		success, failed = MetricTokenRefreshSuccess, MetricTokenRefreshFailure
		result = e.flows.RefreshGrant(ctx, req.RefreshToken)
	}

	if result.Failure != flows.FailureNone {
		e.metrics.inc(failed)
		return nil, e.mapGrantFailure(kind, result)
	}

	e.metrics.inc(success)
	return &TokenResponse{
		TokenType:    result.Out.TokenType,
		ExpiresIn:    result.Out.ExpiresIn,
		AccessToken:  result.Out.AccessToken,
		RefreshToken: result.Out.RefreshToken,
	}, nil
}

func (e *Engine) mapGrantFailure(kind GrantKind, result flows.GrantResult) error {
	switch result.Failure {
	case flows.FailureBadPassword:
		// Preserved mapping: wrong password is a friendly 400, not a 401.
		return &FriendlyError{
			Code:    http.StatusBadRequest,
			Message: "invalid credentials",
			Err:     ErrInvalidCredentials,
		}
	case flows.FailureClientDisabled:
		return &FriendlyError{Code: http.StatusBadRequest, Message: "client is disabled"}
	case flows.FailureRefreshInactive:
		// Inactive rows are excluded from the active lookup, so a revoked or
		// expired refresh token reports the same as an unknown one.
		return fmt.Errorf("%w: refresh token is revoked or expired", ErrNotFound)
	case flows.FailureHashCorrupt:
		e.logger.Errorf("authd: stored password hash is corrupt for grant kind %s", kind)
		return result.Err
	default:
		return result.Err
	}
}

/*
====================================
REFRESH TOKEN LIFECYCLE
====================================
*/

// IssueRefreshToken creates and persists a fresh opaque refresh token for the
// given owner. Exactly one of clientID or userID must be nonzero.
func (e *Engine) IssueRefreshToken(ctx context.Context, clientID, userID int) (*store.RefreshToken, error) {
	if !e.ready {
		return nil, ErrEngineNotReady
	}
	if (clientID == 0) == (userID == 0) {
		return nil, NewValidationError("exactly one of client_id or user_id is required")
	}

	opaque, err := e.newRefreshToken()
	if err != nil {
		return nil, err
	}

	created, err := e.store.CreateRefreshToken(ctx, &store.RefreshToken{
		Token:    opaque,
		ClientID: clientID,
		UserID:   userID,
		Expires:  time.Now().Add(e.config.Refresh.TTL),
	})
	return created, mapStoreError(err)
}

// Revoke stamps the active refresh token named by req and returns the updated
// row. Revoking a token that is absent or already revoked fails with a
// not-found; double revoke is not a no-op.
func (e *Engine) Revoke(ctx context.Context, req RevokeRequest) (*RevokeResponse, error) {
	if !e.ready {
		return nil, ErrEngineNotReady
	}
	if req.RefreshToken == "" {
		e.metrics.inc(MetricRequestRejected)
		return nil, NewValidationError("refresh_token is required")
	}
	if (req.ClientID == 0) == (req.UserID == 0) {
		e.metrics.inc(MetricRequestRejected)
		return nil, NewValidationError("exactly one of client_id or user_id is required")
	}

	result := e.flows.RevokeToken(ctx, req.ClientID, req.UserID, req.RefreshToken)
	if result.Failure != flows.FailureNone {
		e.metrics.inc(MetricRevokeFailure)
		return nil, fmt.Errorf("%w: no active refresh token matches", ErrNotFound)
	}

	e.metrics.inc(MetricRevokeSuccess)
	return &RevokeResponse{
		ClientID: result.Token.ClientID,
		UserID:   result.Token.UserID,
		Token:    result.Token.Token,
		Revoked:  result.Token.Revoked,
	}, nil
}

/*
====================================
TOKEN VERIFICATION
====================================
*/

// VerifyToken verifies raw without a caller-declared kind, inferring user vs
// client from the claim set. Expired and invalid tokens return a classified
// result and a non-nil error: verification failures are never soft statuses.
func (e *Engine) VerifyToken(raw string) (TokenResult, error) {
	if !e.ready {
		return TokenResult{}, ErrEngineNotReady
	}
	_, _, err := e.tokens.Parse(raw)
	return e.classifyVerification(err)
}

// VerifyTokenAs verifies raw strictly against the signing configuration for
// kind. A token signed for the other kind fails verification.
func (e *Engine) VerifyTokenAs(kind tokens.Kind, raw string) (TokenResult, error) {
	if !e.ready {
		return TokenResult{}, ErrEngineNotReady
	}
	_, err := e.tokens.ParseAs(kind, raw)
	return e.classifyVerification(err)
}

func (e *Engine) classifyVerification(err error) (TokenResult, error) {
	switch {
	case err == nil:
		e.metrics.inc(MetricVerifySuccess)
		return TokenResult{
			IsAuthenticated: true,
			Status:          TokenValid,
			StatusText:      TokenValid.String(),
		}, nil
	case errors.Is(err, tokens.ErrExpired):
		e.metrics.inc(MetricVerifyExpired)
		return TokenResult{
			Status:     TokenExpired,
			StatusText: TokenExpired.String(),
		}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		e.metrics.inc(MetricVerifyInvalid)
		return TokenResult{
			Status:     TokenInvalid,
			StatusText: TokenInvalid.String(),
		}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

// ValidateAccess parses and verifies raw, returning the claim set and the
// inferred kind. Used by the guard middleware.
func (e *Engine) ValidateAccess(raw string) (*tokens.Claims, tokens.Kind, error) {
	if !e.ready {
		return nil, 0, ErrEngineNotReady
	}
	claims, kind, err := e.tokens.Parse(raw)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			return nil, kind, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, kind, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, kind, nil
}

/*
====================================
PRINCIPAL MANAGEMENT
====================================
*/

// CreateUserInput is the input for [Engine.CreateUser].
type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Username  string
	Password  string
}

// CreateUser hashes the password, resolves the default user role (seeding it
// if absent), and persists the account.
func (e *Engine) CreateUser(ctx context.Context, input CreateUserInput) (*store.User, error) {
	if !e.ready {
		return nil, ErrEngineNotReady
	}
	var problems []string
	if input.Username == "" {
		problems = append(problems, "username is required")
	}
	if input.Email == "" {
		problems = append(problems, "email is required")
	}
	if input.Password == "" {
		problems = append(problems, "password is required")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	role, err := e.store.EnsureRole(ctx, store.RoleUser)
	if err != nil {
		return nil, err
	}

	created, err := e.store.CreateUser(ctx, &store.User{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: hash,
		RoleID:       role.ID,
	})
	if errors.Is(err, store.ErrDuplicateUsername) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateUsername, input.Username)
	}
	return created, err
}

// CreateClientInput is the input for [Engine.CreateClient].
type CreateClientInput struct {
	Name    string
	Slug    string
	Enabled bool
}

// CreateClient mints a primary/secondary API key pair, resolves the default
// client role (seeding it if absent), and persists the client. The raw keys
// are only readable off the returned row; hand them to the caller once.
func (e *Engine) CreateClient(ctx context.Context, input CreateClientInput) (*store.Client, error) {
	if !e.ready {
		return nil, ErrEngineNotReady
	}
	if input.Name == "" || input.Slug == "" {
		return nil, NewValidationError("name and slug are required")
	}

	primary, err := apikey.Generate(apikey.TagClient, apikey.DefaultLength)
	if err != nil {
		return nil, err
	}
	secondary, err := apikey.Generate(apikey.TagClient, apikey.DefaultLength)
	if err != nil {
		return nil, err
	}

	role, err := e.store.EnsureRole(ctx, store.RoleClient)
	if err != nil {
		return nil, err
	}

	created, err := e.store.CreateClient(ctx, &store.Client{
		Name:            input.Name,
		Slug:            input.Slug,
		Enabled:         input.Enabled,
		PrimaryAPIKey:   primary,
		SecondaryAPIKey: secondary,
		RoleID:          role.ID,
	})
	if errors.Is(err, store.ErrDuplicateSlug) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSlug, input.Slug)
	}
	return created, err
}

// RotateClientKeys replaces both API keys for a client and invalidates every
// cache entry that could still serve the old ones.
func (e *Engine) RotateClientKeys(ctx context.Context, clientID int) (*store.Client, error) {
	if !e.ready {
		return nil, ErrEngineNotReady
	}

	current, err := e.store.GetClientByID(ctx, clientID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	primary, err := apikey.Generate(apikey.TagClient, apikey.DefaultLength)
	if err != nil {
		return nil, err
	}
	secondary, err := apikey.Generate(apikey.TagClient, apikey.DefaultLength)
	if err != nil {
		return nil, err
	}

	updated, err := e.store.UpdateClientKeys(ctx, clientID, primary, secondary)
	if err != nil {
		return nil, mapStoreError(err)
	}

	kind := tokens.KindClient.String()
	if err := e.cache.Invalidate(ctx,
		cache.Key{Kind: kind, Field: cache.FieldAPIKey, Value: current.PrimaryAPIKey},
		cache.Key{Kind: kind, Field: cache.FieldAPIKey, Value: current.SecondaryAPIKey},
		cache.Key{Kind: kind, Field: cache.FieldID, Value: strconv.Itoa(clientID)},
		cache.Key{Kind: kind, Field: cache.FieldPublicKey, Value: current.PublicKey},
	); err != nil {
		e.logger.Warnf("authd: client cache invalidation failed after key rotation: %v", err)
	}

	e.logger.Infof("authd: rotated api keys id=%d public_key=%s", updated.ID, updated.PublicKey)
	return updated, nil
}

/*
====================================
INTROSPECTION
====================================
*/

// Health pings the store within the caller's deadline.
func (e *Engine) Health(ctx context.Context) error {
	if !e.ready {
		return ErrEngineNotReady
	}
	return e.store.Ping(ctx)
}

// MetricsSnapshot copies the engine counters and cache statistics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	hits, misses := e.cache.Stats()
	return MetricsSnapshot{
		Counters:    e.metrics.snapshot(),
		CacheHits:   hits,
		CacheMisses: misses,
	}
}

// Issuer returns the configured token issuer.
func (e *Engine) Issuer() string { return e.config.JWT.Issuer }

// OpenIDEnabled reports whether the discovery endpoints are feature-flagged on.
func (e *Engine) OpenIDEnabled() bool { return e.config.OpenID.Enabled }

// SupportedAlgorithms lists the distinct signing algorithms resolved across
// principal kinds, uppercased for discovery documents.
func (e *Engine) SupportedAlgorithms() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, kind := range []tokens.Kind{tokens.KindUser, tokens.KindClient} {
		alg := e.tokens.AlgorithmFor(kind)
		if alg == "" {
			continue
		}
		name := algDisplayName(alg)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func algDisplayName(alg tokens.Algorithm) string {
	switch alg {
	case tokens.AlgRS256:
		return "RS256"
	case tokens.AlgHS256:
		return "HS256"
	default:
		return string(alg)
	}
}

// JWKS renders the public verification keys for the JWKS endpoint.
func (e *Engine) JWKS() (*tokens.JWKSet, error) {
	if !e.ready {
		return nil, ErrEngineNotReady
	}
	return e.tokens.PublicJWKSet()
}
