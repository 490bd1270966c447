package flows

import "context"

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow runner.
type Deps struct {
	User    UserGrantDeps
	Client  ClientGrantDeps
	Refresh RefreshGrantDeps
	Revoke  RevokeDeps
}

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.User.LookupUser != nil
}

func (s Service) UserGrant(ctx context.Context, username, password string) GrantResult {
	return RunUserGrant(ctx, username, password, s.deps.User)
}

func (s Service) ClientGrant(ctx context.Context, apiKey string) GrantResult {
	return RunClientGrant(ctx, apiKey, s.deps.Client)
}

func (s Service) RefreshGrant(ctx context.Context, refreshToken string) GrantResult {
	return RunRefreshGrant(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) RevokeToken(ctx context.Context, clientID, userID int, token string) RevokeResult {
	return RunRevoke(ctx, clientID, userID, token, s.deps.Revoke)
}
