package flows

import (
	"context"
	"time"

	"github.com/finvault/authd/store"
)

// RevokeDeps captures the revocation flow dependencies.
type RevokeDeps struct {
	Revoke func(ctx context.Context, clientID, userID int, token string, now time.Time) (*store.RefreshToken, error)
	// InvalidateToken drops the refresh-token cache entry so a revoked token
	// cannot be served from cache inside the TTL window.
	InvalidateToken func(ctx context.Context, token string) error
	Now             func() time.Time
	Warn            func(format string, args ...any)
}

// RevokeResult carries the stamped row or failure metadata.
type RevokeResult struct {
	Failure FailureKind
	Err     error
	Token   *store.RefreshToken
}

// RunRevoke stamps the active refresh token matching owner and token string.
// The store lookup excludes already-revoked rows, so a double revoke reports
// the same failure as a token that never existed.
func RunRevoke(ctx context.Context, clientID, userID int, token string, deps RevokeDeps) RevokeResult {
	row, err := deps.Revoke(ctx, clientID, userID, token, deps.Now())
	if err != nil {
		return RevokeResult{Failure: FailureRefreshNotFound, Err: err}
	}

	if deps.InvalidateToken != nil {
		if err := deps.InvalidateToken(ctx, token); err != nil && deps.Warn != nil {
			deps.Warn("authd: refresh token cache invalidation failed: %v", err)
		}
	}

	return RevokeResult{Token: row}
}
