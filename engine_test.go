package authd

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/finvault/authd/apikey"
	tokens "github.com/finvault/authd/jwt"
	"github.com/finvault/authd/store"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.DefaultAlgorithm = "hs256"
	cfg.JWT.Secret = []byte("engine-test-secret-0123456789abcdef")
	cfg.Password.Iterations = 1000
	cfg.OpenID.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New().
		WithConfig(cfg).
		WithStore(store.NewMemory()).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return e
}

func seedUser(t *testing.T, e *Engine) *store.User {
	t.Helper()
	u, err := e.CreateUser(context.Background(), CreateUserInput{
		FirstName: "Georgios",
		LastName:  "Kamaris",
		Email:     "gkama@test.com",
		Username:  "gkama",
		Password:  "pass1234",
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func seedClient(t *testing.T, e *Engine, enabled bool) *store.Client {
	t.Helper()
	c, err := e.CreateClient(context.Background(), CreateClientInput{
		Name:    "Reporting Service",
		Slug:    "reporting-service",
		Enabled: enabled,
	})
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	return c
}

func TestUserGrant(t *testing.T) {
	e := newTestEngine(t, testConfig())
	seedUser(t, e)

	resp, err := e.Token(context.Background(), TokenRequest{Username: "gkama", Password: "pass1234"})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", resp.TokenType)
	}
	if resp.AccessToken == "" {
		t.Error("AccessToken is empty")
	}
	if resp.RefreshToken != "" {
		t.Errorf("user grant attached a refresh token: %q", resp.RefreshToken)
	}
	if resp.ExpiresIn <= 0 {
		t.Errorf("ExpiresIn = %d, want positive", resp.ExpiresIn)
	}

	result, err := e.VerifyToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if !result.IsAuthenticated || result.Status != TokenValid {
		t.Errorf("verification = %+v, want authenticated/valid", result)
	}
}

func TestUserGrantWrongPassword(t *testing.T) {
	e := newTestEngine(t, testConfig())
	seedUser(t, e)

	_, err := e.Token(context.Background(), TokenRequest{Username: "gkama", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Token() error = %v, want ErrInvalidCredentials", err)
	}
	if code := StatusCode(err); code != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", code)
	}
}

func TestUserGrantUnknownUser(t *testing.T) {
	e := newTestEngine(t, testConfig())

	_, err := e.Token(context.Background(), TokenRequest{Username: "nobody", Password: "pass1234"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Token() error = %v, want ErrNotFound", err)
	}
}

func TestClientGrant(t *testing.T) {
	e := newTestEngine(t, testConfig())
	client := seedClient(t, e, true)

	resp, err := e.Token(context.Background(), TokenRequest{APIKey: client.PrimaryAPIKey})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("AccessToken is empty")
	}
	if resp.RefreshToken == "" {
		t.Fatal("client grant did not attach a refresh token")
	}
	if _, err := apikey.Decode(resp.RefreshToken, apikey.TagRefresh); err != nil {
		t.Errorf("refresh token tag = %v, want refresh", err)
	}

	// Secondary key resolves the same client.
	if _, err := e.Token(context.Background(), TokenRequest{APIKey: client.SecondaryAPIKey}); err != nil {
		t.Errorf("Token() with secondary key error = %v", err)
	}
}

func TestClientGrantDisabled(t *testing.T) {
	e := newTestEngine(t, testConfig())
	client := seedClient(t, e, false)

	_, err := e.Token(context.Background(), TokenRequest{APIKey: client.PrimaryAPIKey})
	var friendly *FriendlyError
	if !errors.As(err, &friendly) || friendly.Code != http.StatusBadRequest {
		t.Fatalf("Token() error = %v, want a friendly 400", err)
	}
}

func TestClientGrantWrongKeyType(t *testing.T) {
	e := newTestEngine(t, testConfig())
	seedClient(t, e, true)

	userKey, err := apikey.Generate(apikey.TagUser, apikey.DefaultLength)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = e.Token(context.Background(), TokenRequest{APIKey: userKey})
	if !errors.Is(err, ErrInvalidKeyType) {
		t.Fatalf("Token() error = %v, want ErrInvalidKeyType", err)
	}
	if code := StatusCode(err); code != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", code)
	}
}

func TestRefreshGrant(t *testing.T) {
	e := newTestEngine(t, testConfig())
	client := seedClient(t, e, true)

	granted, err := e.Token(context.Background(), TokenRequest{APIKey: client.PrimaryAPIKey})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	exchanged, err := e.Token(context.Background(), TokenRequest{RefreshToken: granted.RefreshToken})
	if err != nil {
		t.Fatalf("refresh Token() error = %v", err)
	}
	if exchanged.AccessToken == "" {
		t.Error("AccessToken is empty")
	}
	if exchanged.RefreshToken != granted.RefreshToken {
		t.Errorf("refresh exchange returned token %q, want the presented token echoed", exchanged.RefreshToken)
	}
	// The new access token cannot outlive the refresh token it came from.
	if max := int(testConfig().Refresh.TTL / time.Second); exchanged.ExpiresIn > max {
		t.Errorf("ExpiresIn = %d, want <= %d", exchanged.ExpiresIn, max)
	}
}

func TestRefreshGrantRevoked(t *testing.T) {
	e := newTestEngine(t, testConfig())
	client := seedClient(t, e, true)

	granted, err := e.Token(context.Background(), TokenRequest{APIKey: client.PrimaryAPIKey})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	// Exchange once so the row lands in the entity cache; revocation must
	// still take effect immediately.
	if _, err := e.Token(context.Background(), TokenRequest{RefreshToken: granted.RefreshToken}); err != nil {
		t.Fatalf("refresh Token() error = %v", err)
	}

	revoked, err := e.Revoke(context.Background(), RevokeRequest{
		ClientID:     client.ID,
		RefreshToken: granted.RefreshToken,
	})
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if revoked.Revoked == nil {
		t.Fatal("Revoke() did not stamp a revocation time")
	}

	_, err = e.Token(context.Background(), TokenRequest{RefreshToken: granted.RefreshToken})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked refresh Token() error = %v, want ErrNotFound", err)
	}
}

func TestRevokeTwice(t *testing.T) {
	e := newTestEngine(t, testConfig())
	client := seedClient(t, e, true)

	granted, err := e.Token(context.Background(), TokenRequest{APIKey: client.PrimaryAPIKey})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	req := RevokeRequest{ClientID: client.ID, RefreshToken: granted.RefreshToken}
	if _, err := e.Revoke(context.Background(), req); err != nil {
		t.Fatalf("first Revoke() error = %v", err)
	}
	if _, err := e.Revoke(context.Background(), req); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Revoke() error = %v, want ErrNotFound", err)
	}
}

func TestRevokeWrongOwner(t *testing.T) {
	e := newTestEngine(t, testConfig())
	client := seedClient(t, e, true)

	granted, err := e.Token(context.Background(), TokenRequest{APIKey: client.PrimaryAPIKey})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	_, err = e.Revoke(context.Background(), RevokeRequest{
		ClientID:     client.ID + 100,
		RefreshToken: granted.RefreshToken,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Revoke() error = %v, want ErrNotFound", err)
	}
}

func TestTokenRequestClassification(t *testing.T) {
	e := newTestEngine(t, testConfig())

	cases := []struct {
		name string
		req  TokenRequest
	}{
		{"empty", TokenRequest{}},
		{"user and key", TokenRequest{Username: "gkama", Password: "pass1234", APIKey: "k"}},
		{"key and refresh", TokenRequest{APIKey: "k", RefreshToken: "r"}},
		{"password without username", TokenRequest{Password: "pass1234"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Token(context.Background(), tc.req)
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("Token() error = %v, want ValidationError", err)
			}
			if len(validation.Errors) == 0 {
				t.Error("ValidationError carries no messages")
			}
			if code := StatusCode(err); code != http.StatusBadRequest {
				t.Errorf("StatusCode = %d, want 400", code)
			}
		})
	}
}

func TestVerifyExpiredVsInvalid(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.AccessTTL = time.Nanosecond
	e := newTestEngine(t, cfg)
	seedUser(t, e)

	resp, err := e.Token(context.Background(), TokenRequest{Username: "gkama", Password: "pass1234"})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	time.Sleep(2 * time.Second) // past expiry plus leeway

	result, err := e.VerifyToken(resp.AccessToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("VerifyToken(expired) error = %v, want ErrTokenExpired", err)
	}
	if result.Status != TokenExpired || result.IsAuthenticated {
		t.Errorf("expired result = %+v", result)
	}

	tampered := resp.AccessToken[:len(resp.AccessToken)-2] + "xx"
	result, err = e.VerifyToken(tampered)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("VerifyToken(tampered) error = %v, want ErrTokenInvalid", err)
	}
	if result.Status != TokenInvalid {
		t.Errorf("tampered result = %+v", result)
	}
}

func TestVerifyTokenAs(t *testing.T) {
	e := newTestEngine(t, testConfig())
	seedUser(t, e)

	resp, err := e.Token(context.Background(), TokenRequest{Username: "gkama", Password: "pass1234"})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	if _, err := e.VerifyTokenAs(tokens.KindUser, resp.AccessToken); err != nil {
		t.Errorf("VerifyTokenAs(user) error = %v", err)
	}
}

func TestRotateClientKeys(t *testing.T) {
	e := newTestEngine(t, testConfig())
	client := seedClient(t, e, true)
	oldPrimary := client.PrimaryAPIKey

	// Grant once so the old key is served from cache, then rotate.
	if _, err := e.Token(context.Background(), TokenRequest{APIKey: oldPrimary}); err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	rotated, err := e.RotateClientKeys(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("RotateClientKeys() error = %v", err)
	}
	if rotated.PrimaryAPIKey == oldPrimary {
		t.Fatal("rotation kept the old primary key")
	}

	if _, err := e.Token(context.Background(), TokenRequest{APIKey: oldPrimary}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Token() with rotated-out key error = %v, want ErrNotFound", err)
	}
	if _, err := e.Token(context.Background(), TokenRequest{APIKey: rotated.PrimaryAPIKey}); err != nil {
		t.Errorf("Token() with rotated-in key error = %v", err)
	}
}

func TestLookupByPublicKey(t *testing.T) {
	e := newTestEngine(t, testConfig())
	user := seedUser(t, e)
	client := seedClient(t, e, true)

	gotUser, err := e.UserByPublicKey(context.Background(), user.PublicKey)
	if err != nil {
		t.Fatalf("UserByPublicKey() error = %v", err)
	}
	if gotUser.ID != user.ID {
		t.Errorf("user id = %d, want %d", gotUser.ID, user.ID)
	}

	gotClient, err := e.ClientByPublicKey(context.Background(), client.PublicKey)
	if err != nil {
		t.Fatalf("ClientByPublicKey() error = %v", err)
	}
	if gotClient.ID != client.ID {
		t.Errorf("client id = %d, want %d", gotClient.ID, client.ID)
	}

	if _, err := e.UserByPublicKey(context.Background(), "no-such-key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByPublicKey(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	e := newTestEngine(t, testConfig())
	seedUser(t, e)

	_, err := e.CreateUser(context.Background(), CreateUserInput{
		FirstName: "Other",
		LastName:  "Person",
		Email:     "other@test.com",
		Username:  "GKAMA", // case-insensitive collision
		Password:  "pass1234",
	})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("CreateUser() error = %v, want ErrDuplicateUsername", err)
	}
	if code := StatusCode(err); code != http.StatusConflict {
		t.Errorf("StatusCode = %d, want 409", code)
	}
}

func TestIssueRefreshTokenOwner(t *testing.T) {
	e := newTestEngine(t, testConfig())
	client := seedClient(t, e, true)

	issued, err := e.IssueRefreshToken(context.Background(), client.ID, 0)
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}
	if issued.Token == "" || issued.ClientID != client.ID {
		t.Errorf("issued = %+v", issued)
	}

	var validation *ValidationError
	if _, err := e.IssueRefreshToken(context.Background(), 0, 0); !errors.As(err, &validation) {
		t.Errorf("IssueRefreshToken(0,0) error = %v, want ValidationError", err)
	}
	if _, err := e.IssueRefreshToken(context.Background(), 1, 2); !errors.As(err, &validation) {
		t.Errorf("IssueRefreshToken(1,2) error = %v, want ValidationError", err)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	e := newTestEngine(t, testConfig())
	seedUser(t, e)

	if _, err := e.Token(context.Background(), TokenRequest{Username: "gkama", Password: "pass1234"}); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	_, _ = e.Token(context.Background(), TokenRequest{Username: "gkama", Password: "wrong"})
	_, _ = e.Token(context.Background(), TokenRequest{})

	snap := e.MetricsSnapshot()
	if got := snap.Counters[MetricTokenUserSuccess]; got != 1 {
		t.Errorf("user success counter = %d, want 1", got)
	}
	if got := snap.Counters[MetricTokenUserFailure]; got != 1 {
		t.Errorf("user failure counter = %d, want 1", got)
	}
	if got := snap.Counters[MetricRequestRejected]; got != 1 {
		t.Errorf("rejected counter = %d, want 1", got)
	}
}

func TestDiscoveryAccessors(t *testing.T) {
	e := newTestEngine(t, testConfig())

	if !e.OpenIDEnabled() {
		t.Error("OpenIDEnabled() = false, want true")
	}
	if e.Issuer() != "authd" {
		t.Errorf("Issuer() = %q, want authd", e.Issuer())
	}
	algs := e.SupportedAlgorithms()
	if len(algs) != 1 || algs[0] != "HS256" {
		t.Errorf("SupportedAlgorithms() = %v, want [HS256]", algs)
	}

	// hs256 has no public key to publish.
	if _, err := e.JWKS(); err == nil {
		t.Error("JWKS() = nil error, want failure for hs256-only configuration")
	}
}

func TestEngineNotReady(t *testing.T) {
	var e Engine
	if _, err := e.Token(context.Background(), TokenRequest{Username: "a", Password: "b"}); !errors.Is(err, ErrEngineNotReady) {
		t.Errorf("Token() error = %v, want ErrEngineNotReady", err)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("a is required", "b is required")
	if !strings.Contains(err.Error(), "a is required") || !strings.Contains(err.Error(), "b is required") {
		t.Errorf("Error() = %q", err.Error())
	}
}
