package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvault/authd"
	"github.com/finvault/authd/store"
)

type discardLogger struct{}

func (discardLogger) Infof(string, ...any)  {}
func (discardLogger) Warnf(string, ...any)  {}
func (discardLogger) Errorf(string, ...any) {}

func newTestServer(t *testing.T, dev bool) (*mux.Router, *authd.Engine) {
	t.Helper()

	cfg := authd.Config{
		JWT: authd.JWTConfig{
			Issuer:           "authd",
			Audience:         "authd",
			AccessTTL:        15 * time.Minute,
			DefaultAlgorithm: "hs256",
			Secret:           []byte("httpapi-test-secret-0123456789abcdef"),
		},
		Password: authd.PasswordConfig{Iterations: 1000, SaltSize: 16, KeySize: 32},
		Refresh:  authd.RefreshConfig{TTL: 24 * time.Hour, TokenLength: 32},
		Cache:    authd.CacheConfig{Enabled: true, TTL: 15 * time.Minute},
		OpenID:   authd.OpenIDConfig{Enabled: true},
	}

	engine, err := authd.New().
		WithConfig(cfg).
		WithStore(store.NewMemory()).
		WithLogger(discardLogger{}).
		Build()
	require.NoError(t, err)

	router := mux.NewRouter()
	NewHandlers(engine, discardLogger{}, dev).RegisterRoutes(router)
	return router, engine
}

func postJSON(t *testing.T, router *mux.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedTestUser(t *testing.T, engine *authd.Engine) {
	t.Helper()
	_, err := engine.CreateUser(httptest.NewRequest("GET", "/", nil).Context(), authd.CreateUserInput{
		FirstName: "Georgios",
		LastName:  "Kamaris",
		Email:     "gkama@test.com",
		Username:  "gkama",
		Password:  "pass1234",
	})
	require.NoError(t, err)
}

func TestTokenEndpointUserGrant(t *testing.T) {
	router, engine := newTestServer(t, false)
	seedTestUser(t, engine)

	rec := postJSON(t, router, "/auth/token", map[string]string{
		"username": "gkama",
		"password": "pass1234",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp authd.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)
	assert.Positive(t, resp.ExpiresIn)
}

func TestTokenEndpointWrongPassword(t *testing.T) {
	router, engine := newTestServer(t, false)
	seedTestUser(t, engine)

	rec := postJSON(t, router, "/auth/token", map[string]string{
		"username": "gkama",
		"password": "wrong",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusBadRequest, problem.Code)
	assert.Equal(t, "invalid credentials", problem.Message)
	assert.NotEmpty(t, problem.TraceID)
}

func TestTokenEndpointValidation(t *testing.T) {
	router, _ := newTestServer(t, false)

	rec := postJSON(t, router, "/auth/token", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.NotEmpty(t, problem.Errors)

	// Mixed credential groups are rejected, never resolved by priority.
	rec = postJSON(t, router, "/auth/token", map[string]string{
		"username": "gkama",
		"password": "pass1234",
		"api_key":  "some-key",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenEndpointMalformedBody(t *testing.T) {
	router, _ := newTestServer(t, false)

	req := httptest.NewRequest("POST", "/auth/token", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshAndRevokeEndpoints(t *testing.T) {
	router, engine := newTestServer(t, false)

	client, err := engine.CreateClient(httptest.NewRequest("GET", "/", nil).Context(), authd.CreateClientInput{
		Name:    "Reporting Service",
		Slug:    "reporting-service",
		Enabled: true,
	})
	require.NoError(t, err)

	rec := postJSON(t, router, "/auth/token", map[string]string{"api_key": client.PrimaryAPIKey})
	require.Equal(t, http.StatusOK, rec.Code)

	var granted authd.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &granted))
	require.NotEmpty(t, granted.RefreshToken)

	rec = postJSON(t, router, "/auth/token/refresh", map[string]string{"refresh_token": granted.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	var exchanged authd.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exchanged))
	assert.NotEmpty(t, exchanged.AccessToken)
	assert.Equal(t, granted.RefreshToken, exchanged.RefreshToken)

	rec = postJSON(t, router, "/auth/token/revoke", map[string]any{
		"client_id":     client.ID,
		"refresh_token": granted.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var revoked authd.RevokeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &revoked))
	assert.NotNil(t, revoked.Revoked)

	// Second revoke of the same token is a 404, not a no-op.
	rec = postJSON(t, router, "/auth/token/revoke", map[string]any{
		"client_id":     client.ID,
		"refresh_token": granted.RefreshToken,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The revoked token no longer exchanges.
	rec = postJSON(t, router, "/auth/token/refresh", map[string]string{"refresh_token": granted.RefreshToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyEndpoint(t *testing.T) {
	router, engine := newTestServer(t, false)
	seedTestUser(t, engine)

	rec := postJSON(t, router, "/auth/token", map[string]string{
		"username": "gkama",
		"password": "pass1234",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var granted authd.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &granted))

	req := httptest.NewRequest("GET", "/auth/token/verify", nil)
	req.Header.Set("Authorization", "Bearer "+granted.AccessToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result authd.TokenResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.IsAuthenticated)
	assert.Equal(t, "valid", result.StatusText)

	// Tampered token fails with a 401.
	req = httptest.NewRequest("GET", "/auth/token/verify?token="+granted.AccessToken+"xx", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Missing token is a validation failure, not a 401.
	req = httptest.NewRequest("GET", "/auth/token/verify", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown principal kind is rejected.
	req = httptest.NewRequest("GET", "/auth/token/verify?as=robot&token="+granted.AccessToken, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestServer(t, false)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDiscoveryEndpoints(t *testing.T) {
	router, _ := newTestServer(t, false)

	req := httptest.NewRequest("GET", "http://auth.example.com/.well-known/openid-configuration", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc discoveryDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "authd", doc.Issuer)
	assert.Equal(t, "http://auth.example.com/auth/token", doc.TokenEndpoint)
	assert.Equal(t, "http://auth.example.com/.well-known/jwks", doc.JWKSURI)
	assert.Contains(t, doc.GrantTypesSupported, "refresh_token")
	assert.Equal(t, []string{"HS256"}, doc.IDTokenSigningAlgValuesSupported)
	assert.Contains(t, doc.ClaimsSupported, "given_name")
}

func TestProblemDetailRedaction(t *testing.T) {
	// Unknown-user detail is redacted in production mode and exposed in
	// development mode.
	prodRouter, _ := newTestServer(t, false)
	rec := postJSON(t, prodRouter, "/auth/token", map[string]string{
		"username": "nobody",
		"password": "pass1234",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "not found", problem.Message)

	devRouter, _ := newTestServer(t, true)
	rec = postJSON(t, devRouter, "/auth/token", map[string]string{
		"username": "nobody",
		"password": "pass1234",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Contains(t, problem.Message, "not found")
}
