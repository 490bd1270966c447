package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/finvault/authd"
	tokens "github.com/finvault/authd/jwt"
)

// Handlers bundles the engine-facing HTTP handlers.
type Handlers struct {
	engine *authd.Engine
	logger authd.Logger
	dev    bool
}

// NewHandlers creates the handler set. dev controls how much server-side
// error detail reaches the caller.
func NewHandlers(engine *authd.Engine, logger authd.Logger, dev bool) *Handlers {
	return &Handlers{engine: engine, logger: logger, dev: dev}
}

// RegisterRoutes mounts the auth endpoints on router. Discovery routes are
// only mounted when the OpenID feature flag is on.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/token", h.token).Methods("POST")
	router.HandleFunc("/auth/token/refresh", h.refresh).Methods("POST")
	router.HandleFunc("/auth/token/revoke", h.revoke).Methods("POST")
	router.HandleFunc("/auth/token/verify", h.verify).Methods("GET")
	router.HandleFunc("/health", h.health).Methods("GET")

	if h.engine.OpenIDEnabled() {
		router.HandleFunc("/.well-known/openid-configuration", h.openIDConfiguration).Methods("GET")
		router.HandleFunc("/.well-known/jwks", h.jwks).Methods("GET")
	}
}

// token handles POST /auth/token.
func (h *Handlers) token(w http.ResponseWriter, r *http.Request) {
	var req authd.TokenRequest
	if !h.parseJSON(w, r, &req) {
		return
	}

	resp, err := h.engine.Token(r.Context(), req)
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// refresh handles POST /auth/token/refresh. It accepts only a refresh token;
// a populated credential field would make the exchange ambiguous.
func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !h.parseJSON(w, r, &req) {
		return
	}

	resp, err := h.engine.Token(r.Context(), authd.TokenRequest{RefreshToken: req.RefreshToken})
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// revoke handles POST /auth/token/revoke.
func (h *Handlers) revoke(w http.ResponseWriter, r *http.Request) {
	var req authd.RevokeRequest
	if !h.parseJSON(w, r, &req) {
		return
	}

	resp, err := h.engine.Revoke(r.Context(), req)
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// verify handles GET /auth/token/verify. The token comes from the bearer
// header or the token query parameter; an optional as parameter pins the
// principal kind instead of inferring it from the claim set.
func (h *Handlers) verify(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		h.writeProblem(w, authd.NewValidationError("a bearer token or token query parameter is required"))
		return
	}

	var (
		result authd.TokenResult
		err    error
	)
	switch as := r.URL.Query().Get("as"); as {
	case "":
		result, err = h.engine.VerifyToken(raw)
	case "user":
		result, err = h.engine.VerifyTokenAs(tokens.KindUser, raw)
	case "client":
		result, err = h.engine.VerifyTokenAs(tokens.KindClient, raw)
	default:
		h.writeProblem(w, authd.NewValidationError(fmt.Sprintf("unknown principal kind %q", as)))
		return
	}
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// health handles GET /health.
func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Health(r.Context()); err != nil {
		h.writeProblem(w, fmt.Errorf("store unreachable: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) parseJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		h.writeProblem(w, authd.NewValidationError("request body is not valid JSON"))
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
