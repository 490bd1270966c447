package httpapi

import (
	"net/http"

	"github.com/finvault/authd"
)

// discoveryDocument is the OpenID provider configuration payload. Endpoint
// URLs are derived from the incoming request so the document is correct
// behind any hostname the service is reachable on; everything else comes
// from configuration.
type discoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	RefreshEndpoint                  string   `json:"token_refresh_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ClaimsSupported                  []string `json:"claims_supported"`
}

// openIDConfiguration handles GET /.well-known/openid-configuration.
func (h *Handlers) openIDConfiguration(w http.ResponseWriter, r *http.Request) {
	base := requestBaseURL(r)
	writeJSON(w, http.StatusOK, discoveryDocument{
		Issuer:                           h.engine.Issuer(),
		TokenEndpoint:                    base + "/auth/token",
		RefreshEndpoint:                  base + "/auth/token/refresh",
		RevocationEndpoint:               base + "/auth/token/revoke",
		JWKSURI:                          base + "/.well-known/jwks",
		GrantTypesSupported:              []string{"password", "client_credentials", "refresh_token"},
		ResponseTypesSupported:           []string{"token"},
		SubjectTypesSupported:            []string{"public"},
		TokenEndpointAuthMethods:         []string{"client_secret_post"},
		IDTokenSigningAlgValuesSupported: h.engine.SupportedAlgorithms(),
		ClaimsSupported:                  authd.RecognizedClaims(),
	})
}

// jwks handles GET /.well-known/jwks.
func (h *Handlers) jwks(w http.ResponseWriter, r *http.Request) {
	set, err := h.engine.JWKS()
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}
