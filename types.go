package authd

import "time"

// GrantKind identifies which of the three mutually exclusive credential
// groups a [TokenRequest] carries.
type GrantKind uint8

const (
	// GrantUnknown is the zero value returned alongside classification errors.
	GrantUnknown GrantKind = iota
	// GrantUser is a username+password request.
	GrantUser
	// GrantClient is an API-key request.
	GrantClient
	// GrantRefresh is a refresh-token exchange request.
	GrantRefresh
)

func (g GrantKind) String() string {
	switch g {
	case GrantUser:
		return "user"
	case GrantClient:
		return "client"
	case GrantRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// TokenRequest is the inbound token endpoint payload. Exactly one credential
// group must be populated: username+password, api_key, or refresh_token.
type TokenRequest struct {
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Classify resolves the request to exactly one grant kind. Any other
// combination of populated fields returns GrantUnknown together with the
// field-level conflict messages. Classification is a strict exclusive-or
// across the three groups, not a priority order.
func (r TokenRequest) Classify() (GrantKind, []string) {
	var errs []string

	hasUser := r.Username != "" || r.Password != ""
	hasKey := r.APIKey != ""
	hasRefresh := r.RefreshToken != ""

	groups := 0
	for _, set := range []bool{hasUser, hasKey, hasRefresh} {
		if set {
			groups++
		}
	}

	switch {
	case groups == 0:
		errs = append(errs, "one of username/password, api_key or refresh_token is required")
	case groups > 1:
		if hasUser && hasKey {
			errs = append(errs, "username/password and api_key are mutually exclusive")
		}
		if hasUser && hasRefresh {
			errs = append(errs, "username/password and refresh_token are mutually exclusive")
		}
		if hasKey && hasRefresh {
			errs = append(errs, "api_key and refresh_token are mutually exclusive")
		}
	}
	if hasUser {
		if r.Username == "" {
			errs = append(errs, "username is required when password is set")
		}
		if r.Password == "" {
			errs = append(errs, "password is required when username is set")
		}
	}
	if len(errs) > 0 {
		return GrantUnknown, errs
	}

	switch {
	case hasUser:
		return GrantUser, nil
	case hasKey:
		return GrantClient, nil
	default:
		return GrantRefresh, nil
	}
}

// TokenResponse is the token endpoint success payload.
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RevokeRequest identifies the refresh token to revoke by owning principal id
// plus the opaque token string. Exactly one of ClientID or UserID is set.
type RevokeRequest struct {
	ClientID     int    `json:"client_id,omitempty"`
	UserID       int    `json:"user_id,omitempty"`
	RefreshToken string `json:"refresh_token"`
}

// RevokeResponse echoes the revoked token together with the revocation
// timestamp written to the store.
type RevokeResponse struct {
	ClientID int        `json:"client_id,omitempty"`
	UserID   int        `json:"user_id,omitempty"`
	Token    string     `json:"token"`
	Revoked  *time.Time `json:"revoked"`
}

// TokenStatus classifies the outcome of token verification.
type TokenStatus uint8

const (
	// TokenValid means the signature, issuer, audience, and expiry all checked out.
	TokenValid TokenStatus = iota
	// TokenExpired means the signature checked out but the token is past expiry.
	TokenExpired
	// TokenInvalid covers every other verification failure.
	TokenInvalid
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// TokenResult is returned by [Engine.VerifyToken].
type TokenResult struct {
	IsAuthenticated bool        `json:"is_authenticated"`
	Status          TokenStatus `json:"-"`
	StatusText      string      `json:"status"`
}

// Recognized claim names. Custom claim requests are validated against this
// set before issuance; anything else is rejected.
const (
	ClaimPublicKey  = "public_key"
	ClaimGivenName  = "given_name"
	ClaimFamilyName = "family_name"
	ClaimEmail      = "email"
	ClaimName       = "name"
	ClaimSlug       = "slug"
	ClaimRole       = "role"
)

var recognizedClaims = map[string]struct{}{
	ClaimPublicKey:  {},
	ClaimGivenName:  {},
	ClaimFamilyName: {},
	ClaimEmail:      {},
	ClaimName:       {},
	ClaimSlug:       {},
	ClaimRole:       {},
}

// RecognizedClaim reports whether name belongs to the fixed claim set.
func RecognizedClaim(name string) bool {
	_, ok := recognizedClaims[name]
	return ok
}

// RecognizedClaims lists the fixed claim set in declaration order.
func RecognizedClaims() []string {
	return []string{
		ClaimPublicKey, ClaimGivenName, ClaimFamilyName,
		ClaimEmail, ClaimName, ClaimSlug, ClaimRole,
	}
}
