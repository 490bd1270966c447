package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind identifies the principal variety a token is issued for. Signing
// configuration is keyed by Kind; there is no runtime type inspection.
type Kind uint8

const (
	// KindUser is an end-user account principal.
	KindUser Kind = iota
	// KindClient is a machine client principal.
	KindClient
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// Algorithm names the supported signing algorithm families.
type Algorithm string

const (
	// AlgRS256 is RSA with SHA-256 (asymmetric).
	AlgRS256 Algorithm = "rs256"
	// AlgHS256 is HMAC with SHA-256 (symmetric).
	AlgHS256 Algorithm = "hs256"
)

var (
	// ErrExpired is returned for tokens whose signature verifies but whose
	// expiry has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned for any other verification failure: bad
	// signature, wrong issuer or audience, malformed token.
	ErrInvalid = errors.New("invalid token")
	// ErrUnsupportedAlgorithm is returned at construction for algorithm
	// names outside the supported set.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// KeyConfig is the per-kind algorithm and key material entry.
type KeyConfig struct {
	Algorithm     Algorithm
	RSAPrivateKey []byte // PEM, required for rs256
	RSAPublicKey  []byte // PEM, required for rs256
	Secret        []byte // required for hs256
}

// Config defines Manager configuration. Config instances are intended to be
// populated during initialization and then treated as immutable.
type Config struct {
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	Keys      map[Kind]KeyConfig
}

// Claims is the claim set embedded in issued tokens. User tokens carry
// given_name, family_name, and email; client tokens carry name and slug.
// Every token carries the principal's public key.
type Claims struct {
	PublicKey  string `json:"public_key,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	Slug       string `json:"slug,omitempty"`
	jwt.RegisteredClaims
}

type credentials struct {
	algorithm Algorithm
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// Manager issues and verifies tokens. Key material is parsed exactly once at
// construction; Manager methods are safe for concurrent use.
type Manager struct {
	config Config
	creds  map[Kind]*credentials
}

// NewManager resolves one credential set per configured kind and fails fast
// on unsupported algorithms or unusable key material.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.Keys) == 0 {
		return nil, errors.New("at least one kind must be configured")
	}

	creds := make(map[Kind]*credentials, len(cfg.Keys))
	for kind, kc := range cfg.Keys {
		c, err := buildCredentials(kc)
		if err != nil {
			return nil, fmt.Errorf("kind %s: %w", kind, err)
		}
		creds[kind] = c
	}

	return &Manager{config: cfg, creds: creds}, nil
}

func buildCredentials(kc KeyConfig) (*credentials, error) {
	switch kc.Algorithm {
	case AlgRS256:
		if len(kc.RSAPrivateKey) == 0 || len(kc.RSAPublicKey) == 0 {
			return nil, errors.New("rs256 requires private and public key material")
		}
		priv, err := jwt.ParseRSAPrivateKeyFromPEM(kc.RSAPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid rsa private key: %w", err)
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(kc.RSAPublicKey)
		if err != nil {
			return nil, fmt.Errorf("invalid rsa public key: %w", err)
		}
		return &credentials{
			algorithm: AlgRS256,
			method:    jwt.SigningMethodRS256,
			signKey:   priv,
			verifyKey: pub,
		}, nil
	case AlgHS256:
		if len(kc.Secret) == 0 {
			return nil, errors.New("hs256 requires a secret")
		}
		return &credentials{
			algorithm: AlgHS256,
			method:    jwt.SigningMethodHS256,
			signKey:   kc.Secret,
			verifyKey: kc.Secret,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, kc.Algorithm)
	}
}

func (m *Manager) credentialsFor(kind Kind) (*credentials, error) {
	c, ok := m.creds[kind]
	if !ok {
		return nil, fmt.Errorf("no signing configuration for kind %s", kind)
	}
	return c, nil
}

// AlgorithmFor reports the algorithm resolved for kind, or empty when the
// kind is not configured.
func (m *Manager) AlgorithmFor(kind Kind) Algorithm {
	if c, ok := m.creds[kind]; ok {
		return c.algorithm
	}
	return ""
}

// Issue signs a token of the given kind. A non-positive ttl falls back to the
// configured access TTL. It returns the compact token and the expiry window
// in whole seconds.
func (m *Manager) Issue(kind Kind, claims Claims, ttl time.Duration) (string, int, error) {
	c, err := m.credentialsFor(kind)
	if err != nil {
		return "", 0, err
	}

	if ttl <= 0 {
		ttl = m.config.AccessTTL
	}

	now := time.Now()
	claims.Issuer = m.config.Issuer
	claims.Audience = jwt.ClaimStrings{m.config.Audience}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token, err := jwt.NewWithClaims(c.method, claims).SignedString(c.signKey)
	if err != nil {
		return "", 0, err
	}
	return token, int(ttl.Seconds()), nil
}

// ParseAs verifies tokenStr against the credentials for kind. Signature,
// issuer, audience, and expiry are all required checks. An expired token
// surfaces as [ErrExpired]; every other failure surfaces as [ErrInvalid].
func (m *Manager) ParseAs(kind Kind, tokenStr string) (*Claims, error) {
	c, err := m.credentialsFor(kind)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Parse verifies tokenStr without a caller-declared kind. The kind is
// inferred from the unverified claim set before verification: any token
// carrying a given_name claim is treated as a user token, everything else as
// a client token. This disambiguation rule is relied upon by callers; do not
// change it without coordinating the token consumers.
func (m *Manager) Parse(tokenStr string) (*Claims, Kind, error) {
	kind, err := m.SniffKind(tokenStr)
	if err != nil {
		return nil, kind, err
	}

	claims, err := m.ParseAs(kind, tokenStr)
	return claims, kind, err
}

// SniffKind inspects tokenStr without verifying its signature and reports
// which kind it appears to be issued for.
func (m *Manager) SniffKind(tokenStr string) (Kind, error) {
	var sniffed Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &sniffed); err != nil {
		return KindClient, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if sniffed.GivenName != "" {
		return KindUser, nil
	}
	return KindClient, nil
}

// VerificationKey returns the RSA public key for kind, or nil when the kind
// is not configured for rs256. hs256 secrets are never exposed.
func (m *Manager) VerificationKey(kind Kind) *rsa.PublicKey {
	c, ok := m.creds[kind]
	if !ok || c.algorithm != AlgRS256 {
		return nil
	}
	pub, _ := c.verifyKey.(*rsa.PublicKey)
	return pub
}
