package authd

import (
	"errors"
	"time"
)

// Config defines engine configuration. Config instances are intended to be
// populated during initialization and then treated as immutable.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	Refresh  RefreshConfig
	Cache    CacheConfig
	OpenID   OpenIDConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig carries signing configuration. Algorithms are resolved per
// principal kind at Build time; the per-kind entries fall back to
// DefaultAlgorithm when empty.
type JWTConfig struct {
	Issuer    string
	Audience  string
	AccessTTL time.Duration

	DefaultAlgorithm string // "rs256" (default) or "hs256"
	UserAlgorithm    string // optional per-kind override
	ClientAlgorithm  string // optional per-kind override

	// RSA key material, PEM-encoded. Required when any kind resolves to rs256.
	RSAPrivateKey []byte
	RSAPublicKey  []byte

	// Shared secret. Required when any kind resolves to hs256.
	Secret []byte
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries PBKDF2 derivation parameters.
type PasswordConfig struct {
	Iterations int
	SaltSize   int
	KeySize    int
}

/*
====================================
REFRESH TOKEN CONFIG
====================================
*/

// RefreshConfig carries refresh-token lifecycle parameters.
type RefreshConfig struct {
	TTL time.Duration
	// TokenLength is the random byte count of the opaque token body.
	TokenLength int
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig gates the read-through entity cache. When Enabled is false
// every lookup goes straight to the store.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

/*
====================================
OPENID CONFIG
====================================
*/

// OpenIDConfig gates the discovery document and JWKS endpoints.
type OpenIDConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:           "authd",
			Audience:         "authd",
			AccessTTL:        15 * time.Minute,
			DefaultAlgorithm: "rs256",
		},
		Password: PasswordConfig{
			Iterations: 10000,
			SaltSize:   16,
			KeySize:    32,
		},
		Refresh: RefreshConfig{
			TTL:         24 * time.Hour,
			TokenLength: 32,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     15 * time.Minute,
		},
	}
}

func (c Config) validate() error {
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return errors.New("jwt issuer and audience are required")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("invalid access TTL configuration")
	}
	if c.Password.Iterations < 1000 {
		return errors.New("password iterations must be >= 1000")
	}
	if c.Password.SaltSize < 16 {
		return errors.New("password salt size must be >= 16")
	}
	if c.Password.KeySize < 16 {
		return errors.New("password key size must be >= 16")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("invalid refresh TTL configuration")
	}
	if c.Refresh.TokenLength < 16 {
		return errors.New("refresh token length must be >= 16")
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return errors.New("cache TTL must be positive when caching is enabled")
	}
	return nil
}
