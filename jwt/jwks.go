package jwt

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"math/big"
)

// JWK is the JSON Web Key rendering of an RSA verification key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet is the JWKS endpoint payload.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// PublicJWKSet renders every configured RSA verification key as a JWK with
// use=sig and alg=RS256. It fails when no kind is configured for rs256;
// symmetric keys are never published.
func (m *Manager) PublicJWKSet() (*JWKSet, error) {
	var keys []JWK
	seen := map[string]struct{}{}

	for _, kind := range []Kind{KindUser, KindClient} {
		pub := m.VerificationKey(kind)
		if pub == nil {
			continue
		}
		jwk := rsaJWK(pub)
		if _, dup := seen[jwk.N]; dup {
			continue
		}
		seen[jwk.N] = struct{}{}
		keys = append(keys, jwk)
	}

	if len(keys) == 0 {
		return nil, errors.New("no rsa verification keys configured")
	}
	return &JWKSet{Keys: keys}, nil
}

func rsaJWK(pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}
