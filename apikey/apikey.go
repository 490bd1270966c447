// Package apikey produces and decodes type-tagged opaque credentials: client
// API keys and refresh tokens. A key embeds its entity type so a consumer can
// check what the key was minted for before spending a store lookup on it.
package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// DefaultLength is the random byte count used when Generate is called with a
// non-positive length.
const DefaultLength = 32

// Type tags for the entities keys are minted for.
const (
	TagClient  = "client"
	TagUser    = "user"
	TagRefresh = "refresh"
)

var (
	// ErrInvalidKeyType is returned when a key's embedded tag does not match
	// the expected entity type.
	ErrInvalidKeyType = errors.New("invalid key type")
	// ErrMalformedKey is returned when a key does not split into a tag and a
	// body or a part fails to decode.
	ErrMalformedKey = errors.New("malformed key")
)

// Generate mints an opaque key of length random bytes tagged with typeTag.
// Output format: {base64(lowercase tag)}.{base64(random bytes)}.
func Generate(typeTag string, length int) (string, error) {
	if typeTag == "" {
		return "", errors.New("type tag is required")
	}
	if length <= 0 {
		length = DefaultLength
	}

	body := make([]byte, length)
	if _, err := rand.Read(body); err != nil {
		return "", err
	}

	tag := base64.StdEncoding.EncodeToString([]byte(strings.ToLower(typeTag)))
	return tag + "." + base64.StdEncoding.EncodeToString(body), nil
}

// Decode splits key and verifies its embedded tag against expectedTag. The
// decoded tag is returned so callers can log what the key was actually minted
// for on mismatch.
func Decode(key, expectedTag string) (string, error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ErrMalformedKey
	}

	rawTag, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad tag encoding", ErrMalformedKey)
	}
	if _, err := base64.StdEncoding.DecodeString(parts[1]); err != nil {
		return "", fmt.Errorf("%w: bad body encoding", ErrMalformedKey)
	}

	tag := string(rawTag)
	if tag != strings.ToLower(expectedTag) {
		return tag, fmt.Errorf("%w: got %q, want %q", ErrInvalidKeyType, tag, strings.ToLower(expectedTag))
	}
	return tag, nil
}
