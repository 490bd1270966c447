package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	minIterations = 1000
	minSaltSize   = 16
	minKeySize    = 16
)

// ErrFormat is returned when a stored hash does not split into exactly three
// dot-delimited parts or a part fails to decode. It signals corrupt stored
// data, not a wrong password.
var ErrFormat = errors.New("invalid stored hash format")

// Config carries PBKDF2 derivation parameters. Config instances are intended
// to be populated during initialization and then treated as immutable.
type Config struct {
	Iterations int
	SaltSize   int
	KeySize    int
}

// Hasher derives and verifies stored password hashes.
type Hasher struct {
	config Config
}

// NewHasher validates the derivation parameters and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Iterations < minIterations {
		return nil, errors.New("password iterations must be >= 1000")
	}
	if cfg.SaltSize < minSaltSize {
		return nil, errors.New("password salt size must be >= 16")
	}
	if cfg.KeySize < minKeySize {
		return nil, errors.New("password key size must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives a stored hash for password using a fresh random salt.
// Output format: {iterations}.{base64 salt}.{base64 derived key}.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.config.SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := pbkdf2.Key([]byte(password), salt, h.config.Iterations, h.config.KeySize, sha256.New)

	return fmt.Sprintf(
		"%d.%s.%s",
		h.config.Iterations,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the candidate against the parameters embedded in encoded
// and compares the keys in constant time. A mismatch returns (false, nil);
// only a malformed stored hash returns an error.
func (h *Hasher) Verify(encoded, candidate string) (bool, error) {
	iterations, salt, key, err := parseStored(encoded)
	if err != nil {
		return false, err
	}

	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(key), sha256.New)

	return subtle.ConstantTimeCompare(derived, key) == 1, nil
}

func parseStored(encoded string) (int, []byte, []byte, error) {
	parts := strings.Split(encoded, ".")
	if len(parts) != 3 {
		return 0, nil, nil, ErrFormat
	}

	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations < 1 {
		return 0, nil, nil, fmt.Errorf("%w: bad iteration count", ErrFormat)
	}

	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, fmt.Errorf("%w: bad salt encoding", ErrFormat)
	}

	key, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(key) == 0 {
		return 0, nil, nil, fmt.Errorf("%w: bad key encoding", ErrFormat)
	}

	return iterations, salt, key, nil
}
