package authd

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned when a requested user, client, role, or refresh
	// token does not exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials is returned when a username resolves but the
	// password does not verify.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned for tokens that fail cryptographic
	// verification.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenExpired is returned for tokens whose signature verifies but
	// whose expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for tokens with a bad signature, issuer,
	// or audience.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrUnsupportedAlgorithm is returned when configuration names a signing
	// algorithm outside the supported set.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	// ErrInvalidKeyType is returned when an opaque key's embedded type tag
	// does not match the expected entity type.
	ErrInvalidKeyType = errors.New("invalid key type")
	// ErrHashFormat is returned when a stored password hash does not parse.
	// This indicates server-side data corruption, not caller error.
	ErrHashFormat = errors.New("invalid password hash format")
	// ErrDuplicateUsername is returned when account creation collides with an
	// existing non-deleted user.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrDuplicateSlug is returned when client creation collides with an
	// existing slug.
	ErrDuplicateSlug = errors.New("slug already exists")
	// ErrEngineNotReady is returned when Engine methods are called before a
	// successful Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError carries field-level messages for a malformed or ambiguous
// request. It maps to a 400 at the boundary.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// NewValidationError builds a ValidationError from field messages.
func NewValidationError(msgs ...string) *ValidationError {
	return &ValidationError{Errors: msgs}
}

// FriendlyError is a caller-facing business-rule violation with an explicit
// HTTP-equivalent status code. The boundary translator exposes its message
// verbatim in both development and production modes.
type FriendlyError struct {
	Code    int
	Message string
	Err     error
}

func (e *FriendlyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FriendlyError) Unwrap() error { return e.Err }

// StatusCode maps an engine error to its HTTP-equivalent status. Unrecognized
// errors map to 500; the boundary decides how much of them to expose.
func StatusCode(err error) int {
	var friendly *FriendlyError
	var validation *ValidationError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &friendly):
		return friendly.Code
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidCredentials):
		// Preserved behavior: wrong password maps to 400, not 401. Flagged
		// for product review; do not change without an API version bump.
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnsupportedAlgorithm),
		errors.Is(err, ErrInvalidKeyType):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateUsername),
		errors.Is(err, ErrDuplicateSlug):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
