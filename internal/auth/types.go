package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// User is a provisioned credential record. The hash, salt, and iteration
// count together form the PBKDF2 verification parameters; they are
// immutable once stored except by explicit re-provisioning.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // hex-encoded, never serialised
	Salt         string    `json:"-"` // hex-encoded, never serialised
	Iterations   int       `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// StoredToken is the durable form of an access token as persisted in the
// access_tokens table.
type StoredToken struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// SessionKeys holds the per-session encryption material supplied by a
// client at login. Both fields are optional; they are only used when the
// transport-encryption policy is active.
type SessionKeys struct {
	// ClientKey is the client's RSA public key (base64 SPKI), used to
	// encrypt responses addressed specifically to this client.
	ClientKey string

	// AESKey is the negotiated symmetric session key for bulk traffic.
	AESKey []byte
}

// Sentinel errors for the auth package.
var (
	// ErrUserNotFound is returned when a user lookup finds no record.
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameExists is returned when creating a user with a taken username.
	ErrUsernameExists = errors.New("username already exists")

	// ErrInvalidUsername is returned for usernames failing format validation.
	ErrInvalidUsername = errors.New("invalid username format")

	// ErrMalformedRecord is returned when a stored credential record cannot
	// be decoded (corrupt salt or hash encoding).
	ErrMalformedRecord = errors.New("malformed credential record")
)
