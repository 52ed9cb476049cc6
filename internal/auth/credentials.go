package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when a username/password pair does not match the target role.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for malformed, expired or tampered session tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Role is the portal role a request acts as. The role name doubles as the username.
type Role string

const (
	RoleAttorney Role = "attorney"
	RoleClient   Role = "client"
)

// ParseRole maps a username to a Role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.TrimSpace(s)) {
	case RoleAttorney:
		return RoleAttorney, true
	case RoleClient:
		return RoleClient, true
	default:
		return "", false
	}
}

// Credentials is the static role to password table.
type Credentials struct {
	passwords map[Role]string
}

// NewCredentials builds the table. An empty password disables its role. Values starting with a
// bcrypt prefix are compared as bcrypt hashes.
func NewCredentials(attorneyPassword, clientPassword string) *Credentials {
	return &Credentials{passwords: map[Role]string{
		RoleAttorney: attorneyPassword,
		RoleClient:   clientPassword,
	}}
}

// Enabled reports whether a password is configured for role.
func (c *Credentials) Enabled(role Role) bool {
	return c != nil && c.passwords[role] != ""
}

// Check succeeds only when username names the target role and password matches that role's
// configured password.
func (c *Credentials) Check(username, password string, target Role) error {
	if c == nil || Role(username) != target {
		return ErrInvalidCredentials
	}
	configured := c.passwords[target]
	if configured == "" || password == "" {
		return ErrInvalidCredentials
	}
	if isBcryptHash(configured) {
		if bcrypt.CompareHashAndPassword([]byte(configured), []byte(password)) != nil {
			return ErrInvalidCredentials
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(configured), []byte(password)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// HashPassword returns a bcrypt hash suitable for ATTORNEY_PASS / CLIENT_PASS.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
