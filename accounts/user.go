package accounts

import (
	"regexp"
	"strings"
	"time"

	"github.com/parkdalelib/circulation-go/circulation"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

const minPasswordLength = 8

// Role names as stored in the user_roles table.
const (
	RoleUser      = "USER"
	RoleLibrarian = "LIBRARIAN"
)

// User is a library account. PasswordHash is the bcrypt hash of the
// password, never the password itself.
type User struct {
	ID           circulation.UserIDInt
	Username     string
	PasswordHash string
	Name         string
	Email        string
	Roles        []string

	FailedAttempts int
	LockedUntil    time.Time
}

// IsLocked reports whether the lockout window is still open at the given time.
func (u User) IsLocked(now time.Time) bool {
	return u.LockedUntil.After(now)
}

// HasRole reports whether the user carries the given role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}

	return false
}

// ValidateUsername checks the username against the account naming rules.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}

	return nil
}

// ValidateEmail checks that the address has the shape of an email address.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}

	return nil
}

// ValidateName checks that the display name is not blank.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}

	return nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}

	return nil
}
