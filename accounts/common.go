package accounts

import (
	"errors"
	"time"
)

// Lockout policy applied by Authenticate.
const (
	MaxLoginAttempts = 5
	LockoutDuration  = 15 * time.Minute
)

// Business outcomes of account operations.
var (
	// ErrInvalidCredentials is returned when the username is unknown or the
	// password does not match. The two cases are deliberately not
	// distinguishable from the outside.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAccountLocked is returned while the lockout window from too many
	// failed login attempts is still open.
	ErrAccountLocked = errors.New("account is temporarily locked")

	// ErrUsernameTaken is returned when a signup uses a username that
	// already exists.
	ErrUsernameTaken = errors.New("username is already taken")

	// ErrUserNotFound is returned when a referenced user id does not exist.
	ErrUserNotFound = errors.New("user does not exist")
)

// Validation failures, returned before any database access happens.
var (
	ErrInvalidUsername = errors.New("username must be 3-50 characters of letters, digits, or underscores")
	ErrInvalidEmail    = errors.New("email address is not valid")
	ErrInvalidName     = errors.New("name must not be empty")
	ErrWeakPassword    = errors.New("password must be at least 8 characters")
)

// Infrastructure failures. An underlying storage error is always joined to
// one of these sentinels.
var (
	ErrSigningUpFailed        = errors.New("signing up user failed")
	ErrAuthenticatingFailed   = errors.New("authenticating user failed")
	ErrUpdatingProfileFailed  = errors.New("updating profile failed")
	ErrUpdatingPasswordFailed = errors.New("updating password failed")
)
