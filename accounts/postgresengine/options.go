package postgresengine

import (
	"strings"
	"time"

	"github.com/parkdalelib/circulation-go/accounts"
	"github.com/parkdalelib/circulation-go/circulation"
)

// Option defines a functional option for configuring the AccountStore.
type Option func(*AccountStore) error

// WithUsersTableName sets a custom table name for accounts.
func WithUsersTableName(name string) Option {
	return func(as *AccountStore) error {
		if strings.TrimSpace(name) == "" {
			return circulation.ErrEmptyTableName
		}

		as.usersTableName = name

		return nil
	}
}

// WithRolesTableName sets a custom table name for the role assignments.
func WithRolesTableName(name string) Option {
	return func(as *AccountStore) error {
		if strings.TrimSpace(name) == "" {
			return circulation.ErrEmptyTableName
		}

		as.rolesTableName = name

		return nil
	}
}

// WithPasswordHasher replaces the default bcrypt hasher, mainly so tests
// can use a cheaper bcrypt cost.
func WithPasswordHasher(hasher accounts.PasswordHasher) Option {
	return func(as *AccountStore) error {
		as.hasher = hasher

		return nil
	}
}

// WithLogger sets a logger for operational logging and error reporting.
func WithLogger(logger circulation.Logger) Option {
	return func(as *AccountStore) error {
		as.logger = logger

		return nil
	}
}

// WithClock overrides the time source used by the lockout policy, for
// deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(as *AccountStore) error {
		if clock == nil {
			return circulation.ErrNilClock
		}

		as.clock = clock

		return nil
	}
}
