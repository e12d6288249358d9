// Package accounts holds the user account domain of the library system:
// the User type, credential validation rules, and password hashing.
//
// The PostgreSQL implementation of account storage and authentication lives
// in the postgresengine subpackage. Authentication applies a lockout policy:
// after MaxLoginAttempts consecutive failed logins an account is locked for
// LockoutDuration, and further attempts report ErrAccountLocked without
// touching the password hash.
package accounts
