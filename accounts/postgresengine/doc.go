// Package postgresengine provides the PostgreSQL implementation of account
// storage: signup, authentication with the lockout policy, and profile
// maintenance. It takes an open pgx pool and never manages connections
// itself.
package postgresengine
