// Package config provides PostgreSQL database configuration for circulation
// store testing.
//
// This package contains factory functions for creating database connections
// using the supported PostgreSQL adapters (pgx.Pool, sql.DB, sqlx.DB) with
// pre-configured test database DSNs, including a primary/replica pair for
// testing replica routing with the pgx adapter.
package config
