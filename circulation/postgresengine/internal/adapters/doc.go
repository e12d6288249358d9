// Package adapters provide database adapter implementations for the PostgreSQL circulation engine.
//
// This package implements the adapter pattern to support multiple PostgreSQL database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface, allowing the circulation engine to work seamlessly with any
// supported database connection type.
//
// On top of plain query/exec execution the adapters expose transactions through
// the DBTx interface, so the engine can hold a row lock across its
// check-then-write sequences regardless of the underlying library.
package adapters
