// Package helper provides testing utilities for the PostgreSQL circulation store test suite.
//
// This package contains Given-style fixtures for arranging catalog items and
// loans, and spies for the observability interfaces (logging, metrics,
// tracing) used to assert on instrumentation during tests.
package helper
