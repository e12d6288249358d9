// Package fixtures provides an embedded sample catalog for seeding test
// databases with a realistic mix of books, magazines, and media items.
package fixtures
