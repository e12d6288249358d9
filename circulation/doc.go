// Package circulation provides core abstractions and types for the
// transactional lending core of a library-management system.
//
// This package defines the domain types and common building blocks used by
// the database-specific engine implementations: catalog items, loans,
// reservations, the item search filter, and common error definitions.
//
// The catalog can be searched with a composable filter based on:
//   - Item types (Book, Magazine, Media)
//   - Per-field substring predicates (title, author, ISBN, ...)
//   - Sort order and pagination
//
// Key types:
//   - Item: a catalog entry with a type tag and an availability flag
//   - Loan: a ledger row; an open loan has no return date
//   - Reservation: advisory intent to borrow, with an expiry
//   - ItemFilter: criteria for searching and browsing the catalog
//
// Common usage pattern:
//
//	filter := circulation.BuildItemFilter().
//		Matching().
//		AnyItemTypeOf(circulation.ItemTypeBook, circulation.ItemTypeMagazine).
//		AndAnyFieldContaining(circulation.F(circulation.FieldTitle, "domain")).
//		Finalize()
//
//	items, err := store.FindItems(ctx, filter)
//	if err != nil {
//		// handle error
//	}
package circulation
