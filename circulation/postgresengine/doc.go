// Package postgresengine provides the PostgreSQL implementation of the
// circulation store.
//
// The engine works with multiple database adapters (pgx.Pool, sql.DB, sqlx.DB)
// through an internal adapter interface, so callers hand in whichever open
// connection handle their application already manages. The engine never opens
// or closes connections itself.
//
// Create a store with one of the factories:
//
//	store, err := postgresengine.NewCirculationStoreFromPGXPool(pool)
//	store, err := postgresengine.NewCirculationStoreFromSQLDB(db)
//	store, err := postgresengine.NewCirculationStoreFromSQLX(db)
//
// Functional options configure table names, logging, metrics, tracing, and
// the time source:
//
//	store, err := postgresengine.NewCirculationStoreFromPGXPool(
//		pool,
//		postgresengine.WithItemsTableName("catalog"),
//		postgresengine.WithLogger(logger),
//		postgresengine.WithMetrics(collector),
//	)
//
// The lending operations (BorrowItem, ReturnItem, ReserveItem) each run in a
// single database transaction and report business outcomes as sentinel errors
// from the circulation package. The catalog and loan queries honor the
// consistency level carried in the context: under
// circulation.WithEventualConsistency a store created with
// NewCirculationStoreFromPGXPoolWithReplica serves them from the replica.
package postgresengine
