package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/parkdalelib/circulation-go/circulation"
	"github.com/parkdalelib/circulation-go/circulation/postgresengine"
	"github.com/parkdalelib/circulation-go/testutil/postgresengine/config"
)

// Engine type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS library_items (
		item_id        BIGSERIAL PRIMARY KEY,
		title          TEXT    NOT NULL,
		type           TEXT    NOT NULL,
		is_available   BOOLEAN NOT NULL DEFAULT TRUE,
		author         TEXT,
		isbn           TEXT,
		publisher      TEXT,
		issn           TEXT,
		director       TEXT,
		catalog_number TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		loan_id     BIGSERIAL PRIMARY KEY,
		user_id     BIGINT      NOT NULL,
		item_id     BIGINT      NOT NULL REFERENCES library_items (item_id),
		loan_date   TIMESTAMPTZ NOT NULL,
		return_date TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_one_open_per_item
		ON loans (item_id) WHERE return_date IS NULL`,
	`CREATE TABLE IF NOT EXISTS reservations (
		reservation_id   BIGSERIAL PRIMARY KEY,
		user_id          BIGINT      NOT NULL,
		item_id          BIGINT      NOT NULL REFERENCES library_items (item_id),
		reservation_date TIMESTAMPTZ NOT NULL,
		expiry_date      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id         BIGSERIAL PRIMARY KEY,
		username        TEXT NOT NULL UNIQUE,
		password_hash   TEXT NOT NULL,
		name            TEXT NOT NULL,
		email           TEXT NOT NULL,
		failed_attempts INT  NOT NULL DEFAULT 0,
		locked_until    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id BIGINT NOT NULL REFERENCES users (user_id),
		role    TEXT   NOT NULL,
		PRIMARY KEY (user_id, role)
	)`,
}

// Wrapper interface to abstract over different engine types
type Wrapper interface {
	GetCirculationStore() *postgresengine.CirculationStore
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	pool *pgxpool.Pool
	cs   *postgresengine.CirculationStore
}

func (w *PGXPoolWrapper) GetCirculationStore() *postgresengine.CirculationStore {
	return w.cs
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// Pool exposes the underlying pool for account store tests.
func (w *PGXPoolWrapper) Pool() *pgxpool.Pool {
	return w.pool
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	db *sql.DB
	cs *postgresengine.CirculationStore
}

func (w *SQLDBWrapper) GetCirculationStore() *postgresengine.CirculationStore {
	return w.cs
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	db *sqlx.DB
	cs *postgresengine.CirculationStore
}

func (w *SQLXWrapper) GetCirculationStore() *postgresengine.CirculationStore {
	return w.cs
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the appropriate wrapper based on the ADAPTER_TYPE
// environment variable and makes sure the schema exists.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	engineTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	var wrapper Wrapper

	switch engineTypeFromEnv {
	case typePGXPool, "":
		connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolSingleConfig())
		assert.NoError(t, err, "error connecting to DB pool in test setup")

		cs, err := postgresengine.NewCirculationStoreFromPGXPool(connPool, options...)
		assert.NoError(t, err, "error creating circulation store")

		wrapper = &PGXPoolWrapper{pool: connPool, cs: cs}

	case typeSQLDB:
		db := config.PostgresSQLDBSingleConfig()

		cs, err := postgresengine.NewCirculationStoreFromSQLDB(db, options...)
		assert.NoError(t, err, "error creating circulation store")

		wrapper = &SQLDBWrapper{db: db, cs: cs}

	case typeSQLXDB:
		db := config.PostgresSQLXSingleConfig()

		cs, err := postgresengine.NewCirculationStoreFromSQLX(db, options...)
		assert.NoError(t, err, "error creating circulation store")

		wrapper = &SQLXWrapper{db: db, cs: cs}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", engineTypeFromEnv))
	}

	createSchema(t, wrapper)

	return wrapper
}

// TryCreateStoreWithTableName tries to create a circulation store with the given catalog
// table name and returns the error (for testing error cases)
func TryCreateStoreWithTableName(t testing.TB, tableName string) error {
	engineTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	options := []postgresengine.Option{postgresengine.WithItemsTableName(tableName)}

	switch engineTypeFromEnv {
	case typePGXPool, "":
		connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolSingleConfig())
		assert.NoError(t, err, "error connecting to DB pool in test setup")
		defer connPool.Close()

		_, err = postgresengine.NewCirculationStoreFromPGXPool(connPool, options...)
		return err

	case typeSQLDB:
		db := config.PostgresSQLDBSingleConfig()
		defer func(db *sql.DB) {
			_ = db.Close() // makes no sense to handle this
		}(db)

		_, err := postgresengine.NewCirculationStoreFromSQLDB(db, options...)
		return err

	case typeSQLXDB:
		db := config.PostgresSQLXSingleConfig()
		defer func(db *sqlx.DB) {
			_ = db.Close() // makes no sense to handle this
		}(db)

		_, err := postgresengine.NewCirculationStoreFromSQLX(db, options...)
		return err

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", engineTypeFromEnv))
	}
}

// CleanUp truncates all circulation tables for the given wrapper.
func CleanUp(t testing.TB, wrapper Wrapper) {
	execStatement(t, wrapper,
		"TRUNCATE TABLE reservations, loans, user_roles, users, library_items RESTART IDENTITY CASCADE")
}

func createSchema(t testing.TB, wrapper Wrapper) {
	for _, statement := range schemaStatements {
		execStatement(t, wrapper, statement)
	}
}

func execStatement(t testing.TB, wrapper Wrapper, statement string) {
	var err error

	switch w := wrapper.(type) {
	case *PGXPoolWrapper:
		_, err = w.pool.Exec(context.Background(), statement)

	case *SQLDBWrapper:
		_, err = w.db.Exec(statement)

	case *SQLXWrapper:
		_, err = w.db.Exec(statement)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", w))
	}

	assert.NoError(t, err, "error executing statement in test setup")
}

// CountRows returns the number of rows in the given table for the given wrapper.
func CountRows(t testing.TB, wrapper Wrapper, tableName string) int {
	var cnt int
	var err error

	query := fmt.Sprintf(`SELECT count(*) FROM %s`, tableName)

	switch w := wrapper.(type) {
	case *PGXPoolWrapper:
		row := w.pool.QueryRow(context.Background(), query)
		err = row.Scan(&cnt)

	case *SQLDBWrapper:
		row := w.db.QueryRow(query)
		err = row.Scan(&cnt)

	case *SQLXWrapper:
		row := w.db.QueryRow(query)
		err = row.Scan(&cnt)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", w))
	}

	assert.NoError(t, err, "error in arranging test data")
	return cnt
}

// SetItemAvailability flips the availability flag directly, bypassing the store,
// for arranging inconsistent or historic states in tests.
func SetItemAvailability(t testing.TB, wrapper Wrapper, itemID int64, available bool) {
	execStatement(t, wrapper,
		fmt.Sprintf(`UPDATE library_items SET is_available = %t WHERE item_id = %d`, available, itemID))
}

// CreateAccountsTestPool connects a pgx pool to the test database and makes
// sure the schema exists, for account store tests which are pgx-only.
func CreateAccountsTestPool(t testing.TB) *pgxpool.Pool {
	connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolSingleConfig())
	assert.NoError(t, err, "error connecting to DB pool in test setup")

	for _, statement := range schemaStatements {
		_, err = connPool.Exec(context.Background(), statement)
		assert.NoError(t, err, "error executing statement in test setup")
	}

	return connPool
}

// CleanUpAccounts truncates the account tables.
func CleanUpAccounts(t testing.TB, pool *pgxpool.Pool) {
	_, err := pool.Exec(context.Background(),
		"TRUNCATE TABLE user_roles, users RESTART IDENTITY CASCADE")
	assert.NoError(t, err, "error cleaning up the account tables")
}

// InsertItem adds a catalog row directly, bypassing the store, and returns the generated id.
func InsertItem(t testing.TB, wrapper Wrapper, item circulation.Item) int64 {
	insertStmt := goqu.Dialect("postgres").
		Insert("library_items").
		Rows(goqu.Record{
			"title":          item.Title,
			"type":           item.Type.String(),
			"is_available":   item.Available,
			"author":         nullable(item.Author),
			"isbn":           nullable(item.ISBN),
			"publisher":      nullable(item.Publisher),
			"issn":           nullable(item.ISSN),
			"director":       nullable(item.Director),
			"catalog_number": nullable(item.CatalogNumber),
		}).
		Returning("item_id")

	return queryRowScanInt64(t, wrapper, insertStmt.ToSQL)
}

func nullable(value string) any {
	if value == "" {
		return nil
	}

	return value
}

func queryRowScanInt64(t testing.TB, wrapper Wrapper, toSQL func() (string, []interface{}, error)) int64 {
	query, _, toSQLErr := toSQL()
	assert.NoError(t, toSQLErr, "error in arranging test data")

	var id int64
	var err error

	switch w := wrapper.(type) {
	case *PGXPoolWrapper:
		err = w.pool.QueryRow(context.Background(), query).Scan(&id)

	case *SQLDBWrapper:
		err = w.db.QueryRow(query).Scan(&id)

	case *SQLXWrapper:
		err = w.db.QueryRow(query).Scan(&id)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", w))
	}

	assert.NoError(t, err, "error in arranging test data")
	return id
}
