package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/parkdalelib/circulation-go/circulation"
	"github.com/parkdalelib/circulation-go/circulation/postgresengine/internal/adapters"
)

const (
	defaultItemsTableName        = "library_items"
	defaultLoansTableName        = "loans"
	defaultReservationsTableName = "reservations"

	logMsgBuildQueryFailed     = "failed to build sql query"
	logMsgBeginTxFailed        = "failed to begin transaction"
	logMsgCommitTxFailed       = "failed to commit transaction"
	logMsgRollbackTxFailed     = "failed to roll back transaction"
	logMsgDBQueryFailed        = "database query execution failed"
	logMsgDBExecFailed         = "database statement execution failed"
	logMsgCloseRowsFailed      = "failed to close database rows"
	logMsgScanRowFailed        = "failed to scan database row"
	logMsgRowsAffectedFailed   = "failed to get rows affected count"
	logMsgItemBorrowed         = "item borrowed"
	logMsgItemReturned         = "item returned"
	logMsgItemReserved         = "item reserved"
	logMsgItemUnavailable      = "borrow rejected, item unavailable"
	logMsgLoanNotFound         = "return rejected, no open loan"
	logMsgAlreadyReserved      = "reservation rejected, active reservation exists"
	logMsgSQLExecuted          = "executed sql for: "
	logMsgOperation            = "circulation operation: "
	logAttrError               = "error"
	logAttrQuery               = "query"
	logAttrOperationID         = "operation_id"
	logAttrItemID              = "item_id"
	logAttrUserID              = "user_id"
	logAttrLoanID              = "loan_id"
	logAttrReservationID       = "reservation_id"
	logAttrDurationMS          = "duration_ms"

	colItemID          = "item_id"
	colTitle           = "title"
	colItemType        = "type"
	colIsAvailable     = "is_available"
	colAuthor          = "author"
	colISBN            = "isbn"
	colPublisher       = "publisher"
	colISSN            = "issn"
	colDirector        = "director"
	colCatalogNumber   = "catalog_number"
	colLoanID          = "loan_id"
	colUserID          = "user_id"
	colLoanDate        = "loan_date"
	colReturnDate      = "return_date"
	colReservationID   = "reservation_id"
	colReservationDate = "reservation_date"
	colExpiryDate      = "expiry_date"

	dialectPostgres = "postgres"
)

type sqlQueryString = string

// CirculationStore provides the transactional lending operations of the
// library system on top of a PostgreSQL database. It enforces the invariant
// that an item is unavailable exactly while one open loan exists for it,
// using row-level locks inside single database transactions as the sole
// concurrency-control primitive.
type CirculationStore struct {
	db                    adapters.DBAdapter
	itemsTableName        string
	loansTableName        string
	reservationsTableName string
	logger                circulation.Logger
	contextualLogger      circulation.ContextualLogger
	metricsCollector      circulation.MetricsCollector
	tracingCollector      circulation.TracingCollector
	clock                 func() time.Time
}

// NewCirculationStoreFromPGXPool creates a new CirculationStore using a pgx pool with optional configuration.
func NewCirculationStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*CirculationStore, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newCirculationStore(adapters.NewPGXAdapter(db), options...)
}

// NewCirculationStoreFromPGXPoolWithReplica creates a new CirculationStore using a primary pgx pool
// for mutations and strongly consistent reads, and a replica pool for reads under
// circulation.WithEventualConsistency.
func NewCirculationStoreFromPGXPoolWithReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*CirculationStore, error) {
	if db == nil || replica == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newCirculationStore(adapters.NewPGXAdapterWithReplica(db, replica), options...)
}

// NewCirculationStoreFromSQLDB creates a new CirculationStore using a sql.DB with optional configuration.
func NewCirculationStoreFromSQLDB(db *sql.DB, options ...Option) (*CirculationStore, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newCirculationStore(adapters.NewSQLAdapter(db), options...)
}

// NewCirculationStoreFromSQLX creates a new CirculationStore using a sqlx.DB with optional configuration.
func NewCirculationStoreFromSQLX(db *sqlx.DB, options ...Option) (*CirculationStore, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newCirculationStore(adapters.NewSQLXAdapter(db), options...)
}

func newCirculationStore(db adapters.DBAdapter, options ...Option) (*CirculationStore, error) {
	es := &CirculationStore{
		db:                    db,
		itemsTableName:        defaultItemsTableName,
		loansTableName:        defaultLoansTableName,
		reservationsTableName: defaultReservationsTableName,
		clock:                 time.Now,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// BorrowItem lends the item to the user.
//
// The availability check and the two writes run in one transaction, with the
// item row locked by SELECT ... FOR UPDATE: two concurrent borrows of the
// same item serialize on that lock so at most one of them observes the item
// as available.
//
// Returns the created open circulation.Loan on success.
// Returns circulation.ErrItemUnavailable if the item is missing or on loan.
// Any storage error rolls the transaction back and is joined to
// circulation.ErrBorrowingItemFailed; no partial state becomes visible.
func (cs *CirculationStore) BorrowItem(
	ctx context.Context,
	itemID circulation.ItemIDInt,
	userID circulation.UserIDInt,
) (circulation.Loan, error) {

	var empty circulation.Loan

	ctx, span := cs.startOperationSpan(ctx, spanNameBorrow, itemID, userID)
	start := cs.clock()
	ctx = circulation.WithStrongConsistency(ctx)

	tx, beginErr := cs.db.Begin(ctx)
	if beginErr != nil {
		cs.logError(ctx, logMsgBeginTxFailed, beginErr)
		cs.finishOperationError(ctx, span, operationBorrow, errorTypeBegin, cs.since(start))

		return empty, errors.Join(circulation.ErrBorrowingItemFailed, circulation.ErrBeginningTxFailed, beginErr)
	}

	available, found, checkErr := cs.checkAvailabilityForUpdate(ctx, tx, itemID)
	if checkErr != nil {
		cs.rollback(ctx, tx)
		cs.finishOperationError(ctx, span, operationBorrow, errorTypeQuery, cs.since(start))

		return empty, errors.Join(circulation.ErrBorrowingItemFailed, checkErr)
	}

	if !found || !available {
		cs.rollback(ctx, tx)
		cs.logOperation(ctx, logMsgItemUnavailable, logAttrItemID, itemID, logAttrUserID, userID)
		cs.finishOperationRejected(ctx, span, operationBorrow, rejectionUnavailable, cs.since(start))

		return empty, circulation.ErrItemUnavailable
	}

	loan := circulation.Loan{
		UserID:   userID,
		ItemID:   itemID,
		LoanDate: cs.clock(),
	}

	loanID, insertErr := cs.insertLoan(ctx, tx, loan)
	if insertErr != nil {
		cs.rollback(ctx, tx)
		cs.finishOperationError(ctx, span, operationBorrow, errorTypeExec, cs.since(start))

		return empty, errors.Join(circulation.ErrBorrowingItemFailed, insertErr)
	}
	loan.ID = loanID

	if updateErr := cs.updateItemAvailability(ctx, tx, itemID, false); updateErr != nil {
		cs.rollback(ctx, tx)
		cs.finishOperationError(ctx, span, operationBorrow, errorTypeExec, cs.since(start))

		return empty, errors.Join(circulation.ErrBorrowingItemFailed, updateErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		cs.logError(ctx, logMsgCommitTxFailed, commitErr)
		cs.finishOperationError(ctx, span, operationBorrow, errorTypeCommit, cs.since(start))

		return empty, errors.Join(circulation.ErrBorrowingItemFailed, circulation.ErrCommittingTxFailed, commitErr)
	}

	cs.logOperation(ctx, logMsgItemBorrowed,
		logAttrItemID, itemID,
		logAttrUserID, userID,
		logAttrLoanID, loan.ID,
		logAttrDurationMS, cs.toMilliseconds(cs.since(start)))
	cs.finishOperationSuccess(ctx, span, operationBorrow, cs.since(start))

	return loan, nil
}

// ReturnItem closes the open loan and makes the item available again.
//
// Closing stamps the return date instead of deleting the row, so the loan
// moves from the current-loans partition into the history. The guard
// "AND return_date IS NULL" makes a second return of the same loan report
// circulation.ErrLoanNotFound rather than touching availability again.
func (cs *CirculationStore) ReturnItem(
	ctx context.Context,
	loanID circulation.LoanIDInt,
) (circulation.Loan, error) {

	var empty circulation.Loan

	ctx, span := cs.startOperationSpan(ctx, spanNameReturn, loanID, 0)
	start := cs.clock()
	ctx = circulation.WithStrongConsistency(ctx)

	tx, beginErr := cs.db.Begin(ctx)
	if beginErr != nil {
		cs.logError(ctx, logMsgBeginTxFailed, beginErr)
		cs.finishOperationError(ctx, span, operationReturn, errorTypeBegin, cs.since(start))

		return empty, errors.Join(circulation.ErrReturningItemFailed, circulation.ErrBeginningTxFailed, beginErr)
	}

	loan, found, closeErr := cs.closeLoan(ctx, tx, loanID)
	if closeErr != nil {
		cs.rollback(ctx, tx)
		cs.finishOperationError(ctx, span, operationReturn, errorTypeExec, cs.since(start))

		return empty, errors.Join(circulation.ErrReturningItemFailed, closeErr)
	}

	if !found {
		cs.rollback(ctx, tx)
		cs.logOperation(ctx, logMsgLoanNotFound, logAttrLoanID, loanID)
		cs.finishOperationRejected(ctx, span, operationReturn, rejectionLoanNotFound, cs.since(start))

		return empty, circulation.ErrLoanNotFound
	}

	if updateErr := cs.updateItemAvailability(ctx, tx, loan.ItemID, true); updateErr != nil {
		cs.rollback(ctx, tx)
		cs.finishOperationError(ctx, span, operationReturn, errorTypeExec, cs.since(start))

		return empty, errors.Join(circulation.ErrReturningItemFailed, updateErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		cs.logError(ctx, logMsgCommitTxFailed, commitErr)
		cs.finishOperationError(ctx, span, operationReturn, errorTypeCommit, cs.since(start))

		return empty, errors.Join(circulation.ErrReturningItemFailed, circulation.ErrCommittingTxFailed, commitErr)
	}

	cs.logOperation(ctx, logMsgItemReturned,
		logAttrLoanID, loanID,
		logAttrItemID, loan.ItemID,
		logAttrDurationMS, cs.toMilliseconds(cs.since(start)))
	cs.finishOperationSuccess(ctx, span, operationReturn, cs.since(start))

	return loan, nil
}

// ReserveItem records the user's intent to borrow the item later.
//
// The reservation is advisory: it never blocks another caller from borrowing
// the item and expires after the item type's reservation window. The insert
// is conditional on no active reservation existing for the same user and
// item, in one atomic statement, so a duplicate attempt reports
// circulation.ErrAlreadyReserved instead of creating a second row.
func (cs *CirculationStore) ReserveItem(
	ctx context.Context,
	itemID circulation.ItemIDInt,
	userID circulation.UserIDInt,
) (circulation.Reservation, error) {

	var empty circulation.Reservation

	ctx, span := cs.startOperationSpan(ctx, spanNameReserve, itemID, userID)
	start := cs.clock()
	ctx = circulation.WithStrongConsistency(ctx)

	item, getErr := cs.GetItem(ctx, itemID)
	if getErr != nil {
		cs.finishOperationError(ctx, span, operationReserve, errorTypeQuery, cs.since(start))

		return empty, getErr
	}

	now := cs.clock()
	reservation := circulation.Reservation{
		UserID:     userID,
		ItemID:     itemID,
		ReservedAt: now,
		ExpiresAt:  now.Add(item.Type.ReservationWindow()),
	}

	reservationID, inserted, insertErr := cs.insertReservationUnlessActive(ctx, reservation)
	if insertErr != nil {
		cs.finishOperationError(ctx, span, operationReserve, errorTypeExec, cs.since(start))

		return empty, errors.Join(circulation.ErrReservingItemFailed, insertErr)
	}

	if !inserted {
		cs.logOperation(ctx, logMsgAlreadyReserved, logAttrItemID, itemID, logAttrUserID, userID)
		cs.finishOperationRejected(ctx, span, operationReserve, rejectionAlreadyReserved, cs.since(start))

		return empty, circulation.ErrAlreadyReserved
	}

	reservation.ID = reservationID

	cs.logOperation(ctx, logMsgItemReserved,
		logAttrItemID, itemID,
		logAttrUserID, userID,
		logAttrReservationID, reservation.ID,
		logAttrDurationMS, cs.toMilliseconds(cs.since(start)))
	cs.finishOperationSuccess(ctx, span, operationReserve, cs.since(start))

	return reservation, nil
}

// checkAvailabilityForUpdate reads the availability flag inside the transaction,
// locking the item row until commit or rollback.
func (cs *CirculationStore) checkAvailabilityForUpdate(
	ctx context.Context,
	tx adapters.DBTx,
	itemID circulation.ItemIDInt,
) (available bool, found bool, err error) {

	selectStmt := goqu.Dialect(dialectPostgres).
		From(cs.itemsTableName).
		Select(colIsAvailable).
		Where(goqu.Ex{colItemID: itemID}).
		ForUpdate(exp.Wait)

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		cs.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return false, false, errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := cs.executeQuery(ctx, tx, sqlQuery)
	if queryErr != nil {
		return false, false, queryErr
	}
	defer cs.closeRows(rows)

	if !rows.Next() {
		return false, false, nil
	}

	if scanErr := rows.Scan(&available); scanErr != nil {
		cs.logError(ctx, logMsgScanRowFailed, scanErr)
		return false, false, errors.Join(circulation.ErrScanningDBRowFailed, scanErr)
	}

	return available, true, nil
}

// insertLoan creates the open loan row and returns its generated id.
func (cs *CirculationStore) insertLoan(
	ctx context.Context,
	tx adapters.DBTx,
	loan circulation.Loan,
) (circulation.LoanIDInt, error) {

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(cs.loansTableName).
		Rows(goqu.Record{
			colUserID:   loan.UserID,
			colItemID:   loan.ItemID,
			colLoanDate: loan.LoanDate,
		}).
		Returning(colLoanID)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		cs.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := cs.executeQuery(ctx, tx, sqlQuery)
	if queryErr != nil {
		return 0, queryErr
	}
	defer cs.closeRows(rows)

	var loanID circulation.LoanIDInt
	if !rows.Next() {
		return 0, circulation.ErrGettingRowsAffectedFailed
	}

	if scanErr := rows.Scan(&loanID); scanErr != nil {
		cs.logError(ctx, logMsgScanRowFailed, scanErr)
		return 0, errors.Join(circulation.ErrScanningDBRowFailed, scanErr)
	}

	return loanID, nil
}

// closeLoan stamps the return date on the open loan and reports whether a row matched.
func (cs *CirculationStore) closeLoan(
	ctx context.Context,
	tx adapters.DBTx,
	loanID circulation.LoanIDInt,
) (circulation.Loan, bool, error) {

	var empty circulation.Loan
	returnDate := cs.clock()

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(cs.loansTableName).
		Set(goqu.Record{colReturnDate: returnDate}).
		Where(goqu.Ex{
			colLoanID:     loanID,
			colReturnDate: nil,
		}).
		Returning(colUserID, colItemID, colLoanDate)

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		cs.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return empty, false, errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := cs.executeQuery(ctx, tx, sqlQuery)
	if queryErr != nil {
		return empty, false, queryErr
	}
	defer cs.closeRows(rows)

	if !rows.Next() {
		return empty, false, nil
	}

	loan := circulation.Loan{ID: loanID, ReturnDate: returnDate}
	if scanErr := rows.Scan(&loan.UserID, &loan.ItemID, &loan.LoanDate); scanErr != nil {
		cs.logError(ctx, logMsgScanRowFailed, scanErr)
		return empty, false, errors.Join(circulation.ErrScanningDBRowFailed, scanErr)
	}

	return loan, true, nil
}

// updateItemAvailability flips the availability flag inside the transaction.
func (cs *CirculationStore) updateItemAvailability(
	ctx context.Context,
	tx adapters.DBTx,
	itemID circulation.ItemIDInt,
	available bool,
) error {

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(cs.itemsTableName).
		Set(goqu.Record{colIsAvailable: available}).
		Where(goqu.Ex{colItemID: itemID})

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		cs.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	result, _, execErr := cs.executeStatement(ctx, tx, sqlQuery)
	if execErr != nil {
		return execErr
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		cs.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		return errors.Join(circulation.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	if rowsAffected == 0 {
		return circulation.ErrItemNotFound
	}

	return nil
}

// insertReservationUnlessActive inserts the reservation in one atomic statement
// that is a no-op when an active reservation for the same user and item exists.
// Reports the generated id and whether a row was inserted.
func (cs *CirculationStore) insertReservationUnlessActive(
	ctx context.Context,
	reservation circulation.Reservation,
) (int64, bool, error) {

	builder := goqu.Dialect(dialectPostgres)

	activeReservationStmt := builder.
		From(cs.reservationsTableName).
		Select(goqu.V(1)).
		Where(goqu.Ex{
			colUserID: reservation.UserID,
			colItemID: reservation.ItemID,
		}).
		Where(goqu.C(colExpiryDate).Gt(reservation.ReservedAt))

	selectStmt := builder.
		Select(
			goqu.V(reservation.UserID),
			goqu.V(reservation.ItemID),
			goqu.V(reservation.ReservedAt),
			goqu.V(reservation.ExpiresAt),
		).
		Where(goqu.L("NOT EXISTS ?", activeReservationStmt))

	insertStmt := builder.
		Insert(cs.reservationsTableName).
		Cols(colUserID, colItemID, colReservationDate, colExpiryDate).
		FromQuery(selectStmt).
		Returning(colReservationID)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		cs.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return 0, false, errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	start := cs.clock()
	rows, queryErr := cs.db.Query(ctx, sqlQuery)
	cs.logQueryWithDuration(ctx, sqlQuery, actionReserve, cs.clock().Sub(start))

	if queryErr != nil {
		cs.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return 0, false, queryErr
	}
	defer cs.closeRows(rows)

	if !rows.Next() {
		return 0, false, nil // no row inserted: an active reservation exists
	}

	var reservationID int64
	if scanErr := rows.Scan(&reservationID); scanErr != nil {
		cs.logError(ctx, logMsgScanRowFailed, scanErr)
		return 0, false, errors.Join(circulation.ErrScanningDBRowFailed, scanErr)
	}

	return reservationID, true, nil
}

// executeQuery executes the SQL query within the transaction and returns rows with timing information.
func (cs *CirculationStore) executeQuery(
	ctx context.Context,
	tx adapters.DBTx,
	sqlQuery string,
) (adapters.DBRows, time.Duration, error) {

	start := cs.clock()
	rows, queryErr := tx.Query(ctx, sqlQuery)
	duration := cs.clock().Sub(start)
	cs.logQueryWithDuration(ctx, sqlQuery, actionTxQuery, duration)

	if queryErr != nil {
		cs.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, duration, queryErr
	}

	return rows, duration, nil
}

// executeStatement executes the SQL statement within the transaction and returns the result with timing information.
func (cs *CirculationStore) executeStatement(
	ctx context.Context,
	tx adapters.DBTx,
	sqlQuery string,
) (adapters.DBResult, time.Duration, error) {

	start := cs.clock()
	result, execErr := tx.Exec(ctx, sqlQuery)
	duration := cs.clock().Sub(start)
	cs.logQueryWithDuration(ctx, sqlQuery, actionTxExec, duration)

	if execErr != nil {
		cs.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return nil, duration, execErr
	}

	return result, duration, nil
}

// rollback aborts the transaction, logging a warning when even that fails.
func (cs *CirculationStore) rollback(ctx context.Context, tx adapters.DBTx) {
	if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
		cs.logWarn(ctx, logMsgRollbackTxFailed, logAttrError, rollbackErr.Error())
	}
}

// closeRows safely closes database rows and logs any errors.
func (cs *CirculationStore) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		cs.logWarn(context.Background(), logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

func (cs *CirculationStore) since(start time.Time) time.Duration {
	return cs.clock().Sub(start)
}
