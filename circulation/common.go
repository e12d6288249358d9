package circulation

import (
	"errors"
)

// Business outcomes. These are expected results of circulation operations,
// not infrastructure failures, and callers are expected to branch on them.
var (
	// ErrItemUnavailable is returned when a borrow is attempted for an item
	// that is missing from the catalog or currently on loan.
	ErrItemUnavailable = errors.New("item is not available for borrowing")

	// ErrItemNotFound is returned when a referenced item id does not exist.
	ErrItemNotFound = errors.New("item does not exist")

	// ErrLoanNotFound is returned when a return is attempted for a loan id
	// that does not exist or is already closed.
	ErrLoanNotFound = errors.New("no open loan with that id")

	// ErrAlreadyReserved is returned when a user already holds an active
	// reservation for the item.
	ErrAlreadyReserved = errors.New("an active reservation already exists for this user and item")
)

// Infrastructure failures. An underlying storage error is always joined to
// one of these sentinels; partial writes are rolled back before they surface.
var (
	ErrNilDatabaseConnection     = errors.New("nil database connection supplied")
	ErrEmptyTableName            = errors.New("empty table name supplied")
	ErrNilClock                  = errors.New("nil clock supplied")
	ErrBeginningTxFailed         = errors.New("beginning transaction failed")
	ErrCommittingTxFailed        = errors.New("committing transaction failed")
	ErrBorrowingItemFailed       = errors.New("borrowing item failed")
	ErrReturningItemFailed       = errors.New("returning item failed")
	ErrReservingItemFailed       = errors.New("reserving item failed")
	ErrBuildingQueryFailed       = errors.New("building sql query failed")
	ErrQueryingCatalogFailed     = errors.New("querying the catalog failed")
	ErrQueryingLoansFailed       = errors.New("querying loans failed")
	ErrScanningDBRowFailed       = errors.New("scanning database row failed")
	ErrGettingRowsAffectedFailed = errors.New("getting rows affected count failed")
)

// ItemIDInt is a type alias for int64, representing the id of a catalog item.
type ItemIDInt = int64

// UserIDInt is a type alias for int64, representing the id of a library user.
type UserIDInt = int64

// LoanIDInt is a type alias for int64, representing the id of a loan row.
type LoanIDInt = int64
