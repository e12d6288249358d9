package circulation

import (
	"time"
)

// Loan is a row of the loan ledger.
//
// A loan with a zero ReturnDate is open: the item is out with the user.
// Closing a loan sets ReturnDate instead of deleting the row, so the ledger
// doubles as the loan history. For any item at most one loan is open at a
// time; this mirrors the item's availability flag.
type Loan struct {
	ID         LoanIDInt
	UserID     UserIDInt
	ItemID     ItemIDInt
	LoanDate   time.Time
	ReturnDate time.Time
}

// IsOpen reports whether the loan has not been returned yet.
func (l Loan) IsOpen() bool {
	return l.ReturnDate.IsZero()
}

// LoanRecord is a loan joined with a snapshot of the borrowed item, as
// returned by the current-loans and loan-history queries.
type LoanRecord struct {
	LoanID     LoanIDInt
	Item       Item
	LoanDate   time.Time
	DueDate    time.Time
	ReturnDate time.Time
}
