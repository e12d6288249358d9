package helper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parkdalelib/circulation-go/circulation"
	"github.com/parkdalelib/circulation-go/circulation/postgresengine"
	"github.com/parkdalelib/circulation-go/testutil/postgresengine/helper/postgreswrapper"
)

// FixtureBook builds an available book for the catalog.
func FixtureBook(title string, author string, isbn string) circulation.Item {
	return circulation.Item{
		Title:     title,
		Type:      circulation.ItemTypeBook,
		Available: true,
		Author:    author,
		ISBN:      isbn,
	}
}

// FixtureMagazine builds an available magazine for the catalog.
func FixtureMagazine(title string, publisher string, issn string) circulation.Item {
	return circulation.Item{
		Title:     title,
		Type:      circulation.ItemTypeMagazine,
		Available: true,
		Publisher: publisher,
		ISSN:      issn,
	}
}

// FixtureMedia builds an available media item for the catalog.
func FixtureMedia(title string, director string, catalogNumber string) circulation.Item {
	return circulation.Item{
		Title:         title,
		Type:          circulation.ItemTypeMedia,
		Available:     true,
		Director:      director,
		CatalogNumber: catalogNumber,
	}
}

// GivenBookInCatalog inserts a book and returns its id.
func GivenBookInCatalog(t testing.TB, wrapper postgreswrapper.Wrapper) int64 {
	return postgreswrapper.InsertItem(t, wrapper,
		FixtureBook("Learning Domain-Driven Design", "Vlad Khononov", "978-1-098-10013-1"))
}

// GivenMagazineInCatalog inserts a magazine and returns its id.
func GivenMagazineInCatalog(t testing.TB, wrapper postgreswrapper.Wrapper) int64 {
	return postgreswrapper.InsertItem(t, wrapper,
		FixtureMagazine("Communications of the ACM", "ACM", "0001-0782"))
}

// GivenMediaInCatalog inserts a media item and returns its id.
func GivenMediaInCatalog(t testing.TB, wrapper postgreswrapper.Wrapper) int64 {
	return postgreswrapper.InsertItem(t, wrapper,
		FixtureMedia("Koyaanisqatsi", "Godfrey Reggio", "MED-0001"))
}

// GivenItemInCatalog inserts the given item and returns its id.
func GivenItemInCatalog(t testing.TB, wrapper postgreswrapper.Wrapper, item circulation.Item) int64 {
	return postgreswrapper.InsertItem(t, wrapper, item)
}

// GivenItemOnLoan borrows the item through the store so it is out with the
// given user, and returns the open loan.
func GivenItemOnLoan(
	t testing.TB,
	ctx context.Context,
	cs *postgresengine.CirculationStore,
	itemID int64,
	userID int64,
) circulation.Loan {

	loan, err := cs.BorrowItem(ctx, itemID, userID)
	assert.NoError(t, err, "error in arranging test data")

	return loan
}

// GivenItemWasReturned returns the loan through the store.
func GivenItemWasReturned(
	t testing.TB,
	ctx context.Context,
	cs *postgresengine.CirculationStore,
	loanID int64,
) circulation.Loan {

	loan, err := cs.ReturnItem(ctx, loanID)
	assert.NoError(t, err, "error in arranging test data")

	return loan
}

// GivenReservation reserves the item through the store and returns the reservation.
func GivenReservation(
	t testing.TB,
	ctx context.Context,
	cs *postgresengine.CirculationStore,
	itemID int64,
	userID int64,
) circulation.Reservation {

	reservation, err := cs.ReserveItem(ctx, itemID, userID)
	assert.NoError(t, err, "error in arranging test data")

	return reservation
}

// FakeClockAt returns a clock function frozen at the given time.
func FakeClockAt(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
