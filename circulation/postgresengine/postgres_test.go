package postgresengine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parkdalelib/circulation-go/circulation"
	"github.com/parkdalelib/circulation-go/circulation/postgresengine"
	"github.com/parkdalelib/circulation-go/testutil/postgresengine/helper"
	"github.com/parkdalelib/circulation-go/testutil/postgresengine/helper/postgreswrapper"
)

func Test_BorrowItem_When_Item_Is_Available(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenBookInCatalog(t, wrapper)

	// act
	loan, err := cs.BorrowItem(ctx, itemID, 1)

	// assert
	assert.NoError(t, err, "borrowing an available item should succeed")
	assert.NotZero(t, loan.ID, "loan should have a generated id")
	assert.Equal(t, itemID, loan.ItemID, "loan should reference the item")
	assert.True(t, loan.IsOpen(), "fresh loan should be open")

	available, err := cs.IsAvailable(ctx, itemID)
	assert.NoError(t, err)
	assert.False(t, available, "item should be unavailable while on loan")
}

func Test_BorrowItem_When_Item_Is_Already_On_Loan(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenBookInCatalog(t, wrapper)
	helper.GivenItemOnLoan(t, ctx, cs, itemID, 1)

	// act
	_, err := cs.BorrowItem(ctx, itemID, 2)

	// assert
	assert.ErrorIs(t, err, circulation.ErrItemUnavailable, "borrowing a lent item should be rejected")
	assert.Equal(t, 1, postgreswrapper.CountRows(t, wrapper, "loans"), "no second loan row should exist")
}

func Test_BorrowItem_When_Item_Does_Not_Exist(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)

	// act
	_, err := cs.BorrowItem(ctx, 42, 1)

	// assert
	assert.ErrorIs(t, err, circulation.ErrItemUnavailable, "borrowing a missing item should be rejected")
	assert.Equal(t, 0, postgreswrapper.CountRows(t, wrapper, "loans"), "no loan row should exist")
}

func Test_BorrowItem_When_Many_Borrowers_Compete(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenBookInCatalog(t, wrapper)

	const numBorrowers = 10

	var wg sync.WaitGroup
	errs := make([]error, numBorrowers)

	// act
	for i := 0; i < numBorrowers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = cs.BorrowItem(ctx, itemID, int64(idx+1))
		}(i)
	}
	wg.Wait()

	// assert
	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, circulation.ErrItemUnavailable, "losers should see the business rejection")
		}
	}

	assert.Equal(t, 1, successes, "exactly one concurrent borrow should win")
	assert.Equal(t, 1, postgreswrapper.CountRows(t, wrapper, "loans"), "exactly one loan row should exist")
}

func Test_ReturnItem_When_Loan_Is_Open(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenBookInCatalog(t, wrapper)
	openLoan := helper.GivenItemOnLoan(t, ctx, cs, itemID, 1)

	// act
	closedLoan, err := cs.ReturnItem(ctx, openLoan.ID)

	// assert
	assert.NoError(t, err, "returning an open loan should succeed")
	assert.Equal(t, itemID, closedLoan.ItemID, "closed loan should reference the item")
	assert.False(t, closedLoan.IsOpen(), "closed loan should carry a return date")

	available, err := cs.IsAvailable(ctx, itemID)
	assert.NoError(t, err)
	assert.True(t, available, "item should be available again after return")
}

func Test_ReturnItem_When_Loan_Is_Already_Closed(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenBookInCatalog(t, wrapper)
	openLoan := helper.GivenItemOnLoan(t, ctx, cs, itemID, 1)
	helper.GivenItemWasReturned(t, ctx, cs, openLoan.ID)

	// act
	_, err := cs.ReturnItem(ctx, openLoan.ID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrLoanNotFound, "a second return of the same loan should be rejected")

	available, availErr := cs.IsAvailable(ctx, itemID)
	assert.NoError(t, availErr)
	assert.True(t, available, "availability should be untouched by the repeated return")
}

func Test_ReturnItem_When_Loan_Does_Not_Exist(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)

	// act
	_, err := cs.ReturnItem(ctx, 4711)

	// assert
	assert.ErrorIs(t, err, circulation.ErrLoanNotFound, "returning an unknown loan should be rejected")
}

func Test_ReturnItem_Then_Item_Can_Be_Borrowed_Again(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenBookInCatalog(t, wrapper)
	firstLoan := helper.GivenItemOnLoan(t, ctx, cs, itemID, 1)
	helper.GivenItemWasReturned(t, ctx, cs, firstLoan.ID)

	// act
	secondLoan, err := cs.BorrowItem(ctx, itemID, 2)

	// assert
	assert.NoError(t, err, "a returned item should be borrowable again")
	assert.NotEqual(t, firstLoan.ID, secondLoan.ID, "the second loan should be a new row")
	assert.Equal(t, 2, postgreswrapper.CountRows(t, wrapper, "loans"), "both loans should remain in the ledger")
}

func Test_ReserveItem_When_No_Active_Reservation_Exists(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenMagazineInCatalog(t, wrapper)

	// act
	reservation, err := cs.ReserveItem(ctx, itemID, 1)

	// assert
	assert.NoError(t, err, "reserving should succeed")
	assert.NotZero(t, reservation.ID, "reservation should have a generated id")
	assert.Equal(t,
		reservation.ReservedAt.Add(7*24*time.Hour),
		reservation.ExpiresAt,
		"magazine reservations should expire after 7 days")
}

func Test_ReserveItem_When_Active_Reservation_Exists(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenBookInCatalog(t, wrapper)
	helper.GivenReservation(t, ctx, cs, itemID, 1)

	// act
	_, err := cs.ReserveItem(ctx, itemID, 1)

	// assert
	assert.ErrorIs(t, err, circulation.ErrAlreadyReserved, "a duplicate reservation should be rejected")
	assert.Equal(t, 1, postgreswrapper.CountRows(t, wrapper, "reservations"), "no second reservation row should exist")
}

func Test_ReserveItem_When_Item_Does_Not_Exist(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)

	// act
	_, err := cs.ReserveItem(ctx, 42, 1)

	// assert
	assert.ErrorIs(t, err, circulation.ErrItemNotFound, "reserving a missing item should be rejected")
}

func Test_ReserveItem_When_Previous_Reservation_Expired(t *testing.T) {
	// setup
	fakeNow := time.Now()
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return fakeNow
	}

	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t, postgresengine.WithClock(clock))
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenMediaInCatalog(t, wrapper)
	helper.GivenReservation(t, ctx, cs, itemID, 1)

	clockMu.Lock()
	fakeNow = fakeNow.Add(8 * 24 * time.Hour) // past the 7-day media window
	clockMu.Unlock()

	// act
	reservation, err := cs.ReserveItem(ctx, itemID, 1)

	// assert
	assert.NoError(t, err, "reserving again after expiry should succeed")
	assert.NotZero(t, reservation.ID, "new reservation should have a generated id")
	assert.Equal(t, 2, postgreswrapper.CountRows(t, wrapper, "reservations"), "both reservation rows should exist")
}

func Test_ReserveItem_Does_Not_Block_Borrowing(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenBookInCatalog(t, wrapper)
	helper.GivenReservation(t, ctx, cs, itemID, 1)

	// act
	_, err := cs.BorrowItem(ctx, itemID, 2)

	// assert
	assert.NoError(t, err, "a reservation by another user must not block borrowing")
}

func Test_BorrowItem_Joins_Infrastructure_Sentinels(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := helper.GivenBookInCatalog(t, wrapper)

	canceledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	_, err := cs.BorrowItem(canceledCtx, itemID, 1)

	// assert
	assert.Error(t, err, "borrowing with a canceled context should fail")
	assert.NotErrorIs(t, err, circulation.ErrItemUnavailable, "an infrastructure failure is not a business rejection")
	assert.True(t,
		errors.Is(err, circulation.ErrBorrowingItemFailed) || errors.Is(err, circulation.ErrBeginningTxFailed),
		"the failure should be joined to an operation sentinel")
}
