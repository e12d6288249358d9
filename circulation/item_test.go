package circulation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parkdalelib/circulation-go/circulation"
)

func Test_ItemTypeFromString_Accepts_Known_Types(t *testing.T) {
	for _, input := range []string{"BOOK", "MAGAZINE", "MEDIA"} {
		// act
		itemType, err := circulation.ItemTypeFromString(input)

		// assert
		assert.NoError(t, err, "known item type should parse")
		assert.Equal(t, input, itemType.String(), "parsed type should round-trip")
	}
}

func Test_ItemTypeFromString_Rejects_Unknown_Types(t *testing.T) {
	// act
	_, err := circulation.ItemTypeFromString("BICYCLE")

	// assert
	assert.ErrorIs(t, err, circulation.ErrUnknownItemType, "unknown item type should be rejected")
}

func Test_LoanDuration_Per_ItemType(t *testing.T) {
	// assert
	assert.Equal(t, 30*24*time.Hour, circulation.ItemTypeBook.LoanDuration(), "books are lent for 30 days")
	assert.Equal(t, 10*24*time.Hour, circulation.ItemTypeMagazine.LoanDuration(), "magazines are lent for 10 days")
	assert.Equal(t, 10*24*time.Hour, circulation.ItemTypeMedia.LoanDuration(), "media are lent for 10 days")
}

func Test_ReservationWindow_Per_ItemType(t *testing.T) {
	// assert
	assert.Equal(t, 30*24*time.Hour, circulation.ItemTypeBook.ReservationWindow(), "book reservations hold for 30 days")
	assert.Equal(t, 7*24*time.Hour, circulation.ItemTypeMagazine.ReservationWindow(), "magazine reservations hold for 7 days")
	assert.Equal(t, 7*24*time.Hour, circulation.ItemTypeMedia.ReservationWindow(), "media reservations hold for 7 days")
}

func Test_Loan_IsOpen(t *testing.T) {
	// arrange
	open := circulation.Loan{LoanDate: time.Now()}
	closed := circulation.Loan{LoanDate: time.Now(), ReturnDate: time.Now()}

	// assert
	assert.True(t, open.IsOpen(), "loan without return date should be open")
	assert.False(t, closed.IsOpen(), "loan with return date should be closed")
}

func Test_Reservation_IsActive(t *testing.T) {
	// arrange
	now := time.Now()
	reservation := circulation.Reservation{
		ReservedAt: now,
		ExpiresAt:  now.Add(7 * 24 * time.Hour),
	}

	// assert
	assert.True(t, reservation.IsActive(now), "reservation should be active before expiry")
	assert.False(t, reservation.IsActive(now.Add(8*24*time.Hour)), "reservation should be expired after the window")
}
