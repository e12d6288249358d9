package circulation

import (
	"time"
)

// Reservation records the intent of a user to borrow an item that is
// currently unavailable. Reservations are advisory: they never block another
// user from borrowing the item, and they expire after the item type's
// reservation window.
type Reservation struct {
	ID         int64
	UserID     UserIDInt
	ItemID     ItemIDInt
	ReservedAt time.Time
	ExpiresAt  time.Time
}

// IsActive reports whether the reservation has not expired at the given time.
func (r Reservation) IsActive(now time.Time) bool {
	return r.ExpiresAt.After(now)
}
