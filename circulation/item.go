package circulation

import (
	"errors"
	"strings"
	"time"
)

var ErrUnknownItemType = errors.New("unknown item type")

// ItemType is the type tag of a catalog item.
//
// It replaces runtime type tests with an explicit variant: every call site
// that needs type-specific behavior switches exhaustively on the tag or uses
// the capability methods LoanDuration and ReservationWindow.
type ItemType string

const (
	ItemTypeBook     ItemType = "BOOK"
	ItemTypeMagazine ItemType = "MAGAZINE"
	ItemTypeMedia    ItemType = "MEDIA"
)

func (t ItemType) String() string {
	return string(t)
}

// ItemTypeFromString parses a stored type discriminator into an ItemType.
func ItemTypeFromString(s string) (ItemType, error) {
	switch ItemType(strings.ToUpper(s)) {
	case ItemTypeBook:
		return ItemTypeBook, nil
	case ItemTypeMagazine:
		return ItemTypeMagazine, nil
	case ItemTypeMedia:
		return ItemTypeMedia, nil
	default:
		return "", ErrUnknownItemType
	}
}

// LoanDuration returns how long an item of this type may be held before it is due.
func (t ItemType) LoanDuration() time.Duration {
	const day = 24 * time.Hour

	switch t {
	case ItemTypeBook:
		return 30 * day
	case ItemTypeMagazine, ItemTypeMedia:
		return 10 * day
	default:
		return 30 * day
	}
}

// ReservationWindow returns how long an unfulfilled reservation for an item
// of this type stays active before it expires.
func (t ItemType) ReservationWindow() time.Duration {
	const day = 24 * time.Hour

	switch t {
	case ItemTypeBook:
		return 30 * day
	case ItemTypeMagazine, ItemTypeMedia:
		return 7 * day
	default:
		return 7 * day
	}
}

// Item is a snapshot of a catalog row.
//
// The type-specific fields are only populated for the matching Type:
// Author/ISBN for books, Publisher/ISSN for magazines, Director/CatalogNumber
// for media. ID is immutable and unique; Available is false iff an open loan
// exists for the item.
type Item struct {
	ID        ItemIDInt
	Title     string
	Type      ItemType
	Available bool

	Author string
	ISBN   string

	Publisher string
	ISSN      string

	Director      string
	CatalogNumber string
}

// DisplayFields returns the human-readable field pairs for this item in a
// stable order, so a presentation layer can render any item type without
// branching on the tag itself.
func (i Item) DisplayFields() [][2]string {
	fields := [][2]string{{"Title", i.Title}}

	switch i.Type {
	case ItemTypeBook:
		fields = append(fields, [2]string{"Author", i.Author}, [2]string{"ISBN", i.ISBN})
	case ItemTypeMagazine:
		fields = append(fields, [2]string{"Publisher", i.Publisher}, [2]string{"ISSN", i.ISSN})
	case ItemTypeMedia:
		fields = append(fields, [2]string{"Director", i.Director}, [2]string{"Catalog Number", i.CatalogNumber})
	}

	return fields
}
