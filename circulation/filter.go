package circulation

import (
	"slices"
)

// FieldNameString is a type alias for string, representing a searchable catalog column.
type FieldNameString = string

// SearchTermString is a type alias for string, representing a substring to search for.
type SearchTermString = string

// Searchable catalog fields. Predicates naming any other field are dropped
// during sanitization, so user-supplied field names can never reach the SQL.
const (
	FieldTitle         FieldNameString = "title"
	FieldAuthor        FieldNameString = "author"
	FieldISBN          FieldNameString = "isbn"
	FieldPublisher     FieldNameString = "publisher"
	FieldISSN          FieldNameString = "issn"
	FieldDirector      FieldNameString = "director"
	FieldCatalogNumber FieldNameString = "catalog_number"
)

// SortOrder selects the ordering of catalog search and browse results.
type SortOrder int

const (
	SortByID SortOrder = iota
	SortByTitleAsc
	SortByTitleDesc
	SortByAvailabilityDesc
)

/***** ItemFilter *****/

type ItemFilter struct {
	items    []FilterItem
	sortBy   SortOrder
	page     uint
	pageSize uint
}

func (f ItemFilter) Items() []FilterItem {
	return f.items
}

func (f ItemFilter) SortBy() SortOrder {
	return f.sortBy
}

// Page returns the 1-based result page, or 0 if the filter is unpaged.
func (f ItemFilter) Page() uint {
	return f.page
}

func (f ItemFilter) PageSize() uint {
	return f.pageSize
}

/***** FilterItem *****/

type FilterItem struct {
	itemTypes          []ItemType
	predicates         []FieldPredicate
	allFieldsMustMatch bool
}

func (fi FilterItem) ItemTypes() []ItemType {
	return fi.itemTypes
}

func (fi FilterItem) Predicates() []FieldPredicate {
	return fi.predicates
}

func (fi FilterItem) AllFieldsMustMatch() bool {
	return fi.allFieldsMustMatch
}

/***** FieldPredicate *****/

type FieldPredicate struct {
	field FieldNameString
	term  SearchTermString
}

func F(field FieldNameString, term SearchTermString) FieldPredicate {
	return FieldPredicate{field: field, term: term}
}

func (fp FieldPredicate) Field() FieldNameString {
	return fp.field
}

func (fp FieldPredicate) Term() SearchTermString {
	return fp.term
}

/***** ItemFilterBuilder *****/

// ItemFilterBuilder builds a generic catalog filter to be used in DB
// type-specific engine implementations to build queries for the specific
// query language, e.g.: Postgres, Mysql, ...
// It is designed with the idea to only allow "useful" filter combinations
// for catalog search and browse workflows:
//
//   - empty filter (browse everything)
//   - (itemType OR itemType...)
//   - (field contains term)
//   - (field contains term OR field contains term...)
//   - (field contains term AND field contains term...)
//   - ((itemType OR itemType...) AND (field contains term OR ...))
//   - ((itemType AND predicate) OR (itemType AND predicate)...) -> multiple FilterItem(s)
//
// plus an optional sort order and page on the completed filter.
type ItemFilterBuilder interface {
	// Matching starts a new FilterItem.
	Matching() EmptyFilterItemBuilder

	// MatchingAnyItem creates a filter without type or field criteria,
	// for browsing the whole catalog; sort order and paging still apply.
	MatchingAnyItem() CompletedFilterItemBuilder
}

type EmptyFilterItemBuilder interface {
	// AnyItemTypeOf adds one or multiple ItemTypes to the current FilterItem.
	//
	// It sanitizes the input:
	//	- removing empty ItemTypes ("")
	//	- sorting the ItemTypes
	//	- removing duplicate ItemTypes
	AnyItemTypeOf(itemType ItemType, itemTypes ...ItemType) FilterItemBuilderLackingPredicates

	// AnyFieldContaining adds one or multiple FieldPredicate(s) to the current FilterItem.
	//
	// It sanitizes the input:
	//	- removing empty/partial FieldPredicate(s) (field or term is "")
	//	- removing FieldPredicate(s) naming an unknown field
	//	- sorting the FieldPredicate(s)
	//	- removing duplicate FieldPredicate(s)
	AnyFieldContaining(predicate FieldPredicate, predicates ...FieldPredicate) FilterItemBuilderLackingItemTypes

	AllFieldsContaining(predicate FieldPredicate, predicates ...FieldPredicate) FilterItemBuilderLackingItemTypes
}

type FilterItemBuilderLackingPredicates interface {
	// AndAnyFieldContaining adds one or multiple FieldPredicate(s) to the current FilterItem.
	AndAnyFieldContaining(predicate FieldPredicate, predicates ...FieldPredicate) CompletedFilterItemBuilder

	AndAllFieldsContaining(predicate FieldPredicate, predicates ...FieldPredicate) CompletedFilterItemBuilder

	// OrMatching finalizes the current FilterItem and starts a new one.
	OrMatching() EmptyFilterItemBuilder

	// SortedBy sets the result ordering.
	SortedBy(order SortOrder) CompletedFilterItemBuilder

	// Paged restricts the result to one page; page is 1-based.
	Paged(page uint, pageSize uint) CompletedFilterItemBuilder

	// Finalize returns the ItemFilter once it has at least one FilterItem
	// with at least one ItemType OR one FieldPredicate.
	Finalize() ItemFilter
}

type FilterItemBuilderLackingItemTypes interface {
	// AndAnyItemTypeOf adds one or multiple ItemTypes to the current FilterItem.
	AndAnyItemTypeOf(itemType ItemType, itemTypes ...ItemType) CompletedFilterItemBuilder

	// OrMatching finalizes the current FilterItem and starts a new one.
	OrMatching() EmptyFilterItemBuilder

	// SortedBy sets the result ordering.
	SortedBy(order SortOrder) CompletedFilterItemBuilder

	// Paged restricts the result to one page; page is 1-based.
	Paged(page uint, pageSize uint) CompletedFilterItemBuilder

	// Finalize returns the ItemFilter once it has at least one FilterItem
	// with at least one ItemType OR one FieldPredicate.
	Finalize() ItemFilter
}

type CompletedFilterItemBuilder interface {
	// OrMatching finalizes the current FilterItem and starts a new one.
	OrMatching() EmptyFilterItemBuilder

	// SortedBy sets the result ordering.
	SortedBy(order SortOrder) CompletedFilterItemBuilder

	// Paged restricts the result to one page; page is 1-based.
	Paged(page uint, pageSize uint) CompletedFilterItemBuilder

	// Finalize returns the ItemFilter.
	Finalize() ItemFilter
}

// itemFilterBuilder implements all the interfaces of ItemFilterBuilder.
type itemFilterBuilder struct {
	filter            ItemFilter
	currentFilterItem FilterItem
	itemStarted       bool
}

// BuildItemFilter creates an ItemFilterBuilder which must eventually be finalized with Finalize().
func BuildItemFilter() ItemFilterBuilder {
	return itemFilterBuilder{}
}

// Matching starts a new FilterItem.
func (fb itemFilterBuilder) Matching() EmptyFilterItemBuilder {
	fb.currentFilterItem = FilterItem{}
	fb.itemStarted = true

	return fb
}

// MatchingAnyItem creates a filter without type or field criteria.
func (fb itemFilterBuilder) MatchingAnyItem() CompletedFilterItemBuilder {
	return fb
}

// AnyItemTypeOf adds one or multiple ItemTypes to the current FilterItem expecting ANY type to match.
func (fb itemFilterBuilder) AnyItemTypeOf(itemType ItemType, itemTypes ...ItemType) FilterItemBuilderLackingPredicates {
	fb.currentFilterItem.itemTypes = append(
		fb.currentFilterItem.itemTypes,
		fb.sanitizeItemTypes(itemType, itemTypes...)...,
	)

	return fb
}

// AndAnyItemTypeOf adds one or multiple ItemTypes to the current FilterItem expecting ANY type to match.
func (fb itemFilterBuilder) AndAnyItemTypeOf(itemType ItemType, itemTypes ...ItemType) CompletedFilterItemBuilder {
	fb.currentFilterItem.itemTypes = append(
		fb.currentFilterItem.itemTypes,
		fb.sanitizeItemTypes(itemType, itemTypes...)...,
	)

	return fb
}

func (fb itemFilterBuilder) sanitizeItemTypes(itemType ItemType, itemTypes ...ItemType) []ItemType {
	allItemTypes := append([]ItemType{itemType}, itemTypes...)
	allItemTypes = slices.DeleteFunc(
		allItemTypes,
		func(t ItemType) bool {
			return t != ItemTypeBook && t != ItemTypeMagazine && t != ItemTypeMedia
		})
	slices.Sort(allItemTypes)
	allItemTypes = slices.Compact(allItemTypes)
	allItemTypes = slices.Clip(allItemTypes)

	return allItemTypes
}

// AnyFieldContaining adds one or multiple FieldPredicate(s) to the current FilterItem expecting ANY predicate to match.
func (fb itemFilterBuilder) AnyFieldContaining(predicate FieldPredicate, predicates ...FieldPredicate) FilterItemBuilderLackingItemTypes {
	fb.currentFilterItem.predicates = append(
		fb.currentFilterItem.predicates,
		fb.sanitizePredicates(predicate, predicates...)...,
	)

	return fb
}

// AndAnyFieldContaining adds one or multiple FieldPredicate(s) to the current FilterItem expecting ANY predicate to match.
func (fb itemFilterBuilder) AndAnyFieldContaining(predicate FieldPredicate, predicates ...FieldPredicate) CompletedFilterItemBuilder {
	fb.currentFilterItem.predicates = append(
		fb.currentFilterItem.predicates,
		fb.sanitizePredicates(predicate, predicates...)...,
	)

	return fb
}

// AllFieldsContaining adds one or multiple FieldPredicate(s) to the current FilterItem expecting ALL predicates to match.
func (fb itemFilterBuilder) AllFieldsContaining(predicate FieldPredicate, predicates ...FieldPredicate) FilterItemBuilderLackingItemTypes {
	fb.currentFilterItem.allFieldsMustMatch = true

	fb.currentFilterItem.predicates = append(
		fb.currentFilterItem.predicates,
		fb.sanitizePredicates(predicate, predicates...)...,
	)

	return fb
}

// AndAllFieldsContaining adds one or multiple FieldPredicate(s) to the current FilterItem expecting ALL predicates to match.
func (fb itemFilterBuilder) AndAllFieldsContaining(predicate FieldPredicate, predicates ...FieldPredicate) CompletedFilterItemBuilder {
	fb.currentFilterItem.allFieldsMustMatch = true

	fb.currentFilterItem.predicates = append(
		fb.currentFilterItem.predicates,
		fb.sanitizePredicates(predicate, predicates...)...,
	)

	return fb
}

func (fb itemFilterBuilder) sanitizePredicates(predicate FieldPredicate, predicates ...FieldPredicate) []FieldPredicate {
	allPredicates := append([]FieldPredicate{predicate}, predicates...)
	allPredicates = slices.DeleteFunc(allPredicates, func(p FieldPredicate) bool {
		return len(p.term) == 0 || !isSearchableField(p.field)
	})
	slices.SortFunc(
		allPredicates,
		func(a, b FieldPredicate) int {
			if a.field > b.field {
				return 1
			}

			if a.field < b.field {
				return -1
			}

			return 0
		})

	allPredicates = slices.Compact(allPredicates)
	allPredicates = slices.Clip(allPredicates)

	return allPredicates
}

func isSearchableField(field FieldNameString) bool {
	switch field {
	case FieldTitle, FieldAuthor, FieldISBN, FieldPublisher, FieldISSN, FieldDirector, FieldCatalogNumber:
		return true
	default:
		return false
	}
}

// OrMatching finalizes the current FilterItem and starts a new one.
func (fb itemFilterBuilder) OrMatching() EmptyFilterItemBuilder {
	fb.filter.items = append(fb.filter.items, fb.currentFilterItem)
	fb.currentFilterItem = FilterItem{}

	return fb
}

// SortedBy sets the result ordering.
func (fb itemFilterBuilder) SortedBy(order SortOrder) CompletedFilterItemBuilder {
	fb.filter.sortBy = order

	return fb
}

// Paged restricts the result to one page; page is 1-based.
func (fb itemFilterBuilder) Paged(page uint, pageSize uint) CompletedFilterItemBuilder {
	if page == 0 {
		page = 1
	}

	fb.filter.page = page
	fb.filter.pageSize = pageSize

	return fb
}

// Finalize returns the ItemFilter.
func (fb itemFilterBuilder) Finalize() ItemFilter {
	if fb.itemStarted {
		fb.filter.items = append(fb.filter.items, fb.currentFilterItem)
	}

	return fb.filter
}
