package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parkdalelib/circulation-go/circulation"
	"github.com/parkdalelib/circulation-go/testutil/fixtures"
	"github.com/parkdalelib/circulation-go/testutil/postgresengine/helper"
	"github.com/parkdalelib/circulation-go/testutil/postgresengine/helper/postgreswrapper"
)

func seedCatalog(t *testing.T, wrapper postgreswrapper.Wrapper) []int64 {
	items := fixtures.LoadCatalog()
	ids := make([]int64, 0, len(items))

	for _, item := range items {
		ids = append(ids, postgreswrapper.InsertItem(t, wrapper, item))
	}

	return ids
}

func Test_GetItem_When_Item_Exists(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	itemID := postgreswrapper.InsertItem(t, wrapper,
		helper.FixtureBook("Database Internals", "Alex Petrov", "978-1-492-04034-7"))

	// act
	item, err := cs.GetItem(ctx, itemID)

	// assert
	assert.NoError(t, err, "getting an existing item should succeed")
	assert.Equal(t, "Database Internals", item.Title)
	assert.Equal(t, circulation.ItemTypeBook, item.Type)
	assert.Equal(t, "Alex Petrov", item.Author)
	assert.True(t, item.Available, "freshly inserted item should be available")
}

func Test_GetItem_When_Item_Does_Not_Exist(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)

	// act
	_, err := cs.GetItem(ctx, 42)

	// assert
	assert.ErrorIs(t, err, circulation.ErrItemNotFound, "getting a missing item should be rejected")
}

func Test_FindItems_With_Empty_Filter_Returns_Whole_Catalog(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	ids := seedCatalog(t, wrapper)

	filter := circulation.BuildItemFilter().
		MatchingAnyItem().
		Finalize()

	// act
	items, err := cs.FindItems(ctx, filter)

	// assert
	assert.NoError(t, err, "browsing the whole catalog should succeed")
	assert.Len(t, items, len(ids), "all catalog rows should be returned")
}

func Test_FindItems_Filtered_By_ItemType(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	seedCatalog(t, wrapper)

	filter := circulation.BuildItemFilter().
		Matching().
		AnyItemTypeOf(circulation.ItemTypeMagazine).
		Finalize()

	// act
	items, err := cs.FindItems(ctx, filter)

	// assert
	assert.NoError(t, err)
	assert.Len(t, items, 3, "the fixture catalog holds three magazines")
	for _, item := range items {
		assert.Equal(t, circulation.ItemTypeMagazine, item.Type, "only magazines should match")
	}
}

func Test_FindItems_With_Field_Predicates(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	seedCatalog(t, wrapper)

	filter := circulation.BuildItemFilter().
		Matching().
		AnyFieldContaining(circulation.F(circulation.FieldDirector, "fricke")).
		AndAnyItemTypeOf(circulation.ItemTypeMedia).
		Finalize()

	// act
	items, err := cs.FindItems(ctx, filter)

	// assert
	assert.NoError(t, err)
	assert.Len(t, items, 2, "two fixture media items are directed by Fricke")
	for _, item := range items {
		assert.Equal(t, "Ron Fricke", item.Director, "matching should be case-insensitive substring")
	}
}

func Test_FindItems_With_Multiple_FilterItems(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	seedCatalog(t, wrapper)

	filter := circulation.BuildItemFilter().
		Matching().
		AnyItemTypeOf(circulation.ItemTypeBook).
		AndAnyFieldContaining(circulation.F(circulation.FieldAuthor, "kleppmann")).
		OrMatching().
		AnyItemTypeOf(circulation.ItemTypeMedia).
		AndAnyFieldContaining(circulation.F(circulation.FieldCatalogNumber, "MED-0001")).
		Finalize()

	// act
	items, err := cs.FindItems(ctx, filter)

	// assert
	assert.NoError(t, err)
	assert.Len(t, items, 2, "filter items should combine with OR")
}

func Test_FindItems_Sorted_By_Title(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	seedCatalog(t, wrapper)

	filter := circulation.BuildItemFilter().
		MatchingAnyItem().
		SortedBy(circulation.SortByTitleAsc).
		Finalize()

	// act
	items, err := cs.FindItems(ctx, filter)

	// assert
	assert.NoError(t, err)
	for i := 1; i < len(items); i++ {
		assert.LessOrEqual(t, items[i-1].Title, items[i].Title, "titles should be in ascending order")
	}
}

func Test_FindItems_Sorted_By_Availability(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	ids := seedCatalog(t, wrapper)
	helper.GivenItemOnLoan(t, ctx, cs, ids[0], 1)

	filter := circulation.BuildItemFilter().
		MatchingAnyItem().
		SortedBy(circulation.SortByAvailabilityDesc).
		Finalize()

	// act
	items, err := cs.FindItems(ctx, filter)

	// assert
	assert.NoError(t, err)
	assert.False(t, items[len(items)-1].Available, "the lent item should sort last")
}

func Test_FindItems_With_Paging(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	ids := seedCatalog(t, wrapper)

	pageOne := circulation.BuildItemFilter().
		MatchingAnyItem().
		SortedBy(circulation.SortByTitleAsc).
		Paged(1, 4).
		Finalize()

	pageThree := circulation.BuildItemFilter().
		MatchingAnyItem().
		SortedBy(circulation.SortByTitleAsc).
		Paged(3, 4).
		Finalize()

	// act
	firstPage, err1 := cs.FindItems(ctx, pageOne)
	lastPage, err2 := cs.FindItems(ctx, pageThree)

	// assert
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Len(t, firstPage, 4, "full page should have the page size")
	assert.Len(t, lastPage, len(ids)-8, "last page should hold the remainder")
	assert.NotEqual(t, firstPage[0].ID, lastPage[0].ID, "pages should not overlap")
}

func Test_CurrentLoans_Lists_Open_Loans_Newest_First(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	bookID := helper.GivenBookInCatalog(t, wrapper)
	magazineID := helper.GivenMagazineInCatalog(t, wrapper)
	helper.GivenItemOnLoan(t, ctx, cs, bookID, 1)
	helper.GivenItemOnLoan(t, ctx, cs, magazineID, 1)

	// act
	records, err := cs.CurrentLoans(ctx, 1)

	// assert
	assert.NoError(t, err, "listing current loans should succeed")
	assert.Len(t, records, 2, "both open loans should be listed")
	assert.True(t,
		!records[0].LoanDate.Before(records[1].LoanDate),
		"open loans should be sorted newest first")
}

func Test_CurrentLoans_Computes_DueDate_From_ItemType(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	bookID := helper.GivenBookInCatalog(t, wrapper)
	helper.GivenItemOnLoan(t, ctx, cs, bookID, 1)

	// act
	records, err := cs.CurrentLoans(ctx, 1)

	// assert
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t,
		records[0].LoanDate.Add(30*24*time.Hour),
		records[0].DueDate,
		"book due date should be 30 days after the loan date")
}

func Test_CurrentLoans_For_User_Without_Loans(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)

	// act
	records, err := cs.CurrentLoans(ctx, 99)

	// assert
	assert.NoError(t, err, "listing loans for an unknown user should not fail")
	assert.Empty(t, records, "a user without loans should get an empty list")
}

func Test_LoanHistory_Lists_Only_Closed_Loans(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	defer postgreswrapper.CleanUp(t, wrapper)
	cs := wrapper.GetCirculationStore()
	ctx := context.Background()

	// arrange
	postgreswrapper.CleanUp(t, wrapper)
	bookID := helper.GivenBookInCatalog(t, wrapper)
	magazineID := helper.GivenMagazineInCatalog(t, wrapper)
	closedLoan := helper.GivenItemOnLoan(t, ctx, cs, bookID, 1)
	helper.GivenItemWasReturned(t, ctx, cs, closedLoan.ID)
	helper.GivenItemOnLoan(t, ctx, cs, magazineID, 1) // stays open

	// act
	history, err := cs.LoanHistory(ctx, 1)
	current, err2 := cs.CurrentLoans(ctx, 1)

	// assert
	assert.NoError(t, err)
	assert.NoError(t, err2)
	assert.Len(t, history, 1, "only the closed loan belongs to the history")
	assert.Equal(t, bookID, history[0].Item.ID, "the history entry should carry the item")
	assert.False(t, history[0].ReturnDate.IsZero(), "history entries should carry the return date")
	assert.Len(t, current, 1, "the open loan stays in the current list")
	assert.Equal(t, magazineID, current[0].Item.ID)
}
