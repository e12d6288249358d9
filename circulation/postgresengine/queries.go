package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/parkdalelib/circulation-go/circulation"
	"github.com/parkdalelib/circulation-go/circulation/postgresengine/internal/adapters"
)

// IsAvailable reports whether the item can be borrowed right now.
//
// The answer is a snapshot without any lock: a concurrent borrow can
// invalidate it immediately, so callers must not use it to guard a borrow.
// Returns circulation.ErrItemNotFound when no such item exists.
func (cs *CirculationStore) IsAvailable(ctx context.Context, itemID circulation.ItemIDInt) (bool, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(cs.itemsTableName).
		Select(colIsAvailable).
		Where(goqu.Ex{colItemID: itemID})

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		cs.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return false, errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := cs.queryCatalog(ctx, sqlQuery)
	if queryErr != nil {
		return false, queryErr
	}
	defer cs.closeRows(rows)

	if !rows.Next() {
		return false, circulation.ErrItemNotFound
	}

	var available bool
	if scanErr := rows.Scan(&available); scanErr != nil {
		cs.logError(ctx, logMsgScanRowFailed, scanErr)
		return false, errors.Join(circulation.ErrScanningDBRowFailed, scanErr)
	}

	return available, nil
}

// GetItem fetches a single catalog item by its id.
// Returns circulation.ErrItemNotFound when no such item exists.
func (cs *CirculationStore) GetItem(ctx context.Context, itemID circulation.ItemIDInt) (circulation.Item, error) {
	var empty circulation.Item

	selectStmt := cs.itemColumns(goqu.Dialect(dialectPostgres).From(cs.itemsTableName)).
		Where(goqu.Ex{colItemID: itemID})

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		cs.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return empty, errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := cs.queryCatalog(ctx, sqlQuery)
	if queryErr != nil {
		return empty, queryErr
	}
	defer cs.closeRows(rows)

	if !rows.Next() {
		return empty, circulation.ErrItemNotFound
	}

	item, scanErr := cs.scanItem(rows)
	if scanErr != nil {
		cs.logError(ctx, logMsgScanRowFailed, scanErr)
		return empty, errors.Join(circulation.ErrScanningDBRowFailed, scanErr)
	}

	return item, nil
}

// FindItems queries the catalog with the given filter, which should be
// built with circulation.BuildItemFilter.
//
// An empty filter matches the whole catalog. Results follow the filter's
// sort order and paging; a zero page size disables paging.
func (cs *CirculationStore) FindItems(ctx context.Context, filter circulation.ItemFilter) ([]circulation.Item, error) {
	sqlQuery, buildErr := cs.buildCatalogQuery(filter)
	if buildErr != nil {
		cs.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return nil, errors.Join(circulation.ErrBuildingQueryFailed, buildErr)
	}

	rows, queryErr := cs.queryCatalog(ctx, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer cs.closeRows(rows)

	var items []circulation.Item

	for rows.Next() {
		item, scanErr := cs.scanItem(rows)
		if scanErr != nil {
			cs.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(circulation.ErrScanningDBRowFailed, scanErr)
		}

		items = append(items, item)
	}

	return items, nil
}

// CurrentLoans lists the user's open loans, newest first, with the due date
// derived from the loan date and the item type's loan duration.
func (cs *CirculationStore) CurrentLoans(ctx context.Context, userID circulation.UserIDInt) ([]circulation.LoanRecord, error) {
	return cs.queryLoans(ctx, userID, true)
}

// LoanHistory lists the user's closed loans, most recently returned first.
func (cs *CirculationStore) LoanHistory(ctx context.Context, userID circulation.UserIDInt) ([]circulation.LoanRecord, error) {
	return cs.queryLoans(ctx, userID, false)
}

func (cs *CirculationStore) queryLoans(ctx context.Context, userID circulation.UserIDInt, open bool) ([]circulation.LoanRecord, error) {
	sqlQuery, buildErr := cs.buildLoansQuery(userID, open)
	if buildErr != nil {
		cs.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return nil, errors.Join(circulation.ErrBuildingQueryFailed, buildErr)
	}

	start := cs.clock()
	rows, queryErr := cs.db.Query(ctx, sqlQuery)
	cs.logQueryWithDuration(ctx, sqlQuery, actionQueryLoans, cs.clock().Sub(start))

	if queryErr != nil {
		cs.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(circulation.ErrQueryingLoansFailed, queryErr)
	}
	defer cs.closeRows(rows)

	var records []circulation.LoanRecord

	for rows.Next() {
		record, scanErr := cs.scanLoanRecord(rows)
		if scanErr != nil {
			cs.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(circulation.ErrScanningDBRowFailed, scanErr)
		}

		records = append(records, record)
	}

	return records, nil
}

// buildCatalogQuery translates the filter into SQL.
//
// Filter items combine with OR; inside one filter item the type list and the
// field predicates combine with AND, and the predicates among themselves with
// AND or OR as the builder recorded. Field matching is case-insensitive
// substring matching.
func (cs *CirculationStore) buildCatalogQuery(filter circulation.ItemFilter) (sqlQueryString, error) {
	selectStmt := cs.itemColumns(goqu.Dialect(dialectPostgres).From(cs.itemsTableName))

	if itemExpressions := buildFilterItemExpressions(filter.Items()); len(itemExpressions) > 0 {
		selectStmt = selectStmt.Where(goqu.Or(itemExpressions...))
	}

	selectStmt = applySortOrder(selectStmt, filter.SortBy())

	if filter.PageSize() > 0 {
		page := filter.Page()
		if page == 0 {
			page = 1
		}

		selectStmt = selectStmt.
			Limit(filter.PageSize()).
			Offset((page - 1) * filter.PageSize())
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", toSQLErr
	}

	return sqlQuery, nil
}

func buildFilterItemExpressions(items []circulation.FilterItem) []exp.Expression {
	expressions := make([]exp.Expression, 0, len(items))

	for _, item := range items {
		var itemConditions []exp.Expression

		if itemTypes := item.ItemTypes(); len(itemTypes) > 0 {
			typeStrings := make([]string, 0, len(itemTypes))
			for _, itemType := range itemTypes {
				typeStrings = append(typeStrings, itemType.String())
			}

			itemConditions = append(itemConditions, goqu.C(colItemType).In(typeStrings))
		}

		if predicates := item.Predicates(); len(predicates) > 0 {
			predicateConditions := make([]exp.Expression, 0, len(predicates))
			for _, predicate := range predicates {
				predicateConditions = append(predicateConditions,
					goqu.C(predicate.Field()).ILike("%"+predicate.Term()+"%"))
			}

			if item.AllFieldsMustMatch() {
				itemConditions = append(itemConditions, goqu.And(predicateConditions...))
			} else {
				itemConditions = append(itemConditions, goqu.Or(predicateConditions...))
			}
		}

		if len(itemConditions) > 0 {
			expressions = append(expressions, goqu.And(itemConditions...))
		}
	}

	return expressions
}

func applySortOrder(selectStmt *goqu.SelectDataset, order circulation.SortOrder) *goqu.SelectDataset {
	switch order {
	case circulation.SortByTitleAsc:
		return selectStmt.Order(goqu.C(colTitle).Asc())
	case circulation.SortByTitleDesc:
		return selectStmt.Order(goqu.C(colTitle).Desc())
	case circulation.SortByAvailabilityDesc:
		return selectStmt.Order(goqu.C(colIsAvailable).Desc(), goqu.C(colTitle).Asc())
	case circulation.SortByID:
		fallthrough
	default:
		return selectStmt.Order(goqu.C(colItemID).Asc())
	}
}

// buildLoansQuery joins loans with the catalog so each record carries the
// item the loan is about. Open loans sort by loan date, closed ones by
// return date, both newest first.
func (cs *CirculationStore) buildLoansQuery(userID circulation.UserIDInt, open bool) (sqlQueryString, error) {
	loansTable := goqu.T(cs.loansTableName)
	itemsTable := goqu.T(cs.itemsTableName)

	selectStmt := goqu.Dialect(dialectPostgres).
		From(loansTable).
		Join(itemsTable, goqu.On(loansTable.Col(colItemID).Eq(itemsTable.Col(colItemID)))).
		Select(
			loansTable.Col(colLoanID),
			loansTable.Col(colLoanDate),
			loansTable.Col(colReturnDate),
			itemsTable.Col(colItemID),
			itemsTable.Col(colTitle),
			itemsTable.Col(colItemType),
			itemsTable.Col(colIsAvailable),
			itemsTable.Col(colAuthor),
			itemsTable.Col(colISBN),
			itemsTable.Col(colPublisher),
			itemsTable.Col(colISSN),
			itemsTable.Col(colDirector),
			itemsTable.Col(colCatalogNumber),
		).
		Where(loansTable.Col(colUserID).Eq(userID))

	if open {
		selectStmt = selectStmt.
			Where(loansTable.Col(colReturnDate).IsNull()).
			Order(loansTable.Col(colLoanDate).Desc())
	} else {
		selectStmt = selectStmt.
			Where(loansTable.Col(colReturnDate).IsNotNull()).
			Order(loansTable.Col(colReturnDate).Desc())
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", toSQLErr
	}

	return sqlQuery, nil
}

func (cs *CirculationStore) itemColumns(selectStmt *goqu.SelectDataset) *goqu.SelectDataset {
	return selectStmt.Select(
		goqu.C(colItemID),
		goqu.C(colTitle),
		goqu.C(colItemType),
		goqu.C(colIsAvailable),
		goqu.C(colAuthor),
		goqu.C(colISBN),
		goqu.C(colPublisher),
		goqu.C(colISSN),
		goqu.C(colDirector),
		goqu.C(colCatalogNumber),
	)
}

// queryCatalog runs a catalog read outside any transaction, honoring the
// consistency level carried in the context for replica routing.
func (cs *CirculationStore) queryCatalog(ctx context.Context, sqlQuery string) (adapters.DBRows, error) {
	start := cs.clock()
	rows, queryErr := cs.db.Query(ctx, sqlQuery)
	cs.logQueryWithDuration(ctx, sqlQuery, actionQueryCatalog, cs.clock().Sub(start))

	if queryErr != nil {
		cs.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(circulation.ErrQueryingCatalogFailed, queryErr)
	}

	return rows, nil
}

func (cs *CirculationStore) scanItem(rows adapters.DBRows) (circulation.Item, error) {
	var (
		empty         circulation.Item
		itemType      string
		author        sql.NullString
		isbn          sql.NullString
		publisher     sql.NullString
		issn          sql.NullString
		director      sql.NullString
		catalogNumber sql.NullString
	)

	item := circulation.Item{}

	if scanErr := rows.Scan(
		&item.ID,
		&item.Title,
		&itemType,
		&item.Available,
		&author,
		&isbn,
		&publisher,
		&issn,
		&director,
		&catalogNumber,
	); scanErr != nil {
		return empty, scanErr
	}

	parsedType, typeErr := circulation.ItemTypeFromString(itemType)
	if typeErr != nil {
		return empty, typeErr
	}

	item.Type = parsedType
	item.Author = author.String
	item.ISBN = isbn.String
	item.Publisher = publisher.String
	item.ISSN = issn.String
	item.Director = director.String
	item.CatalogNumber = catalogNumber.String

	return item, nil
}

func (cs *CirculationStore) scanLoanRecord(rows adapters.DBRows) (circulation.LoanRecord, error) {
	var (
		empty         circulation.LoanRecord
		loanID        circulation.LoanIDInt
		loanDate      time.Time
		returnDate    sql.NullTime
		itemType      string
		author        sql.NullString
		isbn          sql.NullString
		publisher     sql.NullString
		issn          sql.NullString
		director      sql.NullString
		catalogNumber sql.NullString
	)

	item := circulation.Item{}

	if scanErr := rows.Scan(
		&loanID,
		&loanDate,
		&returnDate,
		&item.ID,
		&item.Title,
		&itemType,
		&item.Available,
		&author,
		&isbn,
		&publisher,
		&issn,
		&director,
		&catalogNumber,
	); scanErr != nil {
		return empty, scanErr
	}

	parsedType, typeErr := circulation.ItemTypeFromString(itemType)
	if typeErr != nil {
		return empty, typeErr
	}

	item.Type = parsedType
	item.Author = author.String
	item.ISBN = isbn.String
	item.Publisher = publisher.String
	item.ISSN = issn.String
	item.Director = director.String
	item.CatalogNumber = catalogNumber.String

	record := circulation.LoanRecord{
		LoanID:   loanID,
		Item:     item,
		LoanDate: loanDate,
		DueDate:  loanDate.Add(item.Type.LoanDuration()),
	}

	if returnDate.Valid {
		record.ReturnDate = returnDate.Time
	}

	return record, nil
}
