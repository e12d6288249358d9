// Package main implements a load generator that drives realistic borrow,
// return, reserve, and catalog-browsing traffic against a CirculationStore
// with a configurable request rate.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkdalelib/circulation-go/circulation"
	"github.com/parkdalelib/circulation-go/circulation/postgresengine"
)

const seedUserCount = 100

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS library_items (
		item_id        BIGSERIAL PRIMARY KEY,
		title          TEXT        NOT NULL,
		type           TEXT        NOT NULL,
		is_available   BOOLEAN     NOT NULL DEFAULT TRUE,
		author         TEXT,
		isbn           TEXT,
		publisher      TEXT,
		issn           TEXT,
		director       TEXT,
		catalog_number TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		loan_id     BIGSERIAL PRIMARY KEY,
		user_id     BIGINT      NOT NULL,
		item_id     BIGINT      NOT NULL REFERENCES library_items (item_id),
		loan_date   TIMESTAMPTZ NOT NULL,
		return_date TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_one_open_per_item
		ON loans (item_id) WHERE return_date IS NULL`,
	`CREATE TABLE IF NOT EXISTS reservations (
		reservation_id   BIGSERIAL PRIMARY KEY,
		user_id          BIGINT      NOT NULL,
		item_id          BIGINT      NOT NULL REFERENCES library_items (item_id),
		reservation_date TIMESTAMPTZ NOT NULL,
		expiry_date      TIMESTAMPTZ NOT NULL
	)`,
}

// LoadGenerator orchestrates load generation against the CirculationStore
// with a configurable request rate and scenario mix.
type LoadGenerator struct {
	store  *postgresengine.CirculationStore
	config Config

	// Seeded catalog and open-loan bookkeeping
	itemIDs     []circulation.ItemIDInt
	openLoanIDs []circulation.LoanIDInt

	// Rate limiting
	ticker   *time.Ticker
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Metrics and state
	requestCount  int64
	rejectedCount int64
	errorCount    int64
	startTime     time.Time
	mu            sync.RWMutex
}

// NewLoadGenerator creates a new LoadGenerator instance with the provided store and configuration.
func NewLoadGenerator(store *postgresengine.CirculationStore, config Config) *LoadGenerator {
	return &LoadGenerator{
		store:    store,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Seed creates the schema if it does not exist and inserts the configured
// number of catalog items, remembering their IDs for scenario execution.
func (lg *LoadGenerator) Seed(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range schemaStatements {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	for i := 0; i < lg.config.InitialItems; i++ {
		sqlStatement, err := lg.buildSeedItemStatement(i)
		if err != nil {
			return fmt.Errorf("building seed statement: %w", err)
		}

		var itemID circulation.ItemIDInt
		if err := pool.QueryRow(ctx, sqlStatement).Scan(&itemID); err != nil {
			return fmt.Errorf("seeding catalog item: %w", err)
		}

		lg.itemIDs = append(lg.itemIDs, itemID)
	}

	log.Printf("Seeded %d catalog items", len(lg.itemIDs))

	return nil
}

func (lg *LoadGenerator) buildSeedItemStatement(num int) (string, error) {
	record := goqu.Record{
		"title":        fmt.Sprintf("Load Test Item %d", num),
		"is_available": true,
	}

	switch num % 3 {
	case 0:
		record["type"] = circulation.ItemTypeBook.String()
		record["author"] = "Test Author"
		record["isbn"] = fmt.Sprintf("978-%010d", num)
	case 1:
		record["type"] = circulation.ItemTypeMagazine.String()
		record["publisher"] = "Test Publisher"
		record["issn"] = fmt.Sprintf("%04d-%04d", num/10000, num%10000)
	default:
		record["type"] = circulation.ItemTypeMedia.String()
		record["director"] = "Test Director"
		record["catalog_number"] = fmt.Sprintf("CAT-%06d", num)
	}

	sqlStatement, _, err := goqu.Dialect("postgres").
		Insert("library_items").
		Rows(record).
		Returning("item_id").
		ToSQL()

	return sqlStatement, err
}

// Start begins load generation with the configured request rate.
// It runs until the context is cancelled or Stop() is called.
func (lg *LoadGenerator) Start(ctx context.Context) error {
	lg.mu.Lock()
	lg.startTime = time.Now()
	lg.requestCount = 0
	lg.rejectedCount = 0
	lg.errorCount = 0
	lg.mu.Unlock()

	interval := time.Second / time.Duration(lg.config.Rate)
	lg.ticker = time.NewTicker(interval)
	defer lg.ticker.Stop()

	log.Printf("Load generator starting with %d requests/second (interval: %v), initial goroutines: %d",
		lg.config.Rate, interval, runtime.NumGoroutine())

	lg.wg.Add(1)
	go lg.metricsReporter(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Load generator stopping due to context cancellation")
			return ctx.Err()

		case <-lg.stopChan:
			log.Printf("Load generator stopping due to stop signal")
			return nil

		case <-lg.ticker.C:
			lg.wg.Add(1)
			go lg.executeScenario(ctx)
		}
	}
}

// Stop gracefully shuts down the load generator.
func (lg *LoadGenerator) Stop(ctx context.Context) error {
	close(lg.stopChan)

	done := make(chan struct{})
	go func() {
		lg.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lg.logStats("Final Stats")
		return nil
	case <-ctx.Done():
		lg.logStats("Final Stats")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// executeScenario runs a single scenario chosen from the configured weights.
func (lg *LoadGenerator) executeScenario(ctx context.Context) {
	defer lg.wg.Done()

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	if rand.Intn(100) < lg.config.ScenarioWeights[0] { //nolint:gosec // weak random is fine for load generation
		err = lg.runCirculationScenario(opCtx)
	} else {
		err = lg.runBrowsingScenario(opCtx)
	}

	lg.mu.Lock()
	lg.requestCount++
	if err != nil {
		if isBusinessRejection(err) {
			lg.rejectedCount++
		} else if !errors.Is(err, context.Canceled) {
			lg.errorCount++
			log.Printf("Scenario error: %v", err)
		}
	}
	lg.mu.Unlock()
}

// runCirculationScenario executes one mutating operation: borrow, return, or reserve.
func (lg *LoadGenerator) runCirculationScenario(ctx context.Context) error {
	userID := lg.randomUserID()

	switch rand.Intn(3) { //nolint:gosec // weak random is fine for load generation
	case 0:
		loan, err := lg.store.BorrowItem(ctx, lg.randomItemID(), userID)
		if err != nil {
			return err
		}

		lg.mu.Lock()
		lg.openLoanIDs = append(lg.openLoanIDs, loan.ID)
		lg.mu.Unlock()

		return nil

	case 1:
		loanID, ok := lg.takeOpenLoanID()
		if !ok {
			// Nothing lent out yet, borrow instead
			loan, err := lg.store.BorrowItem(ctx, lg.randomItemID(), userID)
			if err != nil {
				return err
			}

			lg.mu.Lock()
			lg.openLoanIDs = append(lg.openLoanIDs, loan.ID)
			lg.mu.Unlock()

			return nil
		}

		_, err := lg.store.ReturnItem(ctx, loanID)

		return err

	default:
		_, err := lg.store.ReserveItem(ctx, lg.randomItemID(), userID)

		return err
	}
}

// runBrowsingScenario executes one read-only operation: search, lookup, or loan listing.
func (lg *LoadGenerator) runBrowsingScenario(ctx context.Context) error {
	readCtx := circulation.WithEventualConsistency(ctx)

	switch rand.Intn(3) { //nolint:gosec // weak random is fine for load generation
	case 0:
		filter := circulation.BuildItemFilter().
			Matching().
			AnyItemTypeOf(circulation.ItemTypeBook, circulation.ItemTypeMagazine).
			Finalize()

		_, err := lg.store.FindItems(readCtx, filter)

		return err

	case 1:
		_, err := lg.store.GetItem(readCtx, lg.randomItemID())

		return err

	default:
		_, err := lg.store.CurrentLoans(readCtx, lg.randomUserID())

		return err
	}
}

func (lg *LoadGenerator) randomItemID() circulation.ItemIDInt {
	return lg.itemIDs[rand.Intn(len(lg.itemIDs))] //nolint:gosec // weak random is fine for load generation
}

func (lg *LoadGenerator) randomUserID() circulation.UserIDInt {
	return circulation.UserIDInt(rand.Int63n(seedUserCount) + 1) //nolint:gosec // weak random is fine for load generation
}

func (lg *LoadGenerator) takeOpenLoanID() (circulation.LoanIDInt, bool) {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	if len(lg.openLoanIDs) == 0 {
		return 0, false
	}

	idx := rand.Intn(len(lg.openLoanIDs)) //nolint:gosec // weak random is fine for load generation
	loanID := lg.openLoanIDs[idx]
	lg.openLoanIDs = append(lg.openLoanIDs[:idx], lg.openLoanIDs[idx+1:]...)

	return loanID, true
}

// isBusinessRejection reports whether the error is an expected business
// outcome under concurrent load rather than an infrastructure failure.
func isBusinessRejection(err error) bool {
	return errors.Is(err, circulation.ErrItemUnavailable) ||
		errors.Is(err, circulation.ErrLoanNotFound) ||
		errors.Is(err, circulation.ErrAlreadyReserved) ||
		errors.Is(err, circulation.ErrItemNotFound)
}

// metricsReporter logs statistics periodically.
func (lg *LoadGenerator) metricsReporter(ctx context.Context) {
	defer lg.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lg.stopChan:
			return
		case <-ticker.C:
			lg.logStats("Stats")
		}
	}
}

func (lg *LoadGenerator) logStats(prefix string) {
	lg.mu.RLock()
	duration := time.Since(lg.startTime)
	requests := lg.requestCount
	rejected := lg.rejectedCount
	errorCount := lg.errorCount
	openLoans := len(lg.openLoanIDs)
	lg.mu.RUnlock()

	if duration <= 0 || requests == 0 {
		return
	}

	rps := float64(requests) / duration.Seconds()
	log.Printf("%s: %d requests in %v (%.1f req/s), %d rejected, %d errors, %d open loans, %d goroutines",
		prefix, requests, duration.Truncate(time.Second), rps, rejected, errorCount, openLoans, runtime.NumGoroutine())
}
