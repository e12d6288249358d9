package postgresengine

import (
	"strings"
	"time"

	"github.com/parkdalelib/circulation-go/circulation"
)

// Option defines a functional option for configuring the CirculationStore.
type Option func(*CirculationStore) error

// WithItemsTableName sets a custom table name for the catalog.
func WithItemsTableName(name string) Option {
	return func(cs *CirculationStore) error {
		if strings.TrimSpace(name) == "" {
			return circulation.ErrEmptyTableName
		}

		cs.itemsTableName = name

		return nil
	}
}

// WithLoansTableName sets a custom table name for the loan ledger.
func WithLoansTableName(name string) Option {
	return func(cs *CirculationStore) error {
		if strings.TrimSpace(name) == "" {
			return circulation.ErrEmptyTableName
		}

		cs.loansTableName = name

		return nil
	}
}

// WithReservationsTableName sets a custom table name for reservations.
func WithReservationsTableName(name string) Option {
	return func(cs *CirculationStore) error {
		if strings.TrimSpace(name) == "" {
			return circulation.ErrEmptyTableName
		}

		cs.reservationsTableName = name

		return nil
	}
}

// WithLogger sets a logger for SQL query logging, warnings, and error reporting.
func WithLogger(logger circulation.Logger) Option {
	return func(cs *CirculationStore) error {
		cs.logger = logger

		return nil
	}
}

// WithContextualLogger sets a context-aware logger with automatic trace correlation.
// When both a Logger and a ContextualLogger are configured, the contextual one wins.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(cs *CirculationStore) error {
		cs.contextualLogger = logger

		return nil
	}
}

// WithMetrics sets a metrics collector for operation durations and outcome counters.
// Collectors implementing circulation.ContextualMetricsCollector get the
// context-aware methods called for trace correlation.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(cs *CirculationStore) error {
		cs.metricsCollector = collector

		return nil
	}
}

// WithTracing sets a tracing collector that receives a span per operation.
func WithTracing(collector circulation.TracingCollector) Option {
	return func(cs *CirculationStore) error {
		cs.tracingCollector = collector

		return nil
	}
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(cs *CirculationStore) error {
		if clock == nil {
			return circulation.ErrNilClock
		}

		cs.clock = clock

		return nil
	}
}
