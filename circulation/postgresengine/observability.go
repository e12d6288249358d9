package postgresengine

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/parkdalelib/circulation-go/circulation"
)

// Metric names, span names, and label values emitted by the engine.
// Collectors receive these verbatim, so they are part of the public contract.
const (
	metricOperationDuration = "circulation_operation_duration_seconds"
	metricOperationErrors   = "circulation_operation_errors_total"
	metricOperationRejected = "circulation_operation_rejected_total"
	metricSQLDuration       = "circulation_sql_duration_seconds"

	spanNameBorrow  = "circulation.borrow_item"
	spanNameReturn  = "circulation.return_item"
	spanNameReserve = "circulation.reserve_item"

	operationBorrow  = "borrow"
	operationReturn  = "return"
	operationReserve = "reserve"

	errorTypeBegin  = "begin_tx"
	errorTypeQuery  = "query"
	errorTypeExec   = "exec"
	errorTypeCommit = "commit_tx"

	rejectionUnavailable     = "item_unavailable"
	rejectionLoanNotFound    = "loan_not_found"
	rejectionAlreadyReserved = "already_reserved"

	actionTxQuery      = "tx query"
	actionTxExec       = "tx exec"
	actionReserve      = "reserve insert"
	actionQueryCatalog = "catalog query"
	actionQueryLoans   = "loans query"

	labelOperation = "operation"
	labelErrorType = "error_type"
	labelRejection = "rejection"
	labelStatus    = "status"

	statusSuccess  = "success"
	statusError    = "error"
	statusRejected = "rejected"
)

// logQueryWithDuration logs the executed SQL at debug level together with its duration.
func (cs *CirculationStore) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	cs.logDebug(ctx, logMsgSQLExecuted+action,
		logAttrQuery, sqlQuery,
		logAttrDurationMS, cs.toMilliseconds(duration))

	cs.recordDuration(ctx, metricSQLDuration, duration, map[string]string{labelOperation: action})
}

// logOperation logs a completed or rejected business operation at info level,
// tagging it with a fresh operation id for correlation across log lines.
func (cs *CirculationStore) logOperation(ctx context.Context, msg string, args ...any) {
	args = append([]any{logAttrOperationID, uuid.New().String()}, args...)

	switch {
	case cs.contextualLogger != nil:
		cs.contextualLogger.InfoContext(ctx, logMsgOperation+msg, args...)
	case cs.logger != nil:
		cs.logger.Info(logMsgOperation+msg, args...)
	}
}

func (cs *CirculationStore) logDebug(ctx context.Context, msg string, args ...any) {
	switch {
	case cs.contextualLogger != nil:
		cs.contextualLogger.DebugContext(ctx, msg, args...)
	case cs.logger != nil:
		cs.logger.Debug(msg, args...)
	}
}

func (cs *CirculationStore) logWarn(ctx context.Context, msg string, args ...any) {
	switch {
	case cs.contextualLogger != nil:
		cs.contextualLogger.WarnContext(ctx, msg, args...)
	case cs.logger != nil:
		cs.logger.Warn(msg, args...)
	}
}

func (cs *CirculationStore) logError(ctx context.Context, msg string, err error, args ...any) {
	args = append([]any{logAttrError, err.Error()}, args...)

	switch {
	case cs.contextualLogger != nil:
		cs.contextualLogger.ErrorContext(ctx, msg, args...)
	case cs.logger != nil:
		cs.logger.Error(msg, args...)
	}
}

// startOperationSpan opens a tracing span for a circulation operation.
// With no tracing collector configured it is a no-op and returns a nil span,
// which the finish helpers tolerate.
func (cs *CirculationStore) startOperationSpan(
	ctx context.Context,
	spanName string,
	subjectID int64,
	userID int64,
) (context.Context, circulation.SpanContext) {

	if cs.tracingCollector == nil {
		return ctx, nil
	}

	attrs := map[string]string{
		"subject_id": strconv.FormatInt(subjectID, 10),
	}
	if userID != 0 {
		attrs["user_id"] = strconv.FormatInt(userID, 10)
	}

	return cs.tracingCollector.StartSpan(ctx, spanName, attrs)
}

func (cs *CirculationStore) finishOperationSuccess(ctx context.Context, span circulation.SpanContext, operation string, duration time.Duration) {
	cs.recordDuration(ctx, metricOperationDuration, duration, map[string]string{
		labelOperation: operation,
		labelStatus:    statusSuccess,
	})

	cs.finishSpan(span, statusSuccess)
}

func (cs *CirculationStore) finishOperationError(ctx context.Context, span circulation.SpanContext, operation string, errorType string, duration time.Duration) {
	cs.recordDuration(ctx, metricOperationDuration, duration, map[string]string{
		labelOperation: operation,
		labelStatus:    statusError,
	})
	cs.incrementCounter(ctx, metricOperationErrors, map[string]string{
		labelOperation: operation,
		labelErrorType: errorType,
	})

	cs.finishSpan(span, statusError)
}

func (cs *CirculationStore) finishOperationRejected(ctx context.Context, span circulation.SpanContext, operation string, rejection string, duration time.Duration) {
	cs.recordDuration(ctx, metricOperationDuration, duration, map[string]string{
		labelOperation: operation,
		labelStatus:    statusRejected,
	})
	cs.incrementCounter(ctx, metricOperationRejected, map[string]string{
		labelOperation: operation,
		labelRejection: rejection,
	})

	cs.finishSpan(span, statusRejected)
}

func (cs *CirculationStore) finishSpan(span circulation.SpanContext, status string) {
	if cs.tracingCollector == nil || span == nil {
		return
	}

	cs.tracingCollector.FinishSpan(span, status, nil)
}

// recordDuration prefers the context-aware collector methods when the
// configured collector supports them.
func (cs *CirculationStore) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if cs.metricsCollector == nil {
		return
	}

	if contextual, ok := cs.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	cs.metricsCollector.RecordDuration(metric, duration, labels)
}

func (cs *CirculationStore) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if cs.metricsCollector == nil {
		return
	}

	if contextual, ok := cs.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	cs.metricsCollector.IncrementCounter(metric, labels)
}

func (cs *CirculationStore) toMilliseconds(duration time.Duration) float64 {
	return float64(duration.Nanoseconds()) / 1e6
}
