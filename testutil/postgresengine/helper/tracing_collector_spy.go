package helper

import (
	"context"
	"sync"

	"github.com/parkdalelib/circulation-go/circulation"
)

// SpySpanContext implements circulation.SpanContext for testing tracing functionality.
type SpySpanContext struct {
	Name       string
	status     string
	attributes map[string]string
	mu         sync.Mutex
}

// SetStatus implements the circulation.SpanContext interface.
func (c *SpySpanContext) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// AddAttribute implements the circulation.SpanContext interface.
func (c *SpySpanContext) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attributes == nil {
		c.attributes = make(map[string]string)
	}
	c.attributes[key] = value
}

// Status returns the recorded span status.
func (c *SpySpanContext) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// SpyFinishedSpan represents a finished span captured by the spy.
type SpyFinishedSpan struct {
	Name   string
	Status string
	Attrs  map[string]string
}

// TracingCollectorSpy is a TracingCollector implementation that captures spans for testing.
type TracingCollectorSpy struct {
	startedSpans  []*SpySpanContext
	finishedSpans []SpyFinishedSpan
	mu            sync.Mutex
}

// NewTracingCollectorSpy creates a new TracingCollectorSpy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

// StartSpan implements the circulation.TracingCollector interface.
func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, circulation.SpanContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := &SpySpanContext{Name: name, attributes: copyLabels(attrs)}
	s.startedSpans = append(s.startedSpans, span)

	return ctx, span
}

// FinishSpan implements the circulation.TracingCollector interface.
func (s *TracingCollectorSpy) FinishSpan(spanCtx circulation.SpanContext, status string, attrs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := SpyFinishedSpan{Status: status, Attrs: copyLabels(attrs)}
	if spy, ok := spanCtx.(*SpySpanContext); ok {
		finished.Name = spy.Name
	}

	s.finishedSpans = append(s.finishedSpans, finished)
}

// GetFinishedSpans returns all finished spans captured so far.
func (s *TracingCollectorSpy) GetFinishedSpans() []SpyFinishedSpan {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpyFinishedSpan(nil), s.finishedSpans...)
}

// Reset clears all captured spans.
func (s *TracingCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startedSpans = nil
	s.finishedSpans = nil
}
