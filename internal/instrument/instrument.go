// Package instrument carries a trace id through each request and records
// timed spans for the work done on its behalf.
package instrument

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
)

// Instrumenter starts spans.
type Instrumenter interface {
	StartSpan(ctx context.Context, component, action string) (context.Context, Span)
}

// Span is a timed unit of work.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	TraceID() string
	SpanID() string
}

func newUUID() string {
	return uuid.New().String()
}

// WithTraceID sets the trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

func withParentSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, parentSpanIDKey, spanID)
}

func getParentSpanID(ctx context.Context) string {
	if v, ok := ctx.Value(parentSpanIDKey).(string); ok {
		return v
	}
	return ""
}

// WithInstrumenter sets the instrumenter in the context.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the instrumenter from the context,
// or a NoopInstrumenter if none is set.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return &NoopInstrumenter{}
}

// StartSpan starts a span with the instrumenter found in ctx.
func StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	return GetInstrumenter(ctx).StartSpan(ctx, component, action)
}

// LogInstrumenter writes every finished span to a structured logger at
// debug level.
type LogInstrumenter struct {
	log *slog.Logger
}

func NewLogInstrumenter(log *slog.Logger) *LogInstrumenter {
	return &LogInstrumenter{log: log}
}

func (i *LogInstrumenter) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	span := &LogSpan{
		log:          i.log,
		traceID:      GetTraceID(ctx),
		spanID:       newUUID(),
		parentSpanID: getParentSpanID(ctx),
		component:    component,
		action:       action,
		startTime:    time.Now(),
		metadata:     make(map[string]any),
	}
	return withParentSpanID(ctx, span.spanID), span
}

type LogSpan struct {
	log          *slog.Logger
	traceID      string
	spanID       string
	parentSpanID string
	component    string
	action       string
	status       string
	startTime    time.Time
	metadata     map[string]any

	mu    sync.Mutex
	ended bool
}

func (s *LogSpan) TraceID() string { return s.traceID }
func (s *LogSpan) SpanID() string  { return s.spanID }

func (s *LogSpan) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *LogSpan) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

func (s *LogSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	durationMs := float64(time.Since(s.startTime).Microseconds()) / 1000.0
	attrs := []any{
		"trace_id", s.traceID,
		"span_id", s.spanID,
		"component", s.component,
		"action", s.action,
		"duration_ms", durationMs,
		"status", s.status,
	}
	if s.parentSpanID != "" {
		attrs = append(attrs, "parent_span_id", s.parentSpanID)
	}
	for k, v := range s.metadata {
		attrs = append(attrs, k, v)
	}
	s.log.Debug("span", attrs...)
}
