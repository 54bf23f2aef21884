package tracing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/shared/id"
	"go.uber.org/zap"
)

type TraceID = id.TraceID

type SpanID = id.SpanID

const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"

	maxInboundIDLen = 64
)

// Span is one timed stage of a request
type Span struct {
	TraceID  TraceID
	SpanID   SpanID
	ParentID SpanID
	Name     string

	start    time.Time
	duration time.Duration
	status   int
	err      error
	fields   []zap.Field
}

// SetTag attaches a string attribute that is logged with the span
func (s *Span) SetTag(key, value string) {
	s.fields = append(s.fields, zap.String(key, value))
}

// Annotate attaches typed attributes
func (s *Span) Annotate(fields ...zap.Field) {
	s.fields = append(s.fields, fields...)
}

func (s *Span) SetStatus(code int) {
	s.status = code
}

func (s *Span) Duration() time.Duration {
	return s.duration
}

// Tracer logs finished spans from a single collector goroutine.
// A nil *Tracer hands out detached spans and drops them on End.
type Tracer struct {
	service string
	logger  *zap.Logger
	queue   chan *Span

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger,
		queue:   make(chan *Span, 1024),
		done:    make(chan struct{}),
	}
	go t.collect()
	return t
}

// StartSpan opens a child of the span ctx carries, or a new trace root
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = id.NewTraceID()
	}
	span := &Span{
		TraceID:  traceID,
		SpanID:   id.NewSpanID(),
		ParentID: GetSpanID(ctx),
		Name:     name,
		start:    time.Now(),
	}
	return span, withIDs(ctx, span.TraceID, span.SpanID)
}

// End stamps the duration, records err and queues the span.
// Spans ended after Close, or while the queue is full, are dropped.
func (t *Tracer) End(span *Span, err error) {
	span.duration = time.Since(span.start)
	if err != nil {
		span.err = err
		if span.status == 0 {
			span.status = http.StatusInternalServerError
		}
	}
	if t == nil {
		return
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- span:
	default:
		t.logger.Warn("Span queue full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("operation", span.Name))
	}
}

// Close drains queued spans and stops the collector
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	<-t.done
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.queue {
		t.write(span)
	}
}

func (t *Tracer) write(span *Span) {
	fields := make([]zap.Field, 0, 6+len(span.fields))
	fields = append(fields,
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.String("service", t.service),
		zap.Duration("duration", span.duration),
	)
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	if span.status != 0 {
		fields = append(fields, zap.Int("status", span.status))
	}
	fields = append(fields, span.fields...)

	if span.err != nil {
		t.logger.Warn("span completed with error", append(fields, zap.Error(span.err))...)
		return
	}
	t.logger.Debug("span completed", fields...)
}

// FromHeaders reads caller-supplied trace and parent span IDs.
// Oversized or non-printable values are ignored.
func FromHeaders(h http.Header) (TraceID, SpanID) {
	return TraceID(inboundID(h.Get(HeaderTraceID))), SpanID(inboundID(h.Get(HeaderSpanID)))
}

func inboundID(v string) string {
	if len(v) > maxInboundIDLen {
		return ""
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7e {
			return ""
		}
	}
	return v
}

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

func withIDs(ctx context.Context, traceID TraceID, spanID SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, spanIDKey, spanID)
	}
	return ctx
}

func GetTraceID(ctx context.Context) TraceID {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	return traceID
}

func GetSpanID(ctx context.Context) SpanID {
	spanID, _ := ctx.Value(spanIDKey).(SpanID)
	return spanID
}

// Field returns the trace ID of ctx as a zap field, for log correlation
func Field(ctx context.Context) zap.Field {
	return zap.String("trace_id", string(GetTraceID(ctx)))
}
