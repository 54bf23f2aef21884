// Package id provides ULID generation for log correlation.
//
// ULIDs sort by creation time, which keeps identifiers readable in log
// streams. A prefix names what the ID belongs to:
//
//	trc_01J9Z3Q4WQ0V5C8C9F2X4M7N1B   one per inbound request
//	span_01J9Z3Q4WR7T3C2A8B4D6E0F9G  one per pipeline stage
//	ws_01J9Z3Q4WS2K8D1F5H7J9L3N5P    one per event stream connection
package id

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type TraceID string

type SpanID string

// ConnID identifies one /events connection
type ConnID string

const (
	TracePrefix = "trc"
	SpanPrefix  = "span"
	ConnPrefix  = "ws"
)

// Generator produces monotonic ULIDs; safe for concurrent use
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0), now: time.Now}
}

// Next returns a new ULID string
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// Prefixed returns prefix_ULID
func (g *Generator) Prefixed(prefix string) string {
	return prefix + "_" + g.Next()
}

var shared = NewGenerator()

func NewTraceID() TraceID { return TraceID(shared.Prefixed(TracePrefix)) }
func NewSpanID() SpanID   { return SpanID(shared.Prefixed(SpanPrefix)) }
func NewConnID() ConnID   { return ConnID(shared.Prefixed(ConnPrefix)) }

func (id TraceID) String() string { return string(id) }
func (id SpanID) String() string  { return string(id) }
func (id ConnID) String() string  { return string(id) }

// Created returns the creation time encoded in a generated ID, with or
// without its prefix. ok is false when s carries no valid ULID.
func Created(s string) (t time.Time, ok bool) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
