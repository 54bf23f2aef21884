package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIsUniqueAndSortable(t *testing.T) {
	gen := NewGenerator()

	first := gen.Next()
	second := gen.Next()

	assert.Len(t, first, 26)
	assert.NotEqual(t, first, second)
	assert.Less(t, first, second)
}

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		prefix string
		value  string
	}{
		{TracePrefix, NewTraceID().String()},
		{SpanPrefix, NewSpanID().String()},
		{ConnPrefix, NewConnID().String()},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			prefix, ulidPart, found := strings.Cut(tt.value, "_")
			require.True(t, found)
			assert.Equal(t, tt.prefix, prefix)
			_, ok := Created(ulidPart)
			assert.True(t, ok)
		})
	}
}

func TestCreated(t *testing.T) {
	fixed := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	gen := NewGenerator()
	gen.now = func() time.Time { return fixed }

	got, ok := Created(gen.Prefixed(TracePrefix))
	require.True(t, ok)
	assert.True(t, fixed.Equal(got))

	for _, bad := range []string{"", "invalid", "trc_1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		_, ok := Created(bad)
		assert.False(t, ok, bad)
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	ids := make(chan string, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ids <- gen.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}
