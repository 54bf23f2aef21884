package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
)

type fakeBrowser struct {
	id     int
	mode   resolver.Mode
	dead   atomic.Bool
	closed atomic.Bool
}

func (b *fakeBrowser) Render(_ context.Context, url string, _ RenderOptions) (*Page, error) {
	return &Page{HTML: "<html><body>" + url + "</body></html>", Status: 200, FinalURL: url}, nil
}

func (b *fakeBrowser) Version(ctx context.Context) (string, error) {
	if b.dead.Load() {
		return "", errors.New("target closed")
	}
	return "HeadlessChrome/123.0", ctx.Err()
}

func (b *fakeBrowser) Close() error {
	b.closed.Store(true)
	return nil
}

type fakeEngine struct {
	mu       sync.Mutex
	launched []*fakeBrowser
	failNext error
	block    chan struct{}
}

func (e *fakeEngine) Launch(ctx context.Context, mode resolver.Mode) (Browser, error) {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failNext != nil {
		err := e.failNext
		e.failNext = nil
		return nil, err
	}
	b := &fakeBrowser{id: len(e.launched), mode: mode}
	e.launched = append(e.launched, b)
	return b, nil
}

func (e *fakeEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.launched)
}
