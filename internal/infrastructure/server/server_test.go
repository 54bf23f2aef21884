package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.RateLimit.Enabled = false

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		contains   string
	}{
		{"health", "/health", http.StatusOK, "OK"},
		{"landing", "/", http.StatusOK, "Privacy-First News Browser"},
		{"stats", "/stats", http.StatusOK, `"connectivity"`},
		{"metrics", "/metrics", http.StatusOK, "newsproxy_"},
		{"browse without url", "/browse", http.StatusBadRequest, "Missing URL parameter"},
		{"catch-all domain", "/bbc.com", http.StatusFound, ""},
		{"catch-all unknown", "/nothing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.contains != "" {
				assert.Contains(t, w.Body.String(), tt.contains)
			}
			assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
		})
	}
}

func TestCloseWithoutRun(t *testing.T) {
	srv := newTestServer(t)
	assert.NoError(t, srv.Close())
	assert.NoError(t, srv.Close())
}
