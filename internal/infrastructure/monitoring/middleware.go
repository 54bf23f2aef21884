package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware records one HTTP observation per request, labeled by route
// template. Catch-all redirects share the "unmatched" label and scrapes of
// /metrics are not counted.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
			int64(max(c.Writer.Size(), 0)),
		)
	}
}

// Timer measures one stage of the browse pipeline
type Timer struct {
	metrics *Metrics
	stage   string
	start   time.Time
}

func NewTimer(metrics *Metrics, stage string) *Timer {
	return &Timer{metrics: metrics, stage: stage, start: time.Now()}
}

// Stop records the elapsed time under outcome and returns it
func (t *Timer) Stop(outcome string) time.Duration {
	elapsed := time.Since(t.start)
	t.metrics.RecordStage(t.stage, outcome, elapsed)
	return elapsed
}
