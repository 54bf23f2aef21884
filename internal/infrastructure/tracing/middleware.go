package tracing

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPMiddleware opens a span per request, named after the matched route,
// and echoes the trace headers on the response
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID, parentID := FromHeaders(c.Request.Header)
		ctx := withIDs(c.Request.Context(), traceID, parentID)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, "http "+route)
		span.Annotate(
			zap.String("http.method", c.Request.Method),
			zap.String("http.path", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderTraceID, string(span.TraceID))
		c.Header(HeaderSpanID, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
		}
		tracer.End(span, err)
	}
}
