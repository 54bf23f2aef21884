package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// DefaultCORSConfig lets any origin read the JSON endpoints. Every route is
// a read-only GET, so no credentials are ever shared.
func DefaultCORSConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders: []string{
			"Accept",
			"Accept-Language",
			"Cache-Control",
			"Content-Type",
			"Origin",
			"X-Requested-With",
			"X-Trace-ID",
		},
		ExposeHeaders:    []string{"X-Cache", "X-Trace-ID", "X-Span-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}

// CORS wraps gin-contrib/cors
func CORS(cfg cors.Config) gin.HandlerFunc {
	return cors.New(cfg)
}
