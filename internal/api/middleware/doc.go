// Package middleware provides the HTTP middleware stack for the proxy.
//
// Middleware stack includes:
//   - CORS: read-only cross-origin access to status endpoints
//   - RateLimit: Per-IP token bucket rate limiting with idle client cleanup
//   - RequestLogger: one zap line per request, correlated by trace ID
//
// Rate Limiting:
//   - Token bucket algorithm (golang.org/x/time/rate)
//   - Health and metrics endpoints exempt
//   - Global rate limiting option
package middleware
