// Package browse runs one proxied page view from URL to rewritten HTML.
//
// Failures come back as *Error with a Kind that maps to the HTTP status:
// InvalidInput 400, ConnectivityUnavailable 503, NavigationTimeout 504 and
// RenderFailure 500. Canceled marks a caller that disconnected; nothing is
// written for it. The render instance always goes back to the pool, except
// after a RenderFailure, where it is discarded.
//
// Waiting for a pool slot and launching an instance share one budget,
// AcquireTimeout (the mode's render timeout when unset); running out of it
// is a NavigationTimeout.
package browse
