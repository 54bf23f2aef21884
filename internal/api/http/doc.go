// Package http holds the gin handlers of the proxy: the landing page,
// /browse with its retry pages, /check-tor, /health, /stats, and the
// catch-all that sends stray navigation back through /browse.
package http
