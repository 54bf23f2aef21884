// Package main is the entry point for the privacy-first news proxy.
//
// The server renders news pages in headless Chrome, either directly or
// through a Tor SOCKS proxy, rewrites their links so navigation stays inside
// the proxy, and caches the result for a few minutes.
//
// Configuration:
//   - Environment variables, optionally from a .env file
//   - CLI flags (override env vars)
//   - Defaults suitable for the docker-compose setup (tor-proxy:9050)
//
// Usage:
//
//	# Production mode
//	./server -port 3000 -tor-host tor-proxy
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
