// Package config provides 12-factor configuration management for the news browser proxy.
//
// Configuration is loaded from an optional .env file and environment variables
// with defaults matching the docker-compose deployment. CLI flags can override
// the server address for development.
//
// Configuration Sections:
//   - Server: HTTP listen address (port, host)
//   - Tor: SOCKS proxy address, warm-up, port-wait and probe timings, backoff
//   - Browser: Chrome executable, pool size, admission ceiling, render timeouts
//   - Cache: TTL, prune period, entry bound
//   - Resolver: optional domain override file
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("proxy via %s\n", cfg.Tor.Address())
package config
