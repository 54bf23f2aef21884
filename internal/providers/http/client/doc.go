// Package client provides the outbound HTTP client used for connectivity probes.
//
// Built on go-resty/resty over a pooled transport from go-retryablehttp.
// When Options.SOCKSAddr is set every connection is dialed through the
// SOCKS5 proxy via golang.org/x/net/proxy, so DNS resolution also happens
// on the far side of the proxy.
//
// Features:
//   - Circuit breaker around each request (resilience.Breaker)
//   - Per-client rate limiting
//   - Context-based cancellation
//
// Example Usage:
//
//	c, err := client.NewClient(client.Options{SOCKSAddr: "tor-proxy:9050"})
//	req, err := c.Request(ctx)
//	resp, err := c.ExecuteWithBreaker(func() (*resty.Response, error) {
//		return req.Get("https://check.torproject.org/api/ip")
//	})
package client
