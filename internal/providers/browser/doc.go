/*
Package browser renders pages in headless Chrome and pools the instances.

# Engine

ChromeEngine drives Chrome through chromedp. Every instance is launched for
one egress mode: Anonymized instances get --proxy-server pointing at the
SOCKS proxy, Direct instances never see it. A launch applies the same
hardening flags, the StealthProfile (user agent, viewport, navigator
overrides injected before every document) and the RequestFilter, which
aborts tracker hosts and heavy media while keeping branding assets.

Render opens a tab, waits for DOMContentLoaded, scrolls for a bounded random
interval and returns the serialized DOM. Failures surface as:

  - ErrNavigationTimeout when the render deadline passes
  - *StatusError when the document status is >= 400
  - *NavigationError for Chrome net errors; IsProxyError reports proxy faults

# Pool

Pool keeps at most MaxIdle idle instances on a single LIFO stack and admits
at most MaxActive checkouts through a weighted semaphore. Reused instances
are probed for liveness first; launches go through a circuit breaker.

	inst, err := pool.Acquire(ctx, resolver.Anonymized)
	if err != nil {
		return err
	}
	defer pool.Release(inst)
	page, err := inst.Render(ctx, url, browser.RenderOptions{Timeout: 60 * time.Second})
*/
package browser
