// Package resolver normalizes user-supplied URLs and resolves page links.
//
// Resolve follows browser semantics in a fixed priority order: non-navigable
// targets (empty, fragments, javascript:, mailto:, tel:, data:) are skipped,
// absolute http(s) URLs pass through untouched, protocol-relative and
// root-relative references inherit the base's scheme and host, and anything
// else is resolved per RFC 3986. The same rules are mirrored by the
// interception script injected into rewritten pages.
//
// Normalize is the entry point for /browse input: domain overrides first,
// then scheme inference, then validation.
package resolver
