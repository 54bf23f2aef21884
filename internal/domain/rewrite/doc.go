// Package rewrite turns a rendered page into one whose navigation stays
// inside the proxy.
//
// Anchors are rewritten server-side to /browse links; forms are annotated
// with their resolved action; a small script intercepts clicks, submits and
// window.open for anything added after load. A fixed overlay shows the page
// origin and routing mode. Rewriting is best effort: RewriteOrOriginal
// serves the untouched page when any step fails.
package rewrite
