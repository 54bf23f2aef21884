// Package server wires configuration, the connectivity monitor, the render
// pool, the page cache and the gin router into one process.
//
// Run starts the background loops (cache pruning, connectivity re-probes,
// uptime gauge) and serves HTTP; Close drains requests, stops the loops and
// terminates every browser instance.
package server
