// Package connectivity decides whether the anonymizing proxy is usable.
//
// The Monitor walks Uninitialized → WaitingForProxyPort → ProbingEndpoints →
// Connected/Failed. Port checks are plain TCP dials; endpoint checks go
// through the SOCKS proxy with the http/client package. Concurrent callers
// of EnsureConnected share a single in-flight probe sequence.
package connectivity
