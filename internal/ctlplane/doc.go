// Package ctlplane implements the daemon's local control channel.
//
// # Overview
//
// The daemon listens on a Unix socket (default /run/droplist/droplist.sock).
// Each connection carries exactly one command on a single line; no reply is
// written. Accepted commands are handed to the daemon as Requests; the
// accept loop takes the next connection only after the daemon marks the
// current request Done, so commands never run concurrently.
//
//	droplist send update → Unix socket → Server → Requests() → daemon loop
//
// # Commands
//
//   - reload-cache: re-apply the cached entry list
//   - force-update: fetch the feed regardless of the rate limit
//   - update: fetch the feed if the rate limit allows
//   - stop: tear down the chain and exit
//   - status: log current state
package ctlplane
