// Package firewall owns the droplist chain in the packet filter.
//
// # Overview
//
// The daemon installs a single regular chain holding one rule per blocked
// network and hooks it into an existing base chain with a jump rule. Every
// update clears the chain and rebuilds it from the entry list; the chain
// itself is never deleted while the daemon runs.
//
// # Architecture
//
//	entries → Applicator → Backend → kernel
//
// # Key Types
//
//   - [Applicator]: clear-then-rebuild and teardown sequencing
//   - [Backend]: the narrow set of chain operations the applicator needs
//   - [NativeBackend]: google/nftables over netlink
//   - [ScriptBackend]: the nft executable, rules batched through nft -f
//   - [FakeBackend]: in-memory backend for tests
//
// # Example
//
//	backend, _ := firewall.NewNativeBackend(spec)
//	app := firewall.NewApplicator(backend, firewall.ActionDrop, false, logger)
//	app.Apply([]string{"192.0.2.0/24"})
//	app.Teardown()
package firewall
