// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"testing"
)

// RequireNftables skips the test unless DROPLIST_NFT_TEST is set. Such tests
// change the host's packet filter and need CAP_NET_ADMIN, so they only run in
// a disposable VM or network namespace.
func RequireNftables(t *testing.T) {
	t.Helper()
	if os.Getenv("DROPLIST_NFT_TEST") == "" {
		t.Skip("Skipping test: requires DROPLIST_NFT_TEST environment")
	}
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}
