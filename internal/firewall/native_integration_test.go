//go:build linux

package firewall

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/nftables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/droplist/internal/testutil"
)

// TestNativeBackend_Kernel runs a full apply/teardown cycle against the
// running kernel inside a throwaway table.
func TestNativeBackend_Kernel(t *testing.T) {
	testutil.RequireNftables(t)

	conn, err := nftables.New()
	require.NoError(t, err)

	table := conn.AddTable(&nftables.Table{
		Name:   fmt.Sprintf("droplist_test_%d", os.Getpid()),
		Family: nftables.TableFamilyINet,
	})
	conn.AddChain(&nftables.Chain{
		Name:     "input",
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
	})
	require.NoError(t, conn.Flush())
	t.Cleanup(func() {
		conn.DelTable(table)
		conn.Flush()
	})

	spec := ChainSpec{Family: FamilyINet, Table: table.Name, BaseChain: "input", Chain: "droplist"}
	backend, err := NewNativeBackend(spec)
	require.NoError(t, err)

	app := NewApplicator(backend, ActionDrop, true, nil)
	entries := []string{"192.0.2.0/24", "198.51.100.7", "2001:db8::/32"}

	require.NoError(t, app.Apply(entries))

	count, err := backend.RuleCount()
	require.NoError(t, err)
	assert.Equal(t, len(entries), count)

	// A second apply flushes instead of recreating
	require.NoError(t, app.Apply(entries[:1]))
	count, err = backend.RuleCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, app.Teardown())
	exists, err := backend.ChainExists()
	require.NoError(t, err)
	assert.False(t, exists)
}
