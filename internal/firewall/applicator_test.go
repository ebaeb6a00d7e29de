package firewall

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/droplist/internal/errors"
)

func entryList(n int) []string {
	entries := make([]string, n)
	for i := range entries {
		entries[i] = fmt.Sprintf("10.%d.%d.0/24", i/256, i%256)
	}
	return entries
}

func TestApplicator_FirstApplyCreatesAndHooks(t *testing.T) {
	fb := NewFakeBackend()
	app := NewApplicator(fb, ActionDrop, false, nil)

	require.NoError(t, app.Apply([]string{"1.2.3.0/24", "5.6.7.8"}))

	chain, hooks := fb.Installed()
	assert.True(t, chain)
	assert.Equal(t, 1, hooks)

	rules := fb.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "1.2.3.0/24", rules[0].Source.String())
	assert.Equal(t, "5.6.7.8/32", rules[1].Source.String())
	assert.Equal(t, ActionDrop, rules[0].Action)

	assert.Equal(t, []string{"ChainExists", "CreateChain", "InsertHook", "AppendRule", "AppendRule"}, fb.Ops())
}

func TestApplicator_ReapplyFlushesInPlace(t *testing.T) {
	fb := NewFakeBackend()
	app := NewApplicator(fb, ActionDrop, true, nil)

	require.NoError(t, app.Apply(entryList(10)))
	fb.ResetOps()

	require.NoError(t, app.Apply([]string{"192.0.2.0/24"}))

	ops := fb.Ops()
	assert.Equal(t, []string{"ChainExists", "FlushChain", "AppendRule"}, ops)
	assert.NotContains(t, ops, "DeleteChain")
	assert.NotContains(t, ops, "InsertHook")

	_, hooks := fb.Installed()
	assert.Equal(t, 1, hooks, "reapply must not add a second hook")

	rules := fb.Rules()
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Counter)
}

func TestApplicator_RuleCountMatchesEntries(t *testing.T) {
	for _, n := range []int{0, 1, 3, 500} {
		t.Run(fmt.Sprintf("%d entries", n), func(t *testing.T) {
			fb := NewFakeBackend()
			app := NewApplicator(fb, ActionReject, false, nil)
			entries := entryList(n)

			require.NoError(t, app.Apply(entries))

			count, err := app.RuleCount()
			require.NoError(t, err)
			assert.Equal(t, n, count)

			for i, r := range fb.Rules() {
				assert.Equal(t, entries[i], r.Source.String(), "rule %d out of order", i)
			}
		})
	}
}

func TestApplicator_EmptyListLeavesHookedEmptyChain(t *testing.T) {
	fb := NewFakeBackend()
	app := NewApplicator(fb, ActionDrop, false, nil)

	require.NoError(t, app.Apply(entryList(3)))
	require.NoError(t, app.Apply([]string{}))

	chain, hooks := fb.Installed()
	assert.True(t, chain)
	assert.Equal(t, 1, hooks)
	assert.Empty(t, fb.Rules())
}

func TestApplicator_PartialFailureNoRollback(t *testing.T) {
	fb := NewFakeBackend()
	fb.FailAppendAt = 2
	app := NewApplicator(fb, ActionDrop, false, nil)

	err := app.Apply(entryList(5))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRuleApply))
	assert.Equal(t, 2, errors.GetAttributes(err)["applied"])

	assert.Len(t, fb.Rules(), 2, "rules appended before the failure stay installed")
}

func TestApplicator_InvalidEntry(t *testing.T) {
	fb := NewFakeBackend()
	app := NewApplicator(fb, ActionDrop, false, nil)

	err := app.Apply([]string{"1.1.1.1", "not-an-ip"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRuleApply))
	assert.Empty(t, fb.Ops(), "nothing is touched when an entry cannot be parsed")
}

func TestApplicator_CreateFailure(t *testing.T) {
	fb := NewFakeBackend()
	fb.Fail["CreateChain"] = fmt.Errorf("table missing")
	app := NewApplicator(fb, ActionDrop, false, nil)

	err := app.Apply(entryList(1))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRuleApply))
	assert.Contains(t, err.Error(), "table missing")
}

func TestApplicator_Teardown(t *testing.T) {
	fb := NewFakeBackend()
	app := NewApplicator(fb, ActionDrop, false, nil)

	require.NoError(t, app.Apply(entryList(500)))
	fb.ResetOps()

	require.NoError(t, app.Teardown())

	assert.Equal(t, []string{"RemoveHook", "ChainExists", "FlushChain", "DeleteChain"}, fb.Ops())
	chain, hooks := fb.Installed()
	assert.False(t, chain)
	assert.Zero(t, hooks)
}

func TestApplicator_TeardownWithoutChain(t *testing.T) {
	fb := NewFakeBackend()
	app := NewApplicator(fb, ActionDrop, false, nil)

	require.NoError(t, app.Teardown())
	assert.Equal(t, []string{"RemoveHook", "ChainExists"}, fb.Ops())
}

func TestApplicator_TeardownFailure(t *testing.T) {
	fb := NewFakeBackend()
	app := NewApplicator(fb, ActionDrop, false, nil)
	require.NoError(t, app.Apply(entryList(2)))

	fb.Fail["DeleteChain"] = fmt.Errorf("device busy")
	err := app.Teardown()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTeardown))
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"192.0.2.1", "192.0.2.1/32", true},
		{"192.0.2.77/24", "192.0.2.0/24", true},
		{"2001:db8::1", "2001:db8::1/128", true},
		{"::ffff:192.0.2.1", "192.0.2.1/32", true},
		{"2001:db8::/32", "2001:db8::/32", true},
		{"garbage", "", false},
		{"10.0.0.0/40", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParseSource(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
		})
	}
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("REJECT")
	require.NoError(t, err)
	assert.Equal(t, ActionReject, a)

	a, err = ParseAction("")
	require.NoError(t, err)
	assert.Equal(t, ActionDrop, a)

	_, err = ParseAction("masquerade")
	assert.Error(t, err)
}

func TestChainSpec_Validate(t *testing.T) {
	good := ChainSpec{Family: "inet", Table: "filter", BaseChain: "input", Chain: "droplist"}
	assert.NoError(t, good.Validate())

	bad := good
	bad.Chain = "droplist; flush ruleset"
	assert.Error(t, bad.Validate())

	bad = good
	bad.Family = "arp"
	assert.Error(t, bad.Validate())

	bad = good
	bad.Chain = "input"
	assert.Error(t, bad.Validate())
}
