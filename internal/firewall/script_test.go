package firewall

import (
	"fmt"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/droplist/internal/errors"
)

var testSpec = ChainSpec{Family: "inet", Table: "filter", BaseChain: "input", Chain: "droplist"}

func mustRule(t *testing.T, src string, action Action, counter bool) Rule {
	t.Helper()
	p, err := ParseSource(src)
	require.NoError(t, err)
	return Rule{Source: p, Action: action, Counter: counter}
}

func TestBuildRuleScript(t *testing.T) {
	rules := []Rule{
		mustRule(t, "1.2.3.0/24", ActionDrop, false),
		mustRule(t, "5.6.7.8", ActionDrop, true),
		mustRule(t, "2001:db8::/32", ActionReject, false),
		mustRule(t, "198.51.100.0/24", ActionAccept, false),
	}

	script := BuildRuleScript(testSpec, rules)
	expected := "" +
		"add rule inet filter droplist ip saddr 1.2.3.0/24 drop\n" +
		"add rule inet filter droplist ip saddr 5.6.7.8 counter drop\n" +
		"add rule inet filter droplist ip6 saddr 2001:db8::/32 reject with icmpx type admin-prohibited\n" +
		"add rule inet filter droplist ip saddr 198.51.100.0/24 accept\n"
	assert.Equal(t, expected, script)
}

func TestRuleStatement_RejectPerFamily(t *testing.T) {
	v4 := Rule{Source: netip.MustParsePrefix("192.0.2.0/24"), Action: ActionReject}
	v6 := Rule{Source: netip.MustParsePrefix("2001:db8::/48"), Action: ActionReject}

	assert.Equal(t, "ip saddr 192.0.2.0/24 reject with icmp type admin-prohibited", ruleStatement(v4, FamilyIPv4))
	assert.Equal(t, "ip6 saddr 2001:db8::/48 reject with icmpv6 type admin-prohibited", ruleStatement(v6, FamilyIPv6))
}

func TestScriptBackend_ApplyFirstTime(t *testing.T) {
	runner := new(MockCommandRunner)
	b, err := NewScriptBackend(runner, "/usr/sbin/nft", testSpec)
	require.NoError(t, err)

	runner.On("Output", "/usr/sbin/nft", "list", "chain", "inet", "filter", "droplist").
		Return(nil, fmt.Errorf("No such file or directory")).Once()
	runner.On("Run", "/usr/sbin/nft", "add", "chain", "inet", "filter", "droplist").Return(nil).Once()
	runner.On("Run", "/usr/sbin/nft", "insert", "rule", "inet", "filter", "input", "jump", "droplist").Return(nil).Once()
	runner.On("RunInput", mock.Anything, "/usr/sbin/nft", "-f", "-").Return(nil)

	app := NewApplicator(b, ActionDrop, false, nil)
	require.NoError(t, app.Apply([]string{"1.2.3.0/24", "5.6.7.8"}))

	runner.AssertExpectations(t)
	scripts := runner.Scripts()
	require.Len(t, scripts, 1)
	assert.Equal(t,
		"add rule inet filter droplist ip saddr 1.2.3.0/24 drop\nadd rule inet filter droplist ip saddr 5.6.7.8 drop\n",
		scripts[0])
}

func TestScriptBackend_ReapplyFlushes(t *testing.T) {
	runner := new(MockCommandRunner)
	b, err := NewScriptBackend(runner, "nft", testSpec)
	require.NoError(t, err)

	runner.On("Output", "nft", "list", "chain", "inet", "filter", "droplist").Return([]byte("table inet filter {}"), nil)
	runner.On("Run", "nft", "flush", "chain", "inet", "filter", "droplist").Return(nil).Once()
	runner.On("RunInput", mock.Anything, "nft", "-f", "-").Return(nil)

	app := NewApplicator(b, ActionDrop, false, nil)
	require.NoError(t, app.Apply([]string{"10.0.0.0/8"}))

	runner.AssertExpectations(t)
	runner.AssertNotCalled(t, "Run", "nft", "add", "chain", "inet", "filter", "droplist")
}

func TestScriptBackend_ListFailureIsNotAbsence(t *testing.T) {
	runner := new(MockCommandRunner)
	b, err := NewScriptBackend(runner, "nft", testSpec)
	require.NoError(t, err)

	runner.On("Output", "nft", "list", "chain", "inet", "filter", "droplist").
		Return(nil, fmt.Errorf("command nft failed: exit status 1: Error: Operation not permitted"))

	exists, err := b.ChainExists()
	require.Error(t, err)
	assert.False(t, exists)

	app := NewApplicator(b, ActionDrop, false, nil)
	err = app.Apply([]string{"10.0.0.0/8"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRuleApply))

	runner.AssertNotCalled(t, "Run", "nft", "add", "chain", "inet", "filter", "droplist")
	runner.AssertNotCalled(t, "Run", "nft", "insert", "rule", "inet", "filter", "input", "jump", "droplist")
}

func TestScriptBackend_TeardownListFailure(t *testing.T) {
	runner := new(MockCommandRunner)
	b, err := NewScriptBackend(runner, "nft", testSpec)
	require.NoError(t, err)

	runner.On("Output", "nft", "-a", "list", "chain", "inet", "filter", "input").Return([]byte(""), nil)
	runner.On("Output", "nft", "list", "chain", "inet", "filter", "droplist").
		Return(nil, fmt.Errorf("command nft failed: exit status 1: Error: Device or resource busy"))

	err = NewApplicator(b, ActionDrop, false, nil).Teardown()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTeardown))
}

func TestScriptBackend_TeardownMissingChain(t *testing.T) {
	runner := new(MockCommandRunner)
	b, err := NewScriptBackend(runner, "nft", testSpec)
	require.NoError(t, err)

	runner.On("Output", "nft", "-a", "list", "chain", "inet", "filter", "input").Return([]byte(""), nil)
	runner.On("Output", "nft", "list", "chain", "inet", "filter", "droplist").
		Return(nil, fmt.Errorf("command nft failed: exit status 1: Error: No such file or directory"))

	require.NoError(t, NewApplicator(b, ActionDrop, false, nil).Teardown())
	runner.AssertNotCalled(t, "Run", "nft", "delete", "chain", "inet", "filter", "droplist")
}

func TestScriptBackend_Batches(t *testing.T) {
	runner := new(MockCommandRunner)
	b, err := NewScriptBackend(runner, "nft", testSpec)
	require.NoError(t, err)

	runner.On("RunInput", mock.Anything, "nft", "-f", "-").Return(nil).Twice()
	runner.On("RunInput", mock.Anything, "nft", "-f", "-").Return(fmt.Errorf("syntax error")).Once()

	rules := make([]Rule, 0, 1200)
	for i := 0; i < 1200; i++ {
		rules = append(rules, mustRule(t, fmt.Sprintf("10.%d.%d.0/24", i/256, i%256), ActionDrop, false))
	}

	n, err := b.AppendRules(rules)
	require.Error(t, err)
	assert.Equal(t, 1000, n)

	scripts := runner.Scripts()
	require.Len(t, scripts, 3)
	assert.Equal(t, ruleScriptBatch, strings.Count(scripts[0], "\n"))
	assert.Equal(t, 200, strings.Count(scripts[2], "\n"))
}

const baseListing = `table inet filter {
	chain input { # handle 1
		type filter hook input priority filter; policy accept;
		jump droplist # handle 7
		ct state established,related accept # handle 8
		jump droplist # handle 12
		jump droplist_old # handle 13
	}
}
`

func TestJumpHandles(t *testing.T) {
	assert.Equal(t, []string{"7", "12"}, jumpHandles([]byte(baseListing), "droplist"))
	assert.Empty(t, jumpHandles([]byte(baseListing), "missing"))
}

func TestScriptBackend_RemoveHook(t *testing.T) {
	runner := new(MockCommandRunner)
	b, err := NewScriptBackend(runner, "nft", testSpec)
	require.NoError(t, err)

	runner.On("Output", "nft", "-a", "list", "chain", "inet", "filter", "input").Return([]byte(baseListing), nil)
	runner.On("Run", "nft", "delete", "rule", "inet", "filter", "input", "handle", "7").Return(nil).Once()
	runner.On("Run", "nft", "delete", "rule", "inet", "filter", "input", "handle", "12").Return(nil).Once()

	require.NoError(t, b.RemoveHook())
	runner.AssertExpectations(t)
}

func TestScriptBackend_RuleCount(t *testing.T) {
	runner := new(MockCommandRunner)
	b, err := NewScriptBackend(runner, "nft", testSpec)
	require.NoError(t, err)

	listing := `table inet filter { # handle 3
	chain droplist { # handle 20
		ip saddr 1.2.3.0/24 drop # handle 21
		ip saddr 5.6.7.8 drop # handle 22
	}
}
`
	runner.On("Output", "nft", "-a", "list", "chain", "inet", "filter", "droplist").Return([]byte(listing), nil)

	count, err := b.RuleCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewScriptBackend_RejectsBadSpec(t *testing.T) {
	_, err := NewScriptBackend(new(MockCommandRunner), "nft", ChainSpec{Family: "inet", Table: "filter", BaseChain: "input", Chain: "a b"})
	assert.Error(t, err)
}
