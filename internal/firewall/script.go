package firewall

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// DefaultNftPath is used when no nft path is configured.
const DefaultNftPath = "/usr/sbin/nft"

// nftNotFound is how nft reports a missing table or chain.
const nftNotFound = "No such file or directory"

var handleRegex = regexp.MustCompile(`# handle (\d+)\s*$`)

// ScriptBackend drives the chain through the nft executable. Single
// operations are nft command lines; rules are loaded in batches with nft -f
// so each batch commits atomically.
type ScriptBackend struct {
	runner CommandRunner
	nft    string
	spec   ChainSpec
}

// NewScriptBackend creates a backend that runs nftPath through runner.
func NewScriptBackend(runner CommandRunner, nftPath string, spec ChainSpec) (*ScriptBackend, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		runner = DefaultCommandRunner
	}
	if nftPath == "" {
		nftPath = DefaultNftPath
	}
	return &ScriptBackend{runner: runner, nft: nftPath, spec: spec}, nil
}

func (b *ScriptBackend) chainArgs(chain string) []string {
	return []string{b.spec.Family, b.spec.Table, chain}
}

func (b *ScriptBackend) run(args ...string) error {
	return b.runner.Run(b.nft, args...)
}

// ChainExists lists the chain. Only nft's ENOENT report means the chain is
// absent; any other failure is returned.
func (b *ScriptBackend) ChainExists() (bool, error) {
	if _, err := b.runner.Output(b.nft, append([]string{"list", "chain"}, b.chainArgs(b.spec.Chain)...)...); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to list %s: %w", b.spec, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), nftNotFound)
}

func (b *ScriptBackend) CreateChain() error {
	return b.run(append([]string{"add", "chain"}, b.chainArgs(b.spec.Chain)...)...)
}

func (b *ScriptBackend) FlushChain() error {
	return b.run(append([]string{"flush", "chain"}, b.chainArgs(b.spec.Chain)...)...)
}

func (b *ScriptBackend) DeleteChain() error {
	return b.run(append([]string{"delete", "chain"}, b.chainArgs(b.spec.Chain)...)...)
}

func (b *ScriptBackend) InsertHook() error {
	args := append([]string{"insert", "rule"}, b.chainArgs(b.spec.BaseChain)...)
	return b.run(append(args, "jump", b.spec.Chain)...)
}

func (b *ScriptBackend) RemoveHook() error {
	out, err := b.runner.Output(b.nft, append([]string{"-a", "list", "chain"}, b.chainArgs(b.spec.BaseChain)...)...)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", b.spec.BaseChain, err)
	}

	for _, handle := range jumpHandles(out, b.spec.Chain) {
		args := append([]string{"delete", "rule"}, b.chainArgs(b.spec.BaseChain)...)
		if err := b.run(append(args, "handle", handle)...); err != nil {
			return err
		}
	}
	return nil
}

func (b *ScriptBackend) AppendRule(r Rule) error {
	args := append([]string{"add", "rule"}, b.chainArgs(b.spec.Chain)...)
	return b.run(append(args, strings.Fields(ruleStatement(r, b.spec.Family))...)...)
}

// AppendRules loads rules through nft -f in batches of ruleScriptBatch.
func (b *ScriptBackend) AppendRules(rules []Rule) (int, error) {
	applied := 0
	for i := 0; i < len(rules); i += ruleScriptBatch {
		end := min(i+ruleScriptBatch, len(rules))
		script := BuildRuleScript(b.spec, rules[i:end])
		if err := b.runner.RunInput(script, b.nft, "-f", "-"); err != nil {
			return applied, fmt.Errorf("failed to load rules %d-%d: %w", i+1, end, err)
		}
		applied = end
	}
	return applied, nil
}

func (b *ScriptBackend) RuleCount() (int, error) {
	out, err := b.runner.Output(b.nft, append([]string{"-a", "list", "chain"}, b.chainArgs(b.spec.Chain)...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", b.spec, err)
	}

	count := 0
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "table ") || strings.HasPrefix(line, "chain ") {
			continue
		}
		if handleRegex.MatchString(line) {
			count++
		}
	}
	return count, scanner.Err()
}

// ruleScriptBatch bounds the rules in one nft -f transaction.
const ruleScriptBatch = 500

// BuildRuleScript renders rules as an nft script appending to the chain.
func BuildRuleScript(spec ChainSpec, rules []Rule) string {
	var sb strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&sb, "add rule %s %s %s %s\n", spec.Family, spec.Table, spec.Chain, ruleStatement(r, spec.Family))
	}
	return sb.String()
}

// ruleStatement renders the match and verdict of r in nft syntax.
func ruleStatement(r Rule, family string) string {
	var sb strings.Builder

	isIPv6 := r.Source.Addr().Is6()
	if isIPv6 {
		sb.WriteString("ip6 saddr ")
	} else {
		sb.WriteString("ip saddr ")
	}
	if r.Source.IsSingleIP() {
		sb.WriteString(r.Source.Addr().String())
	} else {
		sb.WriteString(r.Source.String())
	}

	if r.Counter {
		sb.WriteString(" counter")
	}

	switch r.Action {
	case ActionAccept:
		sb.WriteString(" accept")
	case ActionReject:
		switch {
		case family == FamilyINet:
			sb.WriteString(" reject with icmpx type admin-prohibited")
		case isIPv6:
			sb.WriteString(" reject with icmpv6 type admin-prohibited")
		default:
			sb.WriteString(" reject with icmp type admin-prohibited")
		}
	default:
		sb.WriteString(" drop")
	}
	return sb.String()
}

// jumpHandles extracts the handles of rules jumping to chain from
// `nft -a list chain` output.
func jumpHandles(listing []byte, chain string) []string {
	var handles []string
	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		jumps := false
		for i := 0; i+1 < len(fields); i++ {
			if fields[i] == "jump" && fields[i+1] == chain {
				jumps = true
				break
			}
		}
		if !jumps {
			continue
		}
		if m := handleRegex.FindStringSubmatch(line); m != nil {
			handles = append(handles, m[1])
		}
	}
	return handles
}
