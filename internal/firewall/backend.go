package firewall

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

// Action is the verdict applied to traffic from a listed network.
type Action string

const (
	ActionDrop   Action = "drop"
	ActionReject Action = "reject"
	ActionAccept Action = "accept"
)

// ParseAction maps a config string onto an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionDrop, ActionReject, ActionAccept:
		return a, nil
	case "":
		return ActionDrop, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Families understood by both backends.
const (
	FamilyINet = "inet"
	FamilyIPv4 = "ip"
	FamilyIPv6 = "ip6"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ChainSpec locates the daemon chain and the base chain it hooks into.
type ChainSpec struct {
	Family    string
	Table     string
	BaseChain string
	Chain     string
}

// Validate checks that every name is a plain identifier, so none of them can
// smuggle extra statements into an nft command line.
func (s ChainSpec) Validate() error {
	switch s.Family {
	case FamilyINet, FamilyIPv4, FamilyIPv6:
	default:
		return fmt.Errorf("unsupported family %q", s.Family)
	}
	for _, name := range []string{s.Table, s.BaseChain, s.Chain} {
		if !identifierRegex.MatchString(name) {
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	if s.BaseChain == s.Chain {
		return fmt.Errorf("chain %q cannot hook into itself", s.Chain)
	}
	return nil
}

func (s ChainSpec) String() string {
	return fmt.Sprintf("%s %s %s", s.Family, s.Table, s.Chain)
}

// Rule is one entry of the daemon chain.
type Rule struct {
	Source  netip.Prefix
	Action  Action
	Counter bool
}

// ParseSource accepts an address or a CIDR prefix. Bare addresses become
// host prefixes and prefixes are normalized to their network address.
func ParseSource(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Backend is the set of chain operations the Applicator drives. Every call
// takes effect before it returns.
type Backend interface {
	ChainExists() (bool, error)
	CreateChain() error
	FlushChain() error
	DeleteChain() error
	// InsertHook places the jump rule at the front of the base chain.
	InsertHook() error
	// RemoveHook deletes every jump to the daemon chain from the base chain.
	// It succeeds when no hook is present.
	RemoveHook() error
	AppendRule(r Rule) error
	RuleCount() (int, error)
}

// BatchAppender is implemented by backends that can append many rules in one
// transaction. AppendRules reports how many rules were committed.
type BatchAppender interface {
	AppendRules(rules []Rule) (int, error)
}
