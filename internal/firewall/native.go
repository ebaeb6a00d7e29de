//go:build linux
// +build linux

package firewall

import (
	"fmt"

	"github.com/google/nftables"
)

// NativeBackend drives the chain over netlink with google/nftables.
// The table and base chain must already exist.
type NativeBackend struct {
	conn  NFTablesConn
	spec  ChainSpec
	table *nftables.Table
	base  *nftables.Chain
	chain *nftables.Chain
}

// NewNativeBackend opens a netlink connection for spec.
func NewNativeBackend(spec ChainSpec) (*NativeBackend, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("failed to open nftables connection: %w", err)
	}
	return NewNativeBackendWithConn(NewRealNFTablesConn(conn), spec)
}

// NewNativeBackendWithConn creates a backend on an existing connection.
func NewNativeBackendWithConn(conn NFTablesConn, spec ChainSpec) (*NativeBackend, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	family, err := tableFamily(spec.Family)
	if err != nil {
		return nil, err
	}

	table := &nftables.Table{Name: spec.Table, Family: family}
	return &NativeBackend{
		conn:  conn,
		spec:  spec,
		table: table,
		base:  &nftables.Chain{Name: spec.BaseChain, Table: table},
		chain: &nftables.Chain{Name: spec.Chain, Table: table},
	}, nil
}

func (b *NativeBackend) ChainExists() (bool, error) {
	chains, err := b.conn.ListChainsOfTableFamily(b.table.Family)
	if err != nil {
		return false, fmt.Errorf("failed to list chains: %w", err)
	}
	for _, c := range chains {
		if c.Table != nil && c.Table.Name == b.spec.Table && c.Name == b.spec.Chain {
			return true, nil
		}
	}
	return false, nil
}

func (b *NativeBackend) CreateChain() error {
	b.conn.AddChain(b.chain)
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("failed to create chain %s: %w", b.spec, err)
	}
	return nil
}

func (b *NativeBackend) FlushChain() error {
	b.conn.FlushChain(b.chain)
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("failed to flush chain %s: %w", b.spec, err)
	}
	return nil
}

func (b *NativeBackend) DeleteChain() error {
	b.conn.DelChain(b.chain)
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("failed to delete chain %s: %w", b.spec, err)
	}
	return nil
}

func (b *NativeBackend) InsertHook() error {
	b.conn.InsertRule(&nftables.Rule{
		Table: b.table,
		Chain: b.base,
		Exprs: buildJump(b.spec.Chain),
	})
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("failed to hook %s into %s: %w", b.spec.Chain, b.spec.BaseChain, err)
	}
	return nil
}

func (b *NativeBackend) RemoveHook() error {
	rules, err := b.conn.GetRules(b.table, b.base)
	if err != nil {
		return fmt.Errorf("failed to list rules of %s: %w", b.spec.BaseChain, err)
	}

	removed := 0
	for _, r := range rules {
		if !isJumpTo(r, b.spec.Chain) {
			continue
		}
		if err := b.conn.DelRule(r); err != nil {
			return fmt.Errorf("failed to delete hook rule: %w", err)
		}
		removed++
	}
	if removed == 0 {
		return nil
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("failed to remove hook from %s: %w", b.spec.BaseChain, err)
	}
	return nil
}

func (b *NativeBackend) AppendRule(r Rule) error {
	b.conn.AddRule(&nftables.Rule{
		Table: b.table,
		Chain: b.chain,
		Exprs: buildRuleExprs(r, b.table.Family),
	})
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("failed to add rule for %s: %w", r.Source, err)
	}
	return nil
}

func (b *NativeBackend) RuleCount() (int, error) {
	rules, err := b.conn.GetRules(b.table, b.chain)
	if err != nil {
		return 0, fmt.Errorf("failed to list rules of %s: %w", b.spec, err)
	}
	return len(rules), nil
}

// ruleBatchSize bounds the rules queued per netlink transaction.
const ruleBatchSize = 500

// AppendRules queues rules in batches of ruleBatchSize, committing each batch
// as one netlink transaction.
func (b *NativeBackend) AppendRules(rules []Rule) (int, error) {
	applied := 0
	for i := 0; i < len(rules); i += ruleBatchSize {
		end := min(i+ruleBatchSize, len(rules))
		for _, r := range rules[i:end] {
			b.conn.AddRule(&nftables.Rule{
				Table: b.table,
				Chain: b.chain,
				Exprs: buildRuleExprs(r, b.table.Family),
			})
		}
		if err := b.conn.Flush(); err != nil {
			return applied, fmt.Errorf("failed to add rules %d-%d: %w", i+1, end, err)
		}
		applied = end
	}
	return applied, nil
}
