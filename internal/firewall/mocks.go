//go:build linux
// +build linux

package firewall

import (
	"sync"

	"github.com/google/nftables"
	"github.com/stretchr/testify/mock"
)

// MockNFTablesConn is a mock implementation of NFTablesConn for testing.
//
// Queued operations are recorded in memory immediately; Flush only reports
// the configured error. Tests that need a failing commit to leave state
// untouched should inspect the expectations instead.
type MockNFTablesConn struct {
	mock.Mock
	mu sync.Mutex

	// In-memory state for tracking operations
	chains     map[string]*nftables.Chain
	rules      map[string][]*nftables.Rule
	nextHandle uint64
}

// NewMockNFTablesConn creates a new mock nftables connection.
func NewMockNFTablesConn() *MockNFTablesConn {
	return &MockNFTablesConn{
		chains: make(map[string]*nftables.Chain),
		rules:  make(map[string][]*nftables.Rule),
	}
}

func chainKey(t *nftables.Table, name string) string {
	return t.Name + "/" + name
}

// SeedChain registers a chain that exists before the test starts, such as
// the base chain the daemon hooks into.
func (m *MockNFTablesConn) SeedChain(c *nftables.Chain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains[chainKey(c.Table, c.Name)] = c
}

func (m *MockNFTablesConn) AddChain(c *nftables.Chain) *nftables.Chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(c)
	m.chains[chainKey(c.Table, c.Name)] = c
	return c
}

func (m *MockNFTablesConn) DelChain(c *nftables.Chain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(c)
	key := chainKey(c.Table, c.Name)
	delete(m.chains, key)
	delete(m.rules, key)
}

func (m *MockNFTablesConn) FlushChain(c *nftables.Chain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(c)
	delete(m.rules, chainKey(c.Table, c.Name))
}

func (m *MockNFTablesConn) ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(family)
	if args.Get(0) != nil {
		return args.Get(0).([]*nftables.Chain), args.Error(1)
	}
	chains := make([]*nftables.Chain, 0)
	for _, c := range m.chains {
		if c.Table.Family == family {
			chains = append(chains, c)
		}
	}
	return chains, args.Error(1)
}

func (m *MockNFTablesConn) AddRule(r *nftables.Rule) *nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(r)
	m.nextHandle++
	r.Handle = m.nextHandle
	key := chainKey(r.Table, r.Chain.Name)
	m.rules[key] = append(m.rules[key], r)
	return r
}

func (m *MockNFTablesConn) InsertRule(r *nftables.Rule) *nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(r)
	m.nextHandle++
	r.Handle = m.nextHandle
	key := chainKey(r.Table, r.Chain.Name)
	// Insert at beginning
	m.rules[key] = append([]*nftables.Rule{r}, m.rules[key]...)
	return r
}

func (m *MockNFTablesConn) DelRule(r *nftables.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(r)
	if err := args.Error(0); err != nil {
		return err
	}
	key := chainKey(r.Table, r.Chain.Name)
	kept := m.rules[key][:0]
	for _, existing := range m.rules[key] {
		if existing.Handle != r.Handle {
			kept = append(kept, existing)
		}
	}
	m.rules[key] = kept
	return nil
}

func (m *MockNFTablesConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(t, c)
	if args.Get(0) != nil {
		return args.Get(0).([]*nftables.Rule), args.Error(1)
	}
	rules := m.rules[chainKey(t, c.Name)]
	out := make([]*nftables.Rule, len(rules))
	copy(out, rules)
	return out, args.Error(1)
}

func (m *MockNFTablesConn) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called()
	return args.Error(0)
}

// Helper methods for test assertions

// GetChainCount returns the number of chains.
func (m *MockNFTablesConn) GetChainCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chains)
}

// RulesOf returns the rules currently recorded for a chain.
func (m *MockNFTablesConn) RulesOf(table *nftables.Table, chain string) []*nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	rules := m.rules[chainKey(table, chain)]
	out := make([]*nftables.Rule, len(rules))
	copy(out, rules)
	return out
}
