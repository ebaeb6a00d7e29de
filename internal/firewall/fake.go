package firewall

import (
	"fmt"
	"sync"
)

// FakeBackend is an in-memory Backend. It records every operation so tests
// can assert ordering, and can be told to fail specific operations.
type FakeBackend struct {
	mu sync.Mutex

	chainExists bool
	hooks       int
	rules       []Rule
	ops         []string

	// Fail maps an operation name to the error it should return.
	Fail map[string]error
	// FailAppendAt makes the append of the rule at this index fail.
	// Negative disables it.
	FailAppendAt int
}

// NewFakeBackend returns an empty fake with no chain installed.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Fail:         make(map[string]error),
		FailAppendAt: -1,
	}
}

func (f *FakeBackend) record(op string) error {
	f.ops = append(f.ops, op)
	return f.Fail[op]
}

func (f *FakeBackend) ChainExists() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ChainExists"); err != nil {
		return false, err
	}
	return f.chainExists, nil
}

func (f *FakeBackend) CreateChain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateChain"); err != nil {
		return err
	}
	if f.chainExists {
		return fmt.Errorf("chain already exists")
	}
	f.chainExists = true
	return nil
}

func (f *FakeBackend) FlushChain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FlushChain"); err != nil {
		return err
	}
	if !f.chainExists {
		return fmt.Errorf("no such chain")
	}
	f.rules = nil
	return nil
}

func (f *FakeBackend) DeleteChain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteChain"); err != nil {
		return err
	}
	if f.hooks > 0 {
		return fmt.Errorf("chain is still referenced")
	}
	if len(f.rules) > 0 {
		return fmt.Errorf("chain is not empty")
	}
	f.chainExists = false
	return nil
}

func (f *FakeBackend) InsertHook() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("InsertHook"); err != nil {
		return err
	}
	f.hooks++
	return nil
}

func (f *FakeBackend) RemoveHook() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RemoveHook"); err != nil {
		return err
	}
	f.hooks = 0
	return nil
}

func (f *FakeBackend) AppendRule(r Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AppendRule"); err != nil {
		return err
	}
	if !f.chainExists {
		return fmt.Errorf("no such chain")
	}
	if f.FailAppendAt >= 0 && len(f.rules) == f.FailAppendAt {
		return fmt.Errorf("rule %d rejected", f.FailAppendAt)
	}
	f.rules = append(f.rules, r)
	return nil
}

func (f *FakeBackend) RuleCount() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RuleCount"); err != nil {
		return 0, err
	}
	return len(f.rules), nil
}

// Rules returns a copy of the installed rules.
func (f *FakeBackend) Rules() []Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Rule, len(f.rules))
	copy(out, f.rules)
	return out
}

// Installed reports whether the chain exists and is hooked.
func (f *FakeBackend) Installed() (chain bool, hooks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainExists, f.hooks
}

// Ops returns the recorded operation names.
func (f *FakeBackend) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	copy(out, f.ops)
	return out
}

// ResetOps clears the operation log.
func (f *FakeBackend) ResetOps() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}
