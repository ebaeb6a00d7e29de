package firewall

import (
	"grimm.is/droplist/internal/errors"
	"grimm.is/droplist/internal/logging"
)

// Applicator rebuilds the daemon chain from an entry list.
type Applicator struct {
	backend Backend
	action  Action
	counter bool
	logger  *logging.Logger
}

// NewApplicator creates an applicator for backend.
func NewApplicator(backend Backend, action Action, counter bool, logger *logging.Logger) *Applicator {
	if action == "" {
		action = ActionDrop
	}
	if logger == nil {
		logger = logging.WithComponent("firewall")
	}
	return &Applicator{
		backend: backend,
		action:  action,
		counter: counter,
		logger:  logger,
	}
}

// Apply clears the chain, or creates and hooks it on first use, then appends
// one rule per entry in order.
//
// Any failure returns a KindRuleApply error and leaves the chain as it is at
// that point; rules already appended stay in place.
func (a *Applicator) Apply(entries []string) error {
	rules := make([]Rule, 0, len(entries))
	for i, entry := range entries {
		src, err := ParseSource(entry)
		if err != nil {
			return errors.Attr(errors.Attr(
				errors.Wrapf(err, errors.KindRuleApply, "invalid entry %q", entry),
				"index", i), "entry", entry)
		}
		rules = append(rules, Rule{Source: src, Action: a.action, Counter: a.counter})
	}

	exists, err := a.backend.ChainExists()
	if err != nil {
		return errors.Wrap(err, errors.KindRuleApply, "failed to look up chain")
	}

	if exists {
		if err := a.backend.FlushChain(); err != nil {
			return errors.Wrap(err, errors.KindRuleApply, "failed to flush chain")
		}
	} else {
		if err := a.backend.CreateChain(); err != nil {
			return errors.Wrap(err, errors.KindRuleApply, "failed to create chain")
		}
		if err := a.backend.InsertHook(); err != nil {
			return errors.Wrap(err, errors.KindRuleApply, "failed to hook chain")
		}
		a.logger.Info("chain created and hooked")
	}

	if batch, ok := a.backend.(BatchAppender); ok {
		n, err := batch.AppendRules(rules)
		if err != nil {
			return errors.Attr(
				errors.Wrapf(err, errors.KindRuleApply, "failed to append rules after %d of %d", n, len(rules)),
				"applied", n)
		}
	} else {
		for i, r := range rules {
			if err := a.backend.AppendRule(r); err != nil {
				return errors.Attr(errors.Attr(
					errors.Wrapf(err, errors.KindRuleApply, "failed to append rule for %s", entries[i]),
					"index", i), "applied", i)
			}
		}
	}

	a.logger.Debug("rules applied", "count", len(rules), "action", string(a.action))
	return nil
}

// Teardown removes the hook, then flushes and deletes the chain. Failures are
// KindTeardown errors.
func (a *Applicator) Teardown() error {
	if err := a.backend.RemoveHook(); err != nil {
		return errors.Wrap(err, errors.KindTeardown, "failed to remove hook")
	}

	exists, err := a.backend.ChainExists()
	if err != nil {
		return errors.Wrap(err, errors.KindTeardown, "failed to look up chain")
	}
	if !exists {
		return nil
	}

	if err := a.backend.FlushChain(); err != nil {
		return errors.Wrap(err, errors.KindTeardown, "failed to flush chain")
	}
	if err := a.backend.DeleteChain(); err != nil {
		return errors.Wrap(err, errors.KindTeardown, "failed to delete chain")
	}
	a.logger.Info("chain removed")
	return nil
}

// RuleCount returns the number of rules currently in the chain.
func (a *Applicator) RuleCount() (int, error) {
	return a.backend.RuleCount()
}
