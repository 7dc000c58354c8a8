// Package strategy holds the admission heuristics. Each heuristic is a Rule
// that either decides or abstains; a Cascade runs rules in priority order and
// the first rule that decides wins.
package strategy

import (
	"github.com/doorman/doorman/pkg/model"
	"github.com/doorman/doorman/pkg/quota"
)

type Outcome int

const (
	Abstain Outcome = iota
	Admit
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Admit:
		return "admit"
	case Reject:
		return "reject"
	default:
		return "abstain"
	}
}

// DefaultRule names the implicit rejection when every rule abstains.
const DefaultRule = "default"

type Rule interface {
	Name() string
	Evaluate(progress quota.Progress, applicant model.Applicant) Outcome
}

type Cascade struct {
	rules []Rule
}

func NewCascade(rules ...Rule) *Cascade {
	return &Cascade{rules: rules}
}

func (c *Cascade) Decide(progress quota.Progress, applicant model.Applicant) (model.Decision, string) {
	for _, rule := range c.rules {
		switch rule.Evaluate(progress, applicant) {
		case Admit:
			return model.Admit, rule.Name()
		case Reject:
			return model.Reject, rule.Name()
		}
	}
	return model.Reject, DefaultRule
}

func (c *Cascade) RuleNames() []string {
	names := make([]string, 0, len(c.rules))
	for _, rule := range c.rules {
		names = append(names, rule.Name())
	}
	return names
}

var _ quota.Decider = (*Cascade)(nil)
