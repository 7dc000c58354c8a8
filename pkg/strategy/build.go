package strategy

import (
	"errors"
	"fmt"

	"github.com/doorman/doorman/pkg/config"
	"github.com/doorman/doorman/pkg/model"
	"github.com/doorman/doorman/pkg/quota"
)

var (
	ErrUnknownRule = errors.New("unknown rule kind")
	ErrInvalidRule = errors.New("invalid rule configuration")
)

// Build assembles the cascade for a scenario and checks every attribute it
// references against the registry.
func Build(scenario config.ScenarioConfig, registry *quota.Registry) (*Cascade, error) {
	if len(scenario.Rules) == 0 {
		return nil, fmt.Errorf("%w: scenario %d has no rules", ErrInvalidRule, scenario.ID)
	}

	focus := attributes(scenario.Focus)
	if err := registry.Require(focus...); err != nil {
		return nil, fmt.Errorf("scenario %d focus: %w", scenario.ID, err)
	}

	rules := make([]Rule, 0, len(scenario.Rules))
	for i, rc := range scenario.Rules {
		rule, err := buildRule(scenario, rc, focus)
		if err != nil {
			return nil, fmt.Errorf("scenario %d rule %d: %w", scenario.ID, i, err)
		}
		if err := registry.Require(referenced(rule)...); err != nil {
			return nil, fmt.Errorf("scenario %d rule %s: %w", scenario.ID, rule.Name(), err)
		}
		rules = append(rules, rule)
	}

	return NewCascade(rules...), nil
}

func buildRule(scenario config.ScenarioConfig, rc config.RuleConfig, focus []model.Attribute) (Rule, error) {
	attrs := focus
	if len(rc.Attributes) > 0 {
		attrs = attributes(rc.Attributes)
	}

	switch rc.Kind {
	case config.RuleThresholdAccept:
		if rc.Threshold <= 0 {
			return nil, fmt.Errorf("%w: %s needs a positive threshold", ErrInvalidRule, rc.Kind)
		}
		return ThresholdAcceptRule{Attributes: attrs, Threshold: rc.Threshold}, nil
	case config.RuleBalance:
		return BalanceRule{Attributes: attrs, Sentinel: scenario.Sentinel}, nil
	case config.RuleSaturation:
		return SaturationRule{}, nil
	case config.RuleBonusOnly:
		if scenario.Bonus == "" {
			return nil, fmt.Errorf("%w: %s needs a bonus attribute", ErrInvalidRule, rc.Kind)
		}
		return BonusOnlyRule{Bonus: model.Attribute(scenario.Bonus), Focus: attrs}, nil
	case config.RuleBonusPairing:
		if scenario.Bonus == "" || scenario.Companion == "" {
			return nil, fmt.Errorf("%w: %s needs bonus and companion attributes", ErrInvalidRule, rc.Kind)
		}
		return BonusPairingRule{
			Bonus:     model.Attribute(scenario.Bonus),
			Focus:     attrs,
			Companion: model.Attribute(scenario.Companion),
		}, nil
	case config.RuleNoAttributes:
		return NoAttributesRule{}, nil
	case config.RuleSingleFocus:
		return SingleFocusRule{Focus: attrs}, nil
	case config.RuleNearCapacity:
		if rc.Threshold <= 0 {
			return nil, fmt.Errorf("%w: %s needs a positive watermark", ErrInvalidRule, rc.Kind)
		}
		return NearCapacityRule{Attributes: attrs, Watermark: rc.Threshold}, nil
	case config.RuleLagging:
		return LaggingRule{Focus: attrs}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, rc.Kind)
	}
}

func referenced(rule Rule) []model.Attribute {
	switch r := rule.(type) {
	case ThresholdAcceptRule:
		return r.Attributes
	case BalanceRule:
		return r.Attributes
	case BonusOnlyRule:
		return append([]model.Attribute{r.Bonus}, r.Focus...)
	case BonusPairingRule:
		return append([]model.Attribute{r.Bonus, r.Companion}, r.Focus...)
	case SingleFocusRule:
		return r.Focus
	case NearCapacityRule:
		return r.Attributes
	case LaggingRule:
		return r.Focus
	default:
		return nil
	}
}

func attributes(names []string) []model.Attribute {
	out := make([]model.Attribute, 0, len(names))
	for _, name := range names {
		out = append(out, model.Attribute(name))
	}
	return out
}
