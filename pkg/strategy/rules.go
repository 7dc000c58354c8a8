package strategy

import (
	"math"

	"github.com/doorman/doorman/pkg/config"
	"github.com/doorman/doorman/pkg/model"
	"github.com/doorman/doorman/pkg/quota"
)

// ThresholdAcceptRule admits everyone once every listed attribute has reached
// Threshold of its minimum.
type ThresholdAcceptRule struct {
	Attributes []model.Attribute
	Threshold  float64
}

func (r ThresholdAcceptRule) Name() string { return config.RuleThresholdAccept }

func (r ThresholdAcceptRule) Evaluate(progress quota.Progress, _ model.Applicant) Outcome {
	for _, attr := range r.Attributes {
		if float64(progress.Count(attr)) < float64(progress.Minimum(attr))*r.Threshold {
			return Abstain
		}
	}
	return Admit
}

// BalanceRule keeps a set of attributes moving together. Applicants carrying
// none are rejected and those carrying all are admitted. Otherwise the
// applicant is rejected when something it lacks lags behind everything it
// carries. Ties admit.
type BalanceRule struct {
	Attributes []model.Attribute
	Sentinel   float64
}

func (r BalanceRule) Name() string { return config.RuleBalance }

func (r BalanceRule) Evaluate(progress quota.Progress, applicant model.Applicant) Outcome {
	carried := math.Inf(1)
	missing := math.Inf(1)
	carriedCount := 0
	for _, attr := range r.Attributes {
		ratio := progress.Ratio(attr, r.Sentinel)
		if applicant.HasAttribute(attr) {
			carriedCount++
			carried = math.Min(carried, ratio)
		} else {
			missing = math.Min(missing, ratio)
		}
	}

	switch {
	case carriedCount == 0:
		return Reject
	case carriedCount == len(r.Attributes):
		return Admit
	case carried > missing:
		return Reject
	default:
		return Admit
	}
}

// SaturationRule admits unconditionally once all registry attributes but at
// most one have met their minimum.
type SaturationRule struct{}

func (SaturationRule) Name() string { return config.RuleSaturation }

func (SaturationRule) Evaluate(progress quota.Progress, _ model.Applicant) Outcome {
	if progress.SatisfiedCount() >= progress.Registry().Len()-1 {
		return Admit
	}
	return Abstain
}

// BonusOnlyRule rejects applicants whose only contribution is the bonus trait.
type BonusOnlyRule struct {
	Bonus model.Attribute
	Focus []model.Attribute
}

func (r BonusOnlyRule) Name() string { return config.RuleBonusOnly }

func (r BonusOnlyRule) Evaluate(_ quota.Progress, applicant model.Applicant) Outcome {
	if applicant.HasAttribute(r.Bonus) && !applicant.HasAny(r.Focus) {
		return Reject
	}
	return Abstain
}

// BonusPairingRule rejects a bonus-trait applicant backed by a single focus
// trait unless it carries the companion trait.
type BonusPairingRule struct {
	Bonus     model.Attribute
	Focus     []model.Attribute
	Companion model.Attribute
}

func (r BonusPairingRule) Name() string { return config.RuleBonusPairing }

func (r BonusPairingRule) Evaluate(_ quota.Progress, applicant model.Applicant) Outcome {
	if !applicant.HasAttribute(r.Bonus) {
		return Abstain
	}
	if applicant.CountOf(r.Focus) == 1 && !applicant.HasAttribute(r.Companion) {
		return Reject
	}
	return Abstain
}

type NoAttributesRule struct{}

func (NoAttributesRule) Name() string { return config.RuleNoAttributes }

func (NoAttributesRule) Evaluate(progress quota.Progress, applicant model.Applicant) Outcome {
	if !applicant.HasAny(progress.Registry().Attributes()) {
		return Reject
	}
	return Abstain
}

type SingleFocusRule struct {
	Focus []model.Attribute
}

func (r SingleFocusRule) Name() string { return config.RuleSingleFocus }

func (r SingleFocusRule) Evaluate(_ quota.Progress, applicant model.Applicant) Outcome {
	if applicant.CountOf(r.Focus) == 1 {
		return Reject
	}
	return Abstain
}

// NearCapacityRule protects quotas that are almost met: once an attribute
// crosses Watermark, an applicant contributing only that attribute is
// rejected. Zero quotas are never considered.
type NearCapacityRule struct {
	Attributes []model.Attribute
	Watermark  float64
}

func (r NearCapacityRule) Name() string { return config.RuleNearCapacity }

func (r NearCapacityRule) Evaluate(progress quota.Progress, applicant model.Applicant) Outcome {
	registry := progress.Registry()
	for _, attr := range r.Attributes {
		if progress.Minimum(attr) <= 0 {
			continue
		}
		if progress.Ratio(attr, 0) < r.Watermark || !applicant.HasAttribute(attr) {
			continue
		}
		if !carriesOther(applicant, registry.Attributes(), attr) {
			return Reject
		}
	}
	return Abstain
}

func carriesOther(applicant model.Applicant, attrs []model.Attribute, except model.Attribute) bool {
	for _, attr := range attrs {
		if attr != except && applicant.HasAttribute(attr) {
			return true
		}
	}
	return false
}

// LaggingRule admits exactly the applicants that carry the focus attribute
// furthest from its minimum. Attributes with a zero minimum are never chosen;
// ties go to the earliest attribute in Focus.
type LaggingRule struct {
	Focus []model.Attribute
}

func (r LaggingRule) Name() string { return config.RuleLagging }

func (r LaggingRule) Evaluate(progress quota.Progress, applicant model.Applicant) Outcome {
	lagging, ok := Lagging(progress, r.Focus)
	if !ok {
		return Abstain
	}
	if applicant.HasAttribute(lagging) {
		return Admit
	}
	return Reject
}

// Lagging returns the attribute with the lowest progress ratio among attrs
// that carry a positive minimum.
func Lagging(progress quota.Progress, attrs []model.Attribute) (model.Attribute, bool) {
	var (
		lowest model.Attribute
		best   = math.Inf(1)
		found  bool
	)
	for _, attr := range attrs {
		if progress.Minimum(attr) <= 0 {
			continue
		}
		ratio := progress.Ratio(attr, 0)
		if ratio < best {
			lowest, best, found = attr, ratio, true
		}
	}
	return lowest, found
}
