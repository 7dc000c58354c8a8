package config

// Rule kinds understood by the strategy package.
const (
	RuleThresholdAccept = "threshold_accept"
	RuleBalance         = "balance"
	RuleSaturation      = "saturation"
	RuleBonusOnly       = "bonus_only"
	RuleBonusPairing    = "bonus_pairing"
	RuleNoAttributes    = "no_attributes"
	RuleSingleFocus     = "single_focus"
	RuleNearCapacity    = "near_capacity"
	RuleLagging         = "lagging"
)

func DefaultScenarios() []ScenarioConfig {
	return []ScenarioConfig{
		{
			ID:       1,
			Name:     "young-and-well-dressed",
			Focus:    []string{"young", "well_dressed"},
			Sentinel: 1.0,
			Rules: []RuleConfig{
				{Kind: RuleThresholdAccept, Threshold: 0.87},
				{Kind: RuleBalance},
			},
			Constraints: []ConstraintConfig{
				{Attribute: "young", MinCount: 600},
				{Attribute: "well_dressed", MinCount: 600},
			},
			Frequencies: map[string]float64{
				"young":        0.3225,
				"well_dressed": 0.3225,
			},
		},
		{
			ID:        2,
			Name:      "techno-and-creative",
			Focus:     []string{"techno_lover", "creative", "berlin_local"},
			Bonus:     "well_connected",
			Companion: "creative",
			Sentinel:  0.0,
			Rules: []RuleConfig{
				{Kind: RuleSaturation},
				{Kind: RuleBonusOnly},
				{Kind: RuleBonusPairing},
				{Kind: RuleNearCapacity, Threshold: 0.85, Attributes: []string{"techno_lover", "creative", "berlin_local", "well_connected"}},
				{Kind: RuleLagging},
			},
			Constraints: []ConstraintConfig{
				{Attribute: "techno_lover", MinCount: 650},
				{Attribute: "well_connected", MinCount: 450},
				{Attribute: "creative", MinCount: 300},
				{Attribute: "berlin_local", MinCount: 750},
			},
			Frequencies: map[string]float64{
				"techno_lover":   0.6265,
				"well_connected": 0.47,
				"creative":       0.06227,
				"berlin_local":   0.398,
			},
		},
		{
			ID:       3,
			Name:     "international-mix",
			Focus:    []string{"international", "german_speaker", "queer_friendly", "vinyl_collector"},
			Sentinel: 0.0,
			Rules: []RuleConfig{
				{Kind: RuleSaturation},
				{Kind: RuleNoAttributes},
				{Kind: RuleSingleFocus},
				{Kind: RuleNearCapacity, Threshold: 0.95},
				{Kind: RuleLagging},
			},
			Constraints: []ConstraintConfig{
				{Attribute: "underground_veteran", MinCount: 500},
				{Attribute: "international", MinCount: 650},
				{Attribute: "fashion_forward", MinCount: 550},
				{Attribute: "queer_friendly", MinCount: 250},
				{Attribute: "vinyl_collector", MinCount: 200},
				{Attribute: "german_speaker", MinCount: 800},
			},
			Frequencies: map[string]float64{
				"underground_veteran": 0.6795,
				"international":       0.5739,
				"fashion_forward":     0.691,
				"queer_friendly":      0.04614,
				"vinyl_collector":     0.04454,
				"german_speaker":      0.4565,
			},
		},
	}
}
