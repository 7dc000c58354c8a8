package strategy

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/doorman/doorman/pkg/model"
	"github.com/doorman/doorman/pkg/quota"
)

func TestSaturationAdmitsEveryone(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	for _, id := range []int{2, 3} {
		scenario := scenarioConfig(t, id)
		registry := registryFor(t, scenario)
		cascade, err := Build(scenario, registry)
		if err != nil {
			t.Fatalf("Build(%d) error: %v", id, err)
		}
		attrs := registry.Attributes()

		properties.Property("saturated scenario admits any applicant", prop.ForAll(
			func(lagging int, deficit int, flags []bool) bool {
				counts := make(map[model.Attribute]int, len(attrs))
				for i, attr := range attrs {
					counts[attr] = registry.Minimum(attr)
					if i == lagging {
						counts[attr] = max(registry.Minimum(attr)-deficit, 0)
					}
				}
				applicant := model.Applicant{Attributes: map[model.Attribute]bool{}}
				for i, attr := range attrs {
					applicant.Attributes[attr] = flags[i]
				}
				decision, _ := cascade.Decide(quota.NewProgress(registry, counts, 0), applicant)
				return decision == model.Admit
			},
			gen.IntRange(0, len(attrs)-1),
			gen.IntRange(0, 1000),
			gen.SliceOfN(len(attrs), gen.Bool()),
		))
	}

	properties.TestingRun(t)
}

func TestLaggingTieBreakIsFirstInFocusOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	registry, err := quota.NewRegistry(model.ConstraintSet{
		{Attribute: "international", MinCount: 300},
		{Attribute: "german_speaker", MinCount: 300},
		{Attribute: "queer_friendly", MinCount: 300},
		{Attribute: "vinyl_collector", MinCount: 300},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	base := registry.Attributes()

	properties.Property("equal ratios resolve to the head of the focus list", prop.ForAll(
		func(count int, rotation int) bool {
			focus := append(append([]model.Attribute{}, base[rotation:]...), base[:rotation]...)
			counts := make(map[model.Attribute]int, len(base))
			for _, attr := range base {
				counts[attr] = count
			}
			progress := quota.NewProgress(registry, counts, 0)
			first, ok1 := Lagging(progress, focus)
			second, ok2 := Lagging(progress, focus)
			return ok1 && ok2 && first == focus[0] && second == first
		},
		gen.IntRange(0, 600),
		gen.IntRange(0, len(base)-1),
	))

	properties.TestingRun(t)
}

func TestZeroQuotaNeverLags(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	registry, err := quota.NewRegistry(model.ConstraintSet{
		{Attribute: "techno_lover", MinCount: 650},
		{Attribute: "creative", MinCount: 0},
		{Attribute: "berlin_local", MinCount: 750},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	focus := []model.Attribute{"creative", "techno_lover", "berlin_local"}
	rule := LaggingRule{Focus: focus}

	properties.Property("zero quota is never the lagging attribute", prop.ForAll(
		func(techno, berlin, creative int) bool {
			progress := quota.NewProgress(registry, map[model.Attribute]int{
				"techno_lover": techno,
				"berlin_local": berlin,
				"creative":     creative,
			}, 0)
			lagging, ok := Lagging(progress, focus)
			if !ok || lagging == "creative" {
				return false
			}
			only := model.Applicant{Attributes: map[model.Attribute]bool{"creative": true}}
			return rule.Evaluate(progress, only) == Reject
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
