package quota

import (
	"github.com/doorman/doorman/pkg/model"
)

// Tracker accumulates admitted counts for one session. It is owned by the
// decision loop and must only be mutated from there.
type Tracker struct {
	registry *Registry
	counts   map[model.Attribute]int
	rejected map[model.Attribute]int
	total    int
	declined int
}

func NewTracker(registry *Registry) *Tracker {
	return &Tracker{
		registry: registry,
		counts:   make(map[model.Attribute]int, registry.Len()),
		rejected: make(map[model.Attribute]int, registry.Len()),
	}
}

func (t *Tracker) Registry() *Registry {
	return t.registry
}

func (t *Tracker) Count(attr model.Attribute) int {
	return t.counts[attr]
}

func (t *Tracker) Total() int {
	return t.total
}

func (t *Tracker) Declined() int {
	return t.declined
}

// RecordAdmit increments the total and every tracked attribute the applicant
// carries. Call exactly once per admitted applicant.
func (t *Tracker) RecordAdmit(applicant model.Applicant) {
	t.total++
	for _, attr := range t.registry.order {
		if applicant.HasAttribute(attr) {
			t.counts[attr]++
		}
	}
}

// RecordReject only feeds the rejection tally; rules never read it.
func (t *Tracker) RecordReject(applicant model.Applicant) {
	t.declined++
	for _, attr := range t.registry.order {
		if applicant.HasAttribute(attr) {
			t.rejected[attr]++
		}
	}
}

func (t *Tracker) Counts() map[model.Attribute]int {
	return copyCounts(t.counts, t.registry.order)
}

func (t *Tracker) RejectedCounts() map[model.Attribute]int {
	return copyCounts(t.rejected, t.registry.order)
}

func (t *Tracker) Snapshot() Progress {
	return Progress{
		registry: t.registry,
		counts:   copyCounts(t.counts, t.registry.order),
		total:    t.total,
	}
}

func copyCounts(src map[model.Attribute]int, order []model.Attribute) map[model.Attribute]int {
	out := make(map[model.Attribute]int, len(order))
	for _, attr := range order {
		out[attr] = src[attr]
	}
	return out
}
