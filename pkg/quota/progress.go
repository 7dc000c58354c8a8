package quota

import (
	"github.com/doorman/doorman/pkg/model"
)

// Progress is a read-only view of the tracker taken before each decision.
type Progress struct {
	registry *Registry
	counts   map[model.Attribute]int
	total    int
}

// NewProgress builds a snapshot directly, mostly useful for evaluating rules
// against a hypothetical state.
func NewProgress(registry *Registry, counts map[model.Attribute]int, total int) Progress {
	p := Progress{
		registry: registry,
		total:    total,
		counts:   make(map[model.Attribute]int, registry.Len()),
	}
	for _, attr := range registry.order {
		p.counts[attr] = counts[attr]
	}
	return p
}

func (p Progress) Registry() *Registry {
	return p.registry
}

func (p Progress) Count(attr model.Attribute) int {
	return p.counts[attr]
}

func (p Progress) Minimum(attr model.Attribute) int {
	return p.registry.Minimum(attr)
}

func (p Progress) Total() int {
	return p.total
}

// Ratio is count/minimum, or sentinel when the minimum is zero.
func (p Progress) Ratio(attr model.Attribute, sentinel float64) float64 {
	minimum := p.registry.Minimum(attr)
	if minimum <= 0 {
		return sentinel
	}
	return float64(p.counts[attr]) / float64(minimum)
}

func (p Progress) Satisfied(attr model.Attribute) bool {
	return p.counts[attr] >= p.registry.Minimum(attr)
}

// SatisfiedCount counts registry attributes whose minimum has been reached.
func (p Progress) SatisfiedCount() int {
	n := 0
	for _, attr := range p.registry.order {
		if p.Satisfied(attr) {
			n++
		}
	}
	return n
}
