package quota

import (
	"errors"
	"fmt"

	"github.com/doorman/doorman/pkg/model"
)

var (
	ErrInvalidConstraint = errors.New("invalid constraint")
	ErrUnknownAttribute  = errors.New("unknown attribute")
)

// Registry holds the minimum count per tracked attribute. It is built once from
// the constraints reported at session start and never changes afterwards.
type Registry struct {
	order    []model.Attribute
	minimums map[model.Attribute]int
}

func NewRegistry(constraints model.ConstraintSet) (*Registry, error) {
	if len(constraints) == 0 {
		return nil, fmt.Errorf("%w: no constraints reported", ErrInvalidConstraint)
	}

	r := &Registry{
		order:    make([]model.Attribute, 0, len(constraints)),
		minimums: make(map[model.Attribute]int, len(constraints)),
	}
	for _, c := range constraints {
		if c.Attribute == "" {
			return nil, fmt.Errorf("%w: empty attribute name", ErrInvalidConstraint)
		}
		if c.MinCount < 0 {
			return nil, fmt.Errorf("%w: %s has negative minimum %d", ErrInvalidConstraint, c.Attribute, c.MinCount)
		}
		if _, exists := r.minimums[c.Attribute]; exists {
			return nil, fmt.Errorf("%w: duplicate attribute %s", ErrInvalidConstraint, c.Attribute)
		}
		r.order = append(r.order, c.Attribute)
		r.minimums[c.Attribute] = c.MinCount
	}
	return r, nil
}

// Minimum returns 0 for attributes the registry does not track.
func (r *Registry) Minimum(attr model.Attribute) int {
	return r.minimums[attr]
}

func (r *Registry) Tracked(attr model.Attribute) bool {
	_, ok := r.minimums[attr]
	return ok
}

// Attributes returns the tracked attributes in registry order.
func (r *Registry) Attributes() []model.Attribute {
	out := make([]model.Attribute, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Require fails when any of attrs is not tracked by the registry.
func (r *Registry) Require(attrs ...model.Attribute) error {
	for _, attr := range attrs {
		if !r.Tracked(attr) {
			return fmt.Errorf("%w: %s", ErrUnknownAttribute, attr)
		}
	}
	return nil
}

func (r *Registry) Minimums() map[model.Attribute]int {
	out := make(map[model.Attribute]int, len(r.minimums))
	for attr, n := range r.minimums {
		out[attr] = n
	}
	return out
}
