package game

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/doorman/doorman/pkg/config"
	"github.com/doorman/doorman/pkg/model"
)

// Generator produces the attribute flags of the applicant at index.
type Generator func(index int) map[model.Attribute]bool

// Simulator is an in-process stand-in for the admission service. It enforces
// the same capacity and rejection limits and draws each attribute
// independently from its relative frequency.
type Simulator struct {
	scenario      config.ScenarioConfig
	capacity      int
	maxRejections int
	generate      Generator

	sessionID string
	admitted  int
	rejected  int
	pending   *model.Applicant
	ended     bool
}

type SimulatorOption func(*Simulator)

func WithGenerator(generate Generator) SimulatorOption {
	return func(s *Simulator) {
		s.generate = generate
	}
}

func NewSimulator(scenario config.ScenarioConfig, cfg config.GameConfig, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		scenario:      scenario,
		capacity:      cfg.VenueCapacity,
		maxRejections: cfg.MaxRejections,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.generate == nil {
		s.generate = frequencyGenerator(scenario.Frequencies, cfg.Seed)
	}
	return s
}

func frequencyGenerator(frequencies map[string]float64, seed int64) Generator {
	names := make([]string, 0, len(frequencies))
	for name := range frequencies {
		names = append(names, name)
	}
	sort.Strings(names)
	rng := rand.New(rand.NewSource(seed))

	return func(int) map[model.Attribute]bool {
		flags := make(map[model.Attribute]bool, len(names))
		for _, name := range names {
			flags[model.Attribute(name)] = rng.Float64() < frequencies[name]
		}
		return flags
	}
}

func (s *Simulator) StartSession(_ context.Context, scenario int) (*model.Session, error) {
	if scenario != s.scenario.ID {
		return nil, fmt.Errorf("%w: simulator configured for scenario %d, asked for %d", ErrProtocol, s.scenario.ID, scenario)
	}

	constraints := make(model.ConstraintSet, 0, len(s.scenario.Constraints))
	for _, c := range s.scenario.Constraints {
		constraints = append(constraints, model.Constraint{Attribute: model.Attribute(c.Attribute), MinCount: c.MinCount})
	}
	stats := &model.Statistics{RelativeFrequencies: make(map[model.Attribute]float64, len(s.scenario.Frequencies))}
	for name, freq := range s.scenario.Frequencies {
		stats.RelativeFrequencies[model.Attribute(name)] = freq
	}

	s.sessionID = "sim-" + uuid.NewString()
	s.admitted, s.rejected = 0, 0
	s.pending = nil
	s.ended = false

	return &model.Session{
		ID:          s.sessionID,
		Scenario:    scenario,
		Constraints: constraints,
		Statistics:  stats,
	}, nil
}

func (s *Simulator) NextApplicant(_ context.Context, sessionID string, prev *model.Verdict) (*model.Turn, error) {
	if sessionID == "" || sessionID != s.sessionID {
		return nil, fmt.Errorf("%w: unknown session %q", ErrProtocol, sessionID)
	}
	if s.ended {
		return s.finalTurn(), nil
	}

	switch {
	case prev == nil && s.pending != nil:
		return nil, fmt.Errorf("%w: missing decision for applicant %d", ErrProtocol, s.pending.Index)
	case prev != nil && s.pending == nil:
		return nil, fmt.Errorf("%w: decision for applicant %d before any was issued", ErrProtocol, prev.Index)
	case prev != nil:
		if prev.Index != s.pending.Index {
			return nil, fmt.Errorf("%w: decision for applicant %d, expected %d", ErrProtocol, prev.Index, s.pending.Index)
		}
		if prev.Decision.Accepted() {
			s.admitted++
		} else {
			s.rejected++
		}
	}

	if s.capacity > 0 && s.admitted >= s.capacity {
		s.ended = true
		return s.finalTurn(), nil
	}
	if s.maxRejections > 0 && s.rejected >= s.maxRejections {
		s.ended = true
		return s.finalTurn(), nil
	}

	index := 0
	if s.pending != nil {
		index = s.pending.Index + 1
	}
	s.pending = &model.Applicant{Index: index, Attributes: s.generate(index)}

	return &model.Turn{
		Status:        model.TurnRunning,
		Applicant:     s.pending,
		AdmittedCount: s.admitted,
		RejectedCount: s.rejected,
	}, nil
}

func (s *Simulator) finalTurn() *model.Turn {
	turn := &model.Turn{
		Status:        model.TurnCompleted,
		AdmittedCount: s.admitted,
		RejectedCount: s.rejected,
	}
	if s.admitted < s.capacity {
		turn.Status = model.TurnFailed
		turn.Reason = fmt.Sprintf("rejection limit of %d reached", s.maxRejections)
	}
	return turn
}
