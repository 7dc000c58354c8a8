package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/doorman/doorman/pkg/config"
	"github.com/doorman/doorman/pkg/eventbus"
	"github.com/doorman/doorman/pkg/game"
	"github.com/doorman/doorman/pkg/model"
	"github.com/doorman/doorman/pkg/quota"
)

func scenario(t *testing.T, id int) config.ScenarioConfig {
	t.Helper()
	sc, err := config.StrategyConfig{Scenarios: config.DefaultScenarios()}.Scenario(id)
	if err != nil {
		t.Fatalf("Scenario(%d) error: %v", id, err)
	}
	return sc
}

func flags(attrs ...model.Attribute) map[model.Attribute]bool {
	out := make(map[model.Attribute]bool, len(attrs))
	for _, attr := range attrs {
		out[attr] = true
	}
	return out
}

type recorder struct {
	mu        sync.Mutex
	decisions []eventbus.DecisionEvent
	sessions  []eventbus.SessionEvent
	progress  []model.LiveProgress
	records   []*model.SessionRecord
	onPublish func(n int)
}

func (r *recorder) Publish(_ context.Context, channel string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch channel {
	case eventbus.ChannelDecision:
		var payload eventbus.DecisionEvent
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return err
		}
		r.decisions = append(r.decisions, payload)
		if r.onPublish != nil {
			r.onPublish(len(r.decisions))
		}
	case eventbus.ChannelSession:
		var payload eventbus.SessionEvent
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return err
		}
		r.sessions = append(r.sessions, payload)
	}
	return nil
}

func (r *recorder) WriteProgress(_ context.Context, progress *model.LiveProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, *progress)
	return nil
}

func (r *recorder) SaveSession(_ context.Context, record *model.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

// scriptedGateway serves an endless stream of applicants and fails on the
// request numbered failAt when it is positive.
type scriptedGateway struct {
	generate game.Generator
	failAt   int
	calls    int
	verdicts []model.Verdict
}

func (g *scriptedGateway) StartSession(_ context.Context, scenario int) (*model.Session, error) {
	return &model.Session{
		ID:       "scripted",
		Scenario: scenario,
		Constraints: model.ConstraintSet{
			{Attribute: "young", MinCount: 600},
			{Attribute: "well_dressed", MinCount: 600},
		},
	}, nil
}

func (g *scriptedGateway) NextApplicant(_ context.Context, _ string, prev *model.Verdict) (*model.Turn, error) {
	g.calls++
	if g.failAt > 0 && g.calls == g.failAt {
		return nil, fmt.Errorf("%w: connection reset", game.ErrUnavailable)
	}
	if prev != nil {
		g.verdicts = append(g.verdicts, *prev)
	}
	index := g.calls - 1
	return &model.Turn{
		Status:    model.TurnRunning,
		Applicant: &model.Applicant{Index: index, Attributes: g.generate(index)},
	}, nil
}

func TestRunAlternatingApplicantsFillsVenue(t *testing.T) {
	sc := scenario(t, 1)
	pattern := []map[model.Attribute]bool{
		flags("young"),
		flags("well_dressed"),
		flags("young", "well_dressed"),
	}
	sim := game.NewSimulator(sc, config.GameConfig{VenueCapacity: 1000, MaxRejections: 20000},
		game.WithGenerator(func(index int) map[model.Attribute]bool { return pattern[index%len(pattern)] }))
	rec := &recorder{}

	report, err := NewRunner(sim, sc, 1000, 50, zap.NewNop(),
		WithPublisher(rec), WithProgressWriter(rec), WithHistory(rec)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.Outcome != model.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %s", report.Outcome)
	}
	if report.Admitted != 1000 || report.ServerAdmitted != 1000 {
		t.Fatalf("expected 1000 admitted, got %d (server %d)", report.Admitted, report.ServerAdmitted)
	}
	for _, attr := range []model.Attribute{"young", "well_dressed"} {
		if report.Counts[attr] < 522 {
			t.Fatalf("expected %s >= 522, got %d", attr, report.Counts[attr])
		}
	}
	if !report.Succeeded() {
		t.Fatalf("expected success, shortfall %v", report.Shortfall())
	}
	if report.RuleHits["threshold_accept"] == 0 || report.RuleHits["balance"] == 0 {
		t.Fatalf("expected both rules to fire, got %v", report.RuleHits)
	}

	if len(rec.records) != 1 {
		t.Fatalf("expected one history record, got %d", len(rec.records))
	}
	record := rec.records[0]
	if record.GameID != report.SessionID || record.Outcome != model.OutcomeCompleted || record.FinishedAt == nil {
		t.Fatalf("unexpected record %+v", record)
	}
	if len(rec.sessions) != 2 || rec.sessions[0].Status != string(model.OutcomeRunning) {
		t.Fatalf("expected start and end session events, got %+v", rec.sessions)
	}
	last := rec.progress[len(rec.progress)-1]
	if last.Status != model.OutcomeCompleted || last.Admitted != 1000 {
		t.Fatalf("unexpected final progress %+v", last)
	}
}

func TestRunTotalMatchesAdmitsAndCountsAreMonotonic(t *testing.T) {
	sc := scenario(t, 2)
	rng := rand.New(rand.NewSource(42))
	generate := func(int) map[model.Attribute]bool {
		out := make(map[model.Attribute]bool)
		for name, freq := range sc.Frequencies {
			out[model.Attribute(name)] = rng.Float64() < freq
		}
		return out
	}
	sim := game.NewSimulator(sc, config.GameConfig{VenueCapacity: 1000, MaxRejections: 5000}, game.WithGenerator(generate))
	rec := &recorder{}

	report, err := NewRunner(sim, sc, 1000, 100, zap.NewNop(), WithPublisher(rec), WithProgressWriter(rec)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	admits := 0
	for _, d := range rec.decisions {
		if d.Decision == model.Admit.String() {
			admits++
		}
	}
	if admits != report.Admitted {
		t.Fatalf("total %d does not match %d admit decisions", report.Admitted, admits)
	}
	if report.Admitted > 1000 {
		t.Fatalf("total %d exceeds capacity", report.Admitted)
	}
	if len(rec.decisions) != report.Admitted+report.Rejected {
		t.Fatalf("expected %d decisions, got %d", report.Admitted+report.Rejected, len(rec.decisions))
	}

	for i := 1; i < len(rec.progress); i++ {
		prev, cur := rec.progress[i-1], rec.progress[i]
		if cur.Admitted < prev.Admitted {
			t.Fatalf("total decreased at snapshot %d: %d -> %d", i, prev.Admitted, cur.Admitted)
		}
		for attr, count := range cur.Counts {
			if count < prev.Counts[attr] {
				t.Fatalf("%s decreased at snapshot %d: %d -> %d", attr, i, prev.Counts[attr], count)
			}
		}
	}
}

func TestRunStopsAtCapacity(t *testing.T) {
	gw := &scriptedGateway{generate: func(int) map[model.Attribute]bool { return flags("young", "well_dressed") }}

	report, err := NewRunner(gw, scenario(t, 1), 3, 50, zap.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Outcome != model.OutcomeCapacity || report.Admitted != 3 {
		t.Fatalf("expected capacity outcome with 3 admitted, got %s with %d", report.Outcome, report.Admitted)
	}
	// The third admit rides on the fourth request; no applicant is decided after it.
	if gw.calls != 4 || len(gw.verdicts) != 3 {
		t.Fatalf("expected 4 requests and 3 verdicts, got %d and %d", gw.calls, len(gw.verdicts))
	}
	for i, v := range gw.verdicts {
		if v.Index != i {
			t.Fatalf("verdict %d sent for applicant %d", i, v.Index)
		}
	}
}

func TestRunReturnsPartialReportOnTransportError(t *testing.T) {
	gw := &scriptedGateway{
		generate: func(int) map[model.Attribute]bool { return flags("young", "well_dressed") },
		failAt:   6,
	}
	rec := &recorder{}

	report, err := NewRunner(gw, scenario(t, 1), 1000, 50, zap.NewNop(), WithHistory(rec)).Run(context.Background())
	if !errors.Is(err, game.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if report == nil {
		t.Fatal("expected partial report")
	}
	if report.Outcome != model.OutcomeAborted || report.Admitted != 5 || report.Error == "" {
		t.Fatalf("unexpected partial report %+v", report)
	}
	if len(rec.records) != 1 || rec.records[0].Outcome != model.OutcomeAborted {
		t.Fatalf("expected aborted history record, got %+v", rec.records)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &scriptedGateway{generate: func(int) map[model.Attribute]bool { return flags("young") }}
	rec := &recorder{onPublish: func(n int) {
		if n == 10 {
			cancel()
		}
	}}

	report, err := NewRunner(gw, scenario(t, 1), 1000, 50, zap.NewNop(), WithPublisher(rec)).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report.Outcome != model.OutcomeAborted || report.Admitted+report.Rejected != 10 {
		t.Fatalf("expected 10 decisions before abort, got %+v", report)
	}
}

func TestRunFailsFastOnUnknownAttribute(t *testing.T) {
	gw := &scriptedGateway{generate: func(int) map[model.Attribute]bool { return nil }}
	sc := scenario(t, 1)
	sc.Focus = []string{"young", "tall"}

	report, err := NewRunner(gw, sc, 1000, 50, zap.NewNop()).Run(context.Background())
	if !errors.Is(err, quota.ErrUnknownAttribute) {
		t.Fatalf("expected ErrUnknownAttribute, got %v", err)
	}
	if gw.calls != 0 {
		t.Fatalf("expected no applicant requests, got %d", gw.calls)
	}
	if report.Outcome != model.OutcomeAborted {
		t.Fatalf("expected aborted outcome, got %s", report.Outcome)
	}
}

func TestZeroQuotaAttributeDoesNotRaiseAdmitRate(t *testing.T) {
	sc := config.ScenarioConfig{
		ID:    9,
		Focus: []string{"regular", "rare", "ignored"},
		Rules: []config.RuleConfig{{Kind: config.RuleSaturation}, {Kind: config.RuleLagging}},
		Constraints: []config.ConstraintConfig{
			{Attribute: "regular", MinCount: 10},
			{Attribute: "rare", MinCount: 10},
			{Attribute: "ignored", MinCount: 0},
		},
	}
	run := func(generate game.Generator) *Report {
		sim := game.NewSimulator(sc, config.GameConfig{VenueCapacity: 100, MaxRejections: 200}, game.WithGenerator(generate))
		report, err := NewRunner(sim, sc, 100, 50, zap.NewNop()).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		return report
	}

	withZero := run(func(i int) map[model.Attribute]bool {
		if i%2 == 0 {
			return flags("ignored")
		}
		return flags("regular")
	})
	baseline := run(func(i int) map[model.Attribute]bool {
		if i%2 == 0 {
			return nil
		}
		return flags("regular")
	})

	if withZero.Admitted != baseline.Admitted {
		t.Fatalf("zero-quota attribute changed admissions: %d vs baseline %d", withZero.Admitted, baseline.Admitted)
	}
	if withZero.Counts["ignored"] != 0 {
		t.Fatalf("expected no applicant admitted for the zero-quota attribute, got %d", withZero.Counts["ignored"])
	}
	if withZero.RuleHits["lagging"] == 0 {
		t.Fatalf("expected lagging rule to decide, got %v", withZero.RuleHits)
	}
}
