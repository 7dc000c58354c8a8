// Package runner drives one admission session: it pulls applicants from a
// gateway, decides each one through the scenario's rule cascade and keeps the
// progress state that the cascade reads.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/doorman/doorman/pkg/config"
	"github.com/doorman/doorman/pkg/eventbus"
	"github.com/doorman/doorman/pkg/metrics"
	"github.com/doorman/doorman/pkg/model"
	"github.com/doorman/doorman/pkg/quota"
	"github.com/doorman/doorman/pkg/strategy"
)

// Gateway is the applicant source. The HTTP client and the simulator in
// package game both satisfy it.
type Gateway interface {
	StartSession(ctx context.Context, scenario int) (*model.Session, error)
	NextApplicant(ctx context.Context, sessionID string, prev *model.Verdict) (*model.Turn, error)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event eventbus.Event) error
}

type ProgressWriter interface {
	WriteProgress(ctx context.Context, progress *model.LiveProgress) error
}

type HistoryStore interface {
	SaveSession(ctx context.Context, record *model.SessionRecord) error
}

type Option func(*Runner)

func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

func WithProgressWriter(w ProgressWriter) Option {
	return func(r *Runner) { r.progress = w }
}

func WithHistory(h HistoryStore) Option {
	return func(r *Runner) { r.history = h }
}

type Runner struct {
	gateway       Gateway
	scenario      config.ScenarioConfig
	capacity      int
	progressEvery int
	logger        *zap.Logger

	publisher Publisher
	progress  ProgressWriter
	history   HistoryStore
}

func NewRunner(
	gateway Gateway,
	scenario config.ScenarioConfig,
	capacity int,
	progressEvery int,
	logger *zap.Logger,
	opts ...Option,
) *Runner {
	if progressEvery <= 0 {
		progressEvery = 50
	}
	r := &Runner{
		gateway:       gateway,
		scenario:      scenario,
		capacity:      capacity,
		progressEvery: progressEvery,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// session is the state owned by a single Run call.
type session struct {
	report     *Report
	controller *quota.AdmissionController
	cascade    *strategy.Cascade
	label      string
}

// Run plays one session to the end. Once the session has started a report is
// always returned, together with the error that stopped it early if any.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	info, err := r.gateway.StartSession(ctx, r.scenario.ID)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	s := &session{
		report: newReport(info, r.capacity),
		label:  strconv.Itoa(r.scenario.ID),
	}
	logger := r.logger.With(zap.String("session_id", info.ID), zap.Int("scenario", r.scenario.ID))

	if err := r.prepare(s, info); err != nil {
		return r.finish(ctx, s, logger, err)
	}

	logger.Info("session started",
		zap.Int("capacity", r.capacity),
		zap.Strings("rules", s.cascade.RuleNames()),
	)
	r.publishSession(ctx, s, eventbus.EventSessionStarted, logger)
	r.writeProgress(ctx, s, logger)

	return r.finish(ctx, s, logger, r.loop(ctx, s, logger))
}

func (r *Runner) prepare(s *session, info *model.Session) error {
	registry, err := quota.NewRegistry(info.Constraints)
	if err != nil {
		return err
	}
	cascade, err := strategy.Build(r.scenario, registry)
	if err != nil {
		return err
	}

	s.cascade = cascade
	s.controller = quota.NewAdmissionController(quota.NewTracker(registry), cascade, r.capacity)
	s.report.Attributes = registry.Attributes()
	s.report.Minimums = registry.Minimums()
	return nil
}

func (r *Runner) loop(ctx context.Context, s *session, logger *zap.Logger) error {
	var prev *model.Verdict
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		turn, err := r.gateway.NextApplicant(ctx, s.report.SessionID, prev)
		if err != nil {
			return fmt.Errorf("next applicant: %w", err)
		}
		s.report.ServerAdmitted = turn.AdmittedCount
		s.report.ServerRejected = turn.RejectedCount

		if turn.Ended() {
			s.report.Reason = turn.Reason
			if turn.Status == model.TurnFailed {
				s.report.Outcome = model.OutcomeFailed
			} else {
				s.report.Outcome = model.OutcomeCompleted
			}
			return nil
		}
		// The request that delivered this applicant also acknowledged the
		// admit that filled the venue.
		if s.controller.Full() {
			s.report.Outcome = model.OutcomeCapacity
			return nil
		}

		applicant := *turn.Applicant
		decision, rule := s.controller.Decide(applicant)
		if err := s.controller.Apply(applicant, decision); err != nil {
			return err
		}
		prev = &model.Verdict{Index: applicant.Index, Decision: decision}

		s.report.RuleHits[rule]++
		r.observe(ctx, s, applicant, decision, rule, logger)
	}
}

func (r *Runner) observe(ctx context.Context, s *session, applicant model.Applicant, decision model.Decision, rule string, logger *zap.Logger) {
	tracker := s.controller.Tracker()

	metrics.DecisionsTotal.WithLabelValues(s.label, decision.String()).Inc()
	metrics.RuleHits.WithLabelValues(s.label, rule).Inc()
	if decision.Accepted() {
		metrics.VenueOccupancy.WithLabelValues(s.label).Set(float64(tracker.Total()))
		snapshot := tracker.Snapshot()
		for _, attr := range tracker.Registry().Attributes() {
			metrics.AttributeAdmitted.WithLabelValues(s.label, string(attr)).Set(float64(snapshot.Count(attr)))
			metrics.AttributeProgress.WithLabelValues(s.label, string(attr)).Set(snapshot.Ratio(attr, r.scenario.Sentinel))
		}

		if tracker.Total()%r.progressEvery == 0 {
			logger.Info("admission progress",
				zap.Int("admitted", tracker.Total()),
				zap.Int("rejected", tracker.Declined()),
				zap.Any("counts", tracker.Counts()),
			)
		}
	}

	if r.publisher != nil {
		carried := make([]string, 0, tracker.Registry().Len())
		for _, attr := range tracker.Registry().Attributes() {
			if applicant.HasAttribute(attr) {
				carried = append(carried, string(attr))
			}
		}
		r.publish(ctx, eventbus.ChannelDecision, eventbus.EventDecision, eventbus.DecisionEvent{
			SessionID:  s.report.SessionID,
			Scenario:   s.report.Scenario,
			Index:      applicant.Index,
			Decision:   decision.String(),
			Rule:       rule,
			Admitted:   tracker.Total(),
			Attributes: carried,
		}, logger)
	}
	r.writeProgress(ctx, s, logger)
}

func (r *Runner) finish(ctx context.Context, s *session, logger *zap.Logger, runErr error) (*Report, error) {
	report := s.report
	report.FinishedAt = time.Now()

	if s.controller != nil {
		tracker := s.controller.Tracker()
		report.Admitted = tracker.Total()
		report.Rejected = tracker.Declined()
		report.Counts = tracker.Counts()
		report.RejectedByAttribute = tracker.RejectedCounts()
	}
	if runErr != nil {
		report.Outcome = model.OutcomeAborted
		report.Error = runErr.Error()
	}

	metrics.SessionsTotal.WithLabelValues(s.label, string(report.Outcome)).Inc()

	// Bookkeeping below must survive a cancelled run.
	ctx = context.WithoutCancel(ctx)
	r.publishSession(ctx, s, eventbus.EventSessionEnded, logger)
	r.writeProgress(ctx, s, logger)
	if r.history != nil {
		if err := r.history.SaveSession(ctx, report.Record()); err != nil {
			logger.Warn("failed to save session history", zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("outcome", string(report.Outcome)),
		zap.Int("admitted", report.Admitted),
		zap.Int("rejected", report.Rejected),
		zap.Any("counts", report.Counts),
		zap.Any("rule_hits", report.RuleHits),
		zap.Duration("duration", report.Duration()),
	}
	if report.Reason != "" {
		fields = append(fields, zap.String("reason", report.Reason))
	}
	if runErr != nil {
		fields = append(fields, zap.Error(runErr))
		logger.Error("session aborted", fields...)
		if errors.Is(runErr, context.Canceled) {
			return report, runErr
		}
		return report, fmt.Errorf("session %s: %w", report.SessionID, runErr)
	}
	logger.Info("session finished", fields...)
	return report, nil
}

func (r *Runner) publishSession(ctx context.Context, s *session, eventType string, logger *zap.Logger) {
	if r.publisher == nil {
		return
	}
	admitted, rejected := 0, 0
	if s.controller != nil {
		admitted = s.controller.Tracker().Total()
		rejected = s.controller.Tracker().Declined()
	}
	r.publish(ctx, eventbus.ChannelSession, eventType, eventbus.SessionEvent{
		SessionID: s.report.SessionID,
		Scenario:  s.report.Scenario,
		Status:    string(s.report.Outcome),
		Admitted:  admitted,
		Rejected:  rejected,
		Reason:    s.report.Reason,
	}, logger)
}

func (r *Runner) publish(ctx context.Context, channel, eventType string, payload interface{}, logger *zap.Logger) {
	event, err := eventbus.NewEvent(eventType, payload)
	if err != nil {
		logger.Warn("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := r.publisher.Publish(ctx, channel, event); err != nil {
		logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

func (r *Runner) writeProgress(ctx context.Context, s *session, logger *zap.Logger) {
	if r.progress == nil || s.controller == nil {
		return
	}
	tracker := s.controller.Tracker()
	progress := &model.LiveProgress{
		SessionID: s.report.SessionID,
		Scenario:  s.report.Scenario,
		Status:    s.report.Outcome,
		Capacity:  r.capacity,
		Admitted:  tracker.Total(),
		Rejected:  tracker.Declined(),
		Counts:    tracker.Counts(),
		Minimums:  s.report.Minimums,
		UpdatedAt: time.Now(),
	}
	if err := r.progress.WriteProgress(ctx, progress); err != nil {
		logger.Warn("failed to write live progress", zap.Error(err))
	}
}
