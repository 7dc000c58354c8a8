package runner

import (
	"sort"
	"time"

	"github.com/doorman/doorman/pkg/model"
)

// Report summarises one session. It is returned even when the session was
// cut short, in which case Outcome is aborted and Error carries the cause.
type Report struct {
	SessionID           string
	Scenario            int
	Outcome             model.SessionOutcome
	Capacity            int
	Admitted            int
	Rejected            int
	Attributes          []model.Attribute
	Counts              map[model.Attribute]int
	Minimums            map[model.Attribute]int
	RejectedByAttribute map[model.Attribute]int
	RuleHits            map[string]int
	ServerAdmitted      int
	ServerRejected      int
	Reason              string
	Error               string
	StartedAt           time.Time
	FinishedAt          time.Time
}

func newReport(session *model.Session, capacity int) *Report {
	return &Report{
		SessionID: session.ID,
		Scenario:  session.Scenario,
		Outcome:   model.OutcomeRunning,
		Capacity:  capacity,
		RuleHits:  make(map[string]int),
		StartedAt: time.Now(),
	}
}

// Shortfall lists the attributes still below their minimum, in registry order.
func (r *Report) Shortfall() []model.Attribute {
	var missing []model.Attribute
	for _, attr := range r.Attributes {
		if r.Counts[attr] < r.Minimums[attr] {
			missing = append(missing, attr)
		}
	}
	return missing
}

// Succeeded reports whether the venue filled with every minimum met.
func (r *Report) Succeeded() bool {
	switch r.Outcome {
	case model.OutcomeCompleted, model.OutcomeCapacity:
		return len(r.Shortfall()) == 0
	default:
		return false
	}
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Record converts the report into its history row.
func (r *Report) Record() *model.SessionRecord {
	attrs := make([]string, 0, len(r.Attributes))
	for _, attr := range r.Attributes {
		attrs = append(attrs, string(attr))
	}

	hits := make(model.JSONB, len(r.RuleHits))
	names := make([]string, 0, len(r.RuleHits))
	for name := range r.RuleHits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		hits[name] = r.RuleHits[name]
	}

	record := &model.SessionRecord{
		GameID:              r.SessionID,
		Scenario:            r.Scenario,
		Outcome:             r.Outcome,
		Capacity:            r.Capacity,
		Admitted:            r.Admitted,
		Rejected:            r.Rejected,
		ServerAdmitted:      r.ServerAdmitted,
		ServerRejected:      r.ServerRejected,
		Attributes:          attrs,
		Counts:              model.CountsJSONB(r.Counts),
		Minimums:            model.CountsJSONB(r.Minimums),
		RejectedByAttribute: model.CountsJSONB(r.RejectedByAttribute),
		RuleHits:            hits,
		Reason:              r.Reason,
		ErrorMessage:        r.Error,
		StartedAt:           r.StartedAt,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		record.FinishedAt = &finished
	}
	return record
}
