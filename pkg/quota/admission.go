package quota

import (
	"errors"
	"fmt"

	"github.com/doorman/doorman/pkg/model"
)

var ErrVenueFull = errors.New("venue is at capacity")

// Decider turns the current progress and the next applicant into a decision,
// reporting the name of the rule that produced it.
type Decider interface {
	Decide(progress Progress, applicant model.Applicant) (model.Decision, string)
}

type AdmissionController struct {
	tracker  *Tracker
	decider  Decider
	capacity int
}

func NewAdmissionController(tracker *Tracker, decider Decider, capacity int) *AdmissionController {
	return &AdmissionController{tracker: tracker, decider: decider, capacity: capacity}
}

func (a *AdmissionController) Tracker() *Tracker {
	return a.tracker
}

func (a *AdmissionController) Capacity() int {
	return a.capacity
}

func (a *AdmissionController) Full() bool {
	return a.capacity > 0 && a.tracker.Total() >= a.capacity
}

// Decide evaluates the applicant against a fresh snapshot. It does not mutate
// the tracker.
func (a *AdmissionController) Decide(applicant model.Applicant) (model.Decision, string) {
	return a.decider.Decide(a.tracker.Snapshot(), applicant)
}

func (a *AdmissionController) Apply(applicant model.Applicant, decision model.Decision) error {
	if !decision.Accepted() {
		a.tracker.RecordReject(applicant)
		return nil
	}
	if a.Full() {
		return fmt.Errorf("admit applicant %d: %w", applicant.Index, ErrVenueFull)
	}
	a.tracker.RecordAdmit(applicant)
	return nil
}
