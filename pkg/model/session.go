package model

type Constraint struct {
	Attribute Attribute `json:"attribute"`
	MinCount  int       `json:"minCount"`
}

// ConstraintSet keeps the order in which the service reported the quotas.
type ConstraintSet []Constraint

func (cs ConstraintSet) Attributes() []Attribute {
	attrs := make([]Attribute, 0, len(cs))
	for _, c := range cs {
		attrs = append(attrs, c.Attribute)
	}
	return attrs
}

type Statistics struct {
	RelativeFrequencies map[Attribute]float64               `json:"relativeFrequencies"`
	Correlations        map[Attribute]map[Attribute]float64 `json:"correlations"`
}

type Session struct {
	ID          string
	Scenario    int
	Constraints ConstraintSet
	Statistics  *Statistics
}

type TurnStatus string

const (
	TurnRunning   TurnStatus = "running"
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
)

// Turn is the service reply to a decide-and-next exchange.
type Turn struct {
	Status        TurnStatus
	Applicant     *Applicant
	AdmittedCount int
	RejectedCount int
	Reason        string
}

func (t *Turn) Ended() bool {
	return t.Status != TurnRunning || t.Applicant == nil
}
