package model

type Decision int

const (
	Reject Decision = iota
	Admit
)

func (d Decision) String() string {
	if d == Admit {
		return "admit"
	}
	return "reject"
}

func (d Decision) Accepted() bool {
	return d == Admit
}

// Verdict acknowledges the decision taken for a previously issued applicant.
type Verdict struct {
	Index    int
	Decision Decision
}
