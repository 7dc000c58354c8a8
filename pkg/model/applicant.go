package model

type Attribute string

// Applicant is one person in the admission stream. Attributes missing from the
// map are treated as false.
type Applicant struct {
	Index      int                `json:"personIndex"`
	Attributes map[Attribute]bool `json:"attributes"`
}

func (a Applicant) HasAttribute(attr Attribute) bool {
	if a.Attributes == nil {
		return false
	}
	return a.Attributes[attr]
}

// CountOf returns how many of attrs the applicant carries.
func (a Applicant) CountOf(attrs []Attribute) int {
	n := 0
	for _, attr := range attrs {
		if a.HasAttribute(attr) {
			n++
		}
	}
	return n
}

func (a Applicant) HasAny(attrs []Attribute) bool {
	return a.CountOf(attrs) > 0
}
