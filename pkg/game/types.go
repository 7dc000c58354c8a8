package game

import (
	"github.com/doorman/doorman/pkg/model"
)

type newGameResponse struct {
	GameID              string             `json:"gameId"`
	Constraints         []model.Constraint `json:"constraints"`
	AttributeStatistics *model.Statistics  `json:"attributeStatistics"`
}

type decideResponse struct {
	Status        string           `json:"status"`
	AdmittedCount int              `json:"admittedCount"`
	RejectedCount int              `json:"rejectedCount"`
	NextPerson    *model.Applicant `json:"nextPerson"`
	Reason        string           `json:"reason"`
}

func (r decideResponse) turn() *model.Turn {
	return &model.Turn{
		Status:        model.TurnStatus(r.Status),
		Applicant:     r.NextPerson,
		AdmittedCount: r.AdmittedCount,
		RejectedCount: r.RejectedCount,
		Reason:        r.Reason,
	}
}
