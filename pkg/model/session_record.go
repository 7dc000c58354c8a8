package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type SessionOutcome string

const (
	OutcomeRunning   SessionOutcome = "RUNNING"
	OutcomeCompleted SessionOutcome = "COMPLETED"
	OutcomeCapacity  SessionOutcome = "CAPACITY"
	OutcomeFailed    SessionOutcome = "FAILED"
	OutcomeAborted   SessionOutcome = "ABORTED"
)

// SessionRecord is the history row written once a session finishes.
type SessionRecord struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	GameID              string         `gorm:"not null;uniqueIndex"`
	Scenario            int            `gorm:"not null;index"`
	Outcome             SessionOutcome `gorm:"type:varchar(50);default:'RUNNING';index"`
	Capacity            int
	Admitted            int
	Rejected            int
	ServerAdmitted      int
	ServerRejected      int
	Attributes          pq.StringArray `gorm:"type:text[]"`
	Counts              JSONB          `gorm:"type:jsonb;default:'{}'"`
	Minimums            JSONB          `gorm:"type:jsonb;default:'{}'"`
	RejectedByAttribute JSONB          `gorm:"type:jsonb;default:'{}'"`
	RuleHits            JSONB          `gorm:"type:jsonb;default:'{}'"`
	Reason              string
	ErrorMessage        string
	StartedAt           time.Time
	FinishedAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (SessionRecord) TableName() string {
	return "admission_sessions"
}
