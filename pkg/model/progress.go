package model

import "time"

// LiveProgress is the snapshot of a running session shared with the status API.
type LiveProgress struct {
	SessionID string            `json:"session_id"`
	Scenario  int               `json:"scenario"`
	Status    SessionOutcome    `json:"status"`
	Capacity  int               `json:"capacity"`
	Admitted  int               `json:"admitted"`
	Rejected  int               `json:"rejected"`
	Counts    map[Attribute]int `json:"counts"`
	Minimums  map[Attribute]int `json:"minimums"`
	UpdatedAt time.Time         `json:"updated_at"`
}
