package model

import "time"

// AssignmentSource records how an assignment came to be.
type AssignmentSource string

// Assignment source constants.
const (
	AssignmentBySolver AssignmentSource = "solver"
	AssignmentByStaff  AssignmentSource = "manual"
)

// Assignment places one camper in one bunk for a session. ScenarioID is
// empty for production records and a scenario uuid for drafts.
type Assignment struct {
	AssignedAt       time.Time
	PersonExternalID string
	BunkExternalID   string
	SessionID        string
	ScenarioID       string
	Source           AssignmentSource
	BunkPlanID       int64
	Year             int
}

// IsDraft reports whether the assignment belongs to a what-if scenario.
func (a *Assignment) IsDraft() bool {
	return a.ScenarioID != ""
}
