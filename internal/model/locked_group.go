package model

import "time"

// LockedGroup is a staff-curated set of attendees that must share a bunk.
// Members all belong to the group's session/year; the solver forces them
// into one cabin ahead of every soft preference.
type LockedGroup struct {
	CreatedAt  time.Time
	ScenarioID string
	SessionID  string
	Name       string
	MemberIDs  []string // person external ids
	ID         int64
	Year       int
}

// Contains reports whether the person is a member of the group.
func (g *LockedGroup) Contains(personExternalID string) bool {
	for _, id := range g.MemberIDs {
		if id == personExternalID {
			return true
		}
	}
	return false
}
