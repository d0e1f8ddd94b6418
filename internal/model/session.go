package model

import "time"

// SessionKind distinguishes the camp period types.
type SessionKind string

// Session kind constants.
const (
	SessionMain      SessionKind = "main"
	SessionEmbedded  SessionKind = "embedded"
	SessionSpecialty SessionKind = "specialty"
)

// Session is a bounded camp period within a year.
type Session struct {
	StartDate  time.Time
	EndDate    time.Time
	ExternalID string
	Name       string
	Kind       SessionKind
	Year       int
}

// Overlaps reports whether two sessions share any days. Embedded sessions
// overlap their parent main session; campers in either can see each other.
func (s *Session) Overlaps(other *Session) bool {
	if s.Year != other.Year {
		return false
	}
	return !s.EndDate.Before(other.StartDate) && !other.EndDate.Before(s.StartDate)
}
