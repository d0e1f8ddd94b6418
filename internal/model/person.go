// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Person represents one camper-year record from the upstream camp system.
// Identity is (ExternalID, Year): a full re-sync may not preserve internal
// row ids, so nothing downstream may key on anything else.
type Person struct {
	Birthdate     time.Time
	ExternalID    string
	FirstName     string
	LastName      string
	PreferredName string
	School        string
	HouseholdID   string
	Gender        string
	Grade         int
	Year          int
}

// Key returns the immutable identity key for a person.
func (p *Person) Key() string {
	return fmt.Sprintf("%s:%d", p.ExternalID, p.Year)
}

// DisplayName returns the name staff would recognize.
func (p *Person) DisplayName() string {
	first := p.PreferredName
	if first == "" {
		first = p.FirstName
	}
	return strings.TrimSpace(first + " " + p.LastName)
}

// AgeAt returns the person's age in fractional years at the given date.
func (p *Person) AgeAt(at time.Time) float64 {
	if p.Birthdate.IsZero() {
		return 0
	}
	return at.Sub(p.Birthdate).Hours() / (24 * 365.25)
}

// EnrollmentStatus describes an attendee's standing in a session.
type EnrollmentStatus string

// Enrollment status constants.
const (
	EnrollmentEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentWaitlisted EnrollmentStatus = "waitlisted"
	EnrollmentCancelled  EnrollmentStatus = "cancelled"
)

// Attendee is a Person enrolled in a specific session/year. Attendees define
// the candidate pool for both name resolution and solver assignment.
type Attendee struct {
	Person     Person
	SessionID  string
	Status     EnrollmentStatus
	PriorLevel int // bunk level the camper held last year, 0 if new
	Year       int
}

// IsEnrolled reports whether the attendee counts toward the active pool.
func (a *Attendee) IsEnrolled() bool {
	return a.Status == EnrollmentEnrolled
}
