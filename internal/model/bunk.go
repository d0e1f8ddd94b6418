package model

// Bunk is a physical cabin. Gender restricts eligibility; an inactive bunk
// never receives assignments.
type Bunk struct {
	ExternalID string
	Name       string
	Gender     string // "male", "female", or "" for any
	Year       int
	Level      int // age/grade tier of the cabin, higher is older
	IsActive   bool
}

// EligibleFor reports whether a camper of the given gender may be placed here.
func (b *Bunk) EligibleFor(gender string) bool {
	if !b.IsActive {
		return false
	}
	return b.Gender == "" || b.Gender == gender
}

// BunkPlan is the unit of usable capacity: one (bunk, session, year) slot
// definition. Solver work is always BunkPlan-scoped.
type BunkPlan struct {
	BunkExternalID   string
	SessionID        string
	ID               int64
	Year             int
	Capacity         int
	MaxCapacity      int
	HardMinimum      int
	PreferredMinimum int
}

// CapacityFor returns the usable capacity under the given source mode.
func (p *BunkPlan) CapacityFor(source string) int {
	if source == "max" && p.MaxCapacity > 0 {
		return p.MaxCapacity
	}
	return p.Capacity
}
