package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/dedupe"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/service"
)

// Request is one placement preference in solver form. Weight is the fully
// resolved objective contribution before diminishing returns: source-category
// multiplier times priority.
type Request struct {
	RequesteeID string
	Type        model.RequestType
	Weight      float64
	Impossible  bool // requestee not in this session's pool
}

// Camper is one attendee in solver form.
type Camper struct {
	ExternalID       string
	Gender           string
	Age              float64
	Grade            int
	PriorLevel       int
	Requests         []Request
	HasAgePreference bool
}

// Slot is one usable bunk plan in solver form.
type Slot struct {
	BunkExternalID   string
	Gender           string
	BunkPlanID       int64
	Level            int
	Capacity         int
	HardMinimum      int
	PreferredMinimum int
}

// Instance is a fully materialized solve problem for one scenario, session,
// and year. Building it resolves every storage read up front; the search
// itself never touches the database.
type Instance struct {
	SessionID  string
	ScenarioID string
	Year       int
	Campers    []Camper
	Slots      []Slot
	Groups     [][]int // camper indexes per locked group
	groupOf    []int   // camper index -> group index, -1 if ungrouped
	index      map[string]int
}

// CamperIndex returns the camper's position in the instance, or -1.
func (inst *Instance) CamperIndex(externalID string) int {
	if i, ok := inst.index[externalID]; ok {
		return i
	}
	return -1
}

// BuildInstance loads everything a solve needs. Requests outside this
// session, inactive or merged requests, and declined requests are excluded
// here rather than checked during search.
func BuildInstance(ctx context.Context, storage service.Storage, cfg *config.Snapshot, scenarioID, sessionID string, year int) (*Instance, error) {
	attendees, err := storage.GetAttendeesBySession(ctx, sessionID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load attendees: %w", err)
	}

	inst := &Instance{
		SessionID:  sessionID,
		ScenarioID: scenarioID,
		Year:       year,
		index:      make(map[string]int),
	}

	// Ages anchor to midsummer of the camp year.
	ref := time.Date(year, time.July, 1, 0, 0, 0, 0, time.UTC)
	for _, a := range attendees {
		if !a.IsEnrolled() {
			continue
		}
		inst.index[a.Person.ExternalID] = len(inst.Campers)
		inst.Campers = append(inst.Campers, Camper{
			ExternalID: a.Person.ExternalID,
			Gender:     a.Person.Gender,
			Age:        a.Person.AgeAt(ref),
			Grade:      a.Person.Grade,
			PriorLevel: a.PriorLevel,
		})
	}

	bunks, err := storage.GetBunks(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load bunks: %w", err)
	}
	bunkByID := make(map[string]*model.Bunk, len(bunks))
	for i := range bunks {
		bunkByID[bunks[i].ExternalID] = &bunks[i]
	}

	plans, err := storage.GetBunkPlans(ctx, sessionID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load bunk plans: %w", err)
	}
	capacitySource := cfg.String("solver", "capacity", "source")
	for i := range plans {
		plan := &plans[i]
		bunk, ok := bunkByID[plan.BunkExternalID]
		if !ok || !bunk.IsActive {
			continue
		}
		inst.Slots = append(inst.Slots, Slot{
			BunkExternalID:   plan.BunkExternalID,
			Gender:           bunk.Gender,
			BunkPlanID:       plan.ID,
			Level:            bunk.Level,
			Capacity:         plan.CapacityFor(capacitySource),
			HardMinimum:      plan.HardMinimum,
			PreferredMinimum: plan.PreferredMinimum,
		})
	}

	// Merged duplicates fold into their winner here, so the solver sees
	// one request per intent carrying the group's strongest evidence.
	requests, err := dedupe.EffectiveRequests(ctx, storage, service.RequestFilter{
		SessionID: sessionID,
		Year:      year,
		Status:    model.StatusResolved,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}
	for _, r := range requests {
		if !r.IsActive {
			continue
		}
		ci, ok := inst.index[r.RequesterExternalID]
		if !ok {
			continue
		}
		if r.Type == model.RequestAgePreference {
			inst.Campers[ci].HasAgePreference = true
			continue
		}
		_, known := inst.index[r.RequesteeExternalID]
		inst.Campers[ci].Requests = append(inst.Campers[ci].Requests, Request{
			RequesteeID: r.RequesteeExternalID,
			Type:        r.Type,
			Weight:      categoryMultiplier(cfg, r.SourceCategory) * float64(r.Priority),
			Impossible:  !known,
		})
	}

	groups, err := storage.GetLockedGroups(ctx, scenarioID, sessionID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load locked groups: %w", err)
	}
	inst.groupOf = make([]int, len(inst.Campers))
	for i := range inst.groupOf {
		inst.groupOf[i] = -1
	}
	for _, g := range groups {
		var members []int
		for _, id := range g.MemberIDs {
			ci, ok := inst.index[id]
			if !ok {
				continue
			}
			if inst.groupOf[ci] != -1 {
				return nil, fmt.Errorf("camper %s belongs to two locked groups", id)
			}
			members = append(members, ci)
		}
		if len(members) < 2 {
			continue
		}
		for _, ci := range members {
			inst.groupOf[ci] = len(inst.Groups)
		}
		inst.Groups = append(inst.Groups, members)
	}

	return inst, nil
}

func categoryMultiplier(cfg *config.Snapshot, category string) float64 {
	switch category {
	case "staff":
		return cfg.Float("solver", "objective", "multiplier_staff")
	case "camper":
		return cfg.Float("solver", "objective", "multiplier_camper")
	default:
		return cfg.Float("solver", "objective", "multiplier_parent")
	}
}
