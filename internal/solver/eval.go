package solver

import (
	"math"
	"sort"

	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/model"
)

// evaluation scores one complete assignment. Hard violations and the
// objective are kept separate: a solution with any hard violation is
// infeasible regardless of its objective value.
type evaluation struct {
	Hard               map[ConstraintKind]int
	Objective          float64
	SoftPenalty        float64
	RequestsConsidered int
	RequestsSatisfied  int
	RequestsImpossible int
	ZeroSatisfaction   int
}

func (e *evaluation) hardCount() int {
	total := 0
	for _, n := range e.Hard {
		total += n
	}
	return total
}

// better orders solutions: fewer hard violations first, then higher objective.
func (e *evaluation) better(other *evaluation) bool {
	if h1, h2 := e.hardCount(), other.hardCount(); h1 != h2 {
		return h1 < h2
	}
	return e.Objective > other.Objective
}

// evaluator scores assignments for one instance under one constraint
// registry. It is reused across the whole search, so evaluate allocates as
// little as practical.
type evaluator struct {
	inst        *Instance
	constraints map[ConstraintKind]Constraint

	zeroPenalty      float64
	diminishing      float64
	ignoreImpossible bool
	fallbackAge      bool
	useAllBunks      bool
	sumHardMinimum   int
}

func newEvaluator(inst *Instance, cfg *config.Snapshot) *evaluator {
	e := &evaluator{
		inst:             inst,
		constraints:      Constraints(cfg),
		zeroPenalty:      cfg.Float("solver", "objective", "zero_satisfaction_penalty"),
		diminishing:      cfg.Float("solver", "objective", "diminishing_factor"),
		ignoreImpossible: cfg.Bool("solver", "objective", "ignore_impossible"),
		fallbackAge:      cfg.Bool("solver", "objective", "fallback_age_preference"),
		useAllBunks:      cfg.Bool("solver", "occupancy", "use_all_bunks"),
	}
	for _, slot := range inst.Slots {
		e.sumHardMinimum += slot.HardMinimum
	}
	return e
}

type slotState struct {
	occupancy   int
	minAge      float64
	maxAge      float64
	minGrade    int
	maxGrade    int
	gradeCounts map[int]int
}

// evaluate scores assign, where assign[camper] is a slot index or -1 for
// unplaced.
func (e *evaluator) evaluate(assign []int) evaluation {
	ev := evaluation{Hard: make(map[ConstraintKind]int)}
	inst := e.inst

	states := make([]slotState, len(inst.Slots))
	for i := range states {
		states[i].gradeCounts = make(map[int]int)
	}

	for ci, si := range assign {
		if si < 0 || si >= len(inst.Slots) {
			ev.Hard[KindOneBunk]++
			continue
		}
		c := &inst.Campers[ci]
		slot := &inst.Slots[si]
		st := &states[si]

		if slot.Gender != "" && slot.Gender != c.Gender {
			ev.Hard[KindEligibility]++
		}

		if st.occupancy == 0 {
			st.minAge, st.maxAge = c.Age, c.Age
			st.minGrade, st.maxGrade = c.Grade, c.Grade
		} else {
			st.minAge = math.Min(st.minAge, c.Age)
			st.maxAge = math.Max(st.maxAge, c.Age)
			if c.Grade < st.minGrade {
				st.minGrade = c.Grade
			}
			if c.Grade > st.maxGrade {
				st.maxGrade = c.Grade
			}
		}
		st.occupancy++
		st.gradeCounts[c.Grade]++
	}

	e.scoreSlots(&ev, states)
	e.scoreGroups(&ev, assign)
	e.scoreRequests(&ev, assign)
	e.scoreRegression(&ev, assign)

	ev.Objective -= ev.SoftPenalty
	ev.Objective -= e.zeroPenalty * float64(ev.ZeroSatisfaction)
	return ev
}

func (e *evaluator) scoreSlots(ev *evaluation, states []slotState) {
	forceAll := e.useAllBunks && len(e.inst.Campers) >= e.sumHardMinimum

	for si := range states {
		st := &states[si]
		slot := &e.inst.Slots[si]

		if st.occupancy > slot.Capacity {
			ev.Hard[KindCapacity] += st.occupancy - slot.Capacity
		}
		if st.occupancy == 0 {
			if forceAll {
				ev.Hard[KindHardMinimum]++
			}
			continue
		}
		if st.occupancy < slot.HardMinimum {
			ev.Hard[KindHardMinimum]++
		}

		if shortfall := slot.PreferredMinimum - st.occupancy; shortfall > 0 {
			e.penalize(ev, KindUnderPreferred, float64(shortfall))
		}

		c := e.constraints[KindAgeSpread]
		if excess := (st.maxAge - st.minAge) - c.Limit; excess > 0 {
			e.penalize(ev, KindAgeSpread, excess)
		}
		c = e.constraints[KindGradeSpread]
		if excess := float64(st.maxGrade-st.minGrade) - c.Limit; excess > 0 {
			e.penalize(ev, KindGradeSpread, excess)
		}

		c = e.constraints[KindGradeRatio]
		maxCount := 0
		for _, n := range st.gradeCounts {
			if n > maxCount {
				maxCount = n
			}
		}
		if len(st.gradeCounts) > 1 {
			allowed := c.Limit * float64(st.occupancy)
			if over := float64(maxCount) - allowed; over > 0 {
				e.penalize(ev, KindGradeRatio, over)
			}
		}
	}
}

func (e *evaluator) scoreGroups(ev *evaluation, assign []int) {
	for _, members := range e.inst.Groups {
		first := assign[members[0]]
		for _, ci := range members[1:] {
			if assign[ci] != first {
				ev.Hard[KindLockedGroup]++
				break
			}
		}
	}
}

func (e *evaluator) scoreRegression(ev *evaluation, assign []int) {
	for ci, si := range assign {
		if si < 0 {
			continue
		}
		c := &e.inst.Campers[ci]
		slot := &e.inst.Slots[si]
		if c.PriorLevel > 0 && slot.Level > 0 && slot.Level < c.PriorLevel {
			e.penalize(ev, KindLevelRegression, float64(c.PriorLevel-slot.Level))
		}
	}
}

// scoreRequests awards satisfied requests under diminishing returns and
// charges the zero-satisfaction penalty. The first satisfied request counts
// at full weight; each subsequent one is discounted by another factor.
func (e *evaluator) scoreRequests(ev *evaluation, assign []int) {
	inst := e.inst
	var satisfied []float64

	for ci := range inst.Campers {
		c := &inst.Campers[ci]
		satisfied = satisfied[:0]
		considered := 0

		for _, req := range c.Requests {
			if req.Impossible {
				ev.RequestsImpossible++
				if e.ignoreImpossible {
					continue
				}
			}
			considered++

			target, ok := inst.index[req.RequesteeID]
			if !ok {
				// An avoid request for someone not here is trivially met.
				if req.Type == model.RequestNotBunkWith {
					satisfied = append(satisfied, req.Weight)
				}
				continue
			}
			var ok2 bool
			switch req.Type {
			case model.RequestBunkWith:
				ok2 = assign[ci] >= 0 && assign[ci] == assign[target]
			case model.RequestNotBunkWith:
				ok2 = assign[ci] < 0 || assign[ci] != assign[target]
			}
			if ok2 {
				satisfied = append(satisfied, req.Weight)
			}
		}
		ev.RequestsConsidered += considered
		ev.RequestsSatisfied += len(satisfied)

		if considered > 0 && len(satisfied) == 0 {
			if !(e.fallbackAge && c.HasAgePreference) {
				ev.ZeroSatisfaction++
			}
			continue
		}

		sort.Sort(sort.Reverse(sort.Float64Slice(satisfied)))
		mult := 1.0
		for _, w := range satisfied {
			ev.Objective += w * mult
			mult *= e.diminishing
		}
	}
}

// penalize applies a violation under the constraint's configured mode.
func (e *evaluator) penalize(ev *evaluation, kind ConstraintKind, units float64) {
	c := e.constraints[kind]
	if c.Mode == ModeHard {
		ev.Hard[kind] += int(math.Ceil(units))
		return
	}
	ev.SoftPenalty += c.Weight * units
}
