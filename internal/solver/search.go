package solver

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"
)

// deadlineCheckInterval bounds how often the search consults the clock.
const deadlineCheckInterval = 128

// unit is one indivisible placement: a locked group or a single camper.
type unit struct {
	members  []int
	requests int
}

// buildUnits produces the placement order for the greedy seed: locked groups
// first (largest first), then singles with the most requests.
func buildUnits(inst *Instance) []unit {
	var units []unit
	for _, members := range inst.Groups {
		u := unit{members: members}
		for _, ci := range members {
			u.requests += len(inst.Campers[ci].Requests)
		}
		units = append(units, u)
	}
	for ci := range inst.Campers {
		if inst.groupOf[ci] != -1 {
			continue
		}
		units = append(units, unit{members: []int{ci}, requests: len(inst.Campers[ci].Requests)})
	}
	sort.SliceStable(units, func(i, j int) bool {
		gi, gj := len(units[i].members) > 1, len(units[j].members) > 1
		if gi != gj {
			return gi
		}
		if len(units[i].members) != len(units[j].members) {
			return len(units[i].members) > len(units[j].members)
		}
		return units[i].requests > units[j].requests
	})
	return units
}

// greedySeed constructs an initial assignment by placing each unit into the
// slot that evaluates best at that moment.
func greedySeed(inst *Instance, e *evaluator) []int {
	assign := make([]int, len(inst.Campers))
	for i := range assign {
		assign[i] = -1
	}

	for _, u := range buildUnits(inst) {
		bestSlot := -1
		var bestEval evaluation
		for si := range inst.Slots {
			for _, ci := range u.members {
				assign[ci] = si
			}
			ev := e.evaluate(assign)
			if bestSlot == -1 || ev.better(&bestEval) {
				bestSlot = si
				bestEval = ev
			}
		}
		for _, ci := range u.members {
			assign[ci] = bestSlot
		}
	}
	return assign
}

// anneal improves the assignment by simulated annealing until the deadline
// or context cancellation. Locked groups move as blocks so the hard
// co-location constraint is never perturbed once satisfied.
func anneal(ctx context.Context, inst *Instance, e *evaluator, assign []int, rng *rand.Rand, deadline time.Time, progress func(pct int)) ([]int, evaluation, int) {
	current := append([]int(nil), assign...)
	currentEval := e.evaluate(current)
	best := append([]int(nil), current...)
	bestEval := currentEval

	if len(inst.Campers) == 0 || len(inst.Slots) < 2 {
		return best, bestEval, 0
	}

	start := time.Now()
	budget := deadline.Sub(start)
	temperature := math.Max(1, math.Abs(currentEval.Objective)/10)
	cooling := 0.9995

	iterations := 0
	for {
		if iterations%deadlineCheckInterval == 0 {
			if ctx.Err() != nil || time.Now().After(deadline) {
				break
			}
			if progress != nil && budget > 0 {
				pct := int(float64(time.Since(start)) / float64(budget) * 100)
				if pct > 99 {
					pct = 99
				}
				progress(pct)
			}
		}
		iterations++

		undo := perturb(inst, current, rng)
		candidateEval := e.evaluate(current)

		if accept(&candidateEval, &currentEval, temperature, rng) {
			currentEval = candidateEval
			if candidateEval.better(&bestEval) {
				copy(best, current)
				bestEval = candidateEval
			}
		} else {
			undo()
		}
		temperature *= cooling
		if temperature < 0.01 {
			temperature = 0.01
		}
	}

	return best, bestEval, iterations
}

// perturb applies one random move and returns its inverse.
func perturb(inst *Instance, assign []int, rng *rand.Rand) func() {
	// Half moves relocate a unit, half swap two ungrouped campers.
	if rng.Intn(2) == 0 || len(inst.Campers) < 2 {
		var members []int
		if len(inst.Groups) > 0 && rng.Intn(4) == 0 {
			members = inst.Groups[rng.Intn(len(inst.Groups))]
		} else {
			ci := rng.Intn(len(inst.Campers))
			if g := inst.groupOf[ci]; g != -1 {
				members = inst.Groups[g]
			} else {
				members = []int{ci}
			}
		}
		prev := make([]int, len(members))
		target := rng.Intn(len(inst.Slots))
		for i, ci := range members {
			prev[i] = assign[ci]
			assign[ci] = target
		}
		return func() {
			for i, ci := range members {
				assign[ci] = prev[i]
			}
		}
	}

	a := rng.Intn(len(inst.Campers))
	b := rng.Intn(len(inst.Campers))
	for tries := 0; tries < 8 && (a == b || inst.groupOf[a] != -1 || inst.groupOf[b] != -1); tries++ {
		a = rng.Intn(len(inst.Campers))
		b = rng.Intn(len(inst.Campers))
	}
	assign[a], assign[b] = assign[b], assign[a]
	return func() {
		assign[a], assign[b] = assign[b], assign[a]
	}
}

// accept implements the Metropolis criterion over the lexicographic
// (hard count, objective) ordering.
func accept(candidate, current *evaluation, temperature float64, rng *rand.Rand) bool {
	if candidate.better(current) {
		return true
	}
	if candidate.hardCount() > current.hardCount() {
		// Worsening feasibility is accepted only rarely, early on.
		return rng.Float64() < math.Exp(-float64(candidate.hardCount()-current.hardCount())*10/temperature)
	}
	delta := current.Objective - candidate.Objective
	return rng.Float64() < math.Exp(-delta/temperature)
}
