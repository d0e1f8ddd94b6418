package solver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/dedupe"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/testutil"
)

// testInstance builds an in-memory instance without storage. Campers are
// named c0..cN-1.
func testInstance(campers []Camper, slots []Slot, groups [][]int) *Instance {
	inst := &Instance{
		SessionID: "S1",
		Year:      2026,
		Campers:   campers,
		Slots:     slots,
		Groups:    groups,
		index:     make(map[string]int),
		groupOf:   make([]int, len(campers)),
	}
	for i := range inst.groupOf {
		inst.groupOf[i] = -1
	}
	for gi, members := range groups {
		for _, ci := range members {
			inst.groupOf[ci] = gi
		}
	}
	for i := range campers {
		if campers[i].ExternalID == "" {
			campers[i].ExternalID = fmt.Sprintf("c%d", i)
		}
		inst.index[campers[i].ExternalID] = i
	}
	return inst
}

func uniformCampers(n int, gender string, grade int) []Camper {
	out := make([]Camper, n)
	for i := range out {
		out[i] = Camper{ExternalID: fmt.Sprintf("c%d", i), Gender: gender, Age: 12, Grade: grade}
	}
	return out
}

func fastConfig() *config.Snapshot {
	return config.Defaults().With("solver.limits.time_limit_seconds", "1")
}

func TestSolveProducesValidAssignment(t *testing.T) {
	campers := uniformCampers(12, "female", 7)
	campers[0].Requests = []Request{{RequesteeID: "c1", Type: model.RequestBunkWith, Weight: 5}}
	campers[1].Requests = []Request{{RequesteeID: "c0", Type: model.RequestBunkWith, Weight: 5}}
	inst := testInstance(campers, []Slot{
		{BunkExternalID: "b1", BunkPlanID: 1, Capacity: 8},
		{BunkExternalID: "b2", BunkPlanID: 2, Capacity: 8},
	}, nil)

	sol, err := New(fastConfig(), nil).Solve(context.Background(), inst, nil)
	require.NoError(t, err)
	require.True(t, sol.Feasible)

	// Every camper placed exactly once, no slot over capacity.
	occupancy := make(map[int]int)
	for ci, si := range sol.Assignment {
		require.GreaterOrEqual(t, si, 0, "camper %d unplaced", ci)
		occupancy[si]++
	}
	for si, n := range occupancy {
		assert.LessOrEqual(t, n, inst.Slots[si].Capacity)
	}

	// The mutual pair ends up together.
	assert.Equal(t, sol.Assignment[0], sol.Assignment[1])
	assert.GreaterOrEqual(t, sol.Stats.RequestsSatisfied, 2)
}

func TestSolveLockedGroupsShareBunk(t *testing.T) {
	campers := uniformCampers(10, "male", 6)
	inst := testInstance(campers, []Slot{
		{BunkExternalID: "b1", BunkPlanID: 1, Capacity: 6},
		{BunkExternalID: "b2", BunkPlanID: 2, Capacity: 6},
	}, [][]int{{0, 1, 2}, {3, 4}})

	sol, err := New(fastConfig(), nil).Solve(context.Background(), inst, nil)
	require.NoError(t, err)
	require.True(t, sol.Feasible)

	assert.Equal(t, sol.Assignment[0], sol.Assignment[1])
	assert.Equal(t, sol.Assignment[0], sol.Assignment[2])
	assert.Equal(t, sol.Assignment[3], sol.Assignment[4])
}

func TestSolveGenderEligibility(t *testing.T) {
	campers := uniformCampers(4, "female", 7)
	inst := testInstance(campers, []Slot{
		{BunkExternalID: "boys", BunkPlanID: 1, Gender: "male", Capacity: 10},
		{BunkExternalID: "girls", BunkPlanID: 2, Gender: "female", Capacity: 10},
	}, nil)

	sol, err := New(fastConfig(), nil).Solve(context.Background(), inst, nil)
	require.NoError(t, err)
	for _, si := range sol.Assignment {
		assert.Equal(t, "girls", inst.Slots[si].BunkExternalID)
	}
}

func TestSolveInfeasibleReportsViolations(t *testing.T) {
	// 10 campers, total capacity 6: capacity must be violated.
	inst := testInstance(uniformCampers(10, "male", 6), []Slot{
		{BunkExternalID: "b1", BunkPlanID: 1, Capacity: 3},
		{BunkExternalID: "b2", BunkPlanID: 2, Capacity: 3},
	}, nil)

	sol, err := New(fastConfig(), nil).Solve(context.Background(), inst, nil)
	require.ErrorIs(t, err, common.ErrInfeasible)
	require.NotNil(t, sol)
	assert.False(t, sol.Feasible)
	assert.Positive(t, sol.Violations[KindCapacity])
	assert.Positive(t, sol.Stats.ViolationsByKind[string(KindCapacity)])
}

func TestHardMinimumBoundary(t *testing.T) {
	// hard minimum 8, preferred 10: occupancy 7 is a hard violation,
	// occupancy 9 costs exactly one unit of under-preferred penalty.
	slot := Slot{BunkExternalID: "b1", BunkPlanID: 1, Capacity: 12, HardMinimum: 8, PreferredMinimum: 10}

	cfg := config.Defaults()

	inst7 := testInstance(uniformCampers(7, "male", 6), []Slot{slot}, nil)
	e := newEvaluator(inst7, cfg)
	ev := e.evaluate([]int{0, 0, 0, 0, 0, 0, 0})
	assert.Equal(t, 1, ev.Hard[KindHardMinimum])

	inst9 := testInstance(uniformCampers(9, "male", 6), []Slot{slot}, nil)
	e = newEvaluator(inst9, cfg)
	ev = e.evaluate([]int{0, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.Zero(t, ev.hardCount())
	weight := cfg.Float("solver", "occupancy", "under_preferred_weight")
	assert.InDelta(t, weight*1, ev.SoftPenalty, 0.0001)
}

func TestDiminishingReturnsMonotonic(t *testing.T) {
	// One camper satisfying 3 equal-weight requests: marginal value of each
	// additional satisfied request never increases.
	cfg := config.Defaults()
	slot := Slot{BunkExternalID: "b1", BunkPlanID: 1, Capacity: 10}

	objectiveFor := func(satisfied int) float64 {
		campers := uniformCampers(4, "male", 6)
		for i := 0; i < satisfied; i++ {
			campers[0].Requests = append(campers[0].Requests, Request{
				RequesteeID: fmt.Sprintf("c%d", i+1), Type: model.RequestBunkWith, Weight: 10,
			})
		}
		inst := testInstance(campers, []Slot{slot}, nil)
		e := newEvaluator(inst, cfg)
		return e.evaluate([]int{0, 0, 0, 0}).Objective
	}

	v1 := objectiveFor(1)
	v2 := objectiveFor(2)
	v3 := objectiveFor(3)
	first := v1
	second := v2 - v1
	third := v3 - v2
	assert.GreaterOrEqual(t, first, second)
	assert.GreaterOrEqual(t, second, third)
	// Default factor 0.5: 10, then 5, then 2.5.
	assert.InDelta(t, 10, first, 0.0001)
	assert.InDelta(t, 5, second, 0.0001)
	assert.InDelta(t, 2.5, third, 0.0001)
}

func TestIgnoreImpossibleRequests(t *testing.T) {
	// A camper whose only request targets someone outside the session is
	// excluded from the zero-satisfaction penalty when the rule is on.
	slot := Slot{BunkExternalID: "b1", BunkPlanID: 1, Capacity: 10}
	campers := uniformCampers(2, "male", 6)
	campers[0].Requests = []Request{{RequesteeID: "elsewhere", Type: model.RequestBunkWith, Weight: 5, Impossible: true}}

	inst := testInstance(campers, []Slot{slot}, nil)

	on := newEvaluator(inst, config.Defaults())
	ev := on.evaluate([]int{0, 0})
	assert.Zero(t, ev.ZeroSatisfaction)
	assert.Equal(t, 1, ev.RequestsImpossible)

	off := newEvaluator(inst, config.Defaults().With("solver.objective.ignore_impossible", "false"))
	ev = off.evaluate([]int{0, 0})
	assert.Equal(t, 1, ev.ZeroSatisfaction)
}

func TestAgePreferenceFallback(t *testing.T) {
	campers := uniformCampers(2, "male", 6)
	campers[0].Requests = []Request{{RequesteeID: "c1", Type: model.RequestBunkWith, Weight: 5}}
	campers[0].HasAgePreference = true

	// Placed apart, the bunk_with request goes unsatisfied.
	inst := testInstance(campers, []Slot{
		{BunkExternalID: "b1", BunkPlanID: 1, Capacity: 10},
		{BunkExternalID: "b2", BunkPlanID: 2, Capacity: 10},
	}, nil)

	e := newEvaluator(inst, config.Defaults())
	ev := e.evaluate([]int{0, 1})
	assert.Zero(t, ev.ZeroSatisfaction, "age preference fallback should absorb the penalty")

	noFallback := newEvaluator(inst, config.Defaults().With("solver.objective.fallback_age_preference", "false"))
	ev = noFallback.evaluate([]int{0, 1})
	assert.Equal(t, 1, ev.ZeroSatisfaction)
}

func TestSpreadConstraints(t *testing.T) {
	cfg := config.Defaults() // age_max 2, weight 10
	slot := Slot{BunkExternalID: "b1", BunkPlanID: 1, Capacity: 10}

	campers := []Camper{
		{ExternalID: "young", Gender: "male", Age: 9, Grade: 4},
		{ExternalID: "old", Gender: "male", Age: 13, Grade: 8},
	}
	inst := testInstance(campers, []Slot{slot}, nil)
	e := newEvaluator(inst, cfg)
	ev := e.evaluate([]int{0, 0})

	// Age spread 4 exceeds limit 2 by 2 years; grade spread 4 exceeds 2 by 2.
	expected := 10.0*2 + 10.0*2
	assert.InDelta(t, expected, ev.SoftPenalty, 0.0001)

	hard := newEvaluator(inst, cfg.With("solver.spread.age_mode", "hard"))
	ev = hard.evaluate([]int{0, 0})
	assert.Positive(t, ev.Hard[KindAgeSpread])
}

func TestGradeRatioConstraint(t *testing.T) {
	cfg := config.Defaults() // max share 0.6, weight 8
	slot := Slot{BunkExternalID: "b1", BunkPlanID: 1, Capacity: 12}

	// 8 of 10 in one grade: share 0.8, allowed 6, over by 2.
	campers := uniformCampers(8, "male", 7)
	campers = append(campers, Camper{ExternalID: "x1", Gender: "male", Age: 12, Grade: 8})
	campers = append(campers, Camper{ExternalID: "x2", Gender: "male", Age: 12, Grade: 8})
	inst := testInstance(campers, []Slot{slot}, nil)

	e := newEvaluator(inst, cfg)
	assign := make([]int, 10)
	ev := e.evaluate(assign)
	assert.InDelta(t, 8.0*2, ev.SoftPenalty, 0.0001)
}

func TestLevelRegression(t *testing.T) {
	cfg := config.Defaults() // weight 6
	campers := []Camper{{ExternalID: "vet", Gender: "male", Age: 14, Grade: 9, PriorLevel: 3}}
	inst := testInstance(campers, []Slot{
		{BunkExternalID: "junior", BunkPlanID: 1, Capacity: 10, Level: 1},
	}, nil)

	e := newEvaluator(inst, cfg)
	ev := e.evaluate([]int{0})
	assert.InDelta(t, 6.0*2, ev.SoftPenalty, 0.0001, "two levels of regression")
}

func TestConstraintRegistryModes(t *testing.T) {
	reg := Constraints(config.Defaults())
	assert.Equal(t, ModeHard, reg[KindCapacity].Mode)
	assert.Equal(t, ModeHard, reg[KindLockedGroup].Mode)
	assert.Equal(t, ModeSoft, reg[KindAgeSpread].Mode)
	assert.InDelta(t, 10.0, reg[KindAgeSpread].Weight, 0.0001)

	reg = Constraints(config.Defaults().With("solver.ratio.grade_mode", "hard"))
	assert.Equal(t, ModeHard, reg[KindGradeRatio].Mode)
}

func TestBuildInstanceFoldsMergedEvidence(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSessions(ctx, []model.Session{
		{ExternalID: "S1", Name: "Session One", Kind: model.SessionMain, Year: 2026},
	}))
	require.NoError(t, store.SaveBunks(ctx, []model.Bunk{
		{ExternalID: "B1", Name: "Cedar", Year: 2026, IsActive: true},
	}))
	require.NoError(t, store.SaveBunkPlans(ctx, []model.BunkPlan{
		{BunkExternalID: "B1", SessionID: "S1", Year: 2026, Capacity: 8},
	}))
	persons := []model.Person{
		{ExternalID: "p1", Year: 2026, FirstName: "Ava", LastName: "Reed", Gender: "female", Grade: 6},
		{ExternalID: "p2", Year: 2026, FirstName: "Mia", LastName: "Hart", Gender: "female", Grade: 6},
	}
	require.NoError(t, store.SavePersons(ctx, persons))
	var attendees []model.Attendee
	for _, p := range persons {
		attendees = append(attendees, model.Attendee{
			Person: p, SessionID: "S1", Year: 2026, Status: model.EnrollmentEnrolled,
		})
	}
	require.NoError(t, store.SaveAttendees(ctx, attendees))

	// The same intent through two fields: a weak form entry and a strong
	// parent note, merged onto the form entry.
	base := model.ResolvedRequest{
		RequesterExternalID: "p1",
		RequesteeExternalID: "p2",
		SessionID:           "S1",
		SourceCategory:      "parent",
		Type:                model.RequestBunkWith,
		Status:              model.StatusResolved,
		State:               model.StateResolved,
		Level:               model.ConfidenceHigh,
		Year:                2026,
		IsActive:            true,
	}
	weak := base
	weak.SourceField = model.FieldBunkRequest
	weak.Priority = 2
	weak.Confidence = 0.7
	winnerID, err := store.UpsertResolvedRequest(ctx, &weak)
	require.NoError(t, err)
	strong := base
	strong.SourceField = model.FieldParentNotes
	strong.Priority = 5
	strong.Confidence = 0.95
	loserID, err := store.UpsertResolvedRequest(ctx, &strong)
	require.NoError(t, err)
	require.NoError(t, dedupe.New(store, nil).Merge(ctx, winnerID, loserID))

	cfg := config.Defaults()
	inst, err := BuildInstance(ctx, store, cfg, "scenario-1", "S1", 2026)
	require.NoError(t, err)

	ci := inst.CamperIndex("p1")
	require.GreaterOrEqual(t, ci, 0)
	require.Len(t, inst.Campers[ci].Requests, 1, "merged duplicates collapse to one request")
	multiplier := cfg.Float("solver", "objective", "multiplier_parent")
	assert.InDelta(t, multiplier*5, inst.Campers[ci].Requests[0].Weight, 0.0001,
		"weight uses the group's strongest priority")
}

func TestSolveDeterministicSeed(t *testing.T) {
	build := func() *Instance {
		campers := uniformCampers(16, "female", 7)
		for i := 0; i < 8; i++ {
			campers[i].Requests = []Request{{
				RequesteeID: fmt.Sprintf("c%d", 15-i), Type: model.RequestBunkWith, Weight: float64(i + 1),
			}}
		}
		return testInstance(campers, []Slot{
			{BunkExternalID: "b1", BunkPlanID: 1, Capacity: 8},
			{BunkExternalID: "b2", BunkPlanID: 2, Capacity: 8},
		}, nil)
	}

	cfg := fastConfig()
	first, err := New(cfg, nil).Solve(context.Background(), build(), nil)
	require.NoError(t, err)
	second, err := New(cfg, nil).Solve(context.Background(), build(), nil)
	require.NoError(t, err)

	assert.InDelta(t, first.Stats.Objective, second.Stats.Objective, 0.0001)
}
