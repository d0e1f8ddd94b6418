package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/service"
	"github.com/campwire/bunkmate/internal/testutil"
)

func seedSession(t *testing.T, store service.Storage) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SaveSessions(ctx, []model.Session{
		{ExternalID: "S1", Name: "Session One", Kind: model.SessionMain, Year: 2026},
	}))
	require.NoError(t, store.SaveBunks(ctx, []model.Bunk{
		{ExternalID: "B1", Name: "Cedar", Year: 2026, IsActive: true},
	}))
	require.NoError(t, store.SaveBunkPlans(ctx, []model.BunkPlan{
		{BunkExternalID: "B1", SessionID: "S1", Year: 2026, Capacity: 4},
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
}

func seedDrafts(t *testing.T, store service.Storage, scenarioID string) {
	t.Helper()
	require.NoError(t, store.ReplaceAssignments(context.Background(), scenarioID, "S1", 2026, []model.Assignment{
		{PersonExternalID: "p1", BunkExternalID: "B1", SessionID: "S1", ScenarioID: scenarioID, BunkPlanID: 1, Year: 2026, Source: model.AssignmentBySolver, AssignedAt: time.Now()},
		{PersonExternalID: "p2", BunkExternalID: "B1", SessionID: "S1", ScenarioID: scenarioID, BunkPlanID: 1, Year: 2026, Source: model.AssignmentBySolver, AssignedAt: time.Now()},
	}))
}

func activeRun(t *testing.T, store service.Storage, scenarioID string) {
	t.Helper()
	require.NoError(t, store.CreateSolverRun(context.Background(), &model.SolverRun{
		ID:         "run-active",
		ScenarioID: scenarioID,
		SessionID:  "S1",
		Status:     model.RunRunning,
		Year:       2026,
		CreatedAt:  time.Now(),
	}))
}

func TestSolveProducesDraftAssignments(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	seedSession(t, store)
	require.NoError(t, store.SetConfigValue(ctx, "solver", "limits", "time_limit_seconds", "1"))

	req := &model.ResolvedRequest{
		RequesterExternalID: "p1",
		RequesteeExternalID: "p2",
		SessionID:           "S1",
		SourceField:         model.FieldBunkRequest,
		SourceCategory:      "parent",
		Type:                model.RequestBunkWith,
		Status:              model.StatusResolved,
		State:               model.StateResolved,
		Level:               model.ConfidenceHigh,
		Year:                2026,
		Priority:            3,
		Confidence:          0.95,
		IsActive:            true,
	}
	_, err := store.UpsertResolvedRequest(ctx, req)
	require.NoError(t, err)

	m := NewManager(store, nil)
	scenarioID := m.NewScenarioID()

	run, err := m.Solve(ctx, scenarioID, "S1", 2026)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, run.Status)
	assert.Equal(t, 100, run.Progress)
	require.NotNil(t, run.Stats)
	assert.Equal(t, 2, run.Stats.TotalCampers)

	drafts, err := store.GetAssignments(ctx, scenarioID, "S1", 2026)
	require.NoError(t, err)
	assert.Len(t, drafts, 2)

	production, err := store.GetAssignments(ctx, "", "S1", 2026)
	require.NoError(t, err)
	assert.Empty(t, production, "a solve never touches production")

	logs, err := store.GetRunLogs(ctx, run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}

func TestApplyPromotesDraftsToProduction(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	seedSession(t, store)

	m := NewManager(store, nil)
	scenarioID := m.NewScenarioID()
	seedDrafts(t, store, scenarioID)

	require.NoError(t, m.Apply(ctx, scenarioID, "S1", 2026))

	production, err := store.GetAssignments(ctx, "", "S1", 2026)
	require.NoError(t, err)
	require.Len(t, production, 2)
	for _, a := range production {
		assert.False(t, a.IsDraft())
	}

	drafts, err := store.GetAssignments(ctx, scenarioID, "S1", 2026)
	require.NoError(t, err)
	assert.Len(t, drafts, 2, "the draft survives promotion")
}

func TestApplyRejectsProductionAsSource(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	m := NewManager(store, nil)

	err := m.Apply(context.Background(), "", "S1", 2026)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestApplyRequiresDrafts(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	m := NewManager(store, nil)

	err := m.Apply(context.Background(), m.NewScenarioID(), "S1", 2026)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestApplyCancelledDuringDelay(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	seedSession(t, store)
	require.NoError(t, store.SetConfigValue(ctx, "scenario", "apply", "delay_seconds", "30"))

	m := NewManager(store, nil)
	scenarioID := m.NewScenarioID()
	seedDrafts(t, store, scenarioID)

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := m.Apply(cancelCtx, scenarioID, "S1", 2026)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	production, err := store.GetAssignments(ctx, "", "S1", 2026)
	require.NoError(t, err)
	assert.Empty(t, production, "a cancelled apply writes nothing")
}

func TestApplyRejectsActiveRun(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	seedSession(t, store)

	m := NewManager(store, nil)
	scenarioID := m.NewScenarioID()
	seedDrafts(t, store, scenarioID)
	activeRun(t, store, scenarioID)

	err := m.Apply(ctx, scenarioID, "S1", 2026)
	assert.ErrorIs(t, err, common.ErrRunInProgress)
}

func TestSaveLockedGroupValidatesMembers(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	seedSession(t, store)

	m := NewManager(store, nil)

	_, err := m.SaveLockedGroup(ctx, &model.LockedGroup{
		SessionID: "S1", Year: 2026, Name: "solo", MemberIDs: []string{"p1"},
	})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = m.SaveLockedGroup(ctx, &model.LockedGroup{
		SessionID: "S1", Year: 2026, Name: "ghosts", MemberIDs: []string{"p1", "nobody"},
	})
	assert.ErrorIs(t, err, common.ErrNotFound)

	id, err := m.SaveLockedGroup(ctx, &model.LockedGroup{
		SessionID: "S1", Year: 2026, Name: "pair", MemberIDs: []string{"p1", "p2"},
	})
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestLockedGroupEditsRejectedDuringRun(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	seedSession(t, store)

	m := NewManager(store, nil)
	scenarioID := m.NewScenarioID()

	id, err := m.SaveLockedGroup(ctx, &model.LockedGroup{
		ScenarioID: scenarioID, SessionID: "S1", Year: 2026, Name: "pair", MemberIDs: []string{"p1", "p2"},
	})
	require.NoError(t, err)

	activeRun(t, store, scenarioID)

	_, err = m.SaveLockedGroup(ctx, &model.LockedGroup{
		ScenarioID: scenarioID, SessionID: "S1", Year: 2026, Name: "pair2", MemberIDs: []string{"p1", "p2"},
	})
	assert.ErrorIs(t, err, common.ErrRunInProgress)

	err = m.DeleteLockedGroup(ctx, scenarioID, id)
	assert.ErrorIs(t, err, common.ErrRunInProgress)
}

func TestDeleteLockedGroup(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	seedSession(t, store)

	m := NewManager(store, nil)
	id, err := m.SaveLockedGroup(ctx, &model.LockedGroup{
		SessionID: "S1", Year: 2026, Name: "pair", MemberIDs: []string{"p1", "p2"},
	})
	require.NoError(t, err)

	require.NoError(t, m.DeleteLockedGroup(ctx, "", id))

	groups, err := store.GetLockedGroups(ctx, "", "S1", 2026)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
