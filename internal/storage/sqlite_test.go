package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/service"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestPersonsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	persons := []model.Person{
		{ExternalID: "p1", Year: 2026, FirstName: "Emma", LastName: "Stone", School: "Lincoln", Gender: "female", Grade: 7,
			Birthdate: time.Date(2013, 4, 2, 0, 0, 0, 0, time.UTC)},
		{ExternalID: "p2", Year: 2026, FirstName: "Jacob", LastName: "Reyes", PreferredName: "Jake", Gender: "male", Grade: 8},
	}
	require.NoError(t, store.SavePersons(ctx, persons))

	got, err := store.GetPerson(ctx, "p2", 2026)
	require.NoError(t, err)
	assert.Equal(t, "Jake", got.PreferredName)
	assert.Equal(t, 8, got.Grade)

	// Upsert overwrites fields.
	persons[1].Grade = 9
	require.NoError(t, store.SavePersons(ctx, persons))
	got, err = store.GetPerson(ctx, "p2", 2026)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Grade)

	_, err = store.GetPerson(ctx, "missing", 2026)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAttendeesJoinPersons(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePersons(ctx, []model.Person{
		{ExternalID: "p1", Year: 2026, FirstName: "Emma", LastName: "Stone", Grade: 7},
		{ExternalID: "p2", Year: 2026, FirstName: "Liam", LastName: "Ford", Grade: 7},
	}))
	require.NoError(t, store.SaveAttendees(ctx, []model.Attendee{
		{Person: model.Person{ExternalID: "p1"}, SessionID: "S1", Year: 2026, Status: model.EnrollmentEnrolled, PriorLevel: 2},
		{Person: model.Person{ExternalID: "p2"}, SessionID: "S2", Year: 2026, Status: model.EnrollmentWaitlisted},
	}))

	bySession, err := store.GetAttendeesBySession(ctx, "S1", 2026)
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, "Emma", bySession[0].Person.FirstName)
	assert.Equal(t, 2, bySession[0].PriorLevel)

	byYear, err := store.GetAttendeesByYear(ctx, 2026)
	require.NoError(t, err)
	assert.Len(t, byYear, 2)
}

func TestOriginalRequestIdempotentReimport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub := model.OriginalRequest{
		RequesterExternalID: "p1",
		FieldType:           model.FieldBunkRequest,
		Year:                2026,
		RawText:             "wants to bunk with Maddie",
	}
	sub.ContentHash = sub.GenerateHash()
	require.NoError(t, store.SaveOriginalRequests(ctx, []model.OriginalRequest{sub}))

	subs, err := store.GetOriginalRequestsByYear(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].NeedsProcessing())

	require.NoError(t, store.MarkOriginalRequestProcessed(ctx, subs[0].ID, subs[0].ContentHash, time.Now()))
	subs, err = store.GetOriginalRequestsByYear(ctx, 2026)
	require.NoError(t, err)
	assert.False(t, subs[0].NeedsProcessing())

	// Re-importing identical text keeps the processed state.
	require.NoError(t, store.SaveOriginalRequests(ctx, []model.OriginalRequest{sub}))
	subs, err = store.GetOriginalRequestsByYear(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.False(t, subs[0].NeedsProcessing())

	// Changed text resets the content hash and needs processing again.
	sub.RawText = "wants to bunk with Maddie G"
	sub.ContentHash = sub.GenerateHash()
	require.NoError(t, store.SaveOriginalRequests(ctx, []model.OriginalRequest{sub}))
	subs, err = store.GetOriginalRequestsByYear(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].NeedsProcessing())
}

func baseRequest() *model.ResolvedRequest {
	return &model.ResolvedRequest{
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
		Confidence:          0.92,
		IsActive:            true,
	}
}

func TestUpsertResolvedRequestIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	req := baseRequest()
	id1, err := store.UpsertResolvedRequest(ctx, req)
	require.NoError(t, err)

	// Same uniqueness key updates in place.
	again := baseRequest()
	again.Confidence = 0.95
	id2, err := store.UpsertResolvedRequest(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := store.GetResolvedRequest(ctx, id1)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, got.Confidence, 0.0001)

	all, err := store.GetResolvedRequests(ctx, service.RequestFilter{Year: 2026})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertRespectsLockedRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	req := baseRequest()
	req.Locked = true
	id, err := store.UpsertResolvedRequest(ctx, req)
	require.NoError(t, err)

	rerun := baseRequest()
	rerun.Confidence = 0.2
	rerun.Status = model.StatusPending
	id2, err := store.UpsertResolvedRequest(ctx, rerun)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	got, err := store.GetResolvedRequest(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 0.92, got.Confidence, 0.0001, "locked row must keep its values")
	assert.Equal(t, model.StatusResolved, got.Status)
}

func TestMergePointerRules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := baseRequest()
	idA, err := store.UpsertResolvedRequest(ctx, a)
	require.NoError(t, err)

	b := baseRequest()
	b.SourceField = model.FieldParentNotes
	idB, err := store.UpsertResolvedRequest(ctx, b)
	require.NoError(t, err)

	c := baseRequest()
	c.SourceField = model.FieldSocializeWith
	idC, err := store.UpsertResolvedRequest(ctx, c)
	require.NoError(t, err)

	require.NoError(t, store.SetMergePointer(ctx, idB, idA))

	// Merged rows disappear from active queries but stay reachable.
	active, err := store.GetResolvedRequests(ctx, service.RequestFilter{Year: 2026})
	require.NoError(t, err)
	assert.Len(t, active, 2)
	all, err := store.GetResolvedRequests(ctx, service.RequestFilter{Year: 2026, IncludeMerged: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// No chains: merging into an already-merged row is rejected.
	err = store.SetMergePointer(ctx, idC, idB)
	assert.ErrorIs(t, err, common.ErrMergeCycle)

	// No self-merge.
	err = store.SetMergePointer(ctx, idA, idA)
	assert.ErrorIs(t, err, common.ErrMergeCycle)

	require.NoError(t, store.ClearMergePointer(ctx, idB))
	active, err = store.GetResolvedRequests(ctx, service.RequestFilter{Year: 2026})
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestRequestSourcesFirstIsPrimary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub1 := model.OriginalRequest{RequesterExternalID: "p1", FieldType: model.FieldBunkRequest, Year: 2026, RawText: "a"}
	sub2 := model.OriginalRequest{RequesterExternalID: "p1", FieldType: model.FieldParentNotes, Year: 2026, RawText: "b"}
	require.NoError(t, store.SaveOriginalRequests(ctx, []model.OriginalRequest{sub1, sub2}))
	subs, err := store.GetOriginalRequestsByYear(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	id, err := store.UpsertResolvedRequest(ctx, baseRequest())
	require.NoError(t, err)

	require.NoError(t, store.LinkRequestSource(ctx, &model.RequestSource{ResolvedRequestID: id, OriginalRequestID: subs[0].ID}))
	require.NoError(t, store.LinkRequestSource(ctx, &model.RequestSource{ResolvedRequestID: id, OriginalRequestID: subs[1].ID}))
	// Duplicate link is a no-op.
	require.NoError(t, store.LinkRequestSource(ctx, &model.RequestSource{ResolvedRequestID: id, OriginalRequestID: subs[0].ID}))

	sources, err := store.GetRequestSources(ctx, id)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.True(t, sources[0].IsPrimary)
	assert.False(t, sources[1].IsPrimary)
}

func TestAssignmentsReplaceAndPromote(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	draft := []model.Assignment{
		{PersonExternalID: "p1", BunkExternalID: "b1", BunkPlanID: 1, Source: model.AssignmentBySolver, AssignedAt: time.Now()},
		{PersonExternalID: "p2", BunkExternalID: "b2", BunkPlanID: 2, Source: model.AssignmentBySolver, AssignedAt: time.Now()},
	}
	require.NoError(t, store.ReplaceAssignments(ctx, "scenario-1", "S1", 2026, draft))

	got, err := store.GetAssignments(ctx, "scenario-1", "S1", 2026)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Production is untouched until promotion.
	prod, err := store.GetAssignments(ctx, "", "S1", 2026)
	require.NoError(t, err)
	assert.Empty(t, prod)

	require.NoError(t, store.PromoteScenario(ctx, "scenario-1", "S1", 2026))
	prod, err = store.GetAssignments(ctx, "", "S1", 2026)
	require.NoError(t, err)
	assert.Len(t, prod, 2)
	for _, a := range prod {
		assert.False(t, a.IsDraft())
	}

	byYear, err := store.GetProductionAssignmentsByYear(ctx, 2026)
	require.NoError(t, err)
	assert.Len(t, byYear, 2)

	// Promoting an empty scenario is an error, production stays.
	err = store.PromoteScenario(ctx, "empty", "S1", 2026)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestLockedGroupRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &model.LockedGroup{
		ScenarioID: "scenario-1",
		SessionID:  "S1",
		Name:       "cousins",
		MemberIDs:  []string{"p1", "p2", "p3"},
		Year:       2026,
	}
	id, err := store.SaveLockedGroup(ctx, group)
	require.NoError(t, err)

	groups, err := store.GetLockedGroups(ctx, "scenario-1", "S1", 2026)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"p1", "p2", "p3"}, groups[0].MemberIDs)

	group.MemberIDs = []string{"p1", "p2"}
	_, err = store.SaveLockedGroup(ctx, group)
	require.NoError(t, err)
	groups, err = store.GetLockedGroups(ctx, "scenario-1", "S1", 2026)
	require.NoError(t, err)
	assert.Len(t, groups[0].MemberIDs, 2)

	require.NoError(t, store.DeleteLockedGroup(ctx, id))
	groups, err = store.GetLockedGroups(ctx, "scenario-1", "S1", 2026)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSolverRunLifecyclePersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &model.SolverRun{
		CreatedAt:  time.Now(),
		ID:         "run-1",
		ScenarioID: "scenario-1",
		SessionID:  "S1",
		Status:     model.RunPending,
		Year:       2026,
	}
	require.NoError(t, store.CreateSolverRun(ctx, run))

	active, err := store.GetActiveSolverRun(ctx, "scenario-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", active.ID)

	now := time.Now()
	run.Status = model.RunSuccess
	run.Progress = 100
	run.FinishedAt = &now
	run.Stats = &model.RunStats{Objective: 42.5, RequestsSatisfied: 7, ViolationsByKind: map[string]int{}}
	require.NoError(t, store.UpdateSolverRun(ctx, run))

	_, err = store.GetActiveSolverRun(ctx, "scenario-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	got, err := store.GetSolverRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got.Stats)
	assert.InDelta(t, 42.5, got.Stats.Objective, 0.0001)
	assert.Equal(t, 7, got.Stats.RequestsSatisfied)

	require.NoError(t, store.AppendRunLog(ctx, &model.RunLogLine{At: time.Now(), RunID: "run-1", Level: "info", Message: "started"}))
	require.NoError(t, store.AppendRunLog(ctx, &model.RunLogLine{At: time.Now(), RunID: "run-1", Level: "info", Message: "finished"}))
	logs, err := store.GetRunLogs(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "started", logs[0].Message)
}

func TestConfigValues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetConfigValue(ctx, "names", "resolution", "auto_threshold")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, store.SetConfigValue(ctx, "names", "resolution", "auto_threshold", "0.85"))
	v, err := store.GetConfigValue(ctx, "names", "resolution", "auto_threshold")
	require.NoError(t, err)
	assert.Equal(t, "0.85", v)

	require.NoError(t, store.SetConfigValue(ctx, "names", "resolution", "auto_threshold", "0.8"))
	all, err := store.AllConfigValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.8", all["names.resolution.auto_threshold"])
}

func TestTransactionRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.UpsertResolvedRequest(ctx, baseRequest())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	all, err := store.GetResolvedRequests(ctx, service.RequestFilter{Year: 2026})
	require.NoError(t, err)
	assert.Empty(t, all)

	tx, err = store.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.UpsertResolvedRequest(ctx, baseRequest())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	all, err = store.GetResolvedRequests(ctx, service.RequestFilter{Year: 2026})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
