package dedupe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/service"
	"github.com/campwire/bunkmate/internal/testutil"
)

func request(field model.FieldType, confidence float64) *model.ResolvedRequest {
	return &model.ResolvedRequest{
		RequesterExternalID: "p1",
		RequesteeExternalID: "p2",
		SessionID:           "S1",
		SourceField:         field,
		SourceCategory:      "parent",
		Type:                model.RequestBunkWith,
		Status:              model.StatusResolved,
		State:               model.StateResolved,
		Level:               model.ConfidenceHigh,
		Year:                2026,
		Priority:            2,
		Confidence:          confidence,
		IsActive:            true,
	}
}

func TestFindDuplicatesGroupsAcrossFields(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	svc := New(store, nil)

	// Same intent via two intake fields, plus an unrelated request.
	_, err := store.UpsertResolvedRequest(ctx, request(model.FieldBunkRequest, 0.9))
	require.NoError(t, err)
	_, err = store.UpsertResolvedRequest(ctx, request(model.FieldParentNotes, 0.8))
	require.NoError(t, err)
	other := request(model.FieldBunkRequest, 0.9)
	other.RequesteeExternalID = "p3"
	_, err = store.UpsertResolvedRequest(ctx, other)
	require.NoError(t, err)

	groups, err := svc.FindDuplicates(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Requests, 2)

	winner := groups[0].Winner()
	assert.Equal(t, model.FieldBunkRequest, winner.SourceField, "higher confidence wins")
}

// assertFieldsPreserved compares everything a merge must leave alone.
func assertFieldsPreserved(t *testing.T, want, got *model.ResolvedRequest) {
	t.Helper()
	assert.Equal(t, want.SourceField, got.SourceField)
	assert.Equal(t, want.RequesteeExternalID, got.RequesteeExternalID)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Priority, got.Priority)
	assert.InDelta(t, want.Confidence, got.Confidence, 0.0001)
	assert.Equal(t, want.Level, got.Level)
	assert.Equal(t, want.IsReciprocal, got.IsReciprocal)
	assert.Equal(t, want.CanBeDropped, got.CanBeDropped)
}

func TestMergeThenSplitRoundTrip(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	svc := New(store, nil)

	a := request(model.FieldBunkRequest, 0.7)
	a.Priority = 2
	a.Level = model.ConfidenceMedium
	idA, err := store.UpsertResolvedRequest(ctx, a)
	require.NoError(t, err)

	b := request(model.FieldParentNotes, 0.95)
	b.Priority = 5
	b.IsReciprocal = true
	idB, err := store.UpsertResolvedRequest(ctx, b)
	require.NoError(t, err)

	require.NoError(t, store.SaveOriginalRequests(ctx, []model.OriginalRequest{
		{RequesterExternalID: "p1", FieldType: model.FieldBunkRequest, Year: 2026, RawText: "with Emma"},
		{RequesterExternalID: "p1", FieldType: model.FieldParentNotes, Year: 2026, RawText: "please put her with Emma"},
	}))
	subs, err := store.GetOriginalRequestsByYear(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.NoError(t, store.LinkRequestSource(ctx, &model.RequestSource{ResolvedRequestID: idA, OriginalRequestID: subs[0].ID}))
	require.NoError(t, store.LinkRequestSource(ctx, &model.RequestSource{ResolvedRequestID: idB, OriginalRequestID: subs[1].ID}))

	beforeA, err := store.GetResolvedRequest(ctx, idA)
	require.NoError(t, err)
	beforeB, err := store.GetResolvedRequest(ctx, idB)
	require.NoError(t, err)

	require.NoError(t, svc.Merge(ctx, idA, idB))

	active, err := store.GetResolvedRequests(ctx, service.RequestFilter{Year: 2026})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, idA, active[0].ID)
	assertFieldsPreserved(t, beforeA, &active[0])

	merged, err := store.GetResolvedRequest(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, idA, merged.MergedIntoID)
	assertFieldsPreserved(t, beforeB, merged)

	require.NoError(t, svc.Split(ctx, idB))

	after, err := store.GetResolvedRequests(ctx, service.RequestFilter{Year: 2026})
	require.NoError(t, err)
	require.Len(t, after, 2)
	for i := range after {
		r := &after[i]
		assert.Zero(t, r.MergedIntoID)
		switch r.ID {
		case idA:
			assertFieldsPreserved(t, beforeA, r)
		case idB:
			assertFieldsPreserved(t, beforeB, r)
		}
	}

	// Provenance stays where it was written: one link each, untouched by
	// the merge and the split.
	sourcesA, err := store.GetRequestSources(ctx, idA)
	require.NoError(t, err)
	require.Len(t, sourcesA, 1)
	assert.Equal(t, subs[0].ID, sourcesA[0].OriginalRequestID)
	sourcesB, err := store.GetRequestSources(ctx, idB)
	require.NoError(t, err)
	require.Len(t, sourcesB, 1)
	assert.Equal(t, subs[1].ID, sourcesB[0].OriginalRequestID)
}

func TestMergeRejectsChains(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	svc := New(store, nil)

	idA, err := store.UpsertResolvedRequest(ctx, request(model.FieldBunkRequest, 0.9))
	require.NoError(t, err)
	idB, err := store.UpsertResolvedRequest(ctx, request(model.FieldParentNotes, 0.8))
	require.NoError(t, err)
	idC, err := store.UpsertResolvedRequest(ctx, request(model.FieldSocializeWith, 0.7))
	require.NoError(t, err)

	require.NoError(t, svc.Merge(ctx, idA, idB))

	// B is merged: it can neither absorb nor be absorbed again.
	err = svc.Merge(ctx, idB, idC)
	assert.ErrorIs(t, err, common.ErrMergeCycle)
	err = svc.Merge(ctx, idA, idB)
	assert.ErrorIs(t, err, common.ErrAlreadyMerged)

	err = svc.Merge(ctx, idA, idA)
	assert.ErrorIs(t, err, common.ErrMergeCycle)
}

func TestMergeFlattensDependents(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	svc := New(store, nil)

	idA, err := store.UpsertResolvedRequest(ctx, request(model.FieldBunkRequest, 0.9))
	require.NoError(t, err)
	idB, err := store.UpsertResolvedRequest(ctx, request(model.FieldParentNotes, 0.8))
	require.NoError(t, err)
	idC, err := store.UpsertResolvedRequest(ctx, request(model.FieldSocializeWith, 0.7))
	require.NoError(t, err)

	// C merged into B, then B merged into A: C must point at A afterwards.
	require.NoError(t, svc.Merge(ctx, idB, idC))
	require.NoError(t, svc.Merge(ctx, idA, idB))

	c, err := store.GetResolvedRequest(ctx, idC)
	require.NoError(t, err)
	assert.Equal(t, idA, c.MergedIntoID, "pointer chains must be flattened")
}

func TestMergeComposesEvidenceAtReadTime(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	svc := New(store, nil)

	a := request(model.FieldBunkRequest, 0.7)
	a.Priority = 2
	a.Level = model.ConfidenceMedium
	a.CanBeDropped = true
	idA, err := store.UpsertResolvedRequest(ctx, a)
	require.NoError(t, err)

	b := request(model.FieldParentNotes, 0.95)
	b.Priority = 5
	b.IsReciprocal = true
	b.Level = model.ConfidenceHigh
	idB, err := store.UpsertResolvedRequest(ctx, b)
	require.NoError(t, err)

	require.NoError(t, svc.Merge(ctx, idA, idB))

	// The stored winner row keeps its own values.
	stored, err := store.GetResolvedRequest(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Priority)
	assert.InDelta(t, 0.7, stored.Confidence, 0.0001)
	assert.Equal(t, model.ConfidenceMedium, stored.Level)
	assert.False(t, stored.IsReciprocal)
	assert.True(t, stored.CanBeDropped)

	// The effective view carries the group's strongest evidence.
	effective, err := EffectiveRequests(ctx, store, service.RequestFilter{Year: 2026})
	require.NoError(t, err)
	require.Len(t, effective, 1)
	assert.Equal(t, idA, effective[0].ID)
	assert.Equal(t, 5, effective[0].Priority)
	assert.InDelta(t, 0.95, effective[0].Confidence, 0.0001)
	assert.Equal(t, model.ConfidenceHigh, effective[0].Level)
	assert.True(t, effective[0].IsReciprocal)
	assert.False(t, effective[0].CanBeDropped, "essential from any source stays essential")

	// After a split each row stands alone again.
	require.NoError(t, svc.Split(ctx, idB))
	effective, err = EffectiveRequests(ctx, store, service.RequestFilter{Year: 2026})
	require.NoError(t, err)
	require.Len(t, effective, 2)
	for _, r := range effective {
		if r.ID == idA {
			assert.Equal(t, 2, r.Priority)
			assert.False(t, r.IsReciprocal)
		}
	}
}

func TestSourcesIncludeAbsorbedProvenance(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	svc := New(store, nil)

	idA, err := store.UpsertResolvedRequest(ctx, request(model.FieldBunkRequest, 0.9))
	require.NoError(t, err)
	idB, err := store.UpsertResolvedRequest(ctx, request(model.FieldParentNotes, 0.8))
	require.NoError(t, err)

	require.NoError(t, store.SaveOriginalRequests(ctx, []model.OriginalRequest{
		{RequesterExternalID: "p1", FieldType: model.FieldBunkRequest, Year: 2026, RawText: "with Emma"},
		{RequesterExternalID: "p1", FieldType: model.FieldParentNotes, Year: 2026, RawText: "please put her with Emma"},
	}))
	subs, err := store.GetOriginalRequestsByYear(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.NoError(t, store.LinkRequestSource(ctx, &model.RequestSource{ResolvedRequestID: idA, OriginalRequestID: subs[0].ID}))
	require.NoError(t, store.LinkRequestSource(ctx, &model.RequestSource{ResolvedRequestID: idB, OriginalRequestID: subs[1].ID}))

	require.NoError(t, svc.Merge(ctx, idA, idB))

	sources, err := svc.Sources(ctx, idA)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.True(t, sources[0].IsPrimary, "winner's own source leads")
	assert.Equal(t, subs[0].ID, sources[0].OriginalRequestID)
	assert.Equal(t, subs[1].ID, sources[1].OriginalRequestID)

	require.NoError(t, svc.Split(ctx, idB))
	sources, err = svc.Sources(ctx, idA)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, subs[0].ID, sources[0].OriginalRequestID)
}

func TestAutoMerge(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	svc := New(store, nil)

	_, err := store.UpsertResolvedRequest(ctx, request(model.FieldBunkRequest, 0.9))
	require.NoError(t, err)
	_, err = store.UpsertResolvedRequest(ctx, request(model.FieldParentNotes, 0.8))
	require.NoError(t, err)
	_, err = store.UpsertResolvedRequest(ctx, request(model.FieldSocializeWith, 0.7))
	require.NoError(t, err)

	merged, skipped, err := svc.AutoMerge(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, 2, merged)
	assert.Empty(t, skipped)

	active, err := store.GetResolvedRequests(ctx, service.RequestFilter{Year: 2026})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, model.FieldBunkRequest, active[0].SourceField)
}

func TestSplitRequiresMergedRow(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()
	svc := New(store, nil)

	id, err := store.UpsertResolvedRequest(ctx, request(model.FieldBunkRequest, 0.9))
	require.NoError(t, err)

	err = svc.Split(ctx, id)
	assert.ErrorIs(t, err, common.ErrRequestInactive)
}
