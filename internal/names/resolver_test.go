package names

import (
	"testing"

	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attendee(id, first, last, session string, status model.EnrollmentStatus) model.Attendee {
	return model.Attendee{
		Person: model.Person{
			ExternalID: id,
			FirstName:  first,
			LastName:   last,
			Year:       2026,
		},
		SessionID: session,
		Status:    status,
		Year:      2026,
	}
}

func TestResolveExactMatchAutoResolves(t *testing.T) {
	requester := attendee("p1", "Ruby", "Klein", "s1", model.EnrollmentEnrolled)
	pool := []model.Attendee{
		requester,
		attendee("p2", "Emma", "Watson", "s1", model.EnrollmentEnrolled),
		attendee("p3", "Liam", "Torres", "s1", model.EnrollmentEnrolled),
	}

	r := NewResolver(config.Defaults(), nil)
	res := r.Resolve("Emma Watson", requester, pool)

	require.Equal(t, OutcomeAuto, res.Outcome)
	require.NotNil(t, res.Best)
	assert.Equal(t, "p2", res.Best.Person.ExternalID)
	assert.Equal(t, StrategyExact, res.Best.Strategy)
	assert.InDelta(t, 1.0, res.Best.Confidence, 0.001)
}

func TestResolveNicknameAmbiguityNeedsDisambiguation(t *testing.T) {
	requester := attendee("p1", "Ruby", "Klein", "s1", model.EnrollmentEnrolled)
	pool := []model.Attendee{
		requester,
		attendee("p2", "Madeline", "Smith", "s1", model.EnrollmentEnrolled),
		attendee("p3", "Madelyn", "Jones", "s1", model.EnrollmentEnrolled),
	}

	r := NewResolver(config.Defaults(), nil)
	res := r.Resolve("Maddie", requester, pool)

	// Two equally plausible referents: margin is below epsilon.
	assert.Equal(t, OutcomeAmbiguous, res.Outcome)
	assert.Len(t, res.Candidates, 2)
}

func TestResolveNoMatch(t *testing.T) {
	requester := attendee("p1", "Ruby", "Klein", "s1", model.EnrollmentEnrolled)
	pool := []model.Attendee{
		requester,
		attendee("p2", "Emma", "Watson", "s1", model.EnrollmentEnrolled),
	}

	r := NewResolver(config.Defaults(), nil)
	res := r.Resolve("Zzyzx Qwerty", requester, pool)

	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.Nil(t, res.Best)
}

func TestResolveWeakMatchStaysBelowResolveFloor(t *testing.T) {
	requester := attendee("p1", "Ruby", "Klein", "s1", model.EnrollmentEnrolled)
	requester.Person.School = "Maplewood"
	candidate := attendee("p2", "Sky", "Porter", "s1", model.EnrollmentEnrolled)
	candidate.Person.School = "Maplewood"
	pool := []model.Attendee{requester, candidate}

	// Shared school plus a first initial is only a contextual hint; it is
	// not worth an AI round trip under the default floor.
	r := NewResolver(config.Defaults(), nil)
	res := r.Resolve("Sebastian", requester, pool)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, StrategyContextual, res.Candidates[0].Strategy)

	// Lowering the floor lets the same hint through to disambiguation.
	r = NewResolver(config.Defaults().With("names.resolution.resolve_threshold", "0.5"), nil)
	res = r.Resolve("Sebastian", requester, pool)
	assert.Equal(t, OutcomeAmbiguous, res.Outcome)
}

func TestCandidateSessionAdjustments(t *testing.T) {
	requester := attendee("p1", "Ruby", "Klein", "s1", model.EnrollmentEnrolled)
	pool := []model.Attendee{
		requester,
		attendee("p2", "Emma", "Watson", "s1", model.EnrollmentEnrolled),
		attendee("p3", "Emma", "Watson", "s2", model.EnrollmentEnrolled),
		attendee("p4", "Emma", "Watson", "s1", model.EnrollmentCancelled),
	}

	r := NewResolver(config.Defaults(), nil)
	candidates := r.Candidates("Emma Watson", requester, pool)
	require.Len(t, candidates, 3)

	byID := make(map[string]Candidate)
	for _, c := range candidates {
		byID[c.Person.ExternalID] = c
	}

	// Same session beats different session beats not-enrolled.
	assert.Greater(t, byID["p2"].Confidence, byID["p3"].Confidence)
	assert.Greater(t, byID["p2"].Confidence, byID["p4"].Confidence)
	assert.Equal(t, "p2", candidates[0].Person.ExternalID)
}

func TestCandidateFuzzyAndPhoneticStrategies(t *testing.T) {
	requester := attendee("p1", "Ruby", "Klein", "s1", model.EnrollmentEnrolled)

	tests := []struct {
		name         string
		ref          string
		candidate    model.Attendee
		wantStrategy Strategy
	}{
		{
			name:         "nickname maps through the table",
			ref:          "Jake Miller",
			candidate:    attendee("p2", "Jacob", "Miller", "s1", model.EnrollmentEnrolled),
			wantStrategy: StrategyFuzzy,
		},
		{
			name:         "misspelling within distance",
			ref:          "Hanah Levi",
			candidate:    attendee("p2", "Hannah", "Levi", "s1", model.EnrollmentEnrolled),
			wantStrategy: StrategyFuzzy,
		},
		{
			name:         "phonetic variant beyond fuzzy distance",
			ref:          "Catherine Hart",
			candidate:    attendee("p2", "Kathryn", "Hart", "s1", model.EnrollmentEnrolled),
			wantStrategy: StrategyPhonetic,
		},
	}

	r := NewResolver(config.Defaults(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := []model.Attendee{requester, tt.candidate}
			candidates := r.Candidates(tt.ref, requester, pool)
			require.NotEmpty(t, candidates)
			assert.Equal(t, tt.wantStrategy, candidates[0].Strategy)
		})
	}
}

func TestCandidateGraphProximityBreaksTies(t *testing.T) {
	requester := attendee("p1", "Ruby", "Klein", "s1", model.EnrollmentEnrolled)
	pool := []model.Attendee{
		requester,
		attendee("p2", "Madeline", "Smith", "s1", model.EnrollmentEnrolled),
		attendee("p3", "Madelyn", "Reyes", "s1", model.EnrollmentEnrolled),
	}

	// p3 bunked with the requester last year; zero the bonus so only the
	// proximity tie-break distinguishes otherwise identical candidates.
	graph := NewGraph()
	graph.AddEdge("p1", "p3", EdgeCoBunked)

	cfg := config.Defaults().With("names.graph.max_bonus", "0")
	r := NewResolver(cfg, graph)

	candidates := r.Candidates("Maddie", requester, pool)
	require.Len(t, candidates, 2)
	assert.Equal(t, "p3", candidates[0].Person.ExternalID)
}

func TestCandidateStableIdentityOrdering(t *testing.T) {
	requester := attendee("p9", "Ruby", "Klein", "s1", model.EnrollmentEnrolled)
	pool := []model.Attendee{
		requester,
		attendee("p5", "Madelyn", "Ward", "s1", model.EnrollmentEnrolled),
		attendee("p2", "Madeline", "Cruz", "s1", model.EnrollmentEnrolled),
	}

	r := NewResolver(config.Defaults(), nil)
	candidates := r.Candidates("Maddie", requester, pool)
	require.Len(t, candidates, 2)

	// Equal confidence, no graph signal: external id decides, stably.
	assert.Equal(t, "p2", candidates[0].Person.ExternalID)
	assert.Equal(t, "p5", candidates[1].Person.ExternalID)
}
