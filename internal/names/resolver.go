package names

import (
	"sort"

	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/model"
)

// Strategy identifies which matching strategy produced a candidate.
type Strategy string

// Strategies in priority order.
const (
	StrategyExact      Strategy = "exact"
	StrategyFuzzy      Strategy = "fuzzy"
	StrategyPhonetic   Strategy = "phonetic"
	StrategyContextual Strategy = "contextual"
)

// Candidate is one possible referent for a name reference.
type Candidate struct {
	Person     model.Person
	SessionID  string
	Strategy   Strategy
	Confidence float64
	GraphHops  int
	Enrolled   bool
}

// Outcome classifies a resolution attempt.
type Outcome string

// Resolution outcomes.
const (
	OutcomeAuto      Outcome = "auto"      // top candidate clears threshold and margin
	OutcomeAmbiguous Outcome = "ambiguous" // candidates exist but need disambiguation
	OutcomeNoMatch   Outcome = "no_match"  // nothing matched at all
)

// Resolution is the result of resolving one name reference.
type Resolution struct {
	Best       *Candidate
	Outcome    Outcome
	Candidates []Candidate
}

// Resolver matches free-text name references against an attendee pool.
// Resolution is pure and stateless per call, so one Resolver is safely
// shared across concurrent requesters.
type Resolver struct {
	cfg   *config.Snapshot
	graph *Graph
}

// NewResolver creates a resolver over the given relationship graph.
func NewResolver(cfg *config.Snapshot, graph *Graph) *Resolver {
	if graph == nil {
		graph = NewGraph()
	}
	return &Resolver{cfg: cfg, graph: graph}
}

// Resolve ranks candidates for a reference and applies the tiered
// resolution rule: the top candidate auto-resolves when it clears the auto
// threshold and beats the runner-up by epsilon, stays ambiguous for AI
// disambiguation while it clears the resolve threshold, and below that
// floor the reference reports no match rather than spend an AI round trip
// on a hopeless guess.
func (r *Resolver) Resolve(ref string, requester model.Attendee, pool []model.Attendee) Resolution {
	candidates := r.Candidates(ref, requester, pool)
	if len(candidates) == 0 {
		return Resolution{Outcome: OutcomeNoMatch}
	}

	auto := r.cfg.Float("names", "resolution", "auto_threshold")
	floor := r.cfg.Float("names", "resolution", "resolve_threshold")
	epsilon := r.cfg.Float("names", "resolution", "epsilon")

	top := candidates[0]
	if top.Confidence < floor {
		return Resolution{Outcome: OutcomeNoMatch, Candidates: candidates}
	}

	clear := top.Confidence >= auto
	if clear && len(candidates) > 1 {
		clear = top.Confidence-candidates[1].Confidence >= epsilon
	}

	outcome := OutcomeAmbiguous
	if clear {
		outcome = OutcomeAuto
	}
	return Resolution{Outcome: outcome, Best: &candidates[0], Candidates: candidates}
}

// Candidates applies every matching strategy to the pool and returns the
// ranked list. Ties break by confidence, then graph proximity, then stable
// external-id ordering so runs are deterministic.
func (r *Resolver) Candidates(ref string, requester model.Attendee, pool []model.Attendee) []Candidate {
	normalized := Normalize(ref)
	if normalized == "" {
		return nil
	}
	refFirst, refLast := SplitName(normalized)

	maxDistance := r.cfg.Int("names", "fuzzy", "max_distance")
	maxHops := r.cfg.Int("names", "graph", "max_hops")
	maxBonus := r.cfg.Float("names", "graph", "max_bonus")
	sameBoost := r.cfg.Float("names", "context", "same_session_boost")
	diffPenalty := r.cfg.Float("names", "context", "different_session_penalty")
	enrollPenalty := r.cfg.Float("names", "context", "not_enrolled_penalty")

	var out []Candidate
	for i := range pool {
		attendee := &pool[i]
		if attendee.Person.ExternalID == requester.Person.ExternalID {
			continue
		}

		base, strategy := r.matchStrategy(normalized, refFirst, refLast, requester, attendee, maxDistance)
		if base == 0 {
			continue
		}

		confidence := base
		if attendee.SessionID == requester.SessionID {
			confidence += sameBoost
		} else {
			confidence -= diffPenalty
		}
		if !attendee.IsEnrolled() {
			confidence -= enrollPenalty
		}

		hops := r.graph.Proximity(requester.Person.ExternalID, attendee.Person.ExternalID, maxHops)
		confidence += r.graph.Bonus(requester.Person.ExternalID, attendee.Person.ExternalID, maxHops, maxBonus)

		out = append(out, Candidate{
			Person:     attendee.Person,
			SessionID:  attendee.SessionID,
			Strategy:   strategy,
			Confidence: clamp01(confidence),
			GraphHops:  hops,
			Enrolled:   attendee.IsEnrolled(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if hi, hj := proximityRank(out[i].GraphHops), proximityRank(out[j].GraphHops); hi != hj {
			return hi < hj
		}
		return out[i].Person.ExternalID < out[j].Person.ExternalID
	})
	return out
}

// matchStrategy tries the strategies in fixed priority order and returns
// the first hit's base confidence.
func (r *Resolver) matchStrategy(normalized, refFirst, refLast string, requester model.Attendee, attendee *model.Attendee, maxDistance int) (float64, Strategy) {
	p := &attendee.Person
	fullLegal := Normalize(p.FirstName + " " + p.LastName)
	fullPreferred := ""
	if p.PreferredName != "" {
		fullPreferred = Normalize(p.PreferredName + " " + p.LastName)
	}
	candFirst := Normalize(p.FirstName)
	candPreferred := Normalize(p.PreferredName)
	candLast := Normalize(p.LastName)

	// 1. Exact normalized match.
	if normalized == fullLegal || (fullPreferred != "" && normalized == fullPreferred) {
		return 1.0, StrategyExact
	}
	if refLast == "" && (refFirst == candFirst || refFirst == candPreferred) {
		return 0.9, StrategyExact
	}

	lastCompatible := refLast == "" || refLast == candLast ||
		(maxDistance > 0 && DamerauLevenshtein(refLast, candLast) <= maxDistance)

	// 2. Fuzzy: nickname table plus spelling-variation distance.
	if lastCompatible && (NicknameEquivalent(refFirst, candFirst) || NicknameEquivalent(refFirst, candPreferred)) {
		return 0.85, StrategyFuzzy
	}
	if maxDistance > 0 {
		if d := DamerauLevenshtein(refFirst, candFirst); d > 0 && d <= maxDistance && lastCompatible {
			return 0.75 - 0.05*float64(d-1), StrategyFuzzy
		}
	}

	// 3. Phonetic: sound-encoding agreement on the first name.
	if lastCompatible {
		switch PhoneticMatch(refFirst, candFirst) {
		case 2:
			return 0.68, StrategyPhonetic
		case 1:
			return 0.6, StrategyPhonetic
		}
	}

	// 4. Contextual: shared school plus a weak initial match.
	if p.School != "" && p.School == requester.Person.School &&
		refFirst != "" && candFirst != "" && refFirst[0] == candFirst[0] {
		return 0.5, StrategyContextual
	}

	return 0, ""
}

// proximityRank orders graph distance for tie-breaking: connected closer is
// better, unconnected (0 hops) sorts last.
func proximityRank(hops int) int {
	if hops == 0 {
		return 1 << 20
	}
	return hops
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
