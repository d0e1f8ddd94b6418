// Package pipeline implements the three-phase request resolution pipeline:
// AI extraction, local name matching, and AI disambiguation.
package pipeline

import (
	"fmt"

	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/model"
)

// Signals are the component scores combined into an overall confidence.
// Every weight comes from configuration; none are algorithmic constants.
type Signals struct {
	NameScore       float64 // name resolution engine output
	ExtractionScore float64 // Phase 1 AI extraction confidence
	ContextScore    float64 // current-year vs prior-year-only evidence
	Reciprocal      bool    // both parties independently requested each other
}

// Combine produces the overall confidence: a weighted average of the three
// evidence scores, normalized by their weights, plus the reciprocal bonus.
func Combine(cfg *config.Snapshot, s Signals) float64 {
	nameW := cfg.Float("pipeline", "confidence", "name_weight")
	extractW := cfg.Float("pipeline", "confidence", "extraction_weight")
	contextW := cfg.Float("pipeline", "confidence", "context_weight")

	total := nameW + extractW + contextW
	if total == 0 {
		return 0
	}

	score := (s.NameScore*nameW + s.ExtractionScore*extractW + s.ContextScore*contextW) / total
	if s.Reciprocal {
		score += cfg.Float("pipeline", "confidence", "reciprocal_bonus")
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Outcome maps a confidence score onto the ordered threshold list:
// at or above auto_accept resolves with no review flag, at or above resolve
// resolves with review optional, and anything lower stays pending for
// manual review.
func Outcome(cfg *config.Snapshot, confidence float64) (model.RequestStatus, bool) {
	switch {
	case confidence >= cfg.Float("pipeline", "thresholds", "auto_accept"):
		return model.StatusResolved, false
	case confidence >= cfg.Float("pipeline", "thresholds", "resolve"):
		return model.StatusResolved, false
	default:
		return model.StatusPending, true
	}
}

// Level buckets a score into the human-readable confidence tier.
func Level(cfg *config.Snapshot, confidence float64) model.ConfidenceLevel {
	switch {
	case confidence >= cfg.Float("pipeline", "thresholds", "auto_accept"):
		return model.ConfidenceHigh
	case confidence >= cfg.Float("pipeline", "thresholds", "resolve"):
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// Explain renders the component scores into the stored explanation.
func Explain(s Signals, confidence float64) string {
	base := fmt.Sprintf("name=%.2f extraction=%.2f context=%.2f", s.NameScore, s.ExtractionScore, s.ContextScore)
	if s.Reciprocal {
		base += " reciprocal=yes"
	}
	return fmt.Sprintf("combined %.2f (%s)", confidence, base)
}
