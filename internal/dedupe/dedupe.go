// Package dedupe finds and merges duplicate resolved requests. The same
// intent frequently arrives through several intake fields; merging keeps one
// canonical row per (requester, requestee, type, session, year) while the
// merge pointer preserves the absorbed rows for audit and undo.
//
// A merge writes nothing but pointers. The absorbed rows' evidence and
// provenance are composed at read time, so a split restores the exact
// pre-merge request set.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/service"
)

// Group is a set of requests that express the same intent.
type Group struct {
	Requests []model.ResolvedRequest
	Key      string
}

// Winner returns the member that should absorb the others: locked rows win
// outright, then higher confidence, then the oldest row.
func (g *Group) Winner() *model.ResolvedRequest {
	if len(g.Requests) == 0 {
		return nil
	}
	best := &g.Requests[0]
	for i := 1; i < len(g.Requests); i++ {
		c := &g.Requests[i]
		switch {
		case c.Locked != best.Locked:
			if c.Locked {
				best = c
			}
		case c.Confidence != best.Confidence:
			if c.Confidence > best.Confidence {
				best = c
			}
		case c.ID < best.ID:
			best = c
		}
	}
	return best
}

// Service performs duplicate detection and merge/split operations.
type Service struct {
	storage service.Storage
	logger  *slog.Logger
}

// New creates a dedupe service.
func New(storage service.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{storage: storage, logger: logger}
}

// FindDuplicates groups the year's active requests by intent identity. The
// source field is deliberately excluded from the key: a parent note and a
// form checkbox naming the same friend are the same request.
func (s *Service) FindDuplicates(ctx context.Context, year int) ([]Group, error) {
	requests, err := s.storage.GetResolvedRequests(ctx, service.RequestFilter{Year: year})
	if err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}

	byKey := make(map[string][]model.ResolvedRequest)
	for _, r := range requests {
		if !r.IsActive || r.IsMerged() || r.RequesteeExternalID == "" {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s|%s|%d",
			r.RequesterExternalID, r.RequesteeExternalID, r.Type, r.SessionID, r.Year)
		byKey[key] = append(byKey[key], r)
	}

	var groups []Group
	for key, members := range byKey {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
		groups = append(groups, Group{Key: key, Requests: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups, nil
}

// Merge absorbs the losers into the winner. Pointers never chain: a loser
// that was itself a merge target has its dependents re-pointed directly at
// the winner, and merging into an already-merged winner is rejected.
func (s *Service) Merge(ctx context.Context, winnerID int64, loserIDs ...int64) error {
	winner, err := s.storage.GetResolvedRequest(ctx, winnerID)
	if err != nil {
		return fmt.Errorf("failed to load merge target %d: %w", winnerID, err)
	}
	if winner.IsMerged() {
		return fmt.Errorf("merge target %d: %w", winnerID, common.ErrMergeCycle)
	}
	if !winner.IsActive {
		return fmt.Errorf("merge target %d: %w", winnerID, common.ErrRequestInactive)
	}

	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	for _, loserID := range loserIDs {
		if loserID == winnerID {
			return fmt.Errorf("request %d: %w", loserID, common.ErrMergeCycle)
		}
		loser, err := tx.GetResolvedRequest(ctx, loserID)
		if err != nil {
			return fmt.Errorf("failed to load request %d: %w", loserID, err)
		}
		if loser.IsMerged() {
			return fmt.Errorf("request %d: %w", loserID, common.ErrAlreadyMerged)
		}
		if loser.Locked {
			return fmt.Errorf("request %d is locked: %w", loserID, common.ErrRequestInactive)
		}

		// Flatten: dependents of the loser point at the winner afterwards.
		dependents, err := tx.GetResolvedRequests(ctx, service.RequestFilter{
			Year:          loser.Year,
			IncludeMerged: true,
		})
		if err != nil {
			return fmt.Errorf("failed to scan dependents of %d: %w", loserID, err)
		}
		for _, dep := range dependents {
			if dep.MergedIntoID == loserID {
				if err := tx.SetMergePointer(ctx, dep.ID, winnerID); err != nil {
					return fmt.Errorf("failed to re-point request %d: %w", dep.ID, err)
				}
			}
		}

		if err := tx.SetMergePointer(ctx, loserID, winnerID); err != nil {
			return fmt.Errorf("failed to merge request %d: %w", loserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}

	s.logger.Info("merged requests", "winner", winnerID, "losers", loserIDs)
	return nil
}

// absorb folds an absorbed row's evidence into a read-time view of the
// winner. The stored winner row is never changed.
func absorb(winner *model.ResolvedRequest, loser *model.ResolvedRequest) {
	if loser.Priority > winner.Priority {
		winner.Priority = loser.Priority
	}
	if loser.Confidence > winner.Confidence {
		winner.Confidence = loser.Confidence
		winner.Level = loser.Level
	}
	winner.IsReciprocal = winner.IsReciprocal || loser.IsReciprocal
	// A request any source considers essential stays essential.
	winner.CanBeDropped = winner.CanBeDropped && loser.CanBeDropped
}

// EffectiveRequests returns the requests matching the filter with each
// winner carrying the folded evidence of the rows merged into it. Merged
// rows themselves are excluded from the result.
func EffectiveRequests(ctx context.Context, storage service.Storage, filter service.RequestFilter) ([]model.ResolvedRequest, error) {
	withMerged := filter
	withMerged.IncludeMerged = true
	requests, err := storage.GetResolvedRequests(ctx, withMerged)
	if err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}

	indexOf := make(map[int64]int)
	var out []model.ResolvedRequest
	for _, r := range requests {
		if r.IsMerged() {
			continue
		}
		indexOf[r.ID] = len(out)
		out = append(out, r)
	}
	for i := range requests {
		r := &requests[i]
		if !r.IsMerged() {
			continue
		}
		if wi, ok := indexOf[r.MergedIntoID]; ok {
			absorb(&out[wi], r)
		}
	}
	return out, nil
}

// Sources returns a request's provenance links, the winner's own first,
// followed by those of every request merged into it.
func (s *Service) Sources(ctx context.Context, id int64) ([]model.RequestSource, error) {
	req, err := s.storage.GetResolvedRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request %d: %w", id, err)
	}

	out, err := s.storage.GetRequestSources(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources of %d: %w", id, err)
	}

	all, err := s.storage.GetResolvedRequests(ctx, service.RequestFilter{
		Year:          req.Year,
		IncludeMerged: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan absorbed requests of %d: %w", id, err)
	}
	for _, r := range all {
		if r.MergedIntoID != id {
			continue
		}
		absorbed, err := s.storage.GetRequestSources(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load sources of %d: %w", r.ID, err)
		}
		out = append(out, absorbed...)
	}
	return out, nil
}

// Split undoes a merge, restoring the request as an independent active row.
func (s *Service) Split(ctx context.Context, id int64) error {
	req, err := s.storage.GetResolvedRequest(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load request %d: %w", id, err)
	}
	if !req.IsMerged() {
		return fmt.Errorf("request %d is not merged: %w", id, common.ErrRequestInactive)
	}
	if err := s.storage.ClearMergePointer(ctx, id); err != nil {
		return fmt.Errorf("failed to split request %d: %w", id, err)
	}
	s.logger.Info("split request", "id", id, "was_merged_into", req.MergedIntoID)
	return nil
}

// AutoMerge finds every duplicate group for the year and merges each onto
// its winner. Groups containing more than one locked row are skipped and
// reported for manual handling.
func (s *Service) AutoMerge(ctx context.Context, year int) (merged int, skipped []Group, err error) {
	groups, err := s.FindDuplicates(ctx, year)
	if err != nil {
		return 0, nil, err
	}

	for _, g := range groups {
		lockedCount := 0
		for _, r := range g.Requests {
			if r.Locked {
				lockedCount++
			}
		}
		if lockedCount > 1 {
			skipped = append(skipped, g)
			continue
		}

		winner := g.Winner()
		var losers []int64
		for _, r := range g.Requests {
			if r.ID != winner.ID {
				losers = append(losers, r.ID)
			}
		}
		if err := s.Merge(ctx, winner.ID, losers...); err != nil {
			return merged, skipped, err
		}
		merged += len(losers)
	}
	return merged, skipped, nil
}
