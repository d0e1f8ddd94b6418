// Package scenario manages draft assignment workspaces. Each scenario is an
// isolated copy of solver output identified by a uuid; production carries
// the empty scenario id. Promotion copies a draft into production.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/service"
	"github.com/campwire/bunkmate/internal/solver"
)

// Manager serializes all mutating work per scenario: a solve, an apply, and
// locked-group edits on the same scenario never interleave, while different
// scenarios proceed concurrently.
type Manager struct {
	storage service.Storage
	runner  *solver.Runner
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a scenario manager.
func NewManager(storage service.Storage, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		storage: storage,
		runner:  solver.NewRunner(storage, logger),
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// NewScenarioID mints a fresh draft identifier.
func (m *Manager) NewScenarioID() string {
	return uuid.NewString()
}

func (m *Manager) lock(scenarioID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[scenarioID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[scenarioID] = l
	}
	return l
}

// Solve runs the solver against the scenario. A second solve against the
// same scenario while one is in flight is rejected, not queued.
func (m *Manager) Solve(ctx context.Context, scenarioID, sessionID string, year int) (*model.SolverRun, error) {
	l := m.lock(scenarioID)
	if !l.TryLock() {
		return nil, fmt.Errorf("scenario %s: %w", scenarioID, common.ErrRunInProgress)
	}
	defer l.Unlock()

	return m.runner.Execute(ctx, scenarioID, sessionID, year)
}

// Apply promotes a scenario's draft assignments into production, after the
// configured confirmation delay. Cancelling the context during the delay
// aborts the apply with nothing written.
func (m *Manager) Apply(ctx context.Context, scenarioID, sessionID string, year int) error {
	if scenarioID == "" {
		return fmt.Errorf("cannot apply production onto itself: %w", common.ErrInvalidConfig)
	}

	cfg, err := config.Load(ctx, m.storage)
	if err != nil {
		return err
	}

	drafts, err := m.storage.GetAssignments(ctx, scenarioID, sessionID, year)
	if err != nil {
		return fmt.Errorf("failed to load draft assignments: %w", err)
	}
	if len(drafts) == 0 {
		return fmt.Errorf("scenario %s has no assignments for session %s: %w", scenarioID, sessionID, common.ErrNotFound)
	}

	if delay := cfg.Int("scenario", "apply", "delay_seconds"); delay > 0 {
		m.logger.Info("apply pending", "scenario", scenarioID, "delay_seconds", delay)
		timer := time.NewTimer(time.Duration(delay) * time.Second)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			m.logger.Info("apply cancelled during confirmation delay", "scenario", scenarioID)
			return ctx.Err()
		case <-timer.C:
		}
	}

	l := m.lock(scenarioID)
	l.Lock()
	defer l.Unlock()

	if active, err := m.storage.GetActiveSolverRun(ctx, scenarioID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to check for active runs: %w", err)
	} else if active != nil && !active.Status.IsTerminal() {
		return fmt.Errorf("scenario %s: %w", scenarioID, common.ErrRunInProgress)
	}

	if err := m.storage.PromoteScenario(ctx, scenarioID, sessionID, year); err != nil {
		return fmt.Errorf("failed to promote scenario: %w", err)
	}
	m.logger.Info("scenario applied to production",
		"scenario", scenarioID, "session", sessionID, "year", year, "assignments", len(drafts))
	return nil
}

// SaveLockedGroup creates or updates a locked group, serialized against any
// in-flight solve on the same scenario.
func (m *Manager) SaveLockedGroup(ctx context.Context, group *model.LockedGroup) (int64, error) {
	l := m.lock(group.ScenarioID)
	l.Lock()
	defer l.Unlock()

	if active, err := m.storage.GetActiveSolverRun(ctx, group.ScenarioID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return 0, fmt.Errorf("failed to check for active runs: %w", err)
	} else if active != nil && !active.Status.IsTerminal() {
		return 0, fmt.Errorf("scenario %s: %w", group.ScenarioID, common.ErrRunInProgress)
	}

	if len(group.MemberIDs) < 2 {
		return 0, fmt.Errorf("locked group needs at least two members: %w", common.ErrInvalidConfig)
	}
	for _, id := range group.MemberIDs {
		if _, err := m.storage.GetPerson(ctx, id, group.Year); err != nil {
			return 0, fmt.Errorf("locked group member %s: %w", id, err)
		}
	}
	return m.storage.SaveLockedGroup(ctx, group)
}

// DeleteLockedGroup removes a group under the same serialization rule.
func (m *Manager) DeleteLockedGroup(ctx context.Context, scenarioID string, id int64) error {
	l := m.lock(scenarioID)
	l.Lock()
	defer l.Unlock()

	if active, err := m.storage.GetActiveSolverRun(ctx, scenarioID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to check for active runs: %w", err)
	} else if active != nil && !active.Status.IsTerminal() {
		return fmt.Errorf("scenario %s: %w", scenarioID, common.ErrRunInProgress)
	}
	return m.storage.DeleteLockedGroup(ctx, id)
}
