package model

import (
	"time"
)

// RunStatus is the state machine for a solver run:
// pending → running → {success, failed, error}.
type RunStatus string

// Run status constants.
const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed" // infeasible: hard constraints violated
	RunError   RunStatus = "error"  // process error: bad config, storage failure
)

// runTransitions enumerates the legal status edges.
var runTransitions = map[RunStatus][]RunStatus{
	RunPending: {RunRunning, RunError},
	RunRunning: {RunSuccess, RunFailed, RunError},
}

// CanTransition reports whether moving from s to next is legal.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, t := range runTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunSuccess, RunFailed, RunError:
		return true
	default:
		return false
	}
}

// RunStats aggregates the outcome of one solver run for reporting.
type RunStats struct {
	ViolationsByKind   map[string]int
	Objective          float64
	TotalCampers       int
	RequestsConsidered int
	RequestsSatisfied  int
	RequestsImpossible int
	ZeroSatisfaction   int
	Iterations         int
}

// SolverRun is one optimization attempt with full diagnostics.
type SolverRun struct {
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	Stats         *RunStats
	ID            string // uuid
	ScenarioID    string
	SessionID     string
	Status        RunStatus
	FailureDetail string
	Year          int
	Progress      int // 0-100
}

// RunLogLine is one structured log entry persisted for a solver run.
type RunLogLine struct {
	At      time.Time
	RunID   string
	Level   string
	Message string
	ID      int64
}
