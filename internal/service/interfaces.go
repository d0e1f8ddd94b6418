// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/campwire/bunkmate/internal/model"
)

// RequestFilter defines filtering options for resolved request queries.
type RequestFilter struct {
	SessionID    string
	Requester    string
	Status       model.RequestStatus
	ReviewOnly   bool
	IncludeMerged bool
	Year         int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Entity feed operations (keyed by external id + year).
	SavePersons(ctx context.Context, persons []model.Person) error
	GetPerson(ctx context.Context, externalID string, year int) (*model.Person, error)
	SaveAttendees(ctx context.Context, attendees []model.Attendee) error
	GetAttendeesBySession(ctx context.Context, sessionID string, year int) ([]model.Attendee, error)
	GetAttendeesByYear(ctx context.Context, year int) ([]model.Attendee, error)
	SaveSessions(ctx context.Context, sessions []model.Session) error
	GetSessions(ctx context.Context, year int) ([]model.Session, error)
	SaveBunks(ctx context.Context, bunks []model.Bunk) error
	GetBunks(ctx context.Context, year int) ([]model.Bunk, error)
	SaveBunkPlans(ctx context.Context, plans []model.BunkPlan) error
	GetBunkPlans(ctx context.Context, sessionID string, year int) ([]model.BunkPlan, error)

	// Original request operations.
	SaveOriginalRequests(ctx context.Context, requests []model.OriginalRequest) error
	GetOriginalRequest(ctx context.Context, id int64) (*model.OriginalRequest, error)
	GetOriginalRequestsByYear(ctx context.Context, year int) ([]model.OriginalRequest, error)
	MarkOriginalRequestProcessed(ctx context.Context, id int64, contentHash string, at time.Time) error

	// Resolved request operations.
	UpsertResolvedRequest(ctx context.Context, request *model.ResolvedRequest) (int64, error)
	GetResolvedRequest(ctx context.Context, id int64) (*model.ResolvedRequest, error)
	GetResolvedRequests(ctx context.Context, filter RequestFilter) ([]model.ResolvedRequest, error)
	UpdateRequestStatus(ctx context.Context, id int64, status model.RequestStatus, state model.ParseState) error
	SetMergePointer(ctx context.Context, id, targetID int64) error
	ClearMergePointer(ctx context.Context, id int64) error
	LinkRequestSource(ctx context.Context, source *model.RequestSource) error
	GetRequestSources(ctx context.Context, resolvedRequestID int64) ([]model.RequestSource, error)

	// Assignment operations.
	ReplaceAssignments(ctx context.Context, scenarioID, sessionID string, year int, assignments []model.Assignment) error
	GetAssignments(ctx context.Context, scenarioID, sessionID string, year int) ([]model.Assignment, error)
	PromoteScenario(ctx context.Context, scenarioID, sessionID string, year int) error
	GetProductionAssignmentsByYear(ctx context.Context, year int) ([]model.Assignment, error)

	// Locked group operations.
	SaveLockedGroup(ctx context.Context, group *model.LockedGroup) (int64, error)
	GetLockedGroups(ctx context.Context, scenarioID, sessionID string, year int) ([]model.LockedGroup, error)
	DeleteLockedGroup(ctx context.Context, id int64) error

	// Solver run operations.
	CreateSolverRun(ctx context.Context, run *model.SolverRun) error
	UpdateSolverRun(ctx context.Context, run *model.SolverRun) error
	GetSolverRun(ctx context.Context, id string) (*model.SolverRun, error)
	GetActiveSolverRun(ctx context.Context, scenarioID string) (*model.SolverRun, error)
	AppendRunLog(ctx context.Context, line *model.RunLogLine) error
	GetRunLogs(ctx context.Context, runID string) ([]model.RunLogLine, error)

	// Configuration operations.
	GetConfigValue(ctx context.Context, category, subcategory, key string) (string, error)
	SetConfigValue(ctx context.Context, category, subcategory, key, value string) error
	AllConfigValues(ctx context.Context) (map[string]string, error)

	// Database management.
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	Storage
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// PipelineStats shows the results of a resolution pipeline run.
type PipelineStats struct {
	Duration        time.Duration
	TotalSubmissions int
	Skipped         int
	Extracted       int
	AutoResolved    int
	Disambiguated   int
	ManualReview    int
	Failed          int
	AICalls         int
}
