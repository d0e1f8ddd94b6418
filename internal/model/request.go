package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// FieldType identifies which intake field a raw submission came from.
type FieldType string

// Intake field constants. All fields except FieldSocializeWith contain free
// text and require AI extraction; socialize_with carries a structured person
// reference and maps directly.
const (
	FieldBunkRequest   FieldType = "bunk_request"
	FieldBunkAvoid     FieldType = "bunk_avoid"
	FieldParentNotes   FieldType = "parent_notes"
	FieldInternalNotes FieldType = "internal_notes"
	FieldSocializeWith FieldType = "socialize_with"
)

// RequiresExtraction reports whether the field's content needs an AI pass.
func (f FieldType) RequiresExtraction() bool {
	return f != FieldSocializeWith
}

// AllFieldTypes lists every intake field in processing order.
func AllFieldTypes() []FieldType {
	return []FieldType{
		FieldBunkRequest,
		FieldBunkAvoid,
		FieldParentNotes,
		FieldInternalNotes,
		FieldSocializeWith,
	}
}

// OriginalRequest is one raw intake submission, immutable except for the
// processed timestamp. The content hash enables skip-if-unchanged
// reprocessing so AI spend is bounded.
type OriginalRequest struct {
	CreatedAt           time.Time
	ProcessedAt         *time.Time
	RequesterExternalID string
	RawText             string
	ContentHash         string
	ProcessedHash       string
	FieldType           FieldType
	ID                  int64
	Year                int
}

// GenerateHash computes the content hash used for idempotent reprocessing.
func (r *OriginalRequest) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%d:%s", r.RequesterExternalID, r.FieldType, r.Year, r.RawText)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}

// NeedsProcessing reports whether the pipeline must re-run this submission.
func (r *OriginalRequest) NeedsProcessing() bool {
	return r.ProcessedAt == nil || r.ProcessedHash != r.ContentHash
}

// RequestType classifies what a resolved request asks for.
type RequestType string

// Request type constants.
const (
	RequestBunkWith      RequestType = "bunk_with"
	RequestNotBunkWith   RequestType = "not_bunk_with"
	RequestAgePreference RequestType = "age_preference"
)

// RequestStatus is the lifecycle status of a resolved request.
type RequestStatus string

// Request status constants.
const (
	StatusPending  RequestStatus = "pending"
	StatusResolved RequestStatus = "resolved"
	StatusDeclined RequestStatus = "declined"
)

// ParseState tracks a request's position in the parsing state machine.
type ParseState string

// Parse state constants, in pipeline order.
const (
	StateUnparsed        ParseState = "unparsed"
	StateAIParsed        ParseState = "ai_parsed"
	StateLocallyMatched  ParseState = "locally_matched"
	StateAIDisambiguated ParseState = "ai_disambiguated"
	StateResolved        ParseState = "resolved"
	StatePending         ParseState = "pending"
	StateManualReview    ParseState = "manual_review"
)

// parseTransitions enumerates the legal state machine edges.
var parseTransitions = map[ParseState][]ParseState{
	StateUnparsed:        {StateAIParsed, StateLocallyMatched, StateManualReview},
	StateAIParsed:        {StateLocallyMatched, StateManualReview},
	StateLocallyMatched:  {StateAIDisambiguated, StateResolved, StatePending, StateManualReview},
	StateAIDisambiguated: {StateResolved, StatePending, StateManualReview},
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s ParseState) CanTransition(next ParseState) bool {
	for _, t := range parseTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state ends the pipeline for a request.
func (s ParseState) IsTerminal() bool {
	switch s {
	case StateResolved, StatePending, StateManualReview:
		return true
	default:
		return false
	}
}

// ConfidenceLevel buckets a confidence score into a human-readable tier.
type ConfidenceLevel string

// Confidence level constants.
const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ResolvedRequest is the canonical person-to-person bunking request produced
// by the pipeline. Requestee is empty for pure age-preference requests.
// MergedIntoID is the self-referential soft-delete pointer: zero while the
// request is active, and the id of the absorbing request once merged.
type ResolvedRequest struct {
	CreatedAt            time.Time
	UpdatedAt            time.Time
	RequesterExternalID  string
	RequesteeExternalID  string
	SessionID            string
	SourceField          FieldType
	SourceCategory       string
	Type                 RequestType
	Status               RequestStatus
	State                ParseState
	Level                ConfidenceLevel
	Explanation          string
	AuditTrail           string
	ID                   int64
	MergedIntoID         int64
	Year                 int
	Priority             int
	Confidence           float64
	RequiresManualReview bool
	IsReciprocal         bool
	CanBeDropped         bool
	IsActive             bool
	Locked               bool
}

// IsMerged reports whether the request has been absorbed into another.
func (r *ResolvedRequest) IsMerged() bool {
	return r.MergedIntoID != 0
}

// DedupeKey returns the uniqueness key for a resolved request. Two rows may
// never share it; duplicate inserts are idempotent no-ops.
func (r *ResolvedRequest) DedupeKey() string {
	return fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		r.RequesterExternalID, r.RequesteeExternalID, r.Type, r.Year, r.SessionID, r.SourceField)
}

// RequestSource links a ResolvedRequest to a contributing OriginalRequest,
// preserving the full audit trail across merges and splits.
type RequestSource struct {
	ID                int64
	ResolvedRequestID int64
	OriginalRequestID int64
	IsPrimary         bool
}
