package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/llm"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/names"
	"github.com/campwire/bunkmate/internal/service"
)

// maxDisambiguationCandidates bounds the candidate set sent back to the AI
// in Phase 3.
const maxDisambiguationCandidates = 5

// Pipeline converts raw intake submissions into resolved requests through
// three phases: AI extraction, local name matching, and AI disambiguation.
type Pipeline struct {
	storage   service.Storage
	client    llm.Client
	cfg       *config.Snapshot
	logger    *slog.Logger
	retryOpts service.RetryOptions
}

// New creates a pipeline. The configuration snapshot is captured by the
// caller at run start; the pipeline never re-reads live configuration.
func New(storage service.Storage, client llm.Client, cfg *config.Snapshot, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		storage: storage,
		client:  client,
		cfg:     cfg,
		logger:  logger,
		retryOpts: service.RetryOptions{
			MaxAttempts:  cfg.Int("pipeline", "retry", "max_attempts"),
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Run processes every submission for the year that changed since its last
// run. A single submission's failure downgrades only that submission; the
// batch always continues.
func (p *Pipeline) Run(ctx context.Context, year int) (*service.PipelineStats, error) {
	start := time.Now()
	stats := &service.PipelineStats{}

	submissions, err := p.storage.GetOriginalRequestsByYear(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}
	stats.TotalSubmissions = len(submissions)

	var pending []model.OriginalRequest
	for _, sub := range submissions {
		if sub.NeedsProcessing() {
			pending = append(pending, sub)
		} else {
			stats.Skipped++
		}
	}
	if len(pending) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	attendees, err := p.storage.GetAttendeesByYear(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load attendees: %w", err)
	}

	byPerson := make(map[string][]model.Attendee)
	for _, a := range attendees {
		byPerson[a.Person.ExternalID] = append(byPerson[a.Person.ExternalID], a)
	}

	graph, err := p.buildGraph(ctx, year, attendees)
	if err != nil {
		return nil, fmt.Errorf("failed to build relationship graph: %w", err)
	}
	resolver := names.NewResolver(p.cfg, graph)

	batchSize := int64(p.cfg.Int("pipeline", "batch", "size"))
	sem := semaphore.NewWeighted(batchSize)
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for _, sub := range pending {
		sub := sub
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			result := p.processSubmission(gctx, &sub, byPerson, attendees, resolver)

			mu.Lock()
			stats.Extracted += result.extracted
			stats.AutoResolved += result.autoResolved
			stats.Disambiguated += result.disambiguated
			stats.ManualReview += result.manualReview
			stats.AICalls += result.aiCalls
			if result.failed {
				stats.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	if err := p.reconcileReciprocals(ctx, year); err != nil {
		return stats, fmt.Errorf("failed to reconcile reciprocal requests: %w", err)
	}

	stats.Duration = time.Since(start)
	p.logger.Info("pipeline run complete",
		"year", year,
		"total", stats.TotalSubmissions,
		"skipped", stats.Skipped,
		"auto_resolved", stats.AutoResolved,
		"manual_review", stats.ManualReview,
		"ai_calls", stats.AICalls,
		"failed", stats.Failed)
	return stats, nil
}

type submissionResult struct {
	extracted     int
	autoResolved  int
	disambiguated int
	manualReview  int
	aiCalls       int
	failed        bool
}

// processSubmission runs one raw submission through the phase machine.
func (p *Pipeline) processSubmission(ctx context.Context, sub *model.OriginalRequest, byPerson map[string][]model.Attendee, pool []model.Attendee, resolver *names.Resolver) submissionResult {
	var result submissionResult

	requester, ok := requesterContext(byPerson[sub.RequesterExternalID])
	if !ok {
		p.logger.Warn("submission requester not found in attendee pool",
			"requester", sub.RequesterExternalID,
			"field", sub.FieldType)
		result.failed = true
		return result
	}

	var audit auditTrail
	state := model.StateUnparsed

	// Phase 1: AI extraction, or direct mapping for structured fields.
	var intents []llm.Intent
	if sub.FieldType.RequiresExtraction() {
		var err error
		intents, err = p.extract(ctx, sub)
		result.aiCalls++
		if err != nil {
			p.logger.Warn("extraction failed, downgrading to manual review",
				"requester", sub.RequesterExternalID,
				"field", sub.FieldType,
				"error", err)
			audit.add(state, model.StateManualReview, "extraction failed: "+err.Error())
			p.saveFallbackRequest(ctx, sub, requester, audit.String())
			p.markProcessed(ctx, sub)
			result.failed = true
			result.manualReview++
			return result
		}
		state = audit.add(state, model.StateAIParsed, fmt.Sprintf("%d intents extracted", len(intents)))
	} else {
		// socialize_with carries a direct person reference, no AI cost.
		intents = []llm.Intent{{
			TargetName: sub.RawText,
			Relation:   model.RequestBunkWith,
			Strength:   1,
			Confidence: 1,
			Reasoning:  "structured socialize_with value",
		}}
	}
	result.extracted = len(intents)

	for _, intent := range intents {
		outcome := p.resolveIntent(ctx, sub, requester, pool, resolver, intent, audit, state)
		result.aiCalls += outcome.aiCalls
		if outcome.disambiguated {
			result.disambiguated++
		}
		switch {
		case outcome.manualReview:
			result.manualReview++
		default:
			result.autoResolved++
		}
	}

	p.markProcessed(ctx, sub)
	return result
}

type intentOutcome struct {
	aiCalls       int
	disambiguated bool
	manualReview  bool
}

// resolveIntent runs Phases 2 and 3 for one extracted intent and persists
// the resulting request.
func (p *Pipeline) resolveIntent(ctx context.Context, sub *model.OriginalRequest, requester model.Attendee, pool []model.Attendee, resolver *names.Resolver, intent llm.Intent, audit auditTrail, state model.ParseState) intentOutcome {
	var out intentOutcome

	req := model.ResolvedRequest{
		RequesterExternalID: sub.RequesterExternalID,
		SessionID:           requester.SessionID,
		SourceField:         sub.FieldType,
		SourceCategory:      categoryForField(sub.FieldType),
		Type:                intent.Relation,
		Year:                sub.Year,
		Priority:            priorityFromStrength(intent.Strength),
		CanBeDropped:        intent.Relation == model.RequestBunkWith && intent.Strength < 0.5,
		IsActive:            true,
	}

	// Pure age preferences carry no requestee and skip name matching.
	if intent.Relation == model.RequestAgePreference {
		confidence := intent.Confidence
		status, review := Outcome(p.cfg, confidence)
		finalState := stateForOutcome(status, review)
		state = audit.add(state, model.StateLocallyMatched, "age preference, no target")
		audit.add(state, finalState, "")

		req.Status = status
		req.State = finalState
		req.RequiresManualReview = review
		req.Confidence = confidence
		req.Level = Level(p.cfg, confidence)
		req.Explanation = intent.Reasoning
		req.AuditTrail = audit.String()
		p.persist(ctx, &req, sub)
		out.manualReview = review
		return out
	}

	// Phase 2: local match against the requester's candidate pool.
	resolution := resolver.Resolve(intent.TargetName, requester, pool)
	state = audit.add(state, model.StateLocallyMatched,
		fmt.Sprintf("%d candidates for %q", len(resolution.Candidates), intent.TargetName))

	var chosen *names.Candidate
	nameScore := 0.0
	unresolvedGuess := false

	switch resolution.Outcome {
	case names.OutcomeAuto:
		chosen = resolution.Best
		nameScore = resolution.Best.Confidence
	case names.OutcomeAmbiguous:
		// Phase 3: send the narrowed set back to the AI.
		out.aiCalls++
		out.disambiguated = true
		choice, err := p.disambiguate(ctx, sub, requester, intent, resolution.Candidates)
		state = audit.add(state, model.StateAIDisambiguated, "")
		if err == nil && choice.Resolved {
			for i := range resolution.Candidates {
				if resolution.Candidates[i].Person.ExternalID == choice.ChosenExternalID {
					chosen = &resolution.Candidates[i]
					nameScore = math.Max(resolution.Candidates[i].Confidence, choice.Confidence)
					break
				}
			}
			if chosen != nil {
				audit.note("ai chose " + choice.ChosenExternalID + ": " + choice.Reasoning)
			}
		} else if err != nil {
			audit.note("disambiguation failed: " + err.Error())
		} else {
			audit.note("ai could not resolve: " + choice.Reasoning)
		}
		if chosen == nil && resolution.Best != nil {
			// Keep the best local guess for the reviewer.
			chosen = resolution.Best
			nameScore = resolution.Best.Confidence * 0.5
			unresolvedGuess = true
		}
	case names.OutcomeNoMatch:
		if len(resolution.Candidates) > 0 {
			audit.note("no candidate above the resolve threshold")
		} else {
			audit.note("no candidates matched")
		}
	}

	signals := Signals{
		NameScore:       nameScore,
		ExtractionScore: intent.Confidence,
	}
	if chosen != nil {
		req.RequesteeExternalID = chosen.Person.ExternalID
		signals.ContextScore = contextScore(chosen, requester)
		signals.Reciprocal = p.hasInverseRequest(ctx, chosen.Person.ExternalID, sub.RequesterExternalID, requester.SessionID, sub.Year)
	}

	confidence := Combine(p.cfg, signals)
	status, review := Outcome(p.cfg, confidence)
	if chosen == nil || unresolvedGuess {
		// An unresolved reference never auto-resolves, whatever the score.
		status, review = model.StatusPending, true
	}
	finalState := stateForOutcome(status, review)
	audit.add(state, finalState, "")

	req.Status = status
	req.State = finalState
	req.RequiresManualReview = review
	req.IsReciprocal = signals.Reciprocal
	req.Confidence = confidence
	req.Level = Level(p.cfg, confidence)
	req.Explanation = Explain(signals, confidence) + "; " + intent.Reasoning
	req.AuditTrail = audit.String()

	p.persist(ctx, &req, sub)
	out.manualReview = review
	return out
}

// extract calls the AI provider with retry; transient provider errors back
// off exponentially before giving up.
func (p *Pipeline) extract(ctx context.Context, sub *model.OriginalRequest) ([]llm.Intent, error) {
	var intents []llm.Intent
	err := common.WithRetry(ctx, func() error {
		var err error
		intents, err = p.client.Extract(ctx, sub.RawText, sub.FieldType)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: true}
		}
		return nil
	}, p.retryOpts)
	return intents, err
}

func (p *Pipeline) disambiguate(ctx context.Context, sub *model.OriginalRequest, requester model.Attendee, intent llm.Intent, candidates []names.Candidate) (llm.DisambiguationResult, error) {
	if len(candidates) > maxDisambiguationCandidates {
		candidates = candidates[:maxDisambiguationCandidates]
	}

	options := make([]llm.CandidateOption, len(candidates))
	for i, c := range candidates {
		options[i] = llm.CandidateOption{
			ExternalID: c.Person.ExternalID,
			Name:       c.Person.DisplayName(),
			School:     c.Person.School,
			SessionID:  c.SessionID,
			Grade:      c.Person.Grade,
			Confidence: c.Confidence,
		}
	}

	request := llm.DisambiguationRequest{
		RawReference:  intent.TargetName,
		OriginalText:  sub.RawText,
		RequesterName: requester.Person.DisplayName(),
		SessionName:   requester.SessionID,
		Candidates:    options,
	}

	var result llm.DisambiguationResult
	err := common.WithRetry(ctx, func() error {
		var err error
		result, err = p.client.Disambiguate(ctx, request)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: true}
		}
		return nil
	}, p.retryOpts)
	return result, err
}

// persist upserts the resolved request and links its source submission.
// Duplicate-key collisions are idempotent no-ops handled by storage.
func (p *Pipeline) persist(ctx context.Context, req *model.ResolvedRequest, sub *model.OriginalRequest) {
	id, err := p.storage.UpsertResolvedRequest(ctx, req)
	if err != nil {
		p.logger.Error("failed to persist resolved request",
			"requester", req.RequesterExternalID,
			"requestee", req.RequesteeExternalID,
			"error", err)
		return
	}
	if err := p.storage.LinkRequestSource(ctx, &model.RequestSource{
		ResolvedRequestID: id,
		OriginalRequestID: sub.ID,
	}); err != nil {
		p.logger.Error("failed to link request source", "resolved_id", id, "error", err)
	}
}

// saveFallbackRequest records a manual-review placeholder when extraction
// fails outright, so the submission is never silently dropped.
func (p *Pipeline) saveFallbackRequest(ctx context.Context, sub *model.OriginalRequest, requester model.Attendee, audit string) {
	req := model.ResolvedRequest{
		RequesterExternalID:  sub.RequesterExternalID,
		SessionID:            requester.SessionID,
		SourceField:          sub.FieldType,
		SourceCategory:       categoryForField(sub.FieldType),
		Type:                 model.RequestBunkWith,
		Status:               model.StatusPending,
		State:                model.StateManualReview,
		Year:                 sub.Year,
		Priority:             1,
		Level:                model.ConfidenceLow,
		Explanation:          "AI extraction failed; needs manual review",
		AuditTrail:           audit,
		RequiresManualReview: true,
		IsActive:             true,
	}
	p.persist(ctx, &req, sub)
}

func (p *Pipeline) markProcessed(ctx context.Context, sub *model.OriginalRequest) {
	if err := p.storage.MarkOriginalRequestProcessed(ctx, sub.ID, sub.ContentHash, time.Now()); err != nil {
		p.logger.Error("failed to mark submission processed", "id", sub.ID, "error", err)
	}
}

// hasInverseRequest reports whether the proposed requestee already has an
// active bunk_with request aimed back at the requester.
func (p *Pipeline) hasInverseRequest(ctx context.Context, requestee, requester, sessionID string, year int) bool {
	inverse, err := p.storage.GetResolvedRequests(ctx, service.RequestFilter{
		Requester: requestee,
		SessionID: sessionID,
		Year:      year,
	})
	if err != nil {
		return false
	}
	for _, r := range inverse {
		if r.Type == model.RequestBunkWith && r.RequesteeExternalID == requester {
			return true
		}
	}
	return false
}

// reconcileReciprocals makes the reciprocal bonus symmetric: the first of a
// mutual pair was scored before its inverse existed, so it is re-marked and
// re-scored after the batch.
func (p *Pipeline) reconcileReciprocals(ctx context.Context, year int) error {
	requests, err := p.storage.GetResolvedRequests(ctx, service.RequestFilter{Year: year})
	if err != nil {
		return err
	}

	type pairKey struct {
		a, b, session string
	}
	wants := make(map[pairKey]bool)
	for _, r := range requests {
		if r.Type == model.RequestBunkWith && r.RequesteeExternalID != "" {
			wants[pairKey{r.RequesterExternalID, r.RequesteeExternalID, r.SessionID}] = true
		}
	}

	bonus := p.cfg.Float("pipeline", "confidence", "reciprocal_bonus")
	for i := range requests {
		r := &requests[i]
		if r.Type != model.RequestBunkWith || r.RequesteeExternalID == "" || r.IsReciprocal {
			continue
		}
		if !wants[pairKey{r.RequesteeExternalID, r.RequesterExternalID, r.SessionID}] {
			continue
		}

		r.IsReciprocal = true
		r.Confidence = math.Min(1, r.Confidence+bonus)
		r.Level = Level(p.cfg, r.Confidence)
		status, review := Outcome(p.cfg, r.Confidence)
		if r.Status != model.StatusDeclined {
			r.Status = status
			r.RequiresManualReview = review
			r.State = stateForOutcome(status, review)
		}
		if _, err := p.storage.UpsertResolvedRequest(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// buildGraph assembles the person-relationship graph: prior-year co-bunking,
// mutual requests already on file, and household links.
func (p *Pipeline) buildGraph(ctx context.Context, year int, attendees []model.Attendee) (*names.Graph, error) {
	g := names.NewGraph()

	prior, err := p.storage.GetProductionAssignmentsByYear(ctx, year-1)
	if err != nil {
		return nil, err
	}
	byBunk := make(map[string][]string)
	for _, a := range prior {
		key := fmt.Sprintf("%s|%d", a.SessionID, a.BunkPlanID)
		byBunk[key] = append(byBunk[key], a.PersonExternalID)
	}
	for _, members := range byBunk {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				g.AddEdge(members[i], members[j], names.EdgeCoBunked)
			}
		}
	}

	byHousehold := make(map[string][]string)
	for _, a := range attendees {
		if a.Person.HouseholdID != "" {
			byHousehold[a.Person.HouseholdID] = append(byHousehold[a.Person.HouseholdID], a.Person.ExternalID)
		}
	}
	for _, members := range byHousehold {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				g.AddEdge(members[i], members[j], names.EdgeSharedConnection)
			}
		}
	}

	requests, err := p.storage.GetResolvedRequests(ctx, service.RequestFilter{Year: year})
	if err != nil {
		return nil, err
	}
	directed := make(map[string]bool)
	for _, r := range requests {
		if r.Type == model.RequestBunkWith && r.RequesteeExternalID != "" {
			directed[r.RequesterExternalID+"|"+r.RequesteeExternalID] = true
		}
	}
	for _, r := range requests {
		if r.Type == model.RequestBunkWith && r.RequesteeExternalID != "" &&
			directed[r.RequesteeExternalID+"|"+r.RequesterExternalID] {
			g.AddEdge(r.RequesterExternalID, r.RequesteeExternalID, names.EdgeMutualRequest)
		}
	}

	return g, nil
}

// requesterContext picks the attendee record anchoring resolution: the
// enrolled record with the lexically first session, for determinism.
func requesterContext(records []model.Attendee) (model.Attendee, bool) {
	if len(records) == 0 {
		return model.Attendee{}, false
	}
	sorted := append([]model.Attendee(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SessionID < sorted[j].SessionID })
	for _, a := range sorted {
		if a.IsEnrolled() {
			return a, true
		}
	}
	return sorted[0], true
}

// contextScore weighs current-year evidence: a candidate in the requester's
// session is strong evidence, same-year elsewhere weaker, prior-year-only
// weaker still.
func contextScore(c *names.Candidate, requester model.Attendee) float64 {
	switch {
	case c.Enrolled && c.SessionID == requester.SessionID:
		return 1.0
	case c.Enrolled:
		return 0.7
	default:
		return 0.3
	}
}

func categoryForField(f model.FieldType) string {
	switch f {
	case model.FieldInternalNotes:
		return "staff"
	case model.FieldSocializeWith:
		return "camper"
	default:
		return "parent"
	}
}

func priorityFromStrength(strength float64) int {
	p := 1 + int(math.Round(strength*4))
	if p < 1 {
		p = 1
	}
	if p > 5 {
		p = 5
	}
	return p
}

func stateForOutcome(status model.RequestStatus, review bool) model.ParseState {
	switch {
	case review:
		return model.StateManualReview
	case status == model.StatusResolved:
		return model.StateResolved
	default:
		return model.StatePending
	}
}

// auditTrail accumulates the per-request state machine history.
type auditTrail struct {
	entries []string
}

func (a *auditTrail) add(from, to model.ParseState, note string) model.ParseState {
	entry := fmt.Sprintf("%s→%s", from, to)
	if note != "" {
		entry += ": " + note
	}
	a.entries = append(a.entries, entry)
	return to
}

func (a *auditTrail) note(note string) {
	a.entries = append(a.entries, note)
}

func (a *auditTrail) String() string {
	return strings.Join(a.entries, "; ")
}
