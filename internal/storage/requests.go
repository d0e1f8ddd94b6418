package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/service"
)

// SaveOriginalRequests upserts raw submissions keyed by (requester, field,
// year). Re-importing an unchanged submission leaves its processed state
// alone; a changed text resets the content hash so the pipeline picks it up.
func (q *queries) SaveOriginalRequests(ctx context.Context, requests []model.OriginalRequest) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(requests) == 0 {
		return fmt.Errorf("%w: requests", ErrEmptySlice)
	}

	for i := range requests {
		r := &requests[i]
		if r.RequesterExternalID == "" || r.FieldType == "" {
			return fmt.Errorf("%w: submission missing identity", ErrInvalidRequest)
		}
		if r.ContentHash == "" {
			r.ContentHash = r.GenerateHash()
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO original_requests (requester_external_id, field_type, year, raw_text, content_hash)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (requester_external_id, field_type, year) DO UPDATE SET
				raw_text = excluded.raw_text,
				content_hash = excluded.content_hash`,
			r.RequesterExternalID, r.FieldType, r.Year, r.RawText, r.ContentHash)
		if err != nil {
			return fmt.Errorf("failed to save submission for %s: %w", r.RequesterExternalID, err)
		}
	}
	return nil
}

// SaveOriginalRequests on the root storage runs the batch atomically.
func (s *SQLiteStorage) SaveOriginalRequests(ctx context.Context, requests []model.OriginalRequest) error {
	return s.withTx(ctx, func(q *queries) error {
		return q.SaveOriginalRequests(ctx, requests)
	})
}

// GetOriginalRequest fetches one submission by id.
func (q *queries) GetOriginalRequest(ctx context.Context, id int64) (*model.OriginalRequest, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx, `
		SELECT id, requester_external_id, field_type, year, raw_text, content_hash, processed_hash, created_at, processed_at
		FROM original_requests WHERE id = ?`, id)

	r, err := scanOriginalRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("submission %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return r, nil
}

// GetOriginalRequestsByYear returns every submission for a year.
func (q *queries) GetOriginalRequestsByYear(ctx context.Context, year int) ([]model.OriginalRequest, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, requester_external_id, field_type, year, raw_text, content_hash, processed_hash, created_at, processed_at
		FROM original_requests WHERE year = ? ORDER BY id`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.OriginalRequest
	for rows.Next() {
		r, err := scanOriginalRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// MarkOriginalRequestProcessed records the hash the pipeline last handled.
func (q *queries) MarkOriginalRequestProcessed(ctx context.Context, id int64, contentHash string, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := q.db.ExecContext(ctx, `
		UPDATE original_requests SET processed_hash = ?, processed_at = ? WHERE id = ?`,
		contentHash, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark submission processed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func scanOriginalRequest(row rowScanner) (*model.OriginalRequest, error) {
	var r model.OriginalRequest
	var processedHash sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(&r.ID, &r.RequesterExternalID, &r.FieldType, &r.Year,
		&r.RawText, &r.ContentHash, &processedHash, &r.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	r.ProcessedHash = processedHash.String
	if processedAt.Valid {
		r.ProcessedAt = &processedAt.Time
	}
	return &r, nil
}

const resolvedRequestColumns = `id, requester_external_id, requestee_external_id, session_id, source_field,
	source_category, type, status, state, level, explanation, audit_trail, merged_into_id, year, priority,
	confidence, requires_manual_review, is_reciprocal, can_be_dropped, is_active, locked, created_at, updated_at`

// UpsertResolvedRequest writes a resolved request, idempotent on the
// uniqueness key. Locked rows are never overwritten by pipeline reruns; the
// existing id is returned unchanged. An explicit ID updates that row
// directly.
func (q *queries) UpsertResolvedRequest(ctx context.Context, request *model.ResolvedRequest) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateResolvedRequest(request); err != nil {
		return 0, err
	}

	if request.ID != 0 {
		return request.ID, q.updateResolvedRequest(ctx, request)
	}

	var existingID int64
	var locked bool
	err := q.db.QueryRowContext(ctx, `
		SELECT id, locked FROM resolved_requests
		WHERE requester_external_id = ? AND requestee_external_id = ? AND type = ?
		  AND year = ? AND session_id = ? AND source_field = ?`,
		request.RequesterExternalID, request.RequesteeExternalID, request.Type,
		request.Year, request.SessionID, request.SourceField).Scan(&existingID, &locked)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, insertErr := q.db.ExecContext(ctx, `
			INSERT INTO resolved_requests (requester_external_id, requestee_external_id, session_id, source_field,
				source_category, type, status, state, level, explanation, audit_trail, merged_into_id, year, priority,
				confidence, requires_manual_review, is_reciprocal, can_be_dropped, is_active, locked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			request.RequesterExternalID, request.RequesteeExternalID, request.SessionID, request.SourceField,
			request.SourceCategory, request.Type, request.Status, request.State, request.Level,
			request.Explanation, request.AuditTrail, request.MergedIntoID, request.Year, request.Priority,
			request.Confidence, request.RequiresManualReview, request.IsReciprocal, request.CanBeDropped,
			request.IsActive, request.Locked)
		if insertErr != nil {
			return 0, fmt.Errorf("failed to insert resolved request: %w", insertErr)
		}
		id, idErr := result.LastInsertId()
		if idErr != nil {
			return 0, fmt.Errorf("failed to read inserted id: %w", idErr)
		}
		request.ID = id
		return id, nil
	case err != nil:
		return 0, fmt.Errorf("failed to check for existing request: %w", err)
	case locked:
		request.ID = existingID
		return existingID, nil
	default:
		request.ID = existingID
		return existingID, q.updateResolvedRequest(ctx, request)
	}
}

func (q *queries) updateResolvedRequest(ctx context.Context, request *model.ResolvedRequest) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE resolved_requests SET
			requestee_external_id = ?, source_category = ?, status = ?, state = ?, level = ?,
			explanation = ?, audit_trail = ?, priority = ?, confidence = ?,
			requires_manual_review = ?, is_reciprocal = ?, can_be_dropped = ?, is_active = ?, locked = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		request.RequesteeExternalID, request.SourceCategory, request.Status, request.State, request.Level,
		request.Explanation, request.AuditTrail, request.Priority, request.Confidence,
		request.RequiresManualReview, request.IsReciprocal, request.CanBeDropped, request.IsActive, request.Locked,
		request.ID)
	if err != nil {
		return fmt.Errorf("failed to update resolved request %d: %w", request.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("resolved request %d: %w", request.ID, common.ErrNotFound)
	}
	return nil
}

// UpsertResolvedRequest on the root storage runs check-then-write atomically.
func (s *SQLiteStorage) UpsertResolvedRequest(ctx context.Context, request *model.ResolvedRequest) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(q *queries) error {
		var txErr error
		id, txErr = q.UpsertResolvedRequest(ctx, request)
		return txErr
	})
	return id, err
}

// GetResolvedRequest fetches one request by id, merged or not.
func (q *queries) GetResolvedRequest(ctx context.Context, id int64) (*model.ResolvedRequest, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx,
		`SELECT `+resolvedRequestColumns+` FROM resolved_requests WHERE id = ?`, id)
	r, err := scanResolvedRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resolved request %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get resolved request: %w", err)
	}
	return r, nil
}

// GetResolvedRequests returns requests matching the filter. Merged rows are
// hidden unless the filter asks for them.
func (q *queries) GetResolvedRequests(ctx context.Context, filter service.RequestFilter) ([]model.ResolvedRequest, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any
	if !filter.IncludeMerged {
		conditions = append(conditions, "merged_into_id = 0")
	}
	if filter.Year != 0 {
		conditions = append(conditions, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Requester != "" {
		conditions = append(conditions, "requester_external_id = ?")
		args = append(args, filter.Requester)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ReviewOnly {
		conditions = append(conditions, "requires_manual_review = 1")
	}

	query := `SELECT ` + resolvedRequestColumns + ` FROM resolved_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolved requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ResolvedRequest
	for rows.Next() {
		r, err := scanResolvedRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolved request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRequestStatus moves a request's status and parse state together.
func (q *queries) UpdateRequestStatus(ctx context.Context, id int64, status model.RequestStatus, state model.ParseState) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := q.db.ExecContext(ctx, `
		UPDATE resolved_requests SET status = ?, state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, state, id)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("resolved request %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// SetMergePointer absorbs one request into another. Pointers never chain:
// the target must itself be unmerged.
func (q *queries) SetMergePointer(ctx context.Context, id, targetID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if id == targetID {
		return fmt.Errorf("request %d cannot merge into itself: %w", id, common.ErrMergeCycle)
	}

	var targetMerged int64
	err := q.db.QueryRowContext(ctx,
		`SELECT merged_into_id FROM resolved_requests WHERE id = ?`, targetID).Scan(&targetMerged)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("merge target %d: %w", targetID, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check merge target: %w", err)
	}
	if targetMerged != 0 {
		return fmt.Errorf("merge target %d is itself merged: %w", targetID, common.ErrMergeCycle)
	}

	result, err := q.db.ExecContext(ctx, `
		UPDATE resolved_requests SET merged_into_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		targetID, id)
	if err != nil {
		return fmt.Errorf("failed to set merge pointer: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("resolved request %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// ClearMergePointer restores a merged request to independent visibility.
func (q *queries) ClearMergePointer(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := q.db.ExecContext(ctx, `
		UPDATE resolved_requests SET merged_into_id = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to clear merge pointer: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("resolved request %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// LinkRequestSource records provenance. The first source linked to a request
// becomes its primary; duplicates are idempotent no-ops.
func (q *queries) LinkRequestSource(ctx context.Context, source *model.RequestSource) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if source == nil {
		return fmt.Errorf("%w: source", ErrNilParameter)
	}

	var existing int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM request_sources WHERE resolved_request_id = ?`,
		source.ResolvedRequestID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to count existing sources: %w", err)
	}
	isPrimary := existing == 0

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO request_sources (resolved_request_id, original_request_id, is_primary)
		VALUES (?, ?, ?)
		ON CONFLICT (resolved_request_id, original_request_id) DO NOTHING`,
		source.ResolvedRequestID, source.OriginalRequestID, isPrimary)
	if err != nil {
		return fmt.Errorf("failed to link request source: %w", err)
	}
	source.IsPrimary = isPrimary
	return nil
}

// GetRequestSources returns a request's provenance links, primary first.
func (q *queries) GetRequestSources(ctx context.Context, resolvedRequestID int64) ([]model.RequestSource, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, resolved_request_id, original_request_id, is_primary
		FROM request_sources WHERE resolved_request_id = ?
		ORDER BY is_primary DESC, id`, resolvedRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query request sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RequestSource
	for rows.Next() {
		var s model.RequestSource
		if err := rows.Scan(&s.ID, &s.ResolvedRequestID, &s.OriginalRequestID, &s.IsPrimary); err != nil {
			return nil, fmt.Errorf("failed to scan request source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanResolvedRequest(row rowScanner) (*model.ResolvedRequest, error) {
	var r model.ResolvedRequest
	var requestee, category, level, explanation, audit sql.NullString
	err := row.Scan(&r.ID, &r.RequesterExternalID, &requestee, &r.SessionID, &r.SourceField,
		&category, &r.Type, &r.Status, &r.State, &level, &explanation, &audit,
		&r.MergedIntoID, &r.Year, &r.Priority, &r.Confidence,
		&r.RequiresManualReview, &r.IsReciprocal, &r.CanBeDropped, &r.IsActive, &r.Locked,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.RequesteeExternalID = requestee.String
	r.SourceCategory = category.String
	r.Level = model.ConfidenceLevel(level.String)
	r.Explanation = explanation.String
	r.AuditTrail = audit.String
	return &r, nil
}
