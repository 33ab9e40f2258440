package forms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrDraftNotFound   = errors.New("DRAFT_NOT_FOUND")
	ErrVersionConflict = errors.New("VERSION_CONFLICT")
	ErrDraftSubmitted  = errors.New("DRAFT_ALREADY_SUBMITTED")
	ErrDraftSubmitting = errors.New("SUBMISSION_IN_PROGRESS")
)

// Migrations creates the draft table.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS form_drafts (
		id           TEXT PRIMARY KEY,
		template_id  TEXT NOT NULL,
		owner        TEXT NOT NULL DEFAULT '',
		document     JSONB NOT NULL,
		version      INTEGER NOT NULL,
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		submitted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS form_drafts_template_idx ON form_drafts (template_id)`,
}

// DraftStore persists drafts in Postgres. Updates are guarded by the draft
// version.
type DraftStore struct {
	db *sql.DB
}

func NewDraftStore(db *sql.DB) *DraftStore {
	return &DraftStore{db: db}
}

func (s *DraftStore) Insert(ctx context.Context, d *Draft) error {
	doc, err := json.Marshal(d.Document)
	if err != nil {
		return fmt.Errorf("encode draft document: %w", err)
	}
	query := `INSERT INTO form_drafts (id, template_id, owner, document, version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := s.db.ExecContext(ctx, query,
		d.ID, d.TemplateID, d.Owner, doc, d.Version, d.Status, d.CreatedAt, d.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

func (s *DraftStore) Get(ctx context.Context, id string) (*Draft, error) {
	query := `SELECT id, template_id, owner, document, version, status, created_at, updated_at, submitted_at
		FROM form_drafts WHERE id = $1`

	var (
		d           Draft
		doc         []byte
		submittedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.TemplateID, &d.Owner, &doc, &d.Version, &d.Status, &d.CreatedAt, &d.UpdatedAt, &submittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("select draft: %w", err)
	}
	if err := json.Unmarshal(doc, &d.Document); err != nil {
		return nil, fmt.Errorf("decode draft document: %w", err)
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		d.SubmittedAt = &t
	}
	return &d, nil
}

// UpdateDocument stores doc if the draft is still at version and not yet
// submitted. It returns the new version.
func (s *DraftStore) UpdateDocument(ctx context.Context, id string, version int, doc map[string]interface{}, at time.Time) (int, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode draft document: %w", err)
	}
	query := `UPDATE form_drafts SET document = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4 AND status = 'draft'
		RETURNING version`

	var next int
	err = s.db.QueryRowContext(ctx, query, data, at, id, version).Scan(&next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, s.explainMiss(ctx, id)
		}
		return 0, fmt.Errorf("update draft: %w", err)
	}
	return next, nil
}

// ClaimSubmission moves a draft at version into the submitting state, so
// exactly one caller sends it to the backend. A claim last touched before
// staleBefore is taken over.
func (s *DraftStore) ClaimSubmission(ctx context.Context, id string, version int, at, staleBefore time.Time) error {
	query := `UPDATE form_drafts SET status = 'submitting', updated_at = $1
		WHERE id = $2 AND version = $3
		AND (status = 'draft' OR (status = 'submitting' AND updated_at < $4))
		RETURNING version`

	var v int
	err := s.db.QueryRowContext(ctx, query, at, id, version, staleBefore).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.explainMiss(ctx, id)
		}
		return fmt.Errorf("claim draft: %w", err)
	}
	return nil
}

// ReleaseSubmission returns a claimed draft to the editable state.
func (s *DraftStore) ReleaseSubmission(ctx context.Context, id string, version int, at time.Time) error {
	query := `UPDATE form_drafts SET status = 'draft', updated_at = $1
		WHERE id = $2 AND version = $3 AND status = 'submitting'`

	res, err := s.db.ExecContext(ctx, query, at, id, version)
	if err != nil {
		return fmt.Errorf("release draft: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.explainMiss(ctx, id)
	}
	return nil
}

// MarkSubmitted moves a claimed draft at version to the submitted state.
func (s *DraftStore) MarkSubmitted(ctx context.Context, id string, version int, at time.Time) (int, error) {
	query := `UPDATE form_drafts SET status = 'submitted', version = version + 1, updated_at = $1, submitted_at = $1
		WHERE id = $2 AND version = $3 AND status = 'submitting'
		RETURNING version`

	var next int
	err := s.db.QueryRowContext(ctx, query, at, id, version).Scan(&next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, s.explainMiss(ctx, id)
		}
		return 0, fmt.Errorf("mark draft submitted: %w", err)
	}
	return next, nil
}

// explainMiss tells apart the reasons a guarded update matched no row.
func (s *DraftStore) explainMiss(ctx context.Context, id string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch d.Status {
	case StatusSubmitted:
		return ErrDraftSubmitted
	case StatusSubmitting:
		return ErrDraftSubmitting
	}
	return ErrVersionConflict
}
