package forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "inspection-gateway/internal/common/errors"
	"inspection-gateway/internal/common/logger"
	"inspection-gateway/internal/common/metrics"
	"inspection-gateway/internal/pathupdate"
	"inspection-gateway/internal/proxy"

	"github.com/google/uuid"
)

// SubmitRoute names backend submissions in metrics, traces and errors.
const SubmitRoute = "forms-submit"

type TemplateSource interface {
	Get(ctx context.Context, id string) (*Template, error)
}

type DraftRepository interface {
	Insert(ctx context.Context, d *Draft) error
	Get(ctx context.Context, id string) (*Draft, error)
	UpdateDocument(ctx context.Context, id string, version int, doc map[string]interface{}, at time.Time) (int, error)
	ClaimSubmission(ctx context.Context, id string, version int, at, staleBefore time.Time) error
	ReleaseSubmission(ctx context.Context, id string, version int, at time.Time) error
	MarkSubmitted(ctx context.Context, id string, version int, at time.Time) (int, error)
}

type SubmissionArchive interface {
	Index(ctx context.Context, sub Submission) error
	Search(ctx context.Context, query string, page, size int) (*SearchResult, error)
}

// Backend sends one call to the business backend.
type Backend interface {
	Send(ctx context.Context, routeName string, out proxy.Outbound) (*proxy.Response, error)
}

type Config struct {
	SubmitTimeout time.Duration
}

// Service implements the draft lifecycle. Archive and Events are optional.
type Service struct {
	config    Config
	templates TemplateSource
	drafts    DraftRepository
	backend   Backend
	archive   SubmissionArchive
	events    EventPublisher
	logger    logger.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithArchive(a SubmissionArchive) Option {
	return func(s *Service) { s.archive = a }
}

func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

func NewService(config Config, templates TemplateSource, drafts DraftRepository, backend Backend, log logger.Logger, opts ...Option) *Service {
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = 30 * time.Second
	}
	s := &Service{
		config:    config,
		templates: templates,
		drafts:    drafts,
		backend:   backend,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Template returns the template with the given id.
func (s *Service) Template(ctx context.Context, id string) (*Template, error) {
	return s.templates.Get(ctx, id)
}

// CreateDraft starts a draft from a private copy of the template defaults.
func (s *Service) CreateDraft(ctx context.Context, templateID, owner string) (*Draft, error) {
	if templateID == "" {
		return nil, apperrors.NewInvalidRequestError("templateId is required")
	}
	tmpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}

	doc, _ := pathupdate.DeepCopy(tmpl.Defaults).(map[string]interface{})
	if doc == nil {
		doc = map[string]interface{}{}
	}
	now := s.now()
	d := &Draft{
		ID:         uuid.NewString(),
		TemplateID: tmpl.ID,
		Owner:      owner,
		Document:   doc,
		Version:    1,
		Status:     StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.drafts.Insert(ctx, d); err != nil {
		return nil, draftError("insert", d.ID, 0, err)
	}

	s.log(ctx).Info("draft created", map[string]interface{}{
		"draftId":    d.ID,
		"templateId": d.TemplateID,
	})
	return d, nil
}

func (s *Service) GetDraft(ctx context.Context, id string) (*Draft, error) {
	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, draftError("get", id, 0, err)
	}
	return d, nil
}

// PatchDraft replaces existing scalar values of the draft document. The
// changes are applied in order and stored only if all of them succeed and
// the draft is still at version.
func (s *Service) PatchDraft(ctx context.Context, id string, version int, changes []Change) (*Draft, error) {
	if len(changes) == 0 {
		return nil, apperrors.NewInvalidRequestError("at least one change is required")
	}

	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, draftError("get", id, version, err)
	}
	if err := lockedStatus(d); err != nil {
		return nil, err
	}
	if d.Version != version {
		return nil, apperrors.NewVersionConflictError(id, version)
	}

	var doc interface{} = d.Document
	for _, c := range changes {
		doc, err = pathupdate.UpdateLeaf(doc, c.Path, c.Value)
		if err != nil {
			metrics.FormPatches.WithLabelValues("draft", "rejected").Inc()
			return nil, PathError(err)
		}
	}

	now := s.now()
	next, err := s.drafts.UpdateDocument(ctx, id, version, doc.(map[string]interface{}), now)
	if err != nil {
		metrics.FormPatches.WithLabelValues("draft", "rejected").Inc()
		return nil, draftError("update", id, version, err)
	}
	metrics.FormPatches.WithLabelValues("draft", "applied").Inc()

	d.Document = doc.(map[string]interface{})
	d.Version = next
	d.UpdatedAt = now
	return d, nil
}

// Patch applies changes to a caller-supplied document without storing it.
// Unlike PatchDraft it may add object properties and replace containers.
func (s *Service) Patch(doc map[string]interface{}, changes []Change) (map[string]interface{}, error) {
	if doc == nil {
		return nil, apperrors.NewInvalidRequestError("document is required")
	}
	out := doc
	for _, c := range changes {
		next, err := pathupdate.UpdateDocument(out, c.Path, c.Value)
		if err != nil {
			metrics.FormPatches.WithLabelValues("stateless", "rejected").Inc()
			return nil, PathError(err)
		}
		out = next
	}
	if len(changes) == 0 {
		out, _ = pathupdate.DeepCopy(doc).(map[string]interface{})
	}
	metrics.FormPatches.WithLabelValues("stateless", "applied").Inc()
	return out, nil
}

// SubmitResult carries the backend answer to a submission. Accepted is false
// when the backend rejected the document; the draft then stays editable.
type SubmitResult struct {
	Draft    *Draft
	Backend  *proxy.Response
	Accepted bool
}

// SubmitDraft validates the draft document, claims the draft, posts it to
// the template's submit endpoint with the caller's headers and, once the
// backend accepts it, marks the draft submitted. A rejected or failed send
// releases the claim. Events and archiving are best effort.
func (s *Service) SubmitDraft(ctx context.Context, id string, header http.Header) (*SubmitResult, error) {
	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, draftError("get", id, 0, err)
	}
	if d.Status == StatusSubmitted {
		return nil, apperrors.NewDraftSubmittedError(id)
	}

	tmpl, err := s.templates.Get(ctx, d.TemplateID)
	if err != nil {
		return nil, err
	}
	result, err := tmpl.Validate(d.Document)
	if err != nil {
		return nil, apperrors.NewTemplateInvalidError(tmpl.ID, err)
	}
	if !result.Valid {
		metrics.FormSubmissions.WithLabelValues(tmpl.ID, "invalid").Inc()
		return nil, apperrors.NewValidationFailedError(result.Messages())
	}

	body, err := json.Marshal(d.Document)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("encode draft document: %w", err))
	}
	out := proxy.Outbound{
		Method: http.MethodPost,
		Path:   tmpl.SubmitPath,
		Header: submitHeader(header),
		Body:   body,
	}

	claimedAt := s.now()
	staleBefore := claimedAt.Add(-2 * s.config.SubmitTimeout)
	if err := s.drafts.ClaimSubmission(ctx, id, d.Version, claimedAt, staleBefore); err != nil {
		return nil, draftError("claim", id, d.Version, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.SubmitTimeout)
	defer cancel()
	resp, err := s.backend.Send(sendCtx, SubmitRoute, out)
	if err != nil {
		metrics.FormSubmissions.WithLabelValues(tmpl.ID, "failed").Inc()
		s.release(ctx, d)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.FormSubmissions.WithLabelValues(tmpl.ID, "rejected").Inc()
		s.log(ctx).Warn("backend rejected submission", map[string]interface{}{
			"draftId": id,
			"status":  resp.StatusCode,
		})
		s.release(ctx, d)
		return &SubmitResult{Draft: d, Backend: resp}, nil
	}

	at := s.now()
	next, err := s.drafts.MarkSubmitted(ctx, id, d.Version, at)
	if err != nil {
		metrics.FormSubmissions.WithLabelValues(tmpl.ID, "failed").Inc()
		return nil, draftError("submit", id, d.Version, err)
	}
	d.Status = StatusSubmitted
	d.Version = next
	d.UpdatedAt = at
	d.SubmittedAt = &at
	metrics.FormSubmissions.WithLabelValues(tmpl.ID, "accepted").Inc()

	s.publishSubmitted(ctx, d, resp.StatusCode)
	s.archiveSubmission(ctx, d, resp.StatusCode)

	s.log(ctx).Info("draft submitted", map[string]interface{}{
		"draftId":    d.ID,
		"templateId": d.TemplateID,
		"status":     resp.StatusCode,
	})
	return &SubmitResult{Draft: d, Backend: resp, Accepted: true}, nil
}

// SearchSubmissions queries the submission archive.
func (s *Service) SearchSubmissions(ctx context.Context, query string, page, size int) (*SearchResult, error) {
	if s.archive == nil {
		return nil, apperrors.NewSearchDisabledError()
	}
	res, err := s.archive.Search(ctx, query, page, size)
	if errors.Is(err, ErrSearchPageOutOfRange) {
		return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("page %d is beyond the searchable results", page))
	}
	if err != nil {
		return nil, apperrors.NewSearchFailedError(err)
	}
	return res, nil
}

func (s *Service) publishSubmitted(ctx context.Context, d *Draft, backendStatus int) {
	if s.events == nil {
		return
	}
	msgID, err := s.events.PublishJSON(ctx, EventFormSubmitted, SubmittedEvent{
		DraftID:       d.ID,
		TemplateID:    d.TemplateID,
		Owner:         d.Owner,
		Version:       d.Version,
		BackendStatus: backendStatus,
		SubmittedAt:   *d.SubmittedAt,
	})
	if err != nil {
		s.log(ctx).Warn("failed to publish submission event", map[string]interface{}{
			"draftId": d.ID,
			"error":   err.Error(),
		})
		return
	}
	s.log(ctx).Debug("submission event published", map[string]interface{}{
		"draftId":   d.ID,
		"messageId": msgID,
	})
}

func (s *Service) archiveSubmission(ctx context.Context, d *Draft, backendStatus int) {
	if s.archive == nil {
		return
	}
	err := s.archive.Index(ctx, Submission{
		DraftID:       d.ID,
		TemplateID:    d.TemplateID,
		Owner:         d.Owner,
		Document:      d.Document,
		BackendStatus: backendStatus,
		SubmittedAt:   *d.SubmittedAt,
	})
	if err != nil {
		s.log(ctx).Warn("failed to archive submission", map[string]interface{}{
			"draftId": d.ID,
			"error":   err.Error(),
		})
	}
}

// release hands a claimed draft back to its owner. It runs even when the
// caller has gone away, otherwise the draft stays locked until the claim
// goes stale.
func (s *Service) release(ctx context.Context, d *Draft) {
	ctx = context.WithoutCancel(ctx)
	if err := s.drafts.ReleaseSubmission(ctx, d.ID, d.Version, s.now()); err != nil {
		s.log(ctx).Error("failed to release draft claim", map[string]interface{}{
			"draftId": d.ID,
			"error":   err.Error(),
		})
	}
}

// log prefers the request-scoped logger so lines carry the request id.
func (s *Service) log(ctx context.Context) logger.Logger {
	return logger.FromContext(ctx, s.logger).WithFields(map[string]interface{}{"component": "forms"})
}

func lockedStatus(d *Draft) error {
	switch d.Status {
	case StatusSubmitted:
		return apperrors.NewDraftSubmittedError(d.ID)
	case StatusSubmitting:
		return apperrors.NewSubmitInProgressError(d.ID)
	}
	return nil
}

func submitHeader(in http.Header) http.Header {
	h := http.Header{}
	for name, values := range in {
		h[name] = append([]string(nil), values...)
	}
	h.Set("Content-Type", "application/json")
	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}
	return h
}

// PathError maps pathupdate failures onto gateway error codes.
func PathError(err error) error {
	switch {
	case errors.Is(err, pathupdate.ErrShapeChange):
		return apperrors.NewShapeChangeError(err)
	case errors.Is(err, pathupdate.ErrPathNotFound):
		return apperrors.NewPathNotFoundError(err)
	case errors.Is(err, pathupdate.ErrInvalidPath), errors.Is(err, pathupdate.ErrEmptyPath):
		return apperrors.NewInvalidPathError(err)
	}
	return apperrors.NewInternalError(err)
}

func draftError(op, id string, version int, err error) error {
	switch {
	case errors.Is(err, ErrDraftNotFound):
		return apperrors.NewDraftNotFoundError(id)
	case errors.Is(err, ErrVersionConflict):
		return apperrors.NewVersionConflictError(id, version)
	case errors.Is(err, ErrDraftSubmitted):
		return apperrors.NewDraftSubmittedError(id)
	case errors.Is(err, ErrDraftSubmitting):
		return apperrors.NewSubmitInProgressError(id)
	}
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return apperrors.NewDatabaseFailureError(op+" draft", err)
}
