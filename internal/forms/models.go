// Package forms serves dynamic form documents: templates from the registry,
// drafts edited through path updates, and submissions forwarded to the
// backend.
package forms

import (
	"time"

	"inspection-gateway/internal/pathupdate"
)

const (
	StatusDraft      = "draft"
	StatusSubmitting = "submitting"
	StatusSubmitted  = "submitted"

	EventFormSubmitted = "form.submitted"
)

type Draft struct {
	ID          string                 `json:"id"`
	TemplateID  string                 `json:"templateId"`
	Owner       string                 `json:"owner,omitempty"`
	Document    map[string]interface{} `json:"document"`
	Version     int                    `json:"version"`
	Status      string                 `json:"status"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	SubmittedAt *time.Time             `json:"submittedAt,omitempty"`
}

// Change sets the value at Path.
type Change struct {
	Path  pathupdate.Path `json:"path"`
	Value interface{}     `json:"value"`
}

// Submission is the archived copy of a submitted draft.
type Submission struct {
	DraftID       string                 `json:"draftId"`
	TemplateID    string                 `json:"templateId"`
	Owner         string                 `json:"owner,omitempty"`
	Document      map[string]interface{} `json:"document"`
	BackendStatus int                    `json:"backendStatus"`
	SubmittedAt   time.Time              `json:"submittedAt"`
}

type SearchResult struct {
	Items      []Submission `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	Total      int64        `json:"total"`
	TotalPages int          `json:"totalPages"`
}

// ==========================
// HTTP payloads
// ==========================

type CreateDraftRequest struct {
	TemplateID string `json:"templateId"`
}

type PatchDraftRequest struct {
	Version int      `json:"version"`
	Changes []Change `json:"changes"`
}

type PatchRequest struct {
	Document map[string]interface{} `json:"document"`
	Changes  []Change               `json:"changes"`
}

type PatchResponse struct {
	Document map[string]interface{} `json:"document"`
}

type SubmitResponse struct {
	Draft         *Draft      `json:"draft"`
	BackendStatus int         `json:"backendStatus"`
	Backend       interface{} `json:"backend,omitempty"`
}
