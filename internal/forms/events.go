package forms

import (
	"context"
	"time"
)

// EventPublisher announces form lifecycle events to other systems.
type EventPublisher interface {
	PublishJSON(ctx context.Context, eventType string, payload interface{}) (string, error)
}

// SubmittedEvent is the payload of the form.submitted event.
type SubmittedEvent struct {
	DraftID       string    `json:"draftId"`
	TemplateID    string    `json:"templateId"`
	Owner         string    `json:"owner,omitempty"`
	Version       int       `json:"version"`
	BackendStatus int       `json:"backendStatus"`
	SubmittedAt   time.Time `json:"submittedAt"`
}
