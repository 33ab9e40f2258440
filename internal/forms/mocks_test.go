package forms

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "inspection-gateway/internal/common/errors"
	"inspection-gateway/internal/pathupdate"
	"inspection-gateway/internal/proxy"
	"inspection-gateway/pkg/registry"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fixtures
// ==========================

const testRegistry = `{
  "version": "1",
  "templates": [
    {
      "id": "site-inspection",
      "title": "Site inspection",
      "kind": "inspection",
      "version": "1.0.0",
      "submitPath": "/inspection-reports",
      "schema": {
        "type": "object",
        "required": ["site", "inspectionTypes"],
        "properties": {
          "site": {"type": "string", "minLength": 1},
          "inspectionTypes": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "properties": {
                "name": {"type": "string"},
                "count": {"type": "number", "minimum": 0}
              }
            }
          }
        }
      },
      "defaults": {
        "site": "",
        "inspectionTypes": [{"name": "visual", "count": 0}],
        "notes": {"text": ""}
      }
    },
    {
      "id": "broken",
      "title": "Broken",
      "kind": "report",
      "version": "1",
      "submitPath": "/reports",
      "schema": {"type": 12},
      "defaults": {}
    }
  ]
}`

func writeRegistry(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "form-templates.json")
	require.NoError(t, os.WriteFile(path, []byte(testRegistry), 0644))
	return path
}

func loadTemplate(t *testing.T, id string) *Template {
	t.Helper()
	reg, err := registry.Parse([]byte(testRegistry), ".json")
	require.NoError(t, err)
	def, err := reg.Find(id)
	require.NoError(t, err)
	tmpl, err := NewTemplate(*def)
	require.NoError(t, err)
	return tmpl
}

func mustPath(t *testing.T, s string) pathupdate.Path {
	t.Helper()
	p, err := pathupdate.ParsePath(s)
	require.NoError(t, err)
	return p
}

var fixedNow = time.Date(2024, 3, 20, 9, 30, 0, 0, time.UTC)

// ==========================
// Fakes and mocks
// ==========================

type staticTemplates map[string]*Template

func (s staticTemplates) Get(_ context.Context, id string) (*Template, error) {
	if t, ok := s[id]; ok {
		return t, nil
	}
	return nil, apperrors.NewTemplateNotFoundError(id)
}

type MockDrafts struct {
	mock.Mock
}

func (m *MockDrafts) Insert(ctx context.Context, d *Draft) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDrafts) Get(ctx context.Context, id string) (*Draft, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*Draft)
	return d, args.Error(1)
}

func (m *MockDrafts) UpdateDocument(ctx context.Context, id string, version int, doc map[string]interface{}, at time.Time) (int, error) {
	args := m.Called(ctx, id, version, doc, at)
	return args.Int(0), args.Error(1)
}

func (m *MockDrafts) ClaimSubmission(ctx context.Context, id string, version int, at, staleBefore time.Time) error {
	args := m.Called(ctx, id, version, at, staleBefore)
	return args.Error(0)
}

func (m *MockDrafts) ReleaseSubmission(ctx context.Context, id string, version int, at time.Time) error {
	args := m.Called(ctx, id, version, at)
	return args.Error(0)
}

func (m *MockDrafts) MarkSubmitted(ctx context.Context, id string, version int, at time.Time) (int, error) {
	args := m.Called(ctx, id, version, at)
	return args.Int(0), args.Error(1)
}

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Send(ctx context.Context, routeName string, out proxy.Outbound) (*proxy.Response, error) {
	args := m.Called(ctx, routeName, out)
	resp, _ := args.Get(0).(*proxy.Response)
	return resp, args.Error(1)
}

type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) PublishJSON(ctx context.Context, eventType string, payload interface{}) (string, error) {
	args := m.Called(ctx, eventType, payload)
	return args.String(0), args.Error(1)
}

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Index(ctx context.Context, sub Submission) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockArchive) Search(ctx context.Context, query string, page, size int) (*SearchResult, error) {
	args := m.Called(ctx, query, page, size)
	res, _ := args.Get(0).(*SearchResult)
	return res, args.Error(1)
}

// memDrafts is an in-memory DraftRepository with the same version rules as
// DraftStore.
type memDrafts struct {
	mu     sync.Mutex
	drafts map[string]*Draft
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: map[string]*Draft{}}
}

func (m *memDrafts) Insert(_ context.Context, d *Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.drafts[d.ID] = &cp
	return nil
}

func (m *memDrafts) Get(_ context.Context, id string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, ErrDraftNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDrafts) UpdateDocument(_ context.Context, id string, version int, doc map[string]interface{}, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.guard(id, version, StatusDraft)
	if err != nil {
		return 0, err
	}
	d.Document = doc
	d.Version++
	d.UpdatedAt = at
	return d.Version, nil
}

func (m *memDrafts) ClaimSubmission(_ context.Context, id string, version int, at, staleBefore time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if ok && d.Version == version && d.Status == StatusSubmitting && d.UpdatedAt.Before(staleBefore) {
		d.UpdatedAt = at
		return nil
	}
	d, err := m.guard(id, version, StatusDraft)
	if err != nil {
		return err
	}
	d.Status = StatusSubmitting
	d.UpdatedAt = at
	return nil
}

func (m *memDrafts) ReleaseSubmission(_ context.Context, id string, version int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.guard(id, version, StatusSubmitting)
	if err != nil {
		return err
	}
	d.Status = StatusDraft
	d.UpdatedAt = at
	return nil
}

func (m *memDrafts) MarkSubmitted(_ context.Context, id string, version int, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.guard(id, version, StatusSubmitting)
	if err != nil {
		return 0, err
	}
	d.Status = StatusSubmitted
	d.Version++
	d.UpdatedAt = at
	d.SubmittedAt = &at
	return d.Version, nil
}

// guard mirrors the WHERE clauses of DraftStore and explains a miss the way
// explainMiss does.
func (m *memDrafts) guard(id string, version int, status string) (*Draft, error) {
	d, ok := m.drafts[id]
	switch {
	case !ok:
		return nil, ErrDraftNotFound
	case d.Version == version && d.Status == status:
		return d, nil
	case d.Status == StatusSubmitted:
		return nil, ErrDraftSubmitted
	case d.Status == StatusSubmitting:
		return nil, ErrDraftSubmitting
	}
	return nil, ErrVersionConflict
}
