// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inspection-gateway/internal/common/config"
	"inspection-gateway/internal/common/database"
	apperrors "inspection-gateway/internal/common/errors"
	gwhttp "inspection-gateway/internal/common/http"
	"inspection-gateway/internal/common/logger"
	"inspection-gateway/internal/forms"
	"inspection-gateway/internal/proxy"
	"inspection-gateway/internal/routes"
	"inspection-gateway/internal/server"
)

var zapLog *zap.Logger

// The suite talks to real PostgreSQL, Redis and Elasticsearch instances and
// only runs when GATEWAY_E2E is set, e.g. against `docker compose up`.
func TestMain(m *testing.M) {
	if os.Getenv("GATEWAY_E2E") == "" {
		fmt.Println("GATEWAY_E2E not set, skipping e2e suite")
		os.Exit(0)
	}
	zapLog, _ = zap.NewDevelopment()
	code := m.Run()
	_ = zapLog.Sync()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func e2eConfig(backendURL string) *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "inspection-gateway-e2e", Environment: "test"},
		Server:  config.ServerConfig{ShutdownTimeout: 5000},
		Backend: config.BackendConfig{BaseURL: backendURL, Timeout: 5000, MaxBodyBytes: 1 << 20},
		Database: config.DatabaseConfig{
			Postgres: config.PostgresConfig{
				Host:           envOr("DB_HOST", "localhost"),
				Port:           5432,
				Database:       envOr("DB_NAME", "inspection_gateway"),
				User:           envOr("DB_USER", "postgres"),
				Password:       envOr("DB_PASSWORD", "postgres"),
				MaxConnections: 5,
				MaxIdle:        2,
				SSLMode:        "disable",
			},
			Redis: config.RedisConfig{Address: envOr("REDIS_ADDRESS", "localhost:6379")},
			Elasticsearch: config.ElasticsearchConfig{
				Enabled:   true,
				Addresses: []string{envOr("ES_URL", "http://localhost:9200")},
				Index:     fmt.Sprintf("form-submissions-e2e-%d", time.Now().UnixNano()),
			},
		},
		Forms: config.FormsConfig{RegistryPath: "../../configs/form-templates.yaml", CacheTTL: 60000, Timeout: 5000},
	}
}

// ==========================
// Fake business backend
// ==========================

type recordingBackend struct {
	mu       sync.Mutex
	received []map[string]interface{}
	reject   bool
}

func (b *recordingBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/inspection-reports":
		var doc map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&doc)
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.reject {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"site is closed"}`))
			return
		}
		b.received = append(b.received, doc)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"reportId":"IR-1"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/mission-orders":
		_, _ = w.Write([]byte(`[{"id":1,"title":"Boiler check"},{"id":2,"title":"Pump audit"}]`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}
}

// ==========================
// Full flow
// ==========================

func TestFullE2E(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	backend := &recordingBackend{}
	backendSrv := httptest.NewServer(backend)
	defer backendSrv.Close()

	cfg := e2eConfig(backendSrv.URL)
	log := logger.NewZapAdapter(zapLog)

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "PostgreSQL connection failed")
	defer pg.Close()
	require.NoError(t, pg.Ping(ctx), "PostgreSQL ping failed")
	require.NoError(t, pg.Migrate(ctx, forms.Migrations...))
	t.Log("PostgreSQL connected")

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err)
	defer rdb.Close()
	require.NoError(t, rdb.Ping(ctx), "Redis ping failed")
	t.Log("Redis connected")

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
	require.NoError(t, err)
	require.NoError(t, es.Ping(ctx), "Elasticsearch ping failed")
	defer func() {
		res, err := es.Client.Indices.Delete([]string{es.Index})
		if err == nil {
			res.Body.Close()
		}
	}()
	t.Log("Elasticsearch connected")

	errs := apperrors.NewErrorHandler(log)
	fwd, err := proxy.NewForwarder(backendSrv.URL, cfg.Backend.MaxBodyBytes,
		gwhttp.NewUpstreamClient(gwhttp.Options{Timeout: 5 * time.Second}), errs, nil, log)
	require.NoError(t, err)

	svc := forms.NewService(
		forms.Config{SubmitTimeout: 5 * time.Second},
		forms.NewTemplateStore(cfg.Forms.RegistryPath, time.Minute, rdb.Client, log),
		forms.NewDraftStore(pg.DB),
		fwd,
		log,
		forms.WithArchive(forms.NewArchive(es.Client, es.Index)),
	)
	srv, err := server.New(server.Dependencies{
		Config:    cfg,
		Logger:    log,
		Errors:    errs,
		Forwarder: fwd,
		Routes:    routes.All(),
		Forms:     forms.NewHandler(svc, errs, cfg.Backend.MaxBodyBytes, log),
		Checks:    map[string]server.Pinger{"postgres": pg, "redis": rdb, "elasticsearch": es},
		Gatherer:  prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	gw := httptest.NewServer(srv.Handler())
	defer gw.Close()

	t.Run("ready", func(t *testing.T) {
		status, _ := call(t, gw, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("proxy route", func(t *testing.T) {
		status, body := call(t, gw, http.MethodGet, "/api/mission-orders?q=pump", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(body), "Pump audit")
	})

	var draft forms.Draft
	t.Run("create draft", func(t *testing.T) {
		status, body := call(t, gw, http.MethodPost, "/api/forms/drafts", map[string]interface{}{"templateId": "site-inspection"})
		require.Equal(t, http.StatusCreated, status, string(body))
		require.NoError(t, json.Unmarshal(body, &draft))
		assert.Equal(t, 1, draft.Version)
		assert.Equal(t, forms.StatusDraft, draft.Status)
	})
	require.NotEmpty(t, draft.ID)
	draftURL := "/api/forms/drafts/" + draft.ID

	t.Run("incomplete draft is rejected", func(t *testing.T) {
		status, body := call(t, gw, http.MethodPost, draftURL+"/submit", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Contains(t, string(body), string(apperrors.ErrCodeValidationFailed))
	})

	t.Run("patch draft", func(t *testing.T) {
		status, body := call(t, gw, http.MethodPatch, draftURL, map[string]interface{}{
			"version": 1,
			"changes": []map[string]interface{}{
				{"path": "site", "value": "Tehran refinery, unit 4"},
				{"path": "inspector", "value": "r.karimi"},
				{"path": "inspectionTypes[1].count", "value": 3},
				{"path": []string{"fields", "pressure"}, "value": 4.2},
				{"path": "fields.passed", "value": true},
			},
		})
		require.Equal(t, http.StatusOK, status, string(body))
		require.NoError(t, json.Unmarshal(body, &draft))
		assert.Equal(t, 2, draft.Version)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		status, body := call(t, gw, http.MethodPatch, draftURL, map[string]interface{}{
			"version": 1,
			"changes": []map[string]interface{}{{"path": "site", "value": "elsewhere"}},
		})
		assert.Equal(t, http.StatusConflict, status)
		assert.Contains(t, string(body), string(apperrors.ErrCodeVersionConflict))
	})

	t.Run("backend rejection keeps the draft editable", func(t *testing.T) {
		backend.mu.Lock()
		backend.reject = true
		backend.mu.Unlock()
		defer func() {
			backend.mu.Lock()
			backend.reject = false
			backend.mu.Unlock()
		}()

		status, body := call(t, gw, http.MethodPost, draftURL+"/submit", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Contains(t, string(body), "site is closed")

		status, body = call(t, gw, http.MethodGet, draftURL, nil)
		require.Equal(t, http.StatusOK, status)
		var got forms.Draft
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, forms.StatusDraft, got.Status)
	})

	t.Run("submit", func(t *testing.T) {
		status, body := call(t, gw, http.MethodPost, draftURL+"/submit", nil)
		require.Equal(t, http.StatusOK, status, string(body))

		var out forms.SubmitResponse
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, http.StatusCreated, out.BackendStatus)
		assert.Equal(t, forms.StatusSubmitted, out.Draft.Status)

		backend.mu.Lock()
		require.Len(t, backend.received, 1)
		assert.Equal(t, "Tehran refinery, unit 4", backend.received[0]["site"])
		backend.mu.Unlock()
	})

	t.Run("submitted draft is frozen", func(t *testing.T) {
		status, _ := call(t, gw, http.MethodPatch, draftURL, map[string]interface{}{
			"version": 3,
			"changes": []map[string]interface{}{{"path": "site", "value": "late edit"}},
		})
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("search submissions", func(t *testing.T) {
		res, err := es.Client.Indices.Refresh(es.Client.Indices.Refresh.WithIndex(es.Index))
		require.NoError(t, err)
		res.Body.Close()

		status, body := call(t, gw, http.MethodGet, "/api/forms/submissions?q=refinery", nil)
		require.Equal(t, http.StatusOK, status, string(body))
		var result forms.SearchResult
		require.NoError(t, json.Unmarshal(body, &result))
		require.EqualValues(t, 1, result.Total)
		assert.Equal(t, draft.ID, result.Items[0].DraftID)
	})

	t.Log("full gateway flow passed")
}

func call(t *testing.T, gw *httptest.Server, method, path string, payload interface{}) (int, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, gw.URL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(forms.OwnerHeader, "r.karimi")

	resp, err := gw.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, bytes.TrimSpace(data)
}
