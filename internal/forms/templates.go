package forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "inspection-gateway/internal/common/errors"
	"inspection-gateway/internal/common/logger"
	"inspection-gateway/internal/common/metrics"
	"inspection-gateway/internal/common/validation"
	"inspection-gateway/pkg/registry"

	"github.com/redis/go-redis/v9"
)

const (
	templateKeyPrefix  = "tmpl:"
	defaultTemplateTTL = 5 * time.Minute
)

// Template is a registry template with its schema compiled.
type Template struct {
	registry.Template
	schema *validation.Schema
}

// Validate checks doc against the template schema.
func (t *Template) Validate(doc interface{}) (*validation.ValidationResult, error) {
	return t.schema.Validate(doc)
}

// NewTemplate compiles the schema of def.
func NewTemplate(def registry.Template) (*Template, error) {
	schema, err := validation.Compile(def.Schema)
	if err != nil {
		return nil, apperrors.NewTemplateInvalidError(def.ID, err)
	}
	return &Template{Template: def, schema: schema}, nil
}

type templateCacheEntry struct {
	template *Template
	loadedAt time.Time
}

// TemplateStore resolves templates from an in-process cache, then Redis,
// then the registry file. Redis is optional.
type TemplateStore struct {
	registryPath string
	ttl          time.Duration
	redis        *redis.Client
	logger       logger.Logger

	mu    sync.RWMutex
	cache map[string]*templateCacheEntry
}

func NewTemplateStore(registryPath string, ttl time.Duration, rdb *redis.Client, log logger.Logger) *TemplateStore {
	if ttl <= 0 {
		ttl = defaultTemplateTTL
	}
	return &TemplateStore{
		registryPath: registryPath,
		ttl:          ttl,
		redis:        rdb,
		logger:       log.WithFields(map[string]interface{}{"component": "templates"}),
		cache:        make(map[string]*templateCacheEntry),
	}
}

func (s *TemplateStore) Get(ctx context.Context, id string) (*Template, error) {
	if t := s.fromMemory(id); t != nil {
		metrics.TemplateCacheLookups.WithLabelValues("memory").Inc()
		return t, nil
	}

	if s.redis != nil {
		t, err := s.fromRedis(ctx, id)
		if err == nil {
			metrics.TemplateCacheLookups.WithLabelValues("redis").Inc()
			s.remember(id, t)
			return t, nil
		}
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("template cache read failed", map[string]interface{}{
				"templateId": id,
				"error":      err.Error(),
			})
		}
	}

	def, err := s.fromRegistry(id)
	if err != nil {
		return nil, err
	}
	t, err := NewTemplate(*def)
	if err != nil {
		return nil, err
	}
	metrics.TemplateCacheLookups.WithLabelValues("registry").Inc()

	s.remember(id, t)
	if s.redis != nil {
		if err := s.writeRedis(ctx, def); err != nil {
			s.logger.Warn("template cache write failed", map[string]interface{}{
				"templateId": id,
				"error":      err.Error(),
			})
		}
	}
	return t, nil
}

func (s *TemplateStore) fromMemory(id string) *Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.cache[id]; ok && time.Since(entry.loadedAt) < s.ttl {
		return entry.template
	}
	return nil
}

func (s *TemplateStore) remember(id string, t *Template) {
	s.mu.Lock()
	s.cache[id] = &templateCacheEntry{template: t, loadedAt: time.Now()}
	s.mu.Unlock()
}

func (s *TemplateStore) fromRedis(ctx context.Context, id string) (*Template, error) {
	data, err := s.redis.Get(ctx, templateKeyPrefix+id).Result()
	if err != nil {
		return nil, err
	}
	var def registry.Template
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, fmt.Errorf("decode cached template: %w", err)
	}
	return NewTemplate(def)
}

func (s *TemplateStore) writeRedis(ctx context.Context, def *registry.Template) error {
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, templateKeyPrefix+def.ID, data, s.ttl).Err()
}

func (s *TemplateStore) fromRegistry(id string) (*registry.Template, error) {
	reg, err := registry.LoadRegistry(s.registryPath)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("load template registry: %w", err))
	}
	def, err := reg.Find(id)
	if err != nil {
		return nil, apperrors.NewTemplateNotFoundError(id)
	}
	return def, nil
}
