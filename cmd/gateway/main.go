// cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"inspection-gateway/internal/common/aws"
	"inspection-gateway/internal/common/config"
	"inspection-gateway/internal/common/database"
	apperrors "inspection-gateway/internal/common/errors"
	gwhttp "inspection-gateway/internal/common/http"
	"inspection-gateway/internal/common/logger"
	"inspection-gateway/internal/common/observability"
	"inspection-gateway/internal/forms"
	"inspection-gateway/internal/proxy"
	"inspection-gateway/internal/routes"
	"inspection-gateway/internal/server"
	"inspection-gateway/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zapLog, log); err != nil {
		zapLog.Fatal("gateway stopped with error", zap.Error(err))
	}
	zapLog.Info("gateway stopped")
}

func run(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, log logger.Logger) error {
	obs, err := observability.New(observability.Options{
		ServiceName: cfg.Observability.ServiceName,
		SampleRatio: cfg.Observability.TraceSampling,
		Registerer:  prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.Migrate(ctx, forms.Migrations...); err != nil {
		return err
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(ctx, func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		return err
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	checks := map[string]server.Pinger{
		"postgres": pg,
		"redis":    rdb,
	}
	var opts []forms.Option

	// --- Optional: Elasticsearch submission archive ---
	if cfg.Database.Elasticsearch.Enabled {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(ctx, func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			return err
		}
		checks["elasticsearch"] = es
		opts = append(opts, forms.WithArchive(forms.NewArchive(es.Client, es.Index)))
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Optional: SNS submission events ---
	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			return err
		}
		opts = append(opts, forms.WithEvents(aws.NewSNSPublisher(snsClient, cfg.Integrations.AWS.SNS.TopicARN)))
		zapLog.Info("SNS publisher configured", zap.String("topicArn", cfg.Integrations.AWS.SNS.TopicARN))
	}

	// --- Backend proxy ---
	errs := apperrors.NewErrorHandler(log)
	client := gwhttp.NewUpstreamClient(gwhttp.Options{
		Timeout:   config.GetDuration(cfg.Backend.Timeout),
		HTTP2:     cfg.Backend.HTTP2,
		Cleartext: strings.HasPrefix(cfg.Backend.BaseURL, "http://"),
	})
	fwd, err := proxy.NewForwarder(cfg.Backend.BaseURL, cfg.Backend.MaxBodyBytes, client, errs, obs, log)
	if err != nil {
		return err
	}

	// --- Forms ---
	templates := forms.NewTemplateStore(cfg.Forms.RegistryPath, config.GetDuration(cfg.Forms.CacheTTL), rdb.Client, log)
	svc := forms.NewService(
		forms.Config{SubmitTimeout: config.GetDuration(cfg.Forms.Timeout)},
		templates,
		forms.NewDraftStore(pg.DB),
		fwd,
		log,
		opts...,
	)

	srv, err := server.New(server.Dependencies{
		Config:        cfg,
		Logger:        log,
		Errors:        errs,
		Forwarder:     fwd,
		Routes:        routes.All(),
		Forms:         forms.NewHandler(svc, errs, cfg.Backend.MaxBodyBytes, log),
		Observability: obs,
		Checks:        checks,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		warmTemplates(gctx, cfg.Forms.RegistryPath, templates, log)
		return nil
	})
	return g.Wait()
}

// warmTemplates loads every registry template so the first form request
// does not pay for schema compilation.
func warmTemplates(ctx context.Context, path string, templates *forms.TemplateStore, log logger.Logger) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		log.Warn("template warm-up skipped", map[string]interface{}{"error": err.Error()})
		return
	}
	loaded := 0
	for _, id := range reg.IDs() {
		if ctx.Err() != nil {
			return
		}
		if _, err := templates.Get(ctx, id); err != nil {
			log.Warn("template failed to load", map[string]interface{}{"templateId": id, "error": err.Error()})
			continue
		}
		loaded++
	}
	log.Info("templates warmed", map[string]interface{}{"count": loaded})
}
