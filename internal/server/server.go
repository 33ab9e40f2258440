// Package server assembles the gateway's HTTP surface: proxy routes, the
// forms API, health probes and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"inspection-gateway/internal/common/config"
	apperrors "inspection-gateway/internal/common/errors"
	"inspection-gateway/internal/common/logger"
	"inspection-gateway/internal/common/observability"
	"inspection-gateway/internal/forms"
	"inspection-gateway/internal/proxy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const readinessTimeout = 3 * time.Second

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Config        *config.Config
	Logger        logger.Logger
	Errors        *apperrors.ErrorHandler
	Forwarder     *proxy.Forwarder
	Routes        []proxy.Route
	Forms         *forms.Handler
	Observability *observability.Observability
	// Checks are pinged by /ready, keyed by name.
	Checks map[string]Pinger
	// Gatherer backs /metrics. Nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

type Server struct {
	cfg        config.ServerConfig
	handler    http.Handler
	httpServer *http.Server
	mounted    []proxy.Route
	logger     logger.Logger
}

func New(deps Dependencies) (*Server, error) {
	if deps.Observability == nil {
		deps.Observability = observability.NewNoop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	log := deps.Logger.WithFields(map[string]interface{}{"component": "server"})

	mux := http.NewServeMux()
	mounted, err := deps.Forwarder.Mount(mux, deps.Routes, RouteOptions(deps.Config))
	if err != nil {
		return nil, fmt.Errorf("mount proxy routes: %w", err)
	}
	if deps.Forms != nil {
		deps.Forms.Register(mux)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /ready", readiness(deps.Checks))
	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		deps.Errors.Write(w, r, apperrors.NewRouteNotFoundError(r.Method, r.URL.Path))
	})

	handler := proxy.Chain(mux,
		proxy.RequestID(),
		proxy.Tracing(deps.Observability),
		proxy.Logging(deps.Logger),
		proxy.Recover(deps.Errors),
	)
	if deps.Config.Server.H2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	log.Info("routes mounted", map[string]interface{}{
		"proxyRoutes": len(mounted),
		"configured":  len(deps.Routes),
	})

	cfg := deps.Config.Server
	return &Server{
		cfg:     cfg,
		handler: handler,
		mounted: mounted,
		logger:  log,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			ReadTimeout:       config.GetDuration(cfg.ReadTimeout),
			ReadHeaderTimeout: config.GetDuration(cfg.ReadTimeout),
			WriteTimeout:      config.GetDuration(cfg.WriteTimeout),
		},
	}, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Mounted returns the proxy routes that are served.
func (s *Server) Mounted() []proxy.Route {
	return s.mounted
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests for at most the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", map[string]interface{}{"address": ln.Addr().String()})
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(s.cfg.ShutdownTimeout))
	defer cancel()
	s.logger.Info("shutting down", nil)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// RouteOptions resolves per-route timeouts and switches from configuration.
func RouteOptions(cfg *config.Config) proxy.RouteOptions {
	return func(name string) (time.Duration, bool) {
		rc := config.GetRouteConfig(cfg, name)
		timeout := rc.Timeout
		if timeout == 0 {
			timeout = cfg.Backend.Timeout
		}
		return config.GetDuration(timeout), config.IsRouteEnabled(cfg, name)
	}
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func readiness(checks map[string]Pinger) http.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			mu  sync.Mutex
			wg  sync.WaitGroup
			out = readinessResponse{Status: "ready", Checks: make(map[string]string, len(names))}
		)
		for _, name := range names {
			wg.Add(1)
			go func(name string, p Pinger) {
				defer wg.Done()
				result := "ok"
				if err := p.Ping(ctx); err != nil {
					result = err.Error()
				}
				mu.Lock()
				out.Checks[name] = result
				if result != "ok" {
					out.Status = "not ready"
				}
				mu.Unlock()
			}(name, checks[name])
		}
		wg.Wait()

		status := http.StatusOK
		if out.Status != "ready" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, out)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
