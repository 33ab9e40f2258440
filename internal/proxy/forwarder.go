// Package proxy forwards gateway routes to the business backend and relays
// the backend's answer to the browser.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "inspection-gateway/internal/common/errors"
	gwhttp "inspection-gateway/internal/common/http"
	"inspection-gateway/internal/common/logger"
	"inspection-gateway/internal/common/metrics"
	"inspection-gateway/internal/common/observability"
	"inspection-gateway/internal/listing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Headers copied from the browser request to the backend.
var forwardedRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Authorization",
	"Content-Type",
	"Cookie",
	"X-Request-ID",
}

// Headers copied from the backend response to the browser.
var relayedResponseHeaders = []string{
	"Cache-Control",
	"Content-Disposition",
	"Content-Type",
	"Location",
	"Set-Cookie",
}

// Outbound describes one backend call.
type Outbound struct {
	Method   string
	Path     string // escaped, relative to the backend base URL
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Response is a fully buffered backend answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Forwarder struct {
	baseURL string
	client  *gwhttp.Client
	maxBody int64
	errs    *apperrors.ErrorHandler
	obs     *observability.Observability
	logger  logger.Logger
}

func NewForwarder(
	baseURL string,
	maxBody int64,
	client *gwhttp.Client,
	errs *apperrors.ErrorHandler,
	obs *observability.Observability,
	log logger.Logger,
) (*Forwarder, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", baseURL)
	}
	if maxBody <= 0 {
		return nil, fmt.Errorf("max body size must be positive, got %d", maxBody)
	}
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Forwarder{
		baseURL: strings.TrimRight(u.String(), "/"),
		client:  client,
		maxBody: maxBody,
		errs:    errs,
		obs:     obs,
		logger:  log,
	}, nil
}

// Handler returns the http.Handler serving route.
func (f *Forwarder) Handler(route Route, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Forward(w, r, route, timeout)
	})
}

// Forward relays r to the backend endpoint of route and writes the backend's
// status, relayed headers and body to w.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, route Route, timeout time.Duration) {
	rawQuery := r.URL.RawQuery
	var (
		listQuery listing.Query
		err       error
	)
	if route.Paginate {
		values := r.URL.Query()
		listQuery, err = listing.ParseQuery(values)
		if err != nil {
			f.errs.Write(w, r, apperrors.NewInvalidRequestError(err.Error()))
			return
		}
		rawQuery = listing.StripParams(values).Encode()
	}

	body, err := f.readRequestBody(w, r)
	if err != nil {
		f.errs.Write(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp, err := f.Send(ctx, route.Name, Outbound{
		Method:   route.Method,
		Path:     route.UpstreamPath(r),
		RawQuery: rawQuery,
		Header:   OutboundHeader(r),
		Body:     body,
	})
	if err != nil {
		f.errs.Write(w, r, err)
		return
	}

	if route.Paginate && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		paged, ok, err := listing.ApplyJSON(resp.Body, listQuery)
		if err != nil {
			f.errs.Write(w, r, apperrors.NewUpstreamResponseError(route.Name, err.Error()))
			return
		}
		if ok {
			resp.Body = paged
			resp.Header.Set("Content-Type", "application/json")
		}
	}

	WriteResponse(w, resp)
}

// Send performs one backend call. Failures are returned as StandardErrors:
// transport errors as UPSTREAM_UNAVAILABLE, deadline expiry as
// UPSTREAM_TIMEOUT and oversized bodies as UPSTREAM_BAD_RESPONSE.
func (f *Forwarder) Send(ctx context.Context, routeName string, out Outbound) (*Response, error) {
	ctx, span := f.obs.StartSpan(ctx, "proxy "+routeName,
		attribute.String("gateway.route", routeName),
		attribute.String("http.request.method", out.Method),
	)
	defer span.End()

	target := f.baseURL + out.Path
	if out.RawQuery != "" {
		target += "?" + out.RawQuery
	}

	var reqBody io.Reader = http.NoBody
	if len(out.Body) > 0 {
		reqBody = bytes.NewReader(out.Body)
	}
	req, err := http.NewRequestWithContext(ctx, out.Method, target, reqBody)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("build upstream request: %w", err))
	}
	if out.Header != nil {
		req.Header = out.Header.Clone()
	}
	f.obs.Inject(ctx, req.Header)

	inFlight := metrics.ProxyInFlight.WithLabelValues(routeName)
	inFlight.Inc()
	defer inFlight.Dec()

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.fail(ctx, span, routeName, out.Method, start, classify(ctx, routeName, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, f.fail(ctx, span, routeName, out.Method, start, classify(ctx, routeName, err))
	}
	if int64(len(body)) > f.maxBody {
		return nil, f.fail(ctx, span, routeName, out.Method, start, apperrors.NewUpstreamResponseError(
			routeName, fmt.Sprintf("response body exceeds %d bytes", f.maxBody)))
	}

	duration := time.Since(start)
	metrics.ProxyRequestDuration.WithLabelValues(routeName).Observe(duration.Seconds())
	metrics.ProxyRequests.WithLabelValues(routeName, out.Method, strconv.Itoa(resp.StatusCode)).Inc()
	f.obs.RecordForward(ctx, routeName, resp.StatusCode, duration)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	f.log(ctx).Debug("forwarded", map[string]interface{}{
		"route":      routeName,
		"status":     resp.StatusCode,
		"durationMs": duration.Milliseconds(),
		"bytes":      len(body),
	})

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (f *Forwarder) fail(ctx context.Context, span trace.Span, routeName, method string, start time.Time, stdErr *apperrors.StandardError) error {
	duration := time.Since(start)
	status := apperrors.HTTPStatus(stdErr.Code)

	metrics.ProxyRequestDuration.WithLabelValues(routeName).Observe(duration.Seconds())
	metrics.ProxyRequests.WithLabelValues(routeName, method, strconv.Itoa(status)).Inc()
	metrics.UpstreamErrors.WithLabelValues(routeName, string(stdErr.Code)).Inc()
	f.obs.RecordForward(ctx, routeName, status, duration)

	span.RecordError(stdErr)
	span.SetStatus(codes.Error, string(stdErr.Code))

	f.log(ctx).Warn("upstream call failed", map[string]interface{}{
		"route":      routeName,
		"code":       stdErr.Code,
		"details":    stdErr.Details,
		"durationMs": duration.Milliseconds(),
	})
	return stdErr
}

// log prefers the request-scoped logger so lines carry the request id.
func (f *Forwarder) log(ctx context.Context) logger.Logger {
	return logger.FromContext(ctx, f.logger).WithFields(map[string]interface{}{"component": "proxy"})
}

func (f *Forwarder) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, f.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("request body exceeds %d bytes", f.maxBody))
		}
		return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("read request body: %v", err))
	}
	return body, nil
}

// classify maps a client error onto the gateway's upstream error codes.
func classify(ctx context.Context, routeName string, err error) *apperrors.StandardError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewUpstreamTimeoutError(routeName, err)
	}
	return apperrors.NewUpstreamUnavailableError(routeName, err)
}

// OutboundHeader copies the forwarded browser headers and adds the
// X-Forwarded-* set.
func OutboundHeader(r *http.Request) http.Header {
	h := http.Header{}
	for _, name := range forwardedRequestHeaders {
		for _, v := range r.Header.Values(name) {
			h.Add(name, v)
		}
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	h.Set("X-Forwarded-Host", r.Host)
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	h.Set("X-Forwarded-Proto", proto)
	return h
}

// WriteResponse relays a buffered backend response.
func WriteResponse(w http.ResponseWriter, resp *Response) {
	for _, name := range relayedResponseHeaders {
		for _, v := range resp.Header.Values(name) {
			w.Header().Add(name, v)
		}
	}
	if len(resp.Body) == 0 {
		w.WriteHeader(resp.StatusCode)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
