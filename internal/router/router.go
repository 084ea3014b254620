package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultTokenPrefix = "Bearer"
	Encoding           = "application/json"
	UserAgent          = "bluefox-go"

	tracerName = "github.com/metorial/bluefox/internal/router"
)

// HTTPError is returned when the panel answers with a status outside [200,400).
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("[%s] rejected with status code %d", e.Status, e.StatusCode)
}

type Router struct {
	baseURL     string
	token       string
	tokenPrefix string
	httpClient  *http.Client
	logger      *zap.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

type Option func(*Router)

func WithTokenPrefix(prefix string) Option {
	return func(r *Router) {
		r.tokenPrefix = prefix
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(r *Router) {
		if client != nil {
			r.httpClient = client
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithTracerProvider sets the provider used for request spans. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Router) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

func New(baseURL, token string, opts ...Option) *Router {
	r := &Router{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		tokenPrefix: DefaultTokenPrefix,
		httpClient:  &http.Client{},
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route starts a fresh chain with no segments.
func (r *Router) Route() Route {
	return Route{router: r}
}

// Route is an immutable list of path segments. Path returns a copy, so a
// Route can be extended in several directions without interference.
type Route struct {
	router   *Router
	segments []string
}

// Path appends segments, skipping empty ones.
func (rt Route) Path(segments ...string) Route {
	next := make([]string, len(rt.segments), len(rt.segments)+len(segments))
	copy(next, rt.segments)
	for _, s := range segments {
		if s == "" {
			continue
		}
		next = append(next, s)
	}
	return Route{router: rt.router, segments: next}
}

func (rt Route) Segments() []string {
	return append([]string(nil), rt.segments...)
}

func (rt Route) String() string {
	escaped := make([]string, len(rt.segments))
	for i, s := range rt.segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}

type requestOptions struct {
	query url.Values
	data  any
}

type RequestOption func(*requestOptions)

func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		o.query = q
	}
}

func WithData(v any) RequestOption {
	return func(o *requestOptions) {
		o.data = v
	}
}

func (rt Route) Get(ctx context.Context, opts ...RequestOption) (json.RawMessage, error) {
	return rt.do(ctx, http.MethodGet, opts)
}

func (rt Route) Post(ctx context.Context, opts ...RequestOption) (json.RawMessage, error) {
	return rt.do(ctx, http.MethodPost, opts)
}

func (rt Route) Put(ctx context.Context, opts ...RequestOption) (json.RawMessage, error) {
	return rt.do(ctx, http.MethodPut, opts)
}

func (rt Route) Patch(ctx context.Context, opts ...RequestOption) (json.RawMessage, error) {
	return rt.do(ctx, http.MethodPatch, opts)
}

func (rt Route) Delete(ctx context.Context, opts ...RequestOption) (json.RawMessage, error) {
	return rt.do(ctx, http.MethodDelete, opts)
}

func (rt Route) do(ctx context.Context, method string, opts []RequestOption) (json.RawMessage, error) {
	if rt.router == nil {
		return nil, fmt.Errorf("route %s has no router", rt.String())
	}
	r := rt.router

	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	path := rt.String()
	target := r.baseURL + path
	if len(o.query) > 0 {
		target += "?" + o.query.Encode()
	}

	var body io.Reader
	if method != http.MethodGet {
		payload := o.data
		if payload == nil {
			payload = struct{}{}
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	ctx, span := r.tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", r.tokenPrefix+" "+r.token)
	req.Header.Set("Content-Type", Encoding)
	req.Header.Set("Accept", Encoding)
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Request-Id", requestID)

	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.String("bluefox.request_id", requestID),
	)

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		r.metrics.observe(method, "error", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	r.metrics.observe(method, strconv.Itoa(resp.StatusCode), elapsed)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	r.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
	)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       respBody,
		}
	}

	// Bodies that are not JSON (including empty 204s) yield a nil result.
	respBody = bytes.TrimSpace(respBody)
	if len(respBody) == 0 || !json.Valid(respBody) {
		return nil, nil
	}
	return json.RawMessage(respBody), nil
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
}
