// Package rolling provides a bounded-concurrency HTTP request batcher.
// Callers enqueue request descriptors and execute them in windows of at
// most a fixed size, receiving one outcome per dispatched request.
package rolling

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"

	"github.com/rollinghttp/rollingrequests/pkg/cache"
	"github.com/rollinghttp/rollingrequests/pkg/request"
)

// Prometheus metrics for executor operations.
var (
	rollingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rolling_requests_total",
		Help: "Total dispatched requests by method and status",
	}, []string{"method", "status"})

	rollingRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rolling_request_duration_seconds",
		Help:    "Request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	rollingWindowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rolling_window_duration_seconds",
		Help:    "Execution duration of a full dispatch window in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	rollingWindowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rolling_windows_total",
		Help: "Total executed dispatch windows",
	})

	rollingQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rolling_queue_depth",
		Help: "Current number of pending requests in the queue",
	})

	rollingTaskFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rolling_task_failures_total",
		Help: "Total dispatch tasks that failed outside the HTTP call",
	})

	rollingErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rolling_errors_total",
		Help: "Total per-request errors by class",
	}, []string{"class"})
)

// Response is the captured outcome of a successful HTTP exchange. The body
// is fully read and closed inside the dispatch task.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// Result pairs a dispatched request copy with its outcome. Exactly one of
// Response and Err is set.
type Result struct {
	Request  *request.Request
	Response *Response
	Err      error
}

// Config holds the executor configuration.
type Config struct {
	// SimultaneousLimit is the maximum number of requests dispatched
	// concurrently per window.
	SimultaneousLimit int

	// Timeout bounds each individual HTTP call.
	Timeout time.Duration

	// ForceHTTP2 configures the transport for HTTP/2.
	ForceHTTP2 bool

	// AutoAdvance removes dispatched requests from the queue after each
	// window. When false the caller advances explicitly via ClearProcessed.
	AutoAdvance bool

	// Redis enables the GET response cache when set.
	Redis *redis.Client

	// CacheTTL is the lifetime of cached responses.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		SimultaneousLimit: 1,
		Timeout:           30 * time.Second,
		ForceHTTP2:        false,
		AutoAdvance:       false,
		CacheTTL:          60 * time.Second,
	}
}

// RollingRequests manages a FIFO queue of pending requests and executes
// them in concurrency-limited windows.
type RollingRequests struct {
	limit       int
	autoAdvance bool
	httpClient  *http.Client
	cache       *cache.Manager
	cacheTTL    time.Duration
	logger      zerolog.Logger

	// execMu serializes whole Execute calls so a queue entry is never
	// dispatched twice by overlapping windows.
	execMu sync.Mutex

	mu      sync.Mutex
	pending []*request.Request
}

// New creates a new executor. Construction fails only when the transport
// cannot be built; per-request failures surface later as error outcomes.
func New(cfg Config) (*RollingRequests, error) {
	if cfg.SimultaneousLimit <= 0 {
		cfg.SimultaneousLimit = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ForceHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("configure http2 transport: %w", err)
		}
		transport.ForceAttemptHTTP2 = true
	}

	logger := log.With().Str("component", "rolling").Logger()

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &RollingRequests{
		limit:       cfg.SimultaneousLimit,
		autoAdvance: cfg.AutoAdvance,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		cache:    cacheManager,
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
	}, nil
}

// AddRequest appends a request to the tail of the pending queue.
func (rr *RollingRequests) AddRequest(req *request.Request) {
	rr.mu.Lock()
	rr.pending = append(rr.pending, req)
	depth := len(rr.pending)
	rr.mu.Unlock()

	rollingQueueDepth.Set(float64(depth))
}

// PendingCount returns the current queue length.
func (rr *RollingRequests) PendingCount() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return len(rr.pending)
}

// Execute dispatches up to SimultaneousLimit requests from the head of the
// queue concurrently and waits for all of them. Outcomes are returned in
// queue order, one per dispatched request, regardless of completion order.
// An empty queue yields an empty result, not an error.
//
// Each request is dispatched on a clone, so caller-held descriptors are
// never mutated by in-flight execution.
func (rr *RollingRequests) Execute(ctx context.Context) []Result {
	rr.execMu.Lock()
	defer rr.execMu.Unlock()

	rr.mu.Lock()
	n := rr.limit
	if len(rr.pending) < n {
		n = len(rr.pending)
	}
	window := make([]*request.Request, n)
	for i := 0; i < n; i++ {
		window[i] = rr.pending[i].Clone()
	}
	rr.mu.Unlock()

	if n == 0 {
		return nil
	}

	windowID := uuid.NewString()
	start := time.Now()
	rr.logger.Debug().
		Str("window_id", windowID).
		Int("size", n).
		Msg("Dispatching window")

	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(slot int, req *request.Request) {
			defer wg.Done()
			// A task failure must not abort the window: substitute an
			// error outcome so every slot stays filled.
			defer func() {
				if rec := recover(); rec != nil {
					rollingTaskFailuresTotal.Inc()
					err := fmt.Errorf("dispatch task failed: %v", rec)
					req.SetResponseError(err.Error())
					results[slot] = Result{Request: req, Err: err}
					rr.logger.Error().
						Str("window_id", windowID).
						Str("url", req.URL()).
						Interface("panic", rec).
						Msg("Dispatch task panicked")
				}
			}()
			results[slot] = rr.dispatch(ctx, req)
		}(i, window[i])
	}
	wg.Wait()

	if rr.autoAdvance {
		rr.ClearProcessed(n)
	}

	rollingWindowsTotal.Inc()
	rollingWindowDuration.Observe(time.Since(start).Seconds())
	rr.logger.Debug().
		Str("window_id", windowID).
		Int("size", n).
		Dur("duration", time.Since(start)).
		Msg("Window complete")

	return results
}

// ClearProcessed removes count requests from the head of the queue. Counts
// beyond the queue length are clamped; the queue never loses more entries
// than it holds.
func (rr *RollingRequests) ClearProcessed(count int) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if count <= 0 {
		return
	}
	if count > len(rr.pending) {
		rr.logger.Warn().
			Int("count", count).
			Int("pending", len(rr.pending)).
			Msg("Clear count exceeds queue length, clamping")
		count = len(rr.pending)
	}

	rr.pending = append(rr.pending[:0], rr.pending[count:]...)
	rollingQueueDepth.Set(float64(len(rr.pending)))
}

// dispatch performs one HTTP call and converts it into a Result. All
// failures are captured locally; nothing escapes to abort the window.
func (rr *RollingRequests) dispatch(ctx context.Context, req *request.Request) Result {
	startTime := time.Now()
	defer func() {
		rollingRequestDuration.WithLabelValues(req.Method()).Observe(time.Since(startTime).Seconds())
	}()

	key := cache.Key{Method: req.Method(), URL: req.URL()}

	if rr.cache != nil && req.Method() == http.MethodGet {
		entry, err := rr.cache.Get(ctx, key)
		if err != nil && err != cache.ErrCacheMiss {
			rr.logger.Warn().Err(err).Str("url", req.URL()).Msg("Cache get error")
		}
		if entry != nil {
			rollingRequestsTotal.WithLabelValues(req.Method(), "cached").Inc()
			rr.logger.Debug().Str("url", req.URL()).Msg("Serving response from cache")
			resp := &Response{
				StatusCode: entry.StatusCode,
				Status:     entry.Status,
				Header:     entry.Headers,
				Body:       entry.Data,
			}
			req.SetResponseText(string(entry.Data))
			req.SetResponseInfo(entry.Status)
			return Result{Request: req, Response: resp}
		}
	}

	httpReq, err := rr.buildRequest(ctx, req)
	if err != nil {
		rollingErrorsTotal.WithLabelValues(string(ClassRequest)).Inc()
		rollingRequestsTotal.WithLabelValues(req.Method(), "request_error").Inc()
		req.SetResponseError(err.Error())
		rr.logger.Warn().Err(err).Str("url", req.URL()).Msg("Request construction failed")
		return Result{Request: req, Err: &RequestError{
			URL:    req.URL(),
			Method: req.Method(),
			Class:  ClassRequest,
			Err:    err,
		}}
	}

	resp, err := rr.httpClient.Do(httpReq)
	if err != nil {
		class := classifyError(err)
		rollingErrorsTotal.WithLabelValues(string(class)).Inc()
		rollingRequestsTotal.WithLabelValues(req.Method(), string(class)+"_error").Inc()
		req.SetResponseError(err.Error())
		rr.logger.Warn().
			Err(err).
			Str("url", req.URL()).
			Str("error_class", string(class)).
			Msg("HTTP request failed")
		return Result{Request: req, Err: &RequestError{
			URL:    req.URL(),
			Method: req.Method(),
			Class:  class,
			Err:    err,
		}}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		class := classifyError(err)
		rollingErrorsTotal.WithLabelValues(string(class)).Inc()
		rollingRequestsTotal.WithLabelValues(req.Method(), string(class)+"_error").Inc()
		req.SetResponseError(err.Error())
		rr.logger.Warn().Err(err).Str("url", req.URL()).Msg("Reading response body failed")
		return Result{Request: req, Err: &RequestError{
			URL:    req.URL(),
			Method: req.Method(),
			Class:  class,
			Err:    fmt.Errorf("read response body: %w", err),
		}}
	}

	rollingRequestsTotal.WithLabelValues(req.Method(), strconv.Itoa(resp.StatusCode)).Inc()
	req.SetResponseText(string(body))
	req.SetResponseInfo(resp.Status)

	out := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       body,
	}

	if rr.cache != nil && req.Method() == http.MethodGet && resp.StatusCode == http.StatusOK {
		entry := &cache.Entry{
			Data:       body,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Headers:    resp.Header.Clone(),
			CachedAt:   time.Now(),
			Expires:    time.Now().Add(rr.cacheTTL),
		}
		if err := rr.cache.Set(ctx, key, entry); err != nil {
			rr.logger.Warn().Err(err).Str("url", req.URL()).Msg("Failed to cache response")
		}
	}

	return Result{Request: req, Response: out}
}

// buildRequest assembles the outbound http.Request from a descriptor.
// Multipart forms are encoded here, once per dispatch.
func (rr *RollingRequests) buildRequest(ctx context.Context, req *request.Request) (*http.Request, error) {
	var body io.Reader
	contentType := ""

	switch {
	case req.HasForm():
		data, ctype, err := req.EncodeForm()
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		contentType = ctype
	case req.HasPostData():
		body = strings.NewReader(req.PostData())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), req.URL(), body)
	if err != nil {
		return nil, err
	}

	for k, v := range req.Headers() {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	return httpReq, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (rr *RollingRequests) SetHTTPClient(client *http.Client) {
	rr.httpClient = client
}
