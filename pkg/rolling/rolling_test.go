package rolling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rollinghttp/rollingrequests/internal/testutil"
	"github.com/rollinghttp/rollingrequests/pkg/request"
)

func newExecutor(t *testing.T, cfg Config) *RollingRequests {
	t.Helper()

	rr, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return rr
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SimultaneousLimit != 1 {
		t.Errorf("SimultaneousLimit = %d, want 1", cfg.SimultaneousLimit)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.ForceHTTP2 {
		t.Error("ForceHTTP2 should default to false")
	}
	if cfg.AutoAdvance {
		t.Error("AutoAdvance should default to false")
	}
}

func TestNew_NormalizesConfig(t *testing.T) {
	rr := newExecutor(t, Config{SimultaneousLimit: 0})

	if rr.limit != 1 {
		t.Errorf("limit = %d, want 1 for zero config", rr.limit)
	}
	if rr.httpClient.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s for zero config", rr.httpClient.Timeout)
	}
}

func TestNew_ForceHTTP2(t *testing.T) {
	rr, err := New(Config{ForceHTTP2: true})
	if err != nil {
		t.Fatalf("New() with ForceHTTP2 failed: %v", err)
	}
	if rr == nil {
		t.Fatal("New() returned nil executor")
	}
}

func TestExecute_EmptyQueue(t *testing.T) {
	rr := newExecutor(t, DefaultConfig())

	results := rr.Execute(context.Background())
	if len(results) != 0 {
		t.Errorf("Execute() on empty queue returned %d results, want 0", len(results))
	}
}

func TestExecute_WindowSize(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	tests := []struct {
		name     string
		limit    int
		enqueued int
		want     int
	}{
		{"limit below queue", 2, 5, 2},
		{"limit equals queue", 3, 3, 3},
		{"limit above queue", 10, 4, 4},
		{"single request", 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := newExecutor(t, Config{SimultaneousLimit: tt.limit, Timeout: 5 * time.Second})

			for i := 0; i < tt.enqueued; i++ {
				rr.AddRequest(request.New(server.URL()+"/get", http.MethodGet))
			}

			results := rr.Execute(context.Background())
			if len(results) != tt.want {
				t.Errorf("Execute() returned %d results, want %d", len(results), tt.want)
			}
			// Manual mode leaves the queue untouched.
			if rr.PendingCount() != tt.enqueued {
				t.Errorf("PendingCount() = %d, want %d", rr.PendingCount(), tt.enqueued)
			}
		})
	}
}

func TestExecute_BatchDrain(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	rr := newExecutor(t, Config{SimultaneousLimit: 2, Timeout: 5 * time.Second})

	for i := 0; i < 5; i++ {
		rr.AddRequest(request.New(server.URL()+"/get", http.MethodGet))
	}

	var batchSizes []int
	total := 0
	for rr.PendingCount() > 0 {
		results := rr.Execute(context.Background())
		batchSizes = append(batchSizes, len(results))

		for _, res := range results {
			if res.Err != nil {
				t.Fatalf("unexpected request error: %v", res.Err)
			}
			if !strings.Contains(string(res.Response.Body), `"url"`) {
				t.Errorf("response body = %q, want url echo", res.Response.Body)
			}
			total++
		}

		rr.ClearProcessed(len(results))
	}

	wantSizes := []int{2, 2, 1}
	if len(batchSizes) != len(wantSizes) {
		t.Fatalf("drained in %d windows %v, want %v", len(batchSizes), batchSizes, wantSizes)
	}
	for i, want := range wantSizes {
		if batchSizes[i] != want {
			t.Errorf("window %d size = %d, want %d", i, batchSizes[i], want)
		}
	}
	if total != 5 {
		t.Errorf("total outcomes = %d, want 5", total)
	}
	if server.GetRequestCount() != 5 {
		t.Errorf("server request count = %d, want 5", server.GetRequestCount())
	}
}

func TestExecute_AutoAdvance(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	rr := newExecutor(t, Config{
		SimultaneousLimit: 2,
		Timeout:           5 * time.Second,
		AutoAdvance:       true,
	})

	for i := 0; i < 5; i++ {
		rr.AddRequest(request.New(server.URL()+"/get", http.MethodGet))
	}

	wantPending := []int{3, 1, 0}
	total := 0
	for i := 0; rr.PendingCount() > 0; i++ {
		results := rr.Execute(context.Background())
		total += len(results)

		if rr.PendingCount() != wantPending[i] {
			t.Errorf("PendingCount() after window %d = %d, want %d",
				i, rr.PendingCount(), wantPending[i])
		}
	}

	if total != 5 {
		t.Errorf("total outcomes = %d, want 5", total)
	}
}

func TestExecute_OrderPreserved(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	// Later requests complete first; outcomes must still come back in
	// queue order.
	delays := []time.Duration{200 * time.Millisecond, 120 * time.Millisecond, 40 * time.Millisecond, 0}
	for i, delay := range delays {
		path := fmt.Sprintf("/ordinal/%d", i)
		server.SetResponse(path, testutil.NewDelayedResponse(
			fmt.Sprintf(`{"ordinal": %d}`, i), delay))
	}

	rr := newExecutor(t, Config{SimultaneousLimit: 4, Timeout: 5 * time.Second})
	for i := range delays {
		req := request.New(fmt.Sprintf("%s/ordinal/%d", server.URL(), i), http.MethodGet).
			SetTag(fmt.Sprintf("%d", i))
		rr.AddRequest(req)
	}

	results := rr.Execute(context.Background())
	if len(results) != len(delays) {
		t.Fatalf("Execute() returned %d results, want %d", len(results), len(delays))
	}

	for i, res := range results {
		wantTag := fmt.Sprintf("%d", i)
		if res.Request.Tag() != wantTag {
			t.Errorf("result %d tag = %q, want %q", i, res.Request.Tag(), wantTag)
		}
		if res.Err != nil {
			t.Errorf("result %d unexpected error: %v", i, res.Err)
			continue
		}
		wantBody := fmt.Sprintf(`{"ordinal": %d}`, i)
		if string(res.Response.Body) != wantBody {
			t.Errorf("result %d body = %q, want %q", i, res.Response.Body, wantBody)
		}
	}
}

func TestExecute_ConcurrencyBound(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/slow", testutil.NewDelayedResponse(`{"ok": true}`, 200*time.Millisecond))

	rr := newExecutor(t, Config{
		SimultaneousLimit: 2,
		Timeout:           5 * time.Second,
		AutoAdvance:       true,
	})

	for i := 0; i < 6; i++ {
		rr.AddRequest(request.New(server.URL()+"/slow", http.MethodGet))
	}

	for rr.PendingCount() > 0 {
		rr.Execute(context.Background())
	}

	if server.MaxInFlight() > 2 {
		t.Errorf("max in-flight requests = %d, want <= 2", server.MaxInFlight())
	}
	// With 200ms handlers the two requests of a window overlap.
	if server.MaxInFlight() < 2 {
		t.Errorf("max in-flight requests = %d, want 2 (window not parallel)", server.MaxInFlight())
	}
}

func TestExecute_PostBodyMatch(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetBodyMatchResponse("/post", `{"key":"value"}`, `{"status":"success"}`)

	rr := newExecutor(t, DefaultConfig())

	req := request.New(server.URL()+"/post", http.MethodPost).
		SetPostData(`{"key":"value"}`)
	rr.AddRequest(req)

	results := rr.Execute(context.Background())
	if len(results) != 1 {
		t.Fatalf("Execute() returned %d results, want 1", len(results))
	}

	res := results[0]
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Response.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", res.Response.StatusCode)
	}
	if string(res.Response.Body) != `{"status":"success"}` {
		t.Errorf("body = %q, want %q", res.Response.Body, `{"status":"success"}`)
	}
}

func TestExecute_PutPatchWithHeaders(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPut, "/put", `{"status":"updated"}`},
		{http.MethodPatch, "/patch", `{"status":"patched"}`},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			server := testutil.NewMockServer()
			defer server.Close()
			server.SetBodyMatchResponse(tt.path, `{"key":"value"}`, tt.want)

			rr := newExecutor(t, DefaultConfig())

			req := request.New(server.URL()+tt.path, tt.method).
				SetPostData(`{"key":"value"}`).
				SetHeaders(map[string]string{"content-type": "application/json"})
			rr.AddRequest(req)

			results := rr.Execute(context.Background())
			if len(results) != 1 {
				t.Fatalf("Execute() returned %d results, want 1", len(results))
			}
			if results[0].Err != nil {
				t.Fatalf("unexpected error: %v", results[0].Err)
			}
			if string(results[0].Response.Body) != tt.want {
				t.Errorf("body = %q, want %q", results[0].Response.Body, tt.want)
			}
			if server.LastRequestHeader.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q, want application/json",
					server.LastRequestHeader.Get("Content-Type"))
			}
		})
	}
}

func TestExecute_TimeoutIsolated(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/hang", testutil.NewDelayedResponse(`{"late": true}`, 2*time.Second))

	rr := newExecutor(t, Config{SimultaneousLimit: 2, Timeout: 200 * time.Millisecond})

	rr.AddRequest(request.New(server.URL()+"/hang", http.MethodGet).SetTag("slow"))
	rr.AddRequest(request.New(server.URL()+"/get", http.MethodGet).SetTag("fast"))

	results := rr.Execute(context.Background())
	if len(results) != 2 {
		t.Fatalf("Execute() returned %d results, want 2", len(results))
	}

	slow, fast := results[0], results[1]

	if slow.Err == nil {
		t.Fatal("slow request should have timed out")
	}
	if !IsTimeout(slow.Err) {
		t.Errorf("slow request error = %v, want timeout class", slow.Err)
	}
	if slow.Request.ResponseError() == "" {
		t.Error("timeout should be recorded on the dispatched copy")
	}

	if fast.Err != nil {
		t.Errorf("fast sibling failed: %v", fast.Err)
	}
	if fast.Response == nil || fast.Response.StatusCode != http.StatusOK {
		t.Error("fast sibling should have completed normally")
	}
}

func TestExecute_UnreachableAddress(t *testing.T) {
	// 192.0.2.0/24 is reserved for documentation and never routable.
	rr := newExecutor(t, Config{SimultaneousLimit: 1, Timeout: 100 * time.Millisecond})
	rr.AddRequest(request.New("http://192.0.2.0", http.MethodGet))

	results := rr.Execute(context.Background())
	if len(results) != 1 {
		t.Fatalf("Execute() returned %d results, want 1", len(results))
	}
	if results[0].Err == nil {
		t.Fatal("expected request to fail")
	}

	var re *RequestError
	if !errors.As(results[0].Err, &re) {
		t.Fatalf("error type = %T, want *RequestError", results[0].Err)
	}
	if re.Class != ClassTimeout && re.Class != ClassNetwork {
		t.Errorf("error class = %q, want timeout or network", re.Class)
	}
}

func TestExecute_RequestErrorIsolated(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	rr := newExecutor(t, Config{SimultaneousLimit: 2, Timeout: 5 * time.Second})

	rr.AddRequest(request.New("://not-a-url", http.MethodGet))
	rr.AddRequest(request.New(server.URL()+"/get", http.MethodGet))

	results := rr.Execute(context.Background())
	if len(results) != 2 {
		t.Fatalf("Execute() returned %d results, want 2", len(results))
	}

	var re *RequestError
	if !errors.As(results[0].Err, &re) || re.Class != ClassRequest {
		t.Errorf("malformed URL error = %v, want request class", results[0].Err)
	}
	if results[1].Err != nil {
		t.Errorf("sibling failed: %v", results[1].Err)
	}
}

func TestExecute_HTTPErrorStatusIsNotAnError(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/fail", testutil.NewServerErrorResponse())

	rr := newExecutor(t, DefaultConfig())
	rr.AddRequest(request.New(server.URL()+"/fail", http.MethodGet))

	results := rr.Execute(context.Background())
	if len(results) != 1 {
		t.Fatalf("Execute() returned %d results, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("HTTP 500 should not be a transport error, got %v", results[0].Err)
	}
	if results[0].Response.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", results[0].Response.StatusCode)
	}
}

func TestExecute_OriginalNotMutated(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	rr := newExecutor(t, DefaultConfig())

	orig := request.New(server.URL()+"/get", http.MethodGet)
	rr.AddRequest(orig)

	results := rr.Execute(context.Background())
	if len(results) != 1 {
		t.Fatalf("Execute() returned %d results, want 1", len(results))
	}

	if results[0].Request == orig {
		t.Error("executor dispatched the caller's instance instead of a copy")
	}
	if results[0].Request.ResponseText() == "" {
		t.Error("outcome not recorded on the dispatched copy")
	}
	if orig.ResponseText() != "" {
		t.Error("outcome leaked into the caller's original request")
	}
}

// panicTransport fails one URL by panicking instead of returning an error,
// simulating a task-level failure rather than an HTTP-level one.
type panicTransport struct {
	panicURL string
	inner    http.RoundTripper
}

func (t *panicTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.String() == t.panicURL {
		panic("injected dispatch failure")
	}
	return t.inner.RoundTrip(req)
}

func TestExecute_TaskFailureFillsSlot(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	rr := newExecutor(t, Config{SimultaneousLimit: 2, Timeout: 5 * time.Second})
	rr.SetHTTPClient(&http.Client{
		Transport: &panicTransport{
			panicURL: server.URL() + "/boom",
			inner:    http.DefaultTransport,
		},
		Timeout: 5 * time.Second,
	})

	rr.AddRequest(request.New(server.URL()+"/boom", http.MethodGet))
	rr.AddRequest(request.New(server.URL()+"/get", http.MethodGet))

	results := rr.Execute(context.Background())
	if len(results) != 2 {
		t.Fatalf("Execute() returned %d results, want 2 (one per dispatched request)", len(results))
	}

	if results[0].Err == nil {
		t.Fatal("panicking task should produce an error outcome")
	}
	if !strings.Contains(results[0].Err.Error(), "dispatch task failed") {
		t.Errorf("error = %v, want dispatch task failure", results[0].Err)
	}
	if results[1].Err != nil {
		t.Errorf("sibling failed: %v", results[1].Err)
	}
}

func TestClearProcessed(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	rr := newExecutor(t, DefaultConfig())
	for i := 0; i < 3; i++ {
		rr.AddRequest(request.New(server.URL()+"/get", http.MethodGet))
	}

	rr.ClearProcessed(2)
	if rr.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", rr.PendingCount())
	}

	// Clamped: never removes more than exist.
	rr.ClearProcessed(5)
	if rr.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after clamped clear", rr.PendingCount())
	}

	// Negative counts are ignored.
	rr.AddRequest(request.New(server.URL()+"/get", http.MethodGet))
	rr.ClearProcessed(-1)
	if rr.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1 after negative clear", rr.PendingCount())
	}
}

func TestClearProcessed_PreservesOrder(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	rr := newExecutor(t, Config{SimultaneousLimit: 2, Timeout: 5 * time.Second})
	for i := 0; i < 4; i++ {
		rr.AddRequest(request.New(server.URL()+"/get", http.MethodGet).
			SetTag(fmt.Sprintf("%d", i)))
	}

	rr.ClearProcessed(2)

	results := rr.Execute(context.Background())
	if len(results) != 2 {
		t.Fatalf("Execute() returned %d results, want 2", len(results))
	}
	if results[0].Request.Tag() != "2" || results[1].Request.Tag() != "3" {
		t.Errorf("window tags = [%s %s], want [2 3]",
			results[0].Request.Tag(), results[1].Request.Tag())
	}
}

func TestExecute_MultipartForm(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetHandler("/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("field") != "value" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"uploaded"}`))
	})

	rr := newExecutor(t, DefaultConfig())
	rr.AddRequest(request.New(server.URL()+"/upload", http.MethodPost).
		AddFormText("field", "value"))

	results := rr.Execute(context.Background())
	if len(results) != 1 {
		t.Fatalf("Execute() returned %d results, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	if results[0].Response.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 (form not transmitted)", results[0].Response.StatusCode)
	}
}
