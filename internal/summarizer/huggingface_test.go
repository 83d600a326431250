package summarizer_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"docsum/internal/summarizer"
)

type recordedRequest struct {
	auth    string
	payload map[string]any
}

type fakeInference struct {
	mu       sync.Mutex
	requests []recordedRequest
	replies  []func(w http.ResponseWriter)
}

func (f *fakeInference) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	f.mu.Lock()
	idx := len(f.requests)
	f.requests = append(f.requests, recordedRequest{auth: r.Header.Get("Authorization"), payload: payload})
	reply := f.replies[min(idx, len(f.replies)-1)]
	f.mu.Unlock()

	reply(w)
}

func (f *fakeInference) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.requests)
}

func status(code int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	}
}

func newClient(url string) *summarizer.Client {
	backend := summarizer.NewHuggingFace(url, "hf_test", nil)

	return summarizer.NewClient(backend, summarizer.RetryConfig{
		Timeout:     time.Second,
		MaxAttempts: 3,
		BackoffBase: 0.001,
		MaxBackoff:  time.Millisecond,
	}, slog.Default())
}

func TestHuggingFaceSendsPayload(t *testing.T) {
	fake := &fakeInference{replies: []func(http.ResponseWriter){
		status(http.StatusOK, `[{"summary_text":"short version"}]`),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	summary, err := newClient(srv.URL).Summarize(context.Background(), summarizer.Request{
		Text:   "long text",
		Params: summarizer.Params{MinLength: 50, MaxLength: 150},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary != "short version" {
		t.Fatalf("unexpected summary: %q", summary)
	}

	got := fake.requests[0]
	if got.auth != "Bearer hf_test" {
		t.Fatalf("unexpected authorization header: %q", got.auth)
	}

	if got.payload["inputs"] != "long text" {
		t.Fatalf("unexpected inputs: %v", got.payload["inputs"])
	}

	params, ok := got.payload["parameters"].(map[string]any)
	if !ok {
		t.Fatalf("parameters missing: %v", got.payload)
	}
	if params["min_length"] != float64(50) || params["max_length"] != float64(150) || params["do_sample"] != false {
		t.Fatalf("unexpected parameters: %v", params)
	}
}

func TestHuggingFaceRetriesTransientStatus(t *testing.T) {
	fake := &fakeInference{replies: []func(http.ResponseWriter){
		status(http.StatusServiceUnavailable, `{"error":"loading"}`),
		status(http.StatusGatewayTimeout, ``),
		status(http.StatusOK, `{"summary_text":"finally"}`),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	summary, err := newClient(srv.URL).Summarize(context.Background(), summarizer.Request{Text: "text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary != "finally" {
		t.Fatalf("unexpected summary: %q", summary)
	}

	if got := fake.count(); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestHuggingFaceDoesNotRetryClientError(t *testing.T) {
	fake := &fakeInference{replies: []func(http.ResponseWriter){
		status(http.StatusBadRequest, `{"error":"bad input"}`),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newClient(srv.URL).Summarize(context.Background(), summarizer.Request{Text: "text"})
	if !errors.Is(err, summarizer.ErrNonRetryable) {
		t.Fatalf("expected ErrNonRetryable, got %v", err)
	}

	if got := fake.count(); got != 1 {
		t.Fatalf("expected a single request, got %d", got)
	}
}

func TestHuggingFaceDoesNotRetryMalformedBody(t *testing.T) {
	fake := &fakeInference{replies: []func(http.ResponseWriter){
		status(http.StatusOK, `[]`),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newClient(srv.URL).Summarize(context.Background(), summarizer.Request{Text: "text"})
	if !errors.Is(err, summarizer.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}

	if got := fake.count(); got != 1 {
		t.Fatalf("expected a single request, got %d", got)
	}
}

func TestHuggingFaceExhaustsRetries(t *testing.T) {
	fake := &fakeInference{replies: []func(http.ResponseWriter){
		status(http.StatusServiceUnavailable, ``),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newClient(srv.URL).Summarize(context.Background(), summarizer.Request{Text: "text"})
	if !errors.Is(err, summarizer.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}

	if got := fake.count(); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestParseSummary(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"list", `[{"summary_text":"a"},{"summary_text":"b"}]`, "a"},
		{"object", `{"summary_text":"a"}`, "a"},
		{"generated text", `[{"generated_text":" g "}]`, "g"},
		{"summary field", `{"summary":"s"}`, "s"},
		{"whitespace", "\n  {\"summary_text\":\"w\"}  ", "w"},
	}

	for _, tc := range cases {
		got, err := summarizer.ParseSummary([]byte(tc.body))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestParseSummaryRejectsUnexpectedShapes(t *testing.T) {
	for _, body := range []string{``, `[]`, `{}`, `"text"`, `[1,2]`, `{"error":"model is loading"}`, `not json`} {
		if _, err := summarizer.ParseSummary([]byte(body)); !errors.Is(err, summarizer.ErrMalformedResponse) {
			t.Fatalf("body %q: expected ErrMalformedResponse, got %v", body, err)
		}
	}
}
