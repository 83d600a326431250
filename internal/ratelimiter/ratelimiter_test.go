package ratelimiter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"docsum/internal/summarizer"
)

type recordingBackend struct {
	mu    sync.Mutex
	calls []time.Time
	hold  chan struct{}
}

func (b *recordingBackend) Name() string { return "recording" }

func (b *recordingBackend) Attempt(_ context.Context, req summarizer.Request) summarizer.Result {
	if b.hold != nil {
		<-b.hold
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, time.Now())

	return summarizer.Succeeded("summary of " + req.Text)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetDelay(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		interval time.Duration
		lastSent time.Time
		wantZero bool
	}{
		{"First request", time.Second, time.Time{}, true},
		{"Interval elapsed", time.Second, now.Add(-2 * time.Second), true},
		{"Interval pending", time.Second, now.Add(-500 * time.Millisecond), false},
		{"Disabled interval", 0, now, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := getDelay(test.interval, test.lastSent)

			if test.wantZero && got > 0 {
				t.Fatalf("Expected zero delay, got %v", got)
			}

			if !test.wantZero && got <= 0 {
				t.Fatalf("Expected positive delay, got %v", got)
			}
		})
	}
}

func TestAttemptsAreSpaced(t *testing.T) {
	backend := &recordingBackend{}
	rl := New(backend, 40*time.Millisecond, discardLogger())
	defer rl.Stop()

	for _, text := range []string{"a", "b"} {
		res := rl.Attempt(context.Background(), summarizer.Request{Text: text})
		if res.Outcome != summarizer.OutcomeSuccess || res.Summary != "summary of "+text {
			t.Fatalf("unexpected result: %+v", res)
		}
	}

	if len(backend.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(backend.calls))
	}

	if gap := backend.calls[1].Sub(backend.calls[0]); gap < 30*time.Millisecond {
		t.Fatalf("calls were not spaced: %v", gap)
	}

	if rl.Name() != "recording" {
		t.Fatalf("unexpected name: %s", rl.Name())
	}
}

func TestAttemptHonorsCallerContext(t *testing.T) {
	backend := &recordingBackend{}
	rl := New(backend, time.Hour, discardLogger())
	defer rl.Stop()

	_ = rl.Attempt(context.Background(), summarizer.Request{Text: "first"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := rl.Attempt(ctx, summarizer.Request{Text: "second"})
	if res.Outcome != summarizer.OutcomeTerminal || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline result, got %+v", res)
	}

	if len(backend.calls) != 1 {
		t.Fatalf("queued request must not reach the backend")
	}
}

func TestStoppedLimiterRejectsAttempts(t *testing.T) {
	rl := New(&recordingBackend{}, 0, discardLogger())
	rl.Stop()

	res := rl.Attempt(context.Background(), summarizer.Request{Text: "x"})
	if res.Outcome != summarizer.OutcomeTerminal || !errors.Is(res.Err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %+v", res)
	}
}
