// Package ratelimiter spaces out calls to a summarization backend.
package ratelimiter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docsum/internal/summarizer"
)

const queueSize = 1000

var ErrStopped = errors.New("rate limiter is stopped")

type request struct {
	ctx      context.Context
	req      summarizer.Request
	response chan summarizer.Result
}

// RateLimiter is a summarizer.Backend that runs attempts of the wrapped backend
// one at a time, at least interval apart.
type RateLimiter struct {
	backend  summarizer.Backend
	interval time.Duration
	queue    chan request
	lastSent time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	log      *slog.Logger
}

func New(backend summarizer.Backend, interval time.Duration, log *slog.Logger) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())

	rl := &RateLimiter{
		backend:  backend,
		interval: interval,
		queue:    make(chan request, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}

	go rl.processQueue()

	return rl
}

func (rl *RateLimiter) Name() string {
	return rl.backend.Name()
}

func (rl *RateLimiter) Attempt(ctx context.Context, req summarizer.Request) summarizer.Result {
	r := request{
		ctx:      ctx,
		req:      req,
		response: make(chan summarizer.Result, 1),
	}

	select {
	case rl.queue <- r:
	case <-ctx.Done():
		return summarizer.Terminal(ctx.Err())
	case <-rl.ctx.Done():
		return summarizer.Terminal(ErrStopped)
	}

	select {
	case res := <-r.response:
		return res
	case <-ctx.Done():
		return summarizer.Terminal(ctx.Err())
	case <-rl.ctx.Done():
		return summarizer.Terminal(ErrStopped)
	}
}

func (rl *RateLimiter) Stop() {
	rl.cancel()
}

func (rl *RateLimiter) processQueue() {
	for {
		select {
		case r := <-rl.queue:
			rl.handleRequest(r)
		case <-rl.ctx.Done():
			for {
				select {
				case r := <-rl.queue:
					r.response <- summarizer.Terminal(ErrStopped)
				default:
					return
				}
			}
		}
	}
}

func (rl *RateLimiter) handleRequest(r request) {
	if rl.ctx.Err() != nil {
		r.response <- summarizer.Terminal(ErrStopped)
		return
	}

	if err := r.ctx.Err(); err != nil {
		r.response <- summarizer.Terminal(err)
		return
	}

	if delay := getDelay(rl.interval, rl.lastSent); delay > 0 {
		rl.log.DebugContext(r.ctx, "Rate limiting summarization request",
			"backend", rl.backend.Name(),
			"delay", delay,
			"queueLen", len(rl.queue))

		select {
		case <-time.After(delay):
		case <-r.ctx.Done():
			r.response <- summarizer.Terminal(r.ctx.Err())
			return
		case <-rl.ctx.Done():
			r.response <- summarizer.Terminal(ErrStopped)
			return
		}
	}

	res := rl.backend.Attempt(r.ctx, r.req)
	rl.lastSent = time.Now()

	r.response <- res
}

func getDelay(interval time.Duration, lastSent time.Time) time.Duration {
	if lastSent.IsZero() {
		return 0
	}

	return max(interval-time.Since(lastSent), 0)
}
