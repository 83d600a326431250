package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTimeout marks an attempt that ran past its deadline. Retryable.
	ErrTimeout = errors.New("request timed out")
	// ErrTransient marks a service unavailable or gateway timeout response. Retryable.
	ErrTransient = errors.New("transient server error")
	// ErrNonRetryable marks any other unsuccessful response or transport failure.
	ErrNonRetryable = errors.New("non-retryable api error")
	// ErrMalformedResponse marks a successful response whose body carries no summary.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRetriesExhausted is returned once every attempt failed with a retryable error.
	ErrRetriesExhausted = errors.New("all retries exhausted")
)

// Params are the output-length settings sent with every request.
type Params struct {
	MinLength int  `json:"min_length"`
	MaxLength int  `json:"max_length"`
	DoSample  bool `json:"do_sample"`
}

// Request describes the payload for a summary request.
type Request struct {
	// Text is the full model input, instructions included.
	Text   string
	Params Params
}

// Summarizer produces a single summary for a given input text.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// Outcome tells the retry loop what to do with an attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of a single remote attempt.
type Result struct {
	Summary string
	Outcome Outcome
	Err     error
}

func Succeeded(summary string) Result {
	return Result{Summary: summary, Outcome: OutcomeSuccess}
}

func Retryable(err error) Result {
	return Result{Outcome: OutcomeRetryable, Err: err}
}

func Terminal(err error) Result {
	return Result{Outcome: OutcomeTerminal, Err: err}
}

// Backend performs exactly one remote summarization attempt.
type Backend interface {
	Name() string
	Attempt(ctx context.Context, req Request) Result
}

// transportFailure classifies an error returned before any response arrived.
func transportFailure(err error) Result {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Retryable(fmt.Errorf("%w: %w", ErrTimeout, err))
	}

	return Terminal(fmt.Errorf("%w: %w", ErrNonRetryable, err))
}
