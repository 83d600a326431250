package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultHuggingFaceURL = "https://api-inference.huggingface.co/models/facebook/bart-large-cnn"

	maxResponseBytes  = 1 << 20
	maxErrorBodyChars = 512
)

// HuggingFace calls a hosted inference endpoint of a summarization model.
type HuggingFace struct {
	url    string
	apiKey string
	client *http.Client
}

type huggingFacePayload struct {
	Inputs     string `json:"inputs"`
	Parameters Params `json:"parameters"`
}

// summaryEnvelope lists the fields a summary may arrive in.
type summaryEnvelope struct {
	SummaryText   string `json:"summary_text"`
	GeneratedText string `json:"generated_text"`
	Summary       string `json:"summary"`
	Error         string `json:"error"`
}

// NewHuggingFace builds a backend. A nil client means http.DefaultClient.
func NewHuggingFace(url, apiKey string, client *http.Client) *HuggingFace {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultHuggingFaceURL
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &HuggingFace{
		url:    url,
		apiKey: strings.TrimSpace(apiKey),
		client: client,
	}
}

func (h *HuggingFace) Name() string { return "huggingface" }

func (h *HuggingFace) Attempt(ctx context.Context, req Request) Result {
	body, err := json.Marshal(huggingFacePayload{
		Inputs:     req.Text,
		Parameters: Params{MinLength: req.Params.MinLength, MaxLength: req.Params.MaxLength},
	})
	if err != nil {
		return Terminal(fmt.Errorf("marshal payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Terminal(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return transportFailure(fmt.Errorf("do request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportFailure(fmt.Errorf("read response: %w", err))
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return Retryable(fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode))
	default:
		return Terminal(fmt.Errorf("%w: status %d: %s",
			ErrNonRetryable, resp.StatusCode, truncate(string(respBody), maxErrorBodyChars)))
	}

	summary, err := ParseSummary(respBody)
	if err != nil {
		return Terminal(err)
	}

	return Succeeded(summary)
}

// ParseSummary extracts the summary from either a list of objects or a single
// object. Only the first list element is considered.
func ParseSummary(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	var envelope summaryEnvelope

	switch trimmed[0] {
	case '[':
		var items []summaryEnvelope
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", fmt.Errorf("%w: decode list: %w", ErrMalformedResponse, err)
		}
		if len(items) == 0 {
			return "", fmt.Errorf("%w: empty list", ErrMalformedResponse)
		}
		envelope = items[0]
	case '{':
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return "", fmt.Errorf("%w: decode object: %w", ErrMalformedResponse, err)
		}
	default:
		return "", fmt.Errorf("%w: unexpected body %q", ErrMalformedResponse, truncate(string(trimmed), maxErrorBodyChars))
	}

	for _, candidate := range []string{envelope.SummaryText, envelope.GeneratedText, envelope.Summary} {
		if summary := strings.TrimSpace(candidate); summary != "" {
			return summary, nil
		}
	}

	if envelope.Error != "" {
		return "", fmt.Errorf("%w: service error %q", ErrMalformedResponse, envelope.Error)
	}

	return "", fmt.Errorf("%w: no summary field", ErrMalformedResponse)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}

	return string(runes[:maxChars]) + "…"
}
