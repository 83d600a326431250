package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const (
	DefaultOpenAIModel = "gpt-5-mini"

	baseMaxOutputTokens  int64 = 512
	limitMaxOutputTokens int64 = 2048

	instructionsTemplate = `Summarize the document you are given.

Rules:
- Between %d and %d words.
- Keep the key facts: names, dates, numbers, decisions.
- Follow any instruction that precedes the document.
- Neutral tone, plain prose, no lists.
- Output only the summary, in the same language as the input.`
)

// OpenAI calls OpenAI's Responses API to produce summaries.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI builds a backend. The SDK's own retries are disabled so Client is
// the only retry layer. baseURL may be empty.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Attempt(ctx context.Context, req Request) Result {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Terminal(fmt.Errorf("%w: input is empty", ErrNonRetryable))
	}

	instructions := fmt.Sprintf(instructionsTemplate, req.Params.MinLength, req.Params.MaxLength)

	maxOutputTokens := max(baseMaxOutputTokens, int64(req.Params.MaxLength)*2)
	for {
		resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
			Model:           o.model,
			MaxOutputTokens: openai.Int(maxOutputTokens),
			Reasoning: responses.ReasoningParam{
				Effort: openai.ReasoningEffortLow,
			},
			Instructions: openai.String(instructions),
			Input: responses.ResponseNewParamsInputUnion{
				OfString: openai.String(text),
			},
		})
		if err != nil {
			return classifyOpenAIError(err)
		}

		if resp.Status == "incomplete" {
			if resp.IncompleteDetails.Reason == "max_output_tokens" && maxOutputTokens < limitMaxOutputTokens {
				maxOutputTokens = min(maxOutputTokens*2, limitMaxOutputTokens)
				continue
			}

			return Terminal(fmt.Errorf(
				"%w: response is incomplete (reason = %s, maxOutputTokens = %d)",
				ErrMalformedResponse,
				resp.IncompleteDetails.Reason,
				maxOutputTokens,
			))
		}

		summary := strings.TrimSpace(resp.OutputText())
		if summary == "" {
			return Terminal(fmt.Errorf("%w: output text is missing (status = %s)", ErrMalformedResponse, resp.Status))
		}

		return Succeeded(summary)
	}
}

func classifyOpenAIError(err error) Result {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return transportFailure(fmt.Errorf("do request: %w", err))
	}

	switch apiErr.StatusCode {
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return Retryable(fmt.Errorf("%w: status %d: %w", ErrTransient, apiErr.StatusCode, err))
	default:
		return Terminal(fmt.Errorf("%w: status %d: %w", ErrNonRetryable, apiErr.StatusCode, err))
	}
}
