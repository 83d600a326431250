// Package pipeline summarizes documents of any length by chunking them,
// summarizing each chunk and combining the chunk summaries.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"docsum/internal/chunker"
	"docsum/internal/summarizer"
)

const (
	TooShortMessage    = "Input text is too short to summarize."
	FailedChunkMessage = "[Summary for this section failed.]"
	EmptyResultMessage = "Could not generate summary."

	finalPromptPrefix = "Create a cohesive final summary from the following points:\n\n"

	DefaultMinTextLength = 200
	DefaultMaxChunkChars = 1000
	DefaultMaxDepth      = 3
)

// Config holds the thresholds the pipeline runs with.
type Config struct {
	// MinTextLength is the smallest trimmed input, in characters, worth a remote call.
	MinTextLength int
	MaxChunkChars int
	ChunkParams   summarizer.Params
	FinalParams   summarizer.Params
	// Recursive re-chunks combined summaries that still exceed MaxChunkChars,
	// at most MaxDepth times, before the final call.
	Recursive bool
	MaxDepth  int
}

func DefaultConfig() Config {
	return Config{
		MinTextLength: DefaultMinTextLength,
		MaxChunkChars: DefaultMaxChunkChars,
		ChunkParams:   summarizer.Params{MinLength: 50, MaxLength: 150},
		FinalParams:   summarizer.Params{MinLength: 150, MaxLength: 350},
		MaxDepth:      DefaultMaxDepth,
	}
}

type Pipeline struct {
	summarizer summarizer.Summarizer
	cfg        Config
	log        *slog.Logger
}

func New(s summarizer.Summarizer, cfg Config, log *slog.Logger) *Pipeline {
	return &Pipeline{
		summarizer: s,
		cfg:        cfg,
		log:        log,
	}
}

// Summarize returns a single summary of text. Chunks that cannot be summarized
// are replaced by FailedChunkMessage; only a failed final call or a cancelled
// context returns an error.
func (p *Pipeline) Summarize(ctx context.Context, text, prompt string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < p.cfg.MinTextLength {
		return TooShortMessage, nil
	}

	chunks := chunker.Split(text, p.cfg.MaxChunkChars)
	p.log.InfoContext(ctx, "Document is split into chunks",
		"chunkCount", len(chunks),
		"textChars", utf8.RuneCountInString(text),
		"maxChunkChars", p.cfg.MaxChunkChars)

	summaries, err := p.summarizeChunks(ctx, chunks, strings.TrimSpace(prompt), 0)
	if err != nil {
		return "", err
	}

	switch len(summaries) {
	case 0:
		return EmptyResultMessage, nil
	case 1:
		return summaries[0], nil
	}

	if p.cfg.Recursive {
		summaries, err = p.condense(ctx, summaries)
		if err != nil {
			return "", err
		}
		if len(summaries) == 1 {
			return summaries[0], nil
		}
	}

	final, err := p.summarizer.Summarize(ctx, summarizer.Request{
		Text:   finalPrompt(summaries),
		Params: p.cfg.FinalParams,
	})
	if err != nil {
		return "", fmt.Errorf("summarize combined chunks: %w", err)
	}

	return final, nil
}

// condense re-summarizes joined summaries until they fit in one chunk or the
// depth limit is reached.
func (p *Pipeline) condense(ctx context.Context, summaries []string) ([]string, error) {
	for depth := 1; depth <= p.cfg.MaxDepth; depth++ {
		joined := strings.Join(summaries, "\n")
		if utf8.RuneCountInString(joined) <= p.cfg.MaxChunkChars {
			return summaries, nil
		}

		chunks := chunker.Split(joined, p.cfg.MaxChunkChars)
		p.log.InfoContext(ctx, "Combined summaries are re-chunked",
			"depth", depth,
			"summaryCount", len(summaries),
			"chunkCount", len(chunks))

		next, err := p.summarizeChunks(ctx, chunks, "", depth)
		if err != nil {
			return nil, err
		}
		if len(next) >= len(summaries) {
			return next, nil
		}
		summaries = next
	}

	return summaries, nil
}

func (p *Pipeline) summarizeChunks(ctx context.Context, chunks []string, prompt string, depth int) ([]string, error) {
	summaries := make([]string, 0, len(chunks))
	failed := 0

	for i, chunk := range chunks {
		summary, err := p.summarizer.Summarize(ctx, summarizer.Request{
			Text:   chunkPrompt(prompt, chunk),
			Params: p.cfg.ChunkParams,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("summarize chunk %d: %w", i+1, ctxErr)
			}

			p.log.ErrorContext(ctx, "Failed to summarize chunk",
				"error", err,
				"chunkIndex", i,
				"chunkCount", len(chunks),
				"depth", depth)

			summaries = append(summaries, FailedChunkMessage)
			failed++

			continue
		}

		summaries = append(summaries, summary)
	}

	if failed > 0 {
		p.log.WarnContext(ctx, "Some chunks were not summarized",
			"failedCount", failed,
			"chunkCount", len(chunks),
			"depth", depth)
	}

	return summaries, nil
}

func chunkPrompt(prompt, chunk string) string {
	if prompt == "" {
		return chunk
	}

	return prompt + "\n\n" + chunk
}

func finalPrompt(summaries []string) string {
	return finalPromptPrefix + strings.Join(summaries, "\n")
}
