package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"docsum/internal/domain"
	"docsum/internal/ocr"
)

const (
	DefaultBatchLimit  = 50
	DefaultMaxAttempts = 3
)

// Store is the persistence the batch needs.
type Store interface {
	PendingOCRRows(ctx context.Context, limit, maxAttempts int) ([]domain.OCRRow, error)
	CompleteOCRRow(ctx context.Context, row domain.OCRRow, summaryJSON string) (string, error)
	FailOCRRow(ctx context.Context, ocrUUID, reason string, abandon bool) error
}

// DocumentSummarizer summarizes one document with an optional prompt.
type DocumentSummarizer interface {
	Summarize(ctx context.Context, text, prompt string) (string, error)
}

// Report counts the outcome of one batch run.
type Report struct {
	Processed int
	Skipped   int
	Failed    int
}

// Batch summarizes pending OCR rows page by page.
type Batch struct {
	store      Store
	summarizer DocumentSummarizer
	limit       int
	maxAttempts int
	log         *slog.Logger
}

func NewBatch(store Store, summarizer DocumentSummarizer, limit, maxAttempts int, log *slog.Logger) *Batch {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Batch{
		store:       store,
		summarizer:  summarizer,
		limit:       limit,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Run processes one batch. Rows whose data cannot be decoded are abandoned at
// once. A row with a failed page is retried by later runs until it has failed
// maxAttempts times.
func (b *Batch) Run(ctx context.Context) (Report, error) {
	var report Report

	rows, err := b.store.PendingOCRRows(ctx, b.limit, b.maxAttempts)
	if err != nil {
		return report, fmt.Errorf("load pending rows: %w", err)
	}

	var errs []error
	for _, row := range rows {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		pages, err := ocr.DecodePages(row.Data, row.AvgConfidence)
		if err != nil {
			b.log.ErrorContext(ctx, "Failed to decode OCR data",
				"error", err,
				"ocrUUID", row.OCRUUID,
				"fUUID", row.FUUID)

			report.Skipped++
			if err = b.fail(ctx, row, err, true); err != nil {
				errs = append(errs, err)
			}

			continue
		}

		summaries, err := b.summarizePages(ctx, row, pages)
		if err != nil {
			report.Failed++
			errs = append(errs, err)

			// A canceled run says nothing about the row itself.
			if ctx.Err() == nil {
				if err = b.fail(ctx, row, err, row.Attempts+1 >= b.maxAttempts); err != nil {
					errs = append(errs, err)
				}
			}

			continue
		}

		data, err := json.Marshal(summaries)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("encode summaries for %s: %w", row.OCRUUID, err))

			continue
		}

		sUUID, err := b.store.CompleteOCRRow(ctx, row, string(data))
		if err != nil {
			b.log.ErrorContext(ctx, "Failed to store summary",
				"error", err,
				"ocrUUID", row.OCRUUID,
				"fUUID", row.FUUID)

			report.Failed++
			errs = append(errs, fmt.Errorf("complete %s: %w", row.OCRUUID, err))

			continue
		}

		b.log.InfoContext(ctx, "Summarized OCR row",
			"ocrUUID", row.OCRUUID,
			"fUUID", row.FUUID,
			"sUUID", sUUID,
			"pageCount", len(pages))

		report.Processed++
	}

	return report, errors.Join(errs...)
}

func (b *Batch) fail(ctx context.Context, row domain.OCRRow, cause error, abandon bool) error {
	if err := b.store.FailOCRRow(ctx, row.OCRUUID, cause.Error(), abandon); err != nil {
		b.log.ErrorContext(ctx, "Failed to record OCR row failure",
			"error", err,
			"ocrUUID", row.OCRUUID,
			"fUUID", row.FUUID)

		return fmt.Errorf("record failure of %s: %w", row.OCRUUID, err)
	}

	if abandon {
		b.log.WarnContext(ctx, "OCR row is abandoned",
			"ocrUUID", row.OCRUUID,
			"fUUID", row.FUUID,
			"attempts", row.Attempts+1)
	}

	return nil
}

func (b *Batch) summarizePages(
	ctx context.Context,
	row domain.OCRRow,
	pages []domain.Page,
) ([]domain.PageSummary, error) {
	summaries := make([]domain.PageSummary, 0, len(pages))

	for _, page := range pages {
		summary, err := b.summarizer.Summarize(ctx, page.Text, "")
		if err != nil {
			b.log.ErrorContext(ctx, "Failed to summarize page",
				"error", err,
				"ocrUUID", row.OCRUUID,
				"fUUID", row.FUUID,
				"pageIndex", page.PageIndex)

			return nil, fmt.Errorf("summarize %s page %d: %w", row.OCRUUID, page.PageIndex, err)
		}

		summaries = append(summaries, domain.PageSummary{
			PageIndex:     page.PageIndex,
			Summary:       summary,
			AvgConfidence: page.AvgConfidence,
		})
	}

	return summaries, nil
}
