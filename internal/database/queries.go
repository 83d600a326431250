package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"docsum/internal/domain"
)

var ErrNotFound = domain.ErrNotFound

// InsertOCRResult stores recognized data for fUUID and returns the new OCR row
// UUID. The row starts out pending summarization.
func (d *Database) InsertOCRResult(
	ctx context.Context,
	fUUID string,
	data string,
	avgConfidence *float64,
) (string, error) {
	fUUID = strings.TrimSpace(fUUID)
	if fUUID == "" {
		return "", errors.New("file UUID is empty")
	}

	ocrUUID := uuid.NewString()
	query := d.rebind("insert into ocr (ocr_uuid, f_uuid, data, avg_confidence, summary_generated) values (?, ?, ?, ?, ?)")

	if _, err := d.db.ExecContext(ctx, query, ocrUUID, fUUID, data, nullFloat(avgConfidence), false); err != nil {
		return "", fmt.Errorf("insert OCR row: %w", err)
	}

	return ocrUUID, nil
}

// PendingOCRRows returns up to limit rows not yet summarized, oldest first.
// Abandoned rows and rows that already failed maxAttempts times are left out.
func (d *Database) PendingOCRRows(ctx context.Context, limit, maxAttempts int) ([]domain.OCRRow, error) {
	if limit <= 0 || maxAttempts <= 0 {
		return nil, nil
	}

	query := d.rebind(`select ocr_uuid, f_uuid, data, avg_confidence, summary_generated, attempts, created_at
from ocr where summary_generated = ? and abandoned = ? and attempts < ?
order by created_at, ocr_uuid limit ?`)

	rows, err := d.db.QueryContext(ctx, query, false, false, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", "PendingOCRRows")
		}
	}()

	var result []domain.OCRRow
	for rows.Next() {
		var (
			r    domain.OCRRow
			conf sql.NullFloat64
		)
		if err = rows.Scan(&r.OCRUUID, &r.FUUID, &r.Data, &conf, &r.SummaryGenerated, &r.Attempts, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if conf.Valid {
			v := conf.Float64
			r.AvgConfidence = &v
		}

		result = append(result, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return result, nil
}

// FailOCRRow counts a failed run against the row and keeps reason. An
// abandoned row is never returned as pending again.
func (d *Database) FailOCRRow(ctx context.Context, ocrUUID, reason string, abandon bool) error {
	query := d.rebind("update ocr set attempts = attempts + 1, last_error = ?, abandoned = ? where ocr_uuid = ?")

	res, err := d.db.ExecContext(ctx, query, reason, abandon, ocrUUID)
	if err != nil {
		return fmt.Errorf("record OCR row failure: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record OCR row %s failure: %w", ocrUUID, ErrNotFound)
	}

	return nil
}

// CompleteOCRRow stores summaryJSON for row and marks the row summarized in one
// transaction. The new summary UUID is returned.
func (d *Database) CompleteOCRRow(ctx context.Context, row domain.OCRRow, summaryJSON string) (string, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			d.log.ErrorContext(ctx, "Failed to rollback transaction",
				"error", rbErr,
				"ocrUUID", row.OCRUUID)
		}
	}()

	sUUID := uuid.NewString()

	insert := d.rebind("insert into summary (s_uuid, f_uuid, summary) values (?, ?, ?)")
	if _, err = tx.ExecContext(ctx, insert, sUUID, row.FUUID, summaryJSON); err != nil {
		return "", fmt.Errorf("insert summary: %w", err)
	}

	update := d.rebind("update ocr set summary_generated = ? where ocr_uuid = ?")
	res, err := tx.ExecContext(ctx, update, true, row.OCRUUID)
	if err != nil {
		return "", fmt.Errorf("mark OCR row summarized: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("mark OCR row %s summarized: %w", row.OCRUUID, ErrNotFound)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}

	return sUUID, nil
}

// GetSummary returns the newest summary stored for fUUID.
func (d *Database) GetSummary(ctx context.Context, fUUID string) (domain.SummaryRow, error) {
	query := d.rebind(`select s_uuid, f_uuid, summary, created_at
from summary where f_uuid = ? order by created_at desc, s_uuid desc limit 1`)

	var r domain.SummaryRow
	err := d.db.QueryRowContext(ctx, query, strings.TrimSpace(fUUID)).
		Scan(&r.SUUID, &r.FUUID, &r.Summary, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SummaryRow{}, ErrNotFound
	}
	if err != nil {
		return domain.SummaryRow{}, fmt.Errorf("failed to query summary: %w", err)
	}

	return r, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: *f, Valid: true}
}
