package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"docsum/internal/domain"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := New(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"), log)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestDriverFor(t *testing.T) {
	cases := map[string]string{
		"db.sqlite":                           driverSQLite,
		"file:test.db?cache=shared":           driverSQLite,
		"postgres://u:p@localhost/docs":       driverPostgres,
		"PostgreSQL://u:p@localhost:5432/doc": driverPostgres,
	}

	for dsn, want := range cases {
		if got := DriverFor(dsn); got != want {
			t.Fatalf("DriverFor(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestRebind(t *testing.T) {
	pg := &Database{driver: driverPostgres}
	if got := pg.rebind("update ocr set a = ? where b = ?"); got != "update ocr set a = $1 where b = $2" {
		t.Fatalf("unexpected postgres query: %s", got)
	}

	lite := &Database{driver: driverSQLite}
	if got := lite.rebind("select ?"); got != "select ?" {
		t.Fatalf("sqlite query must stay unchanged: %s", got)
	}
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New(context.Background(), "  ", slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestNewIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.sqlite")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	for i := range 2 {
		db, err := New(context.Background(), path, log)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		_ = db.Close()
	}
}

func TestOCRRowLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	conf := 0.82
	firstUUID, err := db.InsertOCRResult(ctx, "file-1", `{"pages":[]}`, &conf)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err = db.InsertOCRResult(ctx, "file-2", "plain text", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := db.PendingOCRRows(ctx, 10, 3)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 pending rows, got %d", len(rows))
	}

	first, second := rows[0], rows[1]
	if first.OCRUUID != firstUUID {
		first, second = second, first
	}

	if first.FUUID != "file-1" || first.AvgConfidence == nil || *first.AvgConfidence != conf {
		t.Fatalf("unexpected first row: %+v", first)
	}

	if second.AvgConfidence != nil || second.Data != "plain text" || second.SummaryGenerated {
		t.Fatalf("unexpected second row: %+v", second)
	}

	if first.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}

	sUUID, err := db.CompleteOCRRow(ctx, first, `{"pages":[{"page_index":0,"summary":"s"}]}`)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	rows, err = db.PendingOCRRows(ctx, 10, 3)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}

	if len(rows) != 1 || rows[0].OCRUUID != second.OCRUUID {
		t.Fatalf("expected only the second row to stay pending, got %+v", rows)
	}

	got, err := db.GetSummary(ctx, "file-1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}

	if got.SUUID != sUUID || got.Summary != `{"pages":[{"page_index":0,"summary":"s"}]}` {
		t.Fatalf("unexpected summary row: %+v", got)
	}
}

func TestPendingOCRRowsHonorsLimit(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	for range 3 {
		if _, err := db.InsertOCRResult(ctx, "f", "text", nil); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	rows, err := db.PendingOCRRows(ctx, 2, 3)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if rows, _ = db.PendingOCRRows(ctx, 0, 3); rows != nil {
		t.Fatalf("expected nil for zero limit")
	}
}

func TestFailOCRRowExcludesExhaustedRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	abandoned, err := db.InsertOCRResult(ctx, "f-abandoned", `{"pages": [`, nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	exhausted, err := db.InsertOCRResult(ctx, "f-exhausted", "text", nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	retried, err := db.InsertOCRResult(ctx, "f-retried", "text", nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err = db.FailOCRRow(ctx, abandoned, "decode pages: unexpected end", true); err != nil {
		t.Fatalf("fail: %v", err)
	}
	for range 2 {
		if err = db.FailOCRRow(ctx, exhausted, "boom", false); err != nil {
			t.Fatalf("fail: %v", err)
		}
	}
	if err = db.FailOCRRow(ctx, retried, "boom", false); err != nil {
		t.Fatalf("fail: %v", err)
	}

	rows, err := db.PendingOCRRows(ctx, 10, 2)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}

	if len(rows) != 1 || rows[0].OCRUUID != retried || rows[0].Attempts != 1 {
		t.Fatalf("expected only the retried row with one attempt, got %+v", rows)
	}

	var lastError string
	if err = db.db.QueryRowContext(ctx, "select last_error from ocr where ocr_uuid = ?", abandoned).Scan(&lastError); err != nil {
		t.Fatalf("select last_error: %v", err)
	}
	if lastError != "decode pages: unexpected end" {
		t.Fatalf("unexpected last_error: %q", lastError)
	}
}

func TestFailOCRRowUnknownRow(t *testing.T) {
	if err := newTestDatabase(t).FailOCRRow(context.Background(), "missing", "x", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompleteOCRRowUnknownRowRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	_, err := db.CompleteOCRRow(ctx, pendingRow("missing", "file-x"), "{}")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err = db.GetSummary(ctx, "file-x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("summary insert must be rolled back, got %v", err)
	}
}

func TestGetSummaryNotFound(t *testing.T) {
	if _, err := newTestDatabase(t).GetSummary(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertOCRResultRequiresFileUUID(t *testing.T) {
	if _, err := newTestDatabase(t).InsertOCRResult(context.Background(), " ", "x", nil); err == nil {
		t.Fatalf("expected error for empty file UUID")
	}
}

func pendingRow(ocrUUID, fUUID string) domain.OCRRow {
	return domain.OCRRow{OCRUUID: ocrUUID, FUUID: fUUID}
}
