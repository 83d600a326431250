// Package server exposes document summarization and OCR over HTTP.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docsum/internal/domain"
	"docsum/internal/ocr"
)

const DefaultMaxUploadBytes = 50 << 20

// DocumentSummarizer summarizes one document with an optional prompt.
type DocumentSummarizer interface {
	Summarize(ctx context.Context, text, prompt string) (string, error)
}

// Store is the persistence behind the OCR and summary endpoints.
type Store interface {
	InsertOCRResult(ctx context.Context, fUUID, data string, avgConfidence *float64) (string, error)
	GetSummary(ctx context.Context, fUUID string) (domain.SummaryRow, error)
	Ping(ctx context.Context) error
}

//go:embed templates/*.html
var templatesFS embed.FS

//nolint:gochecknoglobals // Parsed once from embedded files.
var indexTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

type Server struct {
	summarizer     DocumentSummarizer
	engine         ocr.Engine
	store          Store
	maxUploadBytes int64
	log            *slog.Logger
}

// New builds a server. A nil engine disables /ocr and a nil store disables
// persistence and /summaries.
func New(
	summarizer DocumentSummarizer,
	engine ocr.Engine,
	store Store,
	maxUploadBytes int64,
	log *slog.Logger,
) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}

	return &Server{
		summarizer:     summarizer,
		engine:         engine,
		store:          store,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	r.Use(cors)

	r.Get("/", s.handleIndex)
	r.Post("/", s.handleIndexSubmit)
	r.Post("/summarize", s.handleSummarize)
	r.Post("/ocr", s.handleOCR)
	r.Get("/summaries/{f_uuid}", s.handleGetSummary)
	r.Get("/health", s.handleHealth)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.ErrorContext(r.Context(), "Failed to write response",
			"error", err,
			"path", r.URL.Path,
			"status", status)
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.log.InfoContext(r.Context(), "Request is served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"durationMs", time.Since(start).Milliseconds(),
			"requestID", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			s.log.ErrorContext(r.Context(), "Failed to serve request",
				"panic", rec,
				"path", r.URL.Path,
				"requestID", middleware.GetReqID(r.Context()),
				"stack", string(debug.Stack()))

			s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}()

		next.ServeHTTP(w, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
