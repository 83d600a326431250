package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"docsum/internal/domain"
	"docsum/internal/ocr"
)

const (
	missingTextMessage  = "Please paste some document text to summarize."
	formErrorPrefix     = "An error occurred: "
	maxJSONRequestBytes = 10 << 20
	multipartMemory     = 32 << 20
)

type summarizeRequest struct {
	Text   string `json:"text"`
	Prompt string `json:"prompt"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

type ocrResponse struct {
	Pages   []domain.Page `json:"pages"`
	OCRUUID string        `json:"ocr_uuid,omitempty"`
}

type summaryResponse struct {
	SUUID     string    `json:"s_uuid"`
	FUUID     string    `json:"f_uuid"`
	Summary   any       `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type indexView struct {
	Summary      string
	OriginalText string
	Prompt       string
	Error        string
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONRequestBytes)).Decode(&req); err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	// Blank text is not rejected here; the summarizer answers it with its
	// too-short message.
	summary, err := s.summarizer.Summarize(r.Context(), req.Text, req.Prompt)
	if err != nil {
		s.log.ErrorContext(r.Context(), "Failed to summarize document",
			"error", err,
			"textLength", len(req.Text),
			"hasPrompt", strings.TrimSpace(req.Prompt) != "")

		s.writeJSON(w, r, http.StatusBadGateway, errorResponse{Error: "summarize: " + err.Error()})
		return
	}

	s.writeJSON(w, r, http.StatusOK, summarizeResponse{Summary: summary})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, indexView{})
}

func (s *Server) handleIndexSubmit(w http.ResponseWriter, r *http.Request) {
	view := indexView{
		OriginalText: r.PostFormValue("document_text"),
		Prompt:       r.PostFormValue("custom_prompt"),
	}

	if strings.TrimSpace(view.OriginalText) == "" {
		view.Error = missingTextMessage
		s.renderIndex(w, r, view)

		return
	}

	summary, err := s.summarizer.Summarize(r.Context(), view.OriginalText, view.Prompt)
	if err != nil {
		s.log.ErrorContext(r.Context(), "Failed to summarize document",
			"error", err,
			"textLength", len(view.OriginalText),
			"hasPrompt", strings.TrimSpace(view.Prompt) != "")

		view.Error = formErrorPrefix + err.Error()
	} else {
		view.Summary = summary
	}

	s.renderIndex(w, r, view)
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, view indexView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := indexTemplate.Execute(w, view); err != nil {
		s.log.ErrorContext(r.Context(), "Failed to render index",
			"error", err)
	}
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		s.writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "OCR engine is not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{Error: "file is too large"})
			return
		}

		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "file required: " + err.Error()})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "file required: " + err.Error()})
		return
	}
	defer func() {
		_ = file.Close()
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "failed to read file: " + err.Error()})
		return
	}

	page, err := s.engine.Recognize(r.Context(), ocr.Image{Name: header.Filename, Data: content})
	if errors.Is(err, ocr.ErrEmptyImage) {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "file is empty"})
		return
	}
	if err != nil {
		s.log.ErrorContext(r.Context(), "Failed to recognize image",
			"error", err,
			"engine", s.engine.Name(),
			"fileName", header.Filename,
			"fileSize", len(content))

		s.writeJSON(w, r, http.StatusBadGateway, errorResponse{Error: "ocr: " + err.Error()})
		return
	}

	resp := ocrResponse{Pages: []domain.Page{page}}

	fUUID := strings.TrimSpace(r.FormValue("f_uuid"))
	if fUUID != "" && s.store != nil {
		resp.OCRUUID, err = s.persistOCR(r, fUUID, resp.Pages)
		if err != nil {
			s.log.ErrorContext(r.Context(), "Failed to store OCR result",
				"error", err,
				"fUUID", fUUID)

			s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "store OCR result: " + err.Error()})
			return
		}
	}

	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) persistOCR(r *http.Request, fUUID string, pages []domain.Page) (string, error) {
	data, err := ocr.EncodePages(pages)
	if err != nil {
		return "", err
	}

	_, conf := ocr.Merge(pages)

	return s.store.InsertOCRResult(r.Context(), fUUID, data, conf)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "store is not configured"})
		return
	}

	fUUID := chi.URLParam(r, "f_uuid")

	row, err := s.store.GetSummary(r.Context(), fUUID)
	if errors.Is(err, domain.ErrNotFound) {
		s.writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "summary not found"})
		return
	}
	if err != nil {
		s.log.ErrorContext(r.Context(), "Failed to get summary",
			"error", err,
			"fUUID", fUUID)

		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "get summary: " + err.Error()})
		return
	}

	resp := summaryResponse{
		SUUID:     row.SUUID,
		FUUID:     row.FUUID,
		Summary:   row.Summary,
		CreatedAt: row.CreatedAt,
	}
	if json.Valid([]byte(row.Summary)) {
		resp.Summary = json.RawMessage(row.Summary)
	}

	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.log.WarnContext(r.Context(), "Failed to ping store",
				"error", err)

			s.writeJSON(w, r, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Error: err.Error()})
			return
		}
	}

	s.writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok"})
}
