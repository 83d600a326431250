package domain

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// OCRRow is one OCR result waiting for, or done with, summarization.
type OCRRow struct {
	OCRUUID          string
	FUUID            string
	Data             string
	AvgConfidence    *float64
	SummaryGenerated bool
	// Attempts counts failed summarization runs.
	Attempts         int
	CreatedAt        time.Time
}

type Page struct {
	PageIndex     int      `json:"page_index"`
	Text          string   `json:"text"`
	AvgConfidence *float64 `json:"avg_confidence"`
}

type Pages struct {
	Pages []Page `json:"pages"`
}

type PageSummary struct {
	PageIndex     int      `json:"page_index"`
	Summary       string   `json:"summary"`
	AvgConfidence *float64 `json:"avg_confidence"`
}

type SummaryRow struct {
	SUUID     string
	FUUID     string
	Summary   string
	CreatedAt time.Time
}
