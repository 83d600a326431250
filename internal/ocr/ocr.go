// Package ocr defines the OCR engine contract and the page wire format shared
// by the OCR endpoint and the batch summarizer.
package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docsum/internal/domain"
)

var ErrEmptyImage = errors.New("empty image")

// Image is one page image to recognize.
type Image struct {
	Name      string
	Data      []byte
	PageIndex int
	Languages []string
}

// Engine recognizes text on a single page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img Image) (domain.Page, error)
}

// Merge joins page texts with newlines and averages the known confidences.
func Merge(pages []domain.Page) (string, *float64) {
	var (
		b     strings.Builder
		sum   float64
		known int
	)

	for _, page := range pages {
		b.WriteString(page.Text)
		b.WriteString("\n")

		if page.AvgConfidence != nil {
			sum += *page.AvgConfidence
			known++
		}
	}

	if known == 0 {
		return b.String(), nil
	}

	avg := sum / float64(known)

	return b.String(), &avg
}

// DecodePages reads stored OCR data. Data that looks like a JSON object is
// decoded as {"pages":[...]}; anything else is a single plain-text page carrying
// fallbackConfidence.
func DecodePages(data string, fallbackConfidence *float64) ([]domain.Page, error) {
	trimmed := strings.TrimSpace(data)

	if !strings.HasPrefix(trimmed, "{") {
		return []domain.Page{{
			PageIndex:     0,
			Text:          data,
			AvgConfidence: fallbackConfidence,
		}}, nil
	}

	var decoded domain.Pages
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}

	return decoded.Pages, nil
}

// EncodePages is the inverse of DecodePages for JSON data.
func EncodePages(pages []domain.Page) (string, error) {
	if pages == nil {
		pages = []domain.Page{}
	}

	data, err := json.Marshal(domain.Pages{Pages: pages})
	if err != nil {
		return "", fmt.Errorf("encode pages: %w", err)
	}

	return string(data), nil
}
