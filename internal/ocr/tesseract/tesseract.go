// Package tesseract recognizes page images with the Tesseract OCR library.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"docsum/internal/domain"
	"docsum/internal/ocr"
)

// Engine runs one gosseract client per image.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New builds an engine. languages are used when an image carries none.
func New(languages ...string) *Engine {
	return &Engine{
		languages:     append([]string(nil), languages...),
		clientFactory: gosseract.NewClient,
	}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, img ocr.Image) (domain.Page, error) {
	if len(img.Data) == 0 {
		return domain.Page{}, ocr.ErrEmptyImage
	}

	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}

	c := e.clientFactory()
	defer func() {
		_ = c.Close()
	}()

	if err := c.SetImageFromBytes(img.Data); err != nil {
		return domain.Page{}, fmt.Errorf("set image: %w", err)
	}

	languages := img.Languages
	if len(languages) == 0 {
		languages = e.languages
	}
	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			return domain.Page{}, fmt.Errorf("set languages: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return domain.Page{}, fmt.Errorf("recognize text: %w", err)
	}

	return domain.Page{
		PageIndex:     img.PageIndex,
		Text:          strings.TrimSpace(text),
		AvgConfidence: wordConfidence(c),
	}, nil
}

// wordConfidence is the mean word confidence scaled to 0..1, or nil when
// Tesseract reports no words.
func wordConfidence(c *gosseract.Client) *float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}

	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}

	avg := sum / float64(len(boxes))

	return &avg
}
