package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"docsum/internal/domain"
)

const (
	DefaultServiceURL = "http://localhost:8000/ocr"

	remoteFormField    = "file"
	maxErrorBodyBytes  = 4 << 10
	remoteResponseSize = 16 << 20
)

// RemoteEngine forwards page images to an OCR service over HTTP.
type RemoteEngine struct {
	url    string
	client *http.Client
}

// remoteResponse accepts both the paged format and the flat line list some
// OCR services return.
type remoteResponse struct {
	Pages []domain.Page `json:"pages"`
	Lines []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"lines"`
}

// NewRemoteEngine builds an engine. A nil client means http.DefaultClient.
func NewRemoteEngine(url string, client *http.Client) *RemoteEngine {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultServiceURL
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &RemoteEngine{url: url, client: client}
}

func (e *RemoteEngine) Name() string { return "remote" }

func (e *RemoteEngine) Recognize(ctx context.Context, img Image) (domain.Page, error) {
	if len(img.Data) == 0 {
		return domain.Page{}, ErrEmptyImage
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile(remoteFormField, img.Name)
	if err != nil {
		return domain.Page{}, fmt.Errorf("create form file: %w", err)
	}

	if _, err = part.Write(img.Data); err != nil {
		return domain.Page{}, fmt.Errorf("write form file: %w", err)
	}

	if err = w.Close(); err != nil {
		return domain.Page{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, &body)
	if err != nil {
		return domain.Page{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.Page{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return domain.Page{}, fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded remoteResponse
	if err = json.NewDecoder(io.LimitReader(resp.Body, remoteResponseSize)).Decode(&decoded); err != nil {
		return domain.Page{}, fmt.Errorf("decode response: %w", err)
	}

	return decoded.page(img.PageIndex), nil
}

func (r remoteResponse) page(pageIndex int) domain.Page {
	if len(r.Pages) > 0 {
		text, conf := Merge(r.Pages)

		return domain.Page{
			PageIndex:     pageIndex,
			Text:          strings.TrimSpace(text),
			AvgConfidence: conf,
		}
	}

	page := domain.Page{PageIndex: pageIndex}
	if len(r.Lines) == 0 {
		return page
	}

	texts := make([]string, 0, len(r.Lines))
	var sum float64
	for _, line := range r.Lines {
		texts = append(texts, line.Text)
		sum += line.Confidence
	}

	avg := sum / float64(len(r.Lines))
	page.Text = strings.Join(texts, "\n")
	page.AvgConfidence = &avg

	return page
}
