package plate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"dashcam-service/internal/config"
	"dashcam-service/internal/imageutil"
)

// TextResult is one recognized string. Points outline it in the coordinate
// space of the image that was passed in.
type TextResult struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Points     [][2]float64 `json:"points"`
}

// TextRegion is a text-shaped area found without reading it.
type TextRegion struct {
	Confidence float64      `json:"confidence"`
	Points     [][2]float64 `json:"points"`
}

// OCRBackend is a text detection and recognition engine.
type OCRBackend interface {
	ReadText(ctx context.Context, img image.Image) ([]TextResult, error)
	DetectText(ctx context.Context, img image.Image) ([]TextRegion, error)
	Available() bool
}

// Unavailable stands in for an OCR engine that could not be initialized.
type Unavailable struct{}

func (Unavailable) ReadText(context.Context, image.Image) ([]TextResult, error)   { return nil, nil }
func (Unavailable) DetectText(context.Context, image.Image) ([]TextRegion, error) { return nil, nil }
func (Unavailable) Available() bool                                               { return false }

// HTTPBackend talks to an out-of-process OCR server.
type HTTPBackend struct {
	baseURL string
	query   string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, languages []string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	q := url.Values{}
	if len(languages) > 0 {
		q.Set("lang", strings.Join(languages, ","))
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		query:   q.Encode(),
		client:  client,
	}
}

// NewBackend returns the configured OCR backend, or Unavailable when no OCR
// server is configured.
func NewBackend(cfg config.PipelineConfig, log zerolog.Logger) OCRBackend {
	if cfg.OCRURL == "" {
		log.Warn().Msg("ocr engine not configured, plate reading disabled")
		return Unavailable{}
	}
	return NewHTTPBackend(cfg.OCRURL, cfg.OCRLanguages, &http.Client{Timeout: cfg.BackendTimeout})
}

func (b *HTTPBackend) Available() bool { return true }

func (b *HTTPBackend) ReadText(ctx context.Context, img image.Image) ([]TextResult, error) {
	var out struct {
		Results []TextResult `json:"results"`
	}
	if err := b.post(ctx, "/v1/readtext", img, &out); err != nil {
		return nil, err
	}
	origin := img.Bounds().Min
	for i := range out.Results {
		translate(out.Results[i].Points, origin)
	}
	return out.Results, nil
}

func (b *HTTPBackend) DetectText(ctx context.Context, img image.Image) ([]TextRegion, error) {
	var out struct {
		Regions []TextRegion `json:"regions"`
	}
	if err := b.post(ctx, "/v1/detect", img, &out); err != nil {
		return nil, err
	}
	origin := img.Bounds().Min
	for i := range out.Regions {
		translate(out.Regions[i].Points, origin)
	}
	return out.Regions, nil
}

// The server sees an image starting at (0,0); put results back into the
// caller's coordinate space.
func translate(points [][2]float64, origin image.Point) {
	for i := range points {
		points[i][0] += float64(origin.X)
		points[i][1] += float64(origin.Y)
	}
}

func (b *HTTPBackend) post(ctx context.Context, path string, img image.Image, out any) error {
	body, err := imageutil.EncodeJPEG(img)
	if err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	endpoint := b.baseURL + path
	if b.query != "" {
		endpoint += "?" + b.query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ocr server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ocr response: %w", err)
	}
	return nil
}
