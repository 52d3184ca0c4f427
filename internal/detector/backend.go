package detector

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
	"dashcam-service/internal/domain/incident"
	"dashcam-service/internal/imageutil"
)

// Object is a single raw output of an object detection model.
type Object struct {
	Label      string               `json:"label"`
	ClassID    *int                 `json:"class_id,omitempty"`
	Confidence float64              `json:"confidence"`
	Box        incident.BoundingBox `json:"box"`
}

// Backend runs an object detection model over one image.
type Backend interface {
	DetectObjects(ctx context.Context, img image.Image) ([]Object, error)
	Available() bool
}

// Unavailable stands in for a model that could not be loaded. It never finds
// anything.
type Unavailable struct{}

func (Unavailable) DetectObjects(context.Context, image.Image) ([]Object, error) { return nil, nil }
func (Unavailable) Available() bool                                              { return false }

// HTTPBackend talks to an out-of-process model server.
type HTTPBackend struct {
	endpoint string
	model    string
	client   *http.Client
}

type detectResponse struct {
	Detections []Object `json:"detections"`
}

func NewHTTPBackend(baseURL, model string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	q := url.Values{}
	if model != "" {
		q.Set("model", model)
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/v1/detect"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	return &HTTPBackend{endpoint: endpoint, model: model, client: client}
}

// NewBackend returns the configured detector backend, or Unavailable when no
// model server is configured.
func NewBackend(cfg config.PipelineConfig, log zerolog.Logger) Backend {
	if cfg.DetectorURL == "" {
		log.Warn().Msg("vehicle detector not configured, detections disabled")
		return Unavailable{}
	}
	return NewHTTPBackend(cfg.DetectorURL, cfg.DetectorModel, &http.Client{Timeout: cfg.BackendTimeout})
}

func (b *HTTPBackend) Available() bool { return true }

func (b *HTTPBackend) DetectObjects(ctx context.Context, img image.Image) ([]Object, error) {
	body, err := imageutil.EncodeJPEG(img)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}

	// Boxes come back relative to the encoded image, which starts at (0,0).
	origin := img.Bounds().Min
	for i := range out.Detections {
		out.Detections[i].Box = imageutil.Offset(out.Detections[i].Box, origin)
	}
	return out.Detections, nil
}
