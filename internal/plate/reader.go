package plate

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"dashcam-service/internal/config"
	"dashcam-service/internal/domain/incident"
	"dashcam-service/internal/imageutil"
	"dashcam-service/internal/utils"
)

var ErrRecognition = errors.New("plate recognition failed")

// Read is an accepted plate read. Box is in the coordinate space of the
// image that was read, i.e. frame coordinates for a crop taken with
// imageutil.Crop.
type Read struct {
	Text       string
	Confidence float64
	Box        incident.BoundingBox
}

type Reader struct {
	backend OCRBackend
	log     zerolog.Logger
}

func NewReader(backend OCRBackend, log zerolog.Logger) *Reader {
	if backend == nil {
		backend = Unavailable{}
	}
	return &Reader{
		backend: backend,
		log:     log.With().Str("component", "plate_reader").Logger(),
	}
}

// Read runs OCR over region and keeps the single most confident result if it
// looks like a plate. A nil Read with a nil error means nothing usable was
// found.
func (r *Reader) Read(ctx context.Context, region image.Image) (*Read, error) {
	if !r.backend.Available() || region.Bounds().Empty() {
		return nil, nil
	}

	results, err := r.backend.ReadText(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognition, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	best := results[0]
	for _, res := range results[1:] {
		if res.Confidence > best.Confidence {
			best = res
		}
	}

	text := utils.NormalizePlate(best.Text)
	if !ValidFormat(text) {
		r.log.Debug().Str("text", text).Float64("confidence", best.Confidence).Msg("rejected plate read")
		return nil, nil
	}

	box, ok := imageutil.PointsBox(best.Points)
	if ok {
		box, ok = imageutil.ClipBox(box, region.Bounds())
	}
	if !ok {
		box = imageutil.Box(region.Bounds())
	}

	return &Read{
		Text:       text,
		Confidence: best.Confidence,
		Box:        box,
	}, nil
}

// Region is a candidate plate area on a full frame.
type Region struct {
	Box        incident.BoundingBox
	Confidence float64
}

// Locator proposes plate-shaped regions on a whole frame.
type Locator struct {
	backend   OCRBackend
	threshold float64
}

func NewLocator(backend OCRBackend, cfg config.PipelineConfig) *Locator {
	if backend == nil {
		backend = Unavailable{}
	}
	return &Locator{backend: backend, threshold: cfg.PlateConfidence}
}

// Locate returns candidate regions at or above the confidence threshold,
// clipped to the frame.
func (l *Locator) Locate(ctx context.Context, frame image.Image) ([]Region, error) {
	if !l.backend.Available() {
		return nil, nil
	}

	found, err := l.backend.DetectText(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognition, err)
	}

	var regions []Region
	for _, f := range found {
		if f.Confidence < l.threshold {
			continue
		}
		box, ok := imageutil.PointsBox(f.Points)
		if !ok {
			continue
		}
		box, ok = imageutil.ClipBox(box, frame.Bounds())
		if !ok {
			continue
		}
		regions = append(regions, Region{Box: box, Confidence: f.Confidence})
	}
	return regions, nil
}
