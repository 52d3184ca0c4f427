package pipeline

import (
	"github.com/rs/zerolog"

	"dashcam-service/internal/config"
	"dashcam-service/internal/detector"
	"dashcam-service/internal/metrics"
	"dashcam-service/internal/plate"
	"dashcam-service/internal/video"
)

// New builds a processor that decodes with ffmpeg and talks to the
// configured detector and OCR backends. Each call creates fresh backends.
func New(cfg config.PipelineConfig, store Store, m *metrics.Pipeline, log zerolog.Logger) *Processor {
	ocr := plate.NewBackend(cfg, log)
	stages := Stages{
		Frames:     video.NewSampler(cfg, log),
		Vehicles:   detector.NewVehicleDetector(detector.NewBackend(cfg, log), cfg, log),
		Reader:     plate.NewReader(ocr, log),
		Locator:    plate.NewLocator(ocr, cfg),
		Thumbnails: video.NewThumbnailer(cfg, log),
	}
	return NewProcessor(store, stages, m, log)
}
