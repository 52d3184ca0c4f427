package pipeline

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dashcam-service/internal/detector"
	"dashcam-service/internal/domain/incident"
	"dashcam-service/internal/imageutil"
	"dashcam-service/internal/metrics"
	"dashcam-service/internal/plate"
	"dashcam-service/internal/repository"
	"dashcam-service/internal/video"
)

// Store is the persistence the processor needs.
type Store interface {
	ClaimIncident(ctx context.Context, id string) (*incident.Incident, error)
	SaveFrame(ctx context.Context, incidentID string, rec incident.FrameRecords) error
	SetStatus(ctx context.Context, id string, status incident.ProcessingStatus) error
}

type FrameSource interface {
	ExtractFrames(ctx context.Context, path string) ([]video.Frame, error)
}

type VehicleDetector interface {
	Detect(ctx context.Context, frame image.Image) ([]detector.Vehicle, error)
}

type PlateReader interface {
	Read(ctx context.Context, region image.Image) (*plate.Read, error)
}

type PlateLocator interface {
	Locate(ctx context.Context, frame image.Image) ([]plate.Region, error)
}

type ThumbnailGenerator interface {
	Generate(ctx context.Context, videoPath string) (string, error)
}

// Stages bundles the per-frame analysis components. A processor owns its
// stages exclusively; they are not shared between concurrent runs.
type Stages struct {
	Frames     FrameSource
	Vehicles   VehicleDetector
	Reader     PlateReader
	Locator    PlateLocator
	Thumbnails ThumbnailGenerator
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	IncidentID string
	// Status is the terminal status written for the incident, or empty when
	// the incident could not be claimed.
	Status          incident.ProcessingStatus
	Frames          int
	FramesPersisted int
	Vehicles        int
	Plates          int
	Skipped         []Skip
	Thumbnail       string
	Err             error
	Duration        time.Duration
}

type Processor struct {
	store   Store
	stages  Stages
	metrics *metrics.Pipeline
	newID   func() string
	log     zerolog.Logger
}

func NewProcessor(store Store, stages Stages, m *metrics.Pipeline, log zerolog.Logger) *Processor {
	return &Processor{
		store:   store,
		stages:  stages,
		metrics: m,
		newID:   uuid.NewString,
		log:     log.With().Str("component", "pipeline").Logger(),
	}
}

// Run extracts vehicles and plates from the incident's video and drives the
// incident through processing to completed or failed. A missing incident ends
// the run without any change. Failures of single frames or detections are
// skipped and do not fail the run; only an unreadable video does.
func (p *Processor) Run(ctx context.Context, incidentID string) RunReport {
	start := time.Now()
	report := RunReport{IncidentID: incidentID}
	log := p.log.With().Str("incident_id", incidentID).Logger()

	inc, err := p.store.ClaimIncident(ctx, incidentID)
	if err != nil {
		report.Err = err
		report.Duration = time.Since(start)
		switch {
		case errors.Is(err, repository.ErrIncidentNotFound):
			log.Warn().Msg("incident not found, nothing to process")
		case errors.Is(err, repository.ErrAlreadyClaimed):
			log.Info().Msg("incident already being processed elsewhere")
		default:
			log.Error().Err(err).Msg("failed to claim incident")
		}
		return report
	}
	log.Info().Str("video_path", inc.VideoPath).Msg("processing started")

	frames, err := p.stages.Frames.ExtractFrames(ctx, inc.VideoPath)
	if err != nil {
		log.Error().Err(err).Msg("video could not be decoded")
		report.Err = err
		p.finish(ctx, &report, incident.StatusFailed, start, log)
		return report
	}
	report.Frames = len(frames)
	log.Debug().Int("frames", len(frames)).Msg("frames sampled")

	for i := range frames {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("frame", frames[i].Index).Msg("run interrupted")
			report.Err = err
			p.finish(ctx, &report, incident.StatusFailed, start, log)
			return report
		}

		rec, skips := p.processFrame(ctx, frames[i])
		frames[i].Image = nil
		p.metrics.FrameProcessed()

		saved := attempt(StagePersist, rec.FrameIndex, func() (struct{}, error) {
			return struct{}{}, p.store.SaveFrame(ctx, inc.ID, rec)
		})
		if saved.OK() {
			if !rec.Empty() {
				report.FramesPersisted++
			}
			report.Vehicles += len(rec.Vehicles)
			report.Plates += len(rec.Plates)
			p.metrics.Persisted(len(rec.Vehicles), len(rec.Plates))
		} else {
			skips = append(skips, *saved.Skipped)
		}

		for _, s := range skips {
			log.Warn().Err(s.Reason).Str("stage", string(s.Stage)).Int("frame", s.Frame).Msg("skipped unit of work")
			p.metrics.Skipped(string(s.Stage))
		}
		report.Skipped = append(report.Skipped, skips...)
	}

	if p.stages.Thumbnails != nil {
		thumb, err := p.stages.Thumbnails.Generate(ctx, inc.VideoPath)
		if err != nil {
			log.Warn().Err(err).Msg("thumbnail generation failed")
		} else {
			report.Thumbnail = thumb
		}
	}

	p.finish(ctx, &report, incident.StatusCompleted, start, log)
	return report
}

func (p *Processor) finish(ctx context.Context, report *RunReport, status incident.ProcessingStatus, start time.Time, log zerolog.Logger) {
	if err := p.store.SetStatus(context.WithoutCancel(ctx), report.IncidentID, status); err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("failed to write final status")
		if report.Err == nil {
			report.Err = err
		}
	}
	report.Status = status
	report.Duration = time.Since(start)
	p.metrics.RunFinished(string(status), report.Duration)

	log.Info().
		Str("status", string(status)).
		Int("frames", report.Frames).
		Int("vehicles", report.Vehicles).
		Int("plates", report.Plates).
		Int("skipped", len(report.Skipped)).
		Dur("duration", report.Duration).
		Msg("processing finished")
}

// processFrame runs vehicle detection with per-vehicle plate reads, then a
// frame-wide plate scan, and returns everything found on the frame.
func (p *Processor) processFrame(ctx context.Context, frame video.Frame) (incident.FrameRecords, []Skip) {
	rec := incident.FrameRecords{FrameIndex: frame.Index}
	var skips []Skip

	found := attempt(StageVehicles, frame.Index, func() ([]detector.Vehicle, error) {
		return p.stages.Vehicles.Detect(ctx, frame.Image)
	})
	if found.OK() {
		for _, v := range found.Value {
			row := p.vehicleRecord(v, frame.Timestamp)
			rec.Vehicles = append(rec.Vehicles, row)

			read := attempt(StageVehiclePlate, frame.Index, func() (*incident.LicensePlate, error) {
				return p.vehiclePlate(ctx, frame, row)
			})
			if !read.OK() {
				skips = append(skips, *read.Skipped)
				continue
			}
			if read.Value != nil {
				rec.Plates = append(rec.Plates, *read.Value)
			}
		}
	} else {
		skips = append(skips, *found.Skipped)
	}

	plates, scanSkips := p.scanFrame(ctx, frame)
	rec.Plates = append(rec.Plates, plates...)
	skips = append(skips, scanSkips...)

	return rec, skips
}

func (p *Processor) vehicleRecord(v detector.Vehicle, ts float64) incident.DetectedVehicle {
	return incident.DetectedVehicle{
		ID:             p.newID(),
		VehicleType:    v.Type,
		Make:           v.Make,
		Model:          v.Model,
		Color:          v.Color,
		Confidence:     v.Confidence,
		BoundingBox:    v.Box,
		FrameTimestamp: ts,
	}
}

// vehiclePlate reads a plate inside the vehicle box. The plate is linked to
// the vehicle record.
func (p *Processor) vehiclePlate(ctx context.Context, frame video.Frame, v incident.DetectedVehicle) (*incident.LicensePlate, error) {
	crop, ok := imageutil.Crop(frame.Image, v.BoundingBox)
	if !ok {
		return nil, nil
	}
	read, err := p.stages.Reader.Read(ctx, crop)
	if err != nil || read == nil {
		return nil, err
	}
	detectionID := v.ID
	rec := p.plateRecord(read, frame.Timestamp)
	rec.DetectionID = &detectionID
	return &rec, nil
}

// scanFrame looks for plates anywhere on the frame. Plates found this way are
// not linked to a vehicle, even when they overlap one.
func (p *Processor) scanFrame(ctx context.Context, frame video.Frame) ([]incident.LicensePlate, []Skip) {
	located := attempt(StageLocate, frame.Index, func() ([]plate.Region, error) {
		return p.stages.Locator.Locate(ctx, frame.Image)
	})
	if !located.OK() {
		return nil, []Skip{*located.Skipped}
	}

	var (
		plates []incident.LicensePlate
		skips  []Skip
	)
	for _, region := range located.Value {
		read := attempt(StageFramePlate, frame.Index, func() (*plate.Read, error) {
			crop, ok := imageutil.Crop(frame.Image, region.Box)
			if !ok {
				return nil, nil
			}
			return p.stages.Reader.Read(ctx, crop)
		})
		if !read.OK() {
			skips = append(skips, *read.Skipped)
			continue
		}
		if read.Value != nil {
			plates = append(plates, p.plateRecord(read.Value, frame.Timestamp))
		}
	}
	return plates, skips
}

func (p *Processor) plateRecord(read *plate.Read, ts float64) incident.LicensePlate {
	return incident.LicensePlate{
		ID:             p.newID(),
		PlateNumber:    read.Text,
		Confidence:     read.Confidence,
		FrameTimestamp: ts,
		BoundingBox:    read.Box,
	}
}
