package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"dashcam-service/internal/domain/incident"
	"dashcam-service/internal/repository"
	"dashcam-service/internal/utils"
	"dashcam-service/internal/worker"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("temporarily unavailable")
)

type IncidentStore interface {
	GetIncident(ctx context.Context, id string) (*incident.Incident, error)
	ListVehicles(ctx context.Context, incidentID string) ([]incident.DetectedVehicle, error)
	ListPlates(ctx context.Context, incidentID string) ([]incident.LicensePlate, error)
	FindPlatesByNumber(ctx context.Context, normalized string, limit, offset int) ([]incident.LicensePlate, error)
}

type Scheduler interface {
	Enqueue(incidentID string) error
}

type IncidentService struct {
	repo      IncidentStore
	scheduler Scheduler
	log       zerolog.Logger
}

func NewIncidentService(repo IncidentStore, scheduler Scheduler, log zerolog.Logger) *IncidentService {
	return &IncidentService{
		repo:      repo,
		scheduler: scheduler,
		log:       log,
	}
}

func (s *IncidentService) GetIncidentDetails(ctx context.Context, id string) (*incident.Details, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: incident id is required", ErrInvalidInput)
	}

	inc, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrIncidentNotFound) {
			return nil, fmt.Errorf("%w: incident %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load incident: %w", err)
	}

	vehicles, err := s.repo.ListVehicles(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	plates, err := s.repo.ListPlates(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list plates: %w", err)
	}

	return &incident.Details{
		Incident:         *inc,
		DetectedVehicles: vehicles,
		LicensePlates:    plates,
	}, nil
}

func (s *IncidentService) FindPlates(ctx context.Context, plateQuery string, limit, offset int) ([]incident.LicensePlate, error) {
	normalized := utils.NormalizePlate(plateQuery)
	if normalized == "" {
		return nil, fmt.Errorf("%w: plate query cannot be empty", ErrInvalidInput)
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	plates, err := s.repo.FindPlatesByNumber(ctx, normalized, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find plates: %w", err)
	}
	return plates, nil
}

// RequestProcessing schedules an extraction run for the incident. An
// incident that is currently processing is refused.
func (s *IncidentService) RequestProcessing(ctx context.Context, id string) (*incident.Incident, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: incident id is required", ErrInvalidInput)
	}

	inc, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrIncidentNotFound) {
			return nil, fmt.Errorf("%w: incident %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load incident: %w", err)
	}
	if inc.ProcessingStatus == incident.StatusProcessing {
		return nil, fmt.Errorf("%w: incident %s is already processing", ErrConflict, id)
	}

	if err := s.scheduler.Enqueue(id); err != nil {
		s.log.Warn().Err(err).Str("incident_id", id).Msg("failed to schedule processing")
		if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrStopped) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("failed to schedule processing: %w", err)
	}

	s.log.Info().
		Str("incident_id", id).
		Str("previous_status", string(inc.ProcessingStatus)).
		Msg("processing scheduled")
	return inc, nil
}
