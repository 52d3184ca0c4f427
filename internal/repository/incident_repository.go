package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dashcam-service/internal/domain/incident"
)

var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrNotProcessing    = errors.New("incident is not processing")
	ErrAlreadyClaimed   = errors.New("incident is already processing")
	ErrPersistence      = errors.New("persistence failed")
)

type IncidentRepository struct {
	db *gorm.DB
}

func NewIncidentRepository(db *gorm.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

type Incident struct {
	ID               string `gorm:"column:incident_id;primaryKey;size:36"`
	UserID           string `gorm:"size:36;not null"`
	Type             string `gorm:"not null"`
	Latitude         float64
	Longitude        float64
	Timestamp        time.Time `gorm:"not null"`
	Speed            *float64
	Heading          *float64
	Description      *string
	VideoPath        string `gorm:"size:500;not null"`
	VideoSize        int64  `gorm:"not null"`
	ProcessingStatus string `gorm:"not null;default:pending;index"`
	CreatedAt        time.Time
}

type DetectedVehicle struct {
	ID             string                                   `gorm:"column:detection_id;primaryKey;size:36"`
	IncidentID     string                                   `gorm:"size:36;not null;index"`
	VehicleType    string                                   `gorm:"size:50;not null"`
	Make           *string                                  `gorm:"size:50"`
	Model          *string                                  `gorm:"size:50"`
	Color          *string                                  `gorm:"size:50"`
	Confidence     float64                                  `gorm:"not null"`
	BoundingBox    datatypes.JSONType[incident.BoundingBox] `gorm:"not null"`
	FrameTimestamp float64                                  `gorm:"not null"`
}

type LicensePlate struct {
	ID             string                                   `gorm:"column:plate_id;primaryKey;size:36"`
	IncidentID     string                                   `gorm:"size:36;not null;index"`
	DetectionID    *string                                  `gorm:"size:36"`
	PlateNumber    string                                   `gorm:"size:20;not null;index"`
	Confidence     float64                                  `gorm:"not null"`
	StateRegion    *string                                  `gorm:"size:50"`
	Country        *string                                  `gorm:"size:50"`
	FrameTimestamp float64                                  `gorm:"not null"`
	BoundingBox    datatypes.JSONType[incident.BoundingBox] `gorm:"not null"`
}

// Models lists the row types, for AutoMigrate in tests.
func Models() []any {
	return []any{&Incident{}, &DetectedVehicle{}, &LicensePlate{}}
}

func (r *IncidentRepository) CreateIncident(ctx context.Context, inc *incident.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.ProcessingStatus == "" {
		inc.ProcessingStatus = incident.StatusPending
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}

	row := Incident{
		ID:               inc.ID,
		UserID:           inc.UserID,
		Type:             string(inc.Type),
		Latitude:         inc.Latitude,
		Longitude:        inc.Longitude,
		Timestamp:        inc.Timestamp,
		Speed:            inc.Speed,
		Heading:          inc.Heading,
		Description:      inc.Description,
		VideoPath:        inc.VideoPath,
		VideoSize:        inc.VideoSize,
		ProcessingStatus: string(inc.ProcessingStatus),
		CreatedAt:        inc.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: create incident: %v", ErrPersistence, err)
	}
	return nil
}

func (r *IncidentRepository) GetIncident(ctx context.Context, id string) (*incident.Incident, error) {
	return getIncident(r.db.WithContext(ctx), id)
}

func getIncident(tx *gorm.DB, id string) (*incident.Incident, error) {
	var row Incident
	err := tx.Where("incident_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load incident: %v", ErrPersistence, err)
	}
	return row.toDomain(), nil
}

// ClaimIncident moves the incident to processing and returns it. Only one
// claimer wins: an incident that is already processing yields
// ErrAlreadyClaimed.
func (r *IncidentRepository) ClaimIncident(ctx context.Context, id string) (*incident.Incident, error) {
	var claimed *incident.Incident
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Incident{}).
			Where("incident_id = ? AND processing_status <> ?", id, string(incident.StatusProcessing)).
			Update("processing_status", string(incident.StatusProcessing))
		if res.Error != nil {
			return fmt.Errorf("%w: claim incident: %v", ErrPersistence, res.Error)
		}
		if res.RowsAffected == 0 {
			if _, err := getIncident(tx, id); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s", ErrAlreadyClaimed, id)
		}
		inc, err := getIncident(tx, id)
		if err != nil {
			return err
		}
		claimed = inc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *IncidentRepository) SetStatus(ctx context.Context, id string, status incident.ProcessingStatus) error {
	res := r.db.WithContext(ctx).
		Model(&Incident{}).
		Where("incident_id = ?", id).
		Update("processing_status", string(status))
	if res.Error != nil {
		return fmt.Errorf("%w: set status %s: %v", ErrPersistence, status, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}
	return nil
}

// SaveFrame writes all vehicles and plates found on one frame in a single
// transaction. Nothing is written unless the incident is still processing.
func (r *IncidentRepository) SaveFrame(ctx context.Context, incidentID string, rec incident.FrameRecords) error {
	if rec.Empty() {
		return nil
	}

	vehicles := make([]DetectedVehicle, 0, len(rec.Vehicles))
	for _, v := range rec.Vehicles {
		vehicles = append(vehicles, vehicleRow(incidentID, v))
	}
	plates := make([]LicensePlate, 0, len(rec.Plates))
	for _, p := range rec.Plates {
		plates = append(plates, plateRow(incidentID, p))
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&Incident{}).
			Where("incident_id = ? AND processing_status = ?", incidentID, string(incident.StatusProcessing)).
			Count(&n).Error
		if err != nil {
			return fmt.Errorf("%w: check incident: %v", ErrPersistence, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotProcessing, incidentID)
		}

		if len(vehicles) > 0 {
			if err := tx.Create(&vehicles).Error; err != nil {
				return fmt.Errorf("%w: frame %d vehicles: %v", ErrPersistence, rec.FrameIndex, err)
			}
		}
		if len(plates) > 0 {
			if err := tx.Create(&plates).Error; err != nil {
				return fmt.Errorf("%w: frame %d plates: %v", ErrPersistence, rec.FrameIndex, err)
			}
		}
		return nil
	})
}

// ListPendingIDs returns up to limit incidents that have not been picked up
// yet, oldest first.
func (r *IncidentRepository) ListPendingIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&Incident{}).
		Where("processing_status = ?", string(incident.StatusPending)).
		Order("created_at ASC").
		Limit(limit).
		Pluck("incident_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list pending: %v", ErrPersistence, err)
	}
	return ids, nil
}

func (r *IncidentRepository) ListVehicles(ctx context.Context, incidentID string) ([]incident.DetectedVehicle, error) {
	var rows []DetectedVehicle
	err := r.db.WithContext(ctx).
		Where("incident_id = ?", incidentID).
		Order("frame_timestamp ASC").
		Order("detection_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list vehicles: %v", ErrPersistence, err)
	}
	out := make([]incident.DetectedVehicle, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *IncidentRepository) ListPlates(ctx context.Context, incidentID string) ([]incident.LicensePlate, error) {
	var rows []LicensePlate
	err := r.db.WithContext(ctx).
		Where("incident_id = ?", incidentID).
		Order("frame_timestamp ASC").
		Order("plate_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list plates: %v", ErrPersistence, err)
	}
	out := make([]incident.LicensePlate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// FindPlatesByNumber searches plate reads by normalized text across
// incidents, most confident first.
func (r *IncidentRepository) FindPlatesByNumber(ctx context.Context, normalized string, limit, offset int) ([]incident.LicensePlate, error) {
	query := r.db.WithContext(ctx).
		Where("plate_number = ?", normalized).
		Order("confidence DESC").
		Order("plate_id ASC")

	if limit > 0 {
		query = query.Limit(limit)
		if limit > 100 {
			query = query.Limit(100)
		}
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []LicensePlate
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: find plates: %v", ErrPersistence, err)
	}
	out := make([]incident.LicensePlate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (row Incident) toDomain() *incident.Incident {
	return &incident.Incident{
		ID:               row.ID,
		UserID:           row.UserID,
		Type:             incident.Type(row.Type),
		Latitude:         row.Latitude,
		Longitude:        row.Longitude,
		Timestamp:        row.Timestamp,
		Speed:            row.Speed,
		Heading:          row.Heading,
		Description:      row.Description,
		VideoPath:        row.VideoPath,
		VideoSize:        row.VideoSize,
		ProcessingStatus: incident.ProcessingStatus(row.ProcessingStatus),
		CreatedAt:        row.CreatedAt,
	}
}

func vehicleRow(incidentID string, v incident.DetectedVehicle) DetectedVehicle {
	row := DetectedVehicle{
		ID:             v.ID,
		IncidentID:     incidentID,
		VehicleType:    string(v.VehicleType),
		Make:           v.Make,
		Model:          v.Model,
		Confidence:     v.Confidence,
		BoundingBox:    datatypes.NewJSONType(v.BoundingBox),
		FrameTimestamp: v.FrameTimestamp,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if v.Color != nil {
		c := string(*v.Color)
		row.Color = &c
	}
	return row
}

func (row DetectedVehicle) toDomain() incident.DetectedVehicle {
	v := incident.DetectedVehicle{
		ID:             row.ID,
		IncidentID:     row.IncidentID,
		VehicleType:    incident.VehicleType(row.VehicleType),
		Make:           row.Make,
		Model:          row.Model,
		Confidence:     row.Confidence,
		BoundingBox:    row.BoundingBox.Data(),
		FrameTimestamp: row.FrameTimestamp,
	}
	if row.Color != nil {
		c := incident.Color(*row.Color)
		v.Color = &c
	}
	return v
}

func plateRow(incidentID string, p incident.LicensePlate) LicensePlate {
	row := LicensePlate{
		ID:             p.ID,
		IncidentID:     incidentID,
		DetectionID:    p.DetectionID,
		PlateNumber:    p.PlateNumber,
		Confidence:     p.Confidence,
		StateRegion:    p.StateRegion,
		Country:        p.Country,
		FrameTimestamp: p.FrameTimestamp,
		BoundingBox:    datatypes.NewJSONType(p.BoundingBox),
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	return row
}

func (row LicensePlate) toDomain() incident.LicensePlate {
	return incident.LicensePlate{
		ID:             row.ID,
		IncidentID:     row.IncidentID,
		DetectionID:    row.DetectionID,
		PlateNumber:    row.PlateNumber,
		Confidence:     row.Confidence,
		StateRegion:    row.StateRegion,
		Country:        row.Country,
		FrameTimestamp: row.FrameTimestamp,
		BoundingBox:    row.BoundingBox.Data(),
	}
}
