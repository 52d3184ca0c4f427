package detector

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"dashcam-service/internal/config"
	"dashcam-service/internal/domain/incident"
	"dashcam-service/internal/imageutil"
)

var ErrDetection = errors.New("vehicle detection failed")

// COCO class ids of the vehicle classes we keep.
const (
	cocoCar        = 2
	cocoMotorcycle = 3
	cocoBus        = 5
	cocoTruck      = 7
)

var vehicleLabels = map[string]incident.VehicleType{
	"car":        incident.VehicleCar,
	"motorcycle": incident.VehicleMotorcycle,
	"bus":        incident.VehicleBus,
	"truck":      incident.VehicleTruck,
}

var vehicleClassIDs = map[int]incident.VehicleType{
	cocoCar:        incident.VehicleCar,
	cocoMotorcycle: incident.VehicleMotorcycle,
	cocoBus:        incident.VehicleBus,
	cocoTruck:      incident.VehicleTruck,
}

// VehicleType maps a model label (or, failing that, a COCO class id) onto a
// vehicle type. ok is false for anything that is not a vehicle.
func VehicleType(o Object) (incident.VehicleType, bool) {
	if o.Label != "" {
		t, ok := vehicleLabels[o.Label]
		return t, ok
	}
	if o.ClassID != nil {
		t, ok := vehicleClassIDs[*o.ClassID]
		return t, ok
	}
	return "", false
}

// Vehicle is one vehicle found on a frame. Box is in frame coordinates.
type Vehicle struct {
	Type       incident.VehicleType
	Confidence float64
	Box        incident.BoundingBox
	Color      *incident.Color
	Make       *string
	Model      *string
}

// MakeModelClassifier names the make and model of a vehicle crop.
type MakeModelClassifier interface {
	Classify(ctx context.Context, crop image.Image) (vehicleMake, vehicleModel *string)
}

// NoMakeModel is the only classifier for now; it never names anything.
type NoMakeModel struct{}

func (NoMakeModel) Classify(context.Context, image.Image) (*string, *string) { return nil, nil }

type VehicleDetector struct {
	backend    Backend
	classifier MakeModelClassifier
	threshold  float64
	log        zerolog.Logger
}

func NewVehicleDetector(backend Backend, cfg config.PipelineConfig, log zerolog.Logger) *VehicleDetector {
	if backend == nil {
		backend = Unavailable{}
	}
	return &VehicleDetector{
		backend:    backend,
		classifier: NoMakeModel{},
		threshold:  cfg.VehicleConfidence,
		log:        log.With().Str("component", "vehicle_detector").Logger(),
	}
}

func (d *VehicleDetector) Available() bool {
	return d.backend.Available()
}

// Detect returns the vehicles on frame with confidence at or above the
// threshold. Non-vehicle classes are dropped. A model failure is returned
// wrapped in ErrDetection.
func (d *VehicleDetector) Detect(ctx context.Context, frame image.Image) ([]Vehicle, error) {
	if !d.backend.Available() {
		return nil, nil
	}

	objects, err := d.backend.DetectObjects(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}

	var vehicles []Vehicle
	for _, o := range objects {
		vt, ok := VehicleType(o)
		if !ok {
			continue
		}
		if o.Confidence < d.threshold {
			continue
		}
		box, ok := imageutil.ClipBox(o.Box, frame.Bounds())
		if !ok {
			d.log.Debug().Str("type", string(vt)).Interface("box", o.Box).Msg("dropping detection outside frame")
			continue
		}

		v := Vehicle{
			Type:       vt,
			Confidence: o.Confidence,
			Box:        box,
		}
		if crop, ok := imageutil.Crop(frame, box); ok {
			if c, ok := DominantColor(crop); ok {
				v.Color = &c
			}
			v.Make, v.Model = d.classifier.Classify(ctx, crop)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}
