package incident

import (
	"time"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

type Type string

const (
	TypeCrash    Type = "crash"
	TypePolice   Type = "police"
	TypeRoadRage Type = "road_rage"
	TypeHazard   Type = "hazard"
	TypeOther    Type = "other"
)

type VehicleType string

const (
	VehicleCar        VehicleType = "car"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleBus        VehicleType = "bus"
	VehicleTruck      VehicleType = "truck"
)

type Color string

const (
	ColorWhite  Color = "white"
	ColorBlack  Color = "black"
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
	ColorGray   Color = "gray"
	ColorOther  Color = "other"
)

// BoundingBox is an axis-aligned box in frame pixel coordinates.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b BoundingBox) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

type Incident struct {
	ID               string           `json:"incident_id"`
	UserID           string           `json:"user_id"`
	Type             Type             `json:"type"`
	Latitude         float64          `json:"latitude"`
	Longitude        float64          `json:"longitude"`
	Timestamp        time.Time        `json:"timestamp"`
	Speed            *float64         `json:"speed,omitempty"`
	Heading          *float64         `json:"heading,omitempty"`
	Description      *string          `json:"description,omitempty"`
	VideoPath        string           `json:"video_path"`
	VideoSize        int64            `json:"video_size"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	CreatedAt        time.Time        `json:"created_at"`
}

type DetectedVehicle struct {
	ID             string      `json:"detection_id"`
	IncidentID     string      `json:"incident_id"`
	VehicleType    VehicleType `json:"vehicle_type"`
	Make           *string     `json:"make"`
	Model          *string     `json:"model"`
	Color          *Color      `json:"color"`
	Confidence     float64     `json:"confidence"`
	BoundingBox    BoundingBox `json:"bounding_box"`
	FrameTimestamp float64     `json:"frame_timestamp"`
}

type LicensePlate struct {
	ID             string      `json:"plate_id"`
	IncidentID     string      `json:"incident_id"`
	DetectionID    *string     `json:"detection_id"`
	PlateNumber    string      `json:"plate_number"`
	Confidence     float64     `json:"confidence"`
	StateRegion    *string     `json:"state_region"`
	Country        *string     `json:"country"`
	FrameTimestamp float64     `json:"frame_timestamp"`
	BoundingBox    BoundingBox `json:"bounding_box"`
}

// FrameRecords groups everything found on one sampled frame. It is committed
// as a single unit.
type FrameRecords struct {
	FrameIndex int
	Vehicles   []DetectedVehicle
	Plates     []LicensePlate
}

func (r FrameRecords) Empty() bool {
	return len(r.Vehicles) == 0 && len(r.Plates) == 0
}

type Details struct {
	Incident
	DetectedVehicles []DetectedVehicle `json:"detected_vehicles"`
	LicensePlates    []LicensePlate    `json:"license_plates"`
}
