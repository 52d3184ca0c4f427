package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcam-service/internal/domain/incident"
	"dashcam-service/internal/testutil"
)

func newTestRepo(t *testing.T) *IncidentRepository {
	t.Helper()
	return NewIncidentRepository(testutil.OpenDB(t, Models()...))
}

func seedIncident(t *testing.T, repo *IncidentRepository) *incident.Incident {
	t.Helper()
	inc := &incident.Incident{
		UserID:    uuid.NewString(),
		Type:      incident.TypeCrash,
		Latitude:  52.52,
		Longitude: 13.405,
		Timestamp: time.Date(2024, 1, 13, 22, 0, 0, 0, time.UTC),
		VideoPath: "/var/data/videos/u/i/raw.mp4",
		VideoSize: 1024,
	}
	require.NoError(t, repo.CreateIncident(context.Background(), inc))
	return inc
}

func color(c incident.Color) *incident.Color { return &c }

func TestCreateAndGetIncident(t *testing.T) {
	repo := newTestRepo(t)
	inc := seedIncident(t, repo)

	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, incident.StatusPending, inc.ProcessingStatus)

	got, err := repo.GetIncident(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, inc.ID, got.ID)
	assert.Equal(t, incident.TypeCrash, got.Type)
	assert.Equal(t, incident.StatusPending, got.ProcessingStatus)
	assert.Equal(t, inc.VideoPath, got.VideoPath)

	_, err = repo.GetIncident(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestClaimIncident(t *testing.T) {
	repo := newTestRepo(t)
	inc := seedIncident(t, repo)

	claimed, err := repo.ClaimIncident(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusProcessing, claimed.ProcessingStatus)
	assert.Equal(t, inc.VideoPath, claimed.VideoPath)

	_, err = repo.ClaimIncident(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestClaimIncident_Exclusive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	inc := seedIncident(t, repo)

	_, err := repo.ClaimIncident(ctx, inc.ID)
	require.NoError(t, err)

	_, err = repo.ClaimIncident(ctx, inc.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.NotErrorIs(t, err, ErrIncidentNotFound)

	// Finished incidents can be claimed again for a rerun.
	require.NoError(t, repo.SetStatus(ctx, inc.ID, incident.StatusFailed))
	claimed, err := repo.ClaimIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusProcessing, claimed.ProcessingStatus)
}

func TestSetStatus(t *testing.T) {
	repo := newTestRepo(t)
	inc := seedIncident(t, repo)

	require.NoError(t, repo.SetStatus(context.Background(), inc.ID, incident.StatusFailed))
	got, err := repo.GetIncident(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusFailed, got.ProcessingStatus)

	err = repo.SetStatus(context.Background(), "missing", incident.StatusCompleted)
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestSaveFrame_RequiresProcessing(t *testing.T) {
	repo := newTestRepo(t)
	inc := seedIncident(t, repo)
	rec := incident.FrameRecords{
		Vehicles: []incident.DetectedVehicle{{
			ID:          uuid.NewString(),
			VehicleType: incident.VehicleCar,
			Confidence:  0.9,
			BoundingBox: incident.BoundingBox{X1: 1, Y1: 2, X2: 3, Y2: 4},
		}},
	}

	err := repo.SaveFrame(context.Background(), inc.ID, rec)
	assert.ErrorIs(t, err, ErrNotProcessing)

	vehicles, err := repo.ListVehicles(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Empty(t, vehicles)

	// Empty frames are a no-op whatever the state.
	assert.NoError(t, repo.SaveFrame(context.Background(), inc.ID, incident.FrameRecords{}))
}

func TestSaveFrame_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	inc := seedIncident(t, repo)
	_, err := repo.ClaimIncident(context.Background(), inc.ID)
	require.NoError(t, err)

	vehicleID := uuid.NewString()
	rec := incident.FrameRecords{
		FrameIndex: 3,
		Vehicles: []incident.DetectedVehicle{{
			ID:             vehicleID,
			VehicleType:    incident.VehicleTruck,
			Color:          color(incident.ColorBlue),
			Confidence:     0.77,
			BoundingBox:    incident.BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 90},
			FrameTimestamp: 3,
		}},
		Plates: []incident.LicensePlate{
			{
				DetectionID:    &vehicleID,
				PlateNumber:    "AB1234",
				Confidence:     0.8,
				FrameTimestamp: 3,
				BoundingBox:    incident.BoundingBox{X1: 40, Y1: 70, X2: 80, Y2: 85},
			},
			{
				PlateNumber:    "XYZ987",
				Confidence:     0.6,
				FrameTimestamp: 3,
				BoundingBox:    incident.BoundingBox{X1: 200, Y1: 70, X2: 240, Y2: 85},
			},
		},
	}
	require.NoError(t, repo.SaveFrame(context.Background(), inc.ID, rec))

	vehicles, err := repo.ListVehicles(context.Background(), inc.ID)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	v := vehicles[0]
	assert.Equal(t, vehicleID, v.ID)
	assert.Equal(t, inc.ID, v.IncidentID)
	assert.Equal(t, incident.VehicleTruck, v.VehicleType)
	require.NotNil(t, v.Color)
	assert.Equal(t, incident.ColorBlue, *v.Color)
	assert.Nil(t, v.Make)
	assert.Nil(t, v.Model)
	assert.Equal(t, incident.BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 90}, v.BoundingBox)
	assert.Equal(t, 3.0, v.FrameTimestamp)

	plates, err := repo.ListPlates(context.Background(), inc.ID)
	require.NoError(t, err)
	require.Len(t, plates, 2)

	byNumber := map[string]incident.LicensePlate{}
	for _, p := range plates {
		assert.NotEmpty(t, p.ID)
		assert.Nil(t, p.StateRegion)
		assert.Nil(t, p.Country)
		byNumber[p.PlateNumber] = p
	}
	require.NotNil(t, byNumber["AB1234"].DetectionID)
	assert.Equal(t, vehicleID, *byNumber["AB1234"].DetectionID)
	assert.Nil(t, byNumber["XYZ987"].DetectionID)
	assert.Equal(t, incident.BoundingBox{X1: 200, Y1: 70, X2: 240, Y2: 85}, byNumber["XYZ987"].BoundingBox)
}

func TestSaveFrame_AtomicOnFailure(t *testing.T) {
	repo := newTestRepo(t)
	inc := seedIncident(t, repo)
	_, err := repo.ClaimIncident(context.Background(), inc.ID)
	require.NoError(t, err)

	id := uuid.NewString()
	rec := incident.FrameRecords{
		Vehicles: []incident.DetectedVehicle{
			{ID: id, VehicleType: incident.VehicleCar, Confidence: 0.9},
		},
		// Same primary key twice makes the plate insert fail.
		Plates: []incident.LicensePlate{
			{ID: "dup", PlateNumber: "AB1234", Confidence: 0.9},
			{ID: "dup", PlateNumber: "AB1234", Confidence: 0.9},
		},
	}
	err = repo.SaveFrame(context.Background(), inc.ID, rec)
	assert.ErrorIs(t, err, ErrPersistence)

	vehicles, err := repo.ListVehicles(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Empty(t, vehicles, "vehicle insert must roll back with the plates")
}

func TestFindPlatesByNumber(t *testing.T) {
	repo := newTestRepo(t)
	a := seedIncident(t, repo)
	b := seedIncident(t, repo)
	for _, inc := range []*incident.Incident{a, b} {
		_, err := repo.ClaimIncident(context.Background(), inc.ID)
		require.NoError(t, err)
	}

	require.NoError(t, repo.SaveFrame(context.Background(), a.ID, incident.FrameRecords{
		Plates: []incident.LicensePlate{{PlateNumber: "AB1234", Confidence: 0.6}},
	}))
	require.NoError(t, repo.SaveFrame(context.Background(), b.ID, incident.FrameRecords{
		Plates: []incident.LicensePlate{
			{PlateNumber: "AB1234", Confidence: 0.9},
			{PlateNumber: "ZZ9999", Confidence: 0.9},
		},
	}))

	plates, err := repo.FindPlatesByNumber(context.Background(), "AB1234", 50, 0)
	require.NoError(t, err)
	require.Len(t, plates, 2)
	assert.Equal(t, b.ID, plates[0].IncidentID)
	assert.Equal(t, a.ID, plates[1].IncidentID)

	plates, err = repo.FindPlatesByNumber(context.Background(), "AB1234", 1, 1)
	require.NoError(t, err)
	require.Len(t, plates, 1)
	assert.Equal(t, a.ID, plates[0].IncidentID)
}

func TestListPendingIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 13, 22, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		inc := &incident.Incident{
			UserID:    uuid.NewString(),
			Type:      incident.TypeOther,
			Timestamp: base,
			VideoPath: "/videos/raw.mp4",
			CreatedAt: base.Add(time.Duration(3-i) * time.Minute),
		}
		require.NoError(t, repo.CreateIncident(ctx, inc))
		ids = append(ids, inc.ID)
	}
	_, err := repo.ClaimIncident(ctx, ids[0])
	require.NoError(t, err)

	pending, err := repo.ListPendingIDs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2], ids[1]}, pending)

	pending, err = repo.ListPendingIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2]}, pending)
}
