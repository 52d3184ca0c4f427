package imageutil

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcam-service/internal/domain/incident"
)

func TestCrop(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))

	crop, ok := Crop(img, incident.BoundingBox{X1: 10, Y1: 20, X2: 50, Y2: 60})
	require.True(t, ok)
	assert.Equal(t, image.Rect(10, 20, 50, 60), crop.Bounds())

	crop, ok = Crop(img, incident.BoundingBox{X1: 90, Y1: 70, X2: 150, Y2: 120})
	require.True(t, ok)
	assert.Equal(t, image.Rect(90, 70, 100, 80), crop.Bounds())

	_, ok = Crop(img, incident.BoundingBox{X1: 200, Y1: 200, X2: 300, Y2: 300})
	assert.False(t, ok)

	_, ok = Crop(img, incident.BoundingBox{X1: 10, Y1: 10, X2: 10, Y2: 40})
	assert.False(t, ok)
}

func TestClipBox(t *testing.T) {
	bounds := image.Rect(0, 0, 64, 48)
	box, ok := ClipBox(incident.BoundingBox{X1: -5, Y1: 10, X2: 70, Y2: 20}, bounds)
	require.True(t, ok)
	assert.Equal(t, incident.BoundingBox{X1: 0, Y1: 10, X2: 64, Y2: 20}, box)

	_, ok = ClipBox(incident.BoundingBox{X1: 70, Y1: 10, X2: 80, Y2: 20}, bounds)
	assert.False(t, ok)
}

func TestPointsBox(t *testing.T) {
	box, ok := PointsBox([][2]float64{{12.7, 5}, {40, 5.2}, {40.9, 19}, {12, 18}})
	require.True(t, ok)
	assert.Equal(t, incident.BoundingBox{X1: 12, Y1: 5, X2: 40, Y2: 19}, box)

	_, ok = PointsBox(nil)
	assert.False(t, ok)
}

func TestOffset(t *testing.T) {
	box := Offset(incident.BoundingBox{X1: 1, Y1: 2, X2: 3, Y2: 4}, image.Pt(10, 20))
	assert.Equal(t, incident.BoundingBox{X1: 11, Y1: 22, X2: 13, Y2: 24}, box)
}

func TestEncodeJPEG_CropStartsAtOrigin(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	crop, ok := Crop(img, incident.BoundingBox{X1: 10, Y1: 20, X2: 50, Y2: 60})
	require.True(t, ok)

	data, err := EncodeJPEG(crop)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 40, cfg.Height)
}
