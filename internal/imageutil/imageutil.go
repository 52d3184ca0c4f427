package imageutil

import (
	"bytes"
	"image"
	"image/jpeg"

	"dashcam-service/internal/domain/incident"
)

// Rect converts a bounding box to an image rectangle.
func Rect(b incident.BoundingBox) image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Box converts an image rectangle to a bounding box.
func Box(r image.Rectangle) incident.BoundingBox {
	return incident.BoundingBox{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img inside box, clipped to the image bounds. The
// crop keeps the frame's coordinate space. ok is false for an empty crop.
func Crop(img image.Image, box incident.BoundingBox) (crop image.Image, ok bool) {
	r := Rect(box).Canon().Intersect(img.Bounds())
	if r.Empty() {
		return nil, false
	}
	si, isSub := img.(subImager)
	if !isSub {
		return nil, false
	}
	return si.SubImage(r), true
}

// ClipBox clamps box to bounds. ok is false if nothing is left.
func ClipBox(box incident.BoundingBox, bounds image.Rectangle) (incident.BoundingBox, bool) {
	r := Rect(box).Canon().Intersect(bounds)
	if r.Empty() {
		return incident.BoundingBox{}, false
	}
	return Box(r), true
}

// Offset translates a box from crop-local coordinates by origin.
func Offset(box incident.BoundingBox, origin image.Point) incident.BoundingBox {
	return incident.BoundingBox{
		X1: box.X1 + origin.X,
		Y1: box.Y1 + origin.Y,
		X2: box.X2 + origin.X,
		Y2: box.Y2 + origin.Y,
	}
}

// PointsBox is the axis-aligned hull of a polygon given as [x, y] pairs.
func PointsBox(points [][2]float64) (incident.BoundingBox, bool) {
	if len(points) == 0 {
		return incident.BoundingBox{}, false
	}
	minX, minY := points[0][0], points[0][1]
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = min(minX, p[0])
		minY = min(minY, p[1])
		maxX = max(maxX, p[0])
		maxY = max(maxY, p[1])
	}
	return incident.BoundingBox{X1: int(minX), Y1: int(minY), X2: int(maxX), Y2: int(maxY)}, true
}

// EncodeJPEG encodes img for shipping to an inference backend. The encoded
// image starts at (0,0) whatever the bounds of img.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
