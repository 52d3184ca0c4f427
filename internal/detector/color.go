package detector

import (
	"image"

	"dashcam-service/internal/domain/incident"
)

// colorStride is the sampling step along both axes when averaging a crop.
const colorStride = 4

// ClassifyColor maps an average RGB value onto the color palette. The first
// matching rule wins.
func ClassifyColor(r, g, b float64) incident.Color {
	switch {
	case r > 200 && g > 200 && b > 200:
		return incident.ColorWhite
	case r < 50 && g < 50 && b < 50:
		return incident.ColorBlack
	case r > 150 && g < 100 && b < 100:
		return incident.ColorRed
	case r < 100 && g > 150 && b < 100:
		return incident.ColorGreen
	case r < 100 && g < 100 && b > 150:
		return incident.ColorBlue
	case r > 150 && g > 150 && b < 100:
		return incident.ColorYellow
	case r > 100 && g > 100 && b > 100:
		return incident.ColorGray
	default:
		return incident.ColorOther
	}
}

// AverageRGB averages every colorStride-th pixel of every colorStride-th row.
// ok is false for an empty image.
func AverageRGB(img image.Image) (r, g, b float64, ok bool) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return 0, 0, 0, false
	}

	var sr, sg, sb, n uint64
	if rgba, isRGBA := img.(*image.RGBA); isRGBA {
		for y := bounds.Min.Y; y < bounds.Max.Y; y += colorStride {
			for x := bounds.Min.X; x < bounds.Max.X; x += colorStride {
				i := rgba.PixOffset(x, y)
				sr += uint64(rgba.Pix[i])
				sg += uint64(rgba.Pix[i+1])
				sb += uint64(rgba.Pix[i+2])
				n++
			}
		}
	} else {
		for y := bounds.Min.Y; y < bounds.Max.Y; y += colorStride {
			for x := bounds.Min.X; x < bounds.Max.X; x += colorStride {
				cr, cg, cb, _ := img.At(x, y).RGBA()
				sr += uint64(cr >> 8)
				sg += uint64(cg >> 8)
				sb += uint64(cb >> 8)
				n++
			}
		}
	}
	return float64(sr) / float64(n), float64(sg) / float64(n), float64(sb) / float64(n), true
}

// DominantColor classifies the average color of a vehicle crop.
func DominantColor(img image.Image) (incident.Color, bool) {
	r, g, b, ok := AverageRGB(img)
	if !ok {
		return "", false
	}
	return ClassifyColor(r, g, b), true
}
