// Package colors derives a representative color from a garment image with
// a transparent background, and buckets it into a named color and a
// coarse group using fixed margin-based heuristics.
package colors

import (
	"image"

	"github.com/Saisurya114/wardrobe-backend/internal/model"
)

// FallbackGray is returned when an image has no foreground pixels at all.
var FallbackGray = model.RGB{128, 128, 128}

// Heuristic bounds. These are product-tuned constants; the name and group
// mappers below depend on them matching exactly.
const (
	nearEqualDiff   = 20  // all channels within this of each other => grayscale-ish
	dominanceMargin = 25  // a channel must beat the others by this to win
	blackMax        = 80  // grayscale-ish below this is black
	whiteMin        = 200 // grayscale-ish above this is white
)

// DominantRGB returns the arithmetic mean of R, G, B over all pixels with
// non-zero alpha, truncated to integers. Fully transparent images yield
// FallbackGray rather than an error.
func DominantRGB(img image.Image) model.RGB {
	bounds := img.Bounds()

	var rSum, gSum, bSum, count uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			// RGBA returns 16-bit premultiplied channels; scale back to 8-bit.
			rSum += uint64(r >> 8)
			gSum += uint64(g >> 8)
			bSum += uint64(b >> 8)
			count++
		}
	}

	if count == 0 {
		return FallbackGray
	}

	return model.RGB{
		int(rSum / count),
		int(gSum / count),
		int(bSum / count),
	}
}

// MapGroup buckets an RGB triple into a coarse color group:
// white, black, red, green, blue or neutral.
func MapGroup(rgb model.RGB) string {
	r, g, b := rgb[0], rgb[1], rgb[2]

	// Near-equal channels: classify by luminance.
	if abs(r-g) < nearEqualDiff && abs(g-b) < nearEqualDiff {
		if r > whiteMin {
			return "white"
		}
		if r < blackMax {
			return "black"
		}
		return "neutral"
	}

	// Dominant channel with margin over both others.
	if r > g+dominanceMargin && r > b+dominanceMargin {
		return "red"
	}
	if g > r+dominanceMargin && g > b+dominanceMargin {
		return "green"
	}
	if b > r+dominanceMargin && b > g+dominanceMargin {
		return "blue"
	}

	return "neutral"
}

// MapName maps an RGB triple to a human-readable color name. The rule
// order intentionally differs from MapGroup: blue is tested first and
// only against the red channel, so mixed tones can carry a different
// name than their group.
func MapName(rgb model.RGB) string {
	r, g, b := rgb[0], rgb[1], rgb[2]

	if abs(r-g) < nearEqualDiff && abs(g-b) < nearEqualDiff {
		if r > whiteMin {
			return "off white"
		}
		if r < blackMax {
			return "black"
		}
		return "beige"
	}

	if b > r+dominanceMargin {
		return "blue"
	}
	if r > g+dominanceMargin {
		return "red"
	}
	if g > r+dominanceMargin {
		return "green"
	}

	return "neutral"
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
