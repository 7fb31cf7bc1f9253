package assembler

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/lehigh-university-libraries/medocr/pkg/layout"
)

// enhanceContrast is the percentage passed to imaging.AdjustContrast
const enhanceContrast = 20

// CropToken cuts the padded region of q out of src and prepares it for a
// line recognizer: resized to the configured height keeping the aspect
// ratio, then optionally enhanced.
func (c Config) CropToken(src image.Image, q layout.Quad) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	x1, y1, x2, y2 := layout.QuadToPixelBBox(q, w, h)
	x1, y1, x2, y2 = layout.PadBox(x1, y1, x2, y2, w, h, c.PadYRatio, c.PadXRatio)

	// never hand an empty image to the recognizer
	x2 = max(x2, x1+1)
	y2 = max(y2, y1+1)
	rect := image.Rect(x1, y1, x2, y2).Add(bounds.Min)

	var out image.Image = imaging.Crop(src, rect)
	if c.TargetHeight > 0 {
		out = imaging.Resize(out, 0, c.TargetHeight, imaging.CatmullRom)
	}
	if c.Enhance {
		out = enhance(out)
	}
	return out
}

// enhance approximates a local contrast stretch followed by an unsharp mask
func enhance(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, enhanceContrast)
	return imaging.Sharpen(gray, 1.0)
}
