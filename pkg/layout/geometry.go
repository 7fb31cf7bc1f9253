package layout

import "math"

// QuadToAxisBox converts a quadrilateral into its axis-aligned bounding box
func QuadToAxisBox(q Quad) AxisBox {
	b := AxisBox{
		XMin: q[0].X, YMin: q[0].Y,
		XMax: q[0].X, YMax: q[0].Y,
	}
	for _, p := range q[1:] {
		b.XMin = min(b.XMin, p.X)
		b.YMin = min(b.YMin, p.Y)
		b.XMax = max(b.XMax, p.X)
		b.YMax = max(b.YMax, p.Y)
	}
	return b
}

// QuadToPixelBBox converts a quadrilateral into integer crop coordinates
// clamped into the image. Coordinates are truncated toward zero before the
// min/max so a rotated quad maps to the same pixels the detector saw.
func QuadToPixelBBox(q Quad, width, height int) (x1, y1, x2, y2 int) {
	x1, y1 = int(q[0].X), int(q[0].Y)
	x2, y2 = x1, y1
	for _, p := range q[1:] {
		x, y := int(p.X), int(p.Y)
		x1 = min(x1, x)
		y1 = min(y1, y)
		x2 = max(x2, x)
		y2 = max(y2, y)
	}

	x1 = clamp(x1, 0, width-1)
	y1 = clamp(y1, 0, height-1)
	x2 = clamp(x2, 0, width-1)
	y2 = clamp(y2, 0, height-1)

	// a quad lying entirely outside the image collapses onto the border
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return x1, y1, x2, y2
}

// PadBox grows a pixel box by a fraction of its own size on every side and
// clamps the result into the image. Zero-size boxes are treated as 1 pixel
// wide and tall when computing the padding.
func PadBox(x1, y1, x2, y2, width, height int, padYRatio, padXRatio float64) (int, int, int, int) {
	bw := max(1, x2-x1)
	bh := max(1, y2-y1)
	px := int(float64(bw) * padXRatio)
	py := int(float64(bh) * padYRatio)

	return max(0, x1-px),
		max(0, y1-py),
		min(width-1, x2+px),
		min(height-1, y2+py)
}

// VerticalIoU is the intersection over union of the y-intervals of two boxes
func VerticalIoU(a, b AxisBox) float64 {
	inter := math.Max(0, math.Min(a.YMax, b.YMax)-math.Max(a.YMin, b.YMin))
	union := a.Height() + b.Height() - inter + 1e-6
	return inter / union
}

// NeedsSpace reports whether a space belongs between two horizontally
// adjacent boxes. The gap is measured against the pair's average height so
// the threshold follows the text scale.
func NeedsSpace(prev, cur AxisBox, ratio float64) bool {
	gap := math.Max(0, cur.XMin-prev.XMax)
	h := math.Max(1, (prev.Height()+cur.Height())/2.0)
	return gap > ratio*h
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return max(lo, min(v, hi))
}
