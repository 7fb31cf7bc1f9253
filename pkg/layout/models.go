package layout

// Point is a 2-D position in image pixel coordinates
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Quad is a detected text region. The four points are not necessarily
// axis-aligned since detected text may be rotated.
type Quad [4]Point

// AxisBox is the axis-aligned rectangle derived from a Quad
type AxisBox struct {
	XMin float64 `json:"x_min" yaml:"x_min"`
	YMin float64 `json:"y_min" yaml:"y_min"`
	XMax float64 `json:"x_max" yaml:"x_max"`
	YMax float64 `json:"y_max" yaml:"y_max"`
}

// Width returns the horizontal extent of the box
func (b AxisBox) Width() float64 {
	return b.XMax - b.XMin
}

// Height returns the vertical extent of the box
func (b AxisBox) Height() float64 {
	return b.YMax - b.YMin
}

// MidY returns the vertical midpoint of the box
func (b AxisBox) MidY() float64 {
	return (b.YMin + b.YMax) / 2.0
}

// Union returns the smallest box containing both b and o
func (b AxisBox) Union(o AxisBox) AxisBox {
	return AxisBox{
		XMin: min(b.XMin, o.XMin),
		YMin: min(b.YMin, o.YMin),
		XMax: max(b.XMax, o.XMax),
		YMax: max(b.YMax, o.YMax),
	}
}

// Member is a box placed in a row. Index points back into the slice that
// was handed to GroupRows.
type Member struct {
	Index int
	Box   AxisBox
}

// Row is a cluster of boxes judged to lie on the same text line
type Row struct {
	Members []Member
	// YMid is the average of the median top and the median bottom
	YMid float64
	// HAvg is the median member height
	HAvg    float64
	YTop    float64
	YBottom float64
}

// Thresholds holds the geometric parameters of row clustering and spacing
type Thresholds struct {
	// RowIoU is the minimum vertical IoU between a box and a row extent
	RowIoU float64 `json:"row_iou" yaml:"row_iou"`
	// RowCenter is the allowed midpoint distance as a fraction of the row height
	RowCenter float64 `json:"row_center" yaml:"row_center"`
	// SpaceGap is the horizontal gap, as a fraction of the average pair
	// height, above which a space separates two tokens
	SpaceGap float64 `json:"space_gap" yaml:"space_gap"`
}

// DefaultThresholds returns the canonical clustering parameters
func DefaultThresholds() Thresholds {
	return Thresholds{
		RowIoU:    0.3,
		RowCenter: 0.6,
		SpaceGap:  0.25,
	}
}
