// Package detect defines the text detector contract and a detector that
// reads boxes produced by an external tool.
package detect

import (
	"context"
	"image"

	"github.com/lehigh-university-libraries/medocr/pkg/layout"
)

// Detection is one detected text region
type Detection struct {
	Quad layout.Quad `json:"quad" yaml:"quad"`
	// Score is the detector confidence in [0, 1]. Detectors that do not
	// report one use 1.
	Score float64 `json:"score" yaml:"score"`
}

// Detector finds text regions in an image. The result has no particular
// order; an empty result means no text was found.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// FilterByScore keeps the detections scoring at least minScore
func FilterByScore(dets []Detection, minScore float64) []Detection {
	if minScore <= 0 {
		return dets
	}
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Score >= minScore {
			kept = append(kept, d)
		}
	}
	return kept
}

// Quads extracts the regions of dets
func Quads(dets []Detection) []layout.Quad {
	quads := make([]layout.Quad, len(dets))
	for i, d := range dets {
		quads[i] = d.Quad
	}
	return quads
}

// QuadFromPoints builds a quad from a polygon. Four points are used as
// given; any other count is replaced by the polygon's bounding rectangle.
func QuadFromPoints(points [][2]float64) layout.Quad {
	var q layout.Quad
	if len(points) == 4 {
		for i, p := range points {
			q[i] = layout.Point{X: p[0], Y: p[1]}
		}
		return q
	}
	if len(points) == 0 {
		return q
	}

	xMin, yMin := points[0][0], points[0][1]
	xMax, yMax := xMin, yMin
	for _, p := range points[1:] {
		xMin, xMax = min(xMin, p[0]), max(xMax, p[0])
		yMin, yMax = min(yMin, p[1]), max(yMax, p[1])
	}
	return layout.Quad{
		{X: xMin, Y: yMin},
		{X: xMax, Y: yMin},
		{X: xMax, Y: yMax},
		{X: xMin, Y: yMax},
	}
}
