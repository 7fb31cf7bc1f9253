package detect

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"sort"

	"github.com/lehigh-university-libraries/medocr/pkg/layout"
)

// ComponentDetector finds words as clusters of dark connected components.
// It expects a binarized page (dark ink on a light background) such as the
// output of the preprocess package and needs no external model.
type ComponentDetector struct {
	// components outside these limits are treated as noise or rules
	MinWidth, MinHeight int
	// MaxWidthRatio and MaxHeightRatio bound a component relative to the
	// page size
	MaxWidthRatio, MaxHeightRatio float64
	// MergeGap is the largest horizontal gap, as a fraction of the taller
	// component, still considered part of the same word
	MergeGap float64
	// Threshold is the gray level below which a pixel counts as ink
	Threshold uint8
}

// NewComponentDetector returns a detector with settings suited to scanned
// forms at typical resolutions
func NewComponentDetector() ComponentDetector {
	return ComponentDetector{
		MinWidth:       2,
		MinHeight:      4,
		MaxWidthRatio:  0.5,
		MaxHeightRatio: 0.2,
		MergeGap:       1.0 / 3.0,
		Threshold:      128,
	}
}

type component struct {
	x1, y1, x2, y2 int // inclusive
}

func (c component) box() layout.AxisBox {
	return layout.AxisBox{
		XMin: float64(c.x1), YMin: float64(c.y1),
		XMax: float64(c.x2 + 1), YMax: float64(c.y2 + 1),
	}
}

// Detect labels ink components, drops implausible sizes and merges
// horizontally adjacent components of a text row into words
func (d ComponentDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	components := attachMarks(d.findComponents(img))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boxes := make([]layout.AxisBox, len(components))
	for i, c := range components {
		boxes[i] = c.box()
	}

	dets := []Detection{}
	for _, row := range layout.GroupRows(boxes, layout.DefaultThresholds()) {
		for _, word := range d.mergeRow(row) {
			dets = append(dets, Detection{Quad: rectQuad(word), Score: 1})
		}
	}

	slog.Debug("Component detection completed",
		"components", len(components),
		"words", len(dets),
		"image_size", img.Bounds().Size(),
	)
	return dets, nil
}

func (d ComponentDetector) findComponents(img image.Image) []component {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	ink := make([]bool, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			ink[y*width+x] = d.isInk(img.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	maxW := int(float64(width) * d.MaxWidthRatio)
	maxH := int(float64(height) * d.MaxHeightRatio)

	visited := make([]bool, width*height)
	var components []component
	var stack []int
	for start := range ink {
		if !ink[start] || visited[start] {
			continue
		}

		c := component{x1: start % width, y1: start / width, x2: start % width, y2: start / width}
		visited[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			px, py := p%width, p/width
			c.x1, c.x2 = min(c.x1, px), max(c.x2, px)
			c.y1, c.y2 = min(c.y1, py), max(c.y2, py)

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					n := ny*width + nx
					if ink[n] && !visited[n] {
						visited[n] = true
						stack = append(stack, n)
					}
				}
			}
		}

		w, h := c.x2-c.x1+1, c.y2-c.y1+1
		if w >= d.MinWidth && h >= d.MinHeight && w <= maxW && h <= maxH {
			components = append(components, c)
		}
	}
	return components
}

// attachMarks folds small components such as diacritics and the dot of an
// i into the larger component directly below or above them
func attachMarks(components []component) []component {
	if len(components) < 2 {
		return components
	}

	heights := make([]int, len(components))
	for i, c := range components {
		heights[i] = c.y2 - c.y1 + 1
	}
	sort.Ints(heights)
	medianH := heights[len(heights)/2]

	absorbed := make([]bool, len(components))
	for i, mark := range components {
		if mark.y2-mark.y1+1 >= (medianH+1)/2 {
			continue
		}
		for j := range components {
			base := components[j]
			if i == j || absorbed[j] || base.y2-base.y1+1 < (medianH+1)/2 {
				continue
			}
			if mark.x2 < base.x1 || mark.x1 > base.x2 {
				continue
			}
			gap := max(base.y1-mark.y2, mark.y1-base.y2)
			if gap > medianH/2 {
				continue
			}
			components[j] = component{
				x1: min(base.x1, mark.x1), y1: min(base.y1, mark.y1),
				x2: max(base.x2, mark.x2), y2: max(base.y2, mark.y2),
			}
			absorbed[i] = true
			break
		}
	}

	kept := components[:0]
	for i, c := range components {
		if !absorbed[i] {
			kept = append(kept, c)
		}
	}
	return kept
}

func (d ComponentDetector) isInk(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	gray := (r + g + b) / 3
	return gray < uint32(d.Threshold)*257
}

// mergeRow joins left-to-right members of one row whose horizontal gap is
// within MergeGap of the taller box
func (d ComponentDetector) mergeRow(row layout.Row) []layout.AxisBox {
	var words []layout.AxisBox
	for _, m := range row.Members {
		if len(words) == 0 {
			words = append(words, m.Box)
			continue
		}
		last := &words[len(words)-1]
		gap := m.Box.XMin - last.XMax
		if gap <= d.MergeGap*max(last.Height(), m.Box.Height()) {
			*last = last.Union(m.Box)
			continue
		}
		words = append(words, m.Box)
	}
	return words
}

func rectQuad(b layout.AxisBox) layout.Quad {
	return layout.Quad{
		{X: b.XMin, Y: b.YMin},
		{X: b.XMax, Y: b.YMin},
		{X: b.XMax, Y: b.YMax},
		{X: b.XMin, Y: b.YMax},
	}
}
