package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for box files in none of the known layouts
var ErrUnsupportedFormat = errors.New("unsupported box file format")

// FileDetector returns boxes an external detector wrote to a JSON file.
// The image passed to Detect is ignored. An empty Path tells the pipeline to
// use the image's SidecarPath.
//
// Accepted layouts:
//
//	{"boxes": [{"points": [[x,y],...], "score": 0.98}, ...]}
//	{"dt_polys": [[[x,y],...], ...], "dt_scores": [0.98, ...]}
//	[[ [[[x,y],...], ["text", 0.98]], ... ]]   (PaddleOCR ocr() result)
type FileDetector struct {
	Path string
}

// SidecarPath is where a box file for imagePath is looked up by default:
// the image path with its extension replaced by ".boxes.json"
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".boxes.json"
}

// Detect reads and parses the box file
func (d FileDetector) Detect(_ context.Context, _ image.Image) ([]Detection, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read box file: %w", err)
	}
	dets, err := ParseBoxes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", d.Path, err)
	}
	return dets, nil
}

type boxFile struct {
	Boxes []struct {
		Points [][2]float64 `json:"points"`
		Score  *float64     `json:"score"`
	} `json:"boxes"`
	Polys  [][][2]float64 `json:"dt_polys"`
	Scores []float64      `json:"dt_scores"`
}

// ParseBoxes decodes any of the layouts FileDetector accepts
func ParseBoxes(data []byte) ([]Detection, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrUnsupportedFormat
	}

	switch data[0] {
	case '{':
		var f boxFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return f.detections()
	case '[':
		return parsePaddleResult(data)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func (f boxFile) detections() ([]Detection, error) {
	if f.Boxes == nil && f.Polys == nil {
		return nil, fmt.Errorf("%w: neither boxes nor dt_polys present", ErrUnsupportedFormat)
	}

	dets := make([]Detection, 0, len(f.Boxes)+len(f.Polys))
	for _, b := range f.Boxes {
		score := 1.0
		if b.Score != nil {
			score = *b.Score
		}
		dets = append(dets, Detection{Quad: QuadFromPoints(b.Points), Score: score})
	}
	for i, poly := range f.Polys {
		score := 1.0
		if i < len(f.Scores) {
			score = f.Scores[i]
		}
		dets = append(dets, Detection{Quad: QuadFromPoints(poly), Score: score})
	}
	return dets, nil
}

// parsePaddleResult handles both the per-page list PaddleOCR returns and a
// single page's entry list. Only the first page is used.
func parsePaddleResult(data []byte) ([]Detection, error) {
	var top []json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if len(top) == 0 {
		return []Detection{}, nil
	}

	entries := top
	if _, err := parsePaddleEntry(top[0]); err != nil {
		if isNull(top[0]) {
			return []Detection{}, nil
		}
		if err := json.Unmarshal(top[0], &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
	}

	dets := make([]Detection, 0, len(entries))
	for i, raw := range entries {
		det, err := parsePaddleEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrUnsupportedFormat, i, err)
		}
		dets = append(dets, det)
	}
	return dets, nil
}

// parsePaddleEntry decodes [points, [text, score]]
func parsePaddleEntry(raw json.RawMessage) (Detection, error) {
	var entry []json.RawMessage
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Detection{}, err
	}
	if len(entry) == 0 {
		return Detection{}, errors.New("empty entry")
	}

	var points [][2]float64
	if err := json.Unmarshal(entry[0], &points); err != nil {
		return Detection{}, err
	}
	if len(points) < 3 {
		return Detection{}, fmt.Errorf("polygon has %d points", len(points))
	}

	det := Detection{Quad: QuadFromPoints(points), Score: 1}
	if len(entry) > 1 {
		var rec []json.RawMessage
		if err := json.Unmarshal(entry[1], &rec); err == nil && len(rec) > 1 {
			var score float64
			if err := json.Unmarshal(rec[1], &score); err == nil {
				det.Score = score
			}
		}
	}
	return det, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
