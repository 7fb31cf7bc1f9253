// Package gvision detects words with the Google Cloud Vision document text
// detection API.
package gvision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"

	"github.com/lehigh-university-libraries/medocr/pkg/detect"
	"github.com/lehigh-university-libraries/medocr/pkg/layout"
)

// Client is the part of vision.ImageAnnotatorClient the detector uses.
// Tests substitute a fake.
type Client interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
}

// Detector reports the word bounding polygons Vision finds
type Detector struct {
	client        Client
	languageHints []string
	timeout       time.Duration
}

// NewDetector wraps an existing client
func NewDetector(client Client, languageHints ...string) *Detector {
	if len(languageHints) == 0 {
		languageHints = []string{"vi", "en"}
	}
	return &Detector{
		client:        client,
		languageHints: languageHints,
		timeout:       60 * time.Second,
	}
}

// Dial creates an ImageAnnotatorClient using application default
// credentials (GOOGLE_APPLICATION_CREDENTIALS). The returned close function
// releases the connection.
func Dial(ctx context.Context, languageHints ...string) (*Detector, func() error, error) {
	c, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return NewDetector(c, languageHints...), c.Close, nil
}

// Detect sends img to Vision and returns one detection per word
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]detect.Detection, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: buf.Bytes()},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{LanguageHints: d.languageHints},
			},
		},
	}

	resp, err := d.client.BatchAnnotateImages(ctx, req, gax.WithTimeout(d.timeout))
	if err != nil {
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, errors.New("vision returned no responses")
	}

	r := resp.GetResponses()[0]
	if r.GetError() != nil && r.GetError().GetMessage() != "" {
		return nil, fmt.Errorf("vision error: %s", r.GetError().GetMessage())
	}

	b := img.Bounds()
	dets := wordDetections(r.GetFullTextAnnotation(), float64(b.Dx()), float64(b.Dy()))
	slog.Debug("Vision detection completed", "words", len(dets))
	return dets, nil
}

func wordDetections(ann *visionpb.TextAnnotation, width, height float64) []detect.Detection {
	dets := []detect.Detection{}
	for _, page := range ann.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, paragraph := range block.GetParagraphs() {
				for _, word := range paragraph.GetWords() {
					q, ok := polyToQuad(word.GetBoundingBox(), width, height)
					if !ok {
						continue
					}
					score := float64(word.GetConfidence())
					if score == 0 {
						score = 1
					}
					dets = append(dets, detect.Detection{Quad: q, Score: score})
				}
			}
		}
	}
	return dets
}

// polyToQuad prefers pixel vertices and falls back to normalized ones
func polyToQuad(poly *visionpb.BoundingPoly, width, height float64) (layout.Quad, bool) {
	var points [][2]float64
	if vs := poly.GetVertices(); len(vs) > 0 {
		for _, v := range vs {
			points = append(points, [2]float64{float64(v.GetX()), float64(v.GetY())})
		}
	} else {
		for _, v := range poly.GetNormalizedVertices() {
			points = append(points, [2]float64{float64(v.GetX()) * width, float64(v.GetY()) * height})
		}
	}
	if len(points) < 3 {
		return layout.Quad{}, false
	}
	return detect.QuadFromPoints(points), true
}
