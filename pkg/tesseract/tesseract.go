//go:build tesseract

package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/lehigh-university-libraries/medocr/pkg/detect"
	"github.com/lehigh-university-libraries/medocr/pkg/layout"
)

// Available reports whether Tesseract support is compiled in
func Available() bool { return true }

// Engine serializes access to a single gosseract client, which is not safe
// for concurrent use
type Engine struct {
	mu      sync.Mutex
	client  *gosseract.Client
	options Options
}

// New creates an engine and validates the language setting
func New(opts Options) (*Engine, error) {
	client := gosseract.NewClient()
	if opts.Language != "" {
		if err := client.SetLanguage(strings.Split(opts.Language, "+")...); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set language %q: %w", opts.Language, err)
		}
	}
	return &Engine{client: client, options: opts}, nil
}

// Close releases the underlying client
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}

// Detect returns the word boxes Tesseract finds on the page. Scores are
// Tesseract confidences scaled to [0, 1].
func (e *Engine) Detect(ctx context.Context, img image.Image) ([]detect.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.setImage(img, gosseract.PSM_AUTO); err != nil {
		return nil, err
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to get word boxes: %w", err)
	}

	dets := make([]detect.Detection, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" || b.Confidence < e.options.MinConfidence {
			continue
		}
		r := b.Box
		dets = append(dets, detect.Detection{
			Quad: layout.Quad{
				{X: float64(r.Min.X), Y: float64(r.Min.Y)},
				{X: float64(r.Max.X), Y: float64(r.Min.Y)},
				{X: float64(r.Max.X), Y: float64(r.Max.Y)},
				{X: float64(r.Min.X), Y: float64(r.Max.Y)},
			},
			Score: b.Confidence / 100,
		})
	}
	return dets, nil
}

// Recognize reads a crop as a single line of text
func (e *Engine) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.setImage(img, gosseract.PSM_SINGLE_LINE); err != nil {
		return "", err
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (e *Engine) setImage(img image.Image, mode gosseract.PageSegMode) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	if err := e.client.SetPageSegMode(mode); err != nil {
		return fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to set image: %w", err)
	}
	return nil
}
