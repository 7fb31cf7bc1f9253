//go:build !tesseract

package tesseract

import (
	"context"
	"image"

	"github.com/lehigh-university-libraries/medocr/pkg/detect"
)

// Available reports whether Tesseract support is compiled in
func Available() bool { return false }

// Engine is a placeholder for builds without Tesseract
type Engine struct{}

// New always fails with ErrUnavailable
func New(Options) (*Engine, error) {
	return nil, ErrUnavailable
}

// Close does nothing
func (e *Engine) Close() error { return nil }

// Detect always fails with ErrUnavailable
func (e *Engine) Detect(context.Context, image.Image) ([]detect.Detection, error) {
	return nil, ErrUnavailable
}

// Recognize always fails with ErrUnavailable
func (e *Engine) Recognize(context.Context, image.Image) (string, error) {
	return "", ErrUnavailable
}
