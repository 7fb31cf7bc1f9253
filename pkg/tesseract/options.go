// Package tesseract wraps the Tesseract engine as a word detector and a
// single-line recognizer. The engine is only compiled in with the
// "tesseract" build tag since it needs cgo and libtesseract.
package tesseract

import (
	"errors"
	"os"
)

// ErrUnavailable is returned when the binary was built without Tesseract
var ErrUnavailable = errors.New("tesseract support not compiled in (build with -tags tesseract)")

// Options configures the engine
type Options struct {
	// Language is a Tesseract language list such as "vie" or "vie+eng"
	Language string
	// MinConfidence drops detected words below this confidence (0..100)
	MinConfidence float64
}

// DefaultOptions reads the language from TESSERACT_LANG, defaulting to
// Vietnamese
func DefaultOptions() Options {
	lang := os.Getenv("TESSERACT_LANG")
	if lang == "" {
		lang = "vie"
	}
	return Options{Language: lang}
}
