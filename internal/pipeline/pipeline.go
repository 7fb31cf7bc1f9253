// Package pipeline runs preprocessing, detection and line assembly for a
// single page image.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/medocr/pkg/assembler"
	"github.com/lehigh-university-libraries/medocr/pkg/detect"
	"github.com/lehigh-university-libraries/medocr/pkg/export"
	"github.com/lehigh-university-libraries/medocr/pkg/preprocess"
)

// Document is the result of running the pipeline on one image
type Document struct {
	Source string `json:"source" yaml:"source"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`

	// Variant is the preprocessing rendition detection ran on, empty when
	// preprocessing is off
	Variant  string             `json:"variant,omitempty" yaml:"variant,omitempty"`
	Inverted bool               `json:"inverted,omitempty" yaml:"inverted,omitempty"`
	Scores   map[string]float64 `json:"scores,omitempty" yaml:"scores,omitempty"`

	// Detections counts the regions kept after score filtering
	Detections int              `json:"detections" yaml:"detections"`
	Lines      []assembler.Line `json:"lines" yaml:"lines"`
	Paragraphs []string         `json:"paragraphs" yaml:"paragraphs"`
	Duration   time.Duration    `json:"duration" yaml:"duration"`
}

// Text joins the paragraphs with newlines
func (d Document) Text() string {
	return d.Page().Text()
}

// Page converts the document for export
func (d Document) Page() export.Page {
	return export.Page{
		Source: d.Source,
		Width:  d.Width,
		Height: d.Height,
		Lines:  d.Lines,
	}
}

// Pipeline wires a detector and a recognizer together. It holds no
// per-image state.
type Pipeline struct {
	config       Config
	detector     detect.Detector
	assembler    *assembler.Assembler
	preprocessor *preprocess.Preprocessor
}

// New creates a pipeline. A detect.FileDetector with an empty Path reads
// each image's sidecar box file.
func New(config Config, detector detect.Detector, recognizer assembler.Recognizer) *Pipeline {
	p := &Pipeline{
		config:    config,
		detector:  detector,
		assembler: assembler.New(recognizer, config.Assembler),
	}
	if config.Preprocess {
		p.preprocessor = preprocess.New(config.Binarize, nil)
	}
	return p
}

// Config returns the settings the pipeline was created with
func (p *Pipeline) Config() Config {
	return p.config
}

// Run loads imagePath and processes it
func (p *Pipeline) Run(ctx context.Context, imagePath string) (Document, error) {
	img, err := LoadImage(imagePath)
	if err != nil {
		return Document{}, err
	}

	detector := p.detector
	if fd, ok := detector.(detect.FileDetector); ok && fd.Path == "" {
		detector = detect.FileDetector{Path: detect.SidecarPath(imagePath)}
	}
	return p.process(ctx, imagePath, img, detector)
}

// RunImage processes an already decoded image. source is only recorded in
// the document.
func (p *Pipeline) RunImage(ctx context.Context, source string, img image.Image) (Document, error) {
	return p.process(ctx, source, img, p.detector)
}

func (p *Pipeline) process(ctx context.Context, source string, img image.Image, detector detect.Detector) (Document, error) {
	start := time.Now()
	b := img.Bounds()
	doc := Document{
		Source: source,
		Width:  b.Dx(),
		Height: b.Dy(),
	}

	target := img
	if p.preprocessor != nil {
		res, err := p.preprocessor.Process(img)
		if err != nil {
			return Document{}, fmt.Errorf("preprocessing failed: %w", err)
		}
		target = res.Best.Image
		doc.Variant = res.Best.Name
		doc.Inverted = res.Inverted
		doc.Scores = res.Scores
	}

	dets, err := detector.Detect(ctx, target)
	if err != nil {
		return Document{}, fmt.Errorf("detection failed: %w", err)
	}
	dets = detect.FilterByScore(dets, p.config.MinScore)
	doc.Detections = len(dets)

	doc.Lines = p.assembler.AssembleLines(ctx, detect.Quads(dets), img)
	if err := ctx.Err(); err != nil {
		// a cancelled run may have skipped regions
		return Document{}, err
	}

	doc.Paragraphs = make([]string, len(doc.Lines))
	for i, l := range doc.Lines {
		doc.Paragraphs[i] = l.Text
	}
	doc.Duration = time.Since(start)

	slog.Info("Processed image",
		"source", source,
		"variant", doc.Variant,
		"detections", doc.Detections,
		"lines", len(doc.Lines),
		"duration", doc.Duration,
	)
	return doc, nil
}
