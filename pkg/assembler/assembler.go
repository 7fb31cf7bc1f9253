// Package assembler turns detected text regions into ordered lines of text.
//
// Regions are clustered into rows, every region is cropped out of the source
// image and handed to a Recognizer, and the recognized tokens of each row
// are joined with inferred spaces and normalized.
package assembler

import (
	"context"
	"image"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/medocr/pkg/layout"
	"github.com/lehigh-university-libraries/medocr/pkg/textnorm"
)

// Recognizer reads the text of a single cropped text region
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// RecognizerFunc adapts a function to the Recognizer interface
type RecognizerFunc func(ctx context.Context, img image.Image) (string, error)

// Recognize calls f(ctx, img)
func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) (string, error) {
	return f(ctx, img)
}

// Token is a region paired with the text recognized in it
type Token struct {
	Box  layout.AxisBox `json:"box" yaml:"box"`
	Text string         `json:"text" yaml:"text"`
}

// Line is one assembled row of text
type Line struct {
	Text string         `json:"text" yaml:"text"`
	Box  layout.AxisBox `json:"box" yaml:"box"`
	// Tokens are the regions that contributed text, left to right
	Tokens []Token `json:"tokens" yaml:"tokens"`
}

// Assembler holds a recognizer and the assembly settings. It keeps no state
// between calls; it is safe for concurrent use if the recognizer is.
type Assembler struct {
	recognizer Recognizer
	config     Config
}

// New creates an Assembler
func New(recognizer Recognizer, config Config) *Assembler {
	return &Assembler{
		recognizer: recognizer,
		config:     config,
	}
}

// Config returns the settings the assembler was created with
func (a *Assembler) Config() Config {
	return a.config
}

// AssembleParagraphs returns one normalized string per detected text line,
// top to bottom. Lines where nothing was recognized are left out.
func (a *Assembler) AssembleParagraphs(ctx context.Context, quads []layout.Quad, src image.Image) []string {
	lines := a.AssembleLines(ctx, quads, src)
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		paragraphs = append(paragraphs, line.Text)
	}
	return paragraphs
}

// AssembleLines is AssembleParagraphs keeping the geometry of every line.
//
// A recognizer error only empties the affected token. Once ctx is done the
// remaining tokens are not sent to the recognizer.
func (a *Assembler) AssembleLines(ctx context.Context, quads []layout.Quad, src image.Image) []Line {
	lines := []Line{}
	if len(quads) == 0 {
		return lines
	}

	boxes := make([]layout.AxisBox, len(quads))
	for i, q := range quads {
		boxes[i] = layout.QuadToAxisBox(q)
	}

	rows := layout.GroupRows(boxes, a.config.Layout)
	slog.Debug("Grouped regions into rows", "regions", len(quads), "rows", len(rows))

	for rowIndex, row := range rows {
		line, ok := a.assembleRow(ctx, rowIndex, row, quads, src)
		if ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func (a *Assembler) assembleRow(ctx context.Context, rowIndex int, row layout.Row, quads []layout.Quad, src image.Image) (Line, bool) {
	var (
		sb     strings.Builder
		tokens []Token
		prev   *layout.AxisBox
		line   Line
	)

	for _, m := range row.Members {
		text := a.recognize(ctx, rowIndex, m.Index, src, quads[m.Index])
		if text == "" {
			continue
		}

		if prev != nil && layout.NeedsSpace(*prev, m.Box, a.config.Layout.SpaceGap) {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)

		if len(tokens) == 0 {
			line.Box = m.Box
		} else {
			line.Box = line.Box.Union(m.Box)
		}
		tokens = append(tokens, Token{Box: m.Box, Text: text})
		box := m.Box
		prev = &box
	}

	if len(tokens) == 0 {
		return Line{}, false
	}

	line.Text = textnorm.Normalize(sb.String())
	line.Tokens = tokens
	return line, true
}

func (a *Assembler) recognize(ctx context.Context, rowIndex, regionIndex int, src image.Image, q layout.Quad) string {
	if ctx.Err() != nil {
		return ""
	}

	crop := a.config.CropToken(src, q)
	text, err := a.recognizer.Recognize(ctx, crop)
	if err != nil {
		slog.Debug("Recognition failed, dropping token", "row", rowIndex, "region", regionIndex, "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}
