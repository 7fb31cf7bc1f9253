// Package export writes assembled pages in the supported output formats
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/lehigh-university-libraries/medocr/pkg/assembler"
	"github.com/lehigh-university-libraries/medocr/pkg/hocr"
)

// ErrUnknownFormat is returned for a format name Write does not support
var ErrUnknownFormat = errors.New("unknown export format")

// Page is the exportable result for one image
type Page struct {
	Source string           `json:"source" yaml:"source"`
	Width  int              `json:"width" yaml:"width"`
	Height int              `json:"height" yaml:"height"`
	Lines  []assembler.Line `json:"lines" yaml:"lines"`
}

// Text joins the line texts with newlines
func (p Page) Text() string {
	texts := make([]string, len(p.Lines))
	for i, l := range p.Lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}

var contentTypes = map[string]string{
	"txt":  "text/plain; charset=utf-8",
	"json": "application/json",
	"yaml": "application/yaml",
	"csv":  "text/csv; charset=utf-8",
	"hocr": "text/html; charset=utf-8",
}

// Formats lists the supported format names
func Formats() []string {
	return []string{"txt", "json", "yaml", "csv", "hocr"}
}

// ContentType returns the MIME type for a format
func ContentType(format string) (string, error) {
	ct, ok := contentTypes[normalize(format)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return ct, nil
}

// Extension returns the file extension, with dot, for a format
func Extension(format string) string {
	f := normalize(format)
	if f == "hocr" {
		return ".hocr"
	}
	return "." + f
}

func normalize(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	switch f {
	case "text":
		return "txt"
	case "yml":
		return "yaml"
	}
	return f
}

// Write renders page to w in the named format
func Write(w io.Writer, format string, page Page) error {
	switch normalize(format) {
	case "txt":
		if len(page.Lines) == 0 {
			return nil
		}
		_, err := io.WriteString(w, page.Text()+"\n")
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(page); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case "csv":
		return writeCSV(w, page)
	case "hocr":
		_, err := io.WriteString(w, hocr.FromLines(page.Lines, page.Width, page.Height)+"\n")
		return err
	default:
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
}

func writeCSV(w io.Writer, page Page) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "text", "x_min", "y_min", "x_max", "y_max"}); err != nil {
		return err
	}
	for i, l := range page.Lines {
		record := []string{
			strconv.Itoa(i),
			l.Text,
			formatCoord(l.Box.XMin),
			formatCoord(l.Box.YMin),
			formatCoord(l.Box.XMax),
			formatCoord(l.Box.YMax),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
