// Package hocr renders assembled lines as an hOCR document
package hocr

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/lehigh-university-libraries/medocr/pkg/assembler"
	"github.com/lehigh-university-libraries/medocr/pkg/layout"
)

// FromLines renders one ocr_line span per line with an ocrx_word span per
// token. width and height describe the page.
func FromLines(lines []assembler.Line, width, height int) string {
	var b strings.Builder
	word := 0
	for i, line := range lines {
		fmt.Fprintf(&b, "<span class='ocr_line' id='line_1_%d' title='%s'>", i+1, BBox(line.Box))
		for j, tok := range line.Tokens {
			if j > 0 {
				b.WriteByte(' ')
			}
			word++
			fmt.Fprintf(&b, "<span class='ocrx_word' id='word_1_%d' title='%s'>%s</span>",
				word, BBox(tok.Box), html.EscapeString(tok.Text))
		}
		if len(line.Tokens) == 0 {
			b.WriteString(html.EscapeString(line.Text))
		}
		b.WriteString("</span>\n")
	}
	return WrapInHOCRDocument(strings.TrimSuffix(b.String(), "\n"), width, height)
}

// BBox formats a box as an hOCR bbox property with integer pixel
// coordinates, rounding outward
func BBox(box layout.AxisBox) string {
	return fmt.Sprintf("bbox %d %d %d %d",
		int(math.Floor(box.XMin)), int(math.Floor(box.YMin)),
		int(math.Ceil(box.XMax)), int(math.Ceil(box.YMax)))
}

// WrapInHOCRDocument wraps content in a complete hOCR HTML document
func WrapInHOCRDocument(content string, width, height int) string {
	return fmt.Sprintf(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">
<html xmlns="http://www.w3.org/1999/xhtml" xml:lang="vi" lang="vi">
<head>
<title></title>
<meta http-equiv="Content-Type" content="text/html;charset=utf-8" />
<meta name='ocr-system' content='medocr' />
<meta name='ocr-capabilities' content='ocr_page ocr_line ocrx_word' />
</head>
<body>
<div class='ocr_page' id='page_1' title='bbox 0 0 %d %d'>
%s
</div>
</body>
</html>`, width, height, content)
}
