package extract

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	rpdf "rsc.io/pdf"
)

// readPDF extracts text page by page. Glyph runs are joined into lines by
// their baseline; column-aligned blocks are rendered as Markdown tables.
func readPDF(data []byte) (text string, err error) {
	// rsc.io/pdf panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	doc, err := rpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	n := doc.NumPage()
	if n == 0 {
		return "", fmt.Errorf("pdf has no pages")
	}

	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := doc.Page(i)
		if p.V.IsNull() {
			continue
		}
		t := strings.TrimSpace(pageText(p.Content().Text))
		if t == "" {
			continue
		}
		pages = append(pages, transformTables(t))
	}
	return strings.Join(pages, "\n\n"), nil
}

func pageText(glyphs []rpdf.Text) string {
	var b strings.Builder
	var prev *rpdf.Text
	for i := range glyphs {
		g := &glyphs[i]
		if prev != nil {
			lineGap := math.Abs(g.Y - prev.Y)
			size := math.Max(prev.FontSize, 1)
			switch {
			case lineGap > size*1.8:
				b.WriteString("\n\n")
			case lineGap > size*0.5:
				b.WriteString("\n")
			case g.X-(prev.X+prev.W) > size*1.5:
				// wide horizontal gap keeps columns apart for transformTables
				b.WriteString("  ")
			case g.X-(prev.X+prev.W) > size*0.15:
				b.WriteString(" ")
			}
		}
		b.WriteString(g.S)
		prev = g
	}
	return b.String()
}
