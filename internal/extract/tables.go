package extract

import (
	"regexp"
	"strings"
)

const maxTableRows = 50

var twoPlusSpaces = regexp.MustCompile(`\s{2,}`)

// transformTables finds runs of lines that split into the same number (>=2)
// of columns on two-or-more spaces and renders them as Markdown tables.
// Everything else passes through unchanged.
func transformTables(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); {
		block := tableBlock(lines[i:])
		if len(block) < 2 {
			out = append(out, lines[i])
			i++
			continue
		}
		out = append(out, renderTable(block)...)
		i += len(block)
	}
	return strings.Join(out, "\n")
}

// tableBlock returns the leading rows of lines that share one column count.
func tableBlock(lines []string) [][]string {
	var block [][]string
	cols := 0
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" || len(block) == maxTableRows {
			break
		}
		cells := twoPlusSpaces.Split(ln, -1)
		if len(cells) < 2 || (cols != 0 && len(cells) != cols) {
			break
		}
		cols = len(cells)
		block = append(block, cells)
	}
	return block
}

func renderTable(block [][]string) []string {
	row := func(cells []string) string {
		trimmed := make([]string, len(cells))
		for i, c := range cells {
			trimmed[i] = strings.TrimSpace(c)
		}
		return "| " + strings.Join(trimmed, " | ") + " |"
	}
	sep := make([]string, len(block[0]))
	for i := range sep {
		sep[i] = "---"
	}

	out := []string{row(block[0]), "| " + strings.Join(sep, " | ") + " |"}
	for _, r := range block[1:] {
		out = append(out, row(r))
	}
	return out
}
