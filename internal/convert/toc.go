package convert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/thywilljoshua/manuscript2book/internal/book"
)

var headingRe = regexp.MustCompile(`^(#{2,3})\s+(.+?)\s*#*\s*$`)

type tocEntry struct {
	Number string // display number token (e.g., 2, 2.1, 2.1.3)
	Title  string
	Page   int
	Depth  int
}

// bookEntries flattens the chapters and their headings into ToC entries in
// reading order. Headings inherit the page of their chapter.
func bookEntries(chapters []book.Chapter) []tocEntry {
	var out []tocEntry
	for i, ch := range chapters {
		num := strconv.Itoa(i + 1)
		out = append(out, tocEntry{Number: num, Title: ch.Title, Page: ch.Page, Depth: 1})
		if ch.Status != book.ChapterCompleted {
			continue
		}
		out = append(out, headingEntries(num, ch.Page, ch.Content)...)
	}
	return out
}

func headingEntries(chapterNum string, page int, content string) []tocEntry {
	var out []tocEntry
	sec, sub := 0, 0
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.Trim(m[2], "*_ ")
		if title == "" {
			continue
		}
		switch len(m[1]) {
		case 2:
			sec++
			sub = 0
			out = append(out, tocEntry{Number: fmt.Sprintf("%s.%d", chapterNum, sec), Title: title, Page: page, Depth: 2})
		case 3:
			if sec == 0 {
				// A subsection before any section hangs off an implicit first section.
				sec = 1
			}
			sub++
			out = append(out, tocEntry{Number: fmt.Sprintf("%s.%d.%d", chapterNum, sec, sub), Title: title, Page: page, Depth: 3})
		}
	}
	return out
}

// buildSections assigns page ranges and slugs. A chapter ends the page before
// the next chapter starts; the last one spans as many pages as the one before.
func buildSections(entries []tocEntry, maxDepth int) []Section {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	var chapterPages []int
	for _, e := range entries {
		if e.Depth == 1 {
			chapterPages = append(chapterPages, e.Page)
		}
	}

	var sections []Section
	chapter := -1
	for _, e := range entries {
		if e.Depth == 1 {
			chapter++
		}
		if e.Depth > maxDepth {
			continue
		}
		start := e.Page
		end := chapterEnd(chapterPages, chapter)
		if end < start {
			end = start
		}
		sections = append(sections, Section{
			Number: e.Number,
			Title:  e.Title,
			Start:  start,
			End:    end,
			Depth:  e.Depth,
			Slug:   slugify(e.Number + "-" + e.Title),
		})
	}
	return sections
}

func chapterEnd(pages []int, i int) int {
	switch {
	case i < 0 || i >= len(pages):
		return 0
	case i+1 < len(pages):
		return pages[i+1] - 1
	case i > 0:
		return pages[i] + (pages[i] - pages[i-1]) - 1
	default:
		return pages[i]
	}
}

// contentsLine renders an entry as a printed ToC line with dot leaders.
func contentsLine(s Section, width int) string {
	indent := strings.Repeat("  ", s.Depth-1)
	label := indent + s.Number + " " + s.Title
	page := strconv.Itoa(s.Start)
	dots := width - len([]rune(label)) - len(page) - 2
	if dots < 3 {
		dots = 3
	}
	return label + " " + strings.Repeat(".", dots) + " " + page
}
