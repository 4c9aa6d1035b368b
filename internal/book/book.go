// Package book holds the data model shared by the planner, the writer and
// the pipeline: metadata, the planned outline and the mutable chapter records.
package book

import (
	"strings"

	"golang.org/x/text/language"
)

// Metadata describes the whole book. It is set once from the planner result.
type Metadata struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Summary  string `json:"summary"`
	Genre    string `json:"genre,omitempty"`
	Language string `json:"language,omitempty"`
}

// NormalizeLanguage canonicalises the language code to BCP 47 when it parses.
// Unparsable codes are kept verbatim.
func (m *Metadata) NormalizeLanguage() {
	code := strings.TrimSpace(m.Language)
	if code == "" {
		m.Language = ""
		return
	}
	tag, err := language.Parse(code)
	if err != nil {
		m.Language = code
		return
	}
	m.Language = tag.String()
}

// ChapterPlan is one planned chapter: the brief handed to the writer.
type ChapterPlan struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Outline is the planner's deduplicated structure.
type Outline struct {
	Metadata Metadata      `json:"metadata"`
	Chapters []ChapterPlan `json:"chapters"`

	// Truncated is set when the source exceeded the planning budget.
	Truncated bool `json:"-"`
}

// Cover is a generated cover image. Each generation gets a fresh ID.
type Cover struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	BlurHash string `json:"blurhash,omitempty"`
	Data     []byte `json:"-"`
}

// Book is the pipeline's product. Chapter order and IDs never change once materialised.
type Book struct {
	Metadata        Metadata  `json:"metadata"`
	Chapters        []Chapter `json:"chapters"`
	Cover           *Cover    `json:"cover,omitempty"`
	SourceName      string    `json:"source_name"`
	SourceText      string    `json:"-"`
	SourceTruncated bool      `json:"source_truncated"`
}

// Layout assigns estimated page numbers to chapter placeholders.
type Layout struct {
	FirstPage       int
	PagesPerChapter int
}

// Page returns the estimated page of the chapter at index i.
func (l Layout) Page(i int) int {
	first, per := l.FirstPage, l.PagesPerChapter
	if first < 1 {
		first = 1
	}
	if per < 1 {
		per = 1
	}
	return first + i*per
}

// New materialises a book from an outline. Every chapter starts pending.
func New(outline Outline, sourceName, sourceText string, layout Layout) *Book {
	b := &Book{
		Metadata:        outline.Metadata,
		Chapters:        make([]Chapter, len(outline.Chapters)),
		SourceName:      sourceName,
		SourceText:      sourceText,
		SourceTruncated: outline.Truncated,
	}
	for i, p := range outline.Chapters {
		b.Chapters[i] = Chapter{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Status:      ChapterPending,
			Page:        layout.Page(i),
		}
	}
	return b
}

// Chapter returns the index of the chapter with the given ID, or -1.
func (b *Book) Chapter(id string) int {
	for i := range b.Chapters {
		if b.Chapters[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand to other goroutines.
func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	c := *b
	c.Chapters = append([]Chapter(nil), b.Chapters...)
	if b.Cover != nil {
		cv := *b.Cover
		cv.Data = append([]byte(nil), b.Cover.Data...)
		c.Cover = &cv
	}
	return &c
}

// Progress counts resolved chapters.
func (b *Book) Progress() (resolved, total int) {
	for _, ch := range b.Chapters {
		if ch.Status.Resolved() {
			resolved++
		}
	}
	return resolved, len(b.Chapters)
}
