// Package convert writes a finished book to disk: one Markdown file per
// chapter, an index with the printed table of contents, the cover image and
// a book.json navigation file.
package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/thywilljoshua/manuscript2book/internal/book"
)

const contentsWidth = 72

// Export writes b into cfg.OutDir. Existing files with the same names are
// overwritten; nothing else in the directory is touched.
func Export(b *book.Book, cfg Config) (Result, error) {
	if b == nil {
		return Result{}, errors.New("no book to export")
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return Result{}, err
	}

	sections := buildSections(bookEntries(b.Chapters), cfg.MaxDepth)
	if cfg.SlugPrefix != "" {
		for i := range sections {
			if sections[i].Depth == 1 {
				sections[i].Slug = slugify(cfg.SlugPrefix + "-" + sections[i].Slug)
			}
		}
	}
	chapters := filterTopLevel(sections)
	if len(chapters) != len(b.Chapters) {
		return Result{}, fmt.Errorf("table of contents has %d chapters, book has %d", len(chapters), len(b.Chapters))
	}

	for i, ch := range b.Chapters {
		if err := writeChapter(cfg.OutDir, chapters[i], ch); err != nil {
			return Result{}, fmt.Errorf("write chapter %s: %w", ch.ID, err)
		}
	}

	cover, err := writeCover(cfg.OutDir, b.Cover)
	if err != nil {
		return Result{}, fmt.Errorf("write cover: %w", err)
	}

	tree := buildHierarchy(sections)
	if err := writeIndex(cfg.OutDir, b, sections, cover); err != nil {
		return Result{}, err
	}
	if err := writeBookJSON(filepath.Join(cfg.OutDir, "book.json"), b, tree, cover); err != nil {
		return Result{}, err
	}

	return Result{
		Title:    b.Metadata.Title,
		Chapters: len(chapters),
		Sections: tree,
		Cover:    cover,
		OutDir:   cfg.OutDir,
	}, nil
}

func writeChapter(outDir string, s Section, ch book.Chapter) error {
	var b strings.Builder
	fmt.Fprintf(&b, "---\ntitle: \"%s\"\n", escapeQuotes(ch.Title))
	fmt.Fprintf(&b, "description: \"%s\"\n", escapeQuotes(ch.Description))
	fmt.Fprintf(&b, "chapter: %s\npage: %d\nstatus: %s\n---\n\n", s.Number, ch.Page, ch.Status)
	b.WriteString("# ")
	b.WriteString(ch.Title)
	b.WriteString("\n\n")

	switch ch.Status {
	case book.ChapterCompleted, book.ChapterError:
		if body := strings.TrimSpace(ch.Content); body != "" {
			b.WriteString(withAnchors(body, s.Number))
			b.WriteString("\n")
		}
	default:
		b.WriteString("> This chapter has not been written yet.\n")
	}

	return os.WriteFile(filepath.Join(outDir, s.Slug+".md"), []byte(b.String()), 0o644)
}

// withAnchors appends {#slug} ids to "##"/"###" headings so links from the
// table of contents resolve to the same slugs as the section entries.
func withAnchors(body, chapterNum string) string {
	entries := headingEntries(chapterNum, 0, body)
	if len(entries) == 0 {
		return body
	}
	lines := strings.Split(body, "\n")
	next := 0
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence || next >= len(entries) || headingRe.FindStringSubmatch(line) == nil {
			continue
		}
		e := entries[next]
		if !strings.Contains(line, e.Title) {
			continue
		}
		lines[i] = strings.TrimRight(line, " #") + " {#" + slugify(e.Number+"-"+e.Title) + "}"
		next++
	}
	return strings.Join(lines, "\n")
}

func writeIndex(outDir string, bk *book.Book, sections []Section, cover string) error {
	meta := bk.Metadata
	var b strings.Builder
	fmt.Fprintf(&b, "---\ntitle: \"%s\"\nauthor: \"%s\"\n", escapeQuotes(meta.Title), escapeQuotes(meta.Author))
	if meta.Genre != "" {
		fmt.Fprintf(&b, "genre: \"%s\"\n", escapeQuotes(meta.Genre))
	}
	if meta.Language != "" {
		fmt.Fprintf(&b, "language: %s\n", meta.Language)
	}
	if cover != "" {
		fmt.Fprintf(&b, "cover: %s\n", cover)
	}
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n*%s*\n\n", meta.Title, meta.Author)
	if cover != "" {
		fmt.Fprintf(&b, "![Cover](./%s)\n\n", cover)
	}
	if meta.Summary != "" {
		b.WriteString(meta.Summary)
		b.WriteString("\n\n")
	}
	if bk.SourceTruncated {
		b.WriteString("> Note: the manuscript was longer than the processing limit; its final part was not used.\n\n")
	}

	b.WriteString("## Contents\n\n")
	chapterSlug := ""
	for _, s := range sections {
		target := "./" + s.Slug + ".md"
		if s.Depth == 1 {
			chapterSlug = s.Slug
		} else {
			target = "./" + chapterSlug + ".md#" + s.Slug
		}
		fmt.Fprintf(&b, "%s- [%s %s](%s) %d\n", strings.Repeat("  ", s.Depth-1), s.Number, s.Title, target, s.Start)
	}

	b.WriteString("\n```text\n")
	for _, s := range sections {
		b.WriteString(contentsLine(s, contentsWidth))
		b.WriteString("\n")
	}
	b.WriteString("```\n")

	return os.WriteFile(filepath.Join(outDir, "index.md"), []byte(b.String()), 0o644)
}

func writeCover(outDir string, c *book.Cover) (string, error) {
	if c == nil || len(c.Data) == 0 {
		return "", nil
	}
	name := "cover" + coverExt(c.MIMEType)
	if err := os.WriteFile(filepath.Join(outDir, name), c.Data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

func coverExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func escapeQuotes(s string) string { return strings.ReplaceAll(s, "\"", "\\\"") }

type bookJSON struct {
	Name       string         `json:"name"`
	Author     string         `json:"author"`
	Language   string         `json:"language,omitempty"`
	Cover      string         `json:"cover,omitempty"`
	BlurHash   string         `json:"cover_blurhash,omitempty"`
	Navigation map[string]any `json:"navigation"`
	Sections   []Section      `json:"sections"`
}

func writeBookJSON(path string, b *book.Book, tree []Section, cover string) error {
	cfg := bookJSON{
		Name:     b.Metadata.Title,
		Author:   b.Metadata.Author,
		Language: b.Metadata.Language,
		Cover:    cover,
		Sections: tree,
	}
	if b.Cover != nil {
		cfg.BlurHash = b.Cover.BlurHash
	}

	pages := []any{"index"}
	for _, s := range tree {
		if len(s.Children) == 0 {
			pages = append(pages, s.Slug)
			continue
		}
		pages = append(pages, map[string]any{
			"group": s.Number + " " + s.Title,
			"pages": buildPagesRecursive(s, s.Slug),
		})
	}
	cfg.Navigation = map[string]any{
		"tabs": []map[string]any{
			{
				"tab": "Book",
				"groups": []map[string]any{
					{"group": b.Metadata.Title, "pages": pages},
				},
			},
		},
	}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// buildPagesRecursive converts a chapter subtree into navigation entries.
// Headings live inside the chapter file, so they are addressed as anchors.
func buildPagesRecursive(s Section, file string) []any {
	pages := []any{pageRef(s, file)}
	for _, c := range s.Children {
		if len(c.Children) == 0 {
			pages = append(pages, pageRef(c, file))
			continue
		}
		pages = append(pages, map[string]any{
			"group": c.Number + " " + c.Title,
			"pages": buildPagesRecursive(c, file),
		})
	}
	return pages
}

func pageRef(s Section, file string) string {
	if s.Depth == 1 {
		return file
	}
	return file + "#" + s.Slug
}
