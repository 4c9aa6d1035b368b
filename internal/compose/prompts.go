package compose

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/thywilljoshua/manuscript2book/internal/book"
)

const plannerSystem = `You are a senior book editor. You turn raw, repetitive manuscripts into a clean book structure.
Return ONLY valid JSON matching the requested schema. No markdown, no explanations.`

func plannerPrompt(sourceName, text string) string {
	return fmt.Sprintf(`The manuscript below was extracted from %q. It is unstructured and contains duplicated passages.

Build the outline of a polished book from it:
- Identify every unique topic. Content that appears more than once belongs to exactly ONE chapter.
- Chapters must not overlap and together must cover all unique content.
- Order chapters from introduction, through core and advanced material, to a conclusion.
- Give every chapter a short stable id (e.g. "ch-1"), a title, and a description detailed enough
  for a writer who has not seen this outline to write the chapter from the manuscript alone.
- Fill metadata: title, author (use "Unknown" if not stated), a 2-3 sentence summary,
  optional genre, and the ISO 639-1 language code of the manuscript.

MANUSCRIPT:
%s`, sourceName, text)
}

const writerSystem = `You are a professional author finishing a book from the author's own raw notes.
Write complete, polished prose. Do not summarize. Do not invent facts that contradict the source.`

func writerPrompt(brief book.ChapterPlan, source string, meta book.Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Book: %q by %s\n", meta.Title, meta.Author)
	if meta.Genre != "" {
		fmt.Fprintf(&b, "Genre: %s\n", meta.Genre)
	}
	fmt.Fprintf(&b, "Book summary: %s\n\n", meta.Summary)
	fmt.Fprintf(&b, "Write the chapter %q.\nChapter brief: %s\n\n", brief.Title, brief.Description)
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Write in %s.\n", languageName(meta.Language))
	b.WriteString("- Use only material relevant to this chapter; other chapters cover the rest.\n")
	b.WriteString("- Never repeat the same passage twice even if the source does.\n")
	b.WriteString("- Format: '## ' for sections, '### ' for subsections, '> ' for quotes. No code fences.\n")
	b.WriteString("- Do not repeat the chapter title as the first line.\n\n")
	b.WriteString("SOURCE MANUSCRIPT:\n")
	b.WriteString(source)
	return b.String()
}

func coverPrompt(meta book.Metadata) string {
	genre := meta.Genre
	if genre == "" {
		genre = "non-fiction"
	}
	return fmt.Sprintf(`Professional book cover art for a %s book titled %q by %s.
Theme: %s
Evocative, print-quality illustration with a clear focal point and room for a title. Do not render any text or letters.`,
		genre, meta.Title, meta.Author, meta.Summary)
}

func illustrationPrompt(excerpt string) string {
	return fmt.Sprintf(`Suggest one illustration for this book chapter.
Describe the scene in 2-3 sentences: subject, setting, mood and style. Reply with the description only.

CHAPTER EXCERPT:
%s`, excerpt)
}

// languageName renders a language code for prompts, e.g. "es" -> "Spanish (es)".
func languageName(code string) string {
	if code == "" {
		return "the same language as the source manuscript"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "the language with code " + code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return fmt.Sprintf("%s (%s)", name, code)
	}
	return "the language with code " + code
}
