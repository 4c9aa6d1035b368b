package compose

import (
	"context"
	"log/slog"
	"strings"

	"github.com/thywilljoshua/manuscript2book/internal/ai"
	"github.com/thywilljoshua/manuscript2book/internal/book"
	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
)

var writerTemperature float32 = 0.7

// Writer produces the prose of one chapter from its brief and the full source.
type Writer struct {
	gen    ai.Generator
	logger *slog.Logger
}

func NewWriter(gen ai.Generator, logger *slog.Logger) *Writer {
	return &Writer{gen: gen, logger: logger}
}

// Write returns the chapter body. The source is passed verbatim on every call.
// An empty body is a valid result.
func (w *Writer) Write(ctx context.Context, brief book.ChapterPlan, source string, meta book.Metadata) (string, error) {
	text, err := w.gen.GenerateText(ctx, ai.TextRequest{
		System:      writerSystem,
		Prompt:      writerPrompt(brief, source, meta),
		Temperature: &writerTemperature,
	})
	if err != nil {
		return "", apperrors.ChapterGenerationFailed("chapter "+brief.ID+" could not be written", err)
	}
	body := dropTitleLine(ai.StripCodeFences(text), brief.Title)
	w.logger.Debug("chapter written", "chapter_id", brief.ID, "chars", len(body))
	return body, nil
}

// dropTitleLine removes a leading "# Title" that merely repeats the chapter title.
func dropTitleLine(body, title string) string {
	first, rest, _ := strings.Cut(body, "\n")
	heading := strings.TrimSpace(strings.TrimLeft(first, "#"))
	if strings.HasPrefix(first, "#") && strings.EqualFold(heading, strings.TrimSpace(title)) {
		return strings.TrimSpace(rest)
	}
	return body
}
