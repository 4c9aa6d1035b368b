package compose

import (
	"context"
	"log/slog"
	"strings"

	"github.com/thywilljoshua/manuscript2book/internal/ai"
	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
)

// Illustrator suggests an illustration for a chapter from a bounded excerpt.
type Illustrator struct {
	gen      ai.Generator
	maxChars int
	logger   *slog.Logger
}

func NewIllustrator(gen ai.Generator, maxChars int, logger *slog.Logger) *Illustrator {
	return &Illustrator{gen: gen, maxChars: maxChars, logger: logger}
}

// Suggest inspects only the first maxChars runes of the chapter.
func (il *Illustrator) Suggest(ctx context.Context, chapterContent string) (string, error) {
	excerpt, _ := Clip(strings.TrimSpace(chapterContent), il.maxChars)
	if excerpt == "" {
		return "", apperrors.IllustrationFailed("chapter has no content to illustrate", nil)
	}
	text, err := il.gen.GenerateText(ctx, ai.TextRequest{Prompt: illustrationPrompt(excerpt)})
	if err != nil {
		return "", apperrors.IllustrationFailed("illustration request failed", err)
	}
	text = ai.StripCodeFences(text)
	if text == "" {
		return "", apperrors.IllustrationFailed("model returned an empty suggestion", nil)
	}
	return text, nil
}
