package compose

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/thywilljoshua/manuscript2book/internal/ai"
	"github.com/thywilljoshua/manuscript2book/internal/book"
	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
)

// Planner asks the model for a deduplicated book outline.
type Planner struct {
	gen      ai.Generator
	maxChars int
	logger   *slog.Logger
}

func NewPlanner(gen ai.Generator, maxChars int, logger *slog.Logger) *Planner {
	return &Planner{gen: gen, maxChars: maxChars, logger: logger}
}

// Plan returns the outline for rawText. Text beyond the planner budget is cut
// from the end and the outline is marked Truncated. Any unusable response is
// PlanningFailed; there is no retry here.
func (p *Planner) Plan(ctx context.Context, rawText, sourceName string) (book.Outline, error) {
	text, truncated := Clip(rawText, p.maxChars)
	if truncated {
		p.logger.Warn("manuscript exceeds planning budget, tail ignored",
			"source", sourceName, "budget_chars", p.maxChars)
	}

	raw, err := p.gen.GenerateJSON(ctx, ai.JSONRequest{
		System: plannerSystem,
		Prompt: plannerPrompt(sourceName, text),
		Schema: outlineSchema,
	})
	if err != nil {
		return book.Outline{}, apperrors.PlanningFailed("model returned no usable outline", err)
	}

	var outline book.Outline
	if err := json.Unmarshal(raw, &outline); err != nil {
		return book.Outline{}, apperrors.PlanningFailed("outline does not decode", err)
	}
	tidyOutline(&outline)
	if err := outline.Validate(); err != nil {
		return book.Outline{}, apperrors.PlanningFailed("outline is invalid", err)
	}
	outline.Truncated = truncated

	p.logger.Info("outline planned",
		"source", sourceName,
		"title", outline.Metadata.Title,
		"chapters", len(outline.Chapters),
		"language", outline.Metadata.Language)
	return outline, nil
}

func tidyOutline(o *book.Outline) {
	m := &o.Metadata
	m.Title = strings.TrimSpace(m.Title)
	m.Author = strings.TrimSpace(m.Author)
	m.Summary = strings.TrimSpace(m.Summary)
	m.Genre = strings.TrimSpace(m.Genre)
	m.NormalizeLanguage()
	for i := range o.Chapters {
		ch := &o.Chapters[i]
		ch.ID = strings.TrimSpace(ch.ID)
		ch.Title = strings.TrimSpace(ch.Title)
		ch.Description = strings.TrimSpace(ch.Description)
	}
}
