package compose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thywilljoshua/manuscript2book/internal/ai"
	"github.com/thywilljoshua/manuscript2book/internal/book"
	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
	"github.com/thywilljoshua/manuscript2book/internal/logger"
)

func TestClip(t *testing.T) {
	s, cut := Clip("héllo wörld", 5)
	assert.Equal(t, "héllo", s)
	assert.True(t, cut)

	s, cut = Clip("short", 10)
	assert.Equal(t, "short", s)
	assert.False(t, cut)

	s, cut = Clip("unbounded", 0)
	assert.Equal(t, "unbounded", s)
	assert.False(t, cut)
}

const dedupedOutline = `{
  "metadata": {"title": " Garden Notes ", "author": "Ana", "summary": "A gardening primer.", "language": "EN"},
  "chapters": [
    {"id": "ch-1", "title": "Intro", "description": "Introduce the author's garden."},
    {"id": "ch-2", "title": "Chapter stuff", "description": "Cover the chapter material once."}
  ]
}`

func TestPlanner_Plan(t *testing.T) {
	m := &ai.Mock{JSON: func(context.Context, ai.JSONRequest) (string, error) { return dedupedOutline, nil }}
	p := NewPlanner(m, 1000, logger.Discard())

	raw := "Intro text... Chapter stuff... Intro text... Chapter stuff..."
	outline, err := p.Plan(context.Background(), raw, "notes.docx")
	require.NoError(t, err)

	assert.Equal(t, "Garden Notes", outline.Metadata.Title)
	assert.Equal(t, "en", outline.Metadata.Language)
	require.Len(t, outline.Chapters, 2, "duplicated source maps to one entry per unique topic")
	assert.Equal(t, "ch-1", outline.Chapters[0].ID)
	assert.False(t, outline.Truncated)

	require.Len(t, m.JSONRequests, 1)
	req := m.JSONRequests[0]
	assert.Contains(t, req.Prompt, raw)
	assert.Contains(t, req.Prompt, "exactly ONE chapter")
	assert.NotEmpty(t, req.Schema)
}

func TestPlanner_TruncatesFromTheEnd(t *testing.T) {
	m := &ai.Mock{JSON: func(context.Context, ai.JSONRequest) (string, error) { return dedupedOutline, nil }}
	p := NewPlanner(m, 10, logger.Discard())

	outline, err := p.Plan(context.Background(), "0123456789TAIL", "x.txt")
	require.NoError(t, err)
	assert.True(t, outline.Truncated)
	assert.Contains(t, m.JSONRequests[0].Prompt, "0123456789")
	assert.NotContains(t, m.JSONRequests[0].Prompt, "TAIL")
}

func TestPlanner_Failures(t *testing.T) {
	cases := map[string]func(context.Context, ai.JSONRequest) (string, error){
		"transport error": func(context.Context, ai.JSONRequest) (string, error) {
			return "", errors.New("503")
		},
		"not json": func(context.Context, ai.JSONRequest) (string, error) {
			return "Sorry, I cannot help.", nil
		},
		"missing language": func(context.Context, ai.JSONRequest) (string, error) {
			return `{"metadata": {"title": "T", "author": "A", "summary": "S"},
			         "chapters": [{"id": "1", "title": "t", "description": "d"}]}`, nil
		},
		"chapter without description": func(context.Context, ai.JSONRequest) (string, error) {
			return `{"metadata": {"title": "T", "author": "A", "summary": "S", "language": "en"},
			         "chapters": [{"id": "1", "title": "t"}]}`, nil
		},
		"no chapters": func(context.Context, ai.JSONRequest) (string, error) {
			return `{"metadata": {"title": "T", "author": "A", "summary": "S", "language": "en"}, "chapters": []}`, nil
		},
		"duplicate ids": func(context.Context, ai.JSONRequest) (string, error) {
			return `{"metadata": {"title": "T", "author": "A", "summary": "S", "language": "en"},
			         "chapters": [{"id": "1", "title": "a", "description": "d"}, {"id": "1", "title": "b", "description": "d"}]}`, nil
		},
		"blank title after trim": func(context.Context, ai.JSONRequest) (string, error) {
			return `{"metadata": {"title": "T", "author": "A", "summary": "S", "language": "en"},
			         "chapters": [{"id": "1", "title": "   ", "description": "d"}]}`, nil
		},
	}
	for name, respond := range cases {
		t.Run(name, func(t *testing.T) {
			p := NewPlanner(&ai.Mock{JSON: respond}, 1000, logger.Discard())
			_, err := p.Plan(context.Background(), "text", "x.txt")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrPlanningFailed)
		})
	}
}

var meta = book.Metadata{Title: "Garden Notes", Author: "Ana", Summary: "A primer.", Language: "es"}

func TestWriter_Write(t *testing.T) {
	m := &ai.Mock{Text: func(context.Context, ai.TextRequest) (string, error) {
		return "```markdown\n# Soil\n\n## Types\n\n> Dirt is alive.\n```", nil
	}}
	w := NewWriter(m, logger.Discard())
	brief := book.ChapterPlan{ID: "ch-2", Title: "Soil", Description: "Soil types."}

	body, err := w.Write(context.Background(), brief, "FULL SOURCE", meta)
	require.NoError(t, err)
	assert.Equal(t, "## Types\n\n> Dirt is alive.", body)

	req := m.TextRequests[0]
	assert.Contains(t, req.Prompt, "FULL SOURCE")
	assert.Contains(t, req.Prompt, "Spanish (es)")
	assert.Contains(t, req.Prompt, "Soil types.")
	require.NotNil(t, req.Temperature)
}

func TestWriter_EmptyBodyIsNotAnError(t *testing.T) {
	m := &ai.Mock{Text: func(context.Context, ai.TextRequest) (string, error) { return "  ", nil }}
	body, err := NewWriter(m, logger.Discard()).Write(context.Background(), book.ChapterPlan{ID: "c"}, "src", meta)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestWriter_Failure(t *testing.T) {
	m := &ai.Mock{Text: func(context.Context, ai.TextRequest) (string, error) { return "", errors.New("reset") }}
	_, err := NewWriter(m, logger.Discard()).Write(context.Background(), book.ChapterPlan{ID: "c"}, "src", meta)
	assert.ErrorIs(t, err, apperrors.ErrChapterGenerationFailed)
}

func TestDropTitleLine(t *testing.T) {
	assert.Equal(t, "Body", dropTitleLine("# Soil\nBody", "soil"))
	assert.Equal(t, "## Soil types\nBody", dropTitleLine("## Soil types\nBody", "Soil"))
	assert.Equal(t, "Soil\nBody", dropTitleLine("Soil\nBody", "Soil"))
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "English (en)", languageName("en"))
	assert.Contains(t, languageName(""), "same language")
	assert.Contains(t, languageName("??"), "code ??")
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCoverArtist_GeneratesFreshCovers(t *testing.T) {
	data := pngBytes(t, 120, 160)
	m := &ai.Mock{Image: func(context.Context, ai.ImageRequest) (ai.Image, error) {
		return ai.Image{MIMEType: "image/png", Data: data}, nil
	}}
	c := NewCoverArtist(m, "3:4", logger.Discard())

	first, err := c.GenerateCover(context.Background(), meta)
	require.NoError(t, err)
	second, err := c.GenerateCover(context.Background(), meta)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEmpty(t, first.BlurHash)
	assert.Equal(t, "image/png", first.MIMEType)
	assert.Equal(t, "3:4", m.ImageRequests[0].AspectRatio)
	assert.Contains(t, m.ImageRequests[0].Prompt, "Garden Notes")
}

func TestCoverArtist_UndecodableImageStillCounts(t *testing.T) {
	m := &ai.Mock{Image: func(context.Context, ai.ImageRequest) (ai.Image, error) {
		return ai.Image{MIMEType: "image/jpeg", Data: []byte("not an image")}, nil
	}}
	cover, err := NewCoverArtist(m, "", logger.Discard()).GenerateCover(context.Background(), meta)
	require.NoError(t, err)
	assert.Empty(t, cover.BlurHash)
}

func TestCoverArtist_Failure(t *testing.T) {
	m := &ai.Mock{Image: func(context.Context, ai.ImageRequest) (ai.Image, error) {
		return ai.Image{}, errors.New("quota")
	}}
	_, err := NewCoverArtist(m, "3:4", logger.Discard()).GenerateCover(context.Background(), meta)
	assert.ErrorIs(t, err, apperrors.ErrCoverGenerationFailed)
}

func TestIllustrator_UsesBoundedPrefix(t *testing.T) {
	m := &ai.Mock{Text: func(context.Context, ai.TextRequest) (string, error) {
		return "A quiet garden at dawn.", nil
	}}
	il := NewIllustrator(m, 100, logger.Discard())

	content := strings.Repeat("a", 100) + "NEVER-SEEN"
	got, err := il.Suggest(context.Background(), content)
	require.NoError(t, err)
	assert.Equal(t, "A quiet garden at dawn.", got)
	assert.NotContains(t, m.TextRequests[0].Prompt, "NEVER-SEEN")
}

func TestIllustrator_Failures(t *testing.T) {
	il := NewIllustrator(&ai.Mock{Text: func(context.Context, ai.TextRequest) (string, error) {
		return "", errors.New("boom")
	}}, 100, logger.Discard())

	_, err := il.Suggest(context.Background(), "content")
	assert.ErrorIs(t, err, apperrors.ErrIllustrationFailed)

	_, err = il.Suggest(context.Background(), "   ")
	assert.ErrorIs(t, err, apperrors.ErrIllustrationFailed)
}
