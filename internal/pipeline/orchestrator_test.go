package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thywilljoshua/manuscript2book/internal/book"
	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
	"github.com/thywilljoshua/manuscript2book/internal/logger"
)

type fakeExtractor struct {
	calls atomic.Int32
	fn    func(name string, data []byte) (string, error)
}

func (f *fakeExtractor) Extract(_ context.Context, name string, data []byte) (string, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(name, data)
	}
	return string(data), nil
}

type fakePlanner struct {
	mu    sync.Mutex
	texts []string
	fn    func(text, name string) (book.Outline, error)
}

func (f *fakePlanner) Plan(_ context.Context, text, name string) (book.Outline, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return f.fn(text, name)
}

type fakeWriter struct {
	fn func(ctx context.Context, brief book.ChapterPlan, source string) (string, error)
}

func (f *fakeWriter) Write(ctx context.Context, brief book.ChapterPlan, source string, _ book.Metadata) (string, error) {
	return f.fn(ctx, brief, source)
}

type fakeCover struct {
	n   atomic.Int32
	err error
}

func (f *fakeCover) GenerateCover(context.Context, book.Metadata) (*book.Cover, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := f.n.Add(1)
	return &book.Cover{ID: fmt.Sprintf("cover-%d", n), MIMEType: "image/png", Data: []byte{byte(n)}}, nil
}

type fakeIllustrator struct {
	err error
}

func (f *fakeIllustrator) Suggest(_ context.Context, content string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "scene for " + content, nil
}

func outlineOf(ids ...string) book.Outline {
	o := book.Outline{Metadata: book.Metadata{Title: "Notes", Author: "Ana", Summary: "s", Language: "en"}}
	for _, id := range ids {
		o.Chapters = append(o.Chapters, book.ChapterPlan{ID: id, Title: "Title " + id, Description: "About " + id})
	}
	return o
}

type harness struct {
	o         *Orchestrator
	extractor *fakeExtractor
	planner   *fakePlanner
	writer    *fakeWriter
	cover     *fakeCover
	illus     *fakeIllustrator
}

func newHarness(t *testing.T, ids ...string) *harness {
	t.Helper()
	h := &harness{
		extractor: &fakeExtractor{},
		planner: &fakePlanner{fn: func(string, string) (book.Outline, error) {
			return outlineOf(ids...), nil
		}},
		writer: &fakeWriter{fn: func(_ context.Context, brief book.ChapterPlan, _ string) (string, error) {
			return "Body of " + brief.ID, nil
		}},
		cover: &fakeCover{},
		illus: &fakeIllustrator{},
	}
	h.o = New(Deps{
		Extractor:   h.extractor,
		Planner:     h.planner,
		Writer:      h.writer,
		CoverArtist: h.cover,
		Illustrator: h.illus,
	}, Options{Layout: book.Layout{FirstPage: 3, PagesPerChapter: 12}}, logger.Discard())
	t.Cleanup(h.o.Close)
	return h
}

func (h *harness) run(t *testing.T, name, data string) Snapshot {
	t.Helper()
	_, err := h.o.Start(context.Background(), Upload{Name: name, Data: []byte(data)})
	require.NoError(t, err)
	return h.wait(t)
}

func (h *harness) wait(t *testing.T) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := h.o.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestOrchestrator_WritesChaptersSequentially(t *testing.T) {
	h := newHarness(t, "ch-1", "ch-2", "ch-3")

	var violations []string
	h.writer.fn = func(_ context.Context, brief book.ChapterPlan, source string) (string, error) {
		snap := h.o.Snapshot()
		for _, ch := range snap.Book.Chapters {
			switch {
			case ch.ID == brief.ID && ch.Status != book.ChapterGenerating:
				violations = append(violations, ch.ID+" not generating while written")
			case ch.ID < brief.ID && !ch.Status.Resolved():
				violations = append(violations, ch.ID+" unresolved before "+brief.ID)
			case ch.ID > brief.ID && ch.Status != book.ChapterPending:
				violations = append(violations, ch.ID+" started before "+brief.ID)
			}
		}
		assert.Equal(t, "the manuscript", source)
		return "Body of " + brief.ID, nil
	}

	snap := h.run(t, "notes.txt", "the manuscript")
	assert.Empty(t, violations)

	assert.Equal(t, StageDone, snap.Run.Stage)
	for _, step := range snap.Run.Steps {
		assert.Equal(t, StepCompleted, step.Status, step.Name)
	}
	require.NotNil(t, snap.Book)
	require.Len(t, snap.Book.Chapters, 3)
	for i, ch := range snap.Book.Chapters {
		assert.Equal(t, book.ChapterCompleted, ch.Status)
		assert.Equal(t, "Body of "+ch.ID, ch.Content)
		assert.Equal(t, 3+i*12, ch.Page)
	}
	assert.Equal(t, CoverReady, snap.Run.CoverStatus)
	require.NotNil(t, snap.Book.Cover)
	assert.NotNil(t, snap.Run.FinishedAt)
	assert.Equal(t, "notes.txt", snap.Book.SourceName)
}

func TestOrchestrator_ChapterStatusSequences(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	h.writer.fn = func(_ context.Context, brief book.ChapterPlan, _ string) (string, error) {
		if brief.ID == "b" {
			return "", errors.New("boom")
		}
		return "ok", nil
	}

	ch, unsubscribe := h.o.Subscribe()
	defer unsubscribe()
	_, err := h.o.Start(context.Background(), Upload{Name: "m.txt", Data: []byte("text")})
	require.NoError(t, err)

	seen := map[string][]book.ChapterStatus{}
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case snap := <-ch:
			if snap.Book != nil {
				for _, c := range snap.Book.Chapters {
					seq := seen[c.ID]
					if len(seq) == 0 || seq[len(seq)-1] != c.Status {
						seen[c.ID] = append(seq, c.Status)
					}
				}
			}
			done = snap.Settled()
		case <-timeout:
			t.Fatal("run did not settle")
		}
	}

	ok := []book.ChapterStatus{book.ChapterPending, book.ChapterGenerating, book.ChapterCompleted}
	failed := []book.ChapterStatus{book.ChapterPending, book.ChapterGenerating, book.ChapterError}
	assert.Equal(t, ok, seen["a"])
	assert.Equal(t, failed, seen["b"])
	assert.Equal(t, ok, seen["c"])
}

func TestOrchestrator_PartialFailure(t *testing.T) {
	h := newHarness(t, "ch-1", "ch-2", "ch-3")
	h.writer.fn = func(_ context.Context, brief book.ChapterPlan, _ string) (string, error) {
		if brief.ID == "ch-2" {
			return "", apperrors.ChapterGenerationFailed("chapter ch-2 could not be written", errors.New("503"))
		}
		return "Body of " + brief.ID, nil
	}

	snap := h.run(t, "m.txt", "text")

	assert.Equal(t, StageDone, snap.Run.Stage)
	assert.Empty(t, snap.Run.Error)
	chapters := snap.Book.Chapters
	assert.Equal(t, book.ChapterCompleted, chapters[0].Status)
	assert.NotEmpty(t, chapters[0].Content)
	assert.Equal(t, book.ChapterError, chapters[1].Status)
	assert.Equal(t, book.ErrorPlaceholder, chapters[1].Content)
	assert.Equal(t, book.ChapterCompleted, chapters[2].Status)
	assert.NotEmpty(t, chapters[2].Content)
}

func TestOrchestrator_EmptyChapterBodyIsCompleted(t *testing.T) {
	h := newHarness(t, "only")
	h.writer.fn = func(context.Context, book.ChapterPlan, string) (string, error) { return "", nil }

	snap := h.run(t, "m.txt", "text")
	assert.Equal(t, book.ChapterCompleted, snap.Book.Chapters[0].Status)
	assert.Empty(t, snap.Book.Chapters[0].Content)
}

func TestOrchestrator_CoverFailureStillFinishes(t *testing.T) {
	h := newHarness(t, "ch-1", "ch-2")
	h.cover.err = apperrors.CoverGenerationFailed("cover image request failed", errors.New("quota"))

	snap := h.run(t, "m.txt", "text")

	assert.Equal(t, StageDone, snap.Run.Stage)
	assert.Equal(t, CoverFailed, snap.Run.CoverStatus)
	assert.Contains(t, snap.Run.CoverError, "quota")
	assert.Nil(t, snap.Book.Cover)
}

func TestOrchestrator_ExtractionFailure(t *testing.T) {
	h := newHarness(t, "ch-1")
	h.extractor.fn = func(string, []byte) (string, error) {
		return "", apperrors.ExtractionFailed("unsupported document format", nil)
	}

	snap := h.run(t, "m.xyz", "data")

	assert.Equal(t, StageFailed, snap.Run.Stage)
	assert.Equal(t, string(apperrors.CodeExtractionFailed), snap.Run.ErrorCode)
	assert.Contains(t, snap.Run.Error, "unsupported")
	assert.Equal(t, StepError, snap.Run.Step(StepExtract))
	assert.Equal(t, StepPending, snap.Run.Step(StepStructure))
	assert.Nil(t, snap.Book)
	assert.Empty(t, h.planner.texts)
}

func TestOrchestrator_PlanningFailure(t *testing.T) {
	h := newHarness(t)
	h.planner.fn = func(string, string) (book.Outline, error) {
		return book.Outline{}, apperrors.PlanningFailed("model returned no usable outline", errors.New("not json"))
	}

	snap := h.run(t, "m.txt", "text")

	assert.Equal(t, StageFailed, snap.Run.Stage)
	assert.Equal(t, string(apperrors.CodePlanningFailed), snap.Run.ErrorCode)
	assert.Equal(t, StepCompleted, snap.Run.Step(StepExtract))
	assert.Equal(t, StepError, snap.Run.Step(StepStructure))
	assert.Nil(t, snap.Book)
	assert.Equal(t, CoverIdle, snap.Run.CoverStatus)
}

func TestOrchestrator_NewUploadReplacesRun(t *testing.T) {
	h := newHarness(t)
	h.planner.fn = func(_ string, name string) (book.Outline, error) {
		if name == "old.txt" {
			return outlineOf("old-1", "old-2"), nil
		}
		return outlineOf("new-1"), nil
	}
	oldWriting := make(chan struct{})
	var once sync.Once
	h.writer.fn = func(ctx context.Context, brief book.ChapterPlan, _ string) (string, error) {
		if strings.HasPrefix(brief.ID, "old") {
			once.Do(func() { close(oldWriting) })
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "fresh", nil
	}

	oldID, err := h.o.Start(context.Background(), Upload{Name: "old.txt", Data: []byte("old")})
	require.NoError(t, err)
	select {
	case <-oldWriting:
	case <-time.After(5 * time.Second):
		t.Fatal("old run never started writing")
	}

	newID, err := h.o.Start(context.Background(), Upload{Name: "new.txt", Data: []byte("new")})
	require.NoError(t, err)
	snap := h.wait(t)

	assert.NotEqual(t, oldID, newID)
	assert.Equal(t, newID, snap.Run.ID)
	assert.Equal(t, StageDone, snap.Run.Stage)
	require.Len(t, snap.Book.Chapters, 1)
	assert.Equal(t, "new-1", snap.Book.Chapters[0].ID)
	assert.Equal(t, "new.txt", snap.Book.SourceName)

	// Late results of the discarded run must not leak into the new one.
	time.Sleep(20 * time.Millisecond)
	after := h.o.Snapshot()
	assert.Equal(t, newID, after.Run.ID)
	require.Len(t, after.Book.Chapters, 1)
}

func TestOrchestrator_CancelLeavesRemainingChaptersPending(t *testing.T) {
	h := newHarness(t, "ch-1", "ch-2", "ch-3")
	h.writer.fn = func(_ context.Context, brief book.ChapterPlan, _ string) (string, error) {
		if brief.ID == "ch-1" {
			assert.NoError(t, h.o.Cancel())
		}
		return "Body", nil
	}

	snap := h.run(t, "m.txt", "text")

	assert.Equal(t, StageCancelled, snap.Run.Stage)
	assert.Equal(t, book.ChapterCompleted, snap.Book.Chapters[0].Status)
	assert.Equal(t, book.ChapterPending, snap.Book.Chapters[1].Status)
	assert.Equal(t, book.ChapterPending, snap.Book.Chapters[2].Status)
	assert.Empty(t, snap.Book.Chapters[1].Content)

	err := h.o.Cancel()
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestOrchestrator_CancelBeforeWritingSkipsCover(t *testing.T) {
	h := newHarness(t, "ch-1", "ch-2")
	h.planner.fn = func(string, string) (book.Outline, error) {
		assert.NoError(t, h.o.Cancel())
		return outlineOf("ch-1", "ch-2"), nil
	}
	var writes atomic.Int32
	h.writer.fn = func(context.Context, book.ChapterPlan, string) (string, error) {
		writes.Add(1)
		return "Body", nil
	}

	snap := h.run(t, "m.txt", "text")

	assert.Equal(t, StageCancelled, snap.Run.Stage)
	assert.Equal(t, CoverIdle, snap.Run.CoverStatus)
	assert.Equal(t, int32(0), h.cover.n.Load())
	assert.Equal(t, int32(0), writes.Load())
	require.NotNil(t, snap.Book)
	for _, ch := range snap.Book.Chapters {
		assert.Equal(t, book.ChapterPending, ch.Status)
	}
	assert.Equal(t, StepPending, snap.Run.Step(StepWrite))
}

func TestOrchestrator_CancelWithoutRun(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.o.Cancel(), apperrors.ErrNotFound)
}

func TestOrchestrator_RegenerateCoverTwice(t *testing.T) {
	h := newHarness(t, "ch-1")
	snap := h.run(t, "m.txt", "text")
	require.NotNil(t, snap.Book.Cover)
	first := snap.Book.Cover.ID

	require.NoError(t, h.o.RegenerateCover(context.Background()))
	second := h.wait(t)
	require.NoError(t, h.o.RegenerateCover(context.Background()))
	third := h.wait(t)

	assert.Equal(t, CoverReady, second.Run.CoverStatus)
	assert.Equal(t, CoverReady, third.Run.CoverStatus)
	assert.NotEqual(t, first, second.Book.Cover.ID)
	assert.NotEqual(t, second.Book.Cover.ID, third.Book.Cover.ID)
	assert.Equal(t, StageDone, third.Run.Stage)
}

func TestOrchestrator_RegenerateCoverNeedsBook(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.o.RegenerateCover(context.Background()), apperrors.ErrNotFound)

	h.extractor.fn = func(string, []byte) (string, error) {
		return "", apperrors.ExtractionFailed("document contains no text", nil)
	}
	h.run(t, "m.txt", "")
	assert.ErrorIs(t, h.o.RegenerateCover(context.Background()), apperrors.ErrConflict)
}

func TestOrchestrator_RewriteChapter(t *testing.T) {
	h := newHarness(t, "ch-1", "ch-2")
	var failNext atomic.Bool
	failNext.Store(true)
	h.writer.fn = func(_ context.Context, brief book.ChapterPlan, _ string) (string, error) {
		if brief.ID == "ch-2" && failNext.Swap(false) {
			return "", errors.New("timeout")
		}
		return "Body of " + brief.ID, nil
	}

	snap := h.run(t, "m.txt", "text")
	require.Equal(t, book.ChapterError, snap.Book.Chapters[1].Status)

	assert.ErrorIs(t, h.o.RewriteChapter(context.Background(), "ch-1"), apperrors.ErrConflict)
	assert.ErrorIs(t, h.o.RewriteChapter(context.Background(), "missing"), apperrors.ErrNotFound)

	require.NoError(t, h.o.RewriteChapter(context.Background(), "ch-2"))
	snap = h.wait(t)
	assert.Equal(t, book.ChapterCompleted, snap.Book.Chapters[1].Status)
	assert.Equal(t, "Body of ch-2", snap.Book.Chapters[1].Content)
	assert.Equal(t, StageDone, snap.Run.Stage)
}

func TestOrchestrator_SuggestIllustration(t *testing.T) {
	h := newHarness(t, "ch-1")
	h.run(t, "m.txt", "text")

	got, err := h.o.SuggestIllustration(context.Background(), "ch-1")
	require.NoError(t, err)
	assert.False(t, got.Fallback)
	assert.Equal(t, "scene for Body of ch-1", got.Text)

	h.illus.err = apperrors.IllustrationFailed("illustration request failed", errors.New("503"))
	got, err = h.o.SuggestIllustration(context.Background(), "ch-1")
	require.NoError(t, err)
	assert.True(t, got.Fallback)
	assert.Equal(t, FallbackSuggestion, got.Text)

	_, err = h.o.SuggestIllustration(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrchestrator_SourceCappedOnceForPlanningAndWriting(t *testing.T) {
	h := newHarness(t, "ch-1")
	h.o.opts.MaxSourceChars = 5
	var written string
	h.writer.fn = func(_ context.Context, _ book.ChapterPlan, source string) (string, error) {
		written = source
		return "ok", nil
	}

	snap := h.run(t, "m.txt", "abcdefgh")

	require.Len(t, h.planner.texts, 1)
	assert.Equal(t, "abcde", h.planner.texts[0])
	assert.Equal(t, "abcde", written)
	assert.True(t, snap.Book.SourceTruncated)
}

func TestOrchestrator_Retry(t *testing.T) {
	h := newHarness(t, "ch-1")
	_, err := h.o.Retry(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	var attempts atomic.Int32
	h.extractor.fn = func(_ string, data []byte) (string, error) {
		if attempts.Add(1) == 1 {
			return "", apperrors.ExtractionFailed("temporary", nil)
		}
		return string(data), nil
	}

	first := h.run(t, "m.txt", "text")
	require.Equal(t, StageFailed, first.Run.Stage)

	_, err = h.o.Retry(context.Background())
	require.NoError(t, err)
	second := h.wait(t)
	assert.NotEqual(t, first.Run.ID, second.Run.ID)
	assert.Equal(t, StageDone, second.Run.Stage)
	assert.Equal(t, "m.txt", second.Run.SourceName)
}

func TestOrchestrator_WaitWithoutRun(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.Wait(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrchestrator_StartRequiresName(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.Start(context.Background(), Upload{Data: []byte("x")})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	h := newHarness(t, "ch-1")
	snap := h.run(t, "m.txt", "text")

	snap.Book.Chapters[0].Content = "mutated"
	snap.Run.Steps[0].Status = StepError

	again := h.o.Snapshot()
	assert.Equal(t, "Body of ch-1", again.Book.Chapters[0].Content)
	assert.Equal(t, StepCompleted, again.Run.Steps[0].Status)
}
