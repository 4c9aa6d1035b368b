// Package pipeline drives a manuscript through extraction, planning and
// sequential chapter writing while the cover is generated alongside.
//
// Each run is owned by a single loop goroutine. The chapter chain and the
// cover chain never touch run state; they send mutations to the loop and the
// loop publishes a deep-copied Snapshot after applying each one.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/thywilljoshua/manuscript2book/internal/book"
	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
)

// Extractor turns an uploaded document into plain text.
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (string, error)
}

// Planner proposes the deduplicated outline.
type Planner interface {
	Plan(ctx context.Context, rawText, sourceName string) (book.Outline, error)
}

// Writer writes one chapter body.
type Writer interface {
	Write(ctx context.Context, brief book.ChapterPlan, source string, meta book.Metadata) (string, error)
}

// CoverArtist generates a fresh cover on every call.
type CoverArtist interface {
	GenerateCover(ctx context.Context, meta book.Metadata) (*book.Cover, error)
}

// Illustrator suggests an illustration for chapter content.
type Illustrator interface {
	Suggest(ctx context.Context, chapterContent string) (string, error)
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Extractor   Extractor
	Planner     Planner
	Writer      Writer
	CoverArtist CoverArtist
	Illustrator Illustrator
}

// Options tune the orchestrator.
type Options struct {
	Layout book.Layout
	// MaxSourceChars caps the grounded source used for planning and writing.
	// Zero means no cap.
	MaxSourceChars int
}

// Upload is a manuscript handed to Start.
type Upload struct {
	Name string
	Data []byte
}

const subscriberBuffer = 64

// Orchestrator holds at most one live run. Starting a new run discards the
// previous one entirely.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	current *run
	last    *Upload
	latest  Snapshot
	subs    map[uint64]chan Snapshot
	nextSub uint64
}

func New(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger,
		latest: Snapshot{Run: Run{Stage: StageIdle, CoverStatus: CoverIdle}},
		subs:   make(map[uint64]chan Snapshot),
	}
}

// run is one pipeline execution and its loop.
type run struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	msgs   chan message
	abort  atomic.Bool
	logger *slog.Logger
}

// message is a mutation applied by the run loop. ack receives the result of
// apply once the new snapshot has been published.
type message struct {
	name  string
	apply func(s *state) error
	ack   chan error
}

// Start discards any current run and begins a new one for up. The returned
// id identifies the new run. The run outlives ctx's cancellation; it stops
// only when replaced or when the orchestrator is closed.
func (o *Orchestrator) Start(ctx context.Context, up Upload) (string, error) {
	if up.Name == "" {
		return "", apperrors.Validation("upload has no file name", nil)
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		id:     id,
		ctx:    runCtx,
		cancel: cancel,
		msgs:   make(chan message),
		logger: o.logger.With("run_id", id),
	}
	st := &state{run: newRun(id, up.Name)}

	o.mu.Lock()
	if prev := o.current; prev != nil {
		prev.cancel()
		prev.logger.Info("run discarded by new upload")
	}
	o.current = r
	o.last = &up
	o.publishLocked(r, st.snapshot())
	o.mu.Unlock()

	r.logger.Info("run started", "source", up.Name, "bytes", len(up.Data))
	go o.loop(r, st)
	go o.drive(r, up)
	return id, nil
}

// Retry restarts from scratch with the last uploaded manuscript.
func (o *Orchestrator) Retry(ctx context.Context) (string, error) {
	o.mu.Lock()
	last := o.last
	o.mu.Unlock()
	if last == nil {
		return "", apperrors.NotFound("nothing to retry, upload a manuscript first")
	}
	return o.Start(ctx, *last)
}

// Cancel asks the current run to stop before its next chapter. Chapters not
// yet started stay pending.
func (o *Orchestrator) Cancel() error {
	r, snap := o.active()
	if r == nil {
		return apperrors.NotFound("no run in progress")
	}
	if snap.Run.Stage.Terminal() {
		return apperrors.Conflict("run already " + string(snap.Run.Stage))
	}
	r.abort.Store(true)
	r.logger.Info("run cancellation requested")
	return nil
}

// RegenerateCover requests a new cover for the current book. The result
// replaces any previous cover when it arrives.
func (o *Orchestrator) RegenerateCover(_ context.Context) error {
	r, _ := o.active()
	if r == nil {
		return apperrors.NotFound("no book yet")
	}
	var meta book.Metadata
	err := r.send(message{name: "cover requested", apply: func(s *state) error {
		if s.book == nil {
			return apperrors.Conflict("book has no metadata yet")
		}
		if s.run.CoverStatus == CoverGenerating {
			return apperrors.Conflict("cover generation already in progress")
		}
		s.run.CoverStatus = CoverGenerating
		s.run.CoverError = ""
		meta = s.book.Metadata
		return nil
	}})
	if err != nil {
		return err
	}
	go o.generateCover(r, meta)
	return nil
}

// RewriteChapter rewrites a chapter that ended in error. It is accepted only
// once the chapter loop has finished.
func (o *Orchestrator) RewriteChapter(_ context.Context, chapterID string) error {
	r, _ := o.active()
	if r == nil {
		return apperrors.NotFound("no book yet")
	}
	var (
		brief  book.ChapterPlan
		source string
		meta   book.Metadata
	)
	err := r.send(message{name: "chapter rewrite requested", apply: func(s *state) error {
		if s.book == nil {
			return apperrors.NotFound("no book yet")
		}
		i := s.book.Chapter(chapterID)
		if i < 0 {
			return apperrors.NotFound("chapter " + chapterID + " not found")
		}
		if s.run.Stage != StageDone && s.run.Stage != StageCancelled {
			return apperrors.Conflict("chapters are still being written")
		}
		for _, ch := range s.book.Chapters {
			if ch.Status == book.ChapterGenerating {
				return apperrors.Conflict("chapter " + ch.ID + " is already being rewritten")
			}
		}
		ch := &s.book.Chapters[i]
		if ch.Status != book.ChapterError {
			return apperrors.Conflict("only chapters in error can be rewritten")
		}
		if err := ch.Start(true); err != nil {
			return apperrors.Conflict(err.Error())
		}
		brief, source, meta = ch.Brief(), s.book.SourceText, s.book.Metadata
		return nil
	}})
	if err != nil {
		return err
	}
	go o.rewrite(r, brief, source, meta)
	return nil
}

// SuggestIllustration asks for an illustration idea for a chapter. A failed
// request yields a generic suggestion with Fallback set instead of an error.
func (o *Orchestrator) SuggestIllustration(ctx context.Context, chapterID string) (Suggestion, error) {
	snap := o.Snapshot()
	if snap.Book == nil {
		return Suggestion{}, apperrors.NotFound("no book yet")
	}
	i := snap.Book.Chapter(chapterID)
	if i < 0 {
		return Suggestion{}, apperrors.NotFound("chapter " + chapterID + " not found")
	}
	ch := snap.Book.Chapters[i]
	if ch.Status != book.ChapterCompleted {
		return Suggestion{}, apperrors.Conflict("chapter " + chapterID + " is not completed")
	}

	text, err := o.deps.Illustrator.Suggest(ctx, ch.Content)
	if err != nil {
		o.logger.Warn("illustration suggestion failed, using fallback",
			"chapter_id", chapterID, "error", err)
		return Suggestion{ChapterID: chapterID, Text: FallbackSuggestion, Fallback: true}, nil
	}
	return Suggestion{ChapterID: chapterID, Text: text}, nil
}

// Snapshot returns the latest published state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest.clone()
}

// Subscribe delivers every published snapshot. When the subscriber lags,
// older snapshots are dropped so the newest one always arrives. The returned
// func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
			close(ch)
		})
	}
}

// Wait blocks until the current run has settled: a terminal stage with no
// cover or chapter rewrite in flight.
func (o *Orchestrator) Wait(ctx context.Context) (Snapshot, error) {
	ch, unsubscribe := o.Subscribe()
	defer unsubscribe()

	snap := o.Snapshot()
	if snap.Run.ID == "" {
		return snap, apperrors.NotFound("no run started")
	}
	for !snap.Settled() {
		select {
		case snap = <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
	return snap, nil
}

// Close stops the current run.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		o.current.cancel()
		o.current = nil
	}
}

func (o *Orchestrator) active() (*run, Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current, o.latest
}

// loop applies messages for r until r is discarded.
func (o *Orchestrator) loop(r *run, st *state) {
	for {
		select {
		case m := <-r.msgs:
			err := m.apply(st)
			if err == nil {
				o.publish(r, st.snapshot())
			} else {
				r.logger.Debug("mutation rejected", "mutation", m.name, "error", err)
			}
			if m.ack != nil {
				m.ack <- err
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// send hands m to the run loop and waits until it has been applied.
func (r *run) send(m message) error {
	m.ack = make(chan error, 1)
	select {
	case r.msgs <- m:
	case <-r.ctx.Done():
		return apperrors.Conflict("run was replaced")
	}
	select {
	case err := <-m.ack:
		return err
	case <-r.ctx.Done():
		return apperrors.Conflict("run was replaced")
	}
}

func (o *Orchestrator) publish(r *run, snap Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != r {
		return
	}
	o.publishLocked(r, snap)
}

func (o *Orchestrator) publishLocked(r *run, snap Snapshot) {
	o.latest = snap
	for _, ch := range o.subs {
		snap := snap.clone()
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
			r.logger.Warn("dropped snapshot for slow subscriber")
		}
	}
}
