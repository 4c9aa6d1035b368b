package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/thywilljoshua/manuscript2book/internal/convert"
	"github.com/thywilljoshua/manuscript2book/internal/extract"
	"github.com/thywilljoshua/manuscript2book/internal/pipeline"
)

// settleDelay lets an editor or copy finish writing before a run starts.
const settleDelay = 750 * time.Millisecond

func watchCmd(opts *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Build a book for every manuscript dropped into a directory",
		Long: "Each new or changed manuscript restarts the pipeline from scratch; " +
			"a run still in progress for an earlier file is discarded.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.orch.Close()
			if out == "" {
				out = filepath.Join(args[0], "books")
			}

			return newDropWatcher(a, args[0], out).run(ctx)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "directory receiving exported books (default: <dir>/books)")
	return cmd
}

type dropWatcher struct {
	app    *app
	dir    string
	out    string
	settle time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newDropWatcher(a *app, dir, out string) *dropWatcher {
	return &dropWatcher{
		app:    a,
		dir:    dir,
		out:    out,
		settle: settleDelay,
		timers: map[string]*time.Timer{},
	}
}

func (w *dropWatcher) run(ctx context.Context) error {
	watcher, err := w.open()
	if err != nil {
		return err
	}
	defer watcher.Close()
	return w.serve(ctx, watcher)
}

func (w *dropWatcher) open() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", w.dir, err)
	}
	return watcher, nil
}

// serve schedules runs for manuscript events until ctx is done and exports
// the books those runs produce.
func (w *dropWatcher) serve(ctx context.Context, watcher *fsnotify.Watcher) error {
	w.app.logger.Info("watching for manuscripts", "dir", w.dir, "out", w.out)

	snaps, unsubscribe := w.app.orch.Subscribe()
	defer unsubscribe()
	go w.exportSettled(ctx, snaps)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.app.logger.Warn("watcher error", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// schedule starts a run for path once it has stopped changing.
func (w *dropWatcher) schedule(ctx context.Context, path string) {
	if !isManuscript(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceLocked(ctx, path)
}

// debounceLocked pushes back the start for path. A timer that already fired
// but whose callback is still waiting for w.mu is replaced, and that callback
// then returns without starting a run. Callers hold w.mu.
func (w *dropWatcher) debounceLocked(ctx context.Context, path string) {
	if t, ok := w.timers[path]; ok && t.Stop() {
		t.Reset(w.settle)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		if w.timers[path] != t {
			w.mu.Unlock()
			return
		}
		delete(w.timers, path)
		w.mu.Unlock()
		w.start(ctx, path)
	})
	w.timers[path] = t
}

func (w *dropWatcher) start(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.app.logger.Warn("manuscript unreadable", "path", path, "error", err)
		return
	}
	id, err := w.app.orch.Start(ctx, pipeline.Upload{Name: filepath.Base(path), Data: data})
	if err != nil {
		w.app.logger.Error("run not started", "path", path, "error", err)
		return
	}
	w.app.logger.Info("manuscript picked up", "path", path, "run_id", id)
}

// exportSettled writes every run that settles in done or cancelled once.
func (w *dropWatcher) exportSettled(ctx context.Context, snaps <-chan pipeline.Snapshot) {
	exported := map[string]bool{}
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if !snap.Settled() || exported[snap.Run.ID] {
				continue
			}
			exported[snap.Run.ID] = true
			if snap.Run.Stage == pipeline.StageFailed {
				w.app.logger.Error("manuscript failed", "source", snap.Run.SourceName,
					"code", snap.Run.ErrorCode, "error", snap.Run.Error)
				continue
			}
			dir := filepath.Join(w.out, strings.TrimSuffix(snap.Run.SourceName, filepath.Ext(snap.Run.SourceName)))
			res, err := convert.Export(snap.Book, convert.Config{OutDir: dir})
			if err != nil {
				w.app.logger.Error("export failed", "source", snap.Run.SourceName, "error", err)
				continue
			}
			w.app.logger.Info("book exported", "title", res.Title, "chapters", res.Chapters, "out", res.OutDir)
		case <-ctx.Done():
			return
		}
	}
}

func isManuscript(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return extract.SupportedExtension(base)
}
