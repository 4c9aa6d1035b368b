package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/thywilljoshua/manuscript2book/internal/ai"
	"github.com/thywilljoshua/manuscript2book/internal/book"
	"github.com/thywilljoshua/manuscript2book/internal/compose"
	"github.com/thywilljoshua/manuscript2book/internal/config"
	"github.com/thywilljoshua/manuscript2book/internal/extract"
	"github.com/thywilljoshua/manuscript2book/internal/logger"
	"github.com/thywilljoshua/manuscript2book/internal/pipeline"
)

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

// app is the wired pipeline shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	orch   *pipeline.Orchestrator
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	log := logger.New(logger.Config{
		Writer: os.Stderr,
		Format: cfg.Log.Format,
		Level:  logger.ParseLevel(cfg.Log.Level),
	})

	gen, err := ai.NewGemini(ctx, ai.GeminiConfig{
		APIKey:            cfg.Gemini.APIKey,
		TextModel:         cfg.Gemini.TextModel,
		ImageModel:        cfg.Gemini.ImageModel,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
	}, log)
	if err != nil {
		return nil, err
	}

	orch := pipeline.New(pipeline.Deps{
		Extractor:   extract.New(log),
		Planner:     compose.NewPlanner(gen, cfg.Planner.MaxSourceChars, log),
		Writer:      compose.NewWriter(gen, log),
		CoverArtist: compose.NewCoverArtist(gen, cfg.Cover.AspectRatio, log),
		Illustrator: compose.NewIllustrator(gen, cfg.Illustration.MaxChars, log),
	}, pipeline.Options{
		Layout:         book.Layout{FirstPage: cfg.Book.FirstPage, PagesPerChapter: cfg.Book.PagesPerChapter},
		MaxSourceChars: cfg.Planner.MaxSourceChars,
	}, log)

	return &app{cfg: cfg, logger: log, orch: orch}, nil
}

// logProgress logs every stage change and resolved chapter until ctx is done.
func (a *app) logProgress(ctx context.Context) {
	ch, unsubscribe := a.orch.Subscribe()
	defer unsubscribe()

	var lastStage pipeline.Stage
	lastResolved := -1
	for {
		select {
		case snap := <-ch:
			resolved, total := 0, 0
			if snap.Book != nil {
				resolved, total = snap.Book.Progress()
			}
			if snap.Run.Stage == lastStage && resolved == lastResolved {
				continue
			}
			lastStage, lastResolved = snap.Run.Stage, resolved
			a.logger.Info("progress",
				"run_id", snap.Run.ID,
				"stage", snap.Run.Stage,
				"chapters", total,
				"resolved", resolved)
		case <-ctx.Done():
			return
		}
	}
}
