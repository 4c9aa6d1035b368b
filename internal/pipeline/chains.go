package pipeline

import (
	"errors"

	"github.com/thywilljoshua/manuscript2book/internal/book"
	"github.com/thywilljoshua/manuscript2book/internal/compose"
	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
)

// errStopped ends a chain whose run has been discarded.
var errStopped = errors.New("run stopped")

// drive is the chapter chain: extract, plan, materialise, then write every
// chapter strictly in plan order.
func (o *Orchestrator) drive(r *run, up Upload) {
	if err := o.runChain(r, up); err != nil && !errors.Is(err, errStopped) {
		r.logger.Error("run chain aborted", "error", err)
	}
}

func (o *Orchestrator) runChain(r *run, up Upload) error {
	if err := r.update("extracting", func(s *state) error {
		s.run.Stage = StageExtracting
		s.run.setStep(StepExtract, StepProcessing)
		return nil
	}); err != nil {
		return err
	}

	text, err := o.deps.Extractor.Extract(r.ctx, up.Name, up.Data)
	if err != nil {
		return o.failRun(r, StepExtract, err)
	}
	r.logger.Info("text extracted", "chars", len(text))

	if err := r.update("planning", func(s *state) error {
		s.run.setStep(StepExtract, StepCompleted)
		s.run.Stage = StagePlanning
		s.run.setStep(StepStructure, StepProcessing)
		return nil
	}); err != nil {
		return err
	}

	// Planning and writing share one grounded source so both see the same text.
	source, truncated := compose.Clip(text, o.opts.MaxSourceChars)
	if truncated {
		r.logger.Warn("manuscript truncated, chapters will not see its tail",
			"max_chars", o.opts.MaxSourceChars)
	}
	outline, err := o.deps.Planner.Plan(r.ctx, source, up.Name)
	if err != nil {
		return o.failRun(r, StepStructure, err)
	}
	outline.Truncated = outline.Truncated || truncated

	var (
		plans = outline.Chapters
		meta  book.Metadata
	)
	if err := r.update("outline materialised", func(s *state) error {
		s.run.setStep(StepStructure, StepCompleted)
		s.run.setStep(StepTOC, StepProcessing)
		s.book = book.New(outline, up.Name, source, o.opts.Layout)
		meta = s.book.Metadata
		s.run.setStep(StepTOC, StepCompleted)
		return nil
	}); err != nil {
		return err
	}

	if r.abort.Load() {
		return r.cancelled(len(plans))
	}
	if err := r.update("writing", func(s *state) error {
		s.run.Stage = StageWriting
		s.run.setStep(StepWrite, StepProcessing)
		s.run.CoverStatus = CoverGenerating
		return nil
	}); err != nil {
		return err
	}
	go o.generateCover(r, meta)

	for i, plan := range plans {
		if r.abort.Load() {
			return r.cancelled(len(plans) - i)
		}

		if err := r.update("chapter started", func(s *state) error {
			return s.book.Chapters[i].Start(false)
		}); err != nil {
			return err
		}

		content, werr := o.deps.Writer.Write(r.ctx, plan, source, meta)
		if werr != nil {
			r.logger.Warn("chapter failed", "chapter_id", plan.ID, "error", werr)
		} else {
			r.logger.Info("chapter completed", "chapter_id", plan.ID,
				"index", i+1, "total", len(plans))
		}
		if err := r.update("chapter resolved", func(s *state) error {
			if werr != nil {
				return s.book.Chapters[i].Fail()
			}
			return s.book.Chapters[i].Complete(content)
		}); err != nil {
			return err
		}
	}

	return r.update("done", func(s *state) error {
		s.run.setStep(StepWrite, StepCompleted)
		s.run.finish(StageDone)
		resolved, total := s.book.Progress()
		r.logger.Info("run finished", "chapters", total, "resolved", resolved)
		return nil
	})
}

// failRun records a run-fatal error. No partial book is kept.
func (o *Orchestrator) failRun(r *run, step StepName, cause error) error {
	if r.ctx.Err() != nil {
		return errStopped
	}
	r.logger.Error("run failed", "step", step, "error", cause)
	return r.update("failed", func(s *state) error {
		s.run.setStep(step, StepError)
		s.run.Error = cause.Error()
		s.run.ErrorCode = string(apperrors.CodeOf(cause))
		s.book = nil
		s.run.finish(StageFailed)
		return nil
	})
}

// generateCover is the cover chain. A failure only marks the cover failed.
func (o *Orchestrator) generateCover(r *run, meta book.Metadata) {
	cover, err := o.deps.CoverArtist.GenerateCover(r.ctx, meta)
	if err != nil {
		r.logger.Warn("cover generation failed", "error", err)
	}
	uerr := r.update("cover resolved", func(s *state) error {
		if err != nil {
			s.run.CoverStatus = CoverFailed
			s.run.CoverError = err.Error()
			return nil
		}
		s.book.Cover = cover
		s.run.CoverStatus = CoverReady
		s.run.CoverError = ""
		return nil
	})
	if uerr != nil && !errors.Is(uerr, errStopped) {
		r.logger.Error("cover result dropped", "error", uerr)
	}
}

// rewrite writes a single failed chapter again on operator request.
func (o *Orchestrator) rewrite(r *run, brief book.ChapterPlan, source string, meta book.Metadata) {
	content, werr := o.deps.Writer.Write(r.ctx, brief, source, meta)
	if werr != nil {
		r.logger.Warn("chapter rewrite failed", "chapter_id", brief.ID, "error", werr)
	} else {
		r.logger.Info("chapter rewritten", "chapter_id", brief.ID)
	}
	uerr := r.update("chapter rewrite resolved", func(s *state) error {
		i := s.book.Chapter(brief.ID)
		if werr != nil {
			return s.book.Chapters[i].Fail()
		}
		return s.book.Chapters[i].Complete(content)
	})
	if uerr != nil && !errors.Is(uerr, errStopped) {
		r.logger.Error("chapter rewrite result dropped", "error", uerr)
	}
}

// cancelled ends the run with the unwritten chapters left pending.
func (r *run) cancelled(left int) error {
	r.logger.Info("run cancelled", "chapters_left", left)
	return r.update("cancelled", func(s *state) error {
		s.run.setStep(StepWrite, StepPending)
		s.run.finish(StageCancelled)
		return nil
	})
}

// update sends a mutation from a chain. A discarded run yields errStopped.
func (r *run) update(name string, apply func(s *state) error) error {
	err := r.send(message{name: name, apply: apply})
	if err != nil && r.ctx.Err() != nil {
		return errStopped
	}
	return err
}
