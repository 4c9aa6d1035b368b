package pipeline

import (
	"time"

	"github.com/thywilljoshua/manuscript2book/internal/book"
)

// Stage is the coarse position of a run in the pipeline.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageExtracting Stage = "extracting"
	StagePlanning   Stage = "planning"
	StageWriting    Stage = "writing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
	StageCancelled  Stage = "cancelled"
)

// Terminal reports whether the stage can no longer advance.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed || s == StageCancelled
}

// StepName labels one of the observable steps of a run.
type StepName string

const (
	StepExtract   StepName = "extract"
	StepStructure StepName = "structure"
	StepTOC       StepName = "toc"
	StepWrite     StepName = "write"
)

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

type Step struct {
	Name   StepName   `json:"name"`
	Status StepStatus `json:"status"`
}

// CoverStatus tracks the cover chain, which runs beside chapter writing.
type CoverStatus string

const (
	CoverIdle       CoverStatus = "idle"
	CoverGenerating CoverStatus = "generating"
	CoverReady      CoverStatus = "ready"
	CoverFailed     CoverStatus = "failed"
)

// Run is the observable state of one pipeline execution.
type Run struct {
	ID          string      `json:"id"`
	SourceName  string      `json:"source_name"`
	Stage       Stage       `json:"stage"`
	Steps       []Step      `json:"steps"`
	Error       string      `json:"error,omitempty"`
	ErrorCode   string      `json:"error_code,omitempty"`
	CoverStatus CoverStatus `json:"cover_status"`
	CoverError  string      `json:"cover_error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

func newRun(id, sourceName string) Run {
	return Run{
		ID:         id,
		SourceName: sourceName,
		Stage:      StageIdle,
		Steps: []Step{
			{Name: StepExtract, Status: StepPending},
			{Name: StepStructure, Status: StepPending},
			{Name: StepTOC, Status: StepPending},
			{Name: StepWrite, Status: StepPending},
		},
		CoverStatus: CoverIdle,
		StartedAt:   time.Now().UTC(),
	}
}

// Step returns the status of the named step.
func (r *Run) Step(name StepName) StepStatus {
	for _, s := range r.Steps {
		if s.Name == name {
			return s.Status
		}
	}
	return ""
}

func (r *Run) setStep(name StepName, status StepStatus) {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			r.Steps[i].Status = status
			return
		}
	}
}

func (r *Run) finish(stage Stage) {
	now := time.Now().UTC()
	r.Stage = stage
	r.FinishedAt = &now
}

func (r Run) clone() Run {
	c := r
	c.Steps = append([]Step(nil), r.Steps...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

// Snapshot is a deep copy of a run and its book. Book is nil until the
// outline has been materialised.
type Snapshot struct {
	Run  Run        `json:"run"`
	Book *book.Book `json:"book,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{Run: s.Run.clone(), Book: s.Book.Clone()}
}

// Settled reports whether nothing is in flight for the run: the stage is
// terminal and neither a cover nor a chapter rewrite is being generated.
func (s Snapshot) Settled() bool {
	if !s.Run.Stage.Terminal() || s.Run.CoverStatus == CoverGenerating {
		return false
	}
	if s.Book != nil {
		for _, ch := range s.Book.Chapters {
			if ch.Status == book.ChapterGenerating {
				return false
			}
		}
	}
	return true
}

// Suggestion is an illustration idea for a chapter.
type Suggestion struct {
	ChapterID string `json:"chapter_id"`
	Text      string `json:"text"`
	Fallback  bool   `json:"fallback"`
}

// FallbackSuggestion is offered when the illustration request fails.
const FallbackSuggestion = "A simple, atmospheric illustration capturing the main theme of this chapter."

// state is owned by a run loop and never shared.
type state struct {
	run  Run
	book *book.Book
}

func (s *state) snapshot() Snapshot {
	return Snapshot{Run: s.run.clone(), Book: s.book.Clone()}
}
