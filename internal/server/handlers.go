package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
	"github.com/thywilljoshua/manuscript2book/internal/pipeline"
)

type runStartedResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	success(w, map[string]string{"status": "healthy"}, s.logger)
}

// handleStartRun accepts a multipart upload in field "file" and starts a new
// run, discarding the current one.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, string(apperrors.CodeValidation),
				"upload exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes", s.logger)
			return
		}
		badRequest(w, "multipart field \"file\" is required", s.logger)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(w, "could not read upload", s.logger)
		return
	}

	id, err := s.pipeline.Start(r.Context(), pipeline.Upload{Name: header.Filename, Data: data})
	if err != nil {
		handleError(w, err, s.logger)
		return
	}
	accepted(w, runStartedResponse{RunID: id}, s.logger)
}

func (s *Server) handleRetryRun(w http.ResponseWriter, r *http.Request) {
	id, err := s.pipeline.Retry(r.Context())
	if err != nil {
		handleError(w, err, s.logger)
		return
	}
	accepted(w, runStartedResponse{RunID: id}, s.logger)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, _ *http.Request) {
	if err := s.pipeline.Cancel(); err != nil {
		handleError(w, err, s.logger)
		return
	}
	accepted(w, s.pipeline.Snapshot().Run, s.logger)
}

func (s *Server) handleGetRun(w http.ResponseWriter, _ *http.Request) {
	success(w, s.pipeline.Snapshot().Run, s.logger)
}

func (s *Server) handleGetBook(w http.ResponseWriter, _ *http.Request) {
	snap := s.pipeline.Snapshot()
	if snap.Book == nil {
		handleError(w, apperrors.NotFound("no book yet"), s.logger)
		return
	}
	success(w, snap.Book, s.logger)
}

func (s *Server) handleRegenerateCover(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.RegenerateCover(r.Context()); err != nil {
		handleError(w, err, s.logger)
		return
	}
	accepted(w, s.pipeline.Snapshot().Run, s.logger)
}

// handleGetCover serves the current cover image. Older cover ids are gone.
func (s *Server) handleGetCover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := s.pipeline.Snapshot()
	if snap.Book == nil || snap.Book.Cover == nil || snap.Book.Cover.ID != id {
		handleError(w, apperrors.NotFound("cover "+id+" not found"), s.logger)
		return
	}
	cover := snap.Book.Cover
	w.Header().Set("Content-Type", cover.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(cover.Data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := w.Write(cover.Data); err != nil {
		s.logger.Debug("cover write interrupted", "error", err)
	}
}

func (s *Server) handleSuggestIllustration(w http.ResponseWriter, r *http.Request) {
	suggestion, err := s.pipeline.SuggestIllustration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err, s.logger)
		return
	}
	success(w, suggestion, s.logger)
}

func (s *Server) handleRewriteChapter(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.RewriteChapter(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, err, s.logger)
		return
	}
	accepted(w, nil, s.logger)
}
