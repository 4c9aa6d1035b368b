// Package errors defines the failure taxonomy of the book pipeline.
//
// Run-fatal failures (extraction, planning) abort a run. Chapter, cover and
// illustration failures stay local to the feature that raised them.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable failure kind.
type Code string

const (
	CodeExtractionFailed        Code = "EXTRACTION_FAILED"
	CodePlanningFailed          Code = "PLANNING_FAILED"
	CodeChapterGenerationFailed Code = "CHAPTER_GENERATION_FAILED"
	CodeCoverGenerationFailed   Code = "COVER_GENERATION_FAILED"
	CodeIllustrationFailed      Code = "ILLUSTRATION_FAILED"
	CodeNotFound                Code = "NOT_FOUND"
	CodeConflict                Code = "CONFLICT"
	CodeValidation              Code = "VALIDATION"
)

// HTTPStatus maps a code onto the status the API answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeValidation, CodeExtractionFailed:
		return http.StatusBadRequest
	case CodePlanningFailed, CodeChapterGenerationFailed, CodeCoverGenerationFailed, CodeIllustrationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a pipeline failure with a human-readable cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrExtractionFailed        = &Error{Code: CodeExtractionFailed, Message: "extraction failed"}
	ErrPlanningFailed          = &Error{Code: CodePlanningFailed, Message: "planning failed"}
	ErrChapterGenerationFailed = &Error{Code: CodeChapterGenerationFailed, Message: "chapter generation failed"}
	ErrCoverGenerationFailed   = &Error{Code: CodeCoverGenerationFailed, Message: "cover generation failed"}
	ErrIllustrationFailed      = &Error{Code: CodeIllustrationFailed, Message: "illustration failed"}
	ErrNotFound                = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict                = &Error{Code: CodeConflict, Message: "conflict"}
	ErrValidation              = &Error{Code: CodeValidation, Message: "validation failed"}
)

func wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, cause: cause}
}

func ExtractionFailed(msg string, cause error) *Error {
	return wrap(CodeExtractionFailed, msg, cause)
}

func PlanningFailed(msg string, cause error) *Error {
	return wrap(CodePlanningFailed, msg, cause)
}

func ChapterGenerationFailed(msg string, cause error) *Error {
	return wrap(CodeChapterGenerationFailed, msg, cause)
}

func CoverGenerationFailed(msg string, cause error) *Error {
	return wrap(CodeCoverGenerationFailed, msg, cause)
}

func IllustrationFailed(msg string, cause error) *Error {
	return wrap(CodeIllustrationFailed, msg, cause)
}

func NotFound(msg string) *Error {
	return wrap(CodeNotFound, msg, nil)
}

func Conflict(msg string) *Error {
	return wrap(CodeConflict, msg, nil)
}

func Validation(msg string, cause error) *Error {
	return wrap(CodeValidation, msg, cause)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus picks the response status for any error.
func HTTPStatus(err error) int {
	if c := CodeOf(err); c != "" {
		return c.HTTPStatus()
	}
	return http.StatusInternalServerError
}
