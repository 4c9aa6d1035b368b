package book

import "fmt"

// ChapterStatus is the per-chapter generation state.
type ChapterStatus string

const (
	ChapterPending    ChapterStatus = "pending"
	ChapterGenerating ChapterStatus = "generating"
	ChapterCompleted  ChapterStatus = "completed"
	ChapterError      ChapterStatus = "error"
)

// Resolved reports whether the writer is done with the chapter.
func (s ChapterStatus) Resolved() bool {
	return s == ChapterCompleted || s == ChapterError
}

// ErrorPlaceholder replaces the content of a chapter whose generation failed.
const ErrorPlaceholder = "Error generating content for this chapter. Please try again."

// Chapter is the mutable projection of a ChapterPlan.
type Chapter struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Content     string        `json:"content"`
	Status      ChapterStatus `json:"status"`
	Page        int           `json:"page"`
}

// Brief returns the writer instruction for this chapter.
func (c *Chapter) Brief() ChapterPlan {
	return ChapterPlan{ID: c.ID, Title: c.Title, Description: c.Description}
}

// Start moves the chapter into generating. Only pending chapters may start,
// except a failed chapter being rewritten on operator request.
func (c *Chapter) Start(rewrite bool) error {
	switch {
	case c.Status == ChapterPending:
	case rewrite && c.Status == ChapterError:
	default:
		return fmt.Errorf("chapter %s: cannot start from %s", c.ID, c.Status)
	}
	c.Status = ChapterGenerating
	c.Content = ""
	return nil
}

// Complete stores the writer's output. Empty content is a valid result.
func (c *Chapter) Complete(content string) error {
	if c.Status != ChapterGenerating {
		return fmt.Errorf("chapter %s: cannot complete from %s", c.ID, c.Status)
	}
	c.Status = ChapterCompleted
	c.Content = content
	return nil
}

// Fail marks the chapter as errored and stores the fixed placeholder.
func (c *Chapter) Fail() error {
	if c.Status != ChapterGenerating {
		return fmt.Errorf("chapter %s: cannot fail from %s", c.ID, c.Status)
	}
	c.Status = ChapterError
	c.Content = ErrorPlaceholder
	return nil
}
