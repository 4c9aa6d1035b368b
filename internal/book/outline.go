package book

import (
	"fmt"
	"strings"
)

// Validate enforces what the writer depends on: at least one chapter,
// non-blank fields and unique chapter IDs.
func (o *Outline) Validate() error {
	if strings.TrimSpace(o.Metadata.Title) == "" {
		return fmt.Errorf("metadata.title is empty")
	}
	if len(o.Chapters) == 0 {
		return fmt.Errorf("outline has no chapters")
	}
	seen := make(map[string]int, len(o.Chapters))
	for i, ch := range o.Chapters {
		switch {
		case strings.TrimSpace(ch.ID) == "":
			return fmt.Errorf("chapters[%d].id is empty", i)
		case strings.TrimSpace(ch.Title) == "":
			return fmt.Errorf("chapters[%d].title is empty", i)
		case strings.TrimSpace(ch.Description) == "":
			return fmt.Errorf("chapters[%d].description is empty", i)
		}
		if j, dup := seen[ch.ID]; dup {
			return fmt.Errorf("chapters[%d].id %q duplicates chapters[%d]", i, ch.ID, j)
		}
		seen[ch.ID] = i
	}
	return nil
}
