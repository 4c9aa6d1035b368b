package convert

// Section is one entry of the book's table of contents. Chapters are depth 1,
// their "##" and "###" headings are depth 2 and 3.
type Section struct {
	Number   string    `json:"number"`
	Title    string    `json:"title"`
	Start    int       `json:"start_page"`
	End      int       `json:"end_page"`
	Depth    int       `json:"depth"`
	Slug     string    `json:"slug"`
	Children []Section `json:"children,omitempty"`
}

// Result describes an exported book.
type Result struct {
	Title    string    `json:"title"`
	Chapters int       `json:"chapters"`
	Sections []Section `json:"sections"`
	Cover    string    `json:"cover,omitempty"`
	OutDir   string    `json:"out_dir"`
}

// Config controls an export.
type Config struct {
	OutDir     string
	SlugPrefix string
	// MaxDepth limits how deep headings appear in the table of contents.
	MaxDepth int
}
