// Package extract turns an uploaded manuscript into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
)

// Format identifies a supported manuscript format.
type Format string

const (
	FormatDocx  Format = "docx"
	FormatPDF   Format = "pdf"
	FormatHTML  Format = "html"
	FormatPlain Format = "text"
)

type reader func(data []byte) (string, error)

// Extractor converts documents to text based on their format.
type Extractor struct {
	readers map[Format]reader
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	return &Extractor{
		readers: map[Format]reader{
			FormatDocx:  readDocx,
			FormatPDF:   readPDF,
			FormatHTML:  readHTML,
			FormatPlain: readPlain,
		},
		logger: logger,
	}
}

// Extract returns the document's text. Every failure is an ExtractionFailed error.
func (e *Extractor) Extract(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.ExtractionFailed("extraction cancelled", err)
	}
	if len(data) == 0 {
		return "", apperrors.ExtractionFailed("document is empty", nil)
	}
	format, err := Detect(name, data)
	if err != nil {
		return "", apperrors.ExtractionFailed(err.Error(), nil)
	}
	text, err := e.readers[format](data)
	if err != nil {
		return "", apperrors.ExtractionFailed(fmt.Sprintf("could not read %s document", format), err)
	}
	text = normalize(text)
	if text == "" {
		return "", apperrors.ExtractionFailed("document contains no text", nil)
	}
	e.logger.Info("extracted manuscript", "name", name, "format", format, "bytes", len(data), "chars", len(text))
	return text, nil
}

var (
	zipMagic = []byte("PK\x03\x04")
	pdfMagic = []byte("%PDF")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

var extFormats = map[string]Format{
	".docx":     FormatDocx,
	".pdf":      FormatPDF,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".xhtml":    FormatHTML,
	".txt":      FormatPlain,
	".md":       FormatPlain,
	".markdown": FormatPlain,
	".text":     FormatPlain,
}

// SupportedExtension reports whether name carries an extension Detect accepts
// without looking at the content.
func SupportedExtension(name string) bool {
	_, ok := extFormats[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Detect picks a format from the file extension, falling back to content sniffing.
func Detect(name string, data []byte) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if f, ok := extFormats[ext]; ok {
		return f, nil
	}
	if ext == ".doc" {
		return "", fmt.Errorf("legacy .doc files are not supported, save %s as .docx", name)
	}

	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatDocx, nil
	case bytes.HasPrefix(data, pdfMagic):
		return FormatPDF, nil
	case bytes.HasPrefix(data, oleMagic):
		return "", fmt.Errorf("legacy .doc files are not supported, save %s as .docx", name)
	}
	ct := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(ct, "text/html"):
		return FormatHTML, nil
	case strings.HasPrefix(ct, "text/plain"):
		return FormatPlain, nil
	}
	return "", fmt.Errorf("unsupported document type %q (%s)", name, ct)
}

var manyBlankLines = regexp.MustCompile(`\n{3,}`)

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t ")
	}
	s = strings.Join(lines, "\n")
	s = manyBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
