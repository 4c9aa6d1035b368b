package extract

import (
	"bytes"
	"context"
	"testing"

	docx "github.com/fumiama/go-docx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
	"github.com/thywilljoshua/manuscript2book/internal/logger"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want Format
	}{
		{"docx by extension", "Book.DOCX", nil, FormatDocx},
		{"pdf by extension", "a.pdf", nil, FormatPDF},
		{"markdown is plain", "notes.md", nil, FormatPlain},
		{"html by extension", "page.htm", nil, FormatHTML},
		{"zip magic", "upload", []byte("PK\x03\x04rest"), FormatDocx},
		{"pdf magic", "upload", []byte("%PDF-1.7"), FormatPDF},
		{"sniffed html", "upload", []byte("<html><body><p>hi</p></body></html>"), FormatHTML},
		{"sniffed text", "upload", []byte("just some words"), FormatPlain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.file, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSupportedExtension(t *testing.T) {
	assert.True(t, SupportedExtension("Draft.DOCX"))
	assert.True(t, SupportedExtension("notes.md"))
	assert.False(t, SupportedExtension("old.doc"))
	assert.False(t, SupportedExtension("photo.jpg"))
	assert.False(t, SupportedExtension("README"))
}

func TestDetect_Unsupported(t *testing.T) {
	_, err := Detect("old.doc", nil)
	assert.ErrorContains(t, err, ".docx")

	_, err = Detect("upload", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1})
	assert.ErrorContains(t, err, "legacy")

	_, err = Detect("image", []byte("\x89PNG\r\n\x1a\n\x00\x00"))
	assert.ErrorContains(t, err, "unsupported")
}

func newTestExtractor() *Extractor {
	return New(logger.Discard())
}

func TestExtract_PlainNormalisesWhitespace(t *testing.T) {
	text, err := newTestExtractor().Extract(context.Background(), "m.txt", []byte("\xEF\xBB\xBFIntro text   \r\n\r\n\r\n\r\nChapter stuff\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "Intro text\n\nChapter stuff", text)
}

func TestExtract_PlainUTF16(t *testing.T) {
	// "Hi" in UTF-16LE with BOM
	data := []byte{0xFF, 0xFE, 'H', 0x00, 'i', 0x00}
	text, err := newTestExtractor().Extract(context.Background(), "m.txt", data)
	require.NoError(t, err)
	assert.Equal(t, "Hi", text)
}

func TestExtract_HTML(t *testing.T) {
	text, err := newTestExtractor().Extract(context.Background(), "m.html",
		[]byte("<h1>Intro</h1><p>Some <strong>bold</strong> text.</p>"))
	require.NoError(t, err)
	assert.Contains(t, text, "# Intro")
	assert.Contains(t, text, "**bold**")
}

func TestExtract_Docx(t *testing.T) {
	d := docx.New().WithDefaultTheme()
	d.AddParagraph().AddText("Intro text.")
	d.AddParagraph().AddText("Chapter stuff.")
	var buf bytes.Buffer
	_, err := d.WriteTo(&buf)
	require.NoError(t, err)

	text, err := newTestExtractor().Extract(context.Background(), "manuscript.docx", buf.Bytes())
	require.NoError(t, err)
	assert.Contains(t, text, "Intro text.")
	assert.Contains(t, text, "Chapter stuff.")
}

func TestExtract_Failures(t *testing.T) {
	ex := newTestExtractor()
	ctx := context.Background()

	cases := map[string]struct {
		name string
		data []byte
	}{
		"empty payload":  {"a.txt", nil},
		"only spaces":    {"a.txt", []byte("   \n\n  ")},
		"corrupt docx":   {"a.docx", []byte("PK\x03\x04 not really a zip")},
		"corrupt pdf":    {"a.pdf", []byte("%PDF-1.4 garbage")},
		"binary as text": {"a.txt", []byte("abc\x00def")},
		"unknown format": {"a.bin", []byte{0x89, 'P', 'N', 'G', 0, 0}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ex.Extract(ctx, c.name, c.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrExtractionFailed)
		})
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestExtractor().Extract(ctx, "a.txt", []byte("text"))
	assert.ErrorIs(t, err, apperrors.ErrExtractionFailed)
}

func TestTransformTables(t *testing.T) {
	in := "Prices below\nItem    Cost    Qty\nApple   1.00    3\nPear    2.50    1\n\nThanks  for reading"
	want := "Prices below\n| Item | Cost | Qty |\n| --- | --- | --- |\n| Apple | 1.00 | 3 |\n| Pear | 2.50 | 1 |\n\nThanks  for reading"
	assert.Equal(t, want, transformTables(in))
}

func TestTransformTables_LeavesProseAlone(t *testing.T) {
	in := "One line only.\nAnother line."
	assert.Equal(t, in, transformTables(in))
}
