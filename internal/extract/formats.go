package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	docx "github.com/fumiama/go-docx"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func readDocx(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	var b strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			b.WriteString(it.String())
			b.WriteString("\n\n")
		case *docx.Table:
			b.WriteString(it.String())
			b.WriteString("\n\n")
		}
	}
	return b.String(), nil
}

func readHTML(data []byte) (string, error) {
	md, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return md, nil
}

// readPlain decodes UTF-8 text, honouring a UTF-8 or UTF-16 byte order mark.
func readPlain(data []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return "", errors.New("file looks binary, not text")
	}
	return string(out), nil
}
