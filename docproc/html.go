package docproc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/markusmobius/go-trafilatura"
)

// extractHTMLText runs trafilatura's boilerplate-removal extraction over a
// raw HTML document and returns the main text content, or "" when nothing
// article-like was found. Trafilatura reports content-free pages as an
// error ("text and comments are not long enough"); that outcome is an empty
// extraction here, not a failure.
func extractHTMLText(raw []byte) (string, error) {
	result, err := trafilatura.Extract(bytes.NewReader(raw), trafilatura.Options{})
	if err != nil {
		if strings.Contains(err.Error(), "not long enough") {
			return "", nil
		}
		return "", fmt.Errorf("trafilatura: %w", err)
	}
	if result == nil {
		return "", nil
	}
	return result.ContentText, nil
}

// processHTML extracts the main content of an HTML file. Files with no
// extractable content yield no record.
func (p *Processor) processHTML(in Input, source string) ([]Record, error) {
	data, err := readAll(in)
	if err != nil {
		return nil, err
	}
	text, err := extractHTMLText(data)
	if err != nil {
		return nil, err
	}
	if text == "" {
		p.logger.Warn("no extractable content in HTML file", "file", in.Path(), "source", source)
		return nil, nil
	}
	text = collapseNewlines(text)
	meta := buildMetadata(in)
	return []Record{newRecord(text, source, meta)}, nil
}
