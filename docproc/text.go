package docproc

import (
	"fmt"
	"io"
)

// readAll slurps the input content through its own reader and closes it.
func readAll(in Input) ([]byte, error) {
	r, err := in.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", in.Path(), err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", in.Path(), err)
	}
	return data, nil
}

// processText handles .txt and .md inputs: passthrough with blank-line
// collapsing.
func (p *Processor) processText(in Input, source string) ([]Record, error) {
	data, err := readAll(in)
	if err != nil {
		return nil, err
	}
	text := collapseNewlines(string(data))
	meta := buildMetadata(in)
	return []Record{newRecord(text, source, meta)}, nil
}
