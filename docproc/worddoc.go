package docproc

import (
	"fmt"

	"code.sajari.com/docconv"
)

// processWordLegacy handles pre-OOXML .doc files through docconv's binary
// Word converter.
func (p *Processor) processWordLegacy(in Input, source string) ([]Record, error) {
	r, err := in.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", in.Path(), err)
	}
	defer r.Close()

	res, err := docconv.Convert(r, "application/msword", true)
	if err != nil {
		return nil, fmt.Errorf("docconv %s: %w", in.Path(), err)
	}
	text := collapseNewlines(res.Body)
	meta := buildMetadata(in)
	return []Record{newRecord(text, source, meta)}, nil
}
