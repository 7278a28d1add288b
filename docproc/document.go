package docproc

import (
	"context"
	"strings"
)

// processDocument handles the structured formats (.pdf, .docx, .pptx) by
// running the conversion engine and flattening its items into one text body.
// Tables render as markdown; every item is followed by a blank line so
// adjacent items stay separated after newline collapsing.
func (p *Processor) processDocument(ctx context.Context, in Input, source string) ([]Record, error) {
	doc, err := p.conv.Convert(ctx, in)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, item := range doc.Items {
		switch {
		case item.Table != nil:
			sb.WriteString(normalizeTable(item.Table))
			sb.WriteString("\n\n")
		case strings.TrimSpace(item.Text) != "":
			sb.WriteString(item.Text)
			sb.WriteString("\n\n")
		}
	}

	meta := buildMetadata(in)
	meta.PageCount = doc.PageCount
	return []Record{newRecord(collapseNewlines(sb.String()), source, meta)}, nil
}
