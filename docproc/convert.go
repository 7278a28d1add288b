package docproc

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Item is one content unit of a converted document in reading order: either
// plain text or a table grid. Exactly one of the fields is set.
type Item struct {
	Text  string
	Table *Table
}

// ConvertedDoc is the engine's view of one input document: identity fields
// for the metadata envelope plus the extracted items.
type ConvertedDoc struct {
	Name      string
	Path      string
	Size      int64
	PageCount int
	Items     []Item
}

// Converter turns PDF, DOCX, and PPTX inputs into reading-order content
// items. It is stateless and safe for concurrent use; build one per batch
// and share it across workers.
type Converter struct{}

// NewConverter creates a conversion engine.
func NewConverter() *Converter {
	return &Converter{}
}

// Convert parses a structured document into items.
func (c *Converter) Convert(ctx context.Context, in Input) (*ConvertedDoc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := readAll(in)
	if err != nil {
		return nil, err
	}

	doc := &ConvertedDoc{
		Name: in.Name(),
		Path: in.Path(),
		Size: in.Size(),
	}
	if doc.Size == 0 {
		doc.Size = int64(len(data))
	}

	switch in.Suffix() {
	case ".pdf":
		doc.Items, doc.PageCount, err = convertPDF(data)
	case ".docx":
		doc.Items, err = convertDocx(data)
	case ".pptx":
		doc.Items, doc.PageCount, err = convertPptx(data)
	default:
		return nil, fmt.Errorf("converter: unsupported suffix %q", in.Suffix())
	}
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", in.Path(), err)
	}
	return doc, nil
}

// --- PDF ---

// convertPDF extracts one text item per non-empty page, in page order.
func convertPDF(data []byte) ([]Item, int, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, 0, fmt.Errorf("pdfcpu read: %w", err)
	}

	var items []Item
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		text := extractPDFPageText(ctx, pageNr)
		if text == "" {
			continue
		}
		items = append(items, Item{Text: text})
	}
	return items, ctx.PageCount, nil
}

// extractPDFPageText pulls the content stream of a page and decodes its
// text-showing operators.
func extractPDFPageText(ctx *pdfmodel.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return decodePDFContentStream(data)
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// decodePDFContentStream parses content-stream operators for shown text.
func decodePDFContentStream(data []byte) string {
	var sb strings.Builder

	appendStrings := func(line []byte, sep byte) {
		for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
			text := decodePDFString(m[1])
			if text != "" {
				if sep != 0 {
					sb.WriteByte(sep)
				}
				sb.WriteString(text)
			}
		}
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		switch {
		// Tj / TJ operators: (text) Tj, [(text) -100 (more)] TJ
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			appendStrings(line, 0)
		// ' operator: move to next line and show text.
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			appendStrings(line, '\n')
		// Td/TD text positioning: word boundary.
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		// T*: move to start of next line.
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return strings.TrimSpace(sb.String())
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			// Octal escape (e.g. \040 for space).
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// --- DOCX ---

// convertDocx parses word/document.xml: paragraphs become text items, w:tbl
// elements become table items, in document order.
func convertDocx(data []byte) ([]Item, error) {
	content, err := zipEntry(data, "word/document.xml")
	if err != nil {
		return nil, err
	}
	return parseWordXML(content)
}

// parseWordXML walks the WordprocessingML token stream. Table cells nest
// paragraphs, so paragraph text is only emitted as its own item outside
// tables.
func parseWordXML(content []byte) ([]Item, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))

	var (
		items      []Item
		paragraph  strings.Builder
		tableDepth int
		table      *Table
		row        []string
		cell       strings.Builder
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					table = &Table{}
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
				}
			case "t":
				var text string
				if err := decoder.DecodeElement(&text, &t); err == nil {
					if tableDepth > 0 {
						cell.WriteString(text)
					} else {
						paragraph.WriteString(text)
					}
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if tableDepth == 0 {
					if text := strings.TrimSpace(paragraph.String()); text != "" {
						items = append(items, Item{Text: text})
					}
					paragraph.Reset()
				} else {
					// Paragraph break inside a cell.
					cell.WriteByte('\n')
				}
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "tr":
				if tableDepth == 1 {
					appendTableRow(table, row)
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(table.Columns) > 0 {
					items = append(items, Item{Table: table})
					table = nil
				}
			}
		}
	}

	return items, nil
}

// appendTableRow treats the first row as the header, matching how the
// conversion result exposes extracted tables.
func appendTableRow(t *Table, row []string) {
	if t.Columns == nil {
		t.Columns = row
		return
	}
	t.Rows = append(t.Rows, row)
}

// --- PPTX ---

// convertPptx walks ppt/slides/slideN.xml in slide order. Text runs on a
// slide merge into one text item; a:tbl elements become table items. The
// slide count stands in for the page count.
func convertPptx(data []byte) ([]Item, int, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("open zip: %w", err)
	}

	type slide struct {
		nr   int
		file *zip.File
	}
	var slides []slide
	for _, f := range r.File {
		name := f.Name
		if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		nr, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{nr: nr, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].nr < slides[j].nr })

	var items []Item
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, 0, fmt.Errorf("open %s: %w", s.file.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", s.file.Name, err)
		}
		slideItems, err := parseSlideXML(content)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, slideItems...)
	}
	return items, len(slides), nil
}

// parseSlideXML extracts DrawingML text runs and tables from one slide.
func parseSlideXML(content []byte) ([]Item, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))

	var (
		items      []Item
		slideText  strings.Builder
		tableDepth int
		table      *Table
		row        []string
		cell       strings.Builder
	)

	flushText := func() {
		if text := strings.TrimSpace(slideText.String()); text != "" {
			items = append(items, Item{Text: text})
		}
		slideText.Reset()
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse slide: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					flushText()
					table = &Table{}
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
				}
			case "t":
				var text string
				if err := decoder.DecodeElement(&text, &t); err == nil {
					if tableDepth > 0 {
						cell.WriteString(text)
					} else {
						if slideText.Len() > 0 {
							slideText.WriteByte('\n')
						}
						slideText.WriteString(text)
					}
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "tr":
				if tableDepth == 1 {
					appendTableRow(table, row)
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(table.Columns) > 0 {
					items = append(items, Item{Table: table})
					table = nil
				}
			}
		}
	}

	flushText()
	return items, nil
}

// zipEntry reads one named file out of a zip archive held in memory.
func zipEntry(data []byte, name string) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
