// Package docproc normalizes heterogeneous document deliveries into the
// line-delimited record format the corpus pipeline consumes.
//
// Supported formats:
//   - .pdf/.docx/.pptx: structured conversion (reading-order text and tables)
//   - .html: boilerplate-removal extraction via trafilatura
//   - .txt/.md: plain text passthrough
//   - .epub: archive traversal in spine order
//   - .doc: legacy Word via docconv
//   - .msg: Outlook message body with safe-link unmasking
//   - .json: configurable key-path traversal, one record per hit
//
// Every extractor absorbs its own failures: a file that cannot be decoded is
// logged and skipped, never failing the batch around it.
//
// Usage:
//
//	proc := docproc.New(docproc.Config{})
//	records, _ := proc.Process(ctx, docproc.File("report.pdf"), "some-client")
package docproc

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Processor dispatches inputs to format-specific extractors and assembles
// normalized records. Safe for concurrent use.
type Processor struct {
	cfg       Config
	logger    *slog.Logger
	conv      *Converter
	mdConv    *converter.Converter
	sanitizer *bluemonday.Policy
}

// New creates a Processor with the given configuration.
func New(cfg Config) *Processor {
	cfg.defaults()
	return &Processor{
		cfg:    cfg,
		logger: cfg.Logger,
		conv:   cfg.Converter,
		mdConv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Detect returns the document format for an input suffix.
func Detect(suffix string) (Format, bool) {
	switch suffix {
	case ".pdf":
		return FormatPDF, true
	case ".html":
		return FormatHTML, true
	case ".docx":
		return FormatDocx, true
	case ".epub":
		return FormatEPUB, true
	case ".txt":
		return FormatTXT, true
	case ".pptx":
		return FormatPptx, true
	case ".md":
		return FormatMD, true
	case ".msg":
		return FormatMSG, true
	case ".json":
		return FormatJSON, true
	case ".doc":
		return FormatDoc, true
	default:
		return "", false
	}
}

// Process routes one input to the matching extractor and returns the
// resulting records. A nil slice means the file was skipped (unsupported
// suffix, oversized input, or a decoding failure); skips are logged and
// never fail the caller.
func (p *Processor) Process(ctx context.Context, in Input, source string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, ok := Detect(in.Suffix())
	if !ok {
		p.logger.Warn("Unsupported file type: " + in.Suffix() + " - for file: " + in.Path())
		return nil, nil
	}

	if size := in.Size(); size > p.cfg.MaxFileSize {
		p.logger.Error("file too large, skipping",
			"file", in.Path(), "source", source,
			"size", size, "max", p.cfg.MaxFileSize)
		return nil, nil
	}

	var (
		records []Record
		err     error
	)
	switch format {
	case FormatPDF, FormatDocx, FormatPptx:
		records, err = p.processDocument(ctx, in, source)
	case FormatHTML:
		records, err = p.processHTML(in, source)
	case FormatTXT, FormatMD:
		records, err = p.processText(in, source)
	case FormatEPUB:
		records, err = p.processEPUB(in, source)
	case FormatDoc:
		records, err = p.processWordLegacy(in, source)
	case FormatMSG:
		records, err = p.processMsg(in, source)
	case FormatJSON:
		records, err = p.processJSON(in, source)
	}
	if err != nil {
		p.logger.Error("failed to process file",
			"file", in.Path(), "source", source,
			"format", string(format), "error", err)
		return nil, nil
	}
	return records, nil
}

var newlineRuns = regexp.MustCompile(`(\n)+`)

// collapseNewlines squeezes runs of newlines down to a single one. Every
// text-bearing extractor applies this before assembling its record.
func collapseNewlines(text string) string {
	return newlineRuns.ReplaceAllString(text, "\n")
}
