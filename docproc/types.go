package docproc

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a supported input document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatDocx Format = "docx"
	FormatEPUB Format = "epub"
	FormatTXT  Format = "txt"
	FormatPptx Format = "pptx"
	FormatMD   Format = "md"
	FormatMSG  Format = "msg"
	FormatJSON Format = "json"
	FormatDoc  Format = "doc"
)

// Input is one unit of work: either a file on disk or an in-memory stream
// carrying a declared name. The processor only reads inputs; it closes the
// readers it opens itself.
type Input interface {
	// Name returns the base name of the input (declared name for streams).
	Name() string
	// Path returns the string form of the original path, or the declared
	// name when no filesystem path exists.
	Path() string
	// Suffix returns the lowercased extension including the dot.
	Suffix() string
	// Size returns the byte size, or 0 when it cannot be known without
	// consuming the input.
	Size() int64
	// Open returns a reader over the input content.
	Open() (io.ReadCloser, error)
}

// FileInput is an Input backed by a filesystem path.
type FileInput struct {
	FilePath string
}

// File wraps a filesystem path as an Input.
func File(path string) FileInput { return FileInput{FilePath: path} }

func (f FileInput) Name() string { return filepath.Base(f.FilePath) }
func (f FileInput) Path() string { return f.FilePath }

func (f FileInput) Suffix() string {
	return strings.ToLower(filepath.Ext(f.FilePath))
}

func (f FileInput) Size() int64 {
	info, err := os.Stat(f.FilePath)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (f FileInput) Open() (io.ReadCloser, error) {
	return os.Open(f.FilePath)
}

// StreamInput is an Input backed by pre-loaded bytes, e.g. a file pulled out
// of an archive or fetched over the network. The declared name carries the
// format suffix.
type StreamInput struct {
	StreamName string
	Data       []byte
}

// Stream wraps in-memory bytes plus a declared name as an Input.
func Stream(name string, data []byte) StreamInput {
	return StreamInput{StreamName: name, Data: data}
}

func (s StreamInput) Name() string { return s.StreamName }
func (s StreamInput) Path() string { return s.StreamName }

func (s StreamInput) Suffix() string {
	name := s.StreamName
	if i := strings.LastIndex(name, "."); i >= 0 {
		return "." + strings.ToLower(name[i+1:])
	}
	return ""
}

// Size reports 0: the stream length is not a property of the original file.
func (s StreamInput) Size() int64 { return 0 }

func (s StreamInput) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

// Metadata is the fixed five-key descriptor attached to every record.
type Metadata struct {
	Filename  string `json:"filename"`
	Filetype  string `json:"filetype"`
	Filesize  int64  `json:"filesize"`
	PageCount int    `json:"page_count"`
	FilePath  string `json:"file_path"`
}

// buildMetadata derives the metadata envelope from an input unit.
// PageCount stays 0 here; the structured-document extractor overrides it
// from the conversion result when the format has a page concept.
func buildMetadata(in Input) Metadata {
	return Metadata{
		Filename:  in.Name(),
		Filetype:  in.Suffix(),
		Filesize:  in.Size(),
		PageCount: 0,
		FilePath:  in.Path(),
	}
}

// Record is the canonical output unit: one line of the JSONL sink.
type Record struct {
	Text     string   `json:"text"`
	Source   string   `json:"source"`
	Metadata Metadata `json:"metadata"`
	ID       string   `json:"id"`
}

// newRecord assembles a record. The id is the source joined to the base
// filename with a dash; files sharing a base name under one source collide,
// consumers needing uniqueness key on metadata.file_path instead.
func newRecord(text, source string, meta Metadata) Record {
	return Record{
		Text:     text,
		Source:   source,
		Metadata: meta,
		ID:       source + "-" + meta.Filename,
	}
}

// JSON serializes the record as a single JSONL line without a trailing
// newline. HTML escaping is disabled so text passes through byte-for-byte.
func (r Record) JSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
