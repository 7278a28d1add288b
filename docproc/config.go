package docproc

import "log/slog"

// Config configures the document processor.
type Config struct {
	// TextPath is the comma-separated key path used by the JSON extractor
	// (default: "text").
	TextPath string `json:"text_path" yaml:"text_path"`

	// TextFormat tells the JSON extractor how extracted fragments are
	// encoded: "txt" or "html" (default: "txt").
	TextFormat string `json:"text_format" yaml:"text_format"`

	// MaxFileSize is the maximum file size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Converter handles PDF/DOCX/PPTX conversion. Supplying one amortizes
	// setup cost across files; when nil a fresh engine is built.
	Converter *Converter `json:"-" yaml:"-"`

	// Logger for warnings and per-file errors.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.TextPath == "" {
		c.TextPath = "text"
	}
	if c.TextFormat == "" {
		c.TextFormat = "txt"
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.Converter == nil {
		c.Converter = NewConverter()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
