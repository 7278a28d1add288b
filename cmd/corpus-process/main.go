// Command corpus-process normalizes a delivery directory of mixed-format
// documents into a gzip-compressed JSONL record file.
//
// Usage:
//
//	corpus-process -input ./delivery -output ./out -source some-client
//	corpus-process -input ./delivery -output ./out/some-client.jsonl.gz -source some-client -workers 8
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/skovdata/corpuskit/docproc"
	"github.com/skovdata/corpuskit/runlog"
)

func main() {
	inputDir := flag.String("input", "", "directory of delivery files to process")
	outputPath := flag.String("output", "", "output directory, or a full path ending in .jsonl.gz")
	source := flag.String("source", "", "source label prefixed to every record id")
	workers := flag.Int("workers", 4, "number of concurrent extraction workers")
	textPath := flag.String("text-path", "text", "comma-separated key path for JSON inputs")
	textFormat := flag.String("text-format", "txt", "formatter for JSON text values: txt or html")
	ledgerPath := flag.String("ledger", "", "optional SQLite run-ledger path")
	progress := flag.Bool("progress", true, "render a progress bar")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, options{
		inputDir:   *inputDir,
		outputPath: *outputPath,
		source:     *source,
		workers:    *workers,
		textPath:   *textPath,
		textFormat: *textFormat,
		ledgerPath: *ledgerPath,
		progress:   *progress,
	}); err != nil {
		logger.Error("corpus-process: fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	inputDir   string
	outputPath string
	source     string
	workers    int
	textPath   string
	textFormat string
	ledgerPath string
	progress   bool
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	if opts.inputDir == "" || opts.outputPath == "" || opts.source == "" {
		return fmt.Errorf("-input, -output and -source are required")
	}

	paths, err := collectFiles(opts.inputDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files found under %s", opts.inputDir)
	}
	logger.Info("collected delivery files", "dir", opts.inputDir, "count", len(paths))

	proc := docproc.New(docproc.Config{
		TextPath:   opts.textPath,
		TextFormat: opts.textFormat,
		Logger:     logger,
	})

	batch := docproc.BatchOptions{
		OutputPath: opts.outputPath,
		Source:     opts.source,
		Workers:    opts.workers,
		Progress:   opts.progress,
	}
	if opts.ledgerPath != "" {
		ledger, err := runlog.Open(opts.ledgerPath)
		if err != nil {
			return err
		}
		defer ledger.Close()
		batch.Journal = ledger
	}

	stats, err := proc.ProcessFiles(ctx, paths, batch)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "done: %d files (%d skipped), %d records\n",
		stats.Files, stats.Skipped, stats.Records)
	return nil
}

// collectFiles gathers every regular file under dir, recursively.
func collectFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return paths, nil
}
