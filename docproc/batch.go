package docproc

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// RunEntry is one journal line describing the outcome of a single file.
type RunEntry struct {
	File     string
	Source   string
	Status   string
	Records  int
	Error    string
	Duration time.Duration
}

// Journal persists per-file outcomes of a batch run.
type Journal interface {
	Append(ctx context.Context, e RunEntry) error
}

// BatchOptions configures a batch run over a set of files.
type BatchOptions struct {
	// OutputPath is either a full sink path ending in .jsonl.gz, used
	// verbatim, or a directory under which <source>.jsonl.gz is created.
	OutputPath string
	// Source labels the delivery; it prefixes every record ID.
	Source string
	// OutputSuffix is appended to Source when OutputPath is a directory.
	// Defaults to ".jsonl.gz".
	OutputSuffix string
	// Workers is the number of concurrent extractors. Defaults to 4.
	Workers int
	// Progress renders a terminal progress bar when true.
	Progress bool
	// Journal, when set, records each file's outcome.
	Journal Journal
}

func (o *BatchOptions) defaults() {
	if o.OutputSuffix == "" {
		o.OutputSuffix = ".jsonl.gz"
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
}

// BatchStats summarizes a completed batch run.
type BatchStats struct {
	Files   int
	Skipped int
	Records int
}

// resolveOutputPath treats paths whose combined extension is .jsonl.gz as
// the sink file itself; anything else is a directory to place the sink in.
func resolveOutputPath(opts BatchOptions) string {
	if strings.HasSuffix(strings.ToLower(opts.OutputPath), ".jsonl.gz") {
		return opts.OutputPath
	}
	return filepath.Join(opts.OutputPath, opts.Source+opts.OutputSuffix)
}

// ProcessFiles runs every path through the processor on a worker pool and
// streams the resulting records into a single gzip-compressed JSONL sink.
// Files that fail to decode are skipped and journaled; only sink errors
// abort the run.
func (p *Processor) ProcessFiles(ctx context.Context, paths []string, opts BatchOptions) (BatchStats, error) {
	opts.defaults()

	outPath := resolveOutputPath(opts)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return BatchStats{}, fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return BatchStats{}, fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)

	var progress *mpb.Progress
	var bar *mpb.Bar
	if opts.Progress {
		progress = mpb.New(mpb.WithWidth(80))
		bar = progress.AddBar(int64(len(paths)),
			mpb.PrependDecorators(
				decor.Name("Processing files: "),
				decor.Percentage(decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done"),
			),
		)
	}

	type result struct {
		path    string
		records []Record
	}

	jobs := make(chan string, opts.Workers*2)
	results := make(chan result, opts.Workers*2)

	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				start := time.Now()
				records, err := p.Process(ctx, File(path), opts.Source)
				p.journal(ctx, opts.Journal, path, opts.Source, records, err, time.Since(start))
				if bar != nil {
					bar.Increment()
				}
				if err != nil {
					// Context cancellation; the writer drains what
					// already completed.
					continue
				}
				results <- result{path: path, records: records}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, path := range paths {
			select {
			case jobs <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single writer keeps the sink line-atomic.
	var stats BatchStats
	var sinkErr error
	for res := range results {
		stats.Files++
		if len(res.records) == 0 {
			stats.Skipped++
			continue
		}
		if sinkErr != nil {
			continue
		}
		for _, rec := range res.records {
			line, err := rec.JSON()
			if err != nil {
				p.logger.Error("failed to serialize record",
					"file", res.path, "id", rec.ID, "error", err)
				continue
			}
			if _, err := gz.Write([]byte(line + "\n")); err != nil {
				sinkErr = fmt.Errorf("write output: %w", err)
				break
			}
			stats.Records++
		}
	}

	if progress != nil {
		progress.Wait()
	}
	if sinkErr != nil {
		return stats, sinkErr
	}
	if err := gz.Close(); err != nil {
		return stats, fmt.Errorf("flush output: %w", err)
	}
	if err := out.Close(); err != nil {
		return stats, fmt.Errorf("close output: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	p.logger.Info("batch complete",
		"source", opts.Source, "output", outPath,
		"files", stats.Files, "skipped", stats.Skipped, "records", stats.Records)
	return stats, nil
}

// journal writes one run entry, logging rather than failing on journal
// errors.
func (p *Processor) journal(ctx context.Context, j Journal, path, source string, records []Record, procErr error, dur time.Duration) {
	if j == nil {
		return
	}
	entry := RunEntry{
		File:     path,
		Source:   source,
		Records:  len(records),
		Duration: dur,
	}
	switch {
	case procErr != nil:
		entry.Status = "failed"
		entry.Error = procErr.Error()
	case len(records) == 0:
		entry.Status = "skipped"
	default:
		entry.Status = "processed"
	}
	if err := j.Append(ctx, entry); err != nil {
		p.logger.Warn("failed to journal file outcome", "file", path, "error", err)
	}
}
