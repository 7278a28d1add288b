// Package pipeline is the seam between the normalized record stream and the
// downstream filtering and deduplication stages. It defines the step
// contract those stages plug into, reader and writer steps for the
// compressed record format, and a small executor that chains steps with
// bounded parallelism.
//
// The filter and dedup heuristics themselves live outside this module; this
// package only moves records into and out of them.
package pipeline

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skovdata/corpuskit/docproc"
)

// Step transforms a record stream. Implementations must read in until it is
// closed or ctx is cancelled, send every surviving record to out, and never
// close out themselves; the executor owns channel lifecycles.
type Step interface {
	Name() string
	Run(ctx context.Context, in <-chan docproc.Record, out chan<- docproc.Record) error
}

// StepFunc adapts a function to the Step interface.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, in <-chan docproc.Record, out chan<- docproc.Record) error
}

func (s StepFunc) Name() string { return s.StepName }

func (s StepFunc) Run(ctx context.Context, in <-chan docproc.Record, out chan<- docproc.Record) error {
	return s.Fn(ctx, in, out)
}

// JSONLReader is a source step that reads gzip-compressed JSONL record
// files. Path may be a single file or a directory, in which case every
// .jsonl.gz file under it is read in lexical order.
type JSONLReader struct {
	Path string
}

func (r *JSONLReader) Name() string { return "jsonl_reader" }

func (r *JSONLReader) Run(ctx context.Context, _ <-chan docproc.Record, out chan<- docproc.Record) error {
	files, err := r.files()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no record files under %s", r.Path)
	}
	for _, f := range files {
		if err := r.readFile(ctx, f, out); err != nil {
			return err
		}
	}
	return nil
}

func (r *JSONLReader) files() ([]string, error) {
	info, err := os.Stat(r.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", r.Path, err)
	}
	if !info.IsDir() {
		return []string{r.Path}, nil
	}
	var files []string
	err = filepath.WalkDir(r.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".jsonl.gz") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", r.Path, err)
	}
	return files, nil
}

func (r *JSONLReader) readFile(ctx context.Context, path string, out chan<- docproc.Record) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gunzip %s: %w", path, err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec docproc.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("decode record in %s: %w", path, err)
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// JSONLWriter is a sink step that writes records as gzip-compressed JSONL.
type JSONLWriter struct {
	Path string
}

func (w *JSONLWriter) Name() string { return "jsonl_writer" }

func (w *JSONLWriter) Run(ctx context.Context, in <-chan docproc.Record, _ chan<- docproc.Record) error {
	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(w.Path)
	if err != nil {
		return fmt.Errorf("create %s: %w", w.Path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	for {
		select {
		case rec, ok := <-in:
			if !ok {
				if err := gz.Close(); err != nil {
					return fmt.Errorf("flush %s: %w", w.Path, err)
				}
				return f.Close()
			}
			line, err := rec.JSON()
			if err != nil {
				return fmt.Errorf("serialize record %s: %w", rec.ID, err)
			}
			if _, err := gz.Write([]byte(line + "\n")); err != nil {
				return fmt.Errorf("write %s: %w", w.Path, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats summarizes one executor run.
type Stats struct {
	Steps   int
	Records int
}

// Merge folds another run's stats into this one.
func (s *Stats) Merge(other Stats) {
	s.Steps += other.Steps
	s.Records += other.Records
}

// Executor runs an ordered step chain, each step on its own goroutine with
// buffered channels between them. Depends, when set, must finish before this
// executor starts; pipeline stages that consume another stage's on-disk
// output chain through it.
type Executor struct {
	Name    string
	Steps   []Step
	Workers int
	Depends *Executor

	once  sync.Once
	stats Stats
	err   error
	done  chan struct{}
}

// Run executes the chain, waiting on the dependency first. Safe to call
// more than once; later calls wait for and return the first run's result.
func (e *Executor) Run(ctx context.Context) (Stats, error) {
	e.once.Do(func() {
		e.done = make(chan struct{})
		defer close(e.done)
		e.stats, e.err = e.run(ctx)
	})
	if e.done != nil {
		<-e.done
	}
	return e.stats, e.err
}

func (e *Executor) run(ctx context.Context) (Stats, error) {
	if e.Depends != nil {
		if _, err := e.Depends.Run(ctx); err != nil {
			return Stats{}, fmt.Errorf("executor %s: dependency %s: %w", e.Name, e.Depends.Name, err)
		}
	}
	if len(e.Steps) == 0 {
		return Stats{}, fmt.Errorf("executor %s: no steps", e.Name)
	}

	buf := e.Workers
	if buf <= 0 {
		buf = 4
	}

	// Each step writes to its own out channel; a forwarder per gap counts
	// records and closes the next step's in when the producer is done. The
	// executor, not the steps, owns every close.
	ins := make([]chan docproc.Record, len(e.Steps)+1)
	outs := make([]chan docproc.Record, len(e.Steps))
	for i := range ins {
		ins[i] = make(chan docproc.Record, buf)
	}
	for i := range outs {
		outs[i] = make(chan docproc.Record, buf)
	}
	close(ins[0]) // source steps ignore their input

	counts := make([]int, len(e.Steps))
	var fwd sync.WaitGroup
	for i := range e.Steps {
		fwd.Add(1)
		go func(i int) {
			defer fwd.Done()
			defer close(ins[i+1])
			for rec := range outs[i] {
				counts[i]++
				ins[i+1] <- rec
			}
		}(i)
	}

	errs := make([]error, len(e.Steps))
	var wg sync.WaitGroup
	for i, step := range e.Steps {
		wg.Add(1)
		go func(i int, step Step) {
			defer wg.Done()
			errs[i] = step.Run(ctx, ins[i], outs[i])
			close(outs[i])
			// A step that errored out early leaves records in flight;
			// drain them so the upstream forwarder never blocks.
			for range ins[i] {
			}
		}(i, step)
	}

	// Drain the tail so a non-sink final step never blocks.
	for range ins[len(e.Steps)] {
	}
	wg.Wait()
	fwd.Wait()

	for i, err := range errs {
		if err != nil {
			return Stats{}, fmt.Errorf("executor %s: step %s: %w", e.Name, e.Steps[i].Name(), err)
		}
	}

	return Stats{Steps: len(e.Steps), Records: counts[0]}, nil
}
