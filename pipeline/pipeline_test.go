package pipeline

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skovdata/corpuskit/docproc"
)

// writeRecords creates a gzip JSONL fixture file.
func writeRecords(t *testing.T, path string, records []docproc.Record) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	for _, rec := range records {
		line, err := rec.JSON()
		if err != nil {
			t.Fatal(err)
		}
		gz.Write([]byte(line + "\n"))
	}
	gz.Close()
	f.Close()
}

func sampleRecords() []docproc.Record {
	return []docproc.Record{
		{Text: "first document", Source: "unit", ID: "unit-a.txt",
			Metadata: docproc.Metadata{Filename: "a.txt", Filetype: ".txt", FilePath: "a.txt"}},
		{Text: "second document", Source: "unit", ID: "unit-b.txt",
			Metadata: docproc.Metadata{Filename: "b.txt", Filetype: ".txt", FilePath: "b.txt"}},
	}
}

func TestExecutorReaderWriter(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl.gz")
	out := filepath.Join(dir, "out.jsonl.gz")
	writeRecords(t, in, sampleRecords())

	exec := &Executor{
		Name: "copy",
		Steps: []Step{
			&JSONLReader{Path: in},
			&JSONLWriter{Path: out},
		},
	}
	stats, err := exec.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 2 {
		t.Errorf("Records = %d, want 2", stats.Records)
	}

	reread := &Executor{
		Name:  "verify",
		Steps: []Step{&JSONLReader{Path: out}},
	}
	stats, err = reread.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 2 {
		t.Errorf("round trip lost records: %d", stats.Records)
	}
}

func TestExecutorFilterStep(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl.gz")
	out := filepath.Join(dir, "out.jsonl.gz")
	writeRecords(t, in, sampleRecords())

	drop := StepFunc{
		StepName: "drop_second",
		Fn: func(ctx context.Context, in <-chan docproc.Record, out chan<- docproc.Record) error {
			for rec := range in {
				if strings.HasPrefix(rec.Text, "second") {
					continue
				}
				out <- rec
			}
			return nil
		},
	}

	exec := &Executor{
		Name: "filter",
		Steps: []Step{
			&JSONLReader{Path: in},
			drop,
			&JSONLWriter{Path: out},
		},
	}
	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	verify := &Executor{Name: "verify", Steps: []Step{&JSONLReader{Path: out}}}
	stats, err := verify.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 1 {
		t.Errorf("filtered output has %d records, want 1", stats.Records)
	}
}

func TestExecutorDependencyRunsFirst(t *testing.T) {
	// WHAT: Running an executor first runs the executor it depends on, so
	// the intermediate file exists when the second one starts reading.
	// WHY: Stages are chained by files on disk; ordering is the only
	// contract between them.
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl.gz")
	mid := filepath.Join(dir, "mid.jsonl.gz")
	out := filepath.Join(dir, "out.jsonl.gz")
	writeRecords(t, in, sampleRecords())

	first := &Executor{
		Name:  "first",
		Steps: []Step{&JSONLReader{Path: in}, &JSONLWriter{Path: mid}},
	}
	second := &Executor{
		Name:    "second",
		Depends: first,
		Steps:   []Step{&JSONLReader{Path: mid}, &JSONLWriter{Path: out}},
	}

	stats, err := second.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 2 {
		t.Errorf("Records = %d, want 2", stats.Records)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("final output missing: %v", err)
	}
}

func TestExecutorRunIdempotent(t *testing.T) {
	// WHAT: A second Run returns the first run's stats without re-reading
	// the input.
	// WHY: Diamond dependency graphs reach the same executor twice; it
	// must execute once.
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl.gz")
	writeRecords(t, in, sampleRecords())

	exec := &Executor{Name: "once", Steps: []Step{&JSONLReader{Path: in}}}
	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	stats, err := exec.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 2 {
		t.Errorf("second Run returned stats %+v, want the first run's result", stats)
	}
}

func TestExecutorNoSteps(t *testing.T) {
	exec := &Executor{Name: "empty"}
	if _, err := exec.Run(context.Background()); err == nil {
		t.Fatal("expected error for executor without steps")
	}
}

func TestJSONLReaderDirectory(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, filepath.Join(dir, "a.jsonl.gz"), sampleRecords()[:1])
	writeRecords(t, filepath.Join(dir, "b.jsonl.gz"), sampleRecords()[1:])

	exec := &Executor{Name: "dir", Steps: []Step{&JSONLReader{Path: dir}}}
	stats, err := exec.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 2 {
		t.Errorf("Records = %d, want 2", stats.Records)
	}
}

func TestJSONLReaderMissingPath(t *testing.T) {
	exec := &Executor{
		Name:  "missing",
		Steps: []Step{&JSONLReader{Path: filepath.Join(t.TempDir(), "nope")}},
	}
	if _, err := exec.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing input path")
	}
}
