package docproc

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeJSON(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	os.WriteFile(path, []byte(content), 0644)
	return path
}

func TestProcessJSONSimpleKey(t *testing.T) {
	path := writeJSON(t, `{"text": "Hello world"}`)

	proc := New(Config{})
	records, err := proc.Process(context.Background(), File(path), "unit")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Text != "Hello world" {
		t.Errorf("Text = %q, want %q", records[0].Text, "Hello world")
	}
}

func TestProcessJSONMissingKey(t *testing.T) {
	path := writeJSON(t, `{"text": "Hello world"}`)

	var buf bytes.Buffer
	proc := New(Config{TextPath: "missing", Logger: testLogger(&buf)})
	records, err := proc.Process(context.Background(), File(path), "unit")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected 0 records, got %d", len(records))
	}
	if !strings.Contains(buf.String(), "Key 'missing' not found") {
		t.Errorf("expected missing-key warning, got log: %s", buf.String())
	}
}

func TestProcessJSONNestedPath(t *testing.T) {
	path := writeJSON(t, `{"content": {"body": "Nested text"}}`)

	proc := New(Config{TextPath: "content,body"})
	records, err := proc.Process(context.Background(), File(path), "unit")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Text != "Nested text" {
		t.Errorf("Text = %q, want %q", records[0].Text, "Nested text")
	}
}

func TestProcessJSONListFansOut(t *testing.T) {
	path := writeJSON(t, `{"posts": [{"text": "first"}, {"text": "second"}]}`)

	proc := New(Config{TextPath: "posts,text"})
	records, err := proc.Process(context.Background(), File(path), "unit")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Text != "first" || records[1].Text != "second" {
		t.Errorf("got texts %q, %q", records[0].Text, records[1].Text)
	}
	// Fan-out records share the same id; both derive from one file.
	if records[0].ID != records[1].ID {
		t.Errorf("fan-out ids differ: %q vs %q", records[0].ID, records[1].ID)
	}
}

func TestProcessJSONScalarValues(t *testing.T) {
	tests := []struct {
		doc  string
		want string
	}{
		{`{"text": 42}`, "42"},
		{`{"text": 4.5}`, "4.5"},
		{`{"text": true}`, "true"},
		{`{"text": null}`, "null"},
	}
	for _, tt := range tests {
		path := writeJSON(t, tt.doc)
		proc := New(Config{})
		records, err := proc.Process(context.Background(), File(path), "unit")
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 1 {
			t.Fatalf("doc %s: expected 1 record, got %d", tt.doc, len(records))
		}
		if records[0].Text != tt.want {
			t.Errorf("doc %s: Text = %q, want %q", tt.doc, records[0].Text, tt.want)
		}
	}
}

func TestProcessJSONObjectValueReserialized(t *testing.T) {
	path := writeJSON(t, `{"text": {"a": 1}}`)

	proc := New(Config{})
	records, err := proc.Process(context.Background(), File(path), "unit")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if !strings.Contains(records[0].Text, `"a"`) {
		t.Errorf("expected re-serialized object, got %q", records[0].Text)
	}
}

func TestProcessJSONHTMLFormatShortFragments(t *testing.T) {
	// WHAT: html-formatted fragments with no extractable content are
	// dropped one by one; the file still succeeds with zero records.
	// WHY: One bad fragment must not abort the rest of the document.
	path := writeJSON(t, `{"text": ["hi", "ok"]}`)

	var buf bytes.Buffer
	proc := New(Config{TextFormat: "html", Logger: testLogger(&buf)})
	records, err := proc.Process(context.Background(), File(path), "unit")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected 0 records for content-free fragments, got %d", len(records))
	}
	if !strings.Contains(buf.String(), "no extractable content") {
		t.Errorf("expected per-fragment skip warnings, got log: %s", buf.String())
	}
	if strings.Contains(buf.String(), "failed to process file") {
		t.Errorf("fragment skips must not fail the file: %s", buf.String())
	}
}

func TestProcessJSONUnknownFormatFallsBack(t *testing.T) {
	path := writeJSON(t, `{"text": "Plain content"}`)

	var buf bytes.Buffer
	proc := New(Config{TextFormat: "xml", Logger: testLogger(&buf)})
	records, err := proc.Process(context.Background(), File(path), "unit")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Text != "Plain content" {
		t.Errorf("Text = %q, want plain passthrough", records[0].Text)
	}
	if !strings.Contains(buf.String(), "is not supported") {
		t.Errorf("expected unsupported-format warning, got log: %s", buf.String())
	}
}
