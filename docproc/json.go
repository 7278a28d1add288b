package docproc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// scriptTag is appended to HTML fragments before extraction; trafilatura's
// content-type heuristics reject fragments without any markup structure.
const scriptTag = "<script></script>"

// processJSON extracts text fragments from a JSON document by walking a
// comma-separated key path. Lists fan out: one input file can yield many
// records, all sharing the file-level metadata. A path that matches nothing
// yields zero records.
func (p *Processor) processJSON(in Input, source string) ([]Record, error) {
	data, err := readAll(in)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var document any
	if err := dec.Decode(&document); err != nil {
		return nil, fmt.Errorf("parse JSON %s: %w", in.Path(), err)
	}

	keys := strings.Split(p.cfg.TextPath, ",")
	texts := p.extractJSONText(document, keys)

	format := p.cfg.TextFormat
	if format != "txt" && format != "html" {
		p.logger.Warn(fmt.Sprintf("Text format '%s' is not supported. Defaulting to plain text.", format))
		format = "txt"
	}

	meta := buildMetadata(in)
	records := make([]Record, 0, len(texts))
	for _, text := range texts {
		if format == "html" {
			// A fragment that fails extraction is dropped on its own;
			// the remaining fragments of the file still go through.
			extracted, err := extractHTMLText([]byte(text + scriptTag))
			if err != nil {
				p.logger.Warn("skipping HTML fragment",
					"file", in.Path(), "source", source, "error", err)
				continue
			}
			if extracted == "" {
				p.logger.Warn("no extractable content in HTML fragment", "file", in.Path(), "source", source)
				continue
			}
			text = extracted
		}
		records = append(records, newRecord(text, source, meta))
	}
	return records, nil
}

// extractJSONText recursively traverses the decoded document along keys.
// Exhausted keys terminate the walk: strings are taken as-is, lists are
// flattened, objects are re-serialized, scalars are stringified.
func (p *Processor) extractJSONText(data any, keys []string) []string {
	if len(keys) == 0 {
		switch v := data.(type) {
		case string:
			return []string{v}
		case []any:
			var texts []string
			for _, item := range v {
				texts = append(texts, p.extractJSONText(item, keys)...)
			}
			return texts
		case map[string]any:
			out, err := json.Marshal(v)
			if err != nil {
				return nil
			}
			return []string{string(out)}
		case json.Number:
			return []string{v.String()}
		case bool:
			return []string{fmt.Sprintf("%t", v)}
		case nil:
			return []string{"null"}
		default:
			return []string{fmt.Sprintf("%v", v)}
		}
	}

	key, remaining := keys[0], keys[1:]

	if m, ok := data.(map[string]any); ok {
		if value, found := m[key]; found {
			return p.extractJSONText(value, remaining)
		}
	} else if list, ok := data.([]any); ok {
		// Apply the same key path to every element.
		var texts []string
		for _, item := range list {
			texts = append(texts, p.extractJSONText(item, keys)...)
		}
		return texts
	}

	p.logger.Warn(fmt.Sprintf("Key '%s' not found in JSON document.", key))
	return nil
}
