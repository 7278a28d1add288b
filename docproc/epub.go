package docproc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// processEPUB walks an EPUB archive in spine order and converts each chapter
// to markdown. Chapters that fail to parse are skipped; the book fails only
// when the container itself is unreadable.
func (p *Processor) processEPUB(in Input, source string) ([]Record, error) {
	data, err := readAll(in)
	if err != nil {
		return nil, err
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}

	chapters := epubChapters(r)
	if len(chapters) == 0 {
		p.logger.Warn("no chapters found in EPUB", "file", in.Path(), "source", source)
		return nil, nil
	}

	var sb strings.Builder
	for _, f := range chapters {
		rc, err := f.Open()
		if err != nil {
			p.logger.Warn("skipping unreadable chapter",
				"file", in.Path(), "chapter", f.Name, "error", err)
			continue
		}
		raw := new(bytes.Buffer)
		_, err = raw.ReadFrom(rc)
		rc.Close()
		if err != nil {
			p.logger.Warn("skipping unreadable chapter",
				"file", in.Path(), "chapter", f.Name, "error", err)
			continue
		}

		body := chapterBody(raw.Bytes())
		clean := p.sanitizer.SanitizeBytes(body)
		md, err := p.mdConv.ConvertString(string(clean))
		if err != nil {
			p.logger.Warn("skipping unconvertible chapter",
				"file", in.Path(), "chapter", f.Name, "error", err)
			continue
		}
		if md = strings.TrimSpace(md); md != "" {
			sb.WriteString(md)
			sb.WriteString("\n\n")
		}
	}

	text := collapseNewlines(sb.String())
	if strings.TrimSpace(text) == "" {
		p.logger.Warn("no extractable content in EPUB file", "file", in.Path(), "source", source)
		return nil, nil
	}
	return []Record{newRecord(text, source, buildMetadata(in))}, nil
}

// epubChapters resolves the reading order from the OPF spine. When the
// package metadata is missing or broken it falls back to the archive's own
// ordering of content documents.
func epubChapters(r *zip.Reader) []*zip.File {
	byName := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		byName[f.Name] = f
	}

	if opfName := containerRootfile(byName); opfName != "" {
		if files := spineFiles(byName, opfName); len(files) > 0 {
			return files
		}
	}

	// Fallback: every XHTML-ish entry in archive order.
	var files []*zip.File
	for _, f := range r.File {
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".xhtml", ".html", ".htm":
			files = append(files, f)
		}
	}
	return files
}

// containerRootfile reads META-INF/container.xml and returns the OPF path.
func containerRootfile(byName map[string]*zip.File) string {
	f, ok := byName["META-INF/container.xml"]
	if !ok {
		return ""
	}
	data, err := readZipFile(f)
	if err != nil {
		return ""
	}
	var container struct {
		Rootfiles []struct {
			FullPath string `xml:"full-path,attr"`
		} `xml:"rootfiles>rootfile"`
	}
	if err := xml.Unmarshal(data, &container); err != nil || len(container.Rootfiles) == 0 {
		return ""
	}
	return container.Rootfiles[0].FullPath
}

// spineFiles maps the OPF spine's idrefs through the manifest to archive
// entries. Hrefs are relative to the OPF's own directory.
func spineFiles(byName map[string]*zip.File, opfName string) []*zip.File {
	f, ok := byName[opfName]
	if !ok {
		return nil
	}
	data, err := readZipFile(f)
	if err != nil {
		return nil
	}

	var pkg struct {
		Manifest []struct {
			ID   string `xml:"id,attr"`
			Href string `xml:"href,attr"`
		} `xml:"manifest>item"`
		Spine []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"spine>itemref"`
	}
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil
	}

	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		hrefs[item.ID] = item.Href
	}

	base := path.Dir(opfName)
	var files []*zip.File
	for _, ref := range pkg.Spine {
		href, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		name := href
		if base != "." {
			name = path.Join(base, href)
		}
		if f, ok := byName[name]; ok {
			files = append(files, f)
		}
	}
	return files
}

// chapterBody narrows a chapter document to its <body> subtree so headers,
// metadata, and stylesheets never reach the markdown converter. On parse
// failure the raw bytes pass through unchanged.
func chapterBody(raw []byte) []byte {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	body := findElement(doc, "body")
	if body == nil {
		return raw
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, body); err != nil {
		return raw
	}
	return buf.Bytes()
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
