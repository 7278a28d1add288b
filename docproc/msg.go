package docproc

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
)

// MAPI property streams carrying the message body inside the OLE compound
// file: PidTagBody as UTF-16LE (001F) or as the codepage string (001E).
const (
	msgBodyUnicode = "__substg1.0_1000001F"
	msgBodyANSI    = "__substg1.0_1000001E"
)

var (
	bracketedAnnotation = regexp.MustCompile(`\[.+?\]`)
	httpLink            = regexp.MustCompile(`https?://[^>]+`)
)

// processMsg extracts the body of an Outlook .msg file, strips reply
// annotations and carriage returns, and unmasks safe-link wrapped URLs.
func (p *Processor) processMsg(in Input, source string) ([]Record, error) {
	data, err := readAll(in)
	if err != nil {
		return nil, err
	}
	body, err := readMsgBody(data)
	if err != nil {
		return nil, fmt.Errorf("msg %s: %w", in.Path(), err)
	}
	text := cleanMsgText(body)
	meta := buildMetadata(in)
	return []Record{newRecord(text, source, meta)}, nil
}

// readMsgBody walks the compound-file directory for the body property
// stream, preferring the UTF-16 variant.
func readMsgBody(data []byte) (string, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open compound file: %w", err)
	}

	var ansi string
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		switch entry.Name {
		case msgBodyUnicode:
			raw, err := io.ReadAll(doc)
			if err != nil {
				return "", fmt.Errorf("read body stream: %w", err)
			}
			return decodeUTF16LE(raw), nil
		case msgBodyANSI:
			raw, err := io.ReadAll(doc)
			if err != nil {
				return "", fmt.Errorf("read body stream: %w", err)
			}
			ansi = string(raw)
		}
	}
	if ansi == "" {
		return "", fmt.Errorf("no body property stream found")
	}
	return ansi, nil
}

func decodeUTF16LE(raw []byte) string {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])|uint16(raw[i+1])<<8)
	}
	return strings.TrimRight(string(utf16.Decode(units)), "\x00")
}

// cleanMsgText normalizes an extracted message body: blank-line collapsing,
// bracketed-annotation stripping, carriage-return removal, and safe-link
// unmasking. A URL is replaced only when decoding yields a target; otherwise
// the original stays.
func cleanMsgText(text string) string {
	text = bracketedAnnotation.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r", "")
	text = collapseNewlines(text)
	return httpLink.ReplaceAllStringFunc(text, func(link string) string {
		if decoded, ok := decodeSafeLink(link); ok {
			return decoded
		}
		return link
	})
}

// decodeSafeLink tries to undo a redirect/safe-link wrapper by pulling the
// embedded target out of the query string. It only trusts links carrying at
// least two key=value parameters, one of which is "url".
func decodeSafeLink(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil || u.RawQuery == "" {
		return "", false
	}
	params := strings.Split(u.RawQuery, "&")
	if len(params) < 2 {
		return "", false
	}
	var encoded string
	for _, param := range params {
		key, value, found := strings.Cut(param, "=")
		if !found {
			return "", false
		}
		if key == "url" {
			encoded = value
		}
	}
	if encoded == "" {
		return "", false
	}
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", false
	}
	return decoded, true
}
