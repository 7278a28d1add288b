package docproc

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"
	"unicode/utf16"
)

func TestDecodeSafeLink(t *testing.T) {
	// WHAT: Only multi-parameter URLs carrying a url= query value are
	// rewritten to their target.
	// WHY: Over-eager unmasking would rewrite ordinary links that merely
	// have query strings.
	tests := []struct {
		link    string
		want    string
		decoded bool
	}{
		{
			link:    "https://safelink.example.com/?url=https%3A%2F%2Fwww.example.org%2Fpage&data=05",
			want:    "https://www.example.org/page",
			decoded: true,
		},
		{
			// A single parameter is not a wrapper.
			link:    "https://example.com/?q=search",
			decoded: false,
		},
		{
			// No query string at all.
			link:    "https://example.com/page",
			decoded: false,
		},
		{
			// Parameters without '=' disqualify the whole link.
			link:    "https://example.com/?url=https%3A%2F%2Fa.example&flag",
			decoded: false,
		},
		{
			// Two parameters but none named url.
			link:    "https://example.com/?a=1&b=2",
			decoded: false,
		},
	}

	for _, tt := range tests {
		got, ok := decodeSafeLink(tt.link)
		if ok != tt.decoded {
			t.Errorf("decodeSafeLink(%q) decoded = %v, want %v", tt.link, ok, tt.decoded)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("decodeSafeLink(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

func TestCleanMsgText(t *testing.T) {
	in := "Hello\r\n\r\n[cid:image001.png]\r\nSee <https://safelink.example.com/?url=https%3A%2F%2Fwww.example.org&data=05>"
	got := cleanMsgText(in)

	if strings.Contains(got, "[cid:") {
		t.Errorf("bracketed annotation must be stripped: %q", got)
	}
	if strings.Contains(got, "\r") {
		t.Errorf("carriage returns must be removed: %q", got)
	}
	if !strings.Contains(got, "https://www.example.org") {
		t.Errorf("safe link must be unmasked: %q", got)
	}
	if strings.Contains(got, "safelink.example.com") {
		t.Errorf("wrapper host must not survive: %q", got)
	}
	if strings.Contains(got, "\n\n") {
		t.Errorf("blank lines must be collapsed: %q", got)
	}
}

func TestCleanMsgTextKeepsPlainLinks(t *testing.T) {
	in := "Visit <https://example.com/page> for details"
	got := cleanMsgText(in)
	if !strings.Contains(got, "https://example.com/page") {
		t.Errorf("plain link must survive untouched: %q", got)
	}
}

func TestDecodeUTF16LE(t *testing.T) {
	// "Hi" in UTF-16LE with a trailing NUL.
	raw := []byte{'H', 0, 'i', 0, 0, 0}
	if got := decodeUTF16LE(raw); got != "Hi" {
		t.Errorf("decodeUTF16LE = %q, want %q", got, "Hi")
	}
}

func TestReadMsgBody(t *testing.T) {
	// WHAT: The UTF-16 body property stream of a compound file is found
	// and decoded.
	// WHY: Locating the right MAPI stream is the entire format handling;
	// the pure text cleanup helpers cannot cover it.
	data := buildMsgFixture("Hello from Outlook")

	body, err := readMsgBody(data)
	if err != nil {
		t.Fatal(err)
	}
	if body != "Hello from Outlook" {
		t.Errorf("body = %q, want %q", body, "Hello from Outlook")
	}
}

func TestProcessMsgEndToEnd(t *testing.T) {
	data := buildMsgFixture("Meeting moved to Tuesday.\r\n[cid:logo.png]\r\nRegards")

	proc := New(Config{})
	records, err := proc.Process(context.Background(), Stream("mail.msg", data), "unit")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if !strings.Contains(rec.Text, "Meeting moved to Tuesday.") {
		t.Errorf("Text = %q", rec.Text)
	}
	if strings.Contains(rec.Text, "[cid:") || strings.Contains(rec.Text, "\r") {
		t.Errorf("cleanup not applied: %q", rec.Text)
	}
	if rec.Metadata.Filetype != ".msg" {
		t.Errorf("Filetype = %q", rec.Metadata.Filetype)
	}
}

// --- MSG test helpers ---

const (
	cfbEndOfChain = 0xFFFFFFFE
	cfbFreeSect   = 0xFFFFFFFF
	cfbFatSect    = 0xFFFFFFFD
)

// buildMsgFixture assembles a minimal OLE compound file holding one
// UTF-16LE body property stream. Layout: sector 0 FAT, sector 1 directory,
// sectors 2-9 the body stream (4096 bytes, at the mini-stream cutoff so it
// lives in regular sectors).
func buildMsgFixture(body string) []byte {
	const sectorSize = 512
	const streamSize = 4096

	var buf bytes.Buffer
	le := binary.LittleEndian

	// Header.
	buf.Write([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	buf.Write(make([]byte, 16))                    // CLSID
	binary.Write(&buf, le, uint16(0x003E))         // minor version
	binary.Write(&buf, le, uint16(0x0003))         // major version
	binary.Write(&buf, le, uint16(0xFFFE))         // byte order
	binary.Write(&buf, le, uint16(9))              // sector shift
	binary.Write(&buf, le, uint16(6))              // mini sector shift
	buf.Write(make([]byte, 6))                     // reserved
	binary.Write(&buf, le, uint32(0))              // directory sector count (v3)
	binary.Write(&buf, le, uint32(1))              // FAT sector count
	binary.Write(&buf, le, uint32(1))              // first directory sector
	binary.Write(&buf, le, uint32(0))              // transaction signature
	binary.Write(&buf, le, uint32(streamSize))     // mini stream cutoff
	binary.Write(&buf, le, uint32(cfbEndOfChain))  // first miniFAT sector
	binary.Write(&buf, le, uint32(0))              // miniFAT sector count
	binary.Write(&buf, le, uint32(cfbEndOfChain))  // first DIFAT sector
	binary.Write(&buf, le, uint32(0))              // DIFAT sector count
	binary.Write(&buf, le, uint32(0))              // DIFAT[0]: FAT at sector 0
	for i := 1; i < 109; i++ {
		binary.Write(&buf, le, uint32(cfbFreeSect))
	}

	// Sector 0: FAT. Sector 1 is the directory, 2-9 the stream chain.
	fat := make([]uint32, sectorSize/4)
	fat[0] = cfbFatSect
	fat[1] = cfbEndOfChain
	for s := 2; s < 9; s++ {
		fat[s] = uint32(s + 1)
	}
	fat[9] = cfbEndOfChain
	for s := 10; s < len(fat); s++ {
		fat[s] = cfbFreeSect
	}
	binary.Write(&buf, le, fat)

	// Sector 1: directory entries.
	writeDirEntry(&buf, "Root Entry", 5, cfbFreeSect, cfbFreeSect, 1, cfbEndOfChain, 0)
	writeDirEntry(&buf, msgBodyUnicode, 2, cfbFreeSect, cfbFreeSect, cfbFreeSect, 2, streamSize)
	writeDirEntry(&buf, "", 0, cfbFreeSect, cfbFreeSect, cfbFreeSect, 0, 0)
	writeDirEntry(&buf, "", 0, cfbFreeSect, cfbFreeSect, cfbFreeSect, 0, 0)

	// Sectors 2-9: the body as UTF-16LE, zero padded.
	content := make([]byte, streamSize)
	for i, u := range utf16.Encode([]rune(body)) {
		le.PutUint16(content[i*2:], u)
	}
	buf.Write(content)

	return buf.Bytes()
}

// writeDirEntry emits one 128-byte compound-file directory entry.
func writeDirEntry(buf *bytes.Buffer, name string, typ byte, left, right, child, start uint32, size uint64) {
	le := binary.LittleEndian

	nameField := make([]byte, 64)
	units := utf16.Encode([]rune(name))
	for i, u := range units {
		le.PutUint16(nameField[i*2:], u)
	}
	buf.Write(nameField)

	var nameLen uint16
	if name != "" {
		nameLen = uint16((len(units) + 1) * 2)
	}
	binary.Write(buf, le, nameLen)
	buf.WriteByte(typ)
	buf.WriteByte(1) // black
	binary.Write(buf, le, left)
	binary.Write(buf, le, right)
	binary.Write(buf, le, child)
	buf.Write(make([]byte, 16)) // CLSID
	binary.Write(buf, le, uint32(0))
	binary.Write(buf, le, uint64(0)) // creation time
	binary.Write(buf, le, uint64(0)) // modification time
	binary.Write(buf, le, start)
	binary.Write(buf, le, size)
}
