package extract

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

// buildPDF assembles a minimal uncompressed PDF, one text line per Tj, with
// computed xref offsets so the reader accepts it.
func buildPDF(t *testing.T, pages [][]string) []byte {
	t.Helper()

	var objs []string
	addObj := func(body string) int {
		objs = append(objs, body)
		return len(objs)
	}
	catalog := addObj("<< /Type /Catalog /Pages 2 0 R >>")
	pagesObj := addObj("") // filled in once the kids exist
	font := addObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var kids []string
	for _, lines := range pages {
		var content strings.Builder
		content.WriteString("BT /F1 12 Tf 72 720 Td\n")
		for i, line := range lines {
			if i > 0 {
				content.WriteString("0 -14 Td\n")
			}
			fmt.Fprintf(&content, "(%s) Tj\n", line)
		}
		content.WriteString("ET")
		stream := content.String()
		contentObj := addObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
		pageObj := addObj(fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			font, contentObj))
		kids = append(kids, fmt.Sprintf("%d 0 R", pageObj))
	}
	objs[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objs)+1, catalog, xref)
	return buf.Bytes()
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size int
		want string
	}{
		{0, "0 B"},
		{812, "812 B"},
		{1024, "1.0 KB"},
		{14643, "14.3 KB"},
		{1024 * 1024, "1.00 MB"},
		{1310720, "1.25 MB"},
	}
	for _, tt := range tests {
		if got := FormatFileSize(tt.size); got != tt.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestParsePDFDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"full with offset", "20260122103000+00'00'", "2026-01-22T10:30:00Z", true},
		{"with D prefix", "D:20260122103000+05'30'", "2026-01-22T10:30:00+05:30", true},
		{"negative offset", "20260122103000-0800", "2026-01-22T10:30:00-08:00", true},
		{"zulu suffix", "20260122103000Z", "2026-01-22T10:30:00Z", true},
		{"no timezone", "20260122103000", "2026-01-22T10:30:00Z", true},
		{"date only", "20260122", "2026-01-22T00:00:00Z", true},
		{"too short", "2026", "", false},
		{"garbage", "not-a-date-at", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePDFDate(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			want, err := time.Parse(time.RFC3339, tt.want)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(want) {
				t.Errorf("ParsePDFDate(%q) = %v, want %v", tt.in, got, want)
			}
		})
	}
}

func TestBasicMetadataCorruptDocument(t *testing.T) {
	m := BasicMetadata([]byte("this is not a pdf"))
	if m.Err == "" {
		t.Fatal("expected error for corrupt document")
	}
	if m.PageCount != 0 {
		t.Errorf("pageCount = %d", m.PageCount)
	}
	if m.FileSizeBytes != len("this is not a pdf") {
		t.Errorf("fileSizeBytes = %d", m.FileSizeBytes)
	}
	if m.FileSizeDisplay == "" {
		t.Error("fileSizeDisplay empty")
	}
}

func TestFullTextCorruptDocument(t *testing.T) {
	if got := FullText([]byte{0x00, 0x01}); got != "" {
		t.Errorf("FullText on junk = %q, want empty", got)
	}
}

func TestFullTextReadsEveryPage(t *testing.T) {
	// Enough text to cross the preview cutoff well before the last page,
	// with the totals block only on the final page.
	filler := strings.Repeat("SULFURIC ACID 98% INDUSTRIAL GRADE ", 2)
	var pages [][]string
	for p := 0; p < 4; p++ {
		var lines []string
		for i := 0; i < 30; i++ {
			lines = append(lines, filler)
		}
		pages = append(pages, lines)
	}
	pages[3] = append(pages[3], "TOTAL DUE: $8,335.25")
	doc := buildPDF(t, pages)

	text := FullText(doc)
	if len(text) <= fullTextLimit {
		t.Fatalf("len(FullText) = %d, want > %d", len(text), fullTextLimit)
	}
	if !strings.Contains(text, "TOTAL DUE: $8,335.25") {
		t.Fatal("last-page totals block missing from full text")
	}

	m := BasicMetadata(doc)
	if m.Err != "" {
		t.Fatalf("metadata error: %s", m.Err)
	}
	if m.PageCount != 4 {
		t.Errorf("pageCount = %d, want 4", m.PageCount)
	}
	if len(m.RawTextPreview) > previewLimit {
		t.Errorf("preview length = %d, want <= %d", len(m.RawTextPreview), previewLimit)
	}
}

func TestCreationDateScan(t *testing.T) {
	raw := []byte(`%PDF-1.7
1 0 obj
<< /CreationDate (D:20260115093000+00'00') /Producer (gen) >>
endobj`)
	got := creationDate(raw)
	if got == nil {
		t.Fatal("creation date not found")
	}
	want := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("creationDate = %v, want %v", got, want)
	}

	if creationDate([]byte("no date here")) != nil {
		t.Error("expected nil for missing creation date")
	}
}
