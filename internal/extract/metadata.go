// Package extract implements the raw-content extraction stage: physical
// document metadata plus structured invoice fields, via a cascade of an
// optional cloud analyzer and a deterministic text parser.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

const (
	previewLimit  = 2000
	fullTextLimit = 5000
)

var creationDateRe = regexp.MustCompile(`/CreationDate\s*\(\s*(?:D:)?([^)]*)\)`)

// readPDF opens the document from raw bytes. The reader needs a size-aware
// source, so everything goes through a bytes.Reader.
func readPDF(pdfBytes []byte) (*pdf.Reader, error) {
	return pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
}

// pageText renders one page's rows into newline-separated text, one line
// per visual row, matching the layout assumptions of the field parser.
func pageText(p pdf.Page) string {
	rows, err := p.GetTextByRow()
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, row := range rows {
		for i, word := range row.Content {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(word.S)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FullText extracts text from every page. The field parser consumes this,
// so it is never truncated. Parser panics inside the PDF library are
// converted to empty text.
func FullText(pdfBytes []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	r, err := readPDF(pdfBytes)
	if err != nil {
		return ""
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		b.WriteString(pageText(page))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// previewText extracts just enough text for the raw-text preview, stopping
// at a page boundary once enough has accumulated.
func previewText(pdfBytes []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	r, err := readPDF(pdfBytes)
	if err != nil {
		return ""
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		b.WriteString(pageText(page))
		b.WriteString("\n")
		if b.Len() > fullTextLimit {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// Metadata holds the physical document properties Stage 1 reports.
type Metadata struct {
	PageCount       int
	FileSizeBytes   int
	FileSizeDisplay string
	CreationDate    *time.Time
	RawTextPreview  string
	Err             string
}

// BasicMetadata extracts page count, size, creation date, and a text
// preview. It never fails: a corrupt document yields zeroed metadata with
// Err set, so the pipeline can continue with what it has.
func BasicMetadata(pdfBytes []byte) Metadata {
	m := metadataOf(pdfBytes)
	if m.FileSizeDisplay == "" {
		m.FileSizeBytes = len(pdfBytes)
		m.FileSizeDisplay = FormatFileSize(len(pdfBytes))
	}
	return m
}

func metadataOf(pdfBytes []byte) (m Metadata) {
	defer func() {
		if r := recover(); r != nil {
			m = Metadata{Err: fmt.Sprintf("pdf parse panic: %v", r)}
		}
	}()

	r, err := readPDF(pdfBytes)
	if err != nil {
		return Metadata{Err: err.Error()}
	}

	m.PageCount = r.NumPage()
	m.FileSizeBytes = len(pdfBytes)
	m.FileSizeDisplay = FormatFileSize(len(pdfBytes))
	m.CreationDate = creationDate(pdfBytes)

	preview := previewText(pdfBytes)
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}
	m.RawTextPreview = strings.TrimSpace(preview)
	return m
}

// creationDate scans the raw bytes for the document info dictionary's
// /CreationDate entry. Scanning raw bytes sidesteps the library's limited
// metadata surface and works for the generated invoices in the sample set.
func creationDate(pdfBytes []byte) *time.Time {
	match := creationDateRe.FindSubmatch(pdfBytes)
	if match == nil {
		return nil
	}
	if t, ok := ParsePDFDate(string(match[1])); ok {
		return &t
	}
	return nil
}

// FormatFileSize renders a byte count in base-1024 units: "812 B",
// "14.3 KB", "1.25 MB".
func FormatFileSize(size int) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
	}
}

// ParsePDFDate parses a compact PDF date like "20260122103000+00'00'"
// (the "D:" prefix already stripped, or still present). Accepts a full
// 14-digit timestamp or a bare 8-digit date; the timezone suffix may be
// +HH'MM', -HH'MM', Z, or absent (treated as UTC).
func ParsePDFDate(s string) (time.Time, bool) {
	cleaned := strings.TrimSpace(strings.TrimPrefix(s, "D:"))

	var base time.Time
	var rest string
	switch {
	case len(cleaned) >= 14:
		t, err := time.Parse("20060102150405", cleaned[:14])
		if err != nil {
			return time.Time{}, false
		}
		base = t
		rest = cleaned[14:]
	case len(cleaned) >= 8:
		t, err := time.Parse("20060102", cleaned[:8])
		if err != nil {
			return time.Time{}, false
		}
		base = t
		rest = cleaned[8:]
	default:
		return time.Time{}, false
	}

	rest = strings.ReplaceAll(rest, "'", "")
	loc := time.UTC
	if len(rest) >= 5 && (rest[0] == '+' || rest[0] == '-') {
		hours, err1 := strconv.Atoi(rest[1:3])
		mins, err2 := strconv.Atoi(rest[3:5])
		if err1 == nil && err2 == nil {
			offset := hours*3600 + mins*60
			if rest[0] == '-' {
				offset = -offset
			}
			loc = time.FixedZone(rest[:5], offset)
		}
	}

	return time.Date(base.Year(), base.Month(), base.Day(),
		base.Hour(), base.Minute(), base.Second(), 0, loc), true
}
