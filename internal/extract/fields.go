package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zavaops/ticketflow/internal/model"
)

var (
	amountRe       = regexp.MustCompile(`\$\s*([\d,]+\.?\d{0,2})`)
	paymentTermsRe = regexp.MustCompile(`(?i)Payment\s+Terms[:\s]*(NET-\d+)`)
	hazardousRe    = regexp.MustCompile(`(?i)HAZARDOUS|Hazmat|DOT\s+Classification`)
	dotClassRe     = regexp.MustCompile(`Class\s+(\d+\s*-\s*[A-Za-z ]+?)(?:\s+under|\n|$)`)
	bolRe          = regexp.MustCompile(`(?i)(?:Bill\s+of\s+Lading|BOL|B/L)\s*(?:#|Number|No\.?)?\s*[:\s]*([A-Z0-9-]+)`)

	productCodeRe  = regexp.MustCompile(`^[A-Z]{2,5}-[A-Z0-9-]+$`)
	partialCodeRe  = regexp.MustCompile(`^[A-Z]{2,5}-[A-Z0-9-]+-$`)
	codeContRe     = regexp.MustCompile(`^[A-Z0-9]+$`)
	lineAmountRe   = regexp.MustCompile(`^\$?([\d,]+\.\d{2})$`)
	bareQuantityRe = regexp.MustCompile(`^(\d+)$`)
)

// Confidence values reported by the deterministic parser. The parser either
// finds a field or it does not, so per-field confidence is a fixed score
// when the field is non-empty and zero otherwise.
const (
	confInvoiceNumber = 0.93
	confTotalAmount   = 0.96
	confVendorName    = 0.91
)

// ParseFields runs the deterministic text parser over a document's raw text.
// The parser targets the layout produced by the invoice generator: a vendor
// banner, a columnar header block, label/amount pairs, and a line-item table
// with one field per text line.
func ParseFields(text string) *model.InvoiceFields {
	if strings.TrimSpace(text) == "" {
		return EmptyFields("could not extract text from document")
	}
	lines := strings.Split(text, "\n")

	// Vendor name is the first non-empty line of the document.
	vendorName := ""
	for _, line := range lines {
		if s := strings.TrimSpace(line); s != "" {
			vendorName = s
			break
		}
	}

	// Vendor address is the line right after the literal INVOICE banner.
	vendorAddress := ""
	for i, line := range lines {
		if strings.TrimSpace(line) == "INVOICE" && i+1 < len(lines) {
			vendorAddress = strings.TrimSpace(lines[i+1])
			break
		}
	}

	header := columnarBlock(lines, []string{"INVOICE NUMBER", "INVOICE DATE", "DUE DATE", "PO NUMBER"})
	billing := columnarBlock(lines, []string{"BILL TO", "PAYMENT TERMS"})

	invoiceDate := normalizeDate(header["INVOICE DATE"])
	dueDate := normalizeDate(header["DUE DATE"])

	subtotal := amountForLabel(lines, "Subtotal")
	taxAmount := amountForLabel(lines, "Tax")
	totalAmount := amountForLabel(lines, "TOTAL DUE")
	hazmatSurcharge := amountForLabel(lines, "Hazmat Surcharge")

	paymentTerms := billing["PAYMENT TERMS"]
	if paymentTerms == "" {
		if m := paymentTermsRe.FindStringSubmatch(text); m != nil {
			paymentTerms = m[1]
		}
	}

	lineItems := parseLineItems(lines)

	dotClass := ""
	if m := dotClassRe.FindStringSubmatch(text); m != nil {
		dotClass = strings.TrimSpace(m[1])
	}
	bol := ""
	if m := bolRe.FindStringSubmatch(text); m != nil {
		bol = strings.TrimSpace(m[1])
	}

	invoiceNumber := header["INVOICE NUMBER"]
	conf := model.ConfidenceScores{}
	if invoiceNumber != "" {
		conf.InvoiceNumber = confInvoiceNumber
	}
	if totalAmount != 0 {
		conf.TotalAmount = confTotalAmount
	}
	if vendorName != "" {
		conf.VendorName = confVendorName
	}
	conf.Overall = avgConfidence(conf.InvoiceNumber, conf.TotalAmount, conf.VendorName)

	f := &model.InvoiceFields{
		InvoiceNumber:     invoiceNumber,
		VendorName:        vendorName,
		VendorAddress:     vendorAddress,
		InvoiceDate:       invoiceDate,
		DueDate:           dueDate,
		PONumber:          header["PO NUMBER"],
		Subtotal:          subtotal,
		TaxAmount:         taxAmount,
		TotalAmount:       totalAmount,
		Currency:          "USD",
		PaymentTerms:      paymentTerms,
		LineItems:         lineItems,
		Confidence:        conf,
		HazardousFlag:     hazardousRe.MatchString(text),
		DOTClassification: dotClass,
		BillOfLading:      bol,
		HazmatSurcharge:   hazmatSurcharge,
	}
	ReconcileLineItemAmounts(f)
	return f
}

// EmptyFields returns the zero result with all confidence at 0 and an
// explanatory error.
func EmptyFields(errMsg string) *model.InvoiceFields {
	return &model.InvoiceFields{
		Currency:  "USD",
		LineItems: []model.LineItem{},
		Error:     errMsg,
	}
}

// ReconcileLineItemAmounts computes amount = quantity x unitPrice for any
// line item whose amount came back zero but has both factors.
func ReconcileLineItemAmounts(f *model.InvoiceFields) {
	for i := range f.LineItems {
		item := &f.LineItems[i]
		if item.Amount == 0 && item.Quantity != 0 && item.UnitPrice != 0 {
			item.Amount = math.Round(item.Quantity*item.UnitPrice*100) / 100
		}
	}
}

// columnarBlock recovers values from a side-by-side column layout. The text
// renderer emits all labels first, then all values in the same visual order:
//
//	INVOICE NUMBER
//	INVOICE DATE
//	INV-2026-78432
//	January 22, 2026
//
// Labels are matched by exact (case-insensitive) line content, first
// occurrence wins. Values start on the line after the last matched label
// and are assigned to labels in their declared order, so a caller listing
// labels in layout order gets stable results even when a label is missing.
func columnarBlock(lines []string, labels []string) map[string]string {
	results := make(map[string]string, len(labels))
	for _, label := range labels {
		results[label] = ""
	}

	indices := make(map[string]int, len(labels))
	for i, line := range lines {
		stripped := strings.ToUpper(strings.TrimSpace(line))
		for _, label := range labels {
			if stripped == strings.ToUpper(label) {
				if _, seen := indices[label]; !seen {
					indices[label] = i
				}
				break
			}
		}
	}
	if len(indices) == 0 {
		return results
	}

	lastIdx := -1
	for _, idx := range indices {
		if idx > lastIdx {
			lastIdx = idx
		}
	}

	offset := 0
	for _, label := range labels {
		if _, found := indices[label]; !found {
			continue
		}
		valueIdx := lastIdx + 1 + offset
		if valueIdx < len(lines) {
			results[label] = strings.TrimSpace(lines[valueIdx])
		}
		offset++
	}
	return results
}

// amountForLabel finds the dollar amount tied to a label, checking the
// label's own line first and then the next line:
//
//	Subtotal:
//	$12,500.00
func amountForLabel(lines []string, label string) float64 {
	lower := strings.ToLower(label)
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if !strings.Contains(strings.ToLower(stripped), lower) {
			continue
		}
		if v, ok := matchAmount(stripped); ok {
			return v
		}
		if i+1 < len(lines) {
			if v, ok := matchAmount(strings.TrimSpace(lines[i+1])); ok {
				return v
			}
		}
	}
	return 0
}

func matchAmount(s string) (float64, bool) {
	m := amountRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// normalizeDate converts the date formats the generator emits to
// YYYY-MM-DD. Unrecognized strings pass through unchanged.
func normalizeDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{"January 2, 2006", "January 2 2006", "1/2/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// parseLineItems tokenizes the items table. The renderer puts each cell on
// its own text line:
//
//	Sulfuric Acid 98%, 55-gal drum
//	CHEM-SA-55
//	20
//	$385.00
//	$7,700.00
//
// The table body starts after the AMOUNT header cell and ends at the
// Subtotal/TOTAL row. Product codes that wrap keep their trailing hyphen on
// the first line and continue on the next.
func parseLineItems(lines []string) []model.LineItem {
	items := []model.LineItem{}

	tableStart, tableEnd := -1, -1
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "AMOUNT" || stripped == "Amount" {
			tableStart = i + 1
		}
		if tableStart >= 0 && (strings.Contains(stripped, "Subtotal") || strings.Contains(stripped, "TOTAL")) {
			tableEnd = i
			break
		}
	}
	if tableStart < 0 || tableEnd < 0 {
		return items
	}

	var tableLines []string
	for _, l := range lines[tableStart:tableEnd] {
		if s := strings.TrimSpace(l); s != "" {
			tableLines = append(tableLines, s)
		}
	}

	var descParts []string
	var code string
	var numbers []float64

	flush := func() {
		if code != "" && len(numbers) >= 3 {
			items = append(items, model.LineItem{
				Description: strings.Join(descParts, " "),
				ProductCode: code,
				Quantity:    numbers[0],
				UnitPrice:   numbers[1],
				Amount:      numbers[2],
			})
			descParts = nil
			code = ""
			numbers = nil
		}
	}

	for _, line := range tableLines {
		// Complete product code on one line.
		if productCodeRe.MatchString(line) && !strings.HasSuffix(line, "-") {
			code = line
			continue
		}
		// Code wraps to the next line, keep the trailing hyphen.
		if partialCodeRe.MatchString(line) {
			code = line
			continue
		}
		// Continuation of a hyphen-split code.
		if code != "" && strings.HasSuffix(code, "-") && codeContRe.MatchString(line) {
			code += line
			continue
		}
		// Dollar amount cell.
		if m := lineAmountRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				numbers = append(numbers, v)
			}
			continue
		}
		// Bare integer is the quantity, but only once a code anchors the item.
		if bareQuantityRe.MatchString(line) && code != "" {
			if v, err := strconv.ParseFloat(line, 64); err == nil {
				numbers = append(numbers, v)
			}
			continue
		}
		// Description fragment. A pending complete item flushes first: this
		// fragment starts the next item.
		flush()
		descParts = append(descParts, line)
	}
	flush()

	return items
}

func avgConfidence(scores ...float64) float64 {
	var sum float64
	var n int
	for _, s := range scores {
		if s > 0 {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*10000) / 10000
}
