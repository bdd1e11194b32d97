package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/model"
)

// Extractor runs the structured-field cascade: a hosted analyzer when one
// is configured, the deterministic text parser otherwise. The degenerate
// tier (no text, no analyzer) still yields a well-formed empty record with
// an explanatory error rather than failing the stage.
type Extractor struct {
	analyzer DocumentAnalyzer // nil when not configured
	logger   *slog.Logger
}

func NewExtractor(analyzer DocumentAnalyzer, logger *slog.Logger) *Extractor {
	return &Extractor{analyzer: analyzer, logger: logger}
}

// Fields extracts structured invoice fields from the document.
// method selects the tier; blobURL is passed to the analyzer tier, pdfBytes
// feeds the text parser.
func (e *Extractor) Fields(ctx context.Context, method constants.ExtractionMethod, pdfBytes []byte, blobURL string) *model.InvoiceFields {
	switch method {
	case constants.MethodRegex:
		e.logger.Info("extract.fields.start", "tier", "regex", "reason", "user-selected")
		return e.parseText(pdfBytes, "text parse requested but no document bytes available")

	case constants.MethodAnalyzer:
		e.logger.Info("extract.fields.start", "tier", "analyzer", "reason", "user-selected")
		if e.analyzer != nil {
			return e.analyze(ctx, blobURL)
		}
		e.logger.Warn("extract.analyzer.unconfigured", "fallback", "regex")
		return e.parseText(pdfBytes, "analyzer not configured and no document bytes available")

	default: // auto
		if e.analyzer != nil {
			e.logger.Info("extract.fields.start", "tier", "analyzer", "reason", "auto")
			return e.analyze(ctx, blobURL)
		}
		e.logger.Info("extract.fields.start", "tier", "regex", "reason", "auto")
		return e.parseText(pdfBytes, "analyzer not configured and no document bytes available")
	}
}

func (e *Extractor) analyze(ctx context.Context, blobURL string) *model.InvoiceFields {
	bag, err := e.analyzer.Analyze(ctx, blobURL)
	if err != nil {
		e.logger.Error("extract.analyzer.failed", "error", err)
		return EmptyFields(fmt.Sprintf("analyzer error: %v", err))
	}
	f := MapFields(bag)
	e.logger.Info("extract.analyzer.ok",
		"invoice", f.InvoiceNumber, "vendor", f.VendorName, "total", f.TotalAmount)
	return f
}

func (e *Extractor) parseText(pdfBytes []byte, emptyMsg string) *model.InvoiceFields {
	if len(pdfBytes) == 0 {
		return EmptyFields(emptyMsg)
	}
	text := FullText(pdfBytes)
	f := ParseFields(text)
	e.logger.Info("extract.regex.ok",
		"invoice", f.InvoiceNumber, "vendor", f.VendorName,
		"total", f.TotalAmount, "items", len(f.LineItems))
	return f
}
