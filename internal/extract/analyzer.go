package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/zavaops/ticketflow/internal/common"
	"github.com/zavaops/ticketflow/internal/model"
)

// Field is one entry in the analyzer's field bag. The analyzer encodes
// values polymorphically: simple fields carry value/valueString/valueDate/
// valueNumber, currency fields nest an Amount object, and arrays nest
// per-item valueObject maps.
type Field struct {
	Value       any              `json:"value,omitempty"`
	ValueString string           `json:"valueString,omitempty"`
	ValueDate   string           `json:"valueDate,omitempty"`
	ValueNumber *float64         `json:"valueNumber,omitempty"`
	Confidence  *float64         `json:"confidence,omitempty"`
	ValueObject map[string]Field `json:"valueObject,omitempty"`
	ValueArray  []Field          `json:"valueArray,omitempty"`
}

// FieldBag is the analyzer's named field map for one document.
type FieldBag map[string]Field

// DocumentAnalyzer extracts structured invoice fields from a document.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, documentURL string) (FieldBag, error)
}

// str returns the field's string value, trying the typed slots in order.
func (f Field) str() string {
	if f.ValueString != "" {
		return f.ValueString
	}
	if f.ValueDate != "" {
		return f.ValueDate
	}
	switch v := f.Value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// num returns the field's numeric value. Currency fields nest the number
// inside an Amount sub-object.
func (f Field) num() float64 {
	if f.ValueNumber != nil {
		return *f.ValueNumber
	}
	if amount, ok := f.ValueObject["Amount"]; ok {
		return amount.num()
	}
	switch v := f.Value.(type) {
	case float64:
		return v
	case string:
		n, _ := strconv.ParseFloat(v, 64)
		return n
	}
	return 0
}

// conf returns the field's confidence, looking into the nested Amount
// object for currency fields.
func (f Field) conf() float64 {
	if f.Confidence != nil {
		return *f.Confidence
	}
	if amount, ok := f.ValueObject["Amount"]; ok && amount.Confidence != nil {
		return *amount.Confidence
	}
	return 0
}

// currency returns the currency code of a currency field, defaulting USD.
func (f Field) currency() string {
	if cc, ok := f.ValueObject["CurrencyCode"]; ok {
		if s := cc.str(); s != "" {
			return s
		}
	}
	return "USD"
}

// MapFields converts an analyzer field bag into the canonical invoice
// record. Analyzer field names follow the prebuilt invoice schema:
// InvoiceId, VendorName, VendorAddress, InvoiceDate, DueDate, PONumber,
// PaymentTerm, SubtotalAmount, TotalTaxAmount, TotalAmount, AmountDue,
// LineItems.
func MapFields(fields FieldBag) *model.InvoiceFields {
	totalAmount := fields["TotalAmount"].num()
	if totalAmount == 0 {
		totalAmount = fields["AmountDue"].num()
	}

	var lineItems []model.LineItem
	for _, item := range fields["LineItems"].ValueArray {
		obj := item.ValueObject
		if obj == nil {
			continue
		}
		lineItems = append(lineItems, model.LineItem{
			Description: obj["Description"].str(),
			ProductCode: obj["ProductCode"].str(),
			Quantity:    obj["Quantity"].num(),
			UnitPrice:   obj["UnitPrice"].num(),
			Amount:      obj["Amount"].num(),
		})
	}

	conf := model.ConfidenceScores{
		InvoiceNumber: fields["InvoiceId"].conf(),
		TotalAmount:   fields["TotalAmount"].conf(),
		VendorName:    fields["VendorName"].conf(),
	}
	conf.Overall = avgConfidence(conf.InvoiceNumber, conf.TotalAmount,
		conf.VendorName, fields["DueDate"].conf())

	f := &model.InvoiceFields{
		InvoiceNumber: fields["InvoiceId"].str(),
		VendorName:    fields["VendorName"].str(),
		VendorAddress: fields["VendorAddress"].str(),
		InvoiceDate:   fields["InvoiceDate"].str(),
		DueDate:       fields["DueDate"].str(),
		PONumber:      fields["PONumber"].str(),
		Subtotal:      fields["SubtotalAmount"].num(),
		TaxAmount:     fields["TotalTaxAmount"].num(),
		TotalAmount:   totalAmount,
		Currency:      fields["TotalAmount"].currency(),
		PaymentTerms:  fields["PaymentTerm"].str(),
		LineItems:     lineItems,
		Confidence:    conf,
	}
	if f.LineItems == nil {
		f.LineItems = []model.LineItem{}
	}
	ReconcileLineItemAmounts(f)
	return f
}

// HTTPAnalyzer calls a hosted document analyzer over HTTP.
type HTTPAnalyzer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPAnalyzer(cfg common.AnalyzerConfig) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type analyzeRequest struct {
	AnalyzerID string `json:"analyzerId"`
	URL        string `json:"url"`
}

type analyzeResponse struct {
	Contents []struct {
		Fields FieldBag `json:"fields"`
	} `json:"contents"`
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, documentURL string) (FieldBag, error) {
	body, err := json.Marshal(analyzeRequest{AnalyzerID: "prebuilt-invoice", URL: documentURL})
	if err != nil {
		return nil, common.NewAppError("ANALYZER_ENCODE", "failed to encode analyze request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, common.NewAppError("ANALYZER_REQUEST", "failed to build analyze request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, common.NewAppError("ANALYZER_CALL", "analyzer request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, common.NewAppError("ANALYZER_STATUS",
			fmt.Sprintf("analyzer returned %d: %s", resp.StatusCode, snippet), common.ErrUnavailable)
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, common.NewAppError("ANALYZER_DECODE", "failed to decode analyzer response", err)
	}
	if len(out.Contents) == 0 {
		return nil, common.NewAppError("ANALYZER_EMPTY", "analyzer returned no contents", common.ErrInternal)
	}
	return out.Contents[0].Fields, nil
}

var _ DocumentAnalyzer = (*HTTPAnalyzer)(nil)
