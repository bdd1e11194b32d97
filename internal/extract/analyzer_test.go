package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zavaops/ticketflow/internal/common"
)

func fptr(f float64) *float64 { return &f }

func TestMapFieldsBasic(t *testing.T) {
	bag := FieldBag{
		"InvoiceId":   {ValueString: "INV-2026-78432", Confidence: fptr(0.97)},
		"VendorName":  {ValueString: "Contoso Chemical Supply", Confidence: fptr(0.95)},
		"InvoiceDate": {ValueDate: "2026-01-22"},
		"DueDate":     {ValueDate: "2026-02-21", Confidence: fptr(0.92)},
		"PONumber":    {ValueString: "PO-2026-1150"},
		"PaymentTerm": {ValueString: "NET-30"},
		"SubtotalAmount": {ValueObject: map[string]Field{
			"Amount": {ValueNumber: fptr(12500)},
		}},
		"TotalTaxAmount": {ValueObject: map[string]Field{
			"Amount": {ValueNumber: fptr(1031.25)},
		}},
		"TotalAmount": {ValueObject: map[string]Field{
			"Amount":       {ValueNumber: fptr(13781.25), Confidence: fptr(0.99)},
			"CurrencyCode": {ValueString: "USD"},
		}},
		"LineItems": {ValueArray: []Field{
			{ValueObject: map[string]Field{
				"Description": {ValueString: "Sulfuric Acid 98%"},
				"ProductCode": {ValueString: "CHEM-SA-55"},
				"Quantity":    {ValueNumber: fptr(20)},
				"UnitPrice":   {ValueNumber: fptr(385)},
				"Amount":      {ValueNumber: fptr(0)},
			}},
		}},
	}

	f := MapFields(bag)
	if f.InvoiceNumber != "INV-2026-78432" || f.VendorName != "Contoso Chemical Supply" {
		t.Fatalf("header = %+v", f)
	}
	if f.InvoiceDate != "2026-01-22" || f.DueDate != "2026-02-21" {
		t.Errorf("dates = %q / %q", f.InvoiceDate, f.DueDate)
	}
	if f.Subtotal != 12500 || f.TaxAmount != 1031.25 || f.TotalAmount != 13781.25 {
		t.Errorf("amounts = %v / %v / %v", f.Subtotal, f.TaxAmount, f.TotalAmount)
	}
	if f.Currency != "USD" || f.PaymentTerms != "NET-30" {
		t.Errorf("currency/terms = %q / %q", f.Currency, f.PaymentTerms)
	}
	if len(f.LineItems) != 1 {
		t.Fatalf("line items = %d", len(f.LineItems))
	}
	// Zero amount reconciled from qty x unit price.
	if f.LineItems[0].Amount != 7700 {
		t.Errorf("reconciled amount = %v", f.LineItems[0].Amount)
	}
	if f.Confidence.InvoiceNumber != 0.97 || f.Confidence.TotalAmount != 0.99 {
		t.Errorf("confidence = %+v", f.Confidence)
	}
	// Mean of 0.97, 0.99, 0.95, 0.92 rounded to 4 places.
	if f.Confidence.Overall != 0.9575 {
		t.Errorf("overall = %v", f.Confidence.Overall)
	}
}

func TestMapFieldsAmountDueFallback(t *testing.T) {
	bag := FieldBag{
		"AmountDue": {ValueObject: map[string]Field{
			"Amount": {ValueNumber: fptr(420.42)},
		}},
	}
	f := MapFields(bag)
	if f.TotalAmount != 420.42 {
		t.Errorf("totalAmount = %v", f.TotalAmount)
	}
	if f.Currency != "USD" {
		t.Errorf("currency = %q", f.Currency)
	}
	if f.LineItems == nil {
		t.Error("lineItems should be empty, not nil")
	}
}

func TestHTTPAnalyzerOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.AnalyzerID != "prebuilt-invoice" {
			t.Errorf("analyzerId = %q", req.AnalyzerID)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"contents": []map[string]any{
				{"fields": map[string]any{
					"InvoiceId": map[string]any{"valueString": "INV-77"},
				}},
			},
		})
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(common.AnalyzerConfig{Endpoint: srv.URL, APIKey: "secret", Timeout: 5 * time.Second})
	bag, err := a.Analyze(context.Background(), "blob://doc.pdf")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if bag["InvoiceId"].str() != "INV-77" {
		t.Errorf("InvoiceId = %q", bag["InvoiceId"].str())
	}
}

func TestHTTPAnalyzerErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(common.AnalyzerConfig{Endpoint: srv.URL, Timeout: 5 * time.Second})
	if _, err := a.Analyze(context.Background(), "blob://doc.pdf"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestHTTPAnalyzerEmptyContents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"contents": []any{}})
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(common.AnalyzerConfig{Endpoint: srv.URL, Timeout: 5 * time.Second})
	if _, err := a.Analyze(context.Background(), "blob://doc.pdf"); err == nil {
		t.Fatal("expected error on empty contents")
	}
}
