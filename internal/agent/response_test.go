package agent

import "testing"

func TestParseResponseFencedJSON(t *testing.T) {
	text := "Here is the result:\n```json\n" +
		`{"summary": "Invoice processed", "nextAction": "invoice_processing", "flags": ["PAST_DUE"]}` +
		"\n```\nDone."
	r := ParseResponse(text)
	if !r.Success {
		t.Fatal("expected success")
	}
	if r.Summary != "Invoice processed" || r.NextAction != "invoice_processing" {
		t.Errorf("parsed = %+v", r)
	}
	if len(r.Flags) != 1 || r.Flags[0] != "PAST_DUE" {
		t.Errorf("flags = %v", r.Flags)
	}
}

func TestParseResponseFullUpdatePayload(t *testing.T) {
	text := `{"status": "ai_processed", "aiProcessing": {"summary": "All good",
		"nextAction": "manual_review", "standardizedCodes": {"vendorCode": "VEND-1"},
		"flags": ["AMOUNT_DISCREPANCY", "MANUAL_REVIEW_REQUIRED"]}}`
	r := ParseResponse(text)
	if !r.Success {
		t.Fatal("expected success")
	}
	if r.NextAction != "manual_review" {
		t.Errorf("nextAction = %q", r.NextAction)
	}
	if r.StandardizedCodes["vendorCode"] != "VEND-1" {
		t.Errorf("codes = %v", r.StandardizedCodes)
	}
	if len(r.Flags) != 2 {
		t.Errorf("flags = %v", r.Flags)
	}
}

func TestParseResponseSnakeCaseKeys(t *testing.T) {
	r := ParseResponse(`{"summary": "ok", "next_action": "vendor_approval", "standardized_codes": {"vendorCode": "V"}}`)
	if !r.Success || r.NextAction != "vendor_approval" {
		t.Fatalf("parsed = %+v", r)
	}
	if r.StandardizedCodes["vendorCode"] != "V" {
		t.Errorf("codes = %v", r.StandardizedCodes)
	}
}

func TestParseResponseTextualSuccess(t *testing.T) {
	text := "I have successfully updated the ticket.\n" +
		"Summary: Invoice INV-9 standardized and routed.\n" +
		"Next Action: invoice_processing\n"
	r := ParseResponse(text)
	if !r.Success {
		t.Fatal("expected textual success detection")
	}
	if r.Summary != "Invoice INV-9 standardized and routed." {
		t.Errorf("summary = %q", r.Summary)
	}
	if r.NextAction != "invoice_processing" {
		t.Errorf("nextAction = %q", r.NextAction)
	}
}

func TestParseResponseSummaryOnNextLine(t *testing.T) {
	text := "Processing complete.\nSummary:\nRouted invoice for payment after all checks passed OK today.\n"
	r := ParseResponse(text)
	if !r.Success {
		t.Fatal("expected success")
	}
	if r.Summary != "Routed invoice for payment after all checks passed OK today." {
		t.Errorf("summary = %q", r.Summary)
	}
}

func TestParseResponseEmpty(t *testing.T) {
	r := ParseResponse("")
	if r.Success || r.Err == "" {
		t.Fatalf("parsed = %+v", r)
	}
}

func TestParseResponseNoIndicators(t *testing.T) {
	r := ParseResponse("The weather today is pleasant.")
	if r.Success {
		t.Fatal("should not report success")
	}
}

func TestParseResponseMalformedJSONFallsThrough(t *testing.T) {
	// Broken JSON but a success phrase in the prose still counts.
	text := "{not valid json] but the update completed fine."
	r := ParseResponse(text)
	if !r.Success {
		t.Fatal("expected textual fallback")
	}
}

func TestParseResponseRejectsWrongTypes(t *testing.T) {
	// nextAction as a number fails schema validation; the text has no
	// success phrases either.
	r := ParseResponse(`{"summary": "x", "nextAction": 42}`)
	if r.Success {
		t.Fatal("schema validation should reject numeric nextAction")
	}
}

func TestExtractJSONBlockBareObject(t *testing.T) {
	got := extractJSONBlock(`prefix {"a": {"b": 1}} suffix`)
	if got != `{"a": {"b": 1}}` {
		t.Errorf("block = %q", got)
	}
	if extractJSONBlock("no json here") != "" {
		t.Error("expected empty for plain text")
	}
	if extractJSONBlock(`unbalanced {"a": {"b": 1}`) != "" {
		t.Error("expected empty for unbalanced braces")
	}
}
