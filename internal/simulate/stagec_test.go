package simulate

import (
	"strings"
	"testing"
	"time"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/model"
	"github.com/zavaops/ticketflow/internal/refdata"
)

func newInvoiceProcessor() *InvoiceProcessor {
	p := NewInvoiceProcessor(refdata.Default(), testLogger())
	p.now = func() time.Time { return fixedNow }
	p.randInt = func(n int) int { return 12345 }
	return p
}

func processableTicket(f *model.InvoiceFields) *model.Ticket {
	t := ticketWithFields(f)
	t.Status = constants.StatusAIProcessed
	t.AIProcessing.Status = constants.StageStatusCompleted
	t.AIProcessing.NextAction = constants.NextActionInvoiceProcessing
	return t
}

func TestInvoiceProcessorAllChecksPass(t *testing.T) {
	patch := newInvoiceProcessor().Run(processableTicket(cleanInvoice()))

	if *patch.Status != constants.StatusInvoiceProcessed {
		t.Fatalf("status = %q", *patch.Status)
	}
	ip := patch.InvoiceProcessing
	if *ip.Status != constants.StageStatusCompleted {
		t.Fatalf("stage status = %q", *ip.Status)
	}
	v := ip.Validations
	if !v.AllPass() {
		t.Fatalf("validations = %+v", v)
	}
	if len(*ip.Errors) != 0 {
		t.Errorf("errors = %v", *ip.Errors)
	}

	pay := ip.PaymentSubmission
	if !pay.Submitted || pay.Status != "submitted" {
		t.Fatalf("payment = %+v", pay)
	}
	if pay.PaymentID != "PAY-20260829-22345" {
		t.Errorf("paymentId = %q", pay.PaymentID)
	}
	if pay.PaymentMethod != "ACH Transfer" {
		t.Errorf("paymentMethod = %q", pay.PaymentMethod)
	}
	if pay.ExpectedPaymentDate != "2026-09-01" {
		t.Errorf("expectedPaymentDate = %q", pay.ExpectedPaymentDate)
	}
	if *ip.AgentName != "invoice-processing-agent (local-sim)" {
		t.Errorf("agentName = %q", *ip.AgentName)
	}
	if *ip.ProcessingTimeMS < stageCLatencyPadMS {
		t.Errorf("processingTimeMs = %d, want >= pad", *ip.ProcessingTimeMS)
	}
}

func TestInvoiceProcessorPastDueExpedited(t *testing.T) {
	f := cleanInvoice()
	f.DueDate = "2026-08-20"

	patch := newInvoiceProcessor().Run(processableTicket(f))
	pay := patch.InvoiceProcessing.PaymentSubmission
	if !pay.Submitted {
		t.Fatalf("payment not submitted: %v", *patch.InvoiceProcessing.Errors)
	}
	if pay.ExpectedPaymentDate != "2026-08-30" {
		t.Errorf("expectedPaymentDate = %q, want next day", pay.ExpectedPaymentDate)
	}
}

func TestInvoiceProcessorSkipsOtherRoutes(t *testing.T) {
	tk := processableTicket(cleanInvoice())
	tk.AIProcessing.NextAction = constants.NextActionManualReview

	patch := newInvoiceProcessor().Run(tk)
	if *patch.Status != constants.StatusInvoiceProcessed {
		t.Fatalf("status = %q", *patch.Status)
	}
	ip := patch.InvoiceProcessing
	if *ip.Status != constants.StageStatusSkipped {
		t.Fatalf("stage status = %q", *ip.Status)
	}
	if ip.PaymentSubmission != nil {
		t.Errorf("skipped run should not carry a payment: %+v", ip.PaymentSubmission)
	}
	want := "Ticket nextAction is 'manual_review', not 'invoice_processing'. Skipped."
	if len(*ip.Errors) != 1 || (*ip.Errors)[0] != want {
		t.Errorf("errors = %v", *ip.Errors)
	}
}

func TestInvoiceProcessorEmptyNextActionProceeds(t *testing.T) {
	tk := processableTicket(cleanInvoice())
	tk.AIProcessing.NextAction = ""

	patch := newInvoiceProcessor().Run(tk)
	if *patch.InvoiceProcessing.Status != constants.StageStatusCompleted {
		t.Errorf("stage status = %q", *patch.InvoiceProcessing.Status)
	}
}

func TestInvoiceProcessorValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *model.InvoiceFields)
		check   func(v *model.InvoiceValidations) bool
		errPart string
	}{
		{
			name:    "bad invoice number",
			mutate:  func(f *model.InvoiceFields) { f.InvoiceNumber = "X1" },
			check:   func(v *model.InvoiceValidations) bool { return !v.InvoiceNumberValid },
			errPart: "Invoice number 'X1' has invalid format.",
		},
		{
			name:    "zero amount",
			mutate:  func(f *model.InvoiceFields) { f.TotalAmount = 0 },
			check:   func(v *model.InvoiceValidations) bool { return !v.AmountCorrect },
			errPart: "Amount $0.00 is outside acceptable range.",
		},
		{
			name:    "amount over cap",
			mutate:  func(f *model.InvoiceFields) { f.TotalAmount = 600000 },
			check:   func(v *model.InvoiceValidations) bool { return !v.AmountCorrect },
			errPart: "Amount $600,000.00 is outside acceptable range.",
		},
		{
			name:    "unparseable due date",
			mutate:  func(f *model.InvoiceFields) { f.DueDate = "soonish" },
			check:   func(v *model.InvoiceValidations) bool { return !v.DueDateValid },
			errPart: "Due date 'soonish' is not a valid date.",
		},
		{
			name:    "unapproved vendor",
			mutate:  func(f *model.InvoiceFields) { f.VendorName = "Adventure Works Supply" },
			check:   func(v *model.InvoiceValidations) bool { return !v.VendorApproved },
			errPart: "Vendor 'Adventure Works Supply' is not on the approved vendor list.",
		},
		{
			name:    "over budget",
			mutate:  func(f *model.InvoiceFields) { f.TotalAmount = 150000 },
			check:   func(v *model.InvoiceValidations) bool { return !v.BudgetAvailable },
			errPart: "Amount $150,000.00 exceeds department budget threshold.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cleanInvoice()
			tt.mutate(f)
			patch := newInvoiceProcessor().Run(processableTicket(f))
			ip := patch.InvoiceProcessing
			if !tt.check(ip.Validations) {
				t.Fatalf("validations = %+v", ip.Validations)
			}
			if ip.PaymentSubmission.Submitted {
				t.Errorf("payment submitted despite failed validation")
			}
			if ip.PaymentSubmission.Status != "not_submitted" {
				t.Errorf("payment status = %q", ip.PaymentSubmission.Status)
			}
			found := false
			for _, e := range *ip.Errors {
				if strings.Contains(e, tt.errPart) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v missing %q", *ip.Errors, tt.errPart)
			}
		})
	}
}

func TestInvoiceProcessorShortPrefixedNumberValid(t *testing.T) {
	f := cleanInvoice()
	f.InvoiceNumber = "DC-12"

	patch := newInvoiceProcessor().Run(processableTicket(f))
	if !patch.InvoiceProcessing.Validations.InvoiceNumberValid {
		t.Errorf("prefixed invoice number should pass regardless of length")
	}
}

func TestInvoiceProcessorMissingDueDateStillValid(t *testing.T) {
	f := cleanInvoice()
	f.DueDate = ""

	patch := newInvoiceProcessor().Run(processableTicket(f))
	if !patch.InvoiceProcessing.Validations.DueDateValid {
		t.Errorf("absent due date should not fail validation")
	}
}
