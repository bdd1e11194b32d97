package simulate

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/model"
	"github.com/zavaops/ticketflow/internal/refdata"
)

// Validation limits for the simulated payment run.
const (
	maxInvoiceAmount = 500_000
	budgetThreshold  = 100_000
)

// InvoiceProcessor is the local stage 3 simulator: field validation plus a
// simulated payment submission.
type InvoiceProcessor struct {
	mappings *refdata.Mappings
	logger   *slog.Logger
	now      func() time.Time
	randInt  func(n int) int
}

func NewInvoiceProcessor(mappings *refdata.Mappings, logger *slog.Logger) *InvoiceProcessor {
	return &InvoiceProcessor{
		mappings: mappings,
		logger:   logger,
		now:      time.Now,
		randInt:  rand.Intn,
	}
}

// Run validates the invoice and submits payment when every check passes.
// A ticket whose routing decision is anything other than invoice processing
// is recorded as skipped, not failed: the ticket still completes the
// pipeline so the other route (manual review, vendor approval) owns it.
func (p *InvoiceProcessor) Run(t *model.Ticket) *model.TicketPatch {
	start := time.Now()
	now := p.now().UTC()

	nextAction := t.AIProcessing.NextAction
	if nextAction != "" && nextAction != constants.NextActionInvoiceProcessing {
		elapsedMS := time.Since(start).Milliseconds() + skipLatencyPadMS
		errs := []string{
			fmt.Sprintf("Ticket nextAction is '%s', not 'invoice_processing'. Skipped.", nextAction),
		}
		p.logger.Info("simulate.invoice.skipped",
			"ticket_id", t.TicketID, "next_action", nextAction)
		return &model.TicketPatch{
			Status: model.StatusPtr(constants.StatusInvoiceProcessed),
			InvoiceProcessing: &model.InvoiceProcessingPatch{
				Status:           model.StagePtr(constants.StageStatusSkipped),
				CompletedAt:      model.TimePtr(now),
				AgentName:        model.StrPtr(stageCAgentName),
				AgentVersion:     model.StrPtr(agentVersion),
				Errors:           &errs,
				ProcessingTimeMS: model.Int64Ptr(elapsedMS),
			},
		}
	}

	fields := extractedFields(t)
	vendorName := fields.VendorName
	if vendorName == "" {
		vendorName = "Unknown Vendor"
	}
	vendor := p.mappings.Vendor(vendorName)

	dueDateValid := true
	pastDue := false
	if fields.DueDate != "" {
		due, err := time.Parse("2006-01-02", fields.DueDate)
		if err != nil {
			dueDateValid = false
		} else {
			y, m, d := now.Date()
			today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
			pastDue = due.Before(today)
		}
	}

	invoiceNumber := fields.InvoiceNumber
	invoiceNumberValid := invoiceNumber != "" &&
		(strings.HasPrefix(invoiceNumber, "INV-") ||
			strings.HasPrefix(invoiceNumber, "DC-") ||
			strings.HasPrefix(invoiceNumber, "FRT-") ||
			len(invoiceNumber) > 5)

	amountValid := fields.TotalAmount > 0 && fields.TotalAmount < maxInvoiceAmount
	budgetAvailable := fields.TotalAmount < budgetThreshold

	validations := &model.InvoiceValidations{
		InvoiceNumberValid: invoiceNumberValid,
		AmountCorrect:      amountValid,
		DueDateValid:       dueDateValid,
		VendorApproved:     vendor.Approved,
		BudgetAvailable:    budgetAvailable,
	}

	errs := []string{}
	if !invoiceNumberValid {
		errs = append(errs, fmt.Sprintf("Invoice number '%s' has invalid format.", invoiceNumber))
	}
	if !amountValid {
		errs = append(errs, fmt.Sprintf("Amount $%s is outside acceptable range.", formatMoney(fields.TotalAmount)))
	}
	if !dueDateValid {
		errs = append(errs, fmt.Sprintf("Due date '%s' is not a valid date.", fields.DueDate))
	}
	if !vendor.Approved {
		errs = append(errs, fmt.Sprintf("Vendor '%s' is not on the approved vendor list.", vendorName))
	}
	if !budgetAvailable {
		errs = append(errs, fmt.Sprintf("Amount $%s exceeds department budget threshold.", formatMoney(fields.TotalAmount)))
	}

	payment := &model.PaymentSubmission{Submitted: false, Status: "not_submitted"}
	if validations.AllPass() {
		// Past-due invoices get an expedited payment date.
		leadDays := 3
		if pastDue {
			leadDays = 1
		}
		payment = &model.PaymentSubmission{
			Submitted:           true,
			PaymentID:           fmt.Sprintf("PAY-%s-%05d", now.Format("20060102"), 10000+p.randInt(90000)),
			SubmittedAt:         model.TimePtr(now),
			ExpectedPaymentDate: now.AddDate(0, 0, leadDays).Format("2006-01-02"),
			PaymentMethod:       "ACH Transfer",
			Status:              "submitted",
		}
	}

	elapsedMS := time.Since(start).Milliseconds() + stageCLatencyPadMS

	p.logger.Info("simulate.invoice.done",
		"ticket_id", t.TicketID, "submitted", payment.Submitted,
		"errors", len(errs), "elapsed_ms", elapsedMS)

	return &model.TicketPatch{
		Status: model.StatusPtr(constants.StatusInvoiceProcessed),
		InvoiceProcessing: &model.InvoiceProcessingPatch{
			Status:            model.StagePtr(constants.StageStatusCompleted),
			CompletedAt:       model.TimePtr(now),
			AgentName:         model.StrPtr(stageCAgentName),
			AgentVersion:      model.StrPtr(agentVersion),
			Validations:       validations,
			PaymentSubmission: payment,
			Errors:            &errs,
			ProcessingTimeMS:  model.Int64Ptr(elapsedMS),
		},
	}
}
