// Package simulate provides local stand-ins for the remote processing
// agents. The simulators produce the same document updates the real agents
// would write, driven by the code-mapping reference tables, so the pipeline
// runs end to end without any remote dependency.
package simulate

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/model"
	"github.com/zavaops/ticketflow/internal/refdata"
)

const (
	stageBAgentName = "information-processing-agent (local-sim)"
	stageCAgentName = "invoice-processing-agent (local-sim)"
	agentVersion    = "1"

	// Latency pads approximate what the hosted agents cost end to end.
	stageBLatencyPadMS = 850
	stageCLatencyPadMS = 1200
	skipLatencyPadMS   = 120
)

// amountTolerance below which a line-item sum vs subtotal difference is
// treated as rounding noise.
const amountTolerance = 0.01

// Standardizer is the local stage 2 simulator.
type Standardizer struct {
	mappings *refdata.Mappings
	logger   *slog.Logger
	now      func() time.Time
}

func NewStandardizer(mappings *refdata.Mappings, logger *slog.Logger) *Standardizer {
	return &Standardizer{mappings: mappings, logger: logger, now: time.Now}
}

// Run standardizes codes, flags exceptions, and routes the ticket. The
// returned patch carries the complete stage 2 result plus the ticket-level
// ai_processed status.
func (s *Standardizer) Run(t *model.Ticket) *model.TicketPatch {
	start := time.Now()
	fields := extractedFields(t)

	vendorName := fields.VendorName
	if vendorName == "" {
		vendorName = "Unknown Vendor"
	}
	invoiceNumber := fields.InvoiceNumber
	if invoiceNumber == "" {
		invoiceNumber = "N/A"
	}

	vendor := s.mappings.Vendor(vendorName)

	// Standardize product codes and watch unit prices on the way through.
	var productCodes []string
	firstCategory := ""
	priceDiscrepancy := false
	for _, item := range fields.LineItems {
		product := s.mappings.Product(item.ProductCode)
		productCodes = append(productCodes, product.StandardCode)
		if firstCategory == "" {
			firstCategory = product.Category
		}
		if r := product.ExpectedPriceRange; r != nil && item.UnitPrice != 0 {
			if item.UnitPrice < r.Min || item.UnitPrice > r.Max {
				priceDiscrepancy = true
			}
		}
	}
	if productCodes == nil {
		productCodes = []string{}
	}

	dept := s.mappings.Department(firstCategory)

	// Line-item sum vs stated subtotal.
	amountDiscrepancy := false
	if fields.Subtotal != 0 {
		var computed float64
		for _, item := range fields.LineItems {
			computed += item.Amount
		}
		if computed != 0 && abs(computed-fields.Subtotal) > amountTolerance {
			amountDiscrepancy = true
		}
	}

	// Routing decision, first match wins.
	flags := []string{}
	actionKey := constants.ActionAllChecksPass
	switch {
	case !vendor.Approved:
		actionKey = constants.ActionVendorNotApproved
		flags = append(flags, constants.FlagUnapprovedVendor)
	case priceDiscrepancy || amountDiscrepancy:
		actionKey = constants.ActionAmountDiscrepancy
		flags = append(flags, constants.FlagAmountDiscrepancy, constants.FlagManualReviewRequired)
	case fields.HazardousFlag:
		actionKey = constants.ActionHazardousPresent
		flags = append(flags, constants.FlagHazardous, constants.FlagEHSReviewRequired)
	case isPastDue(fields.DueDate, s.now()):
		actionKey = constants.ActionPastDue
		flags = append(flags, constants.FlagPastDue, constants.FlagExpeditedPayment)
	}

	action := s.mappings.Action(actionKey)

	summary := buildSummary(invoiceNumber, vendorName, fields.TotalAmount, fields.LineItems, flags, action)

	confidence := 0.95
	if !vendor.Approved {
		confidence = 0.78
	} else if actionKey == constants.ActionAmountDiscrepancy {
		confidence = 0.85
	}

	elapsedMS := time.Since(start).Milliseconds() + stageBLatencyPadMS
	now := s.now().UTC()

	s.logger.Info("simulate.standardize.done",
		"ticket_id", t.TicketID, "next_action", action.NextAction,
		"flags", strings.Join(flags, ","), "elapsed_ms", elapsedMS)

	return &model.TicketPatch{
		Status: model.StatusPtr(constants.StatusAIProcessed),
		AIProcessing: &model.AIProcessingPatch{
			Status:       model.StagePtr(constants.StageStatusCompleted),
			CompletedAt:  model.TimePtr(now),
			AgentName:    model.StrPtr(stageBAgentName),
			AgentVersion: model.StrPtr(agentVersion),
			StandardizedCodes: &model.StandardizedCodes{
				VendorCode:     vendor.VendorCode,
				ProductCodes:   productCodes,
				DepartmentCode: dept.DepartmentCode,
				CostCenter:     dept.CostCenter,
			},
			Summary:          model.StrPtr(summary),
			NextAction:       model.StrPtr(action.NextAction),
			Flags:            &flags,
			Confidence:       model.Float64Ptr(confidence),
			ProcessingTimeMS: model.Int64Ptr(elapsedMS),
		},
	}
}

// extractedFields returns the ticket's structured invoice record, or an
// empty one when extraction has not produced fields.
func extractedFields(t *model.Ticket) *model.InvoiceFields {
	if t.Extraction.Fields != nil {
		return t.Extraction.Fields
	}
	return &model.InvoiceFields{}
}

// isPastDue reports whether a YYYY-MM-DD due date is strictly before today.
func isPastDue(dueDate string, now time.Time) bool {
	if dueDate == "" {
		return false
	}
	due, err := time.Parse("2006-01-02", dueDate)
	if err != nil {
		return false
	}
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return due.Before(today)
}

func buildSummary(invoiceNumber, vendorName string, totalAmount float64, items []model.LineItem, flags []string, action refdata.ActionInfo) string {
	parts := []string{
		fmt.Sprintf("Invoice %s from %s for $%s.", invoiceNumber, vendorName, formatMoney(totalAmount)),
	}

	var descs []string
	for i, item := range items {
		if i == 3 {
			break
		}
		desc := item.Description
		if desc == "" {
			desc = "item"
		}
		descs = append(descs, desc)
	}
	if len(descs) > 0 {
		itemDesc := strings.Join(descs, ", ")
		if extra := len(items) - 3; extra > 0 {
			itemDesc += fmt.Sprintf(" and %d more", extra)
		}
		parts = append(parts, fmt.Sprintf("Items: %s.", itemDesc))
	}

	if len(flags) > 0 {
		parts = append(parts, fmt.Sprintf("Flags: %s.", strings.Join(flags, ", ")))
	}

	desc := action.Description
	if desc == "" {
		desc = action.NextAction
	}
	parts = append(parts, fmt.Sprintf("Action: %s.", desc))
	return strings.Join(parts, " ")
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
