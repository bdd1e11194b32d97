// Package export produces XLSX workbooks of processed tickets for the
// accounting side of the house.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/store"
)

// Service reads tickets from the store and renders them as XLSX bytes.
type Service struct {
	store  store.TicketStore
	logger *slog.Logger
}

func NewService(st store.TicketStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// TicketsXLSX returns an XLSX workbook of tickets, one row per ticket.
// When status is non-empty only tickets in that status are exported.
func (s *Service) TicketsXLSX(ctx context.Context, status constants.TicketStatus) ([]byte, error) {
	start := time.Now()

	tickets, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Tickets"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// Drop the default sheet so the workbook opens on Tickets.
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Ticket ID",
		"Status",
		"Created",
		"Vendor",
		"Invoice Number",
		"Invoice Date",
		"Due Date",
		"Total Amount",
		"Vendor Code",
		"Department",
		"Next Action",
		"Flags",
		"Payment ID",
		"Payment Date",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	exported := 0
	for _, t := range tickets {
		if status != "" && t.Status != status {
			continue
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, t.TicketID)
		write(2, string(t.Status))
		write(3, t.CreatedAt.UTC().Format("2006-01-02 15:04"))

		if fl := t.Extraction.Fields; fl != nil {
			write(4, fl.VendorName)
			write(5, fl.InvoiceNumber)
			write(6, fl.InvoiceDate)
			write(7, fl.DueDate)
			write(8, fl.TotalAmount)
		}
		if codes := t.AIProcessing.StandardizedCodes; codes != nil {
			write(9, codes.VendorCode)
			write(10, codes.DepartmentCode)
		}
		write(11, t.AIProcessing.NextAction)
		write(12, strings.Join(t.AIProcessing.Flags, ", "))

		if p := t.InvoiceProcessing.PaymentSubmission; p != nil && p.Submitted {
			write(13, p.PaymentID)
			write(14, p.ExpectedPaymentDate)
		}

		row++
		exported++
	}

	_ = f.SetColWidth(sheet, "A", "A", 22) // ticket id
	_ = f.SetColWidth(sheet, "B", "B", 18) // status
	_ = f.SetColWidth(sheet, "C", "C", 18) // created
	_ = f.SetColWidth(sheet, "D", "D", 28) // vendor
	_ = f.SetColWidth(sheet, "E", "G", 16) // invoice number/dates
	_ = f.SetColWidth(sheet, "H", "H", 14) // amount
	_ = f.SetColWidth(sheet, "I", "J", 16) // codes
	_ = f.SetColWidth(sheet, "K", "L", 24) // routing
	_ = f.SetColWidth(sheet, "M", "N", 20) // payment

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"status_filter", string(status),
		"rows", exported,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
