// Package metrics computes operational aggregates over the ticket store for
// the dashboard endpoint.
package metrics

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/model"
	"github.com/zavaops/ticketflow/internal/store"
)

// Service reads the full ticket set and reduces it to dashboard numbers.
// The ticket volume here is operator-dashboard scale, so a full scan per
// request is fine; cache in front of this if that ever changes.
type Service struct {
	store  store.TicketStore
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.TicketStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger, now: time.Now}
}

// Dashboard computes the aggregate metrics across all tickets.
func (s *Service) Dashboard(ctx context.Context) (*model.DashboardMetrics, error) {
	start := time.Now()
	tickets, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}

	m := &model.DashboardMetrics{
		TicketsByStatus: make(map[string]int),
	}
	m.TotalTickets = len(tickets)

	y, mo, d := s.now().UTC().Date()
	today := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)

	var (
		extractSum, aiSum, invoiceSum, totalSum    int64
		extractN, aiN, invoiceSumN, totalN, doneOK int
	)
	for _, t := range tickets {
		m.TicketsByStatus[string(t.Status)]++

		if t.Status == constants.StatusError {
			m.ErrorCount++
		}
		if t.Status == constants.StatusInvoiceProcessed {
			doneOK++
			if !t.UpdatedAt.Before(today) {
				m.TicketsProcessedToday++
			}
		}
		if t.AIProcessing.NextAction == constants.NextActionManualReview {
			m.ManualReviewCount++
		}
		if p := t.InvoiceProcessing.PaymentSubmission; p != nil && p.Submitted {
			m.PaymentSubmittedCount++
		}

		if ms := t.Extraction.ProcessingTimeMS; ms > 0 {
			extractSum += ms
			extractN++
		}
		if ms := t.AIProcessing.ProcessingTimeMS; ms > 0 {
			aiSum += ms
			aiN++
		}
		if ms := t.InvoiceProcessing.ProcessingTimeMS; ms > 0 {
			invoiceSum += ms
			invoiceSumN++
		}
		if t.Status == constants.StatusInvoiceProcessed {
			total := t.Extraction.ProcessingTimeMS +
				t.AIProcessing.ProcessingTimeMS +
				t.InvoiceProcessing.ProcessingTimeMS
			if total > 0 {
				totalSum += total
				totalN++
			}
		}
	}

	m.AvgExtractionTimeMS = avg(extractSum, extractN)
	m.AvgAIProcessingTimeMS = avg(aiSum, aiN)
	m.AvgInvoiceProcessingTimeMS = avg(invoiceSum, invoiceSumN)
	m.AvgTotalPipelineTimeMS = avg(totalSum, totalN)

	// Success rate counts fully processed tickets against everything that
	// has reached a resting state (done or error); in-flight tickets don't
	// drag the rate down.
	if settled := doneOK + m.ErrorCount; settled > 0 {
		m.SuccessRate = math.Round(float64(doneOK)/float64(settled)*10000) / 100
	}

	s.logger.Debug("metrics.dashboard.computed",
		"tickets", m.TotalTickets, "elapsed_ms", time.Since(start).Milliseconds())
	return m, nil
}

func avg(sum int64, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(n)*100) / 100
}
