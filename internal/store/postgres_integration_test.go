//go:build integration

package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/common"
	"github.com/zavaops/ticketflow/internal/model"
)

// newPostgresHarness boots a Postgres 16 container and returns a ready store.
func newPostgresHarness(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("ticketflow"),
		postgres.WithUsername("ticketflow"),
		postgres.WithPassword("ticketflow"),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("resolve connection string: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse pgx config: %v", err)
	}
	cfg.MaxConns = 16

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := NewPostgresStore(ctx, pool, slog.Default())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return s
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newPostgresHarness(t)

	tk := model.NewTicket("ZAVA-2026-30000001",
		&model.RawTicketData{Title: "Chemical restock invoice", Priority: constants.PriorityHigh},
		[]model.AttachmentInfo{{Filename: "invoice.pdf", ContentType: "application/pdf", SizeBytes: 1024}},
		time.Now().UTC())

	if err := s.Create(ctx, tk); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, tk); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("duplicate Create = %v, want conflict", err)
	}

	got, err := s.Get(ctx, tk.TicketID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Raw.Title != "Chemical restock invoice" || got.Raw.Priority != constants.PriorityHigh {
		t.Fatalf("raw = %+v", got.Raw)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Filename != "invoice.pdf" {
		t.Fatalf("attachments = %+v", got.Attachments)
	}

	if err := s.HealthCheck(ctx, 2*time.Second); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestPostgresStoreUpdateMergesStages(t *testing.T) {
	ctx := context.Background()
	s := newPostgresHarness(t)

	tk := model.NewTicket("ZAVA-2026-30000002", nil, nil, time.Now().UTC())
	if err := s.Create(ctx, tk); err != nil {
		t.Fatal(err)
	}

	_, err := s.Update(ctx, tk.TicketID, &model.TicketPatch{
		Status: model.StatusPtr(constants.StatusExtracted),
		Extraction: &model.ExtractionPatch{
			Status:           model.StagePtr(constants.StageStatusCompleted),
			ProcessingTimeMS: model.Int64Ptr(734),
			Fields:           &model.InvoiceFields{InvoiceNumber: "INV-2026-0042", TotalAmount: 1234.56},
		},
	})
	if err != nil {
		t.Fatalf("first Update: %v", err)
	}

	got, err := s.Update(ctx, tk.TicketID, &model.TicketPatch{
		Status: model.StatusPtr(constants.StatusAIProcessed),
		AIProcessing: &model.AIProcessingPatch{
			Status:     model.StagePtr(constants.StageStatusCompleted),
			NextAction: model.StrPtr(constants.NextActionInvoiceProcessing),
		},
	})
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}

	if got.Extraction.Fields == nil || got.Extraction.Fields.InvoiceNumber != "INV-2026-0042" {
		t.Fatal("extraction result lost by second stage patch")
	}
	if got.AIProcessing.NextAction != constants.NextActionInvoiceProcessing {
		t.Fatalf("nextAction = %q", got.AIProcessing.NextAction)
	}
	if got.Status != constants.StatusAIProcessed {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestPostgresStoreListFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	s := newPostgresHarness(t)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []constants.TicketStatus{
		constants.StatusIngested, constants.StatusExtracted, constants.StatusExtracted,
	} {
		tk := model.NewTicket("ZAVA-2026-3100000"+string(rune('0'+i)), nil, nil, base.Add(time.Duration(i)*time.Minute))
		tk.Status = status
		if err := s.Create(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.List(ctx, ListOptions{Status: "extracted", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list.TotalCount != 2 {
		t.Fatalf("filtered total = %d", list.TotalCount)
	}

	all, err := s.List(ctx, ListOptions{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if all.TotalCount != 3 || len(all.Tickets) != 2 {
		t.Fatalf("total=%d len=%d", all.TotalCount, len(all.Tickets))
	}
	// Newest first.
	if all.Tickets[0].TicketID != "ZAVA-2026-31000002" {
		t.Fatalf("first = %s", all.Tickets[0].TicketID)
	}
}

func TestPostgresStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := newPostgresHarness(t)

	tk := model.NewTicket("ZAVA-2026-30000004", nil, nil, time.Now().UTC())
	if err := s.Create(ctx, tk); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, tk.TicketID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, tk.TicketID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("Get after delete = %v, want not found", err)
	}
	if err := s.Delete(ctx, tk.TicketID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("second Delete = %v, want not found", err)
	}
}
