// Package store persists ticket documents. Two implementations exist: an
// in-memory store for development and tests, and a Postgres-backed store
// that keeps each ticket as a JSONB document.
package store

import (
	"context"

	"github.com/zavaops/ticketflow/internal/model"
)

// ListOptions filters and paginates ticket listings.
type ListOptions struct {
	Status   string
	Page     int // 1-based
	PageSize int
}

// TicketStore is the persistence contract for ticket documents.
//
// Update applies a partial patch atomically: implementations must guarantee
// that two concurrent patches touching different stages both survive.
type TicketStore interface {
	Create(ctx context.Context, t *model.Ticket) error
	Get(ctx context.Context, ticketID string) (*model.Ticket, error)
	Update(ctx context.Context, ticketID string, patch *model.TicketPatch) (*model.Ticket, error)
	Delete(ctx context.Context, ticketID string) error
	List(ctx context.Context, opts ListOptions) (*model.TicketList, error)
	All(ctx context.Context) ([]*model.Ticket, error)
}
