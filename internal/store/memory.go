package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zavaops/ticketflow/internal/common"
	"github.com/zavaops/ticketflow/internal/model"
)

// MemoryStore keeps tickets in a process-local map. Used in development mode
// (no DB_URL configured) and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]*model.Ticket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]*model.Ticket)}
}

func (s *MemoryStore) Create(_ context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[t.TicketID]; exists {
		return common.NewAppError("TICKET_EXISTS", "ticket already exists", common.ErrConflict)
	}
	cp := *t
	s.tickets[t.TicketID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ticketID string) (*model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, common.NewAppError("TICKET_NOT_FOUND", "ticket not found", common.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, ticketID string, patch *model.TicketPatch) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, common.NewAppError("TICKET_NOT_FOUND", "ticket not found", common.ErrNotFound)
	}
	model.ApplyPatch(t, patch)
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticketID]; !ok {
		return common.NewAppError("TICKET_NOT_FOUND", "ticket not found", common.ErrNotFound)
	}
	delete(s.tickets, ticketID)
	return nil
}

func (s *MemoryStore) List(_ context.Context, opts ListOptions) (*model.TicketList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*model.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if opts.Status != "" && string(t.Status) != opts.Status {
			continue
		}
		matched = append(matched, t)
	}
	// Newest first, matching the list endpoint contract.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return paginate(matched, opts), nil
}

func (s *MemoryStore) All(_ context.Context) ([]*model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

// paginate slices a sorted result set into the requested page and builds the
// list response. Shared by both store implementations.
func paginate(matched []*model.Ticket, opts ListOptions) *model.TicketList {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size < 1 {
		size = 20
	}

	total := len(matched)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	summaries := make([]model.TicketSummary, 0, end-start)
	for _, t := range matched[start:end] {
		summaries = append(summaries, t.Summarize())
	}
	return &model.TicketList{
		Tickets:    summaries,
		TotalCount: total,
		Page:       page,
		PageSize:   size,
	}
}
