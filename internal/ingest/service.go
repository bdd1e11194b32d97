// Package ingest creates tickets from uploaded or dropped invoice
// documents: the attachment goes to blob storage, the ticket document is
// created in the store, and extraction is queued.
package ingest

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/blob"
	"github.com/zavaops/ticketflow/internal/common"
	"github.com/zavaops/ticketflow/internal/model"
	"github.com/zavaops/ticketflow/internal/pipeline"
	"github.com/zavaops/ticketflow/internal/store"
)

// Submitter queues a pipeline stage for a ticket. Satisfied by
// pipeline.Dispatcher.
type Submitter interface {
	Submit(ticketID string, stage pipeline.Stage) error
}

// Service turns documents into tickets.
type Service struct {
	store      store.TicketStore
	blobs      blob.Store
	dispatcher Submitter
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

func NewService(st store.TicketStore, blobs blob.Store, dispatcher Submitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		blobs:      blobs,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		newID:      NewTicketID,
	}
}

// NewTicketID generates a display ticket ID, e.g. ZAVA-2026-48301275. The
// numeric part comes from a v4 UUID so concurrent ingestors never collide on
// a counter.
func NewTicketID() string {
	u := uuid.New()
	n := binary.BigEndian.Uint32(u[0:4]) % 100000000
	return fmt.Sprintf("ZAVA-%d-%08d", time.Now().UTC().Year(), n)
}

// IngestBytes validates and stores one uploaded document, creates the
// ticket, and queues extraction. The raw submission fields are optional.
func (s *Service) IngestBytes(ctx context.Context, filename, contentType string, data []byte, raw *model.RawTicketData) (*model.Ticket, error) {
	if len(data) == 0 {
		return nil, common.NewAppError("INVALID_UPLOAD", "empty attachment", common.ErrInvalidInput)
	}
	if len(data) > constants.MaxUploadBytes {
		return nil, common.NewAppError("INVALID_UPLOAD",
			fmt.Sprintf("attachment exceeds %d bytes", constants.MaxUploadBytes), common.ErrInvalidInput)
	}
	if contentType != "" {
		base := strings.TrimSpace(strings.Split(contentType, ";")[0])
		if _, ok := constants.AllowedContentTypes[base]; !ok {
			return nil, common.NewAppError("INVALID_UPLOAD",
				fmt.Sprintf("unsupported content type %q", base), common.ErrInvalidInput)
		}
	}

	ticketID := s.newID()
	blobName := ticketID + "-" + filepath.Base(filename)
	url, err := s.blobs.Upload(ctx, blobName, data, contentType)
	if err != nil {
		return nil, common.NewAppError("BLOB_UPLOAD", "store attachment", err)
	}

	if raw == nil {
		raw = &model.RawTicketData{}
	}
	if raw.Title == "" {
		raw.Title = "Invoice document: " + filepath.Base(filename)
	}
	if raw.Priority == "" {
		raw.Priority = constants.PriorityNormal
	}

	t := model.NewTicket(ticketID, raw, []model.AttachmentInfo{{
		Filename:    filepath.Base(filename),
		BlobURL:     url,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
	}}, s.now().UTC())

	if err := s.store.Create(ctx, t); err != nil {
		// Don't leave an orphaned blob behind.
		_ = s.blobs.Delete(ctx, blobName)
		return nil, err
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Submit(ticketID, pipeline.StageExtract); err != nil {
			s.logger.Error("ingest.dispatch.failed", "ticket_id", ticketID, "err", err)
		}
	}

	s.logger.Info("ingest.ticket.created",
		"ticket_id", ticketID, "filename", filepath.Base(filename), "bytes", len(data))
	return t, nil
}

// IngestFile ingests one file from disk, then moves it into a processed/
// subdirectory next to it so the drop directory only holds pending work.
func (s *Service) IngestFile(ctx context.Context, path string) (*model.Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewAppError("INGEST_READ", path, err)
	}

	t, err := s.IngestBytes(ctx, filepath.Base(path), "application/pdf", data, nil)
	if err != nil {
		return nil, err
	}

	processed := filepath.Join(filepath.Dir(path), "processed")
	if err := os.MkdirAll(processed, 0o755); err == nil {
		dest := filepath.Join(processed, filepath.Base(path))
		if err := os.Rename(path, dest); err != nil {
			s.logger.Warn("ingest.move.failed", "path", path, "err", err)
		}
	}
	return t, nil
}
