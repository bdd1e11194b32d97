package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/blob"
	"github.com/zavaops/ticketflow/internal/common"
	"github.com/zavaops/ticketflow/internal/model"
	"github.com/zavaops/ticketflow/internal/pipeline"
	"github.com/zavaops/ticketflow/internal/store"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []string
}

func (r *recordingDispatcher) Submit(ticketID string, stage pipeline.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, ticketID+"/"+stage.String())
	return nil
}

func newIngestService(t *testing.T) (*Service, *store.MemoryStore, *recordingDispatcher) {
	t.Helper()
	st := store.NewMemoryStore()
	blobs, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	disp := &recordingDispatcher{}
	svc := NewService(st, blobs, disp, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, st, disp
}

func TestNewTicketIDFormat(t *testing.T) {
	re := regexp.MustCompile(`^ZAVA-\d{4}-\d{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := NewTicketID()
		if !re.MatchString(id) {
			t.Fatalf("id %q does not match format", id)
		}
		seen[id] = true
	}
	if len(seen) < 49 {
		t.Errorf("ids not unique enough: %d distinct of 50", len(seen))
	}
}

func TestIngestBytesCreatesTicket(t *testing.T) {
	svc, st, disp := newIngestService(t)

	data := []byte("%PDF-1.7 fake invoice body")
	tk, err := svc.IngestBytes(context.Background(), "invoice.pdf", "application/pdf", data, &model.RawTicketData{
		Title:    "Chemical restock invoice",
		Priority: constants.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("IngestBytes: %v", err)
	}

	stored, err := st.Get(context.Background(), tk.TicketID)
	if err != nil {
		t.Fatalf("ticket not stored: %v", err)
	}
	if stored.Status != constants.StatusIngested {
		t.Errorf("status = %q", stored.Status)
	}
	if stored.Raw.Title != "Chemical restock invoice" || stored.Raw.Priority != constants.PriorityHigh {
		t.Errorf("raw = %+v", stored.Raw)
	}
	if len(stored.Attachments) != 1 {
		t.Fatalf("attachments = %+v", stored.Attachments)
	}
	att := stored.Attachments[0]
	if att.Filename != "invoice.pdf" || att.SizeBytes != int64(len(data)) {
		t.Errorf("attachment = %+v", att)
	}
	if !strings.HasPrefix(att.BlobURL, "blob://") {
		t.Errorf("blobUrl = %q", att.BlobURL)
	}

	if len(disp.jobs) != 1 || disp.jobs[0] != tk.TicketID+"/extract" {
		t.Errorf("dispatched = %v", disp.jobs)
	}
}

func TestIngestBytesDefaultsRawFields(t *testing.T) {
	svc, _, _ := newIngestService(t)

	tk, err := svc.IngestBytes(context.Background(), "scan-001.pdf", "application/pdf", []byte("x"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if tk.Raw.Title != "Invoice document: scan-001.pdf" {
		t.Errorf("title = %q", tk.Raw.Title)
	}
	if tk.Raw.Priority != constants.PriorityNormal {
		t.Errorf("priority = %q", tk.Raw.Priority)
	}
}

func TestIngestBytesRejections(t *testing.T) {
	svc, _, disp := newIngestService(t)

	tests := []struct {
		name        string
		contentType string
		data        []byte
	}{
		{"empty payload", "application/pdf", nil},
		{"wrong content type", "image/png", []byte("x")},
		{"oversized", "application/pdf", make([]byte, constants.MaxUploadBytes+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IngestBytes(context.Background(), "f.pdf", tt.contentType, tt.data, nil)
			if !errors.Is(err, common.ErrInvalidInput) {
				t.Fatalf("err = %v, want invalid input", err)
			}
		})
	}
	if len(disp.jobs) != 0 {
		t.Errorf("rejected uploads must not dispatch: %v", disp.jobs)
	}
}

func TestIngestBytesAcceptsOctetStreamWithParams(t *testing.T) {
	svc, _, _ := newIngestService(t)
	if _, err := svc.IngestBytes(context.Background(), "f.pdf", "application/octet-stream; charset=binary", []byte("x"), nil); err != nil {
		t.Fatalf("IngestBytes: %v", err)
	}
}

func TestIngestFileMovesToProcessed(t *testing.T) {
	svc, st, _ := newIngestService(t)

	dropDir := t.TempDir()
	path := filepath.Join(dropDir, "dropped.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7 dropped"), 0o644); err != nil {
		t.Fatal(err)
	}

	tk, err := svc.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if _, err := st.Get(context.Background(), tk.TicketID); err != nil {
		t.Fatalf("ticket not stored: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("source file should be moved away")
	}
	if _, err := os.Stat(filepath.Join(dropDir, "processed", "dropped.pdf")); err != nil {
		t.Errorf("processed copy missing: %v", err)
	}
}
