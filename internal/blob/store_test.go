package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/zavaops/ticketflow/internal/common"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	url, err := s.Upload(ctx, "ZAVA-2026-00000001/invoice.pdf", []byte("%PDF-1.7 test"), "application/pdf")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "blob://ZAVA-2026-00000001/invoice.pdf" {
		t.Fatalf("url = %q", url)
	}
	if NameFromURL(url) != "ZAVA-2026-00000001/invoice.pdf" {
		t.Fatalf("NameFromURL = %q", NameFromURL(url))
	}

	ok, err := s.Exists(ctx, "ZAVA-2026-00000001/invoice.pdf")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	data, err := s.Download(ctx, "ZAVA-2026-00000001/invoice.pdf")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "%PDF-1.7 test" {
		t.Fatalf("data = %q", data)
	}

	if err := s.Delete(ctx, "ZAVA-2026-00000001/invoice.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Download(ctx, "ZAVA-2026-00000001/invoice.pdf"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("Download after delete = %v, want not found", err)
	}
	// Deleting a missing blob is fine.
	if err := s.Delete(ctx, "ZAVA-2026-00000001/invoice.pdf"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"../escape.pdf", "/etc/passwd", "a/../../b"} {
		if _, err := s.Upload(ctx, name, []byte("x"), ""); !errors.Is(err, common.ErrInvalidInput) {
			t.Errorf("Upload(%q) = %v, want invalid input", name, err)
		}
	}
}
