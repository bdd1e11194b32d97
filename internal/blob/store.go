// Package blob stores ticket attachments. The filesystem implementation
// mirrors an object store layout: one flat namespace of blob names under a
// configured root directory.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zavaops/ticketflow/internal/common"
)

// Store is the attachment storage contract.
type Store interface {
	// Upload writes the blob and returns its stable URL.
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
	// Download returns the blob contents.
	Download(ctx context.Context, name string) ([]byte, error)
	// Delete removes the blob. Missing blobs are not an error.
	Delete(ctx context.Context, name string) error
	// Exists reports whether the blob is present.
	Exists(ctx context.Context, name string) (bool, error)
}

// FSStore keeps blobs as files under a root directory.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, common.NewAppError("BLOB_CONFIG", "blob directory is required", common.ErrInvalidInput)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, common.NewAppError("BLOB_MKDIR", "failed to create blob directory", err)
	}
	return &FSStore{root: root}, nil
}

// path resolves a blob name inside the root, rejecting traversal outside it.
func (s *FSStore) path(name string) (string, error) {
	clean := filepath.Clean(name)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", common.NewAppError("BLOB_NAME", fmt.Sprintf("invalid blob name %q", name), common.ErrInvalidInput)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FSStore) Upload(_ context.Context, name string, data []byte, _ string) (string, error) {
	p, err := s.path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", common.NewAppError("BLOB_MKDIR", "failed to create blob subdirectory", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", common.NewAppError("BLOB_WRITE", "failed to write blob", err)
	}
	return "blob://" + filepath.ToSlash(filepath.Clean(name)), nil
}

func (s *FSStore) Download(_ context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, common.NewAppError("BLOB_NOT_FOUND", fmt.Sprintf("blob %q not found", name), common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError("BLOB_READ", "failed to read blob", err)
	}
	return data, nil
}

func (s *FSStore) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return common.NewAppError("BLOB_DELETE", "failed to delete blob", err)
	}
	return nil
}

func (s *FSStore) Exists(_ context.Context, name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(p)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, common.NewAppError("BLOB_STAT", "failed to stat blob", statErr)
}

// NameFromURL strips the blob URL scheme back to the stored name.
func NameFromURL(url string) string {
	return strings.TrimPrefix(url, "blob://")
}

var _ Store = (*FSStore)(nil)
