package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a drop directory and ingests PDFs that land in it. Files
// are often written in several chunks, so each path gets a settle delay
// after its last event before ingestion starts.
type Watcher struct {
	dir         string
	settleDelay time.Duration
	service     *Service
	logger      *slog.Logger
}

func NewWatcher(dir string, settleDelay time.Duration, service *Service, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if settleDelay <= 0 {
		settleDelay = 2 * time.Second
	}
	return &Watcher{dir: dir, settleDelay: settleDelay, service: service, logger: logger}
}

func watchable(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Run watches until the context is cancelled. Files already present at
// startup are ingested first.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watch.start", "dir", w.dir, "settle_delay", w.settleDelay.String())

	// Initial scan: anything sitting in the drop dir from before startup.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !watchable(e.Name()) {
			continue
		}
		w.ingest(ctx, filepath.Join(w.dir, e.Name()))
	}

	pending := make(map[string]*time.Timer)
	settled := make(chan string, 64)

	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch.stop", "dir", w.dir)
			return ctx.Err()

		case ev := <-fsw.Events:
			if !watchable(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			path := ev.Name
			if t, ok := pending[path]; ok {
				t.Stop()
			}
			pending[path] = time.AfterFunc(w.settleDelay, func() {
				select {
				case settled <- path:
				case <-ctx.Done():
				}
			})

		case path := <-settled:
			delete(pending, path)
			w.ingest(ctx, path)

		case err := <-fsw.Errors:
			w.logger.Error("watch.error", "dir", w.dir, "err", err)
		}
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		// Gone before the settle delay expired (moved or deleted).
		return
	}
	t, err := w.service.IngestFile(ctx, path)
	if err != nil {
		w.logger.Error("watch.ingest.failed", "path", path, "err", err)
		return
	}
	w.logger.Info("watch.ingest.ok", "path", path, "ticket_id", t.TicketID)
}
