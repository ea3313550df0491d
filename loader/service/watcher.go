package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ltypes "docchat/loader/types"
	"docchat/types"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Ingester adds one file to a collection.
type Ingester interface {
	Ingest(ctx context.Context, path, collection string) (types.Document, error)
}

// Watcher polls a source directory and hands files over for ingestion once
// they have stayed in place for MonitoringTime. Handled files are moved to
// the archive directory, or to the bad directory when ingestion failed.
type Watcher struct {
	cfg      ltypes.WatchConfig
	ingester Ingester
	logger   *zap.Logger

	mu              sync.Mutex
	fileFirstSeen   map[string]time.Time
	filesProcessing map[string]bool
}

func NewWatcher(cfg ltypes.WatchConfig, ingester Ingester, logger *zap.Logger) (*Watcher, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if err := createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:             cfg,
		ingester:        ingester,
		logger:          logger.Named("watcher"),
		fileFirstSeen:   make(map[string]time.Time),
		filesProcessing: make(map[string]bool),
	}, nil
}

// WatchFile sends settled files to fileChan until ctx is cancelled. The
// directory is polled every PollInterval; filesystem write events restart
// the settle clock of a file that is still being copied in.
func (w *Watcher) WatchFile(ctx context.Context, fileChan chan<- string) {
	w.logger.Info("start monitoring folder", zap.String("dir", w.cfg.SourceDir))

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if notifier, err := fsnotify.NewWatcher(); err != nil {
		w.logger.Warn("filesystem notifications unavailable, polling only", zap.Error(err))
	} else {
		defer notifier.Close()
		if err := notifier.Add(w.cfg.SourceDir); err != nil {
			w.logger.Warn("failed to watch source directory, polling only", zap.Error(err))
		} else {
			events, errs = notifier.Events, notifier.Errors
		}
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopped")
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.touch(event.Name, time.Now())
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Error("file watcher error", zap.Error(err))
		case now := <-ticker.C:
			for _, path := range w.scan(now) {
				select {
				case fileChan <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// touch restarts the settle clock of a PDF that changed at now.
func (w *Watcher) touch(path string, now time.Time) {
	if !isPDF(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.filesProcessing[path] {
		return
	}
	w.fileFirstSeen[path] = now
}

// scan returns the files that became ready at now and marks them as
// processing. Files that disappeared are forgotten.
func (w *Watcher) scan(now time.Time) []string {
	files, err := os.ReadDir(w.cfg.SourceDir)
	if err != nil {
		w.logger.Error("error while reading source directory", zap.Error(err))
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	current := make(map[string]bool)
	for _, file := range files {
		if file.IsDir() || !isPDF(file.Name()) {
			continue
		}
		path := filepath.Join(w.cfg.SourceDir, file.Name())
		current[path] = true

		if w.filesProcessing[path] {
			continue
		}
		firstSeen, ok := w.fileFirstSeen[path]
		if !ok {
			w.fileFirstSeen[path] = now
			w.logger.Info("new file detected", zap.String("file", path))
			continue
		}
		if now.Sub(firstSeen) >= w.cfg.MonitoringTime {
			w.filesProcessing[path] = true
			ready = append(ready, path)
		}
	}

	for path := range w.fileFirstSeen {
		if !current[path] {
			delete(w.fileFirstSeen, path)
			delete(w.filesProcessing, path)
			w.logger.Info("file removed from tracking", zap.String("file", path))
		}
	}
	return ready
}

// ProcessFile ingests files from fileChan until it is closed or ctx ends.
func (w *Watcher) ProcessFile(ctx context.Context, fileChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file processor stopped")
			return
		case path, ok := <-fileChan:
			if !ok {
				return
			}
			w.process(ctx, path)
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	w.logger.Info("processing file", zap.String("file", path))
	doc, err := w.ingester.Ingest(ctx, path, w.cfg.Collection)

	if ctx.Err() != nil {
		// Leave the file in place so the next run picks it up again.
		w.mu.Lock()
		delete(w.filesProcessing, path)
		w.mu.Unlock()
		return
	}

	state := ltypes.FileArchived
	if err != nil {
		w.logger.Error("error processing file", zap.String("file", path), zap.Error(err))
		state = ltypes.FileBad
	} else {
		w.logger.Info("document indexed", zap.String("file", path), zap.Int("chunks", doc.Chunks))
	}
	if _, err := w.MoveToArchive(path, state, time.Now()); err != nil {
		w.logger.Error("error moving file", zap.String("file", path), zap.Error(err))
	}

	w.mu.Lock()
	delete(w.filesProcessing, path)
	delete(w.fileFirstSeen, path)
	w.mu.Unlock()
}

// MoveToArchive moves filePath into a dated folder of the archive or bad
// directory, renaming on collision, and returns the new path.
func (w *Watcher) MoveToArchive(filePath string, state ltypes.FileState, now time.Time) (string, error) {
	root := w.cfg.ArchiveDir
	if state == ltypes.FileBad {
		root = w.cfg.BadDir
	}

	destDir := filepath.Join(root, now.Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("error creating directory: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))
	ext := filepath.Ext(filePath)
	baseName := strings.TrimSuffix(filepath.Base(filePath), ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
	}

	if err := os.Rename(filePath, destPath); err == nil {
		return destPath, nil
	}
	// Rename fails across devices; fall back to copy and remove.
	if err := copyFile(filePath, destPath); err != nil {
		return "", fmt.Errorf("error moving file to archive: %w", err)
	}
	if err := os.Remove(filePath); err != nil {
		return "", err
	}
	return destPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
