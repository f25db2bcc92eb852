package pin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
)

// FileSource publishes the trimmed content of a file as the pinned id.
//
// The parent directory is watched rather than the file itself so editors
// that save by rename, and deleting the file, are both observed. A missing or
// empty file means nothing is pinned.
type FileSource struct {
	path    string
	signal  *Signal
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithFileLogger sets the logger. Default: slog.Default().
func WithFileLogger(l *slog.Logger) FileOption {
	return func(f *FileSource) {
		f.logger = l
	}
}

// NewFileSource reads path once and starts watching its directory.
// Call Run to process change events and Close to release the watcher.
func NewFileSource(path string, opts ...FileOption) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("pin file %q: %w", path, err)
	}

	f := &FileSource{
		path:   abs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	initial, err := readPin(abs)
	if err != nil {
		return nil, err
	}
	f.signal = NewSignal(initial)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	f.watcher = watcher

	return f, nil
}

// Current returns the pinned id last read from the file.
func (f *FileSource) Current() ir.RecordID {
	return f.signal.Current()
}

// Subscribe registers fn for pin changes read from the file.
func (f *FileSource) Subscribe(fn func(ir.RecordID)) *feed.CancelToken {
	return f.signal.Subscribe(fn)
}

// Run processes file events until ctx is cancelled or the watcher closes.
// Should be run in a goroutine.
func (f *FileSource) Run(ctx context.Context) {
	f.logger.Debug("watching pin file", "path", f.path)

	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			f.handleEvent(event)

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("pin file watcher error", "path", f.path, "error", err)

		case <-ctx.Done():
			f.logger.Debug("pin file watcher stopping", "path", f.path)
			return
		}
	}
}

// Close releases the watcher. Run returns once its channels close.
func (f *FileSource) Close() error {
	if err := f.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (f *FileSource) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != f.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	id, err := readPin(f.path)
	if err != nil {
		f.logger.Warn("failed to read pin file", "path", f.path, "error", err)
		return
	}
	f.logger.Debug("pin changed", "path", f.path, "pinned", string(id), "op", event.Op.String())
	f.signal.Set(id)
}

func readPin(path string) (ir.RecordID, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ir.NoRecord, nil
	}
	if err != nil {
		return ir.NoRecord, fmt.Errorf("read pin file %q: %w", path, err)
	}
	return ir.RecordID(strings.TrimSpace(string(data))), nil
}
