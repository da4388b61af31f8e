package photos

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// eventChannelBuffer is the size of the watch event channel.
	eventChannelBuffer = 100

	defaultDebounce = 500 * time.Millisecond
)

// WatchOperation indicates the type of file operation.
type WatchOperation string

const (
	WatchOpCreate WatchOperation = "create"
	WatchOpModify WatchOperation = "modify"
)

// Event is a photo that appeared or changed in the capture directory.
type Event struct {
	// Path is relative to the capture directory.
	Path string

	// AbsPath is the absolute file path.
	AbsPath string

	Operation WatchOperation
}

// Watcher watches a capture directory for new photos and emits events.
// Writes are debounced so a photo is reported once it stops changing.
type Watcher struct {
	dir      string
	matcher  *Matcher
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	// Content hashes of reported photos, keyed by relative path
	hashMu sync.Mutex
	hashes map[string]string

	events chan Event

	droppedEvents atomic.Int64
}

// NewWatcher creates a watcher for dir. A zero debounce uses 500ms.
func NewWatcher(dir string, matcher *Matcher, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		dir:      abs,
		matcher:  matcher,
		debounce: debounce,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		events:   make(chan Event, eventChannelBuffer),
	}, nil
}

// Events returns the channel of photo events. It is closed when watching ends.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Seed marks existing photos as already seen so only later changes are reported.
func (w *Watcher) Seed(paths []string) {
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(w.dir, p)
		if err != nil {
			continue
		}
		w.setHash(rel, contentHash(content))
	}
}

// Start begins watching the capture directory.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}

	if err := w.addWatchesRecursive(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Photo watcher started",
		"dir", w.dir,
		"debounce", w.debounce)

	return nil
}

// Stop stops the watcher.
// The events channel is closed by processEvents when it exits.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// DroppedEvents returns the number of events dropped due to channel overflow.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(filepath.Base(path), ".") {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(path), ".") {
				if err := w.watcher.Add(path); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	rel, err := filepath.Rel(w.dir, path)
	if err != nil || !w.matcher.Match(filepath.ToSlash(rel)) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.pendingMu.Unlock()
}

// flushPending emits events for photos that changed since the last tick.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path, op := range toProcess {
		select {
		case <-ctx.Done():
			return
		default:
		}

		content, err := os.ReadFile(path)
		if err != nil {
			// Removed or renamed before the debounce elapsed.
			continue
		}
		if len(content) == 0 {
			continue
		}

		rel, _ := filepath.Rel(w.dir, path)
		hash := contentHash(content)
		oldHash, seen := w.getHash(rel)
		if seen && oldHash == hash {
			continue
		}
		w.setHash(rel, hash)

		event := Event{Path: filepath.ToSlash(rel), AbsPath: path, Operation: WatchOpModify}
		if op.Has(fsnotify.Create) || !seen {
			event.Operation = WatchOpCreate
		}
		w.sendEvent(event)
	}
}

func (w *Watcher) sendEvent(event Event) {
	select {
	case w.events <- event:
		w.logger.Debug("Photo detected", "path", event.Path, "op", event.Operation)
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path,
			"total_dropped", dropped)
	}
}

func (w *Watcher) getHash(rel string) (string, bool) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	h, ok := w.hashes[rel]
	return h, ok
}

func (w *Watcher) setHash(rel, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[rel] = hash
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
