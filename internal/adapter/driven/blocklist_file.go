package driven

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	port "github.com/alorle/gazibo/internal/port/driven"
)

const blocklistDebounce = 200 * time.Millisecond

// BlocklistDocument is the on-disk format of the static blocklist.
// Only URLs is read back; the other fields describe the run that produced it.
type BlocklistDocument struct {
	Generated   string   `json:"generated,omitempty"`
	TotalBroken int      `json:"total_broken,omitempty"`
	URLs        []string `json:"urls"`
}

// BlocklistFile implements the Blocklist port on top of a JSON file of stream
// URLs. A missing or empty file means nothing is blocked. The file is re-read
// whenever it changes on disk once StartWatcher has been called.
type BlocklistFile struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	urls map[string]struct{}

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewBlocklistFile creates a blocklist backed by path and performs the initial read.
// An unreadable or malformed file is logged and treated as empty.
func NewBlocklistFile(path string, logger *slog.Logger) *BlocklistFile {
	b := &BlocklistFile{
		path:   filepath.Clean(path),
		logger: logger,
		urls:   make(map[string]struct{}),
	}
	if err := b.Reload(); err != nil {
		logger.Warn("blocklist not loaded", "path", b.path, "error", err)
	}
	return b
}

// Contains reports whether url is blocked.
func (b *BlocklistFile) Contains(url string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.urls[url]
	return ok
}

// Len returns the number of blocked URLs.
func (b *BlocklistFile) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.urls)
}

// Reload re-reads the file. On a parse error the previous set is kept.
func (b *BlocklistFile) Reload() error {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		b.replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read blocklist: %w", err)
	}

	var doc BlocklistDocument
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse blocklist: %w", err)
		}
	}
	b.replace(doc.URLs)
	b.logger.Info("blocklist loaded", "path", b.path, "urls", len(doc.URLs))
	return nil
}

func (b *BlocklistFile) replace(urls []string) {
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if u != "" {
			set[u] = struct{}{}
		}
	}
	b.mu.Lock()
	b.urls = set
	b.mu.Unlock()
}

// StartWatcher watches the directory holding the file so that creation and
// atomic replacement are both noticed. It runs until ctx is done or Stop is called.
func (b *BlocklistFile) StartWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(b.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch blocklist directory: %w", err)
	}

	b.watcher = watcher
	b.done = make(chan struct{})
	go b.watchLoop(ctx)

	b.logger.Info("watching blocklist for changes", "path", b.path)
	return nil
}

func (b *BlocklistFile) watchLoop(ctx context.Context) {
	defer close(b.done)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = b.watcher.Close()
			return

		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != b.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(blocklistDebounce, func() {
				if err := b.Reload(); err != nil {
					b.logger.Error("blocklist reload failed", "path", b.path, "error", err)
				}
			})

		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Error("blocklist watcher error", "error", err)
		}
	}
}

// Stop closes the watcher and waits for the watch loop to exit.
func (b *BlocklistFile) Stop() {
	if b.watcher == nil {
		return
	}
	_ = b.watcher.Close()
	<-b.done
}

// Ensure BlocklistFile implements the driven.Blocklist interface
var _ port.Blocklist = (*BlocklistFile)(nil)
