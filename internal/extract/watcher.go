package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit for one save.
const reloadDebounce = 100 * time.Millisecond

// Watcher keeps a Holder in sync with a rules file. It reloads on file changes and on
// SIGHUP. A file that fails to parse leaves the previous rules in place.
type Watcher struct {
	path   string
	holder *Holder

	mu sync.Mutex
	// OnReload, if set, is called after every reload attempt.
	OnReload func(*Rules, error)
}

func NewWatcher(path string, holder *Holder) *Watcher {
	return &Watcher{path: strings.TrimSpace(path), holder: holder}
}

// Reload re-reads the rules file and swaps it into the holder.
func (w *Watcher) Reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := LoadRules(w.path)
	if err == nil {
		w.holder.Store(r)
	}
	if w.OnReload != nil {
		w.OnReload(r, err)
	}
	if err != nil {
		return fmt.Errorf("reload rules file %q: %w", w.path, err)
	}
	return nil
}

// Run blocks until ctx is done. The parent directory is watched so that editors which
// replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	if w.path == "" {
		return errors.New("rules watcher: empty path")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("rules watcher: watch %q: %w", filepath.Dir(w.path), err)
	}
	target := filepath.Clean(w.path)

	hup := make(chan os.Signal, 2)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reloadAndLog("file change")
		case <-hup:
			w.reloadAndLog("SIGHUP")
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("rules watcher error: %v", err)
		}
	}
}

func (w *Watcher) reloadAndLog(cause string) {
	if err := w.Reload(); err != nil {
		log.Printf("rules reload (%s) failed: %v", cause, err)
		return
	}
	log.Printf("rules reload (%s) ok: %d fallback prefixes", cause, len(w.holder.Load().FallbackPrefixes))
}
