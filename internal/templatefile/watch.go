package templatefile

import (
	"context"
	"crypto/sha256"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sandeepkv93/taskd/internal/logx"
)

const (
	defaultDebounce    = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watcher calls OnChange after the template file settles on new content.
type Watcher struct {
	Path     string
	Debounce time.Duration
	OnChange func(ctx context.Context)
	Log      logx.Logger

	mu       sync.Mutex
	timer    *time.Timer
	lastHash [sha256.Size]byte
}

// Watch blocks until ctx is done. The parent directory is watched so editors
// that replace the file by rename are picked up. A broken fsnotify watcher is
// recreated with jittered backoff.
func (w *Watcher) Watch(ctx context.Context) error {
	if w.Debounce <= 0 {
		w.Debounce = defaultDebounce
	}
	if data, err := os.ReadFile(w.Path); err == nil {
		w.lastHash = sha256.Sum256(data)
	}
	dir := filepath.Dir(w.Path)
	file := filepath.Base(w.Path)

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	wait := func() time.Duration {
		d := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff = min(backoff*2, restartBackoffMax)
		}
		return d
	}
	defer w.stopTimer()

	for {
		if ctx.Err() != nil {
			return nil
		}

		fw, err := fsnotify.NewWatcher()
		if err == nil {
			if err = fw.Add(dir); err != nil {
				_ = fw.Close()
			}
		}
		if err != nil {
			w.Log.Warn("template watch init failed", logx.String("dir", dir), logx.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait()):
				continue
			}
		}

		backoff = restartBackoffBase
		w.Log.Debug("template watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = fw.Close()
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					broken = true
					break
				}
				if filepath.Base(ev.Name) == file && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					w.debounce(ctx)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				w.Log.Warn("template watch error", logx.String("dir", dir), logx.Err(err))
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					w.debounce(ctx)
				}
			}
		}

		_ = fw.Close()
		d := wait()
		w.Log.Warn("template watcher stopped; restarting", logx.String("dir", dir), logx.Duration("backoff", d))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d):
		}
	}
}

func (w *Watcher) debounce(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		data, err := os.ReadFile(w.Path)
		if err != nil {
			w.Log.Warn("template file unreadable", logx.String("path", w.Path), logx.Err(err))
			return
		}
		sum := sha256.Sum256(data)
		w.mu.Lock()
		unchanged := sum == w.lastHash
		w.lastHash = sum
		w.mu.Unlock()
		if unchanged {
			w.Log.Debug("template file unchanged", logx.String("path", w.Path))
			return
		}
		w.Log.Info("template file changed", logx.String("path", w.Path))
		w.OnChange(ctx)
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
