package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fsnotify/fsnotify"
)

// Cache caches parsed/loaded script entry points keyed by path, avoiding
// redundant re-parsing of the same script across repeated actor spawns
// (spec SPEC_FULL.md §2 item 19). It is safe for concurrent use; a cache
// miss simply reloads and never blocks a concurrent Get for a different
// path.
type Cache struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, EntryPoint]
	loader    func(path string) (EntryPoint, error)
	watcher   *fsnotify.Watcher
	watchOnce sync.Once
}

// NewCache builds a script cache holding up to size entries, resolving
// misses with loader (normally reading and compiling the script file at
// path).
func NewCache(size int, loader func(path string) (EntryPoint, error)) (*Cache, error) {
	l, err := lru.New[string, EntryPoint](size)
	if err != nil {
		return nil, fmt.Errorf("sandbox: new script cache: %w", err)
	}
	return &Cache{lru: l, loader: loader}, nil
}

// Get returns the cached entry point for path, loading it on a miss.
func (c *Cache) Get(path string) (EntryPoint, error) {
	c.mu.Lock()
	if entry, ok := c.lru.Get(path); ok {
		c.mu.Unlock()
		return entry, nil
	}
	c.mu.Unlock()

	entry, err := c.loader(path)
	if err != nil {
		return nil, fmt.Errorf("sandbox: load %s: %w", path, err)
	}
	c.mu.Lock()
	c.lru.Add(path, entry)
	c.mu.Unlock()
	return entry, nil
}

// Remove evicts path from the cache, forcing the next Get to reload.
func (c *Cache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(path)
}

// WatchDir starts an fsnotify watch on dir (the injected lualib search-path
// directory, spec §6) and removes any cache entry whose path is written to
// or renamed, so a long-running actor's next Load of that path sees the
// edited file rather than a stale cached entry (SPEC_FULL.md §2 item 20,
// §3 invariant). It is safe to call more than once; only the first watch
// is installed.
func (c *Cache) WatchDir(dir string) error {
	var watchErr error
	c.watchOnce.Do(func() {
		if _, err := os.Stat(dir); err != nil {
			watchErr = err
			return
		}
		w, err := fsnotify.NewWatcher()
		if err != nil {
			watchErr = fmt.Errorf("sandbox: fsnotify watcher: %w", err)
			return
		}
		if err := w.Add(dir); err != nil {
			watchErr = fmt.Errorf("sandbox: watch %s: %w", dir, err)
			w.Close()
			return
		}
		c.watcher = w
		go c.watchLoop()
	})
	return watchErr
}

func (c *Cache) watchLoop() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				c.Remove(ev.Name)
				slog.Debug("script cache invalidated", slog.String("path", ev.Name))
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("script cache watcher error", slog.Any("err", err))
		}
	}
}

// Close stops the fsnotify watcher, if one was started.
func (c *Cache) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}
