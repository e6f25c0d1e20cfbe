// Package streak persists when each streamer last paid out a watch-streak
// bonus. Streak-priority selection consults the cache so a channel whose
// streak was claimed recently does not hog a watch slot for nothing.
package streak

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/veikko/twitch-harvester/internal/logger"
)

type entry struct {
	LastStreakTimestamp int64 `json:"last_streak_timestamp"`
}

// Cache is a username -> last-claim map backed by a JSON file. Writes are
// buffered behind a dirty flag; Save persists atomically via a temp file.
type Cache struct {
	path string
	log  *logger.Logger

	mu      sync.Mutex
	entries map[string]entry
	dirty   bool
}

// Load reads the cache file at path. A missing or unreadable file yields an
// empty cache; streak state is an optimization, never a startup blocker.
func Load(path string, log *logger.Logger) *Cache {
	c := &Cache{
		path:    path,
		log:     log,
		entries: make(map[string]entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Failed to read watch streak cache, starting empty",
				"path", path, "error", err)
		}
		return c
	}

	if err := json.Unmarshal(data, &c.entries); err != nil {
		log.Warn("Corrupt watch streak cache, starting empty",
			"path", path, "error", err)
		c.entries = make(map[string]entry)
	}
	return c
}

// Mark records that a watch-streak bonus landed for username just now.
func (c *Cache) Mark(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[username] = entry{LastStreakTimestamp: time.Now().Unix()}
	c.dirty = true
}

// ClaimedWithin reports whether username claimed a streak within ttl.
func (c *Cache) ClaimedWithin(username string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[username]
	if !ok {
		return false
	}
	return time.Since(time.Unix(e.LastStreakTimestamp, 0)) < ttl
}

// Save writes the cache back to disk when it has unsaved marks. The file is
// written to a sibling temp file and renamed into place.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling watch streak cache: %w", err)
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing watch streak cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing watch streak cache: %w", err)
	}

	c.dirty = false
	return nil
}

// Len returns the number of tracked streamers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
