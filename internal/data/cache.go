package data

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"microgrid-sim/internal/model"
)

// CacheEntry is a loaded environment and when it stops being served.
type CacheEntry struct {
	Environment *model.Environment
	ExpiresAt   time.Time
}

// EnvironmentCache keeps parsed building files in memory so repeated API
// requests against the same file skip the CSV parse. Keys include the file's
// modification time, so an edited file is reloaded.
type EnvironmentCache struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
	ttl   time.Duration
	now   func() time.Time
}

const DefaultCacheTTL = time.Hour

func NewEnvironmentCache(ttl time.Duration) *EnvironmentCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &EnvironmentCache{
		store: make(map[string]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns a cached environment if present and not expired.
func (c *EnvironmentCache) Get(key string) (*model.Environment, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.store[key]
	if !ok || c.now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry.Environment, true
}

func (c *EnvironmentCache) Set(key string, env *model.Environment) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = &CacheEntry{Environment: env, ExpiresAt: c.now().Add(c.ttl)}
}

// Prune drops expired entries. Load calls it on every miss.
func (c *EnvironmentCache) Prune() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.store {
		if now.After(entry.ExpiresAt) {
			delete(c.store, key)
		}
	}
}

// Load returns the environment for path, parsing it on a miss.
func (c *EnvironmentCache) Load(path string, desc Descriptor) (*model.Environment, error) {
	key, err := CacheKey(path, desc)
	if err != nil {
		return nil, err
	}
	if env, ok := c.Get(key); ok {
		return env, nil
	}
	c.Prune()
	env, err := LoadBuildingCSV(path, desc)
	if err != nil {
		return nil, err
	}
	c.Set(key, env)
	return env, nil
}

// CacheKey hashes the file identity together with every descriptor field
// that affects the parsed result.
func CacheKey(path string, desc Descriptor) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	keyStr := fmt.Sprintf("%s:%d:%d:%+v", path, info.ModTime().UnixNano(), info.Size(), desc.withDefaults())
	hash := sha256.Sum256([]byte(keyStr))
	return hex.EncodeToString(hash[:]), nil
}
