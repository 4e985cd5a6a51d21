package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is how long cached stock pages stay fresh.
const DefaultCacheTTL = 5 * time.Minute

// LocalCache stores JSON values on the client side. A ttl of zero keeps the
// entry until it is deleted; stale entries are reported as misses.
type LocalCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type entry struct {
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Value     json.RawMessage `json:"value"`
}

func (e entry) fresh(now time.Time) bool {
	return e.ExpiresAt == nil || now.Before(*e.ExpiresAt)
}

func newEntry(value any, ttl time.Duration, now time.Time) (entry, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return entry{}, err
	}
	e := entry{StoredAt: now, Value: raw}
	if ttl > 0 {
		exp := now.Add(ttl)
		e.ExpiresAt = &exp
	}
	return e, nil
}

// FileCache keeps one JSON file per key under a directory.
type FileCache struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileCache creates dir when missing.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

// DefaultCacheDir is the per-user cache location of kanhactl.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "kanha")
}

// File names are the hex encoded key, so a key prefix maps to a name prefix.
func fileName(key string) string {
	return hex.EncodeToString([]byte(key)) + ".json"
}

// Get implements LocalCache.
func (c *FileCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := filepath.Join(c.dir, fileName(key))
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// Corrupt entries are dropped and treated as a miss.
		_ = os.Remove(path)
		return false, nil
	}
	if !e.fresh(c.now()) {
		_ = os.Remove(path)
		return false, nil
	}
	return true, json.Unmarshal(e.Value, dest)
}

// Set implements LocalCache. Files are replaced atomically.
func (c *FileCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	e, err := newEntry(value, ttl, c.now())
	if err != nil {
		return err
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(c.dir, fileName(key)))
}

// Delete implements LocalCache.
func (c *FileCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.Remove(filepath.Join(c.dir, fileName(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// DeletePrefix implements LocalCache.
func (c *FileCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	want := hex.EncodeToString([]byte(prefix))
	for _, de := range entries {
		if de.IsDir() || !strings.HasPrefix(de.Name(), want) || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// MemoryCache is an in-process LocalCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryCache builds an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]entry{}, now: time.Now}
}

// Get implements LocalCache.
func (c *MemoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if !e.fresh(c.now()) {
		delete(c.entries, key)
		return false, nil
	}
	return true, json.Unmarshal(e.Value, dest)
}

// Set implements LocalCache.
func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := newEntry(value, ttl, c.now())
	if err != nil {
		return err
	}
	c.entries[key] = e
	return nil
}

// Delete implements LocalCache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// DeletePrefix implements LocalCache.
func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// numberStore keeps the last invoice number in a LocalCache for the offline
// fallback.
type numberStore struct {
	cache LocalCache
}

const lastNumberKey = "invoice:last-number"

func (s numberStore) LastInvoiceNumber(ctx context.Context) (string, bool, error) {
	var number string
	ok, err := s.cache.Get(ctx, lastNumberKey, &number)
	return number, ok && number != "", err
}

func (s numberStore) SetLastInvoiceNumber(ctx context.Context, number string) error {
	return s.cache.Set(ctx, lastNumberKey, number, 0)
}
