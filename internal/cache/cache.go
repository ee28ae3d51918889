// Package cache is the persistent source-body cache. One Cache owns the
// in-memory map; every mutation goes through its mutex and Save writes the
// whole document through a Store.
package cache

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapetech/iptvsift/internal/logging"
)

// DefaultTTL is how long a cached body is served without revalidation.
const DefaultTTL = time.Hour

// Entry is one cached source body plus its HTTP validators.
type Entry struct {
	FetchedAt    time.Time `json:"fetched_at"`
	Body         []byte    `json:"body"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
}

// Store persists the full cache document.
type Store interface {
	Load() (map[string]Entry, error)
	Save(map[string]Entry) error
}

// StoreFor picks the backend from the file extension: .db, .sqlite and
// .sqlite3 use SQLite, anything else is a JSON document.
func StoreFor(path string) Store {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return &SQLiteStore{Path: path}
	}
	return &JSONStore{Path: path}
}

// Cache maps a source location to its last fetched body.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	saveMu sync.Mutex
	store  Store
	ttl    time.Duration
	now    func() time.Time
	log    logrus.FieldLogger
}

// Open loads the cache at path. A missing or unreadable document yields an
// empty cache and a warning, never an error.
func Open(path string, ttl time.Duration, log logrus.FieldLogger) *Cache {
	return New(StoreFor(path), ttl, log)
}

// New loads a cache from store.
func New(store Store, ttl time.Duration, log logrus.FieldLogger) *Cache {
	if log == nil {
		log = logging.Discard()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{entries: make(map[string]Entry), store: store, ttl: ttl, now: time.Now, log: log}
	if store == nil {
		return c
	}
	m, err := store.Load()
	if err != nil {
		log.WithError(err).Warn("cache: load failed; starting empty")
		return c
	}
	if m != nil {
		c.entries = m
	}
	log.WithField("entries", len(c.entries)).Debug("cache: loaded")
	return c
}

// SetClock replaces the time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Now returns the cache clock's current time.
func (c *Cache) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now()
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the entry for location. The returned Body must not be modified.
func (c *Cache) Get(location string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[location]
	return e, ok
}

// Fresh reports whether e is still inside the TTL.
func (c *Cache) Fresh(e Entry) bool {
	return c.Now().Sub(e.FetchedAt) < c.ttl
}

// Put stores a new body and its validators, stamped now.
func (c *Cache) Put(location string, body []byte, etag, lastModified string) {
	b := make([]byte, len(body))
	copy(b, body)
	c.mu.Lock()
	c.entries[location] = Entry{FetchedAt: c.now(), Body: b, ETag: etag, LastModified: lastModified}
	c.mu.Unlock()
}

// Touch refreshes FetchedAt on an existing entry. Non-empty validators
// replace the stored ones. It reports whether the entry existed.
func (c *Cache) Touch(location, etag, lastModified string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[location]
	if !ok {
		return false
	}
	e.FetchedAt = c.now()
	if etag != "" {
		e.ETag = etag
	}
	if lastModified != "" {
		e.LastModified = lastModified
	}
	c.entries[location] = e
	return true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Save writes a snapshot of the cache through the store. Saves are
// serialized and each snapshot is taken under the save lock, so the last
// Save to return has written every Put that preceded it.
func (c *Cache) Save() error {
	if c.store == nil {
		return errors.New("cache: no store")
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.RLock()
	snap := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		snap[k] = v
	}
	c.mu.RUnlock()
	return c.store.Save(snap)
}
