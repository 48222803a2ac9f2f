package tle

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/metrics"
)

// Store provides thread-safe access to the current catalog.
type Store struct {
	catalog atomic.Pointer[Catalog]
	mu      sync.Mutex // serializes reloads
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current catalog, or nil if none has been loaded.
func (s *Store) Get() *Catalog {
	return s.catalog.Load()
}

// Set atomically replaces the current catalog.
func (s *Store) Set(c *Catalog) {
	s.catalog.Store(c)
}

// Lookup finds a satellite in the current catalog.
func (s *Store) Lookup(noradID int) (Entry, bool) {
	c := s.catalog.Load()
	if c == nil {
		return Entry{}, false
	}
	return c.Lookup(noradID)
}

// AgeSeconds returns the age of the current catalog in seconds.
// Returns -1 if no catalog is loaded.
func (s *Store) AgeSeconds() float64 {
	c := s.catalog.Load()
	if c == nil {
		return -1
	}
	return time.Since(c.LoadedAt).Seconds()
}

// Reload loads a fresh catalog from src and swaps it in. Concurrent reloads
// are serialized; readers keep the previous catalog until the swap. On error
// the current catalog is kept.
func (s *Store) Reload(src *Source, logger *slog.Logger) (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := src.Load(logger)
	if err != nil {
		metrics.IncCatalogReload("error")
		return nil, err
	}
	s.Set(c)
	metrics.IncCatalogReload("success")
	metrics.SetCatalogCount(len(c.Satellites))
	metrics.SetCatalogAge(0)
	return c, nil
}
