// Package resource loads the catalogs the engine needs before it is usable:
// places and image sets described in WTML, fetched over HTTP and cached on
// disk so a restart without network access can still come up.
package resource

import (
	"strings"
	"sync/atomic"
	"time"
)

// Catalog is the merged content of every loaded WTML source.
type Catalog struct {
	Name      string     `json:"name"`
	Source    string     `json:"source"`
	LoadedAt  time.Time  `json:"loaded_at"`
	Places    []Place    `json:"places"`
	ImageSets []ImageSet `json:"image_sets"`
}

// FindPlace returns the first place whose name matches, ignoring case.
func (c *Catalog) FindPlace(name string) (Place, bool) {
	if c == nil {
		return Place{}, false
	}
	for _, p := range c.Places {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Place{}, false
}

// merge appends other's entries to c.
func (c *Catalog) merge(other *Catalog) {
	if c.Name == "" {
		c.Name = other.Name
	}
	c.Places = append(c.Places, other.Places...)
	c.ImageSets = append(c.ImageSets, other.ImageSets...)
}

// Store provides thread-safe access to the current catalog.
type Store struct {
	catalog atomic.Pointer[Catalog]
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

// AgeSeconds returns the age of the current catalog in seconds.
// Returns -1 if no catalog is loaded.
func (s *Store) AgeSeconds() float64 {
	c := s.catalog.Load()
	if c == nil {
		return -1
	}
	return time.Since(c.LoadedAt).Seconds()
}
