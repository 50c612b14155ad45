// Package template is the thin persisted name→config dictionary the admin
// API uses for "create from template" / "save as template" operations. It
// has no opinion on what a config looks like; callers marshal whatever
// SimulatorInfo-shaped value they like.
package template

import (
	"encoding/json"
	"sync"

	"github.com/protosim/simulatord/pkg/persist"
	"github.com/protosim/simulatord/pkg/protocol"
)

// Catalog is a concurrency-safe name→config dictionary backed by
// templates.json via pkg/persist.
type Catalog struct {
	mu    sync.RWMutex
	store *persist.Store
	items map[string]json.RawMessage
}

// New loads the catalog from store.
func New(store *persist.Store) *Catalog {
	return &Catalog{
		store: store,
		items: store.LoadTemplates(),
	}
}

// Entry is a listed template: its name and opaque config payload.
type Entry struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config"`
}

// List returns every stored template.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.items))
	for name, cfg := range c.items {
		out = append(out, Entry{Name: name, Config: cfg})
	}
	return out
}

// Get returns the named template's config, or protocol.ErrNotFound.
func (c *Catalog) Get(name string) (json.RawMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.items[name]
	if !ok {
		return nil, protocol.ErrNotFound
	}
	return cfg, nil
}

// Put creates or replaces a template under name.
func (c *Catalog) Put(name string, config json.RawMessage) error {
	c.mu.Lock()
	c.items[name] = config
	snapshot := c.cloneLocked()
	c.mu.Unlock()

	return c.store.SaveTemplates(snapshot)
}

// Delete removes a template. Returns protocol.ErrNotFound if it didn't exist.
func (c *Catalog) Delete(name string) error {
	c.mu.Lock()
	if _, ok := c.items[name]; !ok {
		c.mu.Unlock()
		return protocol.ErrNotFound
	}
	delete(c.items, name)
	snapshot := c.cloneLocked()
	c.mu.Unlock()

	return c.store.SaveTemplates(snapshot)
}

// cloneLocked returns a shallow copy of items. Caller must hold c.mu.
func (c *Catalog) cloneLocked() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(c.items))
	for k, v := range c.items {
		out[k] = v
	}
	return out
}
