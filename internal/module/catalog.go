package module

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh module instance. It is called once per load.
type Factory func() Module

// Catalog maps entry-point names to module factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory. Entry names are unique.
func (c *Catalog) Register(entry string, f Factory) error {
	if entry == "" {
		return fmt.Errorf("register module: empty entry name")
	}
	if f == nil {
		return fmt.Errorf("register module %q: nil factory", entry)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.factories[entry]; dup {
		return fmt.Errorf("register module %q: entry already registered", entry)
	}
	c.factories[entry] = f
	return nil
}

// MustRegister is Register that panics. For static wiring.
func (c *Catalog) MustRegister(entry string, f Factory) {
	if err := c.Register(entry, f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for entry.
func (c *Catalog) Lookup(entry string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[entry]
	return f, ok
}

// Entries lists registered entry names, sorted.
func (c *Catalog) Entries() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for name := range c.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
