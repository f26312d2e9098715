// Package routing implements the mutable domain-to-upstream routing
// table: normalisation, concurrent-safe reads/writes and durable
// persistence.
package routing

import (
	"fmt"
	"sync"

	"github.com/codingbear/mcrouter/internal/apperr"
	"github.com/codingbear/mcrouter/internal/logging"
)

var log = logging.New("routing")

// Upstream is the (host, port) a normalised domain routes to.
type Upstream struct {
	Host string
	Port int
}

// Store is the durable backing store a Table persists through on
// every mutation (see internal/store).
type Store interface {
	LoadAll() (map[string]Upstream, error)
	SaveAll(map[string]Upstream) error
}

// Table is the mutable domain -> upstream routing table. All mutating
// operations normalise the domain, update the in-memory map, and
// write the whole table to the backing store before returning
// success; reads never block behind a write long enough to stall the
// data path.
type Table struct {
	mu     sync.RWMutex
	routes map[string]Upstream
	store  Store
}

// New loads the table from store at startup.
func New(store Store) (*Table, error) {
	routes, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("routing: load: %w", err)
	}
	if routes == nil {
		routes = make(map[string]Upstream)
	}
	return &Table{routes: routes, store: store}, nil
}

// List returns a snapshot of every route, keyed by normalised domain.
func (t *Table) List() map[string]Upstream {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Upstream, len(t.routes))
	for k, v := range t.routes {
		out[k] = v
	}
	return out
}

// Get resolves a (not-yet-normalised) domain to its upstream.
func (t *Table) Get(domain string) (Upstream, bool) {
	key := Normalize(domain)
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.routes[key]
	return u, ok
}

// Upsert creates or replaces the route for domain.
func (t *Table) Upsert(domain, host string, port int) error {
	if host == "" {
		return apperr.New(apperr.ControlValidation, "host must not be empty")
	}
	if port < 1 || port > 65535 {
		return apperr.New(apperr.ControlValidation, "port must be in 1..65535")
	}
	key := Normalize(domain)
	if key == "" {
		return apperr.New(apperr.ControlValidation, "domain must not be empty")
	}

	t.mu.Lock()
	t.routes[key] = Upstream{Host: host, Port: port}
	snapshot := t.cloneLocked()
	t.mu.Unlock()

	if err := t.store.SaveAll(snapshot); err != nil {
		log.Error("persist upsert for %q failed: %v", key, err)
		return fmt.Errorf("routing: persist: %w", err)
	}
	return nil
}

// Remove deletes the route for domain, if any.
func (t *Table) Remove(domain string) error {
	key := Normalize(domain)

	t.mu.Lock()
	delete(t.routes, key)
	snapshot := t.cloneLocked()
	t.mu.Unlock()

	if err := t.store.SaveAll(snapshot); err != nil {
		log.Error("persist remove for %q failed: %v", key, err)
		return fmt.Errorf("routing: persist: %w", err)
	}
	return nil
}

func (t *Table) cloneLocked() map[string]Upstream {
	out := make(map[string]Upstream, len(t.routes))
	for k, v := range t.routes {
		out[k] = v
	}
	return out
}
