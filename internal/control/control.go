// Package control implements the control-plane adapter (§4.I):
// operator commands translated into routing-table mutations and
// registry lookups/kicks. The HTTP binding lives in http.go; this
// file holds the semantic operations so they can be tested and reused
// independent of the transport.
package control

import (
	"github.com/codingbear/mcrouter/internal/apperr"
	"github.com/codingbear/mcrouter/internal/registry"
	"github.com/codingbear/mcrouter/internal/routing"
)

// Adapter exposes the operator-facing operations over the routing
// table and connection registry.
type Adapter struct {
	Routing  *routing.Table
	Registry *registry.Registry
}

// New builds an Adapter.
func New(table *routing.Table, reg *registry.Registry) *Adapter {
	return &Adapter{Routing: table, Registry: reg}
}

// Route describes one routing-table entry as exposed to operators.
type Route struct {
	Domain string `json:"domain"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// ListRoutes returns every configured route.
func (a *Adapter) ListRoutes() []Route {
	routes := a.Routing.List()
	out := make([]Route, 0, len(routes))
	for domain, u := range routes {
		out = append(out, Route{Domain: domain, Host: u.Host, Port: u.Port})
	}
	return out
}

// GetRoute looks up a single route; the bool reports whether it
// exists.
func (a *Adapter) GetRoute(domain string) (Route, bool) {
	u, ok := a.Routing.Get(domain)
	if !ok {
		return Route{}, false
	}
	return Route{Domain: routing.Normalize(domain), Host: u.Host, Port: u.Port}, true
}

// UpsertRoute validates and creates/replaces a route.
func (a *Adapter) UpsertRoute(domain, host string, port int) error {
	if domain == "" {
		return apperr.New(apperr.ControlValidation, "domain must not be empty")
	}
	if host == "" {
		return apperr.New(apperr.ControlValidation, "host must not be empty")
	}
	if port < 1 || port > 65535 {
		return apperr.New(apperr.ControlValidation, "port must be in 1..65535")
	}
	return a.Routing.Upsert(domain, host, port)
}

// RemoveRoute deletes a route.
func (a *Adapter) RemoveRoute(domain string) error {
	if domain == "" {
		return apperr.New(apperr.ControlValidation, "domain must not be empty")
	}
	return a.Routing.Remove(domain)
}

// KickByUsername closes every live session on port matching username,
// returning the count kicked.
func (a *Adapter) KickByUsername(username string, port int) int {
	return a.Registry.KickAll(a.Registry.ByUsername(username, port))
}

// KickByIP closes every live session on port matching ip, returning
// the count kicked.
func (a *Adapter) KickByIP(ip string, port int) int {
	return a.Registry.KickAll(a.Registry.ByIP(ip, port))
}

// KickByUUID closes every live session on port matching uuid,
// returning the count kicked.
func (a *Adapter) KickByUUID(uuid string, port int) int {
	return a.Registry.KickAll(a.Registry.ByUUID(uuid, port))
}

// KickByID closes a single session by id. Returns false if no live
// session had that id.
func (a *Adapter) KickByID(id int64) bool {
	return a.Registry.Kick(id)
}

// ListSessions returns a snapshot of every live session, for operator
// visibility.
func (a *Adapter) ListSessions() []registry.Record {
	return a.Registry.Enumerate()
}
