// Package registry implements the live connection registry (§4.C): a
// concurrent-safe index of actively-splicing sessions, queryable by
// id, username, IP or UUID (each scoped to the upstream port the
// session is serving), and kickable by any of those keys.
package registry

import (
	"net"
	"sync"

	"github.com/codingbear/mcrouter/internal/logging"
)

var log = logging.New("registry")

// Record describes one live session. A record exists in the registry
// iff the session is actively splicing.
type Record struct {
	ID           int64
	ClientIP     string
	Domain       string
	Username     string // empty for status pings
	UUID         string // empty iff Username is empty
	UpstreamHost string
	UpstreamPort int
	conn         net.Conn // client socket, for Kick
}

// Registry is the concurrent-safe live-session index.
type Registry struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]*Record
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{records: make(map[int64]*Record)}
}

// Insert assigns a new monotonic id to rec, stores it and returns the
// id. The caller is expected to have dialled the upstream and be
// about to start splicing.
func (r *Registry) Insert(rec Record, clientConn net.Conn) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	rec.ID = id
	rec.conn = clientConn
	r.records[id] = &rec
	return id
}

// Remove deletes the record for id, if present. Safe to call more
// than once for the same id (teardown may race a concurrent kick).
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
}

// Enumerate returns a snapshot of every live record. Callers that
// need to act on the sockets (e.g. kick) should do so against this
// snapshot rather than holding the registry lock.
func (r *Registry) Enumerate() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

// ByUsername returns the snapshot of live records matching username
// on the given upstream port.
func (r *Registry) ByUsername(username string, port int) []Record {
	return r.filter(func(rec Record) bool {
		return rec.Username == username && rec.UpstreamPort == port
	})
}

// ByIP returns the snapshot of live records matching clientIP on the
// given upstream port.
func (r *Registry) ByIP(clientIP string, port int) []Record {
	return r.filter(func(rec Record) bool {
		return rec.ClientIP == clientIP && rec.UpstreamPort == port
	})
}

// ByUUID returns the snapshot of live records matching uuid on the
// given upstream port.
func (r *Registry) ByUUID(uuid string, port int) []Record {
	return r.filter(func(rec Record) bool {
		return rec.UUID == uuid && rec.UpstreamPort == port
	})
}

func (r *Registry) filter(match func(Record) bool) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if match(*rec) {
			out = append(out, *rec)
		}
	}
	return out
}

// Kick closes the client socket for id and removes its record. It
// returns true if a live record for id was found. Closing the socket
// is asynchronous from the session's point of view: the caller
// returns once the socket has been signalled to close, and the
// session's own teardown completes shortly after via the normal
// TRANSPORT_ERROR/PEER_CLOSED path.
func (r *Registry) Kick(id int64) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		delete(r.records, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := rec.conn.Close(); err != nil {
		log.Debug("kick %d: close error (already closing): %v", id, err)
	}
	return true
}

// KickAll closes every record in recs and returns the count actually
// kicked (a record may already have torn down between Enumerate/
// filter and this call).
func (r *Registry) KickAll(recs []Record) int {
	count := 0
	for _, rec := range recs {
		if r.Kick(rec.ID) {
			count++
		}
	}
	return count
}
