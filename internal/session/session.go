// Package session implements the per-connection state machine (§4.G):
// ACCEPT -> READ_INITIAL -> EXTRACT_IP -> CLASSIFY -> PARSE_HANDSHAKE
//       -> PARSE_LOGIN -> RESOLVE_UUID -> RESOLVE_ROUTE -> AUTHORISE
//       -> DIAL_UPSTREAM -> REGISTER -> SPLICE -> TEARDOWN
package session

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/codingbear/mcrouter/internal/audit"
	"github.com/codingbear/mcrouter/internal/codec"
	"github.com/codingbear/mcrouter/internal/firewall"
	"github.com/codingbear/mcrouter/internal/identity"
	"github.com/codingbear/mcrouter/internal/logging"
	"github.com/codingbear/mcrouter/internal/registry"
	"github.com/codingbear/mcrouter/internal/reporter"
	"github.com/codingbear/mcrouter/internal/routing"
)

var log = logging.New("session")

// Config tunes the parts of the pipeline spec.md leaves as explicit
// knobs rather than hard-coded constants.
type Config struct {
	CoalesceGrace  time.Duration
	CoalesceIdle   time.Duration
	UpstreamDialTO time.Duration
	DiagMarker     string
}

// Deps are the shared collaborators a session pipeline consults.
// Routing and Registry are the only state shared across sessions; the
// rest are stateless (or internally cached) clients.
type Deps struct {
	Routing  *routing.Table
	Registry *registry.Registry
	Identity *identity.Resolver
	Firewall *firewall.Client
	Reporter *reporter.Reporter
	Audit    *audit.Log
	Config   Config
}

// Handle runs one client connection through the full pipeline. It
// never panics out to the caller: internal failures are contained and
// logged, and Handle always closes conn before returning.
func Handle(ctx context.Context, conn net.Conn, deps Deps) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("session panic recovered: %v", r)
		}
	}()
	defer conn.Close()

	s := &pipeline{conn: conn, deps: deps}
	s.run(ctx)
}

type pipeline struct {
	conn net.Conn
	deps Deps

	clientIP string
	domain   string
	username string
	uuid     string
	upstream routing.Upstream
}

func (s *pipeline) run(ctx context.Context) {
	initial, err := readInitial(s.conn, s.deps.Config.CoalesceGrace, s.deps.Config.CoalesceIdle)
	if err != nil {
		log.Debug("initial read failed from %s: %v", s.conn.RemoteAddr(), err)
		return
	}

	ip, rest, err := codec.StripInjectedIP(initial)
	if err != nil {
		s.rejectf("Missing client IP header")
		log.Debug("extract ip failed from %s: %v", s.conn.RemoteAddr(), err)
		return
	}
	s.clientIP = ip

	modern, err := codec.Classify(rest)
	if err != nil {
		s.rejectf("Malformed handshake")
		return
	}
	if !modern {
		s.rejectf("Legacy protocol not supported")
		return
	}

	hs, off, err := codec.ParseHandshake(rest)
	if err != nil {
		s.rejectf("Malformed handshake")
		log.Debug("handshake parse failed from %s: %v", s.clientIP, err)
		return
	}
	s.domain = routing.Normalize(hs.ServerAddress)

	if hs.NextState == codec.NextStateLogin {
		ls, _, err := codec.ParseLoginStart(rest, off)
		if err == nil {
			s.username = ls.Username
		}
		// best-effort: absence of a parseable Login Start is not a
		// session failure, per §4.G.
	}

	if s.username != "" {
		uuid := s.deps.Identity.Resolve(ctx, s.username)
		if uuid == identity.Unresolved {
			s.rejectf("Could not verify player identity")
			log.Info("unresolved identity for %q from %s", s.username, s.clientIP)
			return
		}
		s.uuid = uuid
	}

	upstream, ok := s.deps.Routing.Get(s.domain)
	if !ok {
		s.rejectf("Unknown domain")
		log.Info("unknown domain %q from %s", s.domain, s.clientIP)
		return
	}
	s.upstream = upstream

	if s.deps.Firewall.Authorise(ctx, s.domain, s.clientIP, s.username, s.uuid) {
		s.rejectf("Connection blocked by firewall")
		log.Info("firewall blocked %s (domain %q, user %q)", s.clientIP, s.domain, s.username)
		return
	}

	upstreamConn, err := net.DialTimeout("tcp", net.JoinHostPort(upstream.Host, strconv.Itoa(upstream.Port)), s.deps.Config.UpstreamDialTO)
	if err != nil {
		s.rejectf("Failed to connect to remote server")
		log.Error("dial upstream %s:%d failed: %v", upstream.Host, upstream.Port, err)
		return
	}
	defer upstreamConn.Close()

	id := s.deps.Registry.Insert(registry.Record{
		ClientIP:     s.clientIP,
		Domain:       s.domain,
		Username:     s.username,
		UUID:         s.uuid,
		UpstreamHost: upstream.Host,
		UpstreamPort: upstream.Port,
	}, s.conn)
	defer s.deps.Registry.Remove(id)

	s.deps.Reporter.Report(s.domain, s.username, s.clientIP, s.uuid)
	s.deps.Audit.Record(audit.Admission{
		ClientIP: s.clientIP,
		Domain:   s.domain,
		Username: s.username,
		UUID:     s.uuid,
		Upstream: net.JoinHostPort(upstream.Host, strconv.Itoa(upstream.Port)),
	})

	// Replay the entire residual slice, not just the parsed
	// handshake/login prefix: the coalescing window may have drained
	// further client bytes (e.g. a status ping's Status Request and
	// Ping, or post-login packets) into this same buffer, and those
	// bytes won't reappear once SPLICE takes over.
	replay := rest
	if len(replay) > 0 {
		if _, err := upstreamConn.Write(replay); err != nil {
			log.Error("replay write to upstream failed for session %d: %v", id, err)
			return
		}
	}

	s.conn.SetReadDeadline(time.Time{})
	splice(s.conn, upstreamConn, s.deps.Config.DiagMarker)
}

// rejectf writes a short ASCII diagnostic to the client before the
// deferred Close runs. Best-effort: write failures are ignored, the
// socket is about to be closed regardless.
func (s *pipeline) rejectf(msg string) {
	_, _ = s.conn.Write([]byte(msg))
}

