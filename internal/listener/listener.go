// Package listener implements the admission loop (§4.H): a single
// listening socket that spawns one independent goroutine per accepted
// connection. A panic inside a session is contained at the session
// boundary and never takes down the listener or any other session.
package listener

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/codingbear/mcrouter/internal/logging"
	"github.com/codingbear/mcrouter/internal/session"
)

var log = logging.New("listener")

// Listener accepts client connections and hands each to the session
// pipeline.
type Listener struct {
	port int
	deps session.Deps
}

// New builds a Listener bound to the given port.
func New(port int, deps session.Deps) *Listener {
	return &Listener{port: port, deps: deps}
}

// Run blocks, accepting connections until ctx is cancelled. It returns
// an error only if the listening socket cannot be opened; accept
// errors are logged and the loop retries after a short pause.
func (l *Listener) Run(ctx context.Context) error {
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(l.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("listening on %s", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Error("accept failed: %v", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
		}
		go l.admit(ctx, conn)
	}
}

// admit is the per-connection panic boundary: whatever happens inside
// session.Handle, the listener's accept loop and every other session
// remain unaffected.
func (l *Listener) admit(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("admission panic recovered: %v", r)
			conn.Close()
		}
	}()
	session.Handle(ctx, conn, l.deps)
}
