package session

import (
	"net"
	"time"

	"github.com/codingbear/mcrouter/internal/apperr"
)

// readInitial accumulates bytes from conn until either no new bytes
// arrive for idle, or (if nothing at all has arrived yet) the initial
// grace window elapses. This exists because a single TCP read does
// not always deliver the handshake and Login Start packets a client
// wrote back-to-back.
func readInitial(conn net.Conn, grace, idle time.Duration) ([]byte, error) {
	var buf []byte
	deadline := time.Now().Add(grace)
	tmp := make([]byte, 4096)

	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return buf, apperr.Wrap(apperr.TransportError, "set read deadline", err)
		}
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			deadline = time.Now().Add(idle)
			continue
		}
		if err != nil {
			if isTimeout(err) {
				return buf, nil
			}
			return buf, apperr.Wrap(apperr.TransportError, "initial read failed", err)
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
