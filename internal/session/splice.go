package session

import (
	"bytes"
	"encoding/hex"
	"io"
	"net"
	"sync"
)

// splice ferries bytes between client and upstream in both directions
// unchanged until either side closes or errors. A clean EOF applies
// half-close semantics: the side that saw EOF has its peer's write
// half closed (flush, FIN) while the other direction keeps flowing.
// Any other error (a read error, or any write error) is not a clean
// shutdown and triggers a full close of both sockets immediately, per
// §4.G TEARDOWN. Once both directions have finished, both sockets are
// closed (a no-op if already closed). diagMarker, if non-empty,
// triggers one hex dump the first time it is observed in either
// direction (§4.G namePassed).
func splice(client, upstream net.Conn, diagMarker string) {
	var diagOnce sync.Once
	var closeOnce sync.Once
	done := make(chan struct{}, 2)

	closeBoth := func() {
		closeOnce.Do(func() {
			client.Close()
			upstream.Close()
		})
	}

	copyDir := func(dst, src net.Conn, label string) {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, 32*1024)
		for {
			n, rerr := src.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				if diagMarker != "" && bytes.Contains(chunk, []byte(diagMarker)) {
					diagOnce.Do(func() {
						log.Info("namePassed marker observed (%s):\n%s", label, hex.Dump(chunk))
					})
				}
				if _, werr := dst.Write(chunk); werr != nil {
					closeBoth()
					return
				}
			}
			if rerr != nil {
				if rerr == io.EOF {
					halfClose(dst)
				} else {
					closeBoth()
				}
				return
			}
		}
	}

	go copyDir(upstream, client, "client->upstream")
	go copyDir(client, upstream, "upstream->client")
	<-done
	<-done

	closeBoth()
}

func halfClose(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
}
