package session

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codingbear/mcrouter/internal/audit"
	"github.com/codingbear/mcrouter/internal/codec"
	"github.com/codingbear/mcrouter/internal/firewall"
	"github.com/codingbear/mcrouter/internal/identity"
	"github.com/codingbear/mcrouter/internal/registry"
	"github.com/codingbear/mcrouter/internal/reporter"
	"github.com/codingbear/mcrouter/internal/routing"
)

type memStore struct {
	data map[string]routing.Upstream
}

func (s *memStore) LoadAll() (map[string]routing.Upstream, error) { return s.data, nil }
func (s *memStore) SaveAll(routes map[string]routing.Upstream) error {
	s.data = routes
	return nil
}

func testConfig() Config {
	return Config{
		CoalesceGrace:  2 * time.Millisecond,
		CoalesceIdle:   40 * time.Millisecond,
		UpstreamDialTO: time.Second,
		DiagMarker:     "",
	}
}

func buildInitial(ip, addr string, port uint16, nextState int32, username string) []byte {
	buf := []byte("MCIP")
	buf = append(buf, byte(len(ip)))
	buf = append(buf, []byte(ip)...)

	var hsBody []byte
	hsBody = codec.WriteVarInt(hsBody, codec.PacketHandshake)
	hsBody = codec.WriteVarInt(hsBody, 765)
	hsBody = codec.WriteString(hsBody, addr)
	hsBody = append(hsBody, byte(port>>8), byte(port))
	hsBody = codec.WriteVarInt(hsBody, nextState)
	var hsPkt []byte
	hsPkt = codec.WriteVarInt(hsPkt, int32(len(hsBody)))
	hsPkt = append(hsPkt, hsBody...)
	buf = append(buf, hsPkt...)

	if nextState == codec.NextStateLogin {
		var lsBody []byte
		lsBody = codec.WriteVarInt(lsBody, codec.PacketLoginStart)
		lsBody = codec.WriteString(lsBody, username)
		var lsPkt []byte
		lsPkt = codec.WriteVarInt(lsPkt, int32(len(lsBody)))
		lsPkt = append(lsPkt, lsBody...)
		buf = append(buf, lsPkt...)
	}
	return buf
}

// fakeGetter scripts one JSON response regardless of URL, for
// identity/firewall fakes shared by these tests.
type fakeGetter struct {
	body string
	fail bool
}

func (f *fakeGetter) GetJSON(ctx context.Context, rawURL string, headers map[string]string, out any) (int, error) {
	if f.fail {
		return 0, errFake{}
	}
	return 200, json.Unmarshal([]byte(f.body), out)
}

type errFake struct{}

func (errFake) Error() string { return "network error" }

// startEchoUpstream starts a TCP server that, once connected, reads
// the replayed handshake bytes once, replies "pong", then echoes
// anything else it receives. It returns the listen address and a
// channel carrying the bytes it saw as the initial replay.
func startEchoUpstream(t *testing.T) (addr string, replay chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	replay = make(chan []byte, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		replay <- append([]byte{}, buf[:n]...)
		if _, err := conn.Write([]byte("pong")); err != nil {
			return
		}
		io.Copy(conn, conn) //nolint:errcheck
	}()

	return ln.Addr().String(), replay
}

func TestHappyPathLogin(t *testing.T) {
	addr, _ := startEchoUpstream(t)
	host, port := splitAddr(t, addr)

	table, err := routing.New(&memStore{data: map[string]routing.Upstream{
		"example.com": {Host: host, Port: port},
	}})
	require.NoError(t, err)

	idFake := &fakeGetter{body: `{"id":"069a79f444e94726a5befca90e38aaf5"}`}
	deps := Deps{
		Routing:  table,
		Registry: registry.New(),
		Identity: identity.NewWithClient(idFake, "http://primary", "http://secondary", time.Second, time.Minute),
		Firewall: firewall.New("", "", time.Second, time.Minute),
		Reporter: reporter.New("", "", time.Second),
		Audit:    audit.New(nil),
		Config:   testConfig(),
	}

	client, proxy := net.Pipe()
	go Handle(context.Background(), proxy, deps)

	initial := buildInitial("1.2.3.4", "example.com", 25565, codec.NextStateLogin, "alice")
	go client.Write(initial) //nolint:errcheck

	resp := make([]byte, 4)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := io.ReadFull(client, resp)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(resp[:n]))

	live := deps.Registry.Enumerate()
	require.Len(t, live, 1)
	assert.Equal(t, "alice", live[0].Username)
	assert.Equal(t, "1.2.3.4", live[0].ClientIP)

	client.Close()
}

func TestUnknownDomainRejectsBeforeDial(t *testing.T) {
	table, err := routing.New(&memStore{data: map[string]routing.Upstream{}})
	require.NoError(t, err)

	deps := Deps{
		Routing:  table,
		Registry: registry.New(),
		Identity: identity.New("http://primary", "http://secondary", time.Second, time.Minute),
		Firewall: firewall.New("", "", time.Second, time.Minute),
		Reporter: reporter.New("", "", time.Second),
		Audit:    audit.New(nil),
		Config:   testConfig(),
	}

	client, proxy := net.Pipe()
	go Handle(context.Background(), proxy, deps)

	initial := buildInitial("1.2.3.4", "nowhere.example", 25565, codec.NextStateStatus, "")
	go client.Write(initial) //nolint:errcheck

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Contains(t, string(msg), "Unknown domain")
	assert.Empty(t, deps.Registry.Enumerate())
}

func TestFirewallBlockByUUID(t *testing.T) {
	addr, _ := startEchoUpstream(t)
	host, port := splitAddr(t, addr)

	table, err := routing.New(&memStore{data: map[string]routing.Upstream{
		"example.com": {Host: host, Port: port},
	}})
	require.NoError(t, err)

	const uuid = "069a79f444e94726a5befca90e38aaf5"
	idFake := &fakeGetter{body: `{"id":"` + uuid + `"}`}
	fwFake := &fakeGetter{body: `{"rules":[{"type":"uuidBan","value":"` + uuid + `"}]}`}

	deps := Deps{
		Routing:  table,
		Registry: registry.New(),
		Identity: identity.NewWithClient(idFake, "http://primary", "http://secondary", time.Second, time.Minute),
		Firewall: firewall.NewWithClient(fwFake, "http://manager", "key", time.Second, time.Minute),
		Reporter: reporter.New("", "", time.Second),
		Audit:    audit.New(nil),
		Config:   testConfig(),
	}

	client, proxy := net.Pipe()
	go Handle(context.Background(), proxy, deps)

	initial := buildInitial("1.2.3.4", "example.com", 25565, codec.NextStateLogin, "alice")
	go client.Write(initial) //nolint:errcheck

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Contains(t, string(msg), "blocked by firewall")
	assert.Empty(t, deps.Registry.Enumerate())
}

func TestStatusPingSkipsIdentityAndRegisters(t *testing.T) {
	addr, _ := startEchoUpstream(t)
	host, port := splitAddr(t, addr)

	table, err := routing.New(&memStore{data: map[string]routing.Upstream{
		"example.com": {Host: host, Port: port},
	}})
	require.NoError(t, err)

	deps := Deps{
		Routing:  table,
		Registry: registry.New(),
		Identity: identity.NewWithClient(&fakeGetter{fail: true}, "http://primary", "http://secondary", time.Millisecond, time.Minute),
		Firewall: firewall.New("", "", time.Second, time.Minute),
		Reporter: reporter.New("", "", time.Second),
		Audit:    audit.New(nil),
		Config:   testConfig(),
	}

	client, proxy := net.Pipe()
	go Handle(context.Background(), proxy, deps)

	initial := buildInitial("1.2.3.4", "example.com", 25565, codec.NextStateStatus, "")
	go client.Write(initial) //nolint:errcheck

	resp := make([]byte, 4)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := io.ReadFull(client, resp)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(resp[:n]))

	live := deps.Registry.Enumerate()
	require.Len(t, live, 1)
	assert.Empty(t, live[0].Username)
	assert.Empty(t, live[0].UUID)

	client.Close()
}

// TestCoalescedTrailingBytesAreReplayed proves bytes that land in the
// same coalescing window as the handshake (e.g. a status ping's Status
// Request + Ping, sent back-to-back right after the handshake) reach
// the upstream along with the handshake itself, not just the parsed
// handshake prefix.
func TestCoalescedTrailingBytesAreReplayed(t *testing.T) {
	addr, replay := startEchoUpstream(t)
	host, port := splitAddr(t, addr)

	table, err := routing.New(&memStore{data: map[string]routing.Upstream{
		"example.com": {Host: host, Port: port},
	}})
	require.NoError(t, err)

	deps := Deps{
		Routing:  table,
		Registry: registry.New(),
		Identity: identity.New("http://primary", "http://secondary", time.Second, time.Minute),
		Firewall: firewall.New("", "", time.Second, time.Minute),
		Reporter: reporter.New("", "", time.Second),
		Audit:    audit.New(nil),
		Config:   testConfig(),
	}

	client, proxy := net.Pipe()
	go Handle(context.Background(), proxy, deps)

	initial := buildInitial("1.2.3.4", "example.com", 25565, codec.NextStateStatus, "")
	trailing := []byte{0x01, 0x00, 0x01, 0x09, 'p', 'i', 'n', 'g', 'p', 'a', 'y', 'l'}
	full := append(append([]byte{}, initial...), trailing...)
	go client.Write(full) //nolint:errcheck

	resp := make([]byte, 4)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(client, resp)
	require.NoError(t, err)

	select {
	case seen := <-replay:
		assert.Contains(t, string(seen), string(trailing))
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never saw a replayed byte slice")
	}

	client.Close()
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}
	return host, port
}
