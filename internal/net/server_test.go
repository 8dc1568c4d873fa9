package net

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	stdnet "net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lehau007/NetworkProgramming/internal/config"
	"github.com/lehau007/NetworkProgramming/internal/match"
	"github.com/lehau007/NetworkProgramming/internal/persist"
	"github.com/lehau007/NetworkProgramming/internal/protocol"
	"github.com/lehau007/NetworkProgramming/internal/session"
)

type countingSessStore struct {
	mu      sync.Mutex
	rows    map[string]int64
	touches int
}

func newCountingSessStore() *countingSessStore {
	return &countingSessStore{rows: make(map[string]int64)}
}

func (s *countingSessStore) Create(ctx context.Context, token string, userID int64, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[token] = userID
	return nil
}

func (s *countingSessStore) Verify(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[token]
	return ok, nil
}

func (s *countingSessStore) Touch(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches++
	return nil
}

func (s *countingSessStore) touchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touches
}

func (s *countingSessStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, token)
	return nil
}

func (s *countingSessStore) DeleteByUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, id := range s.rows {
		if id == userID {
			delete(s.rows, tok)
		}
	}
	return nil
}

func (s *countingSessStore) Cleanup(ctx context.Context, timeout time.Duration) (int, error) {
	return 0, nil
}

func (s *countingSessStore) Info(ctx context.Context, token string) (*persist.SessionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.rows[token]
	if !ok {
		return nil, nil
	}
	now := time.Now()
	return &persist.SessionRow{SessionID: token, UserID: userID, LoginTime: now, LastActivity: now}, nil
}

type nopGameStore struct{}

func (nopGameStore) Create(ctx context.Context, whiteID, blackID int64) (int64, error) { return 1, nil }
func (nopGameStore) AppendMove(ctx context.Context, gameID int64, move string) error  { return nil }
func (nopGameStore) End(ctx context.Context, gameID int64, result, movesJSON string) error {
	return nil
}

type nopUserStore struct{}

func (nopUserStore) ByID(ctx context.Context, id int64) (*persist.UserRow, error) {
	return &persist.UserRow{UserID: id, Rating: 1500}, nil
}
func (nopUserStore) IncrementWins(ctx context.Context, id int64) error            { return nil }
func (nopUserStore) IncrementLosses(ctx context.Context, id int64) error          { return nil }
func (nopUserStore) IncrementDraws(ctx context.Context, id int64) error           { return nil }
func (nopUserStore) UpdateRating(ctx context.Context, id int64, rating int) error { return nil }

// startServer boots a server on a loopback port with a minimal message
// set: HELLO binds a session to the calling socket, PING answers PONG.
func startServer(t *testing.T) (*Server, *countingSessStore) {
	t.Helper()

	store := newCountingSessStore()
	sessions := session.NewRegistry(store, 30*time.Minute, zap.NewNop())
	matches := match.NewRegistry(nopGameStore{}, nopUserStore{}, zap.NewNop())

	reg := protocol.NewRegistry(zap.NewNop())
	reg.Register("HELLO", false, func(sess any, req *protocol.Request) protocol.M {
		sock := sess.(session.Socket)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		token, err := sessions.Create(ctx, 7, "tester", "", sock)
		if err != nil {
			return protocol.Error(protocol.ErrInternal, "session create failed")
		}
		return protocol.M{"type": "HELLO_OK", "session_id": token}
	})
	reg.Register(protocol.TypePing, false, func(sess any, req *protocol.Request) protocol.M {
		return protocol.M{"type": protocol.TypePong}
	})

	network := config.NetworkConfig{
		BindAddress:     "127.0.0.1:0",
		WriteTimeout:    config.Duration(2 * time.Second),
		MaxHandshakeLen: 8192,
		MaxPayloadLen:   1 << 20,
	}
	srv, err := NewServer(network, reg, sessions, matches, zap.NewNop())
	require.NoError(t, err)
	go srv.AcceptLoop()
	t.Cleanup(srv.Shutdown)
	return srv, store
}

// dialWS opens a TCP connection to the server and completes the
// WebSocket handshake from the client side.
func dialWS(t *testing.T, addr string) (stdnet.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := stdnet.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	req := "GET / HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.Contains(status, "101"), "unexpected status line %q", status)
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}
	return conn, br
}

// sendText writes one masked client text frame.
func sendText(t *testing.T, conn stdnet.Conn, payload []byte) {
	t.Helper()
	require.Less(t, len(payload), 126, "test frames stay short")
	mask := [4]byte{0xa1, 0xb2, 0xc3, 0xd4}
	frame := []byte{0x81, 0x80 | byte(len(payload))}
	frame = append(frame, mask[:]...)
	for i, b := range payload {
		frame = append(frame, b^mask[i%4])
	}
	_, err := conn.Write(frame)
	require.NoError(t, err)
}

// readText reads one unmasked server text frame.
func readText(t *testing.T, br *bufio.Reader) []byte {
	t.Helper()
	var hdr [2]byte
	_, err := io.ReadFull(br, hdr[:])
	require.NoError(t, err)
	length := int(hdr[1] & 0x7f)
	if length == 126 {
		var ext [2]byte
		_, err = io.ReadFull(br, ext[:])
		require.NoError(t, err)
		length = int(binary.BigEndian.Uint16(ext[:]))
	}
	payload := make([]byte, length)
	_, err = io.ReadFull(br, payload)
	require.NoError(t, err)
	return payload
}

func roundtrip(t *testing.T, conn stdnet.Conn, br *bufio.Reader, msgType string) protocol.M {
	t.Helper()
	sendText(t, conn, []byte(fmt.Sprintf(`{"type":%q}`, msgType)))
	var resp protocol.M
	require.NoError(t, json.Unmarshal(readText(t, br), &resp))
	return resp
}

func TestServeDispatchRoundtrip(t *testing.T) {
	srv, _ := startServer(t)
	conn, br := dialWS(t, srv.Addr().String())

	resp := roundtrip(t, conn, br, "HELLO")
	assert.Equal(t, "HELLO_OK", resp["type"])
	assert.NotEmpty(t, resp["session_id"])

	resp = roundtrip(t, conn, br, protocol.TypePing)
	assert.Equal(t, protocol.TypePong, resp["type"])
}

func TestServeTouchesSessionOnEveryMessage(t *testing.T) {
	srv, store := startServer(t)
	conn, br := dialWS(t, srv.Addr().String())

	resp := roundtrip(t, conn, br, "HELLO")
	require.Equal(t, "HELLO_OK", resp["type"])

	// the HELLO dispatch itself touches once the socket is bound
	require.Eventually(t, func() bool {
		return store.touchCount() >= 1
	}, 3*time.Second, 10*time.Millisecond)

	// keepalives alone must keep refreshing last-activity
	before := store.touchCount()
	resp = roundtrip(t, conn, br, protocol.TypePing)
	require.Equal(t, protocol.TypePong, resp["type"])

	require.Eventually(t, func() bool {
		return store.touchCount() > before
	}, 3*time.Second, 10*time.Millisecond)
}

func TestServeRejectsBadHandshake(t *testing.T) {
	srv, _ := startServer(t)

	conn, err := stdnet.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)

	// no key header: the server drops the connection without upgrading
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err)
}