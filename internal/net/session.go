package net

import (
	"go.uber.org/zap"

	"github.com/lehau007/NetworkProgramming/internal/ws"
)

// Session is one connected client. It wraps the upgraded WebSocket
// connection and implements the transport handle the session registry
// binds tokens to.
type Session struct {
	ID   uint64
	IP   string
	conn *ws.Conn
	log  *zap.Logger
}

func NewSession(conn *ws.Conn, id uint64, log *zap.Logger) *Session {
	return &Session{
		ID:   id,
		IP:   conn.RemoteAddr(),
		conn: conn,
		log:  log.With(zap.Uint64("session", id)),
	}
}

// SendText writes one text message. Safe for concurrent use; broadcast
// goroutines and the reader loop share this path.
func (s *Session) SendText(payload []byte) error {
	return s.conn.WriteText(payload)
}

// Close shuts the underlying connection. Idempotent.
func (s *Session) Close() error {
	return s.conn.Close()
}

// RemoteAddr returns the client address recorded at accept time.
func (s *Session) RemoteAddr() string {
	return s.IP
}
