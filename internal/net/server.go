// Package net runs the WebSocket front end: the TCP acceptor, the
// HTTP upgrade, and one reader goroutine per client that feeds decoded
// text messages into the dispatch registry.
package net

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lehau007/NetworkProgramming/internal/config"
	"github.com/lehau007/NetworkProgramming/internal/match"
	"github.com/lehau007/NetworkProgramming/internal/protocol"
	"github.com/lehau007/NetworkProgramming/internal/session"
	"github.com/lehau007/NetworkProgramming/internal/ws"
)

// cleanupTimeout bounds the database work done when a client drops.
const cleanupTimeout = 5 * time.Second

// Server accepts TCP connections, upgrades them to WebSocket, and runs
// one worker per client until the socket dies.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64

	network  config.NetworkConfig
	registry *protocol.Registry
	sessions *session.Registry
	matches  *match.Registry

	log     *zap.Logger
	closeCh chan struct{}
}

func NewServer(network config.NetworkConfig, registry *protocol.Registry, sessions *session.Registry, matches *match.Registry, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", network.BindAddress)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		network:  network,
		registry: registry,
		sessions: sessions,
		matches:  matches,
		log:      log,
		closeCh:  make(chan struct{}),
	}, nil
}

// AcceptLoop accepts connections until Shutdown and spawns one worker
// per client. It returns nil on orderly shutdown.
func (s *Server) AcceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return nil
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}
		go s.serve(conn)
	}
}

// serve upgrades one TCP connection and runs its read loop. The
// goroutine owns the connection for its whole life.
func (s *Server) serve(conn net.Conn) {
	wsConn, err := ws.Upgrade(conn, s.network.MaxHandshakeLen, s.network.MaxPayloadLen, s.network.WriteTimeout.Std())
	if err != nil {
		s.log.Debug("handshake rejected",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Error(err),
		)
		conn.Close()
		return
	}

	sess := NewSession(wsConn, s.nextID.Add(1), s.log)
	sess.log.Info("client connected", zap.String("remote", sess.IP))

	defer s.teardown(sess)

	for {
		opcode, payload, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		if opcode != ws.OpText {
			sess.log.Debug("non-text message ignored", zap.Uint8("opcode", opcode))
			continue
		}
		if resp := s.registry.Dispatch(sess, payload); resp != nil {
			if err := sess.SendText(resp.Encode()); err != nil {
				return
			}
		}
		s.touchActivity(sess)
	}
}

// touchActivity refreshes the session's last-activity stamp after every
// handled message, keepalives included, so an idle-but-messaging client
// is never swept.
func (s *Server) touchActivity(sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	s.sessions.TouchBySocket(ctx, sess)
}

// teardown settles the client's game as a forfeit, drops its cached
// session (the stored row stays for reconnection), and closes the
// socket.
func (s *Server) teardown(sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if entry, ok := s.sessions.LookupBySocket(sess); ok {
		s.matches.HandlePlayerDisconnect(ctx, entry.UserID)
		s.sessions.RemoveInCache(entry.Token)
		sess.log.Info("client disconnected", zap.Int64("user_id", entry.UserID))
	} else {
		sess.log.Info("client disconnected")
	}
	sess.Close()
}

// Shutdown stops the acceptor. Live client connections are left to
// their workers.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
