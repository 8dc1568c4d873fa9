package handler

import (
	"errors"
	"time"

	"github.com/lehau007/NetworkProgramming/internal/persist"
	"github.com/lehau007/NetworkProgramming/internal/protocol"
	"github.com/lehau007/NetworkProgramming/internal/session"
	"go.uber.org/zap"
)

// remoteAddrer is implemented by transport sockets that can report the
// client address; sessions record it when available.
type remoteAddrer interface {
	RemoteAddr() string
}

func sockIP(sock session.Socket) string {
	if ra, ok := sock.(remoteAddrer); ok {
		return ra.RemoteAddr()
	}
	return ""
}

func userData(row *persist.UserRow) protocol.M {
	return protocol.M{
		"user_id":  row.UserID,
		"username": row.Username,
		"email":    row.Email,
		"wins":     row.Wins,
		"losses":   row.Losses,
		"draws":    row.Draws,
		"rating":   row.Rating,
	}
}

// VerifySession validates a reconnecting client's token and binds its
// socket. A token already bound to a different live socket is refused.
func (d *Deps) VerifySession(sess any, req *protocol.Request) protocol.M {
	if req.SessionID == "" {
		return protocol.Error(protocol.ErrMissingField, "session_id is required")
	}
	sock, ok := sess.(session.Socket)
	if !ok {
		return protocol.Error(protocol.ErrInternal, "No transport for session")
	}

	ctx, cancel := d.ctx()
	defer cancel()

	if !d.Sessions.Verify(ctx, req.SessionID) {
		return protocol.M{
			"type":      protocol.TypeSessionInvalid,
			"reason":    "expired",
			"timestamp": time.Now().Unix(),
		}
	}

	if err := d.Sessions.Bind(req.SessionID, sock); err != nil {
		if errors.Is(err, session.ErrDuplicateSession) {
			return protocol.M{
				"type":       protocol.TypeDuplicateSession,
				"session_id": req.SessionID,
				"reason":     "already_connected",
			}
		}
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}

	entry, ok := d.Sessions.Lookup(req.SessionID)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	row, err := d.Users.ByID(ctx, entry.UserID)
	if err != nil || row == nil {
		return protocol.Error(protocol.ErrDatabase, "Failed to load account")
	}
	d.Sessions.SetUsername(req.SessionID, row.Username)

	return protocol.M{
		"type":       protocol.TypeSessionValid,
		"session_id": req.SessionID,
		"user_data":  userData(row),
		"timestamp":  time.Now().Unix(),
	}
}

// Login authenticates credentials, refuses a second concurrent
// connection for the same account, and creates a fresh session bound
// to this socket.
func (d *Deps) Login(sess any, req *protocol.Request) protocol.M {
	if req.Username == "" || req.Password == "" {
		return protocol.Error(protocol.ErrMissingField, "username and password are required")
	}
	sock, ok := sess.(session.Socket)
	if !ok {
		return protocol.Error(protocol.ErrInternal, "No transport for session")
	}

	ctx, cancel := d.ctx()
	defer cancel()

	userID, err := d.Users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return protocol.Error(protocol.ErrDatabase, "Login failed")
	}
	if userID < 0 {
		return protocol.M{
			"type":    protocol.TypeLoginResponse,
			"success": false,
			"message": "Invalid username or password",
		}
	}
	if d.Sessions.IsUserConnected(userID) {
		return protocol.M{
			"type":    protocol.TypeLoginResponse,
			"success": false,
			"message": "User is already connected",
		}
	}

	token, err := d.Sessions.Create(ctx, userID, req.Username, sockIP(sock), sock)
	if err != nil {
		return protocol.Error(protocol.ErrInternal, "Failed to create session")
	}
	row, err := d.Users.ByID(ctx, userID)
	if err != nil || row == nil {
		return protocol.Error(protocol.ErrDatabase, "Failed to load account")
	}

	d.Log.Info("user logged in",
		zap.Int64("user_id", userID),
		zap.String("username", req.Username),
	)
	return protocol.M{
		"type":       protocol.TypeLoginResponse,
		"success":    true,
		"session_id": token,
		"user_data":  userData(row),
		"timestamp":  time.Now().Unix(),
	}
}

// RegisterUser creates a new account. The username must be unused;
// password hashing happens in the repository.
func (d *Deps) RegisterUser(sess any, req *protocol.Request) protocol.M {
	if req.Username == "" || req.Password == "" {
		return protocol.Error(protocol.ErrMissingField, "username and password are required")
	}

	ctx, cancel := d.ctx()
	defer cancel()

	taken, err := d.Users.Exists(ctx, req.Username)
	if err != nil {
		return protocol.Error(protocol.ErrDatabase, "Registration failed")
	}
	if taken {
		return protocol.M{
			"type":    protocol.TypeRegisterResponse,
			"success": false,
			"message": "Username already taken",
		}
	}

	userID, err := d.Users.Create(ctx, req.Username, req.Password, req.Email)
	if err != nil || userID < 0 {
		return protocol.Error(protocol.ErrDatabase, "Registration failed")
	}

	d.Log.Info("user registered",
		zap.Int64("user_id", userID),
		zap.String("username", req.Username),
	)
	return protocol.M{
		"type":     protocol.TypeRegisterResponse,
		"success":  true,
		"user_id":  userID,
		"username": req.Username,
	}
}

// Logout forfeits any live game, drops the session everywhere, and
// confirms.
func (d *Deps) Logout(sess any, req *protocol.Request) protocol.M {
	entry, sock, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}

	ctx, cancel := d.ctx()
	defer cancel()

	d.Matches.HandlePlayerDisconnect(ctx, entry.UserID)
	d.Sessions.RemoveBySocket(ctx, sock)

	d.Log.Info("user logged out", zap.Int64("user_id", entry.UserID))
	return protocol.M{
		"type":      protocol.TypeLogoutResponse,
		"success":   true,
		"timestamp": time.Now().Unix(),
	}
}
