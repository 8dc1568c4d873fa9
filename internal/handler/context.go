// Package handler implements the application message handlers. Each
// file covers one protocol area; RegisterAll wires every handler into
// the dispatch registry with its auth requirement.
package handler

import (
	"context"
	"time"

	"github.com/lehau007/NetworkProgramming/internal/match"
	"github.com/lehau007/NetworkProgramming/internal/persist"
	"github.com/lehau007/NetworkProgramming/internal/protocol"
	"github.com/lehau007/NetworkProgramming/internal/session"
	"go.uber.org/zap"
)

// reqTimeout bounds the database work done on behalf of one request.
const reqTimeout = 5 * time.Second

// UserDirectory is the account surface handlers need, implemented by
// persist.UserRepo.
type UserDirectory interface {
	Create(ctx context.Context, username, credential, email string) (int64, error)
	ByID(ctx context.Context, id int64) (*persist.UserRow, error)
	ByUsername(ctx context.Context, name string) (*persist.UserRow, error)
	Authenticate(ctx context.Context, name, credential string) (int64, error)
	Exists(ctx context.Context, name string) (bool, error)
	TopByRating(ctx context.Context, limit int) ([]persist.UserRow, error)
	AllByRating(ctx context.Context) ([]persist.UserRow, error)
}

// GameArchive is the finished-game surface handlers need, implemented
// by persist.GameRepo.
type GameArchive interface {
	ByID(ctx context.Context, gameID int64) (*persist.GameRow, error)
	ByUser(ctx context.Context, userID int64, limit int) ([]persist.GameRow, error)
	Stats(ctx context.Context, userID int64) (*persist.UserStats, error)
}

// Deps carries the shared server state every handler closes over.
type Deps struct {
	Sessions *session.Registry
	Matches  *match.Registry
	Users    UserDirectory
	Games    GameArchive

	// AIDepth is the default adversary search depth when the client
	// does not request one.
	AIDepth int

	Log *zap.Logger
}

// ctx returns the per-request context handlers use for database work.
func (d *Deps) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), reqTimeout)
}

// caller resolves the session entry bound to the requesting socket.
func (d *Deps) caller(sess any) (session.Entry, session.Socket, bool) {
	sock, ok := sess.(session.Socket)
	if !ok {
		return session.Entry{}, nil, false
	}
	entry, ok := d.Sessions.LookupBySocket(sock)
	return entry, sock, ok
}

// authGate is the session check applied to authenticated handlers. The
// token must be valid and already bound to the requesting socket;
// binding happens in VERIFY_SESSION or LOGIN.
func (d *Deps) authGate(sess any, req *protocol.Request) protocol.M {
	if req.SessionID == "" {
		return protocol.Error(protocol.ErrMissingField, "session_id is required")
	}
	entry, _, ok := d.caller(sess)
	if !ok || entry.Token != req.SessionID {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	ctx, cancel := d.ctx()
	defer cancel()
	if !d.Sessions.Verify(ctx, req.SessionID) {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	return nil
}

// RegisterAll wires every message handler into the registry.
func RegisterAll(reg *protocol.Registry, d *Deps) {
	reg.SetAuthGate(d.authGate)

	// account and session
	reg.Register(protocol.TypeVerifySession, false, d.VerifySession)
	reg.Register(protocol.TypeLogin, false, d.Login)
	reg.Register(protocol.TypeRegister, false, d.RegisterUser)
	reg.Register(protocol.TypeLogout, true, d.Logout)

	// lobby
	reg.Register(protocol.TypeGetAvailablePlayers, true, d.GetAvailablePlayers)
	reg.Register(protocol.TypeGetGameHistory, true, d.GetGameHistory)
	reg.Register(protocol.TypeGetLeaderboard, true, d.GetLeaderboard)
	reg.Register(protocol.TypePing, false, d.Ping)

	// challenges
	reg.Register(protocol.TypeChallenge, true, d.Challenge)
	reg.Register(protocol.TypeAIChallenge, true, d.AIChallenge)
	reg.Register(protocol.TypeAcceptChallenge, true, d.AcceptChallenge)
	reg.Register(protocol.TypeDeclineChallenge, true, d.DeclineChallenge)
	reg.Register(protocol.TypeCancelChallenge, true, d.CancelChallenge)

	// live games
	reg.Register(protocol.TypeMove, true, d.Move)
	reg.Register(protocol.TypeResign, true, d.Resign)
	reg.Register(protocol.TypeDrawOffer, true, d.DrawOffer)
	reg.Register(protocol.TypeDrawResponse, true, d.DrawResponse)
	reg.Register(protocol.TypeRequestRematch, true, d.RequestRematch)
	reg.Register(protocol.TypeGetGameState, true, d.GetGameState)
	reg.Register(protocol.TypeChatMessage, true, d.ChatMessage)
}
