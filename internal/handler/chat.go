package handler

import (
	"time"

	"github.com/lehau007/NetworkProgramming/internal/protocol"
)

// maxChatLen caps a single chat line.
const maxChatLen = 500

// ChatMessage relays an in-game chat line to the opponent. Messages to
// the built-in adversary are dropped silently.
func (d *Deps) ChatMessage(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	if req.Message == "" {
		return protocol.Error(protocol.ErrMissingField, "message is required")
	}
	text := req.Message
	if len(text) > maxChatLen {
		text = text[:maxChatLen]
	}

	snap, ok := d.Matches.GameByUser(entry.UserID)
	if !ok {
		return protocol.Error(protocol.ErrNotInGame, "You are not in a game")
	}
	if req.GameID > 0 && req.GameID != snap.ID {
		return protocol.Error(protocol.ErrGameNotFound, "Game not found")
	}

	opponentID := snap.WhiteID
	if entry.UserID == snap.WhiteID {
		opponentID = snap.BlackID
	}
	opponentSock, online := d.Sessions.SocketByUser(opponentID)
	if !online {
		return nil
	}

	relay := protocol.M{
		"type":          protocol.TypeChatMessageReceived,
		"game_id":       snap.ID,
		"from_username": entry.Username,
		"message":       text,
		"timestamp":     time.Now().Unix(),
	}
	_ = opponentSock.SendText(relay.Encode())
	return nil
}
