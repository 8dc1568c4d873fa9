package handler

import (
	"errors"
	"time"

	"github.com/lehau007/NetworkProgramming/internal/match"
	"github.com/lehau007/NetworkProgramming/internal/protocol"
	"go.uber.org/zap"
)

// Move plays one move in the caller's live game. On success the
// registry broadcasts MOVE_ACCEPTED and OPPONENT_MOVE itself.
func (d *Deps) Move(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	if req.GameID <= 0 || req.Move == "" {
		return protocol.Error(protocol.ErrMissingField, "game_id and move are required")
	}

	ctx, cancel := d.ctx()
	defer cancel()

	err := d.Matches.MakeMove(ctx, req.GameID, entry.UserID, req.Move)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, match.ErrGameNotFound), errors.Is(err, match.ErrGameInactive):
		return protocol.Error(protocol.ErrGameNotFound, "Game not found")
	case errors.Is(err, match.ErrNotInGame):
		return protocol.Error(protocol.ErrNotInGame, "You are not in this game")
	case errors.Is(err, match.ErrNotYourTurn):
		return protocol.M{
			"type":    protocol.TypeMoveRejected,
			"game_id": req.GameID,
			"move":    req.Move,
			"reason":  "Not your turn",
		}
	default:
		return protocol.M{
			"type":    protocol.TypeMoveRejected,
			"game_id": req.GameID,
			"move":    req.Move,
			"reason":  "Illegal move",
		}
	}
}

// Resign concedes the caller's live game. The acknowledgement is
// written before the GAME_ENDED broadcast.
func (d *Deps) Resign(sess any, req *protocol.Request) protocol.M {
	entry, sock, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	snap, ok := d.Matches.GameByUser(entry.UserID)
	if !ok || (req.GameID > 0 && req.GameID != snap.ID) {
		return protocol.Error(protocol.ErrGameNotFound, "Game not found")
	}

	ack := protocol.M{
		"type":    protocol.TypeResignResponse,
		"game_id": snap.ID,
		"success": true,
	}
	if err := sock.SendText(ack.Encode()); err != nil {
		return nil
	}

	ctx, cancel := d.ctx()
	defer cancel()
	if err := d.Matches.Resign(ctx, snap.ID, entry.UserID); err != nil {
		d.Log.Warn("resign failed", zap.Int64("game_id", snap.ID), zap.Error(err))
	}
	return nil
}

// DrawOffer proposes a draw to the opponent.
func (d *Deps) DrawOffer(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	snap, ok := d.Matches.GameByUser(entry.UserID)
	if !ok || (req.GameID > 0 && req.GameID != snap.ID) {
		return protocol.Error(protocol.ErrGameNotFound, "Game not found")
	}

	ctx, cancel := d.ctx()
	defer cancel()
	if err := d.Matches.OfferDraw(ctx, snap.ID, entry.UserID); err != nil {
		return protocol.Error(protocol.ErrGameNotFound, "Game not found")
	}

	return protocol.M{
		"type":      protocol.TypeDrawOfferResponse,
		"game_id":   snap.ID,
		"success":   true,
		"timestamp": time.Now().Unix(),
	}
}

// DrawResponse answers the opponent's draw offer. The acknowledgement
// is written before any GAME_ENDED broadcast.
func (d *Deps) DrawResponse(sess any, req *protocol.Request) protocol.M {
	entry, sock, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	if req.Accepted == nil {
		return protocol.Error(protocol.ErrMissingField, "accepted is required")
	}
	snap, ok := d.Matches.GameByUser(entry.UserID)
	if !ok || (req.GameID > 0 && req.GameID != snap.ID) {
		return protocol.Error(protocol.ErrGameNotFound, "Game not found")
	}
	if !d.Matches.HasDrawOffer(snap.ID, entry.UserID) {
		return protocol.M{
			"type":    protocol.TypeDrawResponseFailed,
			"game_id": snap.ID,
			"reason":  "No draw offer pending",
		}
	}

	ack := protocol.M{
		"type":     protocol.TypeDrawResponseResponse,
		"game_id":  snap.ID,
		"accepted": *req.Accepted,
		"success":  true,
	}
	if err := sock.SendText(ack.Encode()); err != nil {
		return nil
	}

	ctx, cancel := d.ctx()
	defer cancel()
	if err := d.Matches.RespondToDraw(ctx, snap.ID, entry.UserID, *req.Accepted); err != nil {
		d.Log.Warn("draw response failed", zap.Int64("game_id", snap.ID), zap.Error(err))
	}
	return nil
}

// RequestRematch relays a rematch request to the opponent of one of
// the caller's finished games; the opponent answers with a fresh
// CHALLENGE.
func (d *Deps) RequestRematch(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	if req.PreviousGameID <= 0 {
		return protocol.Error(protocol.ErrMissingField, "previous_game_id is required")
	}

	ctx, cancel := d.ctx()
	defer cancel()

	game, err := d.Games.ByID(ctx, req.PreviousGameID)
	if err != nil {
		return protocol.Error(protocol.ErrDatabase, "Failed to look up game")
	}
	if game == nil {
		return protocol.Error(protocol.ErrGameNotFound, "Game not found")
	}

	opponentID, opponentName := game.WhiteID, game.WhiteName
	switch entry.UserID {
	case game.WhiteID:
		opponentID, opponentName = game.BlackID, game.BlackName
	case game.BlackID:
	default:
		return protocol.Error(protocol.ErrNotInGame, "You did not play in this game")
	}

	targetSock, online := d.Sessions.SocketByUser(opponentID)
	if !online {
		return protocol.Error(protocol.ErrUserOffline, "User is not online: "+opponentName)
	}

	relay := protocol.M{
		"type":             protocol.TypeRematchRequestReceived,
		"from_username":    entry.Username,
		"from_user_id":     entry.UserID,
		"previous_game_id": game.GameID,
		"timestamp":        time.Now().Unix(),
	}
	if err := targetSock.SendText(relay.Encode()); err != nil {
		return protocol.Error(protocol.ErrUserOffline, "User is not online: "+opponentName)
	}

	return protocol.M{
		"type":            protocol.TypeRematchRequestResponse,
		"success":         true,
		"target_username": opponentName,
	}
}

// GetGameState returns the full observable state of the caller's live
// game.
func (d *Deps) GetGameState(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	if req.GameID <= 0 {
		return protocol.Error(protocol.ErrMissingField, "game_id is required")
	}

	snap, ok := d.Matches.GameSnapshot(req.GameID)
	if !ok {
		return protocol.Error(protocol.ErrGameNotFound, "Game not found")
	}
	yourColor := ""
	switch entry.UserID {
	case snap.WhiteID:
		yourColor = "white"
	case snap.BlackID:
		yourColor = "black"
	default:
		return protocol.Error(protocol.ErrNotInGame, "You are not in this game")
	}

	return protocol.M{
		"type":         protocol.TypeGameState,
		"game_id":      snap.ID,
		"white_player": snap.WhiteName,
		"black_player": snap.BlackName,
		"board_state":  snap.BoardState,
		"current_turn": snap.CurrentTurn,
		"move_number":  snap.MoveNumber,
		"move_history": snap.Moves,
		"your_color":   yourColor,
		"is_ended":     snap.Ended,
		"timestamp":    time.Now().Unix(),
	}
}
