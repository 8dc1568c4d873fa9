package handler

import (
	"encoding/json"
	"time"

	"github.com/lehau007/NetworkProgramming/internal/ai"
	"github.com/lehau007/NetworkProgramming/internal/protocol"
)

const (
	// playerWindowRadius bounds GET_AVAILABLE_PLAYERS to opponents of
	// comparable rating on either side of the caller.
	playerWindowRadius = 10

	defaultHistoryLimit     = 10
	defaultLeaderboardLimit = 50
)

// GetAvailablePlayers lists connected users near the caller's rating,
// tagged with their lobby status.
func (d *Deps) GetAvailablePlayers(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}

	ctx, cancel := d.ctx()
	defer cancel()

	rows, err := d.Users.AllByRating(ctx)
	if err != nil {
		return protocol.Error(protocol.ErrDatabase, "Failed to load players")
	}

	idx := 0
	for i := range rows {
		if rows[i].UserID == entry.UserID {
			idx = i
			break
		}
	}
	lo := idx - playerWindowRadius
	if lo < 0 {
		lo = 0
	}
	hi := idx + playerWindowRadius
	if hi > len(rows)-1 {
		hi = len(rows) - 1
	}

	players := make([]protocol.M, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		row := &rows[i]
		if row.UserID == entry.UserID || row.UserID == ai.UserID {
			continue
		}
		if !d.Sessions.IsUserConnected(row.UserID) {
			continue
		}
		status := "available"
		if d.Matches.IsUserInGame(row.UserID) {
			status = "in_game"
		} else if d.Matches.HasPendingChallenge(row.UserID) {
			status = "busy"
		}
		players = append(players, protocol.M{
			"user_id":  row.UserID,
			"username": row.Username,
			"rating":   row.Rating,
			"status":   status,
		})
	}

	return protocol.M{
		"type":      protocol.TypePlayerList,
		"players":   players,
		"count":     len(players),
		"timestamp": time.Now().Unix(),
	}
}

// GetGameHistory returns the caller's finished games, newest first,
// with their aggregate record.
func (d *Deps) GetGameHistory(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	ctx, cancel := d.ctx()
	defer cancel()

	rows, err := d.Games.ByUser(ctx, entry.UserID, limit)
	if err != nil {
		return protocol.Error(protocol.ErrDatabase, "Failed to load game history")
	}
	stats, err := d.Games.Stats(ctx, entry.UserID)
	if err != nil {
		return protocol.Error(protocol.ErrDatabase, "Failed to load game history")
	}

	games := make([]protocol.M, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		var moves []string
		if err := json.Unmarshal([]byte(row.Moves), &moves); err != nil {
			moves = nil
		}
		g := protocol.M{
			"game_id":      row.GameID,
			"white_player": row.WhiteName,
			"black_player": row.BlackName,
			"result":       row.Result,
			"move_count":   len(moves),
			"start_time":   row.StartTime.Unix(),
		}
		if row.Duration != nil {
			g["duration_seconds"] = *row.Duration
		}
		games = append(games, g)
	}

	return protocol.M{
		"type":  protocol.TypeGameHistory,
		"games": games,
		"count": len(games),
		"stats": protocol.M{
			"total":  stats.Total,
			"wins":   stats.Wins,
			"losses": stats.Losses,
			"draws":  stats.Draws,
		},
		"timestamp": time.Now().Unix(),
	}
}

// GetLeaderboard returns the top rated accounts with their records.
func (d *Deps) GetLeaderboard(sess any, req *protocol.Request) protocol.M {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}

	ctx, cancel := d.ctx()
	defer cancel()

	rows, err := d.Users.TopByRating(ctx, limit)
	if err != nil {
		return protocol.Error(protocol.ErrDatabase, "Failed to load leaderboard")
	}

	board := make([]protocol.M, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		board = append(board, protocol.M{
			"rank":     i + 1,
			"username": row.Username,
			"rating":   row.Rating,
			"wins":     row.Wins,
			"losses":   row.Losses,
			"draws":    row.Draws,
		})
	}

	return protocol.M{
		"type":        protocol.TypeLeaderboard,
		"leaderboard": board,
		"count":       len(board),
		"timestamp":   time.Now().Unix(),
	}
}

// Ping answers with a PONG echoing the client's timestamp unchanged;
// the server clock fills in only when the client sent none.
func (d *Deps) Ping(sess any, req *protocol.Request) protocol.M {
	ts := time.Now().Unix()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	return protocol.M{
		"type":      protocol.TypePong,
		"timestamp": ts,
	}
}
