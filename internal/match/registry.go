// Package match implements the process-wide match registry: the
// pending-challenge set, the live-game set with their rule engines,
// turn arbitration, and end-of-game settlement.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/lehau007/NetworkProgramming/internal/ai"
	"github.com/lehau007/NetworkProgramming/internal/chess"
	"github.com/lehau007/NetworkProgramming/internal/data"
	"github.com/lehau007/NetworkProgramming/internal/persist"
	"github.com/lehau007/NetworkProgramming/internal/protocol"
	"github.com/lehau007/NetworkProgramming/internal/scripting"
	"go.uber.org/zap"
)

// Rating adjustment for decisive results; draws leave ratings alone.
const ratingDelta = 3

var (
	ErrChallengeNotFound = errors.New("match: challenge not found")
	ErrChallengePending  = errors.New("match: user already has a pending challenge")
	ErrGameNotFound      = errors.New("match: game not found")
	ErrGameInactive      = errors.New("match: game is not active")
	ErrNotInGame         = errors.New("match: player is not in this game")
	ErrAlreadyInGame     = errors.New("match: player is already in a game")
	ErrNotYourTurn       = errors.New("match: not this player's turn")
	ErrIllegalMove       = errors.New("match: illegal move")
	ErrNoDrawOffer       = errors.New("match: no outstanding draw offer")
)

// Broadcaster delivers one unsolicited JSON message to a user. It is
// installed once at startup; the registry stays ignorant of sockets.
type Broadcaster func(userID int64, msg protocol.M)

// GameStore is the persistent side of the game lifecycle, implemented
// by persist.GameRepo.
type GameStore interface {
	Create(ctx context.Context, whiteID, blackID int64) (int64, error)
	AppendMove(ctx context.Context, gameID int64, move string) error
	End(ctx context.Context, gameID int64, result, movesJSON string) error
}

// UserStore covers the settlement writes, implemented by
// persist.UserRepo.
type UserStore interface {
	ByID(ctx context.Context, id int64) (*persist.UserRow, error)
	IncrementWins(ctx context.Context, id int64) error
	IncrementLosses(ctx context.Context, id int64) error
	IncrementDraws(ctx context.Context, id int64) error
	UpdateRating(ctx context.Context, id int64, rating int) error
}

// outMsg is one prepared broadcast; lists are built under the mutex and
// dispatched after it is released.
type outMsg struct {
	userID int64
	msg    protocol.M
}

// Registry owns all pending challenges and live games. One mutex
// guards both collections; database calls and the broadcast callback
// run outside it.
type Registry struct {
	mu           sync.Mutex
	challenges   map[string]*Challenge
	byChallenger map[int64]string
	byTarget     map[int64]string
	games        map[int64]*Game
	byPlayer     map[int64]int64

	gameStore GameStore
	userStore UserStore
	broadcast Broadcaster

	aiPolicy scripting.EvalPolicy
	aiBook   *data.OpeningBook

	log *zap.Logger
}

func NewRegistry(gameStore GameStore, userStore UserStore, log *zap.Logger) *Registry {
	return &Registry{
		challenges:   make(map[string]*Challenge),
		byChallenger: make(map[int64]string),
		byTarget:     make(map[int64]string),
		games:        make(map[int64]*Game),
		byPlayer:     make(map[int64]int64),
		gameStore:    gameStore,
		userStore:    userStore,
		aiPolicy:     scripting.DefaultPolicy(),
		log:          log,
	}
}

// SetBroadcaster installs the delivery callback. Call once at startup,
// before any client is accepted.
func (r *Registry) SetBroadcaster(fn Broadcaster) {
	r.broadcast = fn
}

// SetAdversaryPolicy installs the Lua-derived evaluation policy and
// opening book used by AI games.
func (r *Registry) SetAdversaryPolicy(policy scripting.EvalPolicy, book *data.OpeningBook) {
	r.aiPolicy = policy
	r.aiBook = book
}

func (r *Registry) send(msgs []outMsg) {
	if r.broadcast == nil {
		return
	}
	for _, m := range msgs {
		r.broadcast(m.userID, m.msg)
	}
}

// ── Challenge lifecycle ────────────────────────────────────────────

// CreateChallenge registers a pending challenge and notifies the
// target. At most one active challenge per user, on either side.
func (r *Registry) CreateChallenge(challengerID int64, challengerName string, targetID int64, targetName, color string) (string, error) {
	if color != "white" && color != "black" {
		color = "random"
	}
	c := &Challenge{
		ID:             newChallengeID(),
		ChallengerID:   challengerID,
		ChallengerName: challengerName,
		TargetID:       targetID,
		TargetName:     targetName,
		PreferredColor: color,
		CreatedAt:      time.Now(),
	}

	r.mu.Lock()
	if r.userBusyLocked(challengerID) || r.userBusyLocked(targetID) {
		r.mu.Unlock()
		return "", ErrChallengePending
	}
	r.challenges[c.ID] = c
	r.byChallenger[challengerID] = c.ID
	r.byTarget[targetID] = c.ID
	r.mu.Unlock()

	r.send([]outMsg{{targetID, protocol.M{
		"type":            protocol.TypeChallengeReceived,
		"challenge_id":    c.ID,
		"from_username":   challengerName,
		"from_user_id":    challengerID,
		"preferred_color": color,
		"timestamp":       time.Now().Unix(),
	}}})
	return c.ID, nil
}

func (r *Registry) userBusyLocked(userID int64) bool {
	if _, ok := r.byChallenger[userID]; ok {
		return true
	}
	if _, ok := r.byTarget[userID]; ok {
		return true
	}
	return false
}

// Challenge returns a copy of the pending challenge with the given id.
func (r *Registry) Challenge(id string) (Challenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return Challenge{}, false
	}
	return *c, true
}

// HasPendingChallenge reports whether the user is party to any pending
// challenge.
func (r *Registry) HasPendingChallenge(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userBusyLocked(userID)
}

// AcceptChallenge resolves colors, creates the game, removes the
// challenge, and announces MATCH_STARTED to both players (white first).
func (r *Registry) AcceptChallenge(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	c, ok := r.challenges[id]
	if !ok {
		r.mu.Unlock()
		return -1, ErrChallengeNotFound
	}
	challenge := *c
	r.removeChallengeLocked(c)
	r.mu.Unlock()

	whiteID, whiteName := challenge.ChallengerID, challenge.ChallengerName
	blackID, blackName := challenge.TargetID, challenge.TargetName
	switch challenge.PreferredColor {
	case "white":
	case "black":
		whiteID, whiteName, blackID, blackName = blackID, blackName, whiteID, whiteName
	default:
		if rand.Intn(2) == 1 {
			whiteID, whiteName, blackID, blackName = blackID, blackName, whiteID, whiteName
		}
	}

	gameID, err := r.createGame(ctx, whiteID, whiteName, blackID, blackName, nil)
	if err != nil {
		return -1, err
	}
	r.announceMatch(gameID, whiteID, whiteName, blackID, blackName)
	return gameID, nil
}

// DeclineChallenge notifies the challenger and removes the challenge.
func (r *Registry) DeclineChallenge(id string) error {
	r.mu.Lock()
	c, ok := r.challenges[id]
	if !ok {
		r.mu.Unlock()
		return ErrChallengeNotFound
	}
	challenge := *c
	r.removeChallengeLocked(c)
	r.mu.Unlock()

	r.send([]outMsg{{challenge.ChallengerID, protocol.M{
		"type":            protocol.TypeChallengeDeclined,
		"challenge_id":    challenge.ID,
		"target_username": challenge.TargetName,
	}}})
	return nil
}

// CancelChallenge notifies the target and removes the challenge.
func (r *Registry) CancelChallenge(id string) error {
	r.mu.Lock()
	c, ok := r.challenges[id]
	if !ok {
		r.mu.Unlock()
		return ErrChallengeNotFound
	}
	challenge := *c
	r.removeChallengeLocked(c)
	r.mu.Unlock()

	r.send([]outMsg{{challenge.TargetID, protocol.M{
		"type":         protocol.TypeChallengeCancelled,
		"challenge_id": challenge.ID,
		"cancelled_by": challenge.ChallengerName,
		"reason":       "user_cancelled",
	}}})
	return nil
}

// RemoveChallengesFor drops any pending challenge the user is party to
// (disconnect path), notifying the other side.
func (r *Registry) RemoveChallengesFor(userID int64) {
	r.mu.Lock()
	var dropped []Challenge
	if id, ok := r.byChallenger[userID]; ok {
		if c := r.challenges[id]; c != nil {
			dropped = append(dropped, *c)
			r.removeChallengeLocked(c)
		}
	}
	if id, ok := r.byTarget[userID]; ok {
		if c := r.challenges[id]; c != nil {
			dropped = append(dropped, *c)
			r.removeChallengeLocked(c)
		}
	}
	r.mu.Unlock()

	var msgs []outMsg
	for _, c := range dropped {
		if c.ChallengerID == userID {
			msgs = append(msgs, outMsg{c.TargetID, protocol.M{
				"type":         protocol.TypeChallengeCancelled,
				"challenge_id": c.ID,
				"cancelled_by": c.ChallengerName,
				"reason":       "user_disconnected",
			}})
		} else {
			msgs = append(msgs, outMsg{c.ChallengerID, protocol.M{
				"type":            protocol.TypeChallengeDeclined,
				"challenge_id":    c.ID,
				"target_username": c.TargetName,
			}})
		}
	}
	r.send(msgs)
}

func (r *Registry) removeChallengeLocked(c *Challenge) {
	delete(r.challenges, c.ID)
	delete(r.byChallenger, c.ChallengerID)
	delete(r.byTarget, c.TargetID)
}

// ── Game lifecycle ─────────────────────────────────────────────────

// reservedGameID marks a byPlayer seat claimed by a game whose
// persistent row is still being written. Lookups treat it as "busy
// but no live game yet".
const reservedGameID int64 = -1

// createGame allocates the persistent row, instantiates a fresh rule
// engine, and installs the game in both maps. Both seats are checked
// and claimed in a single critical section so two concurrent creates
// can never both pass the busy check.
func (r *Registry) createGame(ctx context.Context, whiteID int64, whiteName string, blackID int64, blackName string, adversary *ai.AI) (int64, error) {
	r.mu.Lock()
	_, whiteBusy := r.byPlayer[whiteID]
	_, blackBusy := r.byPlayer[blackID]
	if whiteBusy || blackBusy {
		r.mu.Unlock()
		return -1, ErrAlreadyInGame
	}
	r.byPlayer[whiteID] = reservedGameID
	r.byPlayer[blackID] = reservedGameID
	r.mu.Unlock()

	gameID, err := r.gameStore.Create(ctx, whiteID, blackID)
	if err != nil {
		r.mu.Lock()
		delete(r.byPlayer, whiteID)
		delete(r.byPlayer, blackID)
		r.mu.Unlock()
		return -1, err
	}

	g := &Game{
		ID:        gameID,
		WhiteID:   whiteID,
		BlackID:   blackID,
		WhiteName: whiteName,
		BlackName: blackName,
		Engine:    chess.New(),
		StartedAt: time.Now(),
		Active:    true,
		AI:        adversary,
	}

	r.mu.Lock()
	r.games[gameID] = g
	r.byPlayer[whiteID] = gameID
	r.byPlayer[blackID] = gameID
	r.mu.Unlock()

	r.log.Info("game created",
		zap.Int64("game_id", gameID),
		zap.String("white", whiteName),
		zap.String("black", blackName),
	)
	return gameID, nil
}

func (r *Registry) announceMatch(gameID, whiteID int64, whiteName string, blackID int64, blackName string) {
	started := func(yourColor, opponent string) protocol.M {
		return protocol.M{
			"type":              protocol.TypeMatchStarted,
			"game_id":           gameID,
			"white_player":      whiteName,
			"black_player":      blackName,
			"your_color":        yourColor,
			"opponent_username": opponent,
		}
	}
	r.send([]outMsg{
		{whiteID, started("white", blackName)},
		{blackID, started("black", whiteName)},
	})
}

// AcceptAIChallenge creates a game against the built-in adversary and
// kicks off its first move when it plays white.
func (r *Registry) AcceptAIChallenge(ctx context.Context, userID int64, username, color string, depth int) (int64, error) {
	adversary := ai.New(depth, r.aiPolicy, r.aiBook)

	humanWhite := true
	switch color {
	case "white":
	case "black":
		humanWhite = false
	default:
		humanWhite = rand.Intn(2) == 0
	}

	whiteID, whiteName := userID, username
	blackID, blackName := ai.UserID, ai.Username
	if !humanWhite {
		whiteID, whiteName = ai.UserID, ai.Username
		blackID, blackName = userID, username
	}

	gameID, err := r.createGame(ctx, whiteID, whiteName, blackID, blackName, adversary)
	if err != nil {
		return -1, err
	}
	r.announceMatch(gameID, whiteID, whiteName, blackID, blackName)

	if !humanWhite {
		r.scheduleAIMove(gameID)
	}
	return gameID, nil
}

// MakeMove arbitrates one move: membership, turn parity, engine
// legality. On success the move is persisted and MOVE_ACCEPTED /
// OPPONENT_MOVE are emitted in that order; a terminal move then runs
// settlement.
func (r *Registry) MakeMove(ctx context.Context, gameID, playerID int64, move string) error {
	r.mu.Lock()
	g, ok := r.games[gameID]
	if !ok {
		r.mu.Unlock()
		return ErrGameNotFound
	}
	if !g.Active {
		r.mu.Unlock()
		return ErrGameInactive
	}
	if playerID != g.WhiteID && playerID != g.BlackID {
		r.mu.Unlock()
		return ErrNotInGame
	}
	moverWhite := g.isWhite(playerID)
	if g.Engine.IsWhiteToMove() != moverWhite {
		r.mu.Unlock()
		return ErrNotYourTurn
	}
	if !g.Engine.Move(move) {
		r.mu.Unlock()
		return ErrIllegalMove
	}

	g.Moves = append(g.Moves, move)

	opponentID, _ := g.opponentOf(playerID)
	ended := g.Engine.IsEnded()
	result := g.Engine.Result()
	fen := g.Engine.FEN()
	moveNumber := g.Engine.Turn()
	nextTurn := colorToMove(g.Engine)
	isCheck := g.Engine.IsKingInCheck(g.Engine.IsWhiteToMove())
	whiteName, blackName := g.WhiteName, g.BlackName
	hasAI := g.AI != nil
	aiToMove := hasAI && !ended &&
		((g.Engine.IsWhiteToMove() && g.WhiteID == ai.UserID) ||
			(!g.Engine.IsWhiteToMove() && g.BlackID == ai.UserID))

	accepted := protocol.M{
		"type":         protocol.TypeMoveAccepted,
		"game_id":      gameID,
		"move":         move,
		"move_number":  moveNumber,
		"is_check":     isCheck,
		"is_checkmate": ended && result != chess.Draw,
		"board_state":  fen,
		"current_turn": nextTurn,
	}
	opponentMove := protocol.M{
		"type":           protocol.TypeOpponentMove,
		"game_id":        gameID,
		"move":           move,
		"move_number":    moveNumber,
		"is_check":       isCheck,
		"is_checkmate":   ended && result != chess.Draw,
		"board_state":    fen,
		"current_turn":   nextTurn,
		"captured_piece": nil,
		"timestamp":      time.Now().Unix(),
		"white_player":   whiteName,
		"black_player":   blackName,
	}
	msgs := []outMsg{{playerID, accepted}, {opponentID, opponentMove}}
	r.mu.Unlock()

	if err := r.gameStore.AppendMove(ctx, gameID, move); err != nil {
		r.log.Warn("append move", zap.Int64("game_id", gameID), zap.Error(err))
	}
	r.send(msgs)

	if ended {
		reason := "checkmate"
		if result == chess.Draw {
			reason = "draw"
		}
		r.EndGame(ctx, gameID, result, reason)
		return nil
	}
	if aiToMove {
		r.scheduleAIMove(gameID)
	}
	return nil
}

// scheduleAIMove computes the adversary's reply off the registry lock
// and feeds it through the normal MakeMove path.
func (r *Registry) scheduleAIMove(gameID int64) {
	r.mu.Lock()
	g, ok := r.games[gameID]
	if !ok || !g.Active || g.AI == nil {
		r.mu.Unlock()
		return
	}
	adversary := g.AI
	probe := *g.Engine
	history := make([]string, len(g.Moves))
	copy(history, g.Moves)
	r.mu.Unlock()

	go func() {
		move := adversary.ChooseMove(&probe, history)
		if move == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.MakeMove(ctx, gameID, ai.UserID, move); err != nil {
			r.log.Warn("ai move rejected",
				zap.Int64("game_id", gameID),
				zap.String("move", move),
				zap.Error(err),
			)
		}
	}()
}

// Resign ends the game in favor of the opponent.
func (r *Registry) Resign(ctx context.Context, gameID, playerID int64) error {
	r.mu.Lock()
	g, ok := r.games[gameID]
	if !ok {
		r.mu.Unlock()
		return ErrGameNotFound
	}
	if playerID != g.WhiteID && playerID != g.BlackID {
		r.mu.Unlock()
		return ErrNotInGame
	}
	result := chess.WhiteWin
	if g.isWhite(playerID) {
		result = chess.BlackWin
	}
	r.mu.Unlock()

	return r.EndGame(ctx, gameID, result, "resignation")
}

// OfferDraw sets the offering side's flag and notifies the opponent.
func (r *Registry) OfferDraw(ctx context.Context, gameID, playerID int64) error {
	r.mu.Lock()
	g, ok := r.games[gameID]
	if !ok {
		r.mu.Unlock()
		return ErrGameNotFound
	}
	if !g.Active {
		r.mu.Unlock()
		return ErrGameInactive
	}
	if playerID != g.WhiteID && playerID != g.BlackID {
		r.mu.Unlock()
		return ErrNotInGame
	}
	if g.isWhite(playerID) {
		g.DrawOfferWhite = true
	} else {
		g.DrawOfferBlack = true
	}
	opponentID, _ := g.opponentOf(playerID)
	fromName := g.playerName(playerID)
	r.mu.Unlock()

	r.send([]outMsg{{opponentID, protocol.M{
		"type":          protocol.TypeDrawOfferReceived,
		"game_id":       gameID,
		"from_username": fromName,
		"timestamp":     time.Now().Unix(),
	}}})
	return nil
}

// RespondToDraw answers the opponent's outstanding offer. Both flags
// are cleared either way; acceptance ends the game as a draw, decline
// notifies the offerer.
func (r *Registry) RespondToDraw(ctx context.Context, gameID, playerID int64, accepted bool) error {
	r.mu.Lock()
	g, ok := r.games[gameID]
	if !ok {
		r.mu.Unlock()
		return ErrGameNotFound
	}
	if !g.Active {
		r.mu.Unlock()
		return ErrGameInactive
	}
	if playerID != g.WhiteID && playerID != g.BlackID {
		r.mu.Unlock()
		return ErrNotInGame
	}
	offerPending := g.DrawOfferWhite
	if g.isWhite(playerID) {
		offerPending = g.DrawOfferBlack
	}
	if !offerPending {
		r.mu.Unlock()
		return ErrNoDrawOffer
	}
	g.DrawOfferWhite = false
	g.DrawOfferBlack = false
	opponentID, _ := g.opponentOf(playerID)
	fromName := g.playerName(playerID)
	r.mu.Unlock()

	if accepted {
		return r.EndGame(ctx, gameID, chess.Draw, "draw_agreement")
	}
	r.send([]outMsg{{opponentID, protocol.M{
		"type":          protocol.TypeDrawDeclined,
		"game_id":       gameID,
		"from_username": fromName,
	}}})
	return nil
}

// HandlePlayerDisconnect settles the user's live game as a win for the
// surviving opponent. Only the survivor is notified; the disconnected
// side has no socket.
func (r *Registry) HandlePlayerDisconnect(ctx context.Context, userID int64) {
	r.RemoveChallengesFor(userID)

	r.mu.Lock()
	gameID, ok := r.byPlayer[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	g := r.games[gameID]
	if g == nil {
		r.mu.Unlock()
		return
	}
	result := chess.WhiteWin
	if g.isWhite(userID) {
		result = chess.BlackWin
	}
	survivorID, _ := g.opponentOf(userID)
	r.mu.Unlock()

	r.log.Info("player disconnected mid-game",
		zap.Int64("user_id", userID),
		zap.Int64("game_id", gameID),
	)
	r.endGame(ctx, gameID, result, "opponent_disconnected", []int64{survivorID})
}

// EndGame is the single settlement routine shared by every
// termination, broadcasting GAME_ENDED to both players.
func (r *Registry) EndGame(ctx context.Context, gameID int64, result, reason string) error {
	return r.endGame(ctx, gameID, result, reason, nil)
}

// endGame marks the game inactive exactly once, writes the final row,
// applies rating deltas and counters, broadcasts GAME_ENDED (white
// first unless recipients narrows it), and releases the game.
func (r *Registry) endGame(ctx context.Context, gameID int64, result, reason string, recipients []int64) error {
	r.mu.Lock()
	g, ok := r.games[gameID]
	if !ok || !g.Active {
		r.mu.Unlock()
		return ErrGameInactive
	}
	g.Active = false
	snap := g.snapshot()
	r.mu.Unlock()

	movesJSON, err := json.Marshal(snap.Moves)
	if err != nil {
		movesJSON = []byte("[]")
	}
	if err := r.gameStore.End(ctx, gameID, result, string(movesJSON)); err != nil {
		r.log.Error("settle game", zap.Int64("game_id", gameID), zap.Error(err))
	}

	var winnerID, loserID int64
	var winnerName, loserName string
	switch result {
	case chess.WhiteWin:
		winnerID, winnerName = snap.WhiteID, snap.WhiteName
		loserID, loserName = snap.BlackID, snap.BlackName
	case chess.BlackWin:
		winnerID, winnerName = snap.BlackID, snap.BlackName
		loserID, loserName = snap.WhiteID, snap.WhiteName
	}
	r.applyResult(ctx, snap, result, winnerID, loserID)

	duration := int(time.Since(snap.StartedAt).Seconds())
	ended := protocol.M{
		"type":             protocol.TypeGameEnded,
		"game_id":          gameID,
		"result":           result,
		"reason":           reason,
		"move_count":       len(snap.Moves),
		"duration_seconds": duration,
		"white_player":     snap.WhiteName,
		"black_player":     snap.BlackName,
		"move_history":     snap.Moves,
	}
	if result != chess.Draw && result != protocol.ResultAborted {
		ended["winner"] = winnerName
		ended["loser"] = loserName
	}

	if recipients == nil {
		recipients = []int64{snap.WhiteID, snap.BlackID}
	}
	var msgs []outMsg
	for _, id := range recipients {
		msgs = append(msgs, outMsg{id, ended})
	}

	// release the game; the engine goes with it
	r.mu.Lock()
	delete(r.games, gameID)
	delete(r.byPlayer, snap.WhiteID)
	delete(r.byPlayer, snap.BlackID)
	r.mu.Unlock()

	r.send(msgs)

	r.log.Info("game ended",
		zap.Int64("game_id", gameID),
		zap.String("result", result),
		zap.String("reason", reason),
	)
	return nil
}

// applyResult bumps counters and applies the ±3 rating deltas via
// read-then-update.
func (r *Registry) applyResult(ctx context.Context, snap Snapshot, result string, winnerID, loserID int64) {
	if result == chess.Draw {
		for _, id := range []int64{snap.WhiteID, snap.BlackID} {
			if err := r.userStore.IncrementDraws(ctx, id); err != nil {
				r.log.Warn("increment draws", zap.Int64("user_id", id), zap.Error(err))
			}
		}
		return
	}
	if result == protocol.ResultAborted {
		return
	}

	if err := r.userStore.IncrementWins(ctx, winnerID); err != nil {
		r.log.Warn("increment wins", zap.Int64("user_id", winnerID), zap.Error(err))
	}
	if err := r.userStore.IncrementLosses(ctx, loserID); err != nil {
		r.log.Warn("increment losses", zap.Int64("user_id", loserID), zap.Error(err))
	}
	if winner, err := r.userStore.ByID(ctx, winnerID); err == nil && winner != nil {
		if err := r.userStore.UpdateRating(ctx, winnerID, winner.Rating+ratingDelta); err != nil {
			r.log.Warn("update rating", zap.Int64("user_id", winnerID), zap.Error(err))
		}
	}
	if loser, err := r.userStore.ByID(ctx, loserID); err == nil && loser != nil {
		if err := r.userStore.UpdateRating(ctx, loserID, loser.Rating-ratingDelta); err != nil {
			r.log.Warn("update rating", zap.Int64("user_id", loserID), zap.Error(err))
		}
	}
}

// ── Queries ────────────────────────────────────────────────────────

// GameSnapshot returns the observable state of a live game.
func (r *Registry) GameSnapshot(gameID int64) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[gameID]
	if !ok {
		return Snapshot{}, false
	}
	return g.snapshot(), true
}

// GameByUser returns the live game the user is playing, if any.
func (r *Registry) GameByUser(userID int64) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gameID, ok := r.byPlayer[userID]
	if !ok {
		return Snapshot{}, false
	}
	g, ok := r.games[gameID]
	if !ok {
		return Snapshot{}, false
	}
	return g.snapshot(), true
}

// HasDrawOffer reports whether the player's opponent has an
// outstanding draw offer in the given game.
func (r *Registry) HasDrawOffer(gameID, playerID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[gameID]
	if !ok || !g.Active {
		return false
	}
	if playerID != g.WhiteID && playerID != g.BlackID {
		return false
	}
	if g.isWhite(playerID) {
		return g.DrawOfferBlack
	}
	return g.DrawOfferWhite
}

// IsUserInGame reports whether the user id appears in any live game.
func (r *Registry) IsUserInGame(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byPlayer[userID]
	return ok
}

// LiveGameCount returns the number of live games.
func (r *Registry) LiveGameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.games)
}
