package match

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/lehau007/NetworkProgramming/internal/ai"
	"github.com/lehau007/NetworkProgramming/internal/chess"
)

// ChallengeIDLength is the size of a challenge id in hex characters.
const ChallengeIDLength = 16

// Challenge is one pending proposal that two users play a game.
type Challenge struct {
	ID             string
	ChallengerID   int64
	ChallengerName string
	TargetID       int64
	TargetName     string
	PreferredColor string // "white" | "black" | "random"
	CreatedAt      time.Time
}

// Game is one live game owned by the registry. The rule engine is a
// value owned inside the record; removal from the maps is the end of
// its lifetime.
type Game struct {
	ID        int64
	WhiteID   int64
	BlackID   int64
	WhiteName string
	BlackName string
	Engine    *chess.Game
	Moves     []string
	StartedAt time.Time
	Active    bool

	DrawOfferWhite bool
	DrawOfferBlack bool

	// Adversary bound to this game, nil for human-vs-human.
	AI *ai.AI
}

// Snapshot is a copy of a live game's observable state, safe to use
// outside the registry mutex.
type Snapshot struct {
	ID          int64
	WhiteID     int64
	BlackID     int64
	WhiteName   string
	BlackName   string
	Moves       []string
	StartedAt   time.Time
	Active      bool
	Ended       bool
	Result      string
	BoardState  string
	CurrentTurn string // "white" | "black"
	MoveNumber  int
}

func (g *Game) snapshot() Snapshot {
	moves := make([]string, len(g.Moves))
	copy(moves, g.Moves)
	return Snapshot{
		ID:          g.ID,
		WhiteID:     g.WhiteID,
		BlackID:     g.BlackID,
		WhiteName:   g.WhiteName,
		BlackName:   g.BlackName,
		Moves:       moves,
		StartedAt:   g.StartedAt,
		Active:      g.Active,
		Ended:       g.Engine.IsEnded(),
		Result:      g.Engine.Result(),
		BoardState:  g.Engine.FEN(),
		CurrentTurn: colorToMove(g.Engine),
		MoveNumber:  g.Engine.Turn(),
	}
}

// opponentOf returns the other player's id and name. The second player
// must be one of the two; callers validate membership first.
func (g *Game) opponentOf(playerID int64) (int64, string) {
	if playerID == g.WhiteID {
		return g.BlackID, g.BlackName
	}
	return g.WhiteID, g.WhiteName
}

func (g *Game) isWhite(playerID int64) bool {
	return playerID == g.WhiteID
}

func (g *Game) playerName(playerID int64) string {
	if playerID == g.WhiteID {
		return g.WhiteName
	}
	return g.BlackName
}

func colorToMove(e *chess.Game) string {
	if e.IsWhiteToMove() {
		return "white"
	}
	return "black"
}

// newChallengeID returns a random 16-hex-char challenge id.
func newChallengeID() string {
	var buf [ChallengeIDLength / 2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the process is unusable anyway
		panic(err)
	}
	return hex.EncodeToString(buf[:])
}
