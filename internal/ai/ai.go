// Package ai implements the built-in adversary: a bounded alpha-beta
// search over the rule-engine contract, with material-only evaluation
// and an optional opening book. The match registry drives it exactly
// like a human player whose broadcasts go nowhere.
package ai

import (
	"math/rand"
	"strings"

	"github.com/lehau007/NetworkProgramming/internal/chess"
	"github.com/lehau007/NetworkProgramming/internal/data"
	"github.com/lehau007/NetworkProgramming/internal/scripting"
)

// UserID is the reserved database id for the adversary account.
const UserID int64 = -1

// Username is the adversary's display name.
const Username = "AI"

const (
	MinDepth     = 1
	MaxDepth     = 4
	DefaultDepth = 2
)

// AI is one adversary instance bound to a search depth and policy.
type AI struct {
	depth  int
	policy scripting.EvalPolicy
	book   *data.OpeningBook
}

// New creates an adversary with the given depth (clamped to 1-4; 0
// means default). A nil book disables book play.
func New(depth int, policy scripting.EvalPolicy, book *data.OpeningBook) *AI {
	if depth == 0 {
		depth = DefaultDepth
	}
	if depth < MinDepth {
		depth = MinDepth
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}
	if policy.PieceValues == nil {
		policy = scripting.DefaultPolicy()
	}
	return &AI{depth: depth, policy: policy, book: book}
}

func (a *AI) Depth() int { return a.depth }

// ChooseMove picks the adversary's move for the current position.
// The move history is used for opening-book lookup; an empty string
// means no move is available (the game is over).
func (a *AI) ChooseMove(g *chess.Game, history []string) string {
	if g.IsEnded() {
		return ""
	}

	if a.book != nil {
		var legal []string
		for _, mv := range a.book.Continuations(history) {
			if g.CheckMove(mv) {
				legal = append(legal, mv)
			}
		}
		if len(legal) > 0 {
			return legal[rand.Intn(len(legal))]
		}
	}

	moves := g.LegalMovesForCurrentPlayer()
	if len(moves) == 0 {
		return ""
	}

	forWhite := g.IsWhiteToMove()
	best := ""
	bestScore := -1 << 30
	alpha, beta := -1<<30, 1<<30

	for _, mv := range moves {
		probe := *g
		if !probe.Move(mv) {
			continue
		}
		score := a.search(&probe, a.depth-1, alpha, beta, forWhite)
		if score > bestScore || best == "" {
			bestScore = score
			best = mv
		}
		if score > alpha {
			alpha = score
		}
	}
	return best
}

// search is plain alpha-beta to the remaining depth. Scores are from
// the adversary's point of view; terminal positions carry the mate
// bias scaled by remaining depth so nearer mates win ties.
func (a *AI) search(g *chess.Game, depth, alpha, beta int, forWhite bool) int {
	if g.IsEnded() || depth <= 0 {
		return a.evaluate(g, depth, forWhite)
	}

	maximizing := g.IsWhiteToMove() == forWhite
	moves := g.LegalMovesForCurrentPlayer()
	if len(moves) == 0 {
		return a.evaluate(g, depth, forWhite)
	}

	if maximizing {
		best := -1 << 30
		for _, mv := range moves {
			probe := *g
			if !probe.Move(mv) {
				continue
			}
			score := a.search(&probe, depth-1, alpha, beta, forWhite)
			if score > best {
				best = score
			}
			if best > alpha {
				alpha = best
			}
			if alpha >= beta {
				break
			}
		}
		return best
	}

	best := 1 << 30
	for _, mv := range moves {
		probe := *g
		if !probe.Move(mv) {
			continue
		}
		score := a.search(&probe, depth-1, alpha, beta, forWhite)
		if score < best {
			best = score
		}
		if best < beta {
			beta = best
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

// evaluate scores the position for the adversary: decided games get the
// mate bias (deeper remaining depth = faster mate = higher score),
// everything else is material counted from the FEN placement field.
func (a *AI) evaluate(g *chess.Game, depthLeft int, forWhite bool) int {
	if g.IsEnded() {
		switch g.Result() {
		case chess.WhiteWin:
			if forWhite {
				return a.policy.MateBias + depthLeft
			}
			return -a.policy.MateBias - depthLeft
		case chess.BlackWin:
			if forWhite {
				return -a.policy.MateBias - depthLeft
			}
			return a.policy.MateBias + depthLeft
		default:
			return 0
		}
	}

	score := a.materialFromFEN(g.FEN())
	if !forWhite {
		score = -score
	}
	return score
}

// materialFromFEN sums piece values from the placement field, white
// positive.
func (a *AI) materialFromFEN(fen string) int {
	placement, _, _ := strings.Cut(fen, " ")
	score := 0
	for i := 0; i < len(placement); i++ {
		ch := placement[i]
		if ch == '/' || (ch >= '1' && ch <= '8') {
			continue
		}
		lower := ch | 0x20
		v, ok := a.policy.PieceValues[lower]
		if !ok {
			if lower == 'k' {
				v = a.policy.KingValue
			} else {
				continue
			}
		}
		if ch >= 'A' && ch <= 'Z' {
			score += v
		} else {
			score -= v
		}
	}
	return score
}
