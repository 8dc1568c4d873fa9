// Package chess implements the embedded rule engine: board state, move
// validation, and terminal detection. Moves are long-algebraic tokens
// of the form <from><to> with an optional promotion letter (e7e8q);
// castling is encoded as a king two-square move.
//
// Two deliberate simplifications are part of the contract: capturing
// the opponent king is a valid terminal move that wins the game for the
// mover, and a 200-ply cap produces a draw.
package chess

import "strings"

type Piece int8

const (
	Empty Piece = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

type Color int8

const (
	NoColor Color = iota
	White
	Black
)

func (c Color) Other() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	}
	return NoColor
}

// Game results.
const (
	Ongoing  = "ONGOING"
	WhiteWin = "WHITE_WIN"
	BlackWin = "BLACK_WIN"
	Draw     = "DRAW"
)

// MaxPlies is the draw cap: the game is drawn once 200 plies have been
// accepted.
const MaxPlies = 200

type square struct {
	piece Piece
	color Color
}

// Game is one chess position plus the state needed for castling rights
// and terminal detection. Row 0 is rank 8, column 0 is file a.
type Game struct {
	board  [8][8]square
	ply    int // accepted half-moves; even = white to move
	ended  bool
	result string

	kingMoved  [2]bool // [0]=white, [1]=black
	rookAMoved [2]bool // a-file rook
	rookHMoved [2]bool // h-file rook

	halfmoveClock int // plies since last pawn move or capture, for FEN
}

// New returns the standard starting position with white to move.
func New() *Game {
	g := &Game{result: Ongoing}
	back := [8]Piece{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}
	for col := 0; col < 8; col++ {
		g.board[0][col] = square{back[col], Black}
		g.board[1][col] = square{Pawn, Black}
		g.board[6][col] = square{Pawn, White}
		g.board[7][col] = square{back[col], White}
	}
	return g
}

// Turn returns the accepted ply count. Even means white to move.
func (g *Game) Turn() int { return g.ply }

func (g *Game) IsWhiteToMove() bool { return g.ply%2 == 0 }

func (g *Game) sideToMove() Color {
	if g.IsWhiteToMove() {
		return White
	}
	return Black
}

func (g *Game) IsEnded() bool { return g.ended }

// Result returns ONGOING, WHITE_WIN, BLACK_WIN or DRAW.
func (g *Game) Result() string { return g.result }

type move struct {
	fr, fc, tr, tc int
	promo          Piece
}

// parseMove decodes a long-algebraic token. A 4-char pawn move onto the
// last rank promotes to a queen implicitly.
func parseMove(token string) (move, bool) {
	token = strings.TrimSpace(token)
	if len(token) != 4 && len(token) != 5 {
		return move{}, false
	}
	m := move{
		fc: int(token[0] - 'a'),
		fr: 8 - int(token[1]-'0'),
		tc: int(token[2] - 'a'),
		tr: 8 - int(token[3]-'0'),
	}
	if !onBoard(m.fr, m.fc) || !onBoard(m.tr, m.tc) {
		return move{}, false
	}
	if len(token) == 5 {
		switch token[4] {
		case 'q':
			m.promo = Queen
		case 'r':
			m.promo = Rook
		case 'b':
			m.promo = Bishop
		case 'n':
			m.promo = Knight
		default:
			return move{}, false
		}
	}
	return m, true
}

func onBoard(r, c int) bool { return r >= 0 && r < 8 && c >= 0 && c < 8 }

// CheckMove reports whether the token is a legal move for the current
// side, without mutating state.
func (g *Game) CheckMove(token string) bool {
	if g.ended {
		return false
	}
	m, ok := parseMove(token)
	if !ok {
		return false
	}
	return g.validate(m)
}

// Move applies the token if legal. On success it toggles the side to
// move, increments the ply counter, updates castling rights, and sets
// the terminal state if the move ends the game.
func (g *Game) Move(token string) bool {
	if g.ended {
		return false
	}
	m, ok := parseMove(token)
	if !ok || !g.validate(m) {
		return false
	}
	g.apply(m)
	g.checkGameEnd()
	return true
}

// validate performs the full legality check for the side to move.
// Ordinary moves that leave the mover's own king attacked are allowed;
// king capture is the terminal arbiter. Castling alone carries the
// not-in/through/into-check conditions.
func (g *Game) validate(m move) bool {
	side := g.sideToMove()
	from := g.board[m.fr][m.fc]
	to := g.board[m.tr][m.tc]

	if from.piece == Empty || from.color != side {
		return false
	}
	if m.fr == m.tr && m.fc == m.tc {
		return false
	}
	if to.color == side {
		return false
	}
	if m.promo != Empty && !(from.piece == Pawn && lastRank(m.tr, side)) {
		return false
	}

	dr, dc := m.tr-m.fr, m.tc-m.fc
	switch from.piece {
	case Pawn:
		return g.validatePawn(m, side, to)
	case Knight:
		return (abs(dr) == 2 && abs(dc) == 1) || (abs(dr) == 1 && abs(dc) == 2)
	case Bishop:
		return abs(dr) == abs(dc) && g.pathClear(m)
	case Rook:
		return (dr == 0 || dc == 0) && g.pathClear(m)
	case Queen:
		return (dr == 0 || dc == 0 || abs(dr) == abs(dc)) && g.pathClear(m)
	case King:
		if abs(dr) <= 1 && abs(dc) <= 1 {
			return true
		}
		if dr == 0 && abs(dc) == 2 {
			return g.validateCastle(m, side)
		}
		return false
	}
	return false
}

func (g *Game) validatePawn(m move, side Color, to square) bool {
	dir := -1 // white moves toward row 0
	startRow := 6
	if side == Black {
		dir = 1
		startRow = 1
	}
	dr, dc := m.tr-m.fr, m.tc-m.fc

	// straight pushes must land on empty squares
	if dc == 0 {
		if to.piece != Empty {
			return false
		}
		if dr == dir {
			return true
		}
		// two-square push only from the initial rank, through an empty square
		if dr == 2*dir && m.fr == startRow {
			return g.board[m.fr+dir][m.fc].piece == Empty
		}
		return false
	}
	// diagonal capture only onto an enemy piece (no en passant)
	return abs(dc) == 1 && dr == dir && to.piece != Empty && to.color != side
}

// validateCastle checks the two-square king move: rights intact, rook
// in place, path empty, and the king not in, through, or into check.
func (g *Game) validateCastle(m move, side Color) bool {
	idx := sideIndex(side)
	if g.kingMoved[idx] {
		return false
	}
	homeRow := 7
	if side == Black {
		homeRow = 0
	}
	if m.fr != homeRow || m.fc != 4 || m.tr != homeRow {
		return false
	}

	var rookCol int
	var between []int
	switch m.tc {
	case 6: // king side
		if g.rookHMoved[idx] {
			return false
		}
		rookCol = 7
		between = []int{5, 6}
	case 2: // queen side
		if g.rookAMoved[idx] {
			return false
		}
		rookCol = 0
		between = []int{1, 2, 3}
	default:
		return false
	}

	rook := g.board[homeRow][rookCol]
	if rook.piece != Rook || rook.color != side {
		return false
	}
	for _, c := range between {
		if g.board[homeRow][c].piece != Empty {
			return false
		}
	}

	enemy := side.Other()
	if g.isSquareAttacked(homeRow, 4, enemy) {
		return false
	}
	step := 1
	if m.tc < 4 {
		step = -1
	}
	for c := 4 + step; ; c += step {
		if g.isSquareAttacked(homeRow, c, enemy) {
			return false
		}
		if c == m.tc {
			break
		}
	}
	return true
}

// pathClear verifies every square strictly between from and to is empty.
func (g *Game) pathClear(m move) bool {
	dr, dc := sign(m.tr-m.fr), sign(m.tc-m.fc)
	r, c := m.fr+dr, m.fc+dc
	for r != m.tr || c != m.tc {
		if g.board[r][c].piece != Empty {
			return false
		}
		r += dr
		c += dc
	}
	return true
}

// apply mutates the position for an already-validated move.
func (g *Game) apply(m move) {
	side := g.sideToMove()
	idx := sideIndex(side)
	from := g.board[m.fr][m.fc]
	captured := g.board[m.tr][m.tc]

	g.board[m.tr][m.tc] = from
	g.board[m.fr][m.fc] = square{}

	if from.piece == Pawn || captured.piece != Empty {
		g.halfmoveClock = 0
	} else {
		g.halfmoveClock++
	}

	switch from.piece {
	case King:
		g.kingMoved[idx] = true
		// castling moves the rook as well
		if m.tc-m.fc == 2 {
			g.board[m.tr][5] = g.board[m.tr][7]
			g.board[m.tr][7] = square{}
		} else if m.fc-m.tc == 2 {
			g.board[m.tr][3] = g.board[m.tr][0]
			g.board[m.tr][0] = square{}
		}
	case Rook:
		homeRow := 7
		if side == Black {
			homeRow = 0
		}
		if m.fr == homeRow && m.fc == 0 {
			g.rookAMoved[idx] = true
		}
		if m.fr == homeRow && m.fc == 7 {
			g.rookHMoved[idx] = true
		}
	case Pawn:
		if lastRank(m.tr, side) {
			promo := m.promo
			if promo == Empty {
				promo = Queen
			}
			g.board[m.tr][m.tc] = square{promo, side}
		}
	}

	g.ply++

	// king capture ends the game for the mover
	if captured.piece == King {
		g.ended = true
		if side == White {
			g.result = WhiteWin
		} else {
			g.result = BlackWin
		}
	}
}

// checkGameEnd runs after a successfully applied move: ply cap, then
// checkmate/stalemate for the side now to move.
func (g *Game) checkGameEnd() {
	if g.ended {
		return
	}
	if g.ply >= MaxPlies {
		g.ended = true
		g.result = Draw
		return
	}

	side := g.sideToMove()
	if g.hasEscape(side) {
		return
	}
	if g.IsKingInCheck(side == White) {
		g.ended = true
		if side == White {
			g.result = BlackWin
		} else {
			g.result = WhiteWin
		}
	} else {
		g.ended = true
		g.result = Draw // stalemate
	}
}

// hasEscape reports whether the side to move has any move after which
// its king is not attacked.
func (g *Game) hasEscape(side Color) bool {
	for fr := 0; fr < 8; fr++ {
		for fc := 0; fc < 8; fc++ {
			if g.board[fr][fc].color != side {
				continue
			}
			for tr := 0; tr < 8; tr++ {
				for tc := 0; tc < 8; tc++ {
					m := move{fr: fr, fc: fc, tr: tr, tc: tc}
					if !g.validate(m) {
						continue
					}
					probe := *g
					probe.apply(m)
					if !probe.IsKingInCheck(side == White) {
						return true
					}
				}
			}
		}
	}
	return false
}

// IsKingInCheck reports whether the given side's king is attacked.
func (g *Game) IsKingInCheck(white bool) bool {
	side := Black
	if white {
		side = White
	}
	kr, kc, found := g.findKing(side)
	if !found {
		return false
	}
	return g.isSquareAttacked(kr, kc, side.Other())
}

func (g *Game) findKing(side Color) (int, int, bool) {
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			sq := g.board[r][c]
			if sq.piece == King && sq.color == side {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// isSquareAttacked reports whether any piece of the attacking color
// attacks the square.
func (g *Game) isSquareAttacked(r, c int, by Color) bool {
	// pawn attacks run opposite to the pawn's movement direction
	pawnDir := 1 // black pawns attack downward (increasing row)
	if by == White {
		pawnDir = -1
	}
	for _, dc := range []int{-1, 1} {
		pr, pc := r-pawnDir, c+dc
		if onBoard(pr, pc) {
			sq := g.board[pr][pc]
			if sq.piece == Pawn && sq.color == by {
				return true
			}
		}
	}

	knightJumps := [8][2]int{{-2, -1}, {-2, 1}, {-1, -2}, {-1, 2}, {1, -2}, {1, 2}, {2, -1}, {2, 1}}
	for _, d := range knightJumps {
		pr, pc := r+d[0], c+d[1]
		if onBoard(pr, pc) {
			sq := g.board[pr][pc]
			if sq.piece == Knight && sq.color == by {
				return true
			}
		}
	}

	dirs := [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	for _, d := range dirs {
		diagonal := d[0] != 0 && d[1] != 0
		for step := 1; ; step++ {
			pr, pc := r+d[0]*step, c+d[1]*step
			if !onBoard(pr, pc) {
				break
			}
			sq := g.board[pr][pc]
			if sq.piece == Empty {
				continue
			}
			if sq.color == by {
				if step == 1 && sq.piece == King {
					return true
				}
				if sq.piece == Queen {
					return true
				}
				if diagonal && sq.piece == Bishop {
					return true
				}
				if !diagonal && sq.piece == Rook {
					return true
				}
			}
			break
		}
	}
	return false
}

// LegalMovesForCurrentPlayer brute-forces every from/to pair, appending
// a queen-promotion suffix when a pawn reaches the last rank.
func (g *Game) LegalMovesForCurrentPlayer() []string {
	if g.ended {
		return nil
	}
	side := g.sideToMove()
	var out []string
	for fr := 0; fr < 8; fr++ {
		for fc := 0; fc < 8; fc++ {
			if g.board[fr][fc].color != side {
				continue
			}
			for tr := 0; tr < 8; tr++ {
				for tc := 0; tc < 8; tc++ {
					m := move{fr: fr, fc: fc, tr: tr, tc: tc}
					if !g.validate(m) {
						continue
					}
					token := squareName(fr, fc) + squareName(tr, tc)
					if g.board[fr][fc].piece == Pawn && lastRank(tr, side) {
						token += "q"
					}
					out = append(out, token)
				}
			}
		}
	}
	return out
}

func squareName(r, c int) string {
	return string([]byte{byte('a' + c), byte('0' + 8 - r)})
}

func lastRank(r int, side Color) bool {
	return (side == White && r == 0) || (side == Black && r == 7)
}

func sideIndex(c Color) int {
	if c == Black {
		return 1
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
