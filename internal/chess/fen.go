package chess

import (
	"strconv"
	"strings"
)

var fenLetters = map[Piece]byte{
	Pawn:   'p',
	Knight: 'n',
	Bishop: 'b',
	Rook:   'r',
	Queen:  'q',
	King:   'k',
}

// FEN renders the canonical six-field position string. The en passant
// field is always "-" because the engine does not implement en passant.
func (g *Game) FEN() string {
	var sb strings.Builder

	for r := 0; r < 8; r++ {
		empty := 0
		for c := 0; c < 8; c++ {
			sq := g.board[r][c]
			if sq.piece == Empty {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			letter := fenLetters[sq.piece]
			if sq.color == White {
				letter -= 'a' - 'A'
			}
			sb.WriteByte(letter)
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r < 7 {
			sb.WriteByte('/')
		}
	}

	sb.WriteByte(' ')
	if g.IsWhiteToMove() {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('b')
	}

	sb.WriteByte(' ')
	castling := g.castlingField()
	sb.WriteString(castling)

	sb.WriteString(" - ")
	sb.WriteString(strconv.Itoa(g.halfmoveClock))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(g.ply/2 + 1))

	return sb.String()
}

func (g *Game) castlingField() string {
	var sb strings.Builder
	if !g.kingMoved[0] {
		if !g.rookHMoved[0] {
			sb.WriteByte('K')
		}
		if !g.rookAMoved[0] {
			sb.WriteByte('Q')
		}
	}
	if !g.kingMoved[1] {
		if !g.rookHMoved[1] {
			sb.WriteByte('k')
		}
		if !g.rookAMoved[1] {
			sb.WriteByte('q')
		}
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}
