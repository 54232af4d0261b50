package game

import (
	"strings"
)

// Board is the concrete Position. Boards are immutable: Play returns a fresh
// board linked to its predecessor, which doubles as the history the feature
// encoder and the superko check walk.
type Board struct {
	stones  [NumVertices]Color
	toMove  Color
	passes  uint8
	ko      Vertex
	hash    uint64
	komi    float32
	moveNum int
	prev    *Board
}

// NewBoard returns an empty board with Black to move.
func NewBoard(komi float32) *Board {
	return &Board{
		toMove: Black,
		ko:     NoVertex,
		komi:   komi,
	}
}

// ToMove returns the color whose turn it is.
func (b *Board) ToMove() Color { return b.toMove }

// Passes returns the number of consecutive passes ending here.
func (b *Board) Passes() uint8 { return b.passes }

// StoneAt returns the color occupying v.
func (b *Board) StoneAt(v Vertex) Color { return b.stones[v] }

// Hash returns the Zobrist hash of the stones.
func (b *Board) Hash() uint64 { return b.hash }

// MoveNumber returns the count of moves played to reach this position.
func (b *Board) MoveNumber() int { return b.moveNum }

// Komi returns the compensation given to White.
func (b *Board) Komi() float32 { return b.komi }

// neighbors writes the on-board orthogonal neighbors of v into buf and
// returns how many there are.
func neighbors(v Vertex, buf *[4]Vertex) int {
	x, y := v.X(), v.Y()
	n := 0
	if x > 0 {
		buf[n] = v - 1
		n++
	}
	if x < Size-1 {
		buf[n] = v + 1
		n++
	}
	if y > 0 {
		buf[n] = v - Size
		n++
	}
	if y < Size-1 {
		buf[n] = v + Size
		n++
	}
	return n
}

// diagonals writes the on-board diagonal neighbors of v into buf.
func diagonals(v Vertex, buf *[4]Vertex) int {
	x, y := v.X(), v.Y()
	n := 0
	for _, d := range [4][2]int{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}} {
		dx, dy := x+d[0], y+d[1]
		if dx >= 0 && dx < Size && dy >= 0 && dy < Size {
			buf[n] = VertexAt(dx, dy)
			n++
		}
	}
	return n
}

// chainInfo flood fills the chain containing v and returns its stones and
// liberty count.
func chainInfo(stones *[NumVertices]Color, v Vertex) (chain []Vertex, libs int) {
	c := stones[v]
	var seen [NumVertices]bool
	var libSeen [NumVertices]bool
	var buf [4]Vertex
	stack := []Vertex{v}
	seen[v] = true
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		chain = append(chain, cur)
		for i, n := 0, neighbors(cur, &buf); i < n; i++ {
			nb := buf[i]
			switch stones[nb] {
			case Empty:
				if !libSeen[nb] {
					libSeen[nb] = true
					libs++
				}
			case c:
				if !seen[nb] {
					seen[nb] = true
					stack = append(stack, nb)
				}
			}
		}
	}
	return chain, libs
}

// applyMove plays c at v on the stones array in place, removing any opponent
// chains left without liberties. It reports the number of captured stones,
// the captured vertex when exactly one was taken, and whether the move was
// suicide. On suicide the array is left mid-edit; callers pass a scratch
// copy.
func applyMove(stones *[NumVertices]Color, c Color, v Vertex) (captured int, single Vertex, suicide bool) {
	stones[v] = c
	opp := c.Opponent()
	single = NoVertex
	var buf [4]Vertex
	for i, n := 0, neighbors(v, &buf); i < n; i++ {
		nb := buf[i]
		if stones[nb] != opp {
			continue
		}
		chain, libs := chainInfo(stones, nb)
		if libs > 0 {
			continue
		}
		for _, s := range chain {
			stones[s] = Empty
		}
		captured += len(chain)
		if len(chain) == 1 {
			single = chain[0]
		}
	}
	if captured == 0 {
		if _, libs := chainInfo(stones, v); libs == 0 {
			return 0, NoVertex, true
		}
	}
	if captured != 1 {
		single = NoVertex
	}
	return captured, single, false
}

// IsMoveLegal reports whether color may play at v.
func (b *Board) IsMoveLegal(c Color, v Vertex) bool {
	if v == Pass {
		return true
	}
	if !v.OnBoard() || b.stones[v] != Empty {
		return false
	}
	if v == b.ko && c == b.toMove {
		return false
	}
	scratch := b.stones
	_, _, suicide := applyMove(&scratch, c, v)
	return !suicide
}

// IsEye reports whether v is an eye shape for color: all orthogonal
// neighbors are color, and the diagonals do not let the eye be falsified
// (no opponent diagonal on the edge, at most one elsewhere).
func (b *Board) IsEye(c Color, v Vertex) bool {
	if !v.OnBoard() || b.stones[v] != Empty {
		return false
	}
	var buf [4]Vertex
	n := neighbors(v, &buf)
	for i := 0; i < n; i++ {
		if b.stones[buf[i]] != c {
			return false
		}
	}
	nd := diagonals(v, &buf)
	bad := 0
	for i := 0; i < nd; i++ {
		if b.stones[buf[i]] == c.Opponent() {
			bad++
		}
	}
	if nd < 4 { // edge or corner
		return bad == 0
	}
	return bad <= 1
}

// Play returns the position after the side to move plays v. The move must be
// legal; an illegal move is a caller bug and panics.
func (b *Board) Play(v Vertex) Position {
	nb := &Board{
		stones:  b.stones,
		toMove:  b.toMove.Opponent(),
		ko:      NoVertex,
		komi:    b.komi,
		moveNum: b.moveNum + 1,
		prev:    b,
	}
	if v == Pass {
		nb.passes = b.passes + 1
		nb.hash = b.hash
		return nb
	}
	if !b.IsMoveLegal(b.toMove, v) {
		panic("game: illegal move " + v.String())
	}
	captured, single, _ := applyMove(&nb.stones, b.toMove, v)
	if captured == 1 {
		if chain, libs := chainInfo(&nb.stones, v); len(chain) == 1 && libs == 1 {
			nb.ko = single
		}
	}
	nb.hash = hashStones(&nb.stones)
	return nb
}

// History returns the position ply moves ago, ply 0 being this position.
func (b *Board) History(ply int) Position {
	cur := b
	for ; ply > 0; ply-- {
		if cur.prev == nil {
			return nil
		}
		cur = cur.prev
	}
	return cur
}

// SuperkoOn reports whether playing v would recreate an earlier whole-board
// position.
func (b *Board) SuperkoOn(v Vertex) bool {
	if v == Pass || !b.IsMoveLegal(b.toMove, v) {
		return false
	}
	scratch := b.stones
	applyMove(&scratch, b.toMove, v)
	h := hashStones(&scratch)
	for cur := b; cur != nil; cur = cur.prev {
		if cur.hash == h {
			return true
		}
	}
	return false
}

// FinalScore returns the Tromp-Taylor score minus komi, positive when Black
// is ahead. Empty regions bordering a single color count as its territory.
func (b *Board) FinalScore() float32 {
	var black, white int
	var seen [NumVertices]bool
	var buf [4]Vertex
	for v := Vertex(0); v < NumVertices; v++ {
		switch b.stones[v] {
		case Black:
			black++
			continue
		case White:
			white++
			continue
		}
		if seen[v] {
			continue
		}
		// flood the empty region, noting which colors border it
		region := 0
		var touchBlack, touchWhite bool
		stack := []Vertex{v}
		seen[v] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			region++
			for i, n := 0, neighbors(cur, &buf); i < n; i++ {
				nb := buf[i]
				switch b.stones[nb] {
				case Black:
					touchBlack = true
				case White:
					touchWhite = true
				case Empty:
					if !seen[nb] {
						seen[nb] = true
						stack = append(stack, nb)
					}
				}
			}
		}
		if touchBlack && !touchWhite {
			black += region
		} else if touchWhite && !touchBlack {
			white += region
		}
	}
	return float32(black) - float32(white) - b.komi
}

// String renders the board, upper rows first.
func (b *Board) String() string {
	var sb strings.Builder
	for y := Size - 1; y >= 0; y-- {
		for x := 0; x < Size; x++ {
			switch b.stones[VertexAt(x, y)] {
			case Black:
				sb.WriteString("X ")
			case White:
				sb.WriteString("O ")
			default:
				sb.WriteString(". ")
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
