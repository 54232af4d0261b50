package game

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Board geometry. The engine plays the full 19×19 board; the policy head of
// the network emits one entry per point plus one for pass.
const (
	Size        = 19
	NumVertices = Size * Size
	NumMoves    = NumVertices + 1
)

// Vertex identifies a point on the board in 0..NumVertices-1, row-major from
// the lower left, or one of the distinguished moves below.
type Vertex int32

// Distinguished moves.
const (
	Pass     Vertex = NumVertices
	NoVertex Vertex = -1
)

// VertexAt returns the vertex at column x, row y.
func VertexAt(x, y int) Vertex { return Vertex(y*Size + x) }

// X returns the column of the vertex.
func (v Vertex) X() int { return int(v) % Size }

// Y returns the row of the vertex.
func (v Vertex) Y() int { return int(v) / Size }

// OnBoard reports whether the vertex is a board point (not a pass).
func (v Vertex) OnBoard() bool { return v >= 0 && v < NumVertices }

// columns skips "I", as the usual coordinate convention does.
const columns = "ABCDEFGHJKLMNOPQRST"

// String renders the vertex in board coordinates, e.g. "Q16".
func (v Vertex) String() string {
	if v == Pass {
		return "pass"
	}
	if !v.OnBoard() {
		return "none"
	}
	return string(columns[v.X()]) + strconv.Itoa(v.Y()+1)
}

// ParseVertex parses a board coordinate such as "D4" or "pass".
func ParseVertex(s string) (Vertex, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "PASS" {
		return Pass, nil
	}
	if len(s) < 2 {
		return NoVertex, errors.Errorf("invalid vertex %q", s)
	}
	x := strings.IndexByte(columns, s[0])
	if x < 0 {
		return NoVertex, errors.Errorf("invalid column in %q", s)
	}
	y, err := strconv.Atoi(s[1:])
	if err != nil || y < 1 || y > Size {
		return NoVertex, errors.Errorf("invalid row in %q", s)
	}
	return VertexAt(x, y-1), nil
}
