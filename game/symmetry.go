package game

// NumSymmetries is the number of square-board symmetries.
const NumSymmetries = 8

// SymmetryVertex maps a board point into the coordinate frame of symmetry
// sym in 0..7. Symmetries 4..7 transpose first, then bit 0 flips the x axis
// and bit 1 flips the y axis. Pass maps to itself.
//
// The same mapping serves both directions: inputs are packed by writing the
// stone at v into plane index SymmetryVertex(v, sym), and the returned
// policy entry for v is read from the same index, so policy indices handed
// to the caller always refer to the unrotated board.
func SymmetryVertex(v Vertex, sym int) Vertex {
	if !v.OnBoard() {
		return v
	}
	x, y := v.X(), v.Y()
	if sym >= 4 {
		x, y = y, x
	}
	if sym&1 != 0 {
		x = Size - 1 - x
	}
	if sym&2 != 0 {
		y = Size - 1 - y
	}
	return VertexAt(x, y)
}
