package game

import (
	rand "golang.org/x/exp/rand"
)

// Zobrist keys for stone placement. Hashes cover stones only; the side to
// move is not part of the key, so a whole-board repetition compares equal
// regardless of whose turn it is (positional superko).
var zobrist [3][NumVertices]uint64

func init() {
	rng := rand.New(rand.NewSource(0x1a2b3c4d5e6f7081))
	for v := 0; v < NumVertices; v++ {
		zobrist[Black][v] = rng.Uint64()
		zobrist[White][v] = rng.Uint64()
	}
}

func hashStones(stones *[NumVertices]Color) uint64 {
	var h uint64
	for v := 0; v < NumVertices; v++ {
		if c := stones[v]; c != Empty {
			h ^= zobrist[c][v]
		}
	}
	return h
}
