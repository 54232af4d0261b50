package leelazero

import (
	"io"

	dual "github.com/ywrt/leela-zero/dualnet"
	"github.com/ywrt/leela-zero/game"
	"github.com/ywrt/leela-zero/mcts"
)

// Config for the engine. It holds attributes that impact the MCTS and the
// neural network, plus the self-play knobs.
type Config struct {
	Name     string
	NNConf   dual.Config
	MCTSConf mcts.Config

	// Komi is the compensation White receives.
	Komi float32
	// Playouts per move during self-play.
	Playouts int
	// SampledMoves is how many opening moves of a self-play game are drawn
	// proportionally to visits instead of greedily.
	SampledMoves int
	// NumInferers is the size of the pooled inference machines.
	NumInferers int
}

// DefaultConfig returns a self-play configuration.
func DefaultConfig() Config {
	return Config{
		Name:         "leela-zero",
		NNConf:       dual.DefaultConf(),
		MCTSConf:     mcts.DefaultConfig(),
		Komi:         7.5,
		Playouts:     1600,
		SampledMoves: 30,
		NumInferers:  2,
	}
}

// Dualer is an interface for anything that allows getting out a *Dual.
type Dualer interface {
	Dual() *dual.Dual
}

// Inferer is anything that can infer given input planes.
type Inferer interface {
	Infer(planes []float32) (policy []float32, value float32, err error)
	io.Closer
}

// Example is one self-play training example: the encoded board, the search
// visit distribution over moves, and the game outcome from the perspective
// of the side to move.
type Example struct {
	Board  []float32
	Policy []float32
	Value  float32
}

// policyVector spreads a root visit distribution over the full move space.
func policyVector(dist []mcts.ChildStat) []float32 {
	policy := make([]float32, game.NumMoves)
	for _, st := range dist {
		policy[st.Vertex] = st.Frac
	}
	return policy
}
