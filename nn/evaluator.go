// Package nn wraps a raw policy/value network as the thread-safe evaluator
// the search consumes: it packs the input planes under a board symmetry,
// squashes the raw outputs, drops illegal moves and renormalizes what is
// left.
package nn

import (
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	rand "golang.org/x/exp/rand"

	"github.com/ywrt/leela-zero/game"
)

// ErrWeightsMismatch reports a network whose policy head does not match the
// board: the evaluator must return one entry per vertex plus one for pass.
var ErrWeightsMismatch = errors.New("nn: policy vector length mismatch")

// smallestNormal is the smallest normal float32. Probability masses below it
// are not renormalized; the raw entries are returned instead.
const smallestNormal = float32(1.1754944e-38)

// Prior is a move and the probability the network assigns to it.
type Prior struct {
	Vertex game.Vertex
	Prob   float32
}

// Ensemble selects how the input is rotated before evaluation: a fixed
// symmetry, or one drawn uniformly per call.
type Ensemble struct {
	sym    int
	random bool
}

// Direct evaluates under the fixed symmetry sym in 0..7.
func Direct(sym int) Ensemble { return Ensemble{sym: sym} }

// RandomRotation draws a fresh symmetry on every evaluation.
func RandomRotation() Ensemble { return Ensemble{random: true} }

// Inferencer is the raw network: planes in, policy logits and a raw value
// scalar out.
type Inferencer interface {
	Infer(planes []float32) (policy []float32, value float32, err error)
}

// Evaluator is the façade the search calls. It may be shared across all
// search workers; the underlying Inferencer decides whether calls serialize.
type Evaluator struct {
	inf  Inferencer
	temp float32

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewEvaluator wraps inf with softmax temperature temp. A zero seed derives
// one from the clock.
func NewEvaluator(inf Inferencer, temp float32, seed uint64) *Evaluator {
	if temp <= 0 {
		temp = 1
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Evaluator{
		inf:  inf,
		temp: temp,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (e *Evaluator) symmetry(ens Ensemble) int {
	if !ens.random {
		return ens.sym
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(game.NumSymmetries)
}

// Evaluate runs the network on pos under the ensemble's symmetry and returns
// the priors of the playable moves plus pass, and the win probability of the
// side to move. Priors are renormalized to sum to 1 unless their raw mass is
// subnormal, in which case they are returned as given.
func (e *Evaluator) Evaluate(pos game.Position, ens Ensemble) ([]Prior, float32, error) {
	sym := e.symmetry(ens)
	planes := game.InputEncoder(pos, sym)
	raw, rawValue, err := e.inf.Infer(planes)
	if err != nil {
		return nil, 0, errors.Wrap(err, "nn: inference failed")
	}
	if len(raw) != game.NumMoves {
		return nil, 0, errors.Wrapf(ErrWeightsMismatch, "got %d entries, want %d", len(raw), game.NumMoves)
	}

	probs := softmax(raw, e.temp)
	value := (1 + math32.Tanh(rawValue)) / 2

	us := pos.ToMove()
	priors := make([]Prior, 0, 64)
	var legalSum float32
	for v := game.Vertex(0); v < game.NumVertices; v++ {
		if !pos.IsMoveLegal(us, v) || pos.IsEye(us, v) {
			continue
		}
		p := probs[game.SymmetryVertex(v, sym)]
		priors = append(priors, Prior{Vertex: v, Prob: p})
		legalSum += p
	}
	// pass keeps its slot under every symmetry
	priors = append(priors, Prior{Vertex: game.Pass, Prob: probs[game.NumVertices]})
	legalSum += probs[game.NumVertices]

	if legalSum >= smallestNormal {
		for i := range priors {
			priors[i].Prob /= legalSum
		}
	}
	return priors, value, nil
}

// softmax applies a temperature softmax with the max-logit shift for
// stability.
func softmax(logits []float32, temp float32) []float32 {
	max := math32.Inf(-1)
	for _, l := range logits {
		if l > max {
			max = l
		}
	}
	out := make([]float32, len(logits))
	var sum float32
	for i, l := range logits {
		out[i] = math32.Exp((l - max) / temp)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
