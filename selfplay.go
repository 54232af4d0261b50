package leelazero

import (
	"time"

	rand "golang.org/x/exp/rand"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"

	"github.com/ywrt/leela-zero/game"
	"github.com/ywrt/leela-zero/mcts"
)

// SelfPlay plays one game of the engine against itself and returns the
// recorded training examples. Each move gets a fresh search shaped with
// superko pruning and root Dirichlet noise; the first SampledMoves moves are
// drawn proportionally to visits, the rest greedily.
func (e *Engine) SelfPlay() ([]Example, error) {
	var pos game.Position = game.NewBoard(e.conf.Komi)
	var examples []Example
	maxMoves := 2 * game.NumVertices
	for pos.Passes() < 2 && pos.MoveNumber() < maxMoves {
		search := mcts.NewSearch(pos, e.Eval, e.conf.MCTSConf)
		search.PruneSuperkos(pos)
		search.ApplyRootNoise(e.conf.MCTSConf.NoiseEpsilon, e.conf.MCTSConf.NoiseAlpha)
		if err := search.Simulate(e.conf.Playouts); err != nil {
			return nil, err
		}
		var move game.Vertex
		if pos.MoveNumber() < e.conf.SampledMoves {
			move = search.SampledMove()
		} else {
			move = search.BestMove(pos.ToMove())
		}
		examples = append(examples, Example{
			Board:  game.InputEncoder(pos, 0),
			Policy: policyVector(search.VisitDistribution()),
		})
		klog.V(2).Infof("selfplay: move %d %v plays %v", pos.MoveNumber(), pos.ToMove(), move)
		pos = pos.Play(move)
	}

	// stamp outcomes: Black made the even-numbered moves
	var zBlack float32
	switch score := pos.FinalScore(); {
	case score > 0:
		zBlack = 1
	case score < 0:
		zBlack = 0
	default:
		zBlack = 0.5
	}
	for i := range examples {
		if i%2 == 0 {
			examples[i].Value = zBlack
		} else {
			examples[i].Value = 1 - zBlack
		}
	}
	klog.V(1).Infof("selfplay: %d moves, final score %.1f", len(examples), pos.FinalScore())
	return examples, nil
}

// PrepareExamples shuffles and batches examples into dense tensors for a
// trainer. Examples past the last full batch are dropped.
func PrepareExamples(examples []Example, batchSize int, conf Config, seed uint64) (xs, policies, values *tensor.Dense, batches int) {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	shuffleExamples(examples, rand.New(rand.NewSource(seed)))
	batches = len(examples) / batchSize
	total := batches * batchSize
	if batches == 0 {
		return nil, nil, nil, 0
	}
	var xsBacking, policiesBacking, valuesBacking []float32
	for i, ex := range examples {
		if i >= total {
			break
		}
		xsBacking = append(xsBacking, ex.Board...)
		policiesBacking = append(policiesBacking, ex.Policy...)
		valuesBacking = append(valuesBacking, ex.Value)
	}
	nc := conf.NNConf
	xs = tensor.New(tensor.WithBacking(xsBacking), tensor.WithShape(total, nc.Features, nc.Height, nc.Width))
	policies = tensor.New(tensor.WithBacking(policiesBacking), tensor.WithShape(total, nc.ActionSpace))
	values = tensor.New(tensor.WithBacking(valuesBacking), tensor.WithShape(total))
	return xs, policies, values, batches
}

func shuffleExamples(examples []Example, r *rand.Rand) {
	for i := range examples {
		j := r.Intn(i + 1)
		examples[i], examples[j] = examples[j], examples[i]
	}
}
