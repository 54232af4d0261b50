package mcts

import (
	"runtime"

	"github.com/pkg/errors"
)

// ErrCancelled is returned by RunUntil when the search was stopped before
// its deadline.
var ErrCancelled = errors.New("mcts: search cancelled")

// Config is the structure to configure a Search.
type Config struct {
	// NumThreads is the worker pool size. Zero selects one worker per
	// hardware thread.
	NumThreads int `json:"num_threads"`
	// PUCT is the exploration constant of the selection rule.
	PUCT float32 `json:"puct"`
	// SoftmaxTemp is the policy temperature applied by the evaluator.
	SoftmaxTemp float32 `json:"softmax_temp"`
	// VirtualLoss is added to a node for each descent in flight through it.
	VirtualLoss int32 `json:"virtual_loss"`
	// NoiseAlpha and NoiseEpsilon shape the root Dirichlet noise.
	NoiseAlpha   float32 `json:"noise_alpha"`
	NoiseEpsilon float32 `json:"noise_epsilon"`
	// RandomSeed seeds the search RNG. Zero derives a seed from the clock.
	RandomSeed uint64 `json:"random_seed"`
}

// DefaultConfig returns the configuration used for self-play.
func DefaultConfig() Config {
	return Config{
		NumThreads:   runtime.NumCPU(),
		PUCT:         1.0,
		SoftmaxTemp:  1.0,
		VirtualLoss:  3,
		NoiseAlpha:   0.03,
		NoiseEpsilon: 0.25,
	}
}

// IsValid reports whether the configuration can drive a search.
func (c Config) IsValid() bool {
	return c.NumThreads >= 0 && c.PUCT >= 0 && c.SoftmaxTemp > 0 && c.VirtualLoss >= 0
}
