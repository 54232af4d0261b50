package mcts

import (
	"sync"
	"sync/atomic"
	"time"

	rand "golang.org/x/exp/rand"
	"k8s.io/klog/v2"

	"github.com/ywrt/leela-zero/game"
	"github.com/ywrt/leela-zero/nn"
)

/*
Here lies the search driver, while node.go handles the data structure stuff.

Workers are plain OS threads sharing the tree; a descent blocks only on a
node mutex or inside the evaluator. There is no tree-wide lock.
*/

// Evaluator is essentially the neural network.
type Evaluator interface {
	Evaluate(pos game.Position, ens nn.Ensemble) ([]nn.Prior, float32, error)
}

// Search runs simulations from a fixed root position. Control methods
// (Simulate, RunUntil, ApplyRootNoise, PruneSuperkos, Advance, the move
// getters) belong to the owning thread; Stop may be called from anywhere.
type Search struct {
	conf Config
	eval Evaluator
	ens  nn.Ensemble

	root *Node
	pos  game.Position

	stop     atomic.Bool
	playouts uint32 // atomic: completed descents through the current root

	mu    sync.Mutex
	rng   *rand.Rand
	fatal error
}

// NewSearch builds a search over pos. The position may already be terminal;
// simulations are then a no-op and BestMove returns Pass.
func NewSearch(pos game.Position, eval Evaluator, conf Config) *Search {
	if conf.NumThreads <= 0 {
		conf.NumThreads = DefaultConfig().NumThreads
	}
	if conf.SoftmaxTemp <= 0 {
		conf.SoftmaxTemp = 1
	}
	seed := conf.RandomSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Search{
		conf: conf,
		eval: eval,
		ens:  nn.RandomRotation(),
		root: newNode(game.NoVertex, 0, 0.5),
		pos:  pos,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Root exposes the root node for inspection at quiescence.
func (s *Search) Root() *Node { return s.root }

// Position returns the position the search is rooted at.
func (s *Search) Position() game.Position { return s.pos }

// Playouts returns the number of completed descents.
func (s *Search) Playouts() uint32 { return atomic.LoadUint32(&s.playouts) }

// ensureRoot expands the root with one synchronous descent, so the root
// shaping calls have logical children to work on.
func (s *Search) ensureRoot() {
	if s.root.HasChildren() || s.pos.Passes() >= 2 {
		return
	}
	s.descend()
}

// ApplyRootNoise mixes Dirichlet noise into the root priors. Must precede
// any simulation.
func (s *Search) ApplyRootNoise(epsilon, alpha float32) {
	s.ensureRoot()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root.ApplyNoise(s.rng, epsilon, alpha)
}

// PruneSuperkos removes root children that would repeat a prior board
// position. Must precede any simulation.
func (s *Search) PruneSuperkos(ko game.KoState) {
	s.ensureRoot()
	s.root.KillSuperkos(ko)
}

// Stop cancels the search: descents in flight finish their backpropagation,
// no new descent begins.
func (s *Search) Stop() { s.stop.Store(true) }

// Simulate runs n additional descents and blocks until they complete.
func (s *Search) Simulate(n int) error {
	if n <= 0 || s.pos.Passes() >= 2 {
		return nil
	}
	s.stop.Store(false)
	target := atomic.LoadUint32(&s.playouts) + uint32(n)
	s.run(func() bool { return atomic.LoadUint32(&s.playouts) < target })
	return s.fatalErr()
}

// RunUntil searches until the deadline, or until Stop, in which case
// ErrCancelled is returned.
func (s *Search) RunUntil(deadline time.Time) error {
	if s.pos.Passes() >= 2 {
		return nil
	}
	s.stop.Store(false)
	s.run(func() bool { return time.Now().Before(deadline) })
	if err := s.fatalErr(); err != nil {
		return err
	}
	if s.stop.Load() {
		return ErrCancelled
	}
	return nil
}

func (s *Search) run(more func() bool) {
	start := time.Now()
	before := atomic.LoadUint32(&s.playouts)
	var wg sync.WaitGroup
	for i := 0; i < s.conf.NumThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !s.stop.Load() && more() {
				s.descend()
			}
		}()
	}
	wg.Wait()
	if klog.V(1).Enabled() {
		done := atomic.LoadUint32(&s.playouts) - before
		klog.Infof("search: %d playouts in %v, %d nodes, best %v",
			done, time.Since(start).Round(time.Millisecond),
			s.root.CountNodes(), s.root.BestChild(s.pos.ToMove()))
	}
}

// descend runs one simulation: walk from the root to a leaf under PUCT,
// expand it through the evaluator, and credit the value back up the path.
// Returns false for a dead end (another worker held the leaf's expansion),
// which backpropagates nothing but still clears the virtual loss.
func (s *Search) descend() bool {
	vl := s.conf.VirtualLoss
	stack := make([]*Node, 0, 64)
	pos := s.pos
	node := s.root
	node.EnterNode(0, 0, vl)
	stack = append(stack, node)

	var value float32
	completed := false
	for {
		if !node.HasChildren() {
			if pos.Passes() >= 2 {
				value = terminalValue(pos)
				completed = true
				break
			}
			expander, v, err := node.CreateChildren(pos, s.eval, s.ens)
			if err != nil {
				s.setFatal(err)
				break
			}
			if expander {
				value = v
				completed = true
			}
			// not the expander: an in-flight leaf, dead end
			break
		}
		child := node.UCTSelectChild(pos.ToMove(), s.conf.PUCT)
		if child == nil {
			break
		}
		child.EnterNode(0, 0, vl)
		stack = append(stack, child)
		pos = pos.Play(child.Vertex())
		node = child
		if klog.V(3).Enabled() {
			klog.Infof("descend: depth %d move %v", len(stack)-1, node.Vertex())
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if completed {
			stack[i].LeaveNode(1, value, vl)
		} else {
			stack[i].LeaveNode(0, 0, vl)
		}
	}
	if completed {
		atomic.AddUint32(&s.playouts, 1)
	}
	return completed
}

// terminalValue scores a finished game from Black's perspective.
func terminalValue(pos game.Position) float32 {
	score := pos.FinalScore()
	switch {
	case score > 0:
		return 1
	case score < 0:
		return 0
	}
	return 0.5 // jigo
}

// BestMove returns the most visited root move from color's point of view.
func (s *Search) BestMove(color game.Color) game.Vertex {
	return s.root.BestChild(color)
}

// SampledMove picks a root move with probability proportional to visits.
// Used for the opening moves of self-play games.
func (s *Search) SampledMove() game.Vertex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root.SampleChild(s.rng)
}

// VisitDistribution reports the normalized root visit counts, for
// training-data emission.
func (s *Search) VisitDistribution() []ChildStat {
	return s.root.VisitDistribution()
}

// Advance plays v and reparents the search to the matching child, keeping
// its subtree and statistics. If v was never materialized the old tree is
// discarded.
func (s *Search) Advance(v game.Vertex) {
	s.pos = s.pos.Play(v)
	old := s.root
	if child := old.detachChild(v); child != nil {
		s.root = child
	} else {
		s.root = newNode(game.NoVertex, 0, 0.5)
	}
	old.Invalidate()
	atomic.StoreUint32(&s.playouts, s.root.Visits())
}

func (s *Search) setFatal(err error) {
	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	s.mu.Unlock()
	s.stop.Store(true)
}

func (s *Search) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}
