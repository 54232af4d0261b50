package mcts

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"
	rand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ywrt/leela-zero/game"
	"github.com/ywrt/leela-zero/nn"
)

// smallestNormal is the smallest normal float32; masses below it are not
// worth normalizing by.
const smallestNormal = float32(1.1754944e-38)

// edge is one logical child: the move, its prior, and the child node once it
// has been materialized. Materialized edges occupy a prefix of the edge
// vector; selection swaps entries to keep it that way.
type edge struct {
	vertex game.Vertex
	prior  float32
	node   *Node
}

// Node is one tree node. A node owns its children; the driver carries the
// descent path on its own stack, so there are no parent pointers.
//
// hasChildren is the lock-free fast path for descents through an already
// expanded node; everything else is guarded by the node mutex.
type Node struct {
	mu sync.Mutex

	vertex game.Vertex
	prior  float32

	// initEval is the node's own evaluator value once expanded, and before
	// that the value inherited from the parent; it serves as first-play
	// urgency for unvisited children.
	initEval float32

	edges        []edge
	materialized int

	visits      uint32  // backpropagations through this node
	blackEvals  float32 // sum of values, always from Black's perspective
	virtualLoss int32   // in-flight descent bias, reversed on return

	valid       bool
	isExpanding bool
	hasChildren atomic.Bool
}

func newNode(vertex game.Vertex, prior, initEval float32) *Node {
	return &Node{
		vertex:   vertex,
		prior:    prior,
		initEval: initEval,
		valid:    true,
	}
}

// Vertex returns the move played to enter this node.
func (n *Node) Vertex() game.Vertex { return n.vertex }

// HasChildren reports whether the node has been expanded.
func (n *Node) HasChildren() bool { return n.hasChildren.Load() }

// Visits returns the number of backpropagations through this node.
func (n *Node) Visits() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visits
}

// Valid reports whether the node is still selectable.
func (n *Node) Valid() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.valid
}

// Invalidate marks the node dead so no selection returns it.
func (n *Node) Invalidate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.valid = false
}

// GetEval returns the node's winrate from color's point of view. Unvisited
// nodes fall back to the inherited first-play urgency. Virtual loss counts
// as losses for whichever color asks (for White it is added as Black wins),
// which is what spreads concurrent descents across siblings.
func (n *Node) GetEval(color game.Color) float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.evalLocked(color)
}

// evalLocked is GetEval with the mutex already held.
func (n *Node) evalLocked(color game.Color) float32 {
	total := float32(n.visits) + float32(n.virtualLoss)
	if total == 0 {
		if color == game.White {
			return 1 - n.initEval
		}
		return n.initEval
	}
	b := n.blackEvals
	if color == game.White {
		b += float32(n.virtualLoss)
	}
	score := b / total
	if color == game.White {
		score = 1 - score
	}
	return score
}

// CreateChildren expands the node through the evaluator. At most one caller
// becomes the expander; everyone else returns false without touching the
// evaluator. The returned value is the leaf evaluation from Black's
// perspective, valid only for the expander.
func (n *Node) CreateChildren(pos game.Position, eval Evaluator, ens nn.Ensemble) (expander bool, value float32, err error) {
	if n.hasChildren.Load() {
		return false, 0, nil
	}
	n.mu.Lock()
	if n.hasChildren.Load() || pos.Passes() >= 2 || n.isExpanding {
		n.mu.Unlock()
		return false, 0, nil
	}
	n.isExpanding = true
	n.mu.Unlock()

	// the evaluator call happens outside the lock; contenders bail on the
	// isExpanding flag above
	priors, value, err := eval.Evaluate(pos, ens)
	if err != nil {
		n.mu.Lock()
		n.isExpanding = false
		n.mu.Unlock()
		return false, 0, err
	}
	if pos.ToMove() == game.White {
		value = 1 - value
	}
	sort.SliceStable(priors, func(i, j int) bool { return priors[i].Prob > priors[j].Prob })

	n.mu.Lock()
	n.edges = make([]edge, len(priors))
	for i, p := range priors {
		n.edges[i] = edge{vertex: p.Vertex, prior: p.Prob}
	}
	n.initEval = value
	n.hasChildren.Store(true)
	n.mu.Unlock()
	return true, value, nil
}

// UCTSelectChild picks the child maximizing winrate + PUCT exploration from
// color's point of view, materializing it first if needed. Returns nil only
// when every child has been invalidated.
//
// score = Q + c · p · √N / (1 + n)
func (n *Node) UCTSelectChild(color game.Color, cPuct float32) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	// recompute the visit total from the children rather than trusting our
	// own counter, which tolerates reparented subtrees
	var parentVisits uint32
	for i := 0; i < n.materialized; i++ {
		child := n.edges[i].node
		child.mu.Lock()
		if child.valid {
			parentVisits += child.visits
		}
		child.mu.Unlock()
	}
	numerator := math32.Sqrt(float32(parentVisits))

	fpu := n.initEval
	if color == game.White {
		fpu = 1 - fpu
	}

	best := -1
	bestScore := math32.Inf(-1)
	for i := range n.edges {
		var visits uint32
		winrate := fpu
		if i < n.materialized {
			child := n.edges[i].node
			child.mu.Lock()
			if !child.valid {
				child.mu.Unlock()
				continue
			}
			visits = child.visits
			winrate = child.evalLocked(color)
			child.mu.Unlock()
		}
		puct := cPuct * n.edges[i].prior * numerator / (1 + float32(visits))
		if score := winrate + puct; score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	if best >= n.materialized {
		n.edges[best], n.edges[n.materialized] = n.edges[n.materialized], n.edges[best]
		best = n.materialized
		n.edges[best].node = newNode(n.edges[best].vertex, n.edges[best].prior, n.initEval)
		n.materialized++
	}
	return n.edges[best].node
}

// EnterNode adds virtual loss for a descent about to pass through this node.
// The max form of the visit seed restores a snapshot when a reused subtree
// is installed as the new root; ordinary descents pass zeros.
func (n *Node) EnterNode(initVisits uint32, initEvals float32, vl int32) {
	n.mu.Lock()
	if initVisits > n.visits {
		n.visits = initVisits
	}
	if initEvals > n.blackEvals {
		n.blackEvals = initEvals
	}
	n.virtualLoss += vl
	n.mu.Unlock()
}

// LeaveNode credits a finished descent and removes its virtual loss.
func (n *Node) LeaveNode(addVisits uint32, addEvals float32, vl int32) {
	n.mu.Lock()
	n.visits += addVisits
	n.blackEvals += addEvals
	n.virtualLoss -= vl
	n.mu.Unlock()
}

// ApplyNoise mixes a normalized Gamma(alpha, 1) vector into the child
// priors: p ← (1−ε)·p + ε·η. Must run before any child is materialized. A
// subnormal gamma mass leaves the priors untouched.
func (n *Node) ApplyNoise(rng *rand.Rand, epsilon, alpha float32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.materialized != 0 {
		panic("mcts: root noise after children were materialized")
	}
	if len(n.edges) == 0 {
		return
	}
	gamma := distuv.Gamma{Alpha: float64(alpha), Beta: 1, Src: rng}
	samples := make([]float64, len(n.edges))
	var sum float64
	for i := range samples {
		samples[i] = gamma.Rand()
		sum += samples[i]
	}
	if float32(sum) < smallestNormal {
		return
	}
	for i := range n.edges {
		eta := float32(samples[i] / sum)
		n.edges[i].prior = (1-epsilon)*n.edges[i].prior + epsilon*eta
	}
}

// KillSuperkos removes children whose move would repeat an earlier
// whole-board position. Pass is never pruned. Must run before any child is
// materialized so indices and priors stay aligned.
func (n *Node) KillSuperkos(ko game.KoState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.materialized != 0 {
		panic("mcts: superko prune after children were materialized")
	}
	kept := n.edges[:0]
	for _, e := range n.edges {
		if e.vertex != game.Pass && ko.SuperkoOn(e.vertex) {
			continue
		}
		kept = append(kept, e)
	}
	n.edges = kept
}

// BestChild returns the most visited child's move, ties broken by winrate
// then prior. Pass when nothing has been materialized.
func (n *Node) BestChild(color game.Color) game.Vertex {
	n.mu.Lock()
	defer n.mu.Unlock()
	best := game.Pass
	var bestVisits uint32
	var bestEval, bestPrior float32
	found := false
	for i := 0; i < n.materialized; i++ {
		child := n.edges[i].node
		child.mu.Lock()
		if !child.valid {
			child.mu.Unlock()
			continue
		}
		visits := child.visits
		eval := child.evalLocked(color)
		child.mu.Unlock()
		prior := n.edges[i].prior
		better := visits > bestVisits ||
			(visits == bestVisits && eval > bestEval) ||
			(visits == bestVisits && eval == bestEval && prior > bestPrior)
		if !found || better {
			found = true
			best = n.edges[i].vertex
			bestVisits, bestEval, bestPrior = visits, eval, prior
		}
	}
	return best
}

// SampleChild picks a materialized child with probability proportional to
// its visits and swaps it to the front. Used for the early self-play moves.
func (n *Node) SampleChild(rng *rand.Rand) game.Vertex {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.materialized == 0 {
		return game.Pass
	}
	var total uint64
	for i := 0; i < n.materialized; i++ {
		total += uint64(n.edges[i].node.Visits())
	}
	if total == 0 {
		return n.edges[0].vertex
	}
	target := rng.Uint64n(total)
	chosen := n.materialized - 1
	var accum uint64
	for i := 0; i < n.materialized; i++ {
		accum += uint64(n.edges[i].node.Visits())
		if target < accum {
			chosen = i
			break
		}
	}
	if chosen != 0 {
		n.edges[0], n.edges[chosen] = n.edges[chosen], n.edges[0]
	}
	return n.edges[0].vertex
}

// ChildStat is one entry of the root visit distribution.
type ChildStat struct {
	Vertex game.Vertex
	Prior  float32
	Visits uint32
	Frac   float32
}

// VisitDistribution returns per-child visit counts normalized over the
// children. Latent children report zero visits.
func (n *Node) VisitDistribution() []ChildStat {
	n.mu.Lock()
	defer n.mu.Unlock()
	stats := make([]ChildStat, len(n.edges))
	var total uint64
	for i := range n.edges {
		var visits uint32
		if i < n.materialized {
			visits = n.edges[i].node.Visits()
		}
		stats[i] = ChildStat{
			Vertex: n.edges[i].vertex,
			Prior:  n.edges[i].prior,
			Visits: visits,
		}
		total += uint64(visits)
	}
	if total > 0 {
		for i := range stats {
			stats[i].Frac = float32(float64(stats[i].Visits) / float64(total))
		}
	}
	return stats
}

// detachChild removes and returns the materialized child entered by v, or
// nil when v was never materialized.
func (n *Node) detachChild(v game.Vertex) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := 0; i < n.materialized; i++ {
		if n.edges[i].vertex == v {
			child := n.edges[i].node
			n.edges[i].node = nil
			return child
		}
	}
	return nil
}

// CountNodes counts the materialized nodes of the subtree. Only meaningful
// with no descents in flight.
func (n *Node) CountNodes() int {
	n.mu.Lock()
	kids := make([]*Node, 0, n.materialized)
	for i := 0; i < n.materialized; i++ {
		kids = append(kids, n.edges[i].node)
	}
	n.mu.Unlock()
	count := 1
	for _, kid := range kids {
		count += kid.CountNodes()
	}
	return count
}
