package mcts

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ywrt/leela-zero/game"
	"github.com/ywrt/leela-zero/nn"
)

// stubPos is a scriptable Position: every vertex is legal, values and
// superko answers come from the test.
type stubPos struct {
	toMove  game.Color
	passes  uint8
	moves   []game.Vertex
	superko map[game.Vertex]bool
}

func newStubPos() *stubPos { return &stubPos{toMove: game.Black} }

func (p *stubPos) ToMove() game.Color { return p.toMove }

func (p *stubPos) Passes() uint8 { return p.passes }

func (p *stubPos) StoneAt(game.Vertex) game.Color { return game.Empty }

func (p *stubPos) IsMoveLegal(game.Color, game.Vertex) bool { return true }

func (p *stubPos) IsEye(game.Color, game.Vertex) bool { return false }

func (p *stubPos) History(int) game.Position { return p }

func (p *stubPos) SuperkoOn(v game.Vertex) bool { return p.superko[v] }

func (p *stubPos) FinalScore() float32 { return 0 }

func (p *stubPos) Hash() uint64 { return 0 }

func (p *stubPos) MoveNumber() int { return len(p.moves) }

func (p *stubPos) Play(v game.Vertex) game.Position {
	np := &stubPos{
		toMove:  p.toMove.Opponent(),
		moves:   append(append([]game.Vertex{}, p.moves...), v),
		superko: p.superko,
	}
	if v == game.Pass {
		np.passes = p.passes + 1
	}
	return np
}

// stubEval returns fixed priors and a scripted per-position value (in the
// side-to-move convention the façade uses).
type stubEval struct {
	mu     sync.Mutex
	calls  int
	priors []nn.Prior
	value  func(pos game.Position) float32
	err    error
}

func (e *stubEval) Evaluate(pos game.Position, _ nn.Ensemble) ([]nn.Prior, float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, 0, e.err
	}
	ps := make([]nn.Prior, len(e.priors))
	copy(ps, e.priors)
	v := float32(0.5)
	if e.value != nil {
		v = e.value(pos)
	}
	return ps, v, nil
}

func (e *stubEval) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func threePriors() []nn.Prior {
	return []nn.Prior{
		{Vertex: game.VertexAt(0, 0), Prob: 0.7},
		{Vertex: game.VertexAt(1, 0), Prob: 0.2},
		{Vertex: game.VertexAt(2, 0), Prob: 0.1},
	}
}

func TestCreateChildrenOnce(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	ev := &stubEval{priors: threePriors()}
	pos := newStubPos()

	var wg sync.WaitGroup
	var mu sync.Mutex
	expanders := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			expander, _, err := n.CreateChildren(pos, ev, nn.RandomRotation())
			assert.NoError(t, err)
			if expander {
				mu.Lock()
				expanders++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, expanders)
	assert.Equal(t, 1, ev.callCount())
	assert.True(t, n.HasChildren())
}

func TestCreateChildrenTerminal(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	ev := &stubEval{priors: threePriors()}
	pos := newStubPos()
	pos.passes = 2
	expander, _, err := n.CreateChildren(pos, ev, nn.RandomRotation())
	require.NoError(t, err)
	assert.False(t, expander)
	assert.Equal(t, 0, ev.callCount(), "terminal positions never hit the evaluator")
	assert.False(t, n.HasChildren())
}

func TestCreateChildrenSortsPriors(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	ev := &stubEval{priors: []nn.Prior{
		{Vertex: game.VertexAt(5, 5), Prob: 0.1},
		{Vertex: game.VertexAt(6, 6), Prob: 0.6},
		{Vertex: game.VertexAt(7, 7), Prob: 0.3},
	}}
	expander, _, err := n.CreateChildren(newStubPos(), ev, nn.RandomRotation())
	require.NoError(t, err)
	require.True(t, expander)
	require.Len(t, n.edges, 3)
	assert.Equal(t, game.VertexAt(6, 6), n.edges[0].vertex)
	assert.Equal(t, game.VertexAt(7, 7), n.edges[1].vertex)
	assert.Equal(t, game.VertexAt(5, 5), n.edges[2].vertex)
}

func TestCreateChildrenWhitePerspective(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	ev := &stubEval{priors: threePriors(), value: func(game.Position) float32 { return 0.3 }}
	pos := newStubPos()
	pos.toMove = game.White
	expander, value, err := n.CreateChildren(pos, ev, nn.RandomRotation())
	require.NoError(t, err)
	require.True(t, expander)
	assert.InDelta(t, 0.7, value, 1e-6, "white values are flipped to Black's perspective")
	assert.InDelta(t, 0.7, n.initEval, 1e-6)
}

func TestGetEvalComplement(t *testing.T) {
	n := newNode(game.VertexAt(0, 0), 0.5, 0.5)
	n.LeaveNode(3, 1.8, 0)
	sum := n.GetEval(game.Black) + n.GetEval(game.White)
	assert.InDelta(t, 1, sum, 1e-6)
}

func TestVirtualLossDiscourages(t *testing.T) {
	n := newNode(game.VertexAt(0, 0), 0.5, 0.5)
	n.LeaveNode(4, 2.0, 0)
	black := n.GetEval(game.Black)
	white := n.GetEval(game.White)

	n.EnterNode(0, 0, 3)
	assert.Less(t, n.GetEval(game.Black), black, "an in-flight node looks worse to Black")
	assert.Less(t, n.GetEval(game.White), white, "and to White")
	n.LeaveNode(1, 0.5, 3)
	assert.InDelta(t, 1, n.GetEval(game.Black)+n.GetEval(game.White), 1e-6)
}

func TestEnterLeaveAccounting(t *testing.T) {
	n := newNode(game.VertexAt(0, 0), 0.5, 0.5)
	n.EnterNode(0, 0, 3)
	n.mu.Lock()
	assert.Equal(t, int32(3), n.virtualLoss)
	n.mu.Unlock()
	n.LeaveNode(1, 0.75, 3)
	n.mu.Lock()
	assert.Equal(t, int32(0), n.virtualLoss)
	assert.Equal(t, uint32(1), n.visits)
	assert.InDelta(t, 0.75, n.blackEvals, 1e-6)
	n.mu.Unlock()

	// restoring a snapshot takes the max, it never shrinks live stats
	n.EnterNode(10, 4.0, 0)
	n.mu.Lock()
	assert.Equal(t, uint32(10), n.visits)
	assert.InDelta(t, 4.0, n.blackEvals, 1e-6)
	n.mu.Unlock()
	n.EnterNode(5, 1.0, 0)
	n.mu.Lock()
	assert.Equal(t, uint32(10), n.visits)
	assert.InDelta(t, 4.0, n.blackEvals, 1e-6)
	n.mu.Unlock()
}

func TestSelectKeepsMaterializedPrefix(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	ev := &stubEval{priors: threePriors()}
	expander, _, err := n.CreateChildren(newStubPos(), ev, nn.RandomRotation())
	require.NoError(t, err)
	require.True(t, expander)

	first := n.UCTSelectChild(game.Black, 1)
	require.NotNil(t, first)
	assert.Equal(t, game.VertexAt(0, 0), first.Vertex(), "highest prior goes first")
	assert.Equal(t, 1, n.materialized)

	// make the first child look bad so the second prior materializes
	first.LeaveNode(10, 0, 0)
	second := n.UCTSelectChild(game.Black, 1)
	require.NotNil(t, second)
	assert.Equal(t, game.VertexAt(1, 0), second.Vertex())
	assert.Equal(t, 2, n.materialized)
	assert.Equal(t, game.VertexAt(0, 0), n.edges[0].vertex)
	assert.Equal(t, game.VertexAt(1, 0), n.edges[1].vertex)

	// invalidated children are skipped
	second.Invalidate()
	first.LeaveNode(0, 9, 0) // winrate back up
	again := n.UCTSelectChild(game.Black, 0)
	require.NotNil(t, again)
	assert.NotEqual(t, game.VertexAt(1, 0), again.Vertex())
}

func TestApplyNoiseMixing(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	priors := []float32{0.4, 0.3, 0.2, 0.1}
	for i, p := range priors {
		n.edges = append(n.edges, edge{vertex: game.Vertex(i), prior: p})
	}

	const epsilon, alpha = 0.25, 0.03
	n.ApplyNoise(rand.New(rand.NewSource(42)), epsilon, alpha)

	// replay the same draws to compute the expected mixture
	gamma := distuv.Gamma{Alpha: alpha, Beta: 1, Src: rand.New(rand.NewSource(42))}
	samples := make([]float64, len(priors))
	var sum float64
	for i := range samples {
		samples[i] = gamma.Rand()
		sum += samples[i]
	}
	var total float32
	for i, e := range n.edges {
		want := (1-float32(epsilon))*priors[i] + float32(epsilon)*float32(samples[i]/sum)
		assert.InDelta(t, want, e.prior, 1e-6)
		total += e.prior
	}
	assert.InDelta(t, 1, total, 1e-5)
}

func TestApplyNoiseAfterMaterializePanics(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	ev := &stubEval{priors: threePriors()}
	_, _, err := n.CreateChildren(newStubPos(), ev, nn.RandomRotation())
	require.NoError(t, err)
	n.UCTSelectChild(game.Black, 1)
	assert.Panics(t, func() {
		n.ApplyNoise(rand.New(rand.NewSource(1)), 0.25, 0.03)
	})
}

func TestKillSuperkos(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	bad := game.VertexAt(4, 4)
	n.edges = []edge{
		{vertex: game.VertexAt(0, 0), prior: 0.5},
		{vertex: bad, prior: 0.3},
		{vertex: game.Pass, prior: 0.2},
	}
	ko := newStubPos()
	ko.superko = map[game.Vertex]bool{bad: true, game.Pass: true}
	n.KillSuperkos(ko)
	require.Len(t, n.edges, 2)
	assert.Equal(t, game.VertexAt(0, 0), n.edges[0].vertex)
	assert.Equal(t, game.Pass, n.edges[1].vertex, "pass survives even a repeating hash")
}

func TestKillSuperkosAfterMaterializePanics(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	ev := &stubEval{priors: threePriors()}
	_, _, err := n.CreateChildren(newStubPos(), ev, nn.RandomRotation())
	require.NoError(t, err)
	n.UCTSelectChild(game.Black, 1)
	assert.Panics(t, func() { n.KillSuperkos(newStubPos()) })
}

func TestSampleChildProportional(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	visits := map[game.Vertex]uint32{
		game.VertexAt(0, 0): 10,
		game.VertexAt(1, 0): 30,
		game.VertexAt(2, 0): 60,
	}
	for v, count := range visits {
		child := newNode(v, 0.3, 0.5)
		child.visits = count
		n.edges = append(n.edges, edge{vertex: v, prior: 0.3, node: child})
	}
	n.materialized = len(n.edges)
	n.hasChildren.Store(true)

	rng := rand.New(rand.NewSource(7))
	counts := make(map[game.Vertex]int)
	const draws = 10000
	for i := 0; i < draws; i++ {
		counts[n.SampleChild(rng)]++
	}
	for v, count := range visits {
		want := float64(count) / 100
		got := float64(counts[v]) / draws
		assert.InDelta(t, want, got, 0.02, "move %v", v)
	}
}

func TestVisitDistribution(t *testing.T) {
	n := newNode(game.NoVertex, 0, 0.5)
	a := newNode(game.VertexAt(0, 0), 0.6, 0.5)
	a.visits = 30
	n.edges = []edge{
		{vertex: game.VertexAt(0, 0), prior: 0.6, node: a},
		{vertex: game.VertexAt(1, 0), prior: 0.4},
	}
	n.materialized = 1
	n.hasChildren.Store(true)

	dist := n.VisitDistribution()
	require.Len(t, dist, 2)
	assert.Equal(t, uint32(30), dist[0].Visits)
	assert.InDelta(t, 1, dist[0].Frac, 1e-6)
	assert.Equal(t, uint32(0), dist[1].Visits, "latent children report zero")
	assert.InDelta(t, 0, dist[1].Frac, 1e-6)
}
