package mcts

import (
	"fmt"
	"io"

	"github.com/awalterschulze/gographviz"
	"github.com/pkg/errors"

	"github.com/ywrt/leela-zero/game"
)

// WriteDot renders the materialized tree as a graphviz digraph, one node per
// materialized tree node labeled with its move, visits and Black winrate.
// Call it with no descents in flight.
func (s *Search) WriteDot(w io.Writer) error {
	g := gographviz.NewGraph()
	if err := g.SetName("mcts"); err != nil {
		return errors.Wrap(err, "mcts: dot graph")
	}
	if err := g.SetDir(true); err != nil {
		return errors.Wrap(err, "mcts: dot graph")
	}
	id := 0
	if err := addDotNode(g, s.root, "root", &id); err != nil {
		return err
	}
	_, err := io.WriteString(w, g.String())
	return errors.Wrap(err, "mcts: dot write")
}

func addDotNode(g *gographviz.Graph, n *Node, name string, id *int) error {
	label := fmt.Sprintf(`"%v\nprior %.3f\nvisits %d\nblack %.3f"`,
		n.Vertex(), n.prior, n.Visits(), n.GetEval(game.Black))
	if err := g.AddNode("mcts", name, map[string]string{"label": label}); err != nil {
		return errors.Wrap(err, "mcts: dot node")
	}
	n.mu.Lock()
	kids := make([]*Node, 0, n.materialized)
	for i := 0; i < n.materialized; i++ {
		kids = append(kids, n.edges[i].node)
	}
	n.mu.Unlock()
	for _, kid := range kids {
		*id++
		kidName := fmt.Sprintf("n%d", *id)
		if err := addDotNode(g, kid, kidName, id); err != nil {
			return err
		}
		if err := g.AddEdge(name, kidName, true, nil); err != nil {
			return errors.Wrap(err, "mcts: dot edge")
		}
	}
	return nil
}
