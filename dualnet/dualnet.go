package dualnet

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Dual is the two-headed network: a shared convolutional tower feeding a
// policy head of raw move logits and a raw scalar value head. The squashing
// of both heads (softmax, tanh) belongs to the evaluator façade, which keeps
// the graph purely linear-algebraic.
type Dual struct {
	Config

	g      *G.ExprGraph
	planes *G.Node
	policy *G.Node
	value  *G.Node

	learnables []*G.Node
}

// New creates an uninitialized network.
func New(conf Config) *Dual { return &Dual{Config: conf} }

// Init builds the forward graph with batch size 1.
func (d *Dual) Init() error {
	if !d.IsValid() {
		return errors.New("dualnet: invalid config")
	}
	g := G.NewGraph()
	d.g = g
	d.learnables = d.learnables[:0]
	d.planes = G.NewTensor(g, tensor.Float32, 4,
		G.WithShape(1, d.Features, d.Height, d.Width), G.WithName("planes"))

	out := d.planes
	in := d.Features
	for i := 0; i < d.SharedLayers; i++ {
		w := G.NewTensor(g, tensor.Float32, 4,
			G.WithShape(d.K, in, 3, 3),
			G.WithName(fmt.Sprintf("shared_w%d", i)),
			G.WithInit(G.GlorotU(1.0)))
		d.learnables = append(d.learnables, w)
		c, err := G.Conv2d(out, w, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1})
		if err != nil {
			return errors.Wrapf(err, "dualnet: shared conv %d", i)
		}
		if out, err = G.Rectify(c); err != nil {
			return errors.Wrapf(err, "dualnet: shared rectify %d", i)
		}
		in = d.K
	}

	boardArea := d.Height * d.Width

	// policy head: 1×1 conv down to two planes, then a linear map to the
	// move logits
	pw := G.NewTensor(g, tensor.Float32, 4,
		G.WithShape(2, in, 1, 1), G.WithName("policy_conv"), G.WithInit(G.GlorotU(1.0)))
	pc, err := G.Conv2d(out, pw, tensor.Shape{1, 1}, []int{0, 0}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return errors.Wrap(err, "dualnet: policy conv")
	}
	pr, err := G.Rectify(pc)
	if err != nil {
		return errors.Wrap(err, "dualnet: policy rectify")
	}
	pf, err := G.Reshape(pr, tensor.Shape{1, 2 * boardArea})
	if err != nil {
		return errors.Wrap(err, "dualnet: policy reshape")
	}
	pfc := G.NewMatrix(g, tensor.Float32,
		G.WithShape(2*boardArea, d.ActionSpace), G.WithName("policy_fc"), G.WithInit(G.GlorotU(1.0)))
	if d.policy, err = G.Mul(pf, pfc); err != nil {
		return errors.Wrap(err, "dualnet: policy fc")
	}

	// value head: 1×1 conv to a single plane, a hidden fc layer, then one
	// raw scalar
	vw := G.NewTensor(g, tensor.Float32, 4,
		G.WithShape(1, in, 1, 1), G.WithName("value_conv"), G.WithInit(G.GlorotU(1.0)))
	vc, err := G.Conv2d(out, vw, tensor.Shape{1, 1}, []int{0, 0}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return errors.Wrap(err, "dualnet: value conv")
	}
	vr, err := G.Rectify(vc)
	if err != nil {
		return errors.Wrap(err, "dualnet: value rectify")
	}
	vf, err := G.Reshape(vr, tensor.Shape{1, boardArea})
	if err != nil {
		return errors.Wrap(err, "dualnet: value reshape")
	}
	vfc1 := G.NewMatrix(g, tensor.Float32,
		G.WithShape(boardArea, d.FC), G.WithName("value_fc1"), G.WithInit(G.GlorotU(1.0)))
	vh, err := G.Mul(vf, vfc1)
	if err != nil {
		return errors.Wrap(err, "dualnet: value fc1")
	}
	if vh, err = G.Rectify(vh); err != nil {
		return errors.Wrap(err, "dualnet: value fc1 rectify")
	}
	vfc2 := G.NewMatrix(g, tensor.Float32,
		G.WithShape(d.FC, 1), G.WithName("value_fc2"), G.WithInit(G.GlorotU(1.0)))
	if d.value, err = G.Mul(vh, vfc2); err != nil {
		return errors.Wrap(err, "dualnet: value fc2")
	}

	d.learnables = append(d.learnables, pw, pfc, vw, vfc1, vfc2)
	return nil
}
