package dualnet

import (
	"encoding/gob"
	"io"
	"sync"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Inference is a tape machine over a Dual's graph. Each Inference owns its
// machine; calls serialize on the internal mutex, so a single Inference is
// safe to share, and agents pool several to overlap evaluations.
type Inference struct {
	mu sync.Mutex
	d  *Dual
	m  G.VM
}

// Infer returns an inference machine over d, building the graph first if
// needed.
func Infer(d *Dual) (*Inference, error) {
	if d.g == nil {
		if err := d.Init(); err != nil {
			return nil, err
		}
	}
	return &Inference{d: d, m: G.NewTapeMachine(d.g)}, nil
}

// Infer runs the forward pass and returns the raw policy logits and the raw
// value scalar.
func (inf *Inference) Infer(planes []float32) ([]float32, float32, error) {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	d := inf.d
	if len(planes) != d.Features*d.Height*d.Width {
		return nil, 0, errors.Errorf("dualnet: got %d inputs, want %d",
			len(planes), d.Features*d.Height*d.Width)
	}
	backing := make([]float32, len(planes))
	copy(backing, planes)
	t := tensor.New(tensor.WithShape(1, d.Features, d.Height, d.Width), tensor.WithBacking(backing))
	if err := G.Let(d.planes, t); err != nil {
		return nil, 0, errors.Wrap(err, "dualnet: bind input")
	}
	if err := inf.m.RunAll(); err != nil {
		return nil, 0, errors.Wrap(err, "dualnet: forward pass")
	}
	raw := d.policy.Value().Data().([]float32)
	policy := make([]float32, len(raw))
	copy(policy, raw)
	var value float32
	switch v := d.value.Value().Data().(type) {
	case []float32:
		value = v[0]
	case float32:
		value = v
	}
	inf.m.Reset()
	return policy, value, nil
}

// Close releases the machine.
func (inf *Inference) Close() error {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	return inf.m.Close()
}

// Save writes the learnable weights as a gob stream.
func (d *Dual) Save(w io.Writer) error {
	if d.g == nil {
		return errors.New("dualnet: network not initialized")
	}
	snap := make(map[string][]float32, len(d.learnables))
	for _, l := range d.learnables {
		data := l.Value().Data().([]float32)
		cp := make([]float32, len(data))
		copy(cp, data)
		snap[l.Name()] = cp
	}
	return errors.Wrap(gob.NewEncoder(w).Encode(snap), "dualnet: encode weights")
}

// Load restores weights written by Save into an initialized network.
func (d *Dual) Load(r io.Reader) error {
	if d.g == nil {
		if err := d.Init(); err != nil {
			return err
		}
	}
	var snap map[string][]float32
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return errors.Wrap(err, "dualnet: decode weights")
	}
	for _, l := range d.learnables {
		data, ok := snap[l.Name()]
		if !ok {
			return errors.Errorf("dualnet: missing weights for %s", l.Name())
		}
		dst := l.Value().Data().([]float32)
		if len(dst) != len(data) {
			return errors.Errorf("dualnet: %s has %d weights, snapshot has %d",
				l.Name(), len(dst), len(data))
		}
		copy(dst, data)
	}
	return nil
}
