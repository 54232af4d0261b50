package leelazero

import (
	"sync"

	"github.com/hashicorp/go-multierror"

	dual "github.com/ywrt/leela-zero/dualnet"
)

// An Agent couples a network with a pool of inference machines. Agent
// satisfies nn.Inferencer, so an evaluator façade can sit directly on top
// of it.
type Agent struct {
	NN *dual.Dual
	sync.Mutex
	name     string
	inferer  chan Inferer
	inferers []Inferer
}

// NewAgent wraps nn.
func NewAgent(nn *dual.Dual, name string) *Agent {
	return &Agent{NN: nn, name: name}
}

// SwitchToInference builds n pooled inference machines over the network.
func (a *Agent) SwitchToInference(n int) error {
	a.Lock()
	defer a.Unlock()
	if n < 1 {
		n = 1
	}
	a.inferer = make(chan Inferer, n)
	for i := 0; i < n; i++ {
		inf, err := dual.Infer(a.NN)
		if err != nil {
			return err
		}
		a.inferers = append(a.inferers, inf)
		a.inferer <- inf
	}
	return nil
}

// Infer runs the network on the encoded planes using whichever pooled
// machine is free. This is what the evaluator façade calls from the search
// workers.
func (a *Agent) Infer(planes []float32) (policy []float32, value float32, err error) {
	inf := <-a.inferer
	policy, value, err = inf.Infer(planes)
	a.inferer <- inf
	return policy, value, err
}

// Close releases the pooled machines.
func (a *Agent) Close() error {
	if a.inferer != nil {
		close(a.inferer)
	}
	var errs error
	for _, inferer := range a.inferers {
		if err := inferer.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}
