// Package leelazero is a self-play Go engine: a parallel PUCT search over a
// dual-headed neural network evaluator.
package leelazero

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	dual "github.com/ywrt/leela-zero/dualnet"
	"github.com/ywrt/leela-zero/game"
	"github.com/ywrt/leela-zero/mcts"
	"github.com/ywrt/leela-zero/nn"
)

// constant variables.
const (
	metaFile  = "meta.json"
	modelFile = "checkpoint.model"
)

// MetaData consists of exported params for a saved model.
type MetaData struct {
	NNConf   dual.Config `json:"nn_conf"`
	MCTSConf mcts.Config `json:"mcts_conf"`
}

// Engine is the top level structure: the network, its agent pool, and the
// evaluator façade searches are built on.
type Engine struct {
	Agent *Agent
	Eval  *nn.Evaluator
	conf  Config
}

// New builds an engine with freshly initialized weights.
func New(conf Config) (*Engine, error) {
	if !conf.NNConf.IsValid() {
		return nil, errors.New("leelazero: NNConf is not valid")
	}
	if !conf.MCTSConf.IsValid() {
		return nil, errors.New("leelazero: MCTSConf is not valid")
	}
	d := dual.New(conf.NNConf)
	if err := d.Init(); err != nil {
		return nil, err
	}
	return assemble(conf, d)
}

func assemble(conf Config, d *dual.Dual) (*Engine, error) {
	agent := NewAgent(d, conf.Name)
	if err := agent.SwitchToInference(conf.NumInferers); err != nil {
		return nil, err
	}
	return &Engine{
		Agent: agent,
		Eval:  nn.NewEvaluator(agent, conf.MCTSConf.SoftmaxTemp, conf.MCTSConf.RandomSeed),
		conf:  conf,
	}, nil
}

// NewSearch starts a search over pos with the engine's evaluator.
func (e *Engine) NewSearch(pos game.Position) *mcts.Search {
	return mcts.NewSearch(pos, e.Eval, e.conf.MCTSConf)
}

// Dual returns the underlying network, satisfying Dualer.
func (e *Engine) Dual() *dual.Dual { return e.Agent.NN }

// Close releases the inference pool.
func (e *Engine) Close() error { return e.Agent.Close() }

// Save writes the model weights and configuration into dirName.
func (e *Engine) Save(dirName string) error {
	if err := os.MkdirAll(dirName, 0755); err != nil {
		return errors.WithStack(err)
	}
	meta := &MetaData{NNConf: e.conf.NNConf, MCTSConf: e.conf.MCTSConf}
	jsonStr, err := json.MarshalIndent(meta, "", "	")
	if err != nil {
		return errors.WithStack(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dirName, metaFile), jsonStr, 0644); err != nil {
		return errors.WithStack(err)
	}
	f, err := os.OpenFile(filepath.Join(dirName, modelFile), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	return e.Agent.NN.Save(f)
}

// Load restores an engine from a directory written by Save. The self-play
// and engine knobs of conf (komi, playouts, sampled moves, inferers) apply;
// the network and MCTS configuration come from the saved metadata.
func Load(dirName string, conf Config) (*Engine, error) {
	metaStr, err := ioutil.ReadFile(filepath.Join(dirName, metaFile))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	meta := &MetaData{}
	if err := json.Unmarshal(metaStr, meta); err != nil {
		return nil, errors.WithStack(err)
	}
	conf.NNConf = meta.NNConf
	conf.MCTSConf = meta.MCTSConf

	d := dual.New(conf.NNConf)
	if err := d.Init(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dirName, modelFile))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	if err := d.Load(f); err != nil {
		return nil, err
	}
	return assemble(conf, d)
}
