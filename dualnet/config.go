package dualnet

import "github.com/ywrt/leela-zero/game"

// Config configures the neural network.
type Config struct {
	K            int `json:"k"`             // number of filters
	SharedLayers int `json:"shared_layers"` // number of shared conv blocks
	FC           int `json:"fc"`            // value head fc layer width
	Features     int `json:"features"`      // input plane count
	Width        int `json:"width"`         // board width
	Height       int `json:"height"`        // board height
	ActionSpace  int `json:"action_space"`  // policy head size
}

// DefaultConf returns a tower sized for the full board.
func DefaultConf() Config {
	return Config{
		K:            64,
		SharedLayers: 6,
		FC:           128,
		Features:     game.InputPlanes,
		Width:        game.Size,
		Height:       game.Size,
		ActionSpace:  game.NumMoves,
	}
}

// IsValid reports whether the configuration describes a buildable graph.
func (conf Config) IsValid() bool {
	return conf.K >= 1 &&
		conf.SharedLayers >= 0 &&
		conf.FC > 1 &&
		conf.Features > 0 &&
		conf.Width > 0 &&
		conf.Height > 0 &&
		conf.ActionSpace >= 3
}
