// Binary selfplay plays the engine against itself and writes the recorded
// training examples to a gob file.
package main

import (
	"encoding/gob"
	"flag"
	"log"
	"os"

	"k8s.io/klog/v2"

	leelazero "github.com/ywrt/leela-zero"
)

var (
	modelPath = flag.String("model_path", "", "directory containing a saved model; empty starts from random weights")
	games     = flag.Int("games", 1, "number of self-play games")
	playouts  = flag.Int("playouts", 400, "playouts per move")
	outPath   = flag.String("out", "examples.gob", "file to write the examples to")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	conf := leelazero.DefaultConfig()
	conf.Playouts = *playouts

	var engine *leelazero.Engine
	var err error
	if *modelPath != "" {
		engine, err = leelazero.Load(*modelPath, conf)
	} else {
		engine, err = leelazero.New(conf)
	}
	if err != nil {
		log.Fatalf("error building engine: %+v", err)
	}
	defer engine.Close()

	var examples []leelazero.Example
	for i := 0; i < *games; i++ {
		exs, err := engine.SelfPlay()
		if err != nil {
			log.Fatalf("error in game %d: %+v", i, err)
		}
		examples = append(examples, exs...)
		klog.Infof("game %d: %d examples", i, len(exs))
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(examples); err != nil {
		log.Fatal(err)
	}
}
