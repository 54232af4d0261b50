// Binary analyze searches a position reached by a sequence of moves and
// prints the visit distribution, optionally dumping the tree as graphviz.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"k8s.io/klog/v2"

	leelazero "github.com/ywrt/leela-zero"
	"github.com/ywrt/leela-zero/game"
)

var (
	modelPath = flag.String("model_path", "", "directory containing a saved model; empty uses random weights")
	moves     = flag.String("moves", "", "comma separated moves from the empty board, e.g. Q16,D4,pass")
	playouts  = flag.Int("playouts", 800, "playouts to run")
	komi      = flag.Float64("komi", 7.5, "komi")
	dotPath   = flag.String("dot", "", "write the search tree as a graphviz file")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	conf := leelazero.DefaultConfig()
	conf.Komi = float32(*komi)

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

	search := engine.NewSearch(game.NewBoard(conf.Komi))
	if *moves != "" {
		for _, s := range strings.Split(*moves, ",") {
			v, err := game.ParseVertex(s)
			if err != nil {
				log.Fatal(err)
			}
			pos := search.Position()
			if !pos.IsMoveLegal(pos.ToMove(), v) {
				log.Fatalf("illegal move %v", v)
			}
			search.Advance(v)
		}
	}

	if err := search.Simulate(*playouts); err != nil {
		log.Fatalf("search failed: %+v", err)
	}

	if b, ok := search.Position().(*game.Board); ok {
		fmt.Println(b)
	}
	for _, st := range search.VisitDistribution() {
		if st.Visits == 0 {
			continue
		}
		fmt.Printf("%-5v visits %6d  frac %.3f  prior %.3f\n", st.Vertex, st.Visits, st.Frac, st.Prior)
	}
	fmt.Printf("best: %v\n", search.BestMove(search.Position().ToMove()))

	if *dotPath != "" {
		f, err := os.Create(*dotPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if err := search.WriteDot(f); err != nil {
			log.Fatal(err)
		}
	}
}
