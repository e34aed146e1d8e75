package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/leftmike/ngc"
)

var (
	output     = flag.String("o", "", "output HTML file; default is standard output")
	configFile = flag.String("config", "", "TOML or YAML configuration file")
	step       = flag.Float64("step", 0.1, "length of the straight segments drawn for arcs")
)

// viewer collects the toolpath in machine coordinates.
type viewer struct {
	ngc.NopMachine

	offset ngc.Position
	curPos ngc.Position
	maxPos ngc.Position
	cmds   []string
}

func (v *viewer) point(pos ngc.Position) string {
	m := ngc.Position{X: pos.X + v.offset.X, Y: pos.Y + v.offset.Y, Z: pos.Z + v.offset.Z}
	v.maxPos.X = math.Max(v.maxPos.X, math.Abs(m.X))
	v.maxPos.Y = math.Max(v.maxPos.Y, math.Abs(m.Y))
	v.maxPos.Z = math.Max(v.maxPos.Z, math.Abs(m.Z))
	return fmt.Sprintf("{x: %f, y: %f, z: %f}", m.X, m.Y, m.Z)
}

func (v *viewer) SetOriginOffsets(offset ngc.Position) error {
	v.curPos = ngc.Position{X: v.curPos.X + v.offset.X - offset.X,
		Y: v.curPos.Y + v.offset.Y - offset.Y, Z: v.curPos.Z + v.offset.Z - offset.Z}
	v.offset = offset
	return nil
}

func (v *viewer) StraightTraverse(pos ngc.Position) error {
	v.cmds = append(v.cmds, fmt.Sprintf("  {rapidTo: %s},", v.point(pos)))
	v.curPos = pos
	return nil
}

func (v *viewer) StraightFeed(pos ngc.Position) error {
	v.cmds = append(v.cmds, fmt.Sprintf("  {linearTo: %s},", v.point(pos)))
	v.curPos = pos
	return nil
}

func (v *viewer) ArcFeed(arc ngc.Arc) error {
	for _, pos := range arc.Segments(v.curPos, *step) {
		v.cmds = append(v.cmds, fmt.Sprintf("  {linearTo: %s},", v.point(pos)))
	}
	v.curPos = arc.End()
	return nil
}

func (v *viewer) writeHTML(w io.Writer, title string) error {
	config := fmt.Sprintf("  homePos: {x: 0, y: 0, z: 0},\n  maxPos: {x: %f, y: %f, z: %f},",
		v.maxPos.X, v.maxPos.Y, v.maxPos.Z)
	_, err := fmt.Fprintf(w, indexHTML, title, config, strings.Join(v.cmds, "\n"))
	return err
}

func view(cfg ngc.Config, name string, w io.Writer) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	var v viewer
	in, err := ngc.NewInterp(ngc.MachineSink(&v), cfg)
	if err != nil {
		return err
	}
	if err := in.Load(f, name); err != nil {
		return err
	}
	if err := in.Run(context.Background()); err != nil {
		return err
	}
	return v.writeHTML(w, filepath.Base(name))
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("gcview: ")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: gcview [-o output.html] [-config file] program.ngc")
		os.Exit(2)
	}

	var cfg ngc.Config
	if *configFile != "" {
		var err error
		cfg, err = ngc.LoadConfig(*configFile)
		if err != nil {
			log.Fatal(err)
		}
	}
	// Viewing never changes the saved parameters.
	cfg.ParameterDB = ""
	if cfg.ParameterFile != "" {
		vals, err := ngc.FileStore{Path: cfg.ParameterFile}.Load()
		if err != nil {
			log.Fatal(err)
		}
		cfg.Store = readOnlyStore(vals)
	}

	w := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		w = f
	}

	if err := view(cfg, flag.Arg(0), w); err != nil {
		log.Fatal(err)
	}
}

type readOnlyStore map[int]float64

func (ros readOnlyStore) Load() (map[int]float64, error) {
	return ros, nil
}

func (ros readOnlyStore) Save(vals map[int]float64) error {
	return nil
}
