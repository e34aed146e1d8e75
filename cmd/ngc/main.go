package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/leftmike/ngc"
	"github.com/leftmike/ngc/paramdb"
)

var (
	configFile  = flag.String("config", "", "TOML or YAML configuration file")
	units       = flag.String("units", "", "startup units: mm or inch")
	paramFile   = flag.String("params", "", "parameter file")
	paramDB     = flag.String("db", "", "parameter database; overrides -params")
	blockDelete = flag.Bool("block-delete", false, "skip lines starting with /")
	skipErrors  = flag.Bool("skip", false, "log and skip blocks with errors")
	verbose     = flag.Bool("v", false, "log parameter loading and saving")
)

func printCalls(w io.Writer) ngc.Sink {
	return ngc.SinkFunc(func(c ngc.Call) error {
		_, err := fmt.Fprintln(w, c)
		return err
	})
}

func loadConfig() (ngc.Config, io.Closer) {
	var cfg ngc.Config
	if *configFile != "" {
		var err error
		cfg, err = ngc.LoadConfig(*configFile)
		if err != nil {
			log.Fatal(err)
		}
	}
	if *units != "" {
		cfg.Units = *units
	}
	if *paramFile != "" {
		cfg.ParameterFile = *paramFile
	}
	if *paramDB != "" {
		cfg.ParameterDB = *paramDB
	}
	if *blockDelete {
		cfg.BlockDelete = true
	}
	if *skipErrors {
		cfg.OnError = ngc.OnErrorSkip
	}
	if *verbose {
		cfg.Logger = log.Default()
	}

	if cfg.ParameterDB == "" {
		return cfg, nil
	}
	db, err := paramdb.Open(cfg.ParameterDB)
	if err != nil {
		log.Fatal(err)
	}
	cfg.Store = db
	return cfg, db
}

func runFile(ctx context.Context, cfg ngc.Config, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	return runProgram(ctx, cfg, f, name)
}

func runProgram(ctx context.Context, cfg ngc.Config, r io.Reader, name string) error {
	in, err := ngc.NewInterp(printCalls(os.Stdout), cfg)
	if err != nil {
		return err
	}
	if err := in.Load(r, name); err != nil {
		return err
	}
	return in.Run(ctx)
}

func mdi(cfg ngc.Config) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "mdi> ")

	in, err := ngc.NewInterp(printCalls(t), cfg)
	if err != nil {
		return err
	}
	for {
		line, err := t.ReadLine()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := in.Execute(line); err != nil {
			fmt.Fprintln(t, err)
		}
	}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("ngc: ")
	flag.Parse()

	cfg, closer := loadConfig()
	if closer != nil {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var failed bool
	if flag.NArg() == 0 {
		var err error
		if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			err = mdi(cfg)
		} else {
			err = runProgram(ctx, cfg, os.Stdin, "stdin")
		}
		if err != nil {
			log.Print(err)
			failed = true
		}
	} else {
		for _, name := range flag.Args() {
			if err := runFile(ctx, cfg, name); err != nil {
				log.Print(err)
				failed = true
			}
		}
	}

	if failed {
		if closer != nil {
			closer.Close()
		}
		os.Exit(1)
	}
}
