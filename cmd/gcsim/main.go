// gcsim drives a minigc VM from command scripts or an interactive prompt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/minigc/history"
	"github.com/chazu/minigc/manifest"
	"github.com/chazu/minigc/vm"
	"github.com/chazu/minigc/vm/image"
)

// options holds the parsed command line.
type options struct {
	configDir   string
	verbosity   int
	capacity    int
	threshold   int
	historyPath string
	loadPath    string
	savePath    string
	initConfig  bool
}

// defineFlags registers gcsim's flags on fs, storing values in o.
func defineFlags(fs *flag.FlagSet, o *options) {
	fs.StringVar(&o.configDir, "config", "", "Directory containing minigc.toml (default: search upward from the working directory)")
	fs.IntVar(&o.verbosity, "v", 0, "Log verbosity (overrides [log] verbosity when non-zero)")
	fs.IntVar(&o.capacity, "capacity", 0, "Operand stack capacity (overrides [vm] stack-capacity)")
	fs.IntVar(&o.threshold, "threshold", -1, "Initial collection threshold (overrides [vm] initial-threshold)")
	fs.StringVar(&o.historyPath, "history", "", "SQLite database recording collection cycles")
	fs.StringVar(&o.loadPath, "load", "", "Start from a saved heap image")
	fs.StringVar(&o.savePath, "save", "", "Write a heap image on exit")
	fs.BoolVar(&o.initConfig, "init", false, "Write a default minigc.toml to the working directory and exit")
}

func main() {
	var opts options
	defineFlags(flag.CommandLine, &opts)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gcsim [options] [scripts...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs stack commands against a mark-and-sweep VM. Without scripts, reads commands interactively.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  gcsim                          # Interactive prompt\n")
		fmt.Fprintf(os.Stderr, "  gcsim -capacity 16 build.gc    # Run a script on a 16-slot stack\n")
		fmt.Fprintf(os.Stderr, "  gcsim -history gc.db -v 2 a.gc # Record cycles, log at debug level\n")
		fmt.Fprintf(os.Stderr, "  gcsim -load heap.image         # Resume from a saved image\n")
		fmt.Fprintf(os.Stderr, "  gcsim -config ./sim a.gc       # Use ./sim/minigc.toml\n")
	}
	flag.Parse()

	if opts.initConfig {
		if err := manifest.Write(".", manifest.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Wrote", manifest.FileName)
		return
	}

	m, err := loadManifest(opts.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level := m.Log.Verbosity
	if opts.verbosity != 0 {
		level = opts.verbosity
	}
	commonlog.Configure(level, m.LogPath())
	log := commonlog.GetLogger("minigc.gcsim")

	cfg := m.VMConfig()
	if opts.capacity > 0 {
		cfg.StackCapacity = opts.capacity
	}
	if opts.threshold >= 0 {
		cfg.InitialThreshold = opts.threshold
	}

	var v *vm.VM
	if opts.loadPath != "" {
		v, err = image.Load(opts.loadPath, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		v = vm.New(cfg)
	}
	log.Infof("vm %s: capacity %d, threshold %d", v.ID(), v.StackCapacity(), v.MaxObjects())

	ctx := context.Background()
	dbPath := m.HistoryPath()
	if opts.historyPath != "" {
		dbPath = opts.historyPath
	}
	var store *history.Store
	if dbPath != "" {
		store, err = history.Open(ctx, dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		store.Attach(ctx, v)
	}

	runner := NewRunner(v, os.Stdout)
	status := 0
	if paths := flag.Args(); len(paths) > 0 {
		for _, path := range paths {
			if err := runFile(runner, path); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				status = 1
				break
			}
		}
	} else {
		runREPL(runner, os.Stdin)
	}

	if opts.savePath != "" {
		if err := image.WriteFile(opts.savePath, v.Snapshot()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			status = 1
		}
	}

	if store != nil {
		if sum, err := store.Summary(ctx, v.ID()); err != nil {
			log.Errorf("%s", err)
		} else {
			log.Infof("recorded %d cycles, %d objects swept, peak live %d",
				sum.Cycles, sum.TotalSwept, sum.MaxSurvivors)
		}
		store.Close()
	}
	os.Exit(status)
}

// loadManifest loads minigc.toml from dir, or searches upward from the
// working directory when dir is empty. Falls back to the defaults.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	return m, nil
}

func runFile(r *Runner, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.Run(path, f)
}
