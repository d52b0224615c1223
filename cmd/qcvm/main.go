// qcvm CLI - loads a progs.dat and runs it against an in-memory world
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/qcvm/config"
	"github.com/chazu/qcvm/replay"
	"github.com/chazu/qcvm/vm"
)

type options struct {
	configPath string
	verbose    bool
	disasm     bool
	ticks      int
	entry      string
	seed       int64
	compare    string
	progsPath  string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Config file (default: search for qcvm.toml upwards)")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose output")
	flag.BoolVar(&opts.disasm, "disasm", false, "Print a disassembly and exit")
	flag.IntVar(&opts.ticks, "ticks", 0, "Number of ticks to run (overrides [run] ticks)")
	flag.StringVar(&opts.entry, "fn", "", "Function called every tick (overrides [run] entry)")
	flag.Int64Var(&opts.seed, "seed", -1, "Random seed (overrides [builtins] random_seed)")
	flag.StringVar(&opts.compare, "compare", "", "Compare two recorded sessions: <uuid>,<uuid>")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: qcvm [options] progs.dat\n\n")
		fmt.Fprintf(os.Stderr, "Runs a compiled QuakeC program for a number of ticks.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  qcvm progs.dat                    # Run main() once\n")
		fmt.Fprintf(os.Stderr, "  qcvm -fn StartFrame -ticks 100 progs.dat\n")
		fmt.Fprintf(os.Stderr, "  qcvm -disasm progs.dat            # Print every function\n")
		fmt.Fprintf(os.Stderr, "  qcvm -compare <a>,<b>             # Find where two recorded runs diverge\n")
	}
	flag.Parse()

	if opts.compare == "" {
		if flag.NArg() != 1 {
			flag.Usage()
			os.Exit(2)
		}
		opts.progsPath = flag.Arg(0)
	}

	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if re, ok := vm.IsRuntimeError(err); ok {
			fmt.Fprintf(os.Stderr, "  in %s at statement %d: %s\n", re.Function, re.PC, re.Statement.Op)
		}
		os.Exit(1)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	if opts.configPath != "" {
		return config.Load(opts.configPath)
	}
	start := "."
	if opts.progsPath != "" {
		start = filepath.Dir(opts.progsPath)
	}
	cfg, err := config.FindAndLoad(start)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func run(opts options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.ticks > 0 {
		cfg.Run.Ticks = opts.ticks
	}
	if opts.entry != "" {
		cfg.Run.Entry = opts.entry
	}
	if opts.seed >= 0 {
		cfg.Builtins.RandomSeed = uint64(opts.seed)
	}
	verbosity := cfg.Log.Verbosity
	if opts.verbose && verbosity < 1 {
		verbosity = 1
	}
	commonlog.Configure(verbosity, cfg.LogPath())

	if opts.compare != "" {
		return compare(cfg, opts.compare, out)
	}

	h, err := newHost(cfg, opts.progsPath)
	if err != nil {
		return err
	}
	defer h.close()

	if opts.disasm {
		_, err := io.WriteString(out, h.vm.Disassemble())
		return err
	}

	if err := h.run(cfg.Run.Ticks); err != nil {
		return err
	}

	if opts.verbose {
		st := h.vm.Stats()
		fmt.Fprintf(out, "%d ticks, %d statements, %d calls, %d built-in calls, %d entities\n",
			cfg.Run.Ticks, st.TotalStatements, st.Calls, st.BuiltinCalls, h.world.Len())
		for _, id := range h.vm.Profile().Top(5) {
			fmt.Fprintf(out, "  %8d  %s\n", h.vm.Profile().Count(id), h.vm.Functions().Name(id))
		}
		if h.session != uuid.Nil {
			fmt.Fprintf(out, "session %s\n", h.session)
		}
	}
	return nil
}

func compare(cfg *config.Config, arg string, out io.Writer) error {
	parts := strings.Split(arg, ",")
	if len(parts) != 2 {
		return fmt.Errorf("-compare wants two session ids separated by a comma")
	}
	var ids [2]uuid.UUID
	for i, p := range parts {
		id, err := uuid.Parse(strings.TrimSpace(p))
		if err != nil {
			return fmt.Errorf("session %q: %w", p, err)
		}
		ids[i] = id
	}
	if cfg.ReplayPath() == "" {
		return fmt.Errorf("no [replay] database configured")
	}

	archive, err := replay.Open(cfg.ReplayPath())
	if err != nil {
		return err
	}
	defer archive.Close()

	d, diverged, err := archive.Compare(ids[0], ids[1])
	if err != nil {
		return err
	}
	switch {
	case !diverged:
		fmt.Fprintln(out, "sessions are identical")
	case d.Missing:
		fmt.Fprintf(out, "sessions diverge at tick %d: recorded in only one session\n", d.Tick)
	default:
		fmt.Fprintf(out, "sessions diverge at tick %d: %016x != %016x\n", d.Tick, d.A, d.B)
	}
	return nil
}
