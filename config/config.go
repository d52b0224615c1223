// Package config handles qcvm.toml (or qcvm.yaml) host configuration.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"go.yaml.in/yaml/v3"

	"github.com/chazu/qcvm/vm"
)

// Names searched by FindAndLoad, in order.
var Names = []string{"qcvm.toml", "qcvm.yaml", "qcvm.yml"}

// Config represents a qcvm host configuration.
type Config struct {
	VM       VM                 `toml:"vm" yaml:"vm" json:"vm"`
	Run      Run                `toml:"run" yaml:"run" json:"run"`
	Log      Log                `toml:"log" yaml:"log" json:"log"`
	Builtins Builtins           `toml:"builtins" yaml:"builtins" json:"builtins"`
	Cvars    map[string]float32 `toml:"cvars" yaml:"cvars" json:"cvars"`
	Replay   Replay             `toml:"replay" yaml:"replay" json:"replay"`

	// Dir is the directory containing the config file (set at load time).
	Dir string `toml:"-" yaml:"-" json:"-"`
}

// VM configures the interpreter.
type VM struct {
	StatementBudget int     `toml:"statement_budget" yaml:"statement_budget" json:"statement_budget"`
	ThinkInterval   float32 `toml:"think_interval" yaml:"think_interval" json:"think_interval"`
	Trace           bool    `toml:"trace" yaml:"trace" json:"trace"`
	MaxEntities     int     `toml:"max_entities" yaml:"max_entities" json:"max_entities"`
}

// Run configures the tick loop of cmd/qcvm.
type Run struct {
	Entry     string  `toml:"entry" yaml:"entry" json:"entry"`
	Ticks     int     `toml:"ticks" yaml:"ticks" json:"ticks"`
	FrameTime float32 `toml:"frametime" yaml:"frametime" json:"frametime"`
	IgnoreCRC bool    `toml:"ignore_crc" yaml:"ignore_crc" json:"ignore_crc"`
}

// Log configures the commonlog backend.
type Log struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity" json:"verbosity"`
	Path      string `toml:"path" yaml:"path" json:"path"`
}

// Builtins configures the standard built-ins.
type Builtins struct {
	RandomSeed uint64 `toml:"random_seed" yaml:"random_seed" json:"random_seed"`
}

// Replay configures the snapshot archive.
type Replay struct {
	Database string `toml:"database" yaml:"database" json:"database"`
	Record   bool   `toml:"record" yaml:"record" json:"record"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.VM.StatementBudget == 0 {
		c.VM.StatementBudget = vm.DefaultStatementBudget
	}
	if c.VM.ThinkInterval == 0 {
		c.VM.ThinkInterval = vm.DefaultThinkInterval
	}
	if c.VM.MaxEntities == 0 {
		c.VM.MaxEntities = 600
	}
	if c.Run.Entry == "" {
		c.Run.Entry = "main"
	}
	if c.Run.Ticks == 0 {
		c.Run.Ticks = 1
	}
	if c.Run.FrameTime == 0 {
		c.Run.FrameTime = 0.1
	}
	if c.Cvars == nil {
		c.Cvars = make(map[string]float32)
	}
}

// Load parses a configuration file, choosing the decoder by extension.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), &c)
		if err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config format %q", path, ext)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a config file, then loads and
// returns it. Returns nil if no config is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range Names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// resolve makes a relative path relative to the config directory.
func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// LogPath returns the log file path for commonlog.Configure, or nil for
// stderr.
func (c *Config) LogPath() *string {
	if c.Log.Path == "" {
		return nil
	}
	p := c.resolve(c.Log.Path)
	return &p
}

// ReplayPath returns the absolute replay database path, or "" if none.
func (c *Config) ReplayPath() string {
	return c.resolve(c.Replay.Database)
}

// VMOptions converts the [vm] section to interpreter options.
func (c *Config) VMOptions() []vm.Option {
	return []vm.Option{
		vm.WithStatementBudget(c.VM.StatementBudget),
		vm.WithThinkInterval(c.VM.ThinkInterval),
		vm.WithTrace(c.VM.Trace),
	}
}

// ---------------------------------------------------------------------------
// Schema validation
// ---------------------------------------------------------------------------

//go:embed schema.cue
var schemaSource string

// Validate checks the configuration against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.Encode(c)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
