package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/qcvm/vm"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "qcvm.toml", `
[vm]
statement_budget = 5000
think_interval = 0.05
trace = true

[run]
entry = "StartFrame"
ticks = 10

[log]
verbosity = 2
path = "logs/qcvm.log"

[builtins]
random_seed = 42

[cvars]
skill = 2
deathmatch = 0

[replay]
database = "replay.db"
record = true
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.VM.StatementBudget != 5000 || c.VM.ThinkInterval != 0.05 || !c.VM.Trace {
		t.Errorf("vm = %+v", c.VM)
	}
	if c.VM.MaxEntities != 600 {
		t.Errorf("max_entities default = %d", c.VM.MaxEntities)
	}
	if c.Run.Entry != "StartFrame" || c.Run.Ticks != 10 || c.Run.FrameTime != 0.1 {
		t.Errorf("run = %+v", c.Run)
	}
	if c.Builtins.RandomSeed != 42 {
		t.Errorf("random_seed = %d", c.Builtins.RandomSeed)
	}
	if c.Cvars["skill"] != 2 || len(c.Cvars) != 2 {
		t.Errorf("cvars = %v", c.Cvars)
	}
	if got, want := c.ReplayPath(), filepath.Join(c.Dir, "replay.db"); got != want {
		t.Errorf("ReplayPath = %q, want %q", got, want)
	}
	if p := c.LogPath(); p == nil || *p != filepath.Join(c.Dir, "logs", "qcvm.log") {
		t.Errorf("LogPath = %v", p)
	}
	if len(c.VMOptions()) != 3 {
		t.Errorf("VMOptions = %d options", len(c.VMOptions()))
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "qcvm.yaml", `
vm:
  statement_budget: 200
run:
  entry: think
cvars:
  gravity: 800
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.VM.StatementBudget != 200 || c.Run.Entry != "think" || c.Cvars["gravity"] != 800 {
		t.Errorf("config = %+v", c)
	}
	if c.VM.ThinkInterval != vm.DefaultThinkInterval {
		t.Errorf("think_interval default = %v", c.VM.ThinkInterval)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(writeFile(t, dir, "qcvm.toml", ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	d := Default()
	if c.VM != d.VM || c.Run != d.Run || c.Replay != d.Replay {
		t.Errorf("empty file = %+v, want %+v", c, d)
	}
	if c.VM.StatementBudget != vm.DefaultStatementBudget || c.Run.Entry != "main" {
		t.Errorf("defaults = %+v", c)
	}
	if c.LogPath() != nil || c.ReplayPath() != "" {
		t.Error("empty paths should stay empty")
	}
	if err := d.Validate(); err != nil {
		t.Errorf("defaults fail validation: %v", err)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name, file, content, want string
	}{
		{"unknown toml key", "qcvm.toml", "[vm]\nbudget = 5\n", "unknown key"},
		{"unknown yaml key", "qcvm.yaml", "vm:\n  budget: 5\n", "parse error"},
		{"bad toml", "qcvm.toml", "[vm\n", "parse error"},
		{"negative budget", "qcvm.toml", "[vm]\nstatement_budget = -1\n", "invalid config"},
		{"verbosity too high", "qcvm.toml", "[log]\nverbosity = 9\n", "invalid config"},
		{"record without database", "qcvm.toml", "[replay]\nrecord = true\n", "invalid config"},
		{"unsupported format", "qcvm.json", "{}", "unsupported"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tc.file, tc.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want it to mention %q", err, tc.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "qcvm.yml", "run:\n  ticks: 3\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil || c.Run.Ticks != 3 {
		t.Fatalf("config = %+v", c)
	}
	abs, _ := filepath.Abs(root)
	if c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	// t.TempDir lives under the system temp directory, which is not
	// expected to hold a qcvm config anywhere above it.
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c != nil {
		t.Errorf("found unexpected config in %s", c.Dir)
	}
}
