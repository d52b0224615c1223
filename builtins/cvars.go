package builtins

import (
	"sort"
	"strconv"

	"github.com/chazu/qcvm/vm"
)

// Cvars holds console variables. Values are kept as text and read back as
// floats; text that does not parse reads as 0.
type Cvars struct {
	values map[string]string
}

// NewCvars creates the table from initial float values.
func NewCvars(initial map[string]float32) *Cvars {
	c := &Cvars{values: make(map[string]string, len(initial))}
	for name, v := range initial {
		c.values[name] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return c
}

// Float returns the value of name, or 0 if it is undefined.
func (c *Cvars) Float(name string) float32 {
	f, err := strconv.ParseFloat(c.values[name], 32)
	if err != nil {
		return 0
	}
	return float32(f)
}

// String returns the text of name.
func (c *Cvars) String(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Set changes an existing variable and reports whether it exists.
func (c *Cvars) Set(name, value string) bool {
	if _, ok := c.values[name]; !ok {
		return false
	}
	c.values[name] = value
	return true
}

// Define creates or replaces a variable.
func (c *Cvars) Define(name, value string) {
	c.values[name] = value
}

// Names returns the defined names in order.
func (c *Cvars) Names() []string {
	names := make([]string, 0, len(c.values))
	for n := range c.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Set) registerCvars() {
	s.vm.RegisterBuiltin(Cvar, func(*vm.VM) error {
		name, err := s.stringArg(0)
		if err != nil {
			return err
		}
		return s.returnFloat(s.cvars.Float(name))
	})

	// cvar_set(string name, string value). Unknown names are reported and
	// ignored.
	s.vm.RegisterBuiltin(CvarSet, func(*vm.VM) error {
		name, err := s.stringArg(0)
		if err != nil {
			return err
		}
		value, err := s.stringArg(1)
		if err != nil {
			return err
		}
		if !s.cvars.Set(name, value) {
			s.log.Warningf("cvar_set: variable %q not found", name)
		}
		return nil
	})
}
