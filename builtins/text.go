package builtins

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/qcvm/vm"
)

// ---------------------------------------------------------------------------
// Text Built-ins
// ---------------------------------------------------------------------------

func (s *Set) registerText() {
	s.vm.RegisterBuiltin(DPrint, func(m *vm.VM) error {
		text, err := s.varString(m.ArgCount())
		if err != nil {
			return err
		}
		if s.cvars.Float("developer") != 0 {
			s.log.Notice(strings.TrimRight(text, "\n"))
		} else {
			s.log.Debug(strings.TrimRight(text, "\n"))
		}
		if s.print != nil {
			s.print(text)
		}
		return nil
	})

	s.vm.RegisterBuiltin(Error, func(m *vm.VM) error {
		text, err := s.varString(m.ArgCount())
		if err != nil {
			return err
		}
		s.log.Errorf("%s\n%s", text, strings.Join(m.Backtrace(), "\n"))
		return fmt.Errorf("%w: %s", ErrProgramError, text)
	})

	s.vm.RegisterBuiltin(FToS, func(*vm.VM) error {
		f, err := s.floatArg(0)
		if err != nil {
			return err
		}
		return s.returnString(FormatFloat(f))
	})

	s.vm.RegisterBuiltin(VToS, func(*vm.VM) error {
		v, err := s.vectorArg(0)
		if err != nil {
			return err
		}
		return s.returnString(FormatVector(v))
	})
}

// varString concatenates the first n string arguments.
func (s *Set) varString(n int) (string, error) {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		part, err := s.stringArg(i)
		if err != nil {
			return "", err
		}
		sb.WriteString(part)
	}
	return sb.String(), nil
}

// FormatFloat renders f as ftos does: whole numbers without a fraction,
// everything else with one decimal in a field of five.
func FormatFloat(f float32) string {
	if g := float64(f); g == math.Trunc(g) && math.Abs(g) < math.MaxInt32 {
		return strconv.Itoa(int(g))
	}
	return fmt.Sprintf("%5.1f", f)
}

// FormatVector renders v as vtos does.
func FormatVector(v vm.Vector) string {
	return fmt.Sprintf("'%5.1f %5.1f %5.1f'", v[0], v[1], v[2])
}
