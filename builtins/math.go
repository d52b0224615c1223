package builtins

import (
	"math"

	"github.com/chazu/qcvm/vm"
)

// ---------------------------------------------------------------------------
// Math Built-ins
// ---------------------------------------------------------------------------

func (s *Set) registerMath() {
	s.vm.RegisterBuiltin(Random, func(*vm.VM) error {
		return s.returnFloat(s.rng.Float32())
	})

	s.vm.RegisterBuiltin(MakeVectors, func(m *vm.VM) error {
		angles, err := s.vectorArg(0)
		if err != nil {
			return err
		}
		forward, right, up := AngleVectors(angles)
		g := m.Globals()
		if err := g.PutVector(vm.AddrVForward, forward); err != nil {
			return err
		}
		if err := g.PutVector(vm.AddrVRight, right); err != nil {
			return err
		}
		return g.PutVector(vm.AddrVUp, up)
	})

	s.vm.RegisterBuiltin(Normalize, func(*vm.VM) error {
		v, err := s.vectorArg(0)
		if err != nil {
			return err
		}
		l := length(v)
		if l == 0 {
			return s.returnVector(vm.Vector{})
		}
		return s.returnVector(vm.Vector{v[0] / l, v[1] / l, v[2] / l})
	})

	s.vm.RegisterBuiltin(VLen, func(*vm.VM) error {
		v, err := s.vectorArg(0)
		if err != nil {
			return err
		}
		return s.returnFloat(length(v))
	})

	s.vm.RegisterBuiltin(VecToYaw, func(*vm.VM) error {
		v, err := s.vectorArg(0)
		if err != nil {
			return err
		}
		return s.returnFloat(Yaw(v))
	})

	s.unary(RInt, math.Round)
	s.unary(Floor, math.Floor)
	s.unary(Ceil, math.Ceil)
	s.unary(FAbs, math.Abs)
}

func length(v vm.Vector) float32 {
	x, y, z := float64(v[0]), float64(v[1]), float64(v[2])
	return float32(math.Sqrt(x*x + y*y + z*z))
}

// Yaw returns the heading of v in whole degrees within [0, 360). A vector
// with no horizontal component has yaw 0.
func Yaw(v vm.Vector) float32 {
	if v[0] == 0 && v[1] == 0 {
		return 0
	}
	deg := float32(math.Atan2(float64(v[1]), float64(v[0])) * 180 / math.Pi)
	yaw := math.Trunc(float64(deg))
	if yaw < 0 {
		yaw += 360
	}
	return float32(yaw)
}

// AngleVectors converts pitch/yaw/roll in degrees to the forward, right and
// up unit vectors. Zero angles give forward +x, right -y and up +z.
func AngleVectors(angles vm.Vector) (forward, right, up vm.Vector) {
	sp, cp := math.Sincos(float64(angles[0]) * math.Pi / 180)
	sy, cy := math.Sincos(float64(angles[1]) * math.Pi / 180)
	sr, cr := math.Sincos(float64(angles[2]) * math.Pi / 180)

	forward = vm.Vector{float32(cp * cy), float32(cp * sy), float32(-sp)}
	right = vm.Vector{
		float32(-sr*sp*cy + cr*sy),
		float32(-sr*sp*sy - cr*cy),
		float32(-sr * cp),
	}
	up = vm.Vector{
		float32(cr*sp*cy + sr*sy),
		float32(cr*sp*sy - sr*cy),
		float32(cr * cp),
	}
	return forward, right, up
}
