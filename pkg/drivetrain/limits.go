package drivetrain

import "math"

// Limits bounds commanded velocities. Transports apply their angular scale
// afterwards and bound the result again with Config.MaxAngular.
type Limits struct {
	MaxLinear  float64 `yaml:"max_linear" json:"max_linear"`   // m/s
	MaxAngular float64 `yaml:"max_angular" json:"max_angular"` // rad/s
}

// DefaultLimits returns ±1.0 m/s and ±1.5 rad/s.
func DefaultLimits() Limits {
	return Limits{MaxLinear: 1.0, MaxAngular: 1.5}
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Clamp restricts linear and angular to the limits and reports whether
// either value changed. Non-finite inputs clamp to 0.
func (l Limits) Clamp(linear, angular float64) (float64, float64, bool) {
	cl := clampFinite(linear, l.MaxLinear)
	ca := clampFinite(angular, l.MaxAngular)
	return cl, ca, cl != linear || ca != angular
}

func clampFinite(v, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v, -math.Abs(limit), math.Abs(limit))
}
