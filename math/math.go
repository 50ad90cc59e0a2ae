// math/math.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"

	"golang.org/x/exp/constraints"
)

// Since we mostly use float32, it's handy to be able to call these
// directly rather than with all of the casts that are required when using
// the math package.

func Sqrt(a float32) float32 {
	return float32(gomath.Sqrt(float64(a)))
}

func Mod(a, b float32) float32 {
	return float32(gomath.Mod(float64(a), float64(b)))
}

func Sign(v float32) float32 {
	if v > 0 {
		return 1
	} else if v < 0 {
		return -1
	}
	return 0
}

func Floor(v float32) float32 {
	return float32(gomath.Floor(float64(v)))
}

func Ceil(v float32) float32 {
	return float32(gomath.Ceil(float64(v)))
}

func Abs[V constraints.Integer | constraints.Float](x V) V {
	if x < 0 {
		return -x
	}
	return x
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Sqr[V constraints.Integer | constraints.Float](v V) V { return v * v }

func Clamp[T constraints.Ordered](x T, low T, high T) T {
	if x < low {
		return low
	} else if x > high {
		return high
	}
	return x
}

func Lerp(x, a, b float32) float32 {
	return (1-x)*a + x*b
}

// KmhToMs converts a speed expressed in km/h to m/s; track layout files
// carry speed limits in km/h while all internal accounting is SI.
func KmhToMs(v float32) float32 {
	return v / 3.6
}

// MsToKmh converts a speed expressed in m/s to km/h.
func MsToKmh(v float32) float32 {
	return v * 3.6
}

// StoppingDistance returns the distance covered decelerating from speed v
// to a stop at constant deceleration decel; both arguments must be
// nonnegative.
func StoppingDistance(v, decel float32) float32 {
	if decel <= 0 {
		return float32(gomath.Inf(1))
	}
	return Sqr(v) / (2 * decel)
}
