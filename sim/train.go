// sim/train.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"

	"github.com/openvobc/vobc/math"
	"github.com/openvobc/vobc/trainctl"
)

// Vehicle plant constants. The mass is a light-rail car at typical
// load; the brake rates are the usual service and track brake figures
// for that class of vehicle.
const (
	TrainMassKg        = 40900
	ServiceBrakeDecel  = 1.2  // m/s^2
	EmergencyDecel     = 2.73 // m/s^2
	maxTractionForceN  = 60000
	hvacDegreesPerSec  = 0.05
	defaultCabinTempC  = 16
	defaultCabinSetpt  = 21
)

// Train couples one onboard controller with a simple physics plant: the
// plant turns the controller's power and brake commands back into the
// measured speed the controller sees next cycle.
type Train struct {
	ID  string
	Ctl *trainctl.Controller

	Speed     float32 // m/s
	CabinTemp float32 // deg C

	// Injected conditions, set by Murphy or the console.
	Faults          trainctl.FaultSet
	PassengerEBrake bool

	// Driver is the cab console state fed into every controller cycle.
	Driver trainctl.DriverInput

	LastOutput trainctl.Output
	LastPhase  trainctl.StationPhase
}

// advance integrates the plant one step under the controller's output.
func (t *Train) advance(out trainctl.Output, dt float32) {
	var accel float32
	switch {
	case out.EmergencyBrake:
		accel = -EmergencyDecel
	case out.ServiceBrake:
		accel = -ServiceBrakeDecel
	default:
		if out.Power > 0 {
			// Traction force is power over speed, with a low-speed cap
			// standing in for the motor's adhesion limit.
			v := math.Max(t.Speed, 1)
			force := math.Min(out.Power*1000/v, maxTractionForceN)
			accel = force / TrainMassKg
		}
		accel -= t.dragDecel()
	}

	t.Speed = math.Max(0, t.Speed+accel*dt)

	// Cabin temperature drifts toward the HVAC setpoint.
	if out.CabinSetpoint != 0 {
		rate := math.Min(1, hvacDegreesPerSec*dt/math.Max(1e-3, math.Abs(out.CabinSetpoint-t.CabinTemp)))
		t.CabinTemp = math.Lerp(rate, t.CabinTemp, out.CabinSetpoint)
	}
}

// dragDecel is rolling plus aerodynamic resistance, expressed as a
// deceleration.
func (t *Train) dragDecel() float32 {
	if t.Speed == 0 {
		return 0
	}
	return 0.05 + 1.2*math.Sqr(t.Speed)/TrainMassKg
}

func (t *Train) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", t.ID),
		slog.Float64("speed_ms", float64(t.Speed)),
		slog.Float64("cabin_temp_c", float64(t.CabinTemp)),
		slog.Any("faults", t.Faults),
		slog.Any("controller", t.Ctl))
}
