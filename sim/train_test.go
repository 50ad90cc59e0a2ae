// sim/train_test.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"testing"

	"github.com/openvobc/vobc/math"
	"github.com/openvobc/vobc/trainctl"
)

func near(a, b float32) bool { return math.Abs(a-b) < 1e-3 }

func TestTrainTraction(t *testing.T) {
	// From rest the traction force is pinned at the adhesion cap and
	// there is no drag yet.
	tr := &Train{}
	tr.advance(trainctl.Output{Power: 120}, 1)
	if want := float32(maxTractionForceN) / TrainMassKg; !near(tr.Speed, want) {
		t.Errorf("speed after one second from rest: got %v, expected %v", tr.Speed, want)
	}

	// At speed the force is power limited and drag applies.
	tr = &Train{Speed: 10}
	tr.advance(trainctl.Output{Power: 120}, 1)
	accel := float32(120*1000)/10/TrainMassKg - (0.05 + 1.2*100/TrainMassKg)
	if want := 10 + accel; !near(tr.Speed, want) {
		t.Errorf("speed at 10 m/s under full power: got %v, expected %v", tr.Speed, want)
	}
}

func TestTrainBraking(t *testing.T) {
	tr := &Train{Speed: 10}
	tr.advance(trainctl.Output{ServiceBrake: true}, 1)
	if !near(tr.Speed, 10-ServiceBrakeDecel) {
		t.Errorf("service brake: got %v, expected %v", tr.Speed, 10-ServiceBrakeDecel)
	}

	// Emergency overrides service.
	tr = &Train{Speed: 10}
	tr.advance(trainctl.Output{ServiceBrake: true, EmergencyBrake: true}, 1)
	if !near(tr.Speed, 10-EmergencyDecel) {
		t.Errorf("emergency brake: got %v, expected %v", tr.Speed, 10-EmergencyDecel)
	}

	// Speed never goes negative.
	tr = &Train{Speed: 1}
	tr.advance(trainctl.Output{EmergencyBrake: true}, 1)
	if tr.Speed != 0 {
		t.Errorf("brake through zero: got %v, expected 0", tr.Speed)
	}
}

func TestTrainCoasting(t *testing.T) {
	tr := &Train{Speed: 10}
	tr.advance(trainctl.Output{}, 1)
	if want := 10 - (0.05 + 1.2*100/TrainMassKg); !near(tr.Speed, want) {
		t.Errorf("coasting: got %v, expected %v", tr.Speed, want)
	}

	// A stopped train stays put.
	tr = &Train{}
	tr.advance(trainctl.Output{}, 1)
	if tr.Speed != 0 {
		t.Errorf("stopped train drifted to %v", tr.Speed)
	}
}

func TestTrainHVAC(t *testing.T) {
	tr := &Train{CabinTemp: 16}
	tr.advance(trainctl.Output{CabinSetpoint: 21}, 1)
	if !near(tr.CabinTemp, 16+hvacDegreesPerSec) {
		t.Errorf("one second of heating: got %v, expected %v", tr.CabinTemp,
			16+hvacDegreesPerSec)
	}

	for range 200 {
		tr.advance(trainctl.Output{CabinSetpoint: 21}, 1)
	}
	if !near(tr.CabinTemp, 21) {
		t.Errorf("temperature after 200 s: got %v, expected 21", tr.CabinTemp)
	}

	// Approaching from above cools at the same rate.
	tr = &Train{CabinTemp: 30}
	tr.advance(trainctl.Output{CabinSetpoint: 21}, 1)
	if !near(tr.CabinTemp, 30-hvacDegreesPerSec) {
		t.Errorf("one second of cooling: got %v, expected %v", tr.CabinTemp,
			30-hvacDegreesPerSec)
	}

	// A zero setpoint disables HVAC.
	tr = &Train{CabinTemp: 16}
	tr.advance(trainctl.Output{}, 1)
	if tr.CabinTemp != 16 {
		t.Errorf("HVAC ran with zero setpoint: got %v", tr.CabinTemp)
	}
}
