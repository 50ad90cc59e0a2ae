// trainctl/power.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package trainctl

import (
	"log/slog"

	"github.com/openvobc/vobc/math"
)

// SpeedLevel is the wayside commanded speed: a fraction of the current
// block's posted speed limit.
type SpeedLevel int32

const (
	SpeedLevelStop SpeedLevel = iota
	SpeedLevelLow             // one third of the limit
	SpeedLevelMedium          // two thirds
	SpeedLevelFull
)

func (s SpeedLevel) Valid() bool {
	return s >= SpeedLevelStop && s <= SpeedLevelFull
}

// Fraction returns the fraction of the block speed limit the level
// commands. Invalid levels map to zero.
func (s SpeedLevel) Fraction() float32 {
	switch s {
	case SpeedLevelLow:
		return 1.0 / 3
	case SpeedLevelMedium:
		return 2.0 / 3
	case SpeedLevelFull:
		return 1
	default:
		return 0
	}
}

func (s SpeedLevel) String() string {
	switch s {
	case SpeedLevelStop:
		return "stop"
	case SpeedLevelLow:
		return "low"
	case SpeedLevelMedium:
		return "medium"
	case SpeedLevelFull:
		return "full"
	default:
		return "invalid"
	}
}

const (
	// MaxPowerKW is the traction power ceiling.
	MaxPowerKW = 120

	// DefaultKp and DefaultKi are the PI gains used when the engineer
	// has not supplied any.
	DefaultKp = 12
	DefaultKi = 1.2

	// powerVoteTolerance is the spread in kW within which two redundant
	// power calculations are considered to agree.
	powerVoteTolerance = 1.0
)

// updateControl resolves the speed setpoint, walks the brake interlocks
// in priority order, and computes traction power when none of them
// claims the cycle. Any engaged brake zeroes power and resets the PI
// integral so a long hold cannot wind up into a surge at release.
func (c *Controller) updateControl(in Input, driver DriverInput, dt float32) {
	limit := c.Current.SpeedLimit
	var setpoint float32
	if driver.AutoMode {
		setpoint = c.Current.CommandedSpeed.Fraction() * limit
	} else {
		setpoint = math.Clamp(driver.SetSpeed, 0, limit)
	}
	c.Power.Setpoint = setpoint

	c.logFaultTransitions(in.Faults)

	brake := func(emergency bool) {
		c.Output.Power = 0
		c.Output.EmergencyBrake = emergency
		c.Output.ServiceBrake = !emergency
		c.Power.IntegralError = 0
	}

	switch {
	case in.Faults.Any():
		brake(true)
	case in.PassengerEmergencyBrake:
		brake(true)
	case driver.EmergencyBrake:
		brake(true)
	case c.Station.Phase == Dwelling || c.Station.Phase == AwaitingAuthorization:
		brake(false)
	case c.Authority <= c.AuthorityThreshold:
		brake(false)
	case driver.ServiceBrake:
		brake(false)
	case in.ActualSpeed > setpoint:
		// Overspeed for the commanded level; brake back down rather
		// than coasting.
		brake(false)
	default:
		c.Output.EmergencyBrake = false
		c.Output.ServiceBrake = false
		c.Output.Power = c.computePower(in.ActualSpeed, dt)
	}
}

// computePower advances the PI state once, then derives the power
// command three times over and votes on the result. Disagreement beyond
// the pairwise tolerance commands zero power for the cycle.
func (c *Controller) computePower(actual, dt float32) float32 {
	err := c.Power.Setpoint - actual
	c.Power.IntegralError += err * dt

	var votes [3]float32
	for i := range votes {
		votes[i] = math.Clamp(c.Power.Kp*err+c.Power.Ki*c.Power.IntegralError, 0, MaxPowerKW)
	}

	p, ok := votePower(votes)
	if !ok {
		c.lg.Error("redundant power calculations disagree",
			slog.Any("votes", votes[:]))
		return 0
	}
	return p
}

// votePower reconciles three redundant power values: full agreement
// averages all three, a single agreeing pair averages that pair, and no
// agreement at all reports failure.
func votePower(votes [3]float32) (float32, bool) {
	agree := func(a, b float32) bool {
		return math.Abs(a-b) <= powerVoteTolerance
	}
	switch {
	case agree(votes[0], votes[1]) && agree(votes[1], votes[2]) && agree(votes[0], votes[2]):
		return (votes[0] + votes[1] + votes[2]) / 3, true
	case agree(votes[0], votes[1]):
		return (votes[0] + votes[1]) / 2, true
	case agree(votes[0], votes[2]):
		return (votes[0] + votes[2]) / 2, true
	case agree(votes[1], votes[2]):
		return (votes[1] + votes[2]) / 2, true
	default:
		return 0, false
	}
}

// logFaultTransitions reports fault flag changes. Faults are levels that
// persist until the originating input clears, so only the transitions
// are worth a log line.
func (c *Controller) logFaultTransitions(f FaultSet) {
	if f == c.LastFaults {
		return
	}
	report := func(name string, now, was bool) {
		if now && !was {
			c.lg.Warn(name+" fault raised", slog.Int("block", c.Current.Number))
		} else if !now && was {
			c.lg.Info(name + " fault cleared")
		}
	}
	report("signal", f.Signal, c.LastFaults.Signal)
	report("brake", f.Brake, c.LastFaults.Brake)
	report("engine", f.Engine, c.LastFaults.Engine)
	c.LastFaults = f
}
