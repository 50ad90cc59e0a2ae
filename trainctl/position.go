// trainctl/position.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package trainctl

import (
	"log/slog"

	"github.com/openvobc/vobc/math"
)

// StopSpeedThreshold is the speed in m/s below which the vehicle is
// treated as stopped for station and door logic.
const StopSpeedThreshold = 0.1

// updatePosition integrates the measured speed into the distance
// traveled within the current block and derives the block edge
// indicator. The distance never exceeds the governing length; overshoot
// between the integrator and the physical transition signal is absorbed
// by the clamp.
func (c *Controller) updatePosition(speed, dt float32) {
	if !c.Position.HasMoved && speed != 0 {
		c.Position.HasMoved = true
		c.lg.Info("first movement", slog.Int("block", c.Current.Number))
	}

	length := c.governingLength()
	c.Position.DistanceTraveled = math.Clamp(
		c.Position.DistanceTraveled+math.Abs(speed)*dt, 0, length)

	c.Output.AtBlockEdge = c.Position.HasMoved && length > 0 &&
		c.Position.DistanceTraveled >= length
}

// governingLength is the length the position integrator measures
// against: the full block length normally, half of it once a completed
// dwell has re-based the origin to the platform at the block midpoint.
func (c *Controller) governingLength() float32 {
	if c.Current.Station != nil &&
		(c.Station.Phase == AwaitingAuthorization || c.Station.Phase == Cleared) {
		return c.Current.Length / 2
	}
	return c.Current.Length
}
