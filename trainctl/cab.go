// trainctl/cab.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package trainctl

import (
	"log/slog"

	"github.com/openvobc/vobc/math"
	"github.com/openvobc/vobc/track"
)

// Headlights are scheduled on between these hours when a simulated
// clock is supplied.
const (
	headlightsOnHour  = 19
	headlightsOffHour = 7
)

// updateCab derives the door, light, cabin, and passenger display
// outputs. These are intents toward the vehicle; physical interlocks
// live on the vehicle side.
func (c *Controller) updateCab(in Input, driver DriverInput) {
	stopped := math.Abs(in.ActualSpeed) < StopSpeedThreshold
	atPlatform := c.Current.Station != nil &&
		(c.Station.Phase == Dwelling || c.Station.Phase == AwaitingAuthorization)

	// Doors never open while moving. At a platform the doors on the
	// platform side open; manual switches are honored only when stopped.
	switch {
	case !stopped:
		c.Output.LeftDoor, c.Output.RightDoor = false, false
	case driver.AutoMode && atPlatform:
		side := c.Current.Station.Side
		c.Output.LeftDoor = side == track.PlatformLeft || side == track.PlatformBoth
		c.Output.RightDoor = side == track.PlatformRight || side == track.PlatformBoth
	case driver.AutoMode:
		c.Output.LeftDoor, c.Output.RightDoor = false, false
	default:
		c.Output.LeftDoor = driver.LeftDoor
		c.Output.RightDoor = driver.RightDoor
	}

	// Underground blocks force all lights on. The prior state is saved
	// on entry and restored on exit so a tunnel does not permanently
	// flip the headlights.
	if c.Current.Underground {
		if !c.WasUnderground {
			c.SavedHeadlights = c.Output.Headlights
			c.SavedInterior = c.Output.InteriorLights
			c.WasUnderground = true
			c.lg.Debug("entered underground block, lights forced on",
				slog.Int("block", c.Current.Number))
		}
		c.Output.Headlights = true
		c.Output.InteriorLights = true
	} else {
		if c.WasUnderground {
			c.Output.Headlights = c.SavedHeadlights
			c.Output.InteriorLights = c.SavedInterior
			c.WasUnderground = false
			c.lg.Debug("left underground block, lights restored",
				slog.Int("block", c.Current.Number))
		}
		if driver.AutoMode {
			if !in.SimTime.IsZero() {
				hour := in.SimTime.Hour()
				c.Output.Headlights = hour >= headlightsOnHour || hour < headlightsOffHour
			}
			c.Output.InteriorLights = atPlatform
		} else {
			c.Output.Headlights = driver.Headlights
			c.Output.InteriorLights = driver.InteriorLights
		}
	}

	c.Output.CabinSetpoint = driver.CabinSetpoint

	if st, ok := c.lookup.StationByID(in.NextStationID); ok {
		c.Output.NextStationName = st.Name
		c.Output.NextStationSide = st.Side.String()
	} else {
		c.Output.NextStationName = ""
		c.Output.NextStationSide = ""
	}
}
