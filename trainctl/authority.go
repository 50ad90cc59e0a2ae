// trainctl/authority.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package trainctl

import (
	"log/slog"

	"github.com/openvobc/vobc/math"
)

// recomputeAuthority derives the movement authority from the queue,
// position, and station state. Runs every cycle after all queue
// mutations so the brake interlock sees the new value without a cycle of
// lag.
func (c *Controller) recomputeAuthority() {
	prev := c.Authority
	c.Authority = c.computeAuthority()
	if c.Authority != prev {
		c.lg.Debug("authority recomputed",
			slog.Float64("authority_m", float64(c.Authority)),
			slog.Float64("previous_m", float64(prev)))
	}
}

func (c *Controller) computeAuthority() float32 {
	// Outside known track, or inside an unauthorized block, nothing is
	// safe.
	if c.LookaheadExhausted || !c.Current.Authorized {
		return 0
	}

	var total float32
	if c.Position.HasMoved {
		length := c.Current.Length
		if c.stationHoldGoverns() {
			length /= 2
		}
		total = math.Max(0, length-c.Position.DistanceTraveled)
	}
	// Before first movement the vehicle sits at the far edge of its
	// block, so the current block contributes nothing.

	// Strict prefix sum over the lookahead: the first unauthorized block
	// ends the walk, and no block beyond it counts regardless of its own
	// flag.
	for _, b := range c.Lookahead {
		if !b.Authorized {
			break
		}
		total += b.Length
	}

	return math.Max(0, total)
}

// stationHoldGoverns reports whether the station stop limits authority
// to the near half of the current block. That is the case throughout the
// stop sequence, and already on approach when the block ahead is not
// authorized, since the vehicle will then be held at the platform.
func (c *Controller) stationHoldGoverns() bool {
	if c.Current.Station == nil {
		return false
	}
	switch c.Station.Phase {
	case Dwelling, AwaitingAuthorization, Cleared:
		return true
	default:
		return !c.frontAuthorized()
	}
}
