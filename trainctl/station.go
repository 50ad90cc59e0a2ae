// trainctl/station.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package trainctl

import (
	"log/slog"

	"github.com/openvobc/vobc/math"
)

// StationPhase enumerates the station stop sequence within a station
// block. The sequence always ends with a block transition, which resets
// the phase to NotAtStation.
type StationPhase int32

const (
	// NotAtStation: no station stop in progress. This is also the phase
	// while approaching the platform of a station block.
	NotAtStation StationPhase = iota

	// Dwelling: stopped at the platform with the dwell timer running.
	Dwelling

	// AwaitingAuthorization: dwell complete, holding for the wayside to
	// authorize the block ahead.
	AwaitingAuthorization

	// Cleared: departure authorized; the hold is lifted until the
	// vehicle leaves the block.
	Cleared
)

func (p StationPhase) String() string {
	switch p {
	case NotAtStation:
		return "not_at_station"
	case Dwelling:
		return "dwelling"
	case AwaitingAuthorization:
		return "awaiting_authorization"
	case Cleared:
		return "cleared"
	default:
		return "invalid"
	}
}

// DwellDuration is the mandatory station dwell in simulated seconds.
const DwellDuration = 60

// updateStationStop advances the station stop sequence. The dwell timer
// runs on simulated time, so it scales with the simulation rate.
func (c *Controller) updateStationStop(speed, dt float32) {
	stopped := math.Abs(speed) < StopSpeedThreshold

	if !stopped {
		// The completion report only holds while the vehicle actually
		// remains at the platform.
		c.Output.StationStopComplete = false
	}

	switch c.Station.Phase {
	case NotAtStation:
		if stopped && c.Position.HasMoved && c.Current.Station != nil && !c.frontAuthorized() {
			c.Station.Phase = Dwelling
			c.Station.DwellRemaining = DwellDuration
			c.lg.Info("station dwell started", slog.Any("station", *c.Current.Station),
				slog.Int("block", c.Current.Number))
		}

	case Dwelling:
		if !stopped {
			// The service brake should make this impossible; if the
			// vehicle moves anyway the dwell is void and restarts from
			// scratch at the next stop.
			c.lg.Warn("movement during station dwell", slog.Int("block", c.Current.Number))
			c.Station.Phase = NotAtStation
			c.Station.DwellRemaining = 0
			break
		}
		c.Station.DwellRemaining -= dt
		if c.Station.DwellRemaining <= 0 {
			c.Station.Phase = AwaitingAuthorization
			c.Station.DwellRemaining = 0
			c.Output.StationStopComplete = true

			// Re-base the position to the platform: only the far half of
			// the block remains ahead of the vehicle.
			c.Position.DistanceTraveled = 0
			c.lg.Info("station dwell complete", slog.Int("block", c.Current.Number))

			// An authorization that arrived mid-dwell releases the stop
			// right away; waiting for the wayside to resend it would
			// strand the vehicle at the platform.
			c.evaluateStationRelease()
		}

	case AwaitingAuthorization:
		if stopped {
			c.Output.StationStopComplete = true
		}

	case Cleared:
		// Departure in progress. The phase holds until the transition
		// out of the block so that stopping short of the boundary does
		// not restart the dwell.
	}
}

// evaluateStationRelease lifts a waiting station hold once the block
// ahead is authorized. Called after every queue mutation.
func (c *Controller) evaluateStationRelease() {
	if c.Station.Phase == AwaitingAuthorization && c.frontAuthorized() {
		c.Station.Phase = Cleared
		c.lg.Info("station stop released", slog.Int("block", c.Current.Number),
			slog.Int("next", c.Lookahead[0].Number))
	}
}
