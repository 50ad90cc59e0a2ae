// sim/wayside.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"time"

	"github.com/openvobc/vobc/log"
	"github.com/openvobc/vobc/math"
	"github.com/openvobc/vobc/trainctl"
	"github.com/openvobc/vobc/track"
)

// thresholdMarginM pads the braking-distance authority threshold so the
// vehicle holds short of the limit of movement rather than on it.
const thresholdMarginM = 10

// Wayside scripts the track-side signaling: it walks each train along
// the line's track order, toggling the transition signal at block
// boundaries, feeding block requests ahead of the vehicle, and granting
// departure authorization after completed station stops. Blocks entered
// after a station block are initially withheld so every platform gets
// its scripted stop.
type Wayside struct {
	LineName     string
	ReleaseDelay float32 // sim seconds from stop complete to authorization

	Trains map[string]*TrainSignals

	line *track.Line
	lg   *log.Logger
}

// TrainSignals is the wayside's per-train signaling state.
type TrainSignals struct {
	// NextIdx is the track-order index of the next block to feed into
	// the lookahead.
	NextIdx int

	// EdgeLevel is the current level of the transition line; it flips
	// once per boundary.
	EdgeLevel bool

	// Single-shot requests presented to the controller for one cycle.
	PendingAdd    *trainctl.BlockRequest
	PendingUpdate *trainctl.BlockRequest

	// ReleasePending counts down from ReleaseDelay after a station stop
	// completes; negative means no release is scheduled.
	ReleasePending float32
}

func newWayside(line *track.Line, releaseDelay float32, lg *log.Logger) *Wayside {
	return &Wayside{
		LineName:     line.Name,
		ReleaseDelay: releaseDelay,
		Trains:       make(map[string]*TrainSignals),
		line:         line,
		lg:           lg,
	}
}

func (w *Wayside) activate(line *track.Line, lg *log.Logger) {
	w.line = line
	w.lg = lg
}

// addTrain initializes signaling state for a train occupying the block
// at order index startIdx with depth blocks already queued.
func (w *Wayside) addTrain(id string, startIdx, depth int) {
	w.Trains[id] = &TrainSignals{
		NextIdx:        startIdx + 1 + depth,
		ReleasePending: -1,
	}
}

// requestFor builds the block request for the block at order index idx.
// Station blocks are commanded at reduced speed; a block that follows a
// station starts unauthorized to hold the train for its stop.
func (w *Wayside) requestFor(idx int) (trainctl.BlockRequest, bool) {
	blocks := w.line.Blocks
	if idx < 0 || idx >= len(blocks) {
		return trainctl.BlockRequest{}, false
	}
	req := trainctl.BlockRequest{
		Number:         blocks[idx].Number,
		CommandedSpeed: trainctl.SpeedLevelFull,
		Authorized:     true,
	}
	if blocks[idx].Station != nil {
		req.CommandedSpeed = trainctl.SpeedLevelMedium
	}
	if idx > 0 && blocks[idx-1].Station != nil {
		req.Authorized = false
	}
	return req, true
}

// inputFor assembles the controller input for one cycle, consuming any
// pending single-shot requests.
func (w *Wayside) inputFor(t *Train, simTime time.Time) trainctl.Input {
	sig := w.Trains[t.ID]

	in := trainctl.Input{
		ActualSpeed:             t.Speed,
		Faults:                  t.Faults,
		PassengerEmergencyBrake: t.PassengerEBrake,
		CabinTemp:               t.CabinTemp,
		NextStationID:           w.nextStationID(t),
		AuthorityThreshold:      math.StoppingDistance(t.Speed, ServiceBrakeDecel) + thresholdMarginM,
		SimTime:                 simTime,
		NextBlockEntered:        sig.EdgeLevel,
		AddBlock:                sig.PendingAdd,
		UpdateBlock:             sig.PendingUpdate,
	}
	sig.PendingAdd = nil
	sig.PendingUpdate = nil
	return in
}

// observe reacts to one cycle's controller output: boundary toggles,
// lookahead replenishment, and station release scheduling.
func (w *Wayside) observe(t *Train, out trainctl.Output, dt float32) {
	sig := w.Trains[t.ID]

	// Physical boundary: toggle the transition line so the controller
	// advances into the queued block, and feed a replacement at the tail
	// while track remains.
	if out.AtBlockEdge && len(t.Ctl.Lookahead) > 0 {
		sig.EdgeLevel = !sig.EdgeLevel
		if req, ok := w.requestFor(sig.NextIdx); ok {
			sig.PendingAdd = &req
			sig.NextIdx++
		}
		w.lg.Debug("wayside transition toggle", slog.String("train_id", t.ID),
			slog.Int("block", t.Ctl.Current.Number))
	}

	// Station release: start the delay when the stop completes, grant
	// the authorization when it runs out. Once the front of the queue is
	// authorized the stop is released and nothing further is scheduled.
	if out.StationStopComplete && sig.ReleasePending < 0 &&
		len(t.Ctl.Lookahead) > 0 && !t.Ctl.Lookahead[0].Authorized {
		sig.ReleasePending = w.ReleaseDelay
		w.lg.Info("station stop complete, scheduling release",
			slog.String("train_id", t.ID), slog.Int("block", t.Ctl.Current.Number))
	}
	if sig.ReleasePending >= 0 {
		sig.ReleasePending -= dt
		if sig.ReleasePending < 0 && len(t.Ctl.Lookahead) > 0 {
			// Rebuild the request so a station block keeps its reduced
			// speed command, then grant the authorization.
			if idx, ok := w.line.OrderIndex(t.Ctl.Lookahead[0].Number); ok {
				req, _ := w.requestFor(idx)
				req.Authorized = true
				sig.PendingUpdate = &req
				w.lg.Info("departure authorized", slog.String("train_id", t.ID),
					slog.Int("block", req.Number))
			}
		}
	}
}

// journeyComplete reports whether the train has finished its run: all
// track has been fed and consumed and the vehicle is stopped at the end
// of it. A terminal platform counts only once its dwell has completed.
func (w *Wayside) journeyComplete(t *Train, out trainctl.Output) bool {
	sig := w.Trains[t.ID]
	if sig.NextIdx < len(w.line.Blocks) || len(t.Ctl.Lookahead) > 0 {
		return false
	}
	if t.Ctl.Current.Station != nil {
		return out.StationStopComplete
	}
	return t.Ctl.Position.HasMoved && t.Speed < trainctl.StopSpeedThreshold
}

// nextStationID finds the next station at or beyond the train's current
// block in track order, for the passenger display.
func (w *Wayside) nextStationID(t *Train) int {
	idx, ok := w.line.OrderIndex(t.Ctl.Current.Number)
	if !ok {
		return 0
	}
	for _, b := range w.line.Blocks[idx:] {
		if b.Station != nil {
			return b.Station.ID
		}
	}
	return 0
}
