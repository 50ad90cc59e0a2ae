// trainctl/blocks.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package trainctl

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/brunoga/deep"
	"github.com/openvobc/vobc/util"
)

// observeTransition compares the wayside transition signal against its
// previously observed level. The very first observation is recorded
// without acting on it; afterwards any change of level marks entry into
// the next block.
func (c *Controller) observeTransition(level bool) {
	if !c.TransitionEdgeSeen {
		c.TransitionEdgeSeen = true
		c.LastTransitionEdge = level
		return
	}
	if level == c.LastTransitionEdge {
		return
	}
	c.LastTransitionEdge = level
	c.advanceBlock()
}

// advanceBlock shifts the head of the lookahead queue into the current
// slot and resets all per-block state. A transition with an empty queue
// latches LookaheadExhausted instead; the vehicle is then outside known
// track and authority stays at zero until a later transition succeeds.
func (c *Controller) advanceBlock() {
	if len(c.Lookahead) == 0 {
		c.LookaheadExhausted = true
		c.lg.Warn("block transition with empty lookahead queue",
			slog.Int("current", c.Current.Number))
		return
	}

	from := c.Current.Number
	c.Current = c.Lookahead[0]
	c.Lookahead = util.DeleteSliceElement(c.Lookahead, 0)
	c.LookaheadExhausted = false

	c.Position.DistanceTraveled = 0
	c.Output.AtBlockEdge = false
	c.Output.StationStopComplete = false

	if c.Station.Phase != NotAtStation {
		c.lg.Debug("station sequence reset by block transition",
			slog.String("phase", c.Station.Phase.String()))
	}
	c.Station.Phase = NotAtStation
	c.Station.DwellRemaining = 0

	c.lg.Info("block transition", slog.Int("from", from),
		slog.Int("to", c.Current.Number), slog.Int("lookahead", len(c.Lookahead)))
}

// AddBlock appends a block to the lookahead queue. The queue preserves
// arrival order, which is track order; the controller has no way to sort
// blocks it has never seen, so the wayside must send them in sequence.
func (c *Controller) AddBlock(req BlockRequest) error {
	if !req.CommandedSpeed.Valid() {
		c.lg.Warn("rejecting block request with invalid speed level", slog.Any("request", req))
		return fmt.Errorf("%w: %d", ErrInvalidSpeedLevel, req.CommandedSpeed)
	}
	if len(c.Lookahead) >= MaxLookahead {
		c.lg.Warn("lookahead queue full, dropping block request", slog.Any("request", req))
		return fmt.Errorf("%w: block %d dropped", ErrQueueFull, req.Number)
	}
	blk, ok := c.lookup.Block(req.Number)
	if !ok {
		c.lg.Error("block request names a block missing from the track layout",
			slog.Any("request", req))
		return fmt.Errorf("%w: %d", ErrBlockNotInLayout, req.Number)
	}

	desc := BlockDescriptor{
		Block:          deep.MustCopy(blk),
		Authorized:     req.Authorized,
		CommandedSpeed: req.CommandedSpeed,
	}
	c.Lookahead = append(c.Lookahead, desc)
	c.lg.Info("block added to lookahead", slog.Any("block", desc),
		slog.Int("lookahead", len(c.Lookahead)))

	// Authorizing the block directly ahead releases a waiting station
	// stop even when it arrives by addition rather than update.
	c.evaluateStationRelease()
	return nil
}

// UpdateBlock revises the movement attributes of the current block or a
// queued one. The static block data is untouched; only authorization and
// commanded speed change.
func (c *Controller) UpdateBlock(req BlockRequest) error {
	if !req.CommandedSpeed.Valid() {
		c.lg.Warn("rejecting block update with invalid speed level", slog.Any("request", req))
		return fmt.Errorf("%w: %d", ErrInvalidSpeedLevel, req.CommandedSpeed)
	}

	var target *BlockDescriptor
	if c.Current.Number == req.Number {
		target = &c.Current
	} else if idx := slices.IndexFunc(c.Lookahead, func(b BlockDescriptor) bool {
		return b.Number == req.Number
	}); idx != -1 {
		target = &c.Lookahead[idx]
	} else {
		c.lg.Warn("block update for a block not held by the controller",
			slog.Any("request", req))
		return fmt.Errorf("%w: %d", ErrUnknownBlock, req.Number)
	}

	c.lg.Info("block attributes updated", slog.Int("block", req.Number),
		slog.Bool("authorized", req.Authorized),
		slog.String("speed_level", req.CommandedSpeed.String()),
		slog.Bool("was_authorized", target.Authorized),
		slog.String("was_speed_level", target.CommandedSpeed.String()))
	target.Authorized = req.Authorized
	target.CommandedSpeed = req.CommandedSpeed

	c.evaluateStationRelease()
	return nil
}

// frontAuthorized reports whether the block directly ahead is known and
// authorized for movement.
func (c *Controller) frontAuthorized() bool {
	return len(c.Lookahead) > 0 && c.Lookahead[0].Authorized
}
