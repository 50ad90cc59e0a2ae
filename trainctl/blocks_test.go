// trainctl/blocks_test.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package trainctl

import (
	"errors"
	"reflect"
	"testing"
)

func TestLookaheadCapacity(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{authReq(2), authReq(3), authReq(4), authReq(5)}},
		plainTrack())

	before := c.TakeSnapshot()
	if err := c.AddBlock(authReq(5)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("got error %v, expected %v", err, ErrQueueFull)
	}
	if len(c.Lookahead) != MaxLookahead {
		t.Errorf("got queue length %d, expected %d", len(c.Lookahead), MaxLookahead)
	}
	if !reflect.DeepEqual(c.TakeSnapshot(), before) {
		t.Error("rejected add changed controller state")
	}
}

func TestLookaheadPreservesTrackOrder(t *testing.T) {
	// Track order is arrival order, not numeric order.
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{authReq(4), authReq(2), authReq(5)}}, plainTrack())

	got := []int{c.Lookahead[0].Number, c.Lookahead[1].Number, c.Lookahead[2].Number}
	if want := []int{4, 2, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("got queue order %v, expected %v", got, want)
	}

	// Transitions consume from the front in the same order.
	c.Update(Input{ActualSpeed: 1, NextBlockEntered: false}, DriverInput{}, 1)
	c.Update(Input{ActualSpeed: 1, NextBlockEntered: true}, DriverInput{}, 1)
	if c.Current.Number != 4 {
		t.Errorf("got current block %d after transition, expected 4", c.Current.Number)
	}
	c.Update(Input{ActualSpeed: 1, NextBlockEntered: false}, DriverInput{}, 1)
	if c.Current.Number != 2 {
		t.Errorf("got current block %d after second transition, expected 2", c.Current.Number)
	}
}

func TestAddBlockValidation(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull}, plainTrack())

	if err := c.AddBlock(BlockRequest{Number: 2, CommandedSpeed: 9}); !errors.Is(err, ErrInvalidSpeedLevel) {
		t.Errorf("got error %v, expected %v", err, ErrInvalidSpeedLevel)
	}
	if err := c.AddBlock(authReq(42)); !errors.Is(err, ErrBlockNotInLayout) {
		t.Errorf("got error %v, expected %v", err, ErrBlockNotInLayout)
	}
	if len(c.Lookahead) != 0 {
		t.Errorf("got queue length %d after rejected adds, expected 0", len(c.Lookahead))
	}
}

func TestUpdateBlockUnknown(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{authReq(2)}}, plainTrack())

	before := c.TakeSnapshot()
	if err := c.UpdateBlock(authReq(5)); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("got error %v, expected %v", err, ErrUnknownBlock)
	}
	if !reflect.DeepEqual(c.TakeSnapshot(), before) {
		t.Error("unknown update changed controller state")
	}
}

func TestUpdateBlockInvalidLevelRetainsPrior(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{authReq(2)}}, plainTrack())

	err := c.UpdateBlock(BlockRequest{Number: 2, CommandedSpeed: -1, Authorized: false})
	if !errors.Is(err, ErrInvalidSpeedLevel) {
		t.Fatalf("got error %v, expected %v", err, ErrInvalidSpeedLevel)
	}
	if !c.Lookahead[0].Authorized || c.Lookahead[0].CommandedSpeed != SpeedLevelFull {
		t.Errorf("got %v/%v, expected the prior attributes retained",
			c.Lookahead[0].Authorized, c.Lookahead[0].CommandedSpeed)
	}
}

func TestUpdateBlockIdempotent(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{authReq(2), unauthReq(3)}}, plainTrack())

	req := BlockRequest{Number: 3, CommandedSpeed: SpeedLevelMedium, Authorized: true}
	if err := c.UpdateBlock(req); err != nil {
		t.Fatalf("UpdateBlock: %v", err)
	}
	once := c.TakeSnapshot()
	if err := c.UpdateBlock(req); err != nil {
		t.Fatalf("UpdateBlock: %v", err)
	}
	if !reflect.DeepEqual(c.TakeSnapshot(), once) {
		t.Error("second identical update changed controller state")
	}
}

func TestHeldRequestRegistersOnce(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull}, plainTrack())

	// The same add request held across three cycles appends one block.
	add := authReq(2)
	for i := 0; i < 3; i++ {
		c.Update(Input{AddBlock: &add}, DriverInput{}, 1)
	}
	if len(c.Lookahead) != 1 {
		t.Fatalf("got queue length %d from a held request, expected 1", len(c.Lookahead))
	}

	// A gap re-arms the request.
	c.Update(Input{}, DriverInput{}, 1)
	c.Update(Input{AddBlock: &add}, DriverInput{}, 1)
	if len(c.Lookahead) != 2 {
		t.Errorf("got queue length %d after re-armed request, expected 2", len(c.Lookahead))
	}

	// A different payload registers immediately without a gap.
	add2 := authReq(3)
	c.Update(Input{AddBlock: &add2}, DriverInput{}, 1)
	if len(c.Lookahead) != 3 {
		t.Errorf("got queue length %d after changed request, expected 3", len(c.Lookahead))
	}
}

func TestHeldUpdateRegistersOnce(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{unauthReq(2)}}, plainTrack())

	upd := BlockRequest{Number: 2, CommandedSpeed: SpeedLevelLow, Authorized: true}
	for i := 0; i < 3; i++ {
		c.Update(Input{UpdateBlock: &upd}, DriverInput{}, 1)
	}
	if !c.Lookahead[0].Authorized || c.Lookahead[0].CommandedSpeed != SpeedLevelLow {
		t.Errorf("got %v/%v, expected the held update applied",
			c.Lookahead[0].Authorized, c.Lookahead[0].CommandedSpeed)
	}
}

func TestTransitionRequiresToggle(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{authReq(2), authReq(3)}}, plainTrack())

	// The first observation records the level without acting on it, even
	// when it starts out high.
	c.Update(Input{NextBlockEntered: true}, DriverInput{}, 1)
	if c.Current.Number != 1 {
		t.Fatalf("got current block %d from the initial observation, expected 1", c.Current.Number)
	}

	// A held level does nothing; each toggle is one transition.
	for i := 0; i < 3; i++ {
		c.Update(Input{NextBlockEntered: true}, DriverInput{}, 1)
	}
	if c.Current.Number != 1 {
		t.Errorf("got current block %d from a held level, expected 1", c.Current.Number)
	}

	c.Update(Input{NextBlockEntered: false}, DriverInput{}, 1)
	if c.Current.Number != 2 {
		t.Errorf("got current block %d after toggle, expected 2", c.Current.Number)
	}
	c.Update(Input{NextBlockEntered: true}, DriverInput{}, 1)
	if c.Current.Number != 3 {
		t.Errorf("got current block %d after second toggle, expected 3", c.Current.Number)
	}
}

func TestTransitionResetsPerBlockState(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{authReq(2)}}, plainTrack())

	c.Update(Input{ActualSpeed: 10}, DriverInput{}, 10)
	if c.Position.DistanceTraveled != 100 {
		t.Fatalf("got distance %v, expected 100", c.Position.DistanceTraveled)
	}
	if !c.Output.AtBlockEdge {
		t.Fatal("expected the block edge indicator at the boundary")
	}

	c.Update(Input{ActualSpeed: 10, NextBlockEntered: true}, DriverInput{}, 0.01)
	if c.Current.Number != 2 {
		t.Fatalf("got current block %d, expected 2", c.Current.Number)
	}
	if c.Position.DistanceTraveled > 1 {
		t.Errorf("got distance %v after transition, expected a fresh block", c.Position.DistanceTraveled)
	}
	if c.Output.AtBlockEdge {
		t.Error("expected the block edge indicator to clear on transition")
	}
}
