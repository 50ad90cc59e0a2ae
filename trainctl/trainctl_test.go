// trainctl/trainctl_test.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package trainctl

import (
	"errors"
	"reflect"
	"testing"

	"github.com/openvobc/vobc/track"
)

// testTrack is a minimal TrackData backed by maps.
type testTrack struct {
	blocks   map[int]track.Block
	stations map[int]track.Station
}

func makeTestTrack(blocks ...track.Block) *testTrack {
	tt := &testTrack{blocks: make(map[int]track.Block), stations: make(map[int]track.Station)}
	for _, b := range blocks {
		tt.blocks[b.Number] = b
		if b.Station != nil {
			tt.stations[b.Station.ID] = *b.Station
		}
	}
	return tt
}

func (tt *testTrack) Block(n int) (track.Block, bool) {
	b, ok := tt.blocks[n]
	return b, ok
}

func (tt *testTrack) StationByID(id int) (track.Station, bool) {
	s, ok := tt.stations[id]
	return s, ok
}

// plainTrack returns five plain 100 m blocks numbered 1..5.
func plainTrack() *testTrack {
	var blocks []track.Block
	for n := 1; n <= 5; n++ {
		blocks = append(blocks, track.Block{Number: n, Length: 100, SpeedLimit: 20})
	}
	return makeTestTrack(blocks...)
}

func newTestController(t *testing.T, cfg Config, tt *testTrack) *Controller {
	t.Helper()
	c, err := New(cfg, tt, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func authReq(n int) BlockRequest {
	return BlockRequest{Number: n, CommandedSpeed: SpeedLevelFull, Authorized: true}
}

func unauthReq(n int) BlockRequest {
	return BlockRequest{Number: n, CommandedSpeed: SpeedLevelStop, Authorized: false}
}

func TestNewValidation(t *testing.T) {
	tt := plainTrack()

	for _, tc := range []struct {
		name string
		cfg  Config
		err  error
	}{
		{"unknown start block",
			Config{TrainID: "T1", StartBlock: 99, StartCommandedSpeed: SpeedLevelFull},
			ErrBlockNotInLayout},
		{"invalid start speed level",
			Config{TrainID: "T1", StartBlock: 1, StartCommandedSpeed: 7},
			ErrInvalidSpeedLevel},
		{"negative gains",
			Config{TrainID: "T1", StartBlock: 1, StartCommandedSpeed: SpeedLevelFull, Kp: -1},
			ErrInvalidGains},
		{"too many initial blocks",
			Config{TrainID: "T1", StartBlock: 1, StartCommandedSpeed: SpeedLevelFull,
				Lookahead: []BlockRequest{authReq(2), authReq(3), authReq(4), authReq(5), authReq(5)}},
			ErrTooManyInitialBlocks},
		{"unknown lookahead block",
			Config{TrainID: "T1", StartBlock: 1, StartCommandedSpeed: SpeedLevelFull,
				Lookahead: []BlockRequest{authReq(99)}},
			ErrBlockNotInLayout},
	} {
		if _, err := New(tc.cfg, tt, nil); !errors.Is(err, tc.err) {
			t.Errorf("%s: got error %v, expected %v", tc.name, err, tc.err)
		}
	}

	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{authReq(2), authReq(3)}}, tt)
	if c.Current.Number != 1 || len(c.Lookahead) != 2 {
		t.Errorf("got current %d with %d lookahead blocks, expected 1 with 2",
			c.Current.Number, len(c.Lookahead))
	}
	if c.Power.Kp != DefaultKp || c.Power.Ki != DefaultKi {
		t.Errorf("got gains %v/%v, expected defaults %v/%v", c.Power.Kp, c.Power.Ki,
			float32(DefaultKp), float32(DefaultKi))
	}
}

func TestDescriptorsAreCopies(t *testing.T) {
	st := &track.Station{ID: 1, Name: "Glenbury", Side: track.PlatformLeft}
	tt := makeTestTrack(
		track.Block{Number: 1, Length: 100, SpeedLimit: 20, Station: st},
		track.Block{Number: 2, Length: 100, SpeedLimit: 20})
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull}, tt)

	st.Name = "Renamed"
	if c.Current.Station.Name != "Glenbury" {
		t.Errorf("got station name %q, expected the copied original %q",
			c.Current.Station.Name, "Glenbury")
	}
}

func TestSnapshotRestore(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{authReq(2), unauthReq(3)}}, plainTrack())

	c.Update(Input{ActualSpeed: 10}, DriverInput{AutoMode: true}, 2)
	snap := c.TakeSnapshot()

	// Diverge, then restore.
	c.Update(Input{ActualSpeed: 10, NextBlockEntered: true}, DriverInput{AutoMode: true}, 8)
	if c.Current.Number == snap.Current.Number && c.Authority == snap.Authority {
		t.Fatal("state did not diverge from the snapshot")
	}
	c.RestoreSnapshot(snap)

	if !reflect.DeepEqual(c.TakeSnapshot(), snap) {
		t.Errorf("got post-restore snapshot %+v, expected %+v", c.TakeSnapshot(), snap)
	}
	if c.Current.Number != 1 || c.Position.DistanceTraveled != 20 {
		t.Errorf("got block %d at %v m, expected 1 at 20 m",
			c.Current.Number, c.Position.DistanceTraveled)
	}

	// The snapshot must not share descriptor storage with the live state.
	c.Lookahead[0].Authorized = false
	if !snap.Lookahead[0].Authorized {
		t.Error("mutating the controller changed the snapshot's lookahead")
	}
}

func TestAuthorityLossBrakesSameCycle(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull,
		Lookahead:           []BlockRequest{authReq(2), authReq(3)}}, plainTrack())

	out := c.Update(Input{ActualSpeed: 10, AuthorityThreshold: 50},
		DriverInput{AutoMode: true}, 1)
	if out.ServiceBrake || out.EmergencyBrake {
		t.Fatalf("got brakes %v/%v while fully authorized, expected none",
			out.ServiceBrake, out.EmergencyBrake)
	}

	// Deauthorizing the current block must zero authority and engage the
	// brake in the same cycle's output.
	out = c.Update(Input{ActualSpeed: 10, AuthorityThreshold: 50,
		UpdateBlock: &BlockRequest{Number: 1, CommandedSpeed: SpeedLevelStop}},
		DriverInput{AutoMode: true}, 1)
	if c.Authority != 0 {
		t.Errorf("got authority %v, expected 0", c.Authority)
	}
	if !out.ServiceBrake || out.Power != 0 {
		t.Errorf("got service brake %v power %v, expected brake engaged with zero power",
			out.ServiceBrake, out.Power)
	}
}

func TestDriverView(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T7", Line: "green", StartBlock: 1,
		StartAuthorized: true, StartCommandedSpeed: SpeedLevelMedium,
		Lookahead: []BlockRequest{authReq(2)}}, plainTrack())

	c.Update(Input{ActualSpeed: 5, CabinTemp: 19, AuthorityThreshold: 30},
		DriverInput{AutoMode: true, CabinSetpoint: 21}, 1)

	v := c.DriverView()
	if v.TrainID != "T7" || !v.AutoMode {
		t.Errorf("got train %q auto %v, expected T7 in auto mode", v.TrainID, v.AutoMode)
	}
	if want := SpeedLevelMedium.Fraction() * 20; v.SetpointSpeed != want {
		t.Errorf("got setpoint %v, expected %v", v.SetpointSpeed, want)
	}
	if v.ActualSpeed != 5 || v.CabinTemp != 19 || v.CabinSetpoint != 21 {
		t.Errorf("got speed %v temp %v setpoint %v, expected 5/19/21",
			v.ActualSpeed, v.CabinTemp, v.CabinSetpoint)
	}
	if v.CurrentBlock != 1 || v.SpeedLimit != 20 {
		t.Errorf("got block %d limit %v, expected 1 with limit 20", v.CurrentBlock, v.SpeedLimit)
	}
	if v.AuthorityThreshold != 30 {
		t.Errorf("got threshold %v, expected 30", v.AuthorityThreshold)
	}
}

func TestSetGains(t *testing.T) {
	c := newTestController(t, Config{TrainID: "T1", StartBlock: 1, StartAuthorized: true,
		StartCommandedSpeed: SpeedLevelFull}, plainTrack())

	if err := c.SetGains(20, 2); err != nil {
		t.Fatalf("SetGains: %v", err)
	}
	if c.Power.Kp != 20 || c.Power.Ki != 2 {
		t.Errorf("got gains %v/%v, expected 20/2", c.Power.Kp, c.Power.Ki)
	}
	if err := c.SetGains(-1, 2); !errors.Is(err, ErrInvalidGains) {
		t.Errorf("got error %v, expected %v", err, ErrInvalidGains)
	}
	if c.Power.Kp != 20 {
		t.Errorf("got kp %v after rejected update, expected 20 retained", c.Power.Kp)
	}
}
