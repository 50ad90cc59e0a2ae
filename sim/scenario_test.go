// sim/scenario_test.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openvobc/vobc/sim"
	"github.com/openvobc/vobc/track"
	"github.com/openvobc/vobc/util"
)

func TestScenarioValidate(t *testing.T) {
	layout, err := track.DefaultLayout()
	if err != nil {
		t.Fatalf("DefaultLayout: %v", err)
	}

	for _, c := range []struct {
		name    string
		mutate  func(*sim.Scenario)
		wantErr bool
	}{
		{name: "default is valid", mutate: func(sc *sim.Scenario) {}},
		{
			name:    "unknown line",
			mutate:  func(sc *sim.Scenario) { sc.Line = "mauve" },
			wantErr: true,
		},
		{
			name:    "malformed start time",
			mutate:  func(sc *sim.Scenario) { sc.StartTime = "6 thirty" },
			wantErr: true,
		},
		{
			name:    "negative release delay",
			mutate:  func(sc *sim.Scenario) { sc.ReleaseDelayS = -1 },
			wantErr: true,
		},
		{
			name:    "no trains",
			mutate:  func(sc *sim.Scenario) { sc.Trains = nil },
			wantErr: true,
		},
		{
			name:    "empty train id",
			mutate:  func(sc *sim.Scenario) { sc.Trains[0].ID = "" },
			wantErr: true,
		},
		{
			name:    "duplicate train id",
			mutate:  func(sc *sim.Scenario) { sc.Trains[1].ID = sc.Trains[0].ID },
			wantErr: true,
		},
		{
			name:    "start block not on line",
			mutate:  func(sc *sim.Scenario) { sc.Trains[0].StartBlock = 9 },
			wantErr: true,
		},
		{
			name: "lookahead deeper than the vehicle carries",
			mutate: func(sc *sim.Scenario) {
				sc.Trains[0].Lookahead = []int{63, 64, 65, 66, 67}
			},
			wantErr: true,
		},
		{
			name:    "lookahead out of track order",
			mutate:  func(sc *sim.Scenario) { sc.Trains[0].Lookahead = []int{64} },
			wantErr: true,
		},
		{
			name: "lookahead past the end of the line",
			mutate: func(sc *sim.Scenario) {
				sc.Trains[0].StartBlock = 77
				sc.Trains[0].Lookahead = []int{62}
			},
			wantErr: true,
		},
		{
			name:    "negative murphy interval",
			mutate:  func(sc *sim.Scenario) { sc.Murphy.MeanSecondsBetweenFaults = -5 },
			wantErr: true,
		},
	} {
		t.Run(c.name, func(t *testing.T) {
			sc := sim.DefaultScenario()
			c.mutate(sc)

			var e util.ErrorLogger
			sc.Validate(layout, &e)
			if e.HaveErrors() != c.wantErr {
				t.Errorf("HaveErrors: got %v, expected %v; errors: %s",
					e.HaveErrors(), c.wantErr, e.String())
			}
		})
	}
}

func TestScenarioStartTime(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	sc := &sim.Scenario{StartTime: "19:45"}
	got := sc.StartTimeOn(date)
	if got.Hour() != 19 || got.Minute() != 45 || got.Day() != 14 {
		t.Errorf("StartTimeOn: got %v, expected 19:45 on the 14th", got)
	}

	// Unset falls back to 06:00.
	sc = &sim.Scenario{}
	if got := sc.StartTimeOn(date); got.Hour() != 6 || got.Minute() != 0 {
		t.Errorf("default start time: got %v, expected 06:00", got)
	}
}

func TestLoadScenarioFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(`
{
  "name": "one stop",
  "line": "green",
  "start_time": "07:15",
  "release_delay_s": 3,
  "trains": [ { "id": "201", "start_block": 62, "lookahead": [63] } ],
  "murphy": { "enabled": false }
}`), 0o644); err != nil {
		t.Fatal(err)
	}
	sc, err := sim.LoadScenarioFile(good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Name != "one stop" || sc.StartTime != "07:15" || len(sc.Trains) != 1 {
		t.Errorf("got %+v, expected the file's contents", sc)
	}

	// Misspelled keys are rejected rather than silently ignored.
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`
{
  "name": "typo",
  "line": "green",
  "trians": [ { "id": "201", "start_block": 62, "lookahead": [63] } ]
}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := sim.LoadScenarioFile(bad); err == nil {
		t.Errorf("no error for a scenario with a misspelled key")
	}

	if _, err := sim.LoadScenarioFile(filepath.Join(dir, "nope.json")); err == nil {
		t.Errorf("no error for a missing scenario file")
	}
}

func TestNewSimRejectsInvalidScenario(t *testing.T) {
	layout, err := track.DefaultLayout()
	if err != nil {
		t.Fatalf("DefaultLayout: %v", err)
	}

	sc := sim.DefaultScenario()
	sc.Trains[0].Lookahead = []int{70}
	if _, err := sim.NewSim(sc, layout, testLogger()); err == nil {
		t.Errorf("NewSim accepted a scenario with an out-of-order lookahead")
	}
}
