// sim/scenario.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"os"
	"time"

	"github.com/openvobc/vobc/track"
	"github.com/openvobc/vobc/trainctl"
	"github.com/openvobc/vobc/util"
)

// Scenario describes one runnable service day: the line, the trains and
// where they start, the wayside release delay, and fault injection.
type Scenario struct {
	Name          string          `json:"name"`
	Line          string          `json:"line"`
	StartTime     string          `json:"start_time,omitempty"` // "HH:MM"
	ReleaseDelayS float32         `json:"release_delay_s"`
	Trains        []ScenarioTrain `json:"trains"`
	Murphy        MurphyConfig    `json:"murphy"`
}

// ScenarioTrain places one train on the line. Lookahead lists the block
// numbers initially queued ahead of the start block; they must be its
// immediate successors in track order.
type ScenarioTrain struct {
	ID             string  `json:"id"`
	StartBlock     int     `json:"start_block"`
	Lookahead      []int   `json:"lookahead"`
	CabinSetpointC float32 `json:"cabin_setpoint_c,omitempty"`
}

type MurphyConfig struct {
	Enabled                  bool    `json:"enabled"`
	MeanSecondsBetweenFaults float32 `json:"mean_seconds_between_faults,omitempty"`
}

func LoadScenarioFile(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// A misspelled key would otherwise decode silently to a zero value,
	// so typecheck the raw JSON before unmarshaling.
	var e util.ErrorLogger
	util.CheckJSON[Scenario](b, &e)
	if e.HaveErrors() {
		return nil, fmt.Errorf("%s: %s", path, e.String())
	}

	var s Scenario
	if err := util.UnmarshalJSONBytes(b, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// Validate checks the scenario against the track layout, accumulating
// problems in e.
func (s *Scenario) Validate(layout *track.Layout, e *util.ErrorLogger) {
	e.Push("scenario " + s.Name)
	defer e.Pop()

	line, err := layout.Line(s.Line)
	if err != nil {
		e.Error(err)
		return
	}
	if s.StartTime != "" {
		if _, err := time.Parse("15:04", s.StartTime); err != nil {
			e.ErrorString("start_time %q: expected \"HH:MM\"", s.StartTime)
		}
	}
	if s.ReleaseDelayS < 0 {
		e.ErrorString("release_delay_s %v is negative", s.ReleaseDelayS)
	}
	if len(s.Trains) == 0 {
		e.ErrorString("no trains")
	}
	if s.Murphy.MeanSecondsBetweenFaults < 0 {
		e.ErrorString("mean_seconds_between_faults %v is negative",
			s.Murphy.MeanSecondsBetweenFaults)
	}

	seen := make(map[string]interface{})
	for _, st := range s.Trains {
		e.Push("train " + st.ID)
		if st.ID == "" {
			e.ErrorString("empty train id")
		}
		if _, ok := seen[st.ID]; ok {
			e.ErrorString("duplicate train id")
		}
		seen[st.ID] = nil

		idx, ok := line.OrderIndex(st.StartBlock)
		if !ok {
			e.ErrorString("start_block %d is not on line %q", st.StartBlock, s.Line)
			e.Pop()
			continue
		}
		if len(st.Lookahead) > trainctl.MaxLookahead {
			e.ErrorString("lookahead lists %d blocks; the vehicle carries at most %d",
				len(st.Lookahead), trainctl.MaxLookahead)
		}
		for i, n := range st.Lookahead {
			if idx+1+i >= len(line.Blocks) {
				e.ErrorString("lookahead block %d runs past the end of the line", n)
			} else if line.Blocks[idx+1+i].Number != n {
				e.ErrorString("lookahead block %d does not follow %d in track order",
					n, st.StartBlock)
			}
		}
		e.Pop()
	}
}

// StartTimeOn resolves the scenario's wall-clock start time onto the
// given date, defaulting to 06:00.
func (s *Scenario) StartTimeOn(date time.Time) time.Time {
	t, err := time.Parse("15:04", s.StartTime)
	if s.StartTime == "" || err != nil {
		t, _ = time.Parse("15:04", "06:00")
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(),
		0, 0, date.Location())
}

// DefaultScenario is a two-train run over the embedded green line.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:          "green line local",
		Line:          "green",
		StartTime:     "06:30",
		ReleaseDelayS: 5,
		Trains: []ScenarioTrain{
			{ID: "101", StartBlock: 62, Lookahead: []int{63, 64, 65}, CabinSetpointC: 21},
			{ID: "102", StartBlock: 68, Lookahead: []int{69, 70, 71}, CabinSetpointC: 22},
		},
		Murphy: MurphyConfig{Enabled: false, MeanSecondsBetweenFaults: 300},
	}
}
