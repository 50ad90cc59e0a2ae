// sim/murphy.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"time"

	"github.com/openvobc/vobc/log"
	"github.com/openvobc/vobc/rand"
	"github.com/openvobc/vobc/util"
)

// FaultKind enumerates the failures Murphy can visit on a train.
type FaultKind int32

const (
	FaultSignal FaultKind = iota
	FaultBrake
	FaultEngine
	FaultPassengerEBrake
	NumFaultKinds
)

func (k FaultKind) String() string {
	return [...]string{"signal", "brake", "engine", "passenger_ebrake"}[k]
}

// ActiveFault is an injected failure with its remaining lifetime.
type ActiveFault struct {
	TrainID string
	Kind    FaultKind
	ClearIn float32 // sim seconds until it clears
}

const (
	faultMinLifetime    = 10
	faultLifetimeSpread = 20
)

// Murphy randomly injects transient vehicle faults so the controllers'
// failure handling sees regular exercise. Intervals between injections
// are uniform on [0.5, 1.5] times the configured mean; each fault
// clears itself after ten to thirty seconds.
type Murphy struct {
	Enabled            bool
	MeanSecondsBetween float32
	NextIn             float32
	Active             []ActiveFault
}

func makeMurphy(enabled bool, mean float32) Murphy {
	m := Murphy{Enabled: enabled, MeanSecondsBetween: mean}
	if m.MeanSecondsBetween <= 0 {
		m.MeanSecondsBetween = 120
	}
	if m.Enabled {
		m.NextIn = m.interval()
	}
	return m
}

func (m *Murphy) interval() float32 {
	return (0.5 + rand.Float32()) * m.MeanSecondsBetween
}

// update expires active faults and possibly injects a new one.
func (m *Murphy) update(dt float32, trains map[string]*Train, es *EventStream,
	now time.Time, lg *log.Logger) {
	if !m.Enabled {
		return
	}

	var still []ActiveFault
	for _, f := range m.Active {
		f.ClearIn -= dt
		if f.ClearIn > 0 {
			still = append(still, f)
			continue
		}
		// The train may have completed its run in the meantime.
		if t, ok := trains[f.TrainID]; ok {
			m.apply(t, f.Kind, false)
			es.Post(Event{Type: FaultClearedEvent, TrainID: f.TrainID,
				Fault: f.Kind.String(), SimTime: now})
			lg.Info("fault cleared", slog.String("train_id", f.TrainID),
				slog.String("fault", f.Kind.String()))
		}
	}
	m.Active = still

	m.NextIn -= dt
	if m.NextIn > 0 || len(trains) == 0 {
		return
	}
	m.NextIn = m.interval()

	ids := util.SortedMapKeys(trains)
	id := ids[rand.Intn(len(ids))]
	kind := FaultKind(rand.Intn(int(NumFaultKinds)))
	for _, f := range m.Active {
		if f.TrainID == id && f.Kind == kind {
			return // already suffering this one; wait for the next interval
		}
	}

	m.apply(trains[id], kind, true)
	m.Active = append(m.Active, ActiveFault{TrainID: id, Kind: kind,
		ClearIn: faultMinLifetime + rand.Float32()*faultLifetimeSpread})
	es.Post(Event{Type: FaultInjectedEvent, TrainID: id, Fault: kind.String(),
		SimTime: now})
	lg.Warn("fault injected", slog.String("train_id", id),
		slog.String("fault", kind.String()))
}

// apply sets or clears the fault's input line on the train.
func (m *Murphy) apply(t *Train, kind FaultKind, set bool) {
	switch kind {
	case FaultSignal:
		t.Faults.Signal = set
	case FaultBrake:
		t.Faults.Brake = set
	case FaultEngine:
		t.Faults.Engine = set
	case FaultPassengerEBrake:
		t.PassengerEBrake = set
	}
}
