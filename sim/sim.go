// sim/sim.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package sim runs a scenario's trains against the track layout: each
// simulated second it feeds every onboard controller its wayside and cab
// inputs, integrates the vehicle plant under the controller's output,
// and publishes notable happenings on an event stream.
package sim

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openvobc/vobc/log"
	"github.com/openvobc/vobc/track"
	"github.com/openvobc/vobc/trainctl"
	"github.com/openvobc/vobc/util"

	"github.com/goforj/godump"
)

var (
	ErrInvalidScenario = errors.New("Invalid scenario")
	ErrUnknownTrain    = errors.New("Unknown train")
	ErrUnknownFault    = errors.New("Unknown fault kind")
)

type Sim struct {
	mu util.LoggingMutex

	Name     string
	LineName string

	Trains  map[string]*Train
	Wayside *Wayside
	Murphy  Murphy

	SimTime time.Time
	SimRate float32
	Paused  bool

	TotalDispatched int
	TotalCompleted  int

	lastUpdateTime time.Time // w.r.t. true wallclock time
	updateTimeSlop time.Duration

	line        *track.Line
	eventStream *EventStream
	lg          *log.Logger
}

type TrainDisplayState struct {
	Spew   string // for debugging
	Status string // one-line summary for display when paused
}

func NewSim(sc *Scenario, layout *track.Layout, lg *log.Logger) (*Sim, error) {
	var e util.ErrorLogger
	sc.Validate(layout, &e)
	if e.HaveErrors() {
		e.PrintErrors(lg)
		return nil, fmt.Errorf("%w: %s", ErrInvalidScenario, sc.Name)
	}

	line, err := layout.Line(sc.Line)
	if err != nil {
		return nil, err
	}

	s := &Sim{
		Name:     sc.Name,
		LineName: sc.Line,

		Trains:  make(map[string]*Train),
		Wayside: newWayside(line, sc.ReleaseDelayS, lg),
		Murphy:  makeMurphy(sc.Murphy.Enabled, sc.Murphy.MeanSecondsBetweenFaults),

		SimTime: sc.StartTimeOn(time.Now()),
		SimRate: 1,

		lastUpdateTime: time.Now(),

		line:        line,
		eventStream: NewEventStream(lg),
		lg:          lg,
	}

	for _, st := range sc.Trains {
		startIdx, _ := line.OrderIndex(st.StartBlock)
		cur, _ := s.Wayside.requestFor(startIdx)

		cfg := trainctl.Config{
			TrainID:             st.ID,
			Line:                sc.Line,
			StartBlock:          st.StartBlock,
			StartAuthorized:     true,
			StartCommandedSpeed: cur.CommandedSpeed,
		}
		for i := range st.Lookahead {
			req, _ := s.Wayside.requestFor(startIdx + 1 + i)
			cfg.Lookahead = append(cfg.Lookahead, req)
		}

		ctl, err := trainctl.New(cfg, line, lg)
		if err != nil {
			return nil, fmt.Errorf("train %s: %w", st.ID, err)
		}

		setpt := st.CabinSetpointC
		if setpt == 0 {
			setpt = defaultCabinSetpt
		}
		s.Trains[st.ID] = &Train{
			ID:        st.ID,
			Ctl:       ctl,
			CabinTemp: defaultCabinTempC,
			Driver:    trainctl.DriverInput{AutoMode: true, CabinSetpoint: setpt},
		}
		s.Wayside.addTrain(st.ID, startIdx, len(st.Lookahead))
		s.TotalDispatched++

		s.eventStream.Post(Event{Type: TrainAddedEvent, TrainID: st.ID,
			Block: st.StartBlock, SimTime: s.SimTime})
	}

	s.lg.Info("sim created", slog.String("scenario", s.Name),
		slog.String("line", s.LineName), slog.Int("trains", len(s.Trains)))

	return s, nil
}

// Activate restores the runtime wiring after deserialization.
func (s *Sim) Activate(layout *track.Layout, lg *log.Logger) error {
	s.lg = lg

	if s.eventStream == nil {
		s.eventStream = NewEventStream(lg)
	}

	line, err := layout.Line(s.LineName)
	if err != nil {
		return err
	}
	s.line = line
	s.Wayside.activate(line, lg)
	for _, t := range s.Trains {
		t.Ctl.Activate(line, lg)
	}

	s.lastUpdateTime = time.Now()
	return nil
}

func (s *Sim) Destroy() {
	s.eventStream.Destroy()
}

// Subscribe creates a new event subscription for this simulation.
// The caller is responsible for calling Unsubscribe when done.
func (s *Sim) Subscribe() *EventsSubscription {
	return s.eventStream.Subscribe()
}

func (s *Sim) PostEvent(e Event) {
	s.eventStream.Post(e)
}

func (s *Sim) GetSerializeSim() Sim {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return *s
}

func (s *Sim) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("scenario", s.Name),
		slog.String("line", s.LineName),
		slog.Int("trains", len(s.Trains)),
		slog.Time("sim_time", s.SimTime),
		slog.Int("completed", s.TotalCompleted))
}

func (s *Sim) TogglePause() {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	s.Paused = !s.Paused
	s.lastUpdateTime = time.Now() // ignore time passage...
}

// Advance steps the simulation ahead by the given number of simulated
// seconds, ignoring the wallclock entirely.
func (s *Sim) Advance(seconds int) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	for i := 0; i < seconds; i++ {
		s.SimTime = s.SimTime.Add(time.Second)
		s.updateState()
	}
	s.updateTimeSlop = 0
	s.lastUpdateTime = time.Now()
}

// FastForward jumps the simulation ahead by fifteen seconds.
func (s *Sim) FastForward() {
	s.Advance(15)
}

// Now returns the current simulation time.
func (s *Sim) Now() time.Time {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	return s.SimTime
}

func (s *Sim) SetSimRate(rate float32) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	s.SimRate = rate
	s.lg.Infof("sim rate set to %f", s.SimRate)
}

// IsComplete reports whether every train has finished its journey.
func (s *Sim) IsComplete() bool {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	return len(s.Trains) == 0
}

func (s *Sim) Update() {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	if !util.DebuggerIsRunning() {
		startUpdate := time.Now()
		defer func() {
			if d := time.Since(startUpdate); d > 200*time.Millisecond {
				s.lg.Warn("unexpectedly long Sim Update() call", slog.Duration("duration", d),
					slog.Any("sim", s))
			}
		}()
	}

	if s.Paused {
		return
	}

	// Figure out how much time has passed since the last update: wallclock
	// time is scaled by the sim rate, then we add in any time from the
	// last update that wasn't accounted for.
	elapsed := time.Since(s.lastUpdateTime)
	elapsed = time.Duration(s.SimRate * float32(elapsed))
	s.Step(elapsed)
	s.lastUpdateTime = time.Now()
}

// Step advances the simulation by the given elapsed time duration.
func (s *Sim) Step(elapsed time.Duration) bool {
	elapsed += s.updateTimeSlop

	// Run the sim for this many seconds
	ns := int(elapsed.Truncate(time.Second).Seconds())
	if ns > 10 {
		s.lg.Warn("unexpected hitch in update rate", slog.Duration("elapsed", elapsed),
			slog.Int("steps", ns), slog.Duration("slop", s.updateTimeSlop))
	}
	for i := 0; i < ns; i++ {
		s.SimTime = s.SimTime.Add(time.Second)
		s.updateState()
	}

	s.updateTimeSlop = elapsed - elapsed.Truncate(time.Second)

	return ns > 0
}

// updateState advances every train by one simulated second.
func (s *Sim) updateState() {
	const dt = 1 // seconds per step

	s.Murphy.update(dt, s.Trains, s.eventStream, s.SimTime, s.lg)

	// Sorted so a run is deterministic for a given scenario.
	for _, id := range util.SortedMapKeys(s.Trains) {
		t := s.Trains[id]

		prevBlock := t.Ctl.Current.Number
		in := s.Wayside.inputFor(t, s.SimTime)
		out := t.Ctl.Update(in, t.Driver, dt)
		t.advance(out, dt)
		s.Wayside.observe(t, out, dt)

		s.postEvents(t, out, prevBlock)

		if s.Wayside.journeyComplete(t, out) {
			s.eventStream.Post(Event{Type: TrainCompletedEvent, TrainID: id,
				Block: t.Ctl.Current.Number, SimTime: s.SimTime})
			s.lg.Info("journey complete", slog.String("train_id", id),
				slog.Int("block", t.Ctl.Current.Number))
			delete(s.Trains, id)
			delete(s.Wayside.Trains, id)
			s.TotalCompleted++
		}
	}
}

// postEvents publishes the cycle's notable state changes for train t.
func (s *Sim) postEvents(t *Train, out trainctl.Output, prevBlock int) {
	now := s.SimTime

	if b := t.Ctl.Current.Number; b != prevBlock {
		s.eventStream.Post(Event{Type: BlockTransitionEvent, TrainID: t.ID,
			Block: b, SimTime: now})
	}

	if phase := t.Ctl.Station.Phase; phase != t.LastPhase {
		if st := t.Ctl.Current.Station; st != nil {
			switch phase {
			case trainctl.Dwelling:
				s.eventStream.Post(Event{Type: StationArrivalEvent, TrainID: t.ID,
					Block: t.Ctl.Current.Number, Station: st.Name, SimTime: now})
			case trainctl.Cleared:
				s.eventStream.Post(Event{Type: StationDepartureEvent, TrainID: t.ID,
					Block: t.Ctl.Current.Number, Station: st.Name, SimTime: now})
			}
		}
		t.LastPhase = phase
	}

	if out.EmergencyBrake && !t.LastOutput.EmergencyBrake {
		s.eventStream.Post(Event{Type: EmergencyBrakeEvent, TrainID: t.ID,
			Block: t.Ctl.Current.Number, SimTime: now})
	}
	if out.LookaheadExhausted && !t.LastOutput.LookaheadExhausted {
		s.eventStream.Post(Event{Type: LookaheadExhaustedEvent, TrainID: t.ID,
			Block: t.Ctl.Current.Number, SimTime: now})
	}

	t.LastOutput = out
}

// DumpState writes a full dump of the simulation state to w, for
// debugging and the -dumpstate command line option.
func (s *Sim) DumpState(w io.Writer) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	godump.Fdump(w, s)
	fmt.Fprintf(w, "in-memory size: %d bytes\n", util.SizeOf(s, io.Discard, false, 0))
}

func (s *Sim) GetTrainDisplayState(id string) (TrainDisplayState, error) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	t, ok := s.Trains[id]
	if !ok {
		return TrainDisplayState{}, ErrUnknownTrain
	}
	status := fmt.Sprintf("block %d %s speed %.1f m/s authority %.0f m power %.1f kW",
		t.Ctl.Current.Number, t.Ctl.Station.Phase, t.Speed, t.Ctl.Authority,
		t.LastOutput.Power)
	return TrainDisplayState{
		Spew:   godump.DumpStr(t),
		Status: status,
	}, nil
}

// DriverViews returns the per-train cab display summaries, keyed by
// train id.
func (s *Sim) DriverViews() map[string]trainctl.DriverView {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	views := make(map[string]trainctl.DriverView)
	for id, t := range s.Trains {
		views[id] = t.Ctl.DriverView()
	}
	return views
}

// SetDriverInput replaces the cab console state for the given train.
func (s *Sim) SetDriverInput(id string, d trainctl.DriverInput) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	t, ok := s.Trains[id]
	if !ok {
		return ErrUnknownTrain
	}
	t.Driver = d
	s.lg.Info("driver input updated", slog.String("train_id", id),
		slog.Bool("auto", d.AutoMode))
	return nil
}

// SetGains updates the PI controller gains for the given train.
func (s *Sim) SetGains(id string, kp, ki float32) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	t, ok := s.Trains[id]
	if !ok {
		return ErrUnknownTrain
	}
	return t.Ctl.SetGains(kp, ki)
}

// InjectFault manually raises a fault on the given train; it stays up
// until cleared with ClearFault.
func (s *Sim) InjectFault(id string, kind FaultKind) error {
	return s.setFault(id, kind, true, FaultInjectedEvent)
}

func (s *Sim) ClearFault(id string, kind FaultKind) error {
	return s.setFault(id, kind, false, FaultClearedEvent)
}

func (s *Sim) setFault(id string, kind FaultKind, set bool, ev EventType) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	if kind < 0 || kind >= NumFaultKinds {
		return fmt.Errorf("%w: %d", ErrUnknownFault, kind)
	}
	t, ok := s.Trains[id]
	if !ok {
		return ErrUnknownTrain
	}
	s.Murphy.apply(t, kind, set)
	s.eventStream.Post(Event{Type: ev, TrainID: id, Fault: kind.String(),
		SimTime: s.SimTime})
	return nil
}
