// cmd/vobc/main.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// vobc runs a scenario's trains over a track layout, each under its own
// onboard controller, printing the resulting events to the console as
// simulated time passes.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/openvobc/vobc/log"
	"github.com/openvobc/vobc/sim"
	"github.com/openvobc/vobc/track"
	"github.com/openvobc/vobc/util"

	"golang.org/x/sync/errgroup"
)

var (
	cpuprofile    = flag.String("cpuprofile", "", "write CPU profile to file")
	memprofile    = flag.String("memprofile", "", "write memory profile to this file")
	logLevel      = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir        = flag.String("logdir", "", "log file directory")
	lintFiles     = flag.Bool("lint", false, "check the validity of the layout and scenario, then exit")
	scenarioFile  = flag.String("scenario", "", "filename of JSON file with a scenario definition")
	layoutFile    = flag.String("layout", "", "filename of a track layout, JSON or compiled")
	layoutDir     = flag.String("layoutdir", "", "directory of track layouts to load from")
	layoutName    = flag.String("layoutname", "greenline", "layout name to load from -layoutdir")
	simRate       = flag.Float64("simrate", 1, "simulation time scale")
	runFor        = flag.Int("runfor", 0, "run this many simulated seconds without wallclock pacing, then exit")
	savePath      = flag.String("save", "", "write the simulation state here on interrupt")
	resumePath    = flag.String("resume", "", "resume a previously saved simulation")
	compileLayout = flag.String("compilelayout", "", "compile a JSON layout file and exit")
	dumpState     = flag.Bool("dumpstate", false, "dump the initial simulation state and exit")
)

func main() {
	flag.Parse()

	lg := log.New(*logLevel, *logDir)

	profiler, err := util.CreateProfiler(*cpuprofile, *memprofile)
	if err != nil {
		lg.Errorf("%v", err)
	}
	defer profiler.Cleanup()

	if *compileLayout != "" {
		out := strings.TrimSuffix(*compileLayout, ".json") + track.CompiledExt
		if err := track.CompileLayoutFile(*compileLayout, out); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", *compileLayout, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", out)
		os.Exit(0)
	}

	if *lintFiles {
		lint(lg)
		os.Exit(0)
	}

	defer lg.CatchAndLogCrash()

	layout, err := loadLayout(lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	var s *sim.Sim
	if *resumePath != "" {
		s, err = sim.LoadFile(*resumePath)
		if err == nil {
			err = s.Activate(layout, lg)
		}
	} else {
		var sc *sim.Scenario
		if sc, err = loadScenario(); err == nil {
			s, err = sim.NewSim(sc, layout, lg)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer s.Destroy()

	if *dumpState {
		s.DumpState(os.Stdout)
		return
	}

	if *runFor > 0 {
		runHeadless(s, *runFor)
		return
	}

	s.SetSimRate(float32(*simRate))
	runConsole(s)
}

func loadLayout(lg *log.Logger) (*track.Layout, error) {
	switch {
	case *layoutFile != "":
		if strings.HasSuffix(*layoutFile, track.CompiledExt) {
			f, err := os.Open(*layoutFile)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return track.ReadCompiled(f)
		}
		return track.LoadLayoutFile(*layoutFile)
	case *layoutDir != "":
		return track.NewStore(*layoutDir, lg).Layout(*layoutName)
	default:
		return track.DefaultLayout()
	}
}

func loadScenario() (*sim.Scenario, error) {
	if *scenarioFile != "" {
		return sim.LoadScenarioFile(*scenarioFile)
	}
	return sim.DefaultScenario(), nil
}

// lint loads the layout and scenario concurrently, then validates the
// scenario against the layout; problems go to stderr.
func lint(lg *log.Logger) {
	var layout *track.Layout
	var sc *sim.Scenario

	var eg errgroup.Group
	eg.Go(func() error {
		var err error
		layout, err = loadLayout(lg)
		return err
	})
	eg.Go(func() error {
		var err error
		sc, err = loadScenario()
		return err
	})
	if err := eg.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	var e util.ErrorLogger
	layout.Validate(&e)
	sc.Validate(layout, &e)
	if e.HaveErrors() {
		fmt.Fprint(os.Stderr, e.String())
		os.Exit(1)
	}
	fmt.Println("no problems found")
}

// runHeadless steps the simulation second by second as fast as the
// machine allows, printing events along the way.
func runHeadless(s *sim.Sim, seconds int) {
	sub := s.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < seconds; i++ {
		if s.IsComplete() {
			break
		}
		s.Advance(1)
		for _, ev := range sub.Get() {
			fmt.Println(formatEvent(ev))
		}
	}

	if s.IsComplete() {
		fmt.Printf("%s  all %d trains completed\n",
			s.Now().Format("15:04:05"), s.TotalCompleted)
	} else if *savePath != "" {
		saveSim(s)
	}
}

// runConsole advances the simulation in wallclock time, printing events
// as they happen, until every train completes or the user interrupts.
func runConsole(s *sim.Sim) {
	sub := s.Subscribe()
	defer sub.Unsubscribe()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for !s.IsComplete() {
		select {
		case <-tick.C:
			s.Update()
			for _, ev := range sub.Get() {
				fmt.Println(formatEvent(ev))
			}
		case <-sig:
			fmt.Println("interrupted")
			if *savePath != "" {
				saveSim(s)
			}
			return
		}
	}

	fmt.Printf("%s  all %d trains completed\n",
		s.Now().Format("15:04:05"), s.TotalCompleted)
}

func saveSim(s *sim.Sim) {
	if err := sim.SaveFile(*savePath, s); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *savePath, err)
		os.Exit(1)
	}
	fmt.Printf("saved to %s; resume with -resume %s\n", *savePath, *savePath)
}

func formatEvent(ev sim.Event) string {
	stamp := ev.SimTime.Format("15:04:05")
	switch ev.Type {
	case sim.TrainAddedEvent:
		return fmt.Sprintf("%s  train %s dispatched in block %d", stamp, ev.TrainID, ev.Block)
	case sim.TrainCompletedEvent:
		return fmt.Sprintf("%s  train %s completed its run in block %d", stamp, ev.TrainID, ev.Block)
	case sim.BlockTransitionEvent:
		return fmt.Sprintf("%s  train %s entered block %d", stamp, ev.TrainID, ev.Block)
	case sim.LookaheadExhaustedEvent:
		return fmt.Sprintf("%s  train %s ran out of route in block %d", stamp, ev.TrainID, ev.Block)
	case sim.StationArrivalEvent:
		return fmt.Sprintf("%s  train %s arrived at %s", stamp, ev.TrainID, ev.Station)
	case sim.StationDepartureEvent:
		return fmt.Sprintf("%s  train %s departed %s", stamp, ev.TrainID, ev.Station)
	case sim.EmergencyBrakeEvent:
		return fmt.Sprintf("%s  train %s emergency brake in block %d", stamp, ev.TrainID, ev.Block)
	case sim.FaultInjectedEvent:
		return fmt.Sprintf("%s  train %s fault: %s", stamp, ev.TrainID, ev.Fault)
	case sim.FaultClearedEvent:
		return fmt.Sprintf("%s  train %s fault cleared: %s", stamp, ev.TrainID, ev.Fault)
	default:
		return fmt.Sprintf("%s  %s", stamp, ev.Text)
	}
}
