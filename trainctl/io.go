// trainctl/io.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package trainctl

import (
	"log/slog"
	"time"
)

// Input carries everything the controller reads from the vehicle and the
// wayside during one update cycle. All signals are levels sampled at the
// start of the cycle; the controller itself decides which of them are
// treated as edges.
type Input struct {
	// ActualSpeed is the measured vehicle speed in m/s.
	ActualSpeed float32

	Faults                  FaultSet
	PassengerEmergencyBrake bool

	// CabinTemp is the measured cabin temperature in degrees Celsius.
	CabinTemp float32

	// NextStationID selects the station announced to passengers. Zero
	// (or any id not in the layout) blanks the display.
	NextStationID int

	// AuthorityThreshold is the distance in meters at or below which the
	// controller holds the vehicle with the service brake.
	AuthorityThreshold float32

	// SimTime is the current simulated wall-clock time, used for the
	// headlight schedule. The zero value disables the schedule.
	SimTime time.Time

	// NextBlockEntered is the wayside transition signal. A change from
	// its previously observed value marks entry into the next block.
	NextBlockEntered bool

	// AddBlock and UpdateBlock are wayside block requests. A request
	// held at the same value across cycles registers once; presenting a
	// different value (or a gap) re-arms it.
	AddBlock    *BlockRequest
	UpdateBlock *BlockRequest
}

// BlockRequest describes a wayside request to append a block to the
// lookahead queue or to revise an already queued block.
type BlockRequest struct {
	Number         int
	CommandedSpeed SpeedLevel
	Authorized     bool
}

func (r BlockRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("block", r.Number),
		slog.String("speed_level", r.CommandedSpeed.String()),
		slog.Bool("authorized", r.Authorized))
}

// DriverInput carries the cab controls. In automatic mode most of these
// are ignored; the brakes are always honored.
type DriverInput struct {
	AutoMode bool

	// SetSpeed is the manual-mode speed setpoint in m/s. It is clamped
	// to the current block's speed limit.
	SetSpeed float32

	ServiceBrake   bool
	EmergencyBrake bool

	Headlights     bool
	InteriorLights bool
	LeftDoor       bool
	RightDoor      bool

	// CabinSetpoint is the requested cabin temperature in degrees
	// Celsius, passed through to the HVAC plant.
	CabinSetpoint float32
}

// FaultSet reports the vehicle's self-test failure indications.
type FaultSet struct {
	Signal bool
	Brake  bool
	Engine bool
}

func (f FaultSet) Any() bool {
	return f.Signal || f.Brake || f.Engine
}

func (f FaultSet) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("signal", f.Signal),
		slog.Bool("brake", f.Brake),
		slog.Bool("engine", f.Engine))
}

// Output is the controller's command surface toward the vehicle. It is
// recomputed every cycle; consumers treat the fields as levels.
type Output struct {
	TrainID string

	// Power is the commanded traction power in kW. Zero whenever any
	// brake is engaged.
	Power float32

	EmergencyBrake bool
	ServiceBrake   bool

	// Door commands are open intents. The vehicle interlocks them
	// against motion on its side as well.
	LeftDoor  bool
	RightDoor bool

	Headlights     bool
	InteriorLights bool

	CabinSetpoint float32

	// StationStopComplete asserts after a full dwell while the vehicle
	// remains at the platform. The wayside uses it to decide when to
	// grant the departure authorization.
	StationStopComplete bool

	// AtBlockEdge asserts when the integrated position reaches the end
	// of the current block's governing length.
	AtBlockEdge bool

	// LookaheadExhausted asserts after a block transition arrived with an
	// empty lookahead queue. It clears on the next successful transition.
	LookaheadExhausted bool

	NextStationName string
	NextStationSide string
}

func (o Output) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("train_id", o.TrainID),
		slog.Float64("power_kw", float64(o.Power)),
		slog.Bool("emergency_brake", o.EmergencyBrake),
		slog.Bool("service_brake", o.ServiceBrake),
		slog.Bool("at_block_edge", o.AtBlockEdge),
		slog.Bool("station_stop_complete", o.StationStopComplete))
}

// DriverView is a read-only summary of the controller for cab displays
// and the simulation console.
type DriverView struct {
	TrainID  string
	AutoMode bool

	SetpointSpeed float32
	ActualSpeed   float32
	SpeedLimit    float32
	Power         float32

	Authority          float32
	AuthorityThreshold float32

	EmergencyBrake bool
	ServiceBrake   bool
	Faults         FaultSet

	CurrentBlock   int
	StationPhase   StationPhase
	DwellRemaining float32

	NextStation     string
	NextStationSide string

	CabinTemp     float32
	CabinSetpoint float32

	Headlights     bool
	InteriorLights bool
	LeftDoor       bool
	RightDoor      bool

	Kp float32
	Ki float32
}
