// trainctl/trainctl.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package trainctl implements the onboard vehicle controller: movement
// authority tracking over a bounded lookahead of track blocks, the
// station stop sequence, and brake/power arbitration with a
// triple-redundant PI power calculation.
//
// A Controller is single-threaded. All state changes happen inside
// Update, which the caller drives at a fixed cycle rate; concurrent use
// requires external synchronization. Each controlled vehicle gets its
// own Controller and the instances share nothing.
package trainctl

import (
	"fmt"
	"log/slog"

	"github.com/brunoga/deep"
	"github.com/openvobc/vobc/log"
	"github.com/openvobc/vobc/track"
)

// MaxLookahead is the capacity of the lookahead queue: the controller
// never knows about more than this many blocks beyond the current one.
const MaxLookahead = 4

// TrackData resolves block numbers and station ids against the loaded
// track layout. *track.Line satisfies it.
type TrackData interface {
	Block(number int) (track.Block, bool)
	StationByID(id int) (track.Station, bool)
}

// BlockDescriptor is a track block together with the wayside-assigned
// movement attributes that arrived with it.
type BlockDescriptor struct {
	track.Block
	Authorized     bool
	CommandedSpeed SpeedLevel
}

func (b BlockDescriptor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("number", b.Number),
		slog.Float64("length_m", float64(b.Length)),
		slog.Bool("authorized", b.Authorized),
		slog.String("speed_level", b.CommandedSpeed.String()))
}

// PositionState tracks travel within the current block.
type PositionState struct {
	// DistanceTraveled is the integrated distance in meters since the
	// block's origin. A completed dwell re-bases the origin to the
	// platform, at the block midpoint.
	DistanceTraveled float32

	// HasMoved latches after the first nonzero speed sample. Until then
	// the vehicle is treated as parked at the block boundary and the
	// current block does not count toward authority.
	HasMoved bool
}

// StationState tracks the station stop sequence in the current block.
type StationState struct {
	Phase StationPhase

	// DwellRemaining counts down the mandatory dwell in simulated
	// seconds while Phase is Dwelling.
	DwellRemaining float32
}

// PowerState holds the PI controller state.
type PowerState struct {
	Kp float32
	Ki float32

	// IntegralError accumulates speed error over time, in m. It resets
	// whenever a brake interlock takes over so that a long hold does not
	// wind up into a power surge on release.
	IntegralError float32

	// Setpoint is the target speed in m/s resolved during the last
	// update, after mode selection and speed limit clamping.
	Setpoint float32
}

// Controller is the onboard controller for a single vehicle.
//
// The exported fields are the controller's persistent state; they
// serialize as part of a simulation save and are deep-copied by
// TakeSnapshot. The unexported fields are runtime wiring, restored
// through Activate after deserialization.
type Controller struct {
	TrainID string
	Line    string

	Current   BlockDescriptor
	Lookahead []BlockDescriptor

	Position PositionState
	Station  StationState
	Power    PowerState

	// Authority is the guaranteed safe travel distance in meters,
	// recomputed every cycle.
	Authority          float32
	AuthorityThreshold float32

	// LookaheadExhausted latches when a block transition finds the
	// lookahead queue empty. See Output.LookaheadExhausted.
	LookaheadExhausted bool

	// LastTransitionEdge is the previously observed level of the wayside
	// transition signal; TransitionEdgeSeen is false until the first
	// observation, which is recorded without acting on it.
	LastTransitionEdge bool
	TransitionEdgeSeen bool

	// LastAddRequest and LastUpdateRequest are the previous cycle's
	// block requests, kept so that a request held steady across cycles
	// registers only once. nil means no request was present.
	LastAddRequest    *BlockRequest
	LastUpdateRequest *BlockRequest

	LastFaults FaultSet

	// Underground light handling: entering an underground block forces
	// the lights on and saves the prior state for restoration on exit.
	WasUnderground  bool
	SavedHeadlights bool
	SavedInterior   bool

	Output Output

	lookup     TrackData
	lg         *log.Logger
	lastInput  Input
	lastDriver DriverInput
}

// Config describes the initial state of a Controller.
type Config struct {
	TrainID string
	Line    string

	// StartBlock is the block the vehicle occupies at startup, with its
	// initial movement attributes.
	StartBlock          int
	StartAuthorized     bool
	StartCommandedSpeed SpeedLevel

	// Lookahead seeds the queue, nearest block first. At most
	// MaxLookahead entries.
	Lookahead []BlockRequest

	// Kp and Ki override the default PI gains when either is nonzero.
	Kp float32
	Ki float32
}

// New returns a Controller initialized from cfg, resolving all blocks
// against lookup. The descriptors are deep copies; later changes to the
// layout do not reach a running controller.
func New(cfg Config, lookup TrackData, lg *log.Logger) (*Controller, error) {
	if lg != nil {
		lg = lg.With(slog.String("train_id", cfg.TrainID))
	}
	if len(cfg.Lookahead) > MaxLookahead {
		return nil, fmt.Errorf("%w: %d", ErrTooManyInitialBlocks, len(cfg.Lookahead))
	}
	if !cfg.StartCommandedSpeed.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSpeedLevel, cfg.StartCommandedSpeed)
	}
	if cfg.Kp < 0 || cfg.Ki < 0 {
		return nil, fmt.Errorf("%w: kp %v, ki %v", ErrInvalidGains, cfg.Kp, cfg.Ki)
	}

	blk, ok := lookup.Block(cfg.StartBlock)
	if !ok {
		return nil, fmt.Errorf("%w: start block %d", ErrBlockNotInLayout, cfg.StartBlock)
	}

	c := &Controller{
		TrainID: cfg.TrainID,
		Line:    cfg.Line,
		Current: BlockDescriptor{
			Block:          deep.MustCopy(blk),
			Authorized:     cfg.StartAuthorized,
			CommandedSpeed: cfg.StartCommandedSpeed,
		},
		Power:  PowerState{Kp: cfg.Kp, Ki: cfg.Ki},
		lookup: lookup,
		lg:     lg,
	}
	if c.Power.Kp == 0 && c.Power.Ki == 0 {
		c.Power.Kp, c.Power.Ki = DefaultKp, DefaultKi
	}

	for _, req := range cfg.Lookahead {
		if err := c.AddBlock(req); err != nil {
			return nil, fmt.Errorf("initial lookahead: %w", err)
		}
	}

	c.Output.TrainID = cfg.TrainID
	c.lg.Info("controller initialized", slog.Any("current", c.Current),
		slog.Int("lookahead", len(c.Lookahead)))

	return c, nil
}

// Activate restores the runtime wiring of a deserialized Controller.
func (c *Controller) Activate(lookup TrackData, lg *log.Logger) {
	if lg != nil {
		lg = lg.With(slog.String("train_id", c.TrainID))
	}
	c.lookup = lookup
	c.lg = lg
}

// Update runs one controller cycle: integrate position, react to the
// wayside signals, advance the station stop sequence, recompute the
// movement authority, and arbitrate brakes and traction power. dt is the
// elapsed simulated time in seconds since the previous call.
func (c *Controller) Update(in Input, driver DriverInput, dt float32) Output {
	c.lastInput = in
	c.lastDriver = driver

	c.updatePosition(in.ActualSpeed, dt)
	c.observeTransition(in.NextBlockEntered)
	c.processBlockRequests(in)
	c.updateStationStop(in.ActualSpeed, dt)

	c.AuthorityThreshold = in.AuthorityThreshold
	c.recomputeAuthority()

	c.updateControl(in, driver, dt)
	c.updateCab(in, driver)

	c.Output.TrainID = c.TrainID
	c.Output.LookaheadExhausted = c.LookaheadExhausted

	return c.Output
}

// processBlockRequests applies the cycle's add/update requests, skipping
// any request identical to the one observed in the previous cycle.
func (c *Controller) processBlockRequests(in Input) {
	if add := in.AddBlock; add != nil {
		if c.LastAddRequest == nil || *add != *c.LastAddRequest {
			// Errors are logged inside AddBlock; a failed request is
			// dropped, not retried.
			_ = c.AddBlock(*add)
		}
		held := *add
		c.LastAddRequest = &held
	} else {
		c.LastAddRequest = nil
	}

	if upd := in.UpdateBlock; upd != nil {
		if c.LastUpdateRequest == nil || *upd != *c.LastUpdateRequest {
			_ = c.UpdateBlock(*upd)
		}
		held := *upd
		c.LastUpdateRequest = &held
	} else {
		c.LastUpdateRequest = nil
	}
}

// SetGains installs new PI gains, typically from the engineer console.
func (c *Controller) SetGains(kp, ki float32) error {
	if kp < 0 || ki < 0 {
		return fmt.Errorf("%w: kp %v, ki %v", ErrInvalidGains, kp, ki)
	}
	c.Power.Kp, c.Power.Ki = kp, ki
	c.lg.Info("PI gains updated", slog.Float64("kp", float64(kp)),
		slog.Float64("ki", float64(ki)))
	return nil
}

// DriverView returns a display summary built from the most recent update.
func (c *Controller) DriverView() DriverView {
	return DriverView{
		TrainID:            c.TrainID,
		AutoMode:           c.lastDriver.AutoMode,
		SetpointSpeed:      c.Power.Setpoint,
		ActualSpeed:        c.lastInput.ActualSpeed,
		SpeedLimit:         c.Current.SpeedLimit,
		Power:              c.Output.Power,
		Authority:          c.Authority,
		AuthorityThreshold: c.AuthorityThreshold,
		EmergencyBrake:     c.Output.EmergencyBrake,
		ServiceBrake:       c.Output.ServiceBrake,
		Faults:             c.LastFaults,
		CurrentBlock:       c.Current.Number,
		StationPhase:       c.Station.Phase,
		DwellRemaining:     c.Station.DwellRemaining,
		NextStation:        c.Output.NextStationName,
		NextStationSide:    c.Output.NextStationSide,
		CabinTemp:          c.lastInput.CabinTemp,
		CabinSetpoint:      c.Output.CabinSetpoint,
		Headlights:         c.Output.Headlights,
		InteriorLights:     c.Output.InteriorLights,
		LeftDoor:           c.Output.LeftDoor,
		RightDoor:          c.Output.RightDoor,
		Kp:                 c.Power.Kp,
		Ki:                 c.Power.Ki,
	}
}

func (c *Controller) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("train_id", c.TrainID),
		slog.String("line", c.Line),
		slog.Int("current_block", c.Current.Number),
		slog.Float64("distance_traveled", float64(c.Position.DistanceTraveled)),
		slog.Float64("authority", float64(c.Authority)),
		slog.String("station_phase", c.Station.Phase.String()),
		slog.Int("lookahead", len(c.Lookahead)))
}

// Snapshot is a deep copy of a Controller's persistent state.
type Snapshot struct {
	Current   BlockDescriptor
	Lookahead []BlockDescriptor

	Position PositionState
	Station  StationState
	Power    PowerState

	Authority          float32
	AuthorityThreshold float32
	LookaheadExhausted bool

	LastTransitionEdge bool
	TransitionEdgeSeen bool
	LastAddRequest     *BlockRequest
	LastUpdateRequest  *BlockRequest
	LastFaults         FaultSet

	WasUnderground  bool
	SavedHeadlights bool
	SavedInterior   bool

	Output Output
}

// TakeSnapshot captures the controller state for later restoration.
func (c *Controller) TakeSnapshot() Snapshot {
	return deep.MustCopy(Snapshot{
		Current:            c.Current,
		Lookahead:          c.Lookahead,
		Position:           c.Position,
		Station:            c.Station,
		Power:              c.Power,
		Authority:          c.Authority,
		AuthorityThreshold: c.AuthorityThreshold,
		LookaheadExhausted: c.LookaheadExhausted,
		LastTransitionEdge: c.LastTransitionEdge,
		TransitionEdgeSeen: c.TransitionEdgeSeen,
		LastAddRequest:     c.LastAddRequest,
		LastUpdateRequest:  c.LastUpdateRequest,
		LastFaults:         c.LastFaults,
		WasUnderground:     c.WasUnderground,
		SavedHeadlights:    c.SavedHeadlights,
		SavedInterior:      c.SavedInterior,
		Output:             c.Output,
	})
}

// RestoreSnapshot replaces the controller state with a deep copy of s.
func (c *Controller) RestoreSnapshot(s Snapshot) {
	s = deep.MustCopy(s)
	c.Current = s.Current
	c.Lookahead = s.Lookahead
	c.Position = s.Position
	c.Station = s.Station
	c.Power = s.Power
	c.Authority = s.Authority
	c.AuthorityThreshold = s.AuthorityThreshold
	c.LookaheadExhausted = s.LookaheadExhausted
	c.LastTransitionEdge = s.LastTransitionEdge
	c.TransitionEdgeSeen = s.TransitionEdgeSeen
	c.LastAddRequest = s.LastAddRequest
	c.LastUpdateRequest = s.LastUpdateRequest
	c.LastFaults = s.LastFaults
	c.WasUnderground = s.WasUnderground
	c.SavedHeadlights = s.SavedHeadlights
	c.SavedInterior = s.SavedInterior
	c.Output = s.Output
}
