// track/track.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package track provides the static track layout database: named lines,
// their blocks in track order, and per-block physical attributes. It is
// read-only at runtime; controllers copy what they need when a block
// enters their lookahead.
package track

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

type PlatformSide int

const (
	PlatformLeft PlatformSide = iota
	PlatformRight
	PlatformBoth
)

func (p PlatformSide) String() string {
	switch p {
	case PlatformLeft:
		return "left"
	case PlatformRight:
		return "right"
	case PlatformBoth:
		return "both"
	default:
		return fmt.Sprintf("platform side %d", int(p))
	}
}

func (p PlatformSide) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *PlatformSide) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "left":
		*p = PlatformLeft
	case "right":
		*p = PlatformRight
	case "both":
		*p = PlatformBoth
	default:
		return fmt.Errorf("%s: unknown platform side", s)
	}
	return nil
}

// Station describes a passenger station attached to a block.
type Station struct {
	ID   int
	Name string
	Side PlatformSide
}

func (s Station) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("id", s.ID),
		slog.String("name", s.Name),
		slog.String("side", s.Side.String()))
}

// Block carries the static attributes of one track block. Length is in
// meters and SpeedLimit in m/s; layout files carry km/h and are converted
// at load time. Station is nil for blocks without a platform.
type Block struct {
	Number      int
	Length      float32
	SpeedLimit  float32
	Underground bool
	Station     *Station
}

func (b Block) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("number", b.Number),
		slog.Float64("length_m", float64(b.Length)),
		slog.Float64("speed_limit_ms", float64(b.SpeedLimit)),
	}
	if b.Underground {
		attrs = append(attrs, slog.Bool("underground", true))
	}
	if b.Station != nil {
		attrs = append(attrs, slog.Any("station", *b.Station))
	}
	return slog.GroupValue(attrs...)
}
