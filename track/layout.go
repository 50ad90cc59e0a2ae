// track/layout.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package track

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/openvobc/vobc/math"
	"github.com/openvobc/vobc/util"

	"github.com/iancoleman/orderedmap"
)

var (
	ErrNoSuchLine    = errors.New("No such line in the track layout")
	ErrMalformedFile = errors.New("Malformed track layout file")
)

// Line holds one line's blocks in track order, which is the order they
// appear in the layout file and is not necessarily numeric order.
type Line struct {
	Name   string
	Blocks []Block

	byNumber map[int]int // block number -> index in Blocks
	stations map[int]int // station id -> index in Blocks
}

func makeLine(name string, blocks []Block) *Line {
	l := &Line{
		Name:     name,
		Blocks:   blocks,
		byNumber: make(map[int]int),
		stations: make(map[int]int),
	}
	for i, b := range blocks {
		l.byNumber[b.Number] = i
		if b.Station != nil {
			l.stations[b.Station.ID] = i
		}
	}
	return l
}

// Block returns the static attributes of the numbered block.
func (l *Line) Block(number int) (Block, bool) {
	i, ok := l.byNumber[number]
	if !ok {
		return Block{}, false
	}
	return l.Blocks[i], true
}

// StationByID returns the station with the given id, if the line has one.
func (l *Line) StationByID(id int) (Station, bool) {
	i, ok := l.stations[id]
	if !ok || l.Blocks[i].Station == nil {
		return Station{}, false
	}
	return *l.Blocks[i].Station, true
}

// Successor returns the block that follows the numbered block in track
// order; it reports false at the end of the line or for an unknown block.
func (l *Line) Successor(number int) (Block, bool) {
	i, ok := l.byNumber[number]
	if !ok || i+1 >= len(l.Blocks) {
		return Block{}, false
	}
	return l.Blocks[i+1], true
}

// OrderIndex returns the numbered block's index in track order.
func (l *Line) OrderIndex(number int) (int, bool) {
	i, ok := l.byNumber[number]
	return i, ok
}

// First returns the first block of the line in track order.
func (l *Line) First() (Block, bool) {
	if len(l.Blocks) == 0 {
		return Block{}, false
	}
	return l.Blocks[0], true
}

// Layout is a set of lines keyed by name ("green", "red", ...).
type Layout struct {
	Lines map[string]*Line
}

func (t *Layout) Line(name string) (*Line, error) {
	l, ok := t.Lines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchLine, name)
	}
	return l, nil
}

// LineNames returns the layout's line names, sorted.
func (t *Layout) LineNames() []string {
	return util.SortedMapKeys(t.Lines)
}

// The wire representation of a single block in a layout file. Speeds are
// given in km/h, matching the source documents layouts are derived from.
type blockJSON struct {
	LengthM       float32      `json:"length_m"`
	SpeedLimitKmh float32      `json:"speed_limit_kmh"`
	Underground   bool         `json:"underground,omitempty"`
	Station       *stationJSON `json:"station,omitempty"`
}

type stationJSON struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Side string `json:"platform_side"`
}

// LoadLayout reads a JSON track layout. The "blocks" object maps block
// numbers to their attributes; the order of its keys defines track order,
// so decoding goes through an order-preserving map rather than the stock
// map[string] path.
func LoadLayout(r io.Reader) (*Layout, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	// A duplicated block number would silently shadow the earlier
	// definition, so reject the file outright.
	if dups := util.FindDuplicateJSONKeys(data); len(dups) > 0 {
		d := dups[0]
		return nil, fmt.Errorf("%w: duplicate key %q under %q", ErrMalformedFile, d.Key, d.Path)
	}

	var root orderedmap.OrderedMap
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}

	linesValue, ok := root.Get("lines")
	if !ok {
		return nil, fmt.Errorf("%w: missing \"lines\" object", ErrMalformedFile)
	}
	lines, ok := linesValue.(orderedmap.OrderedMap)
	if !ok {
		return nil, fmt.Errorf("%w: \"lines\" is not an object", ErrMalformedFile)
	}

	layout := &Layout{Lines: make(map[string]*Line)}
	for _, lineName := range lines.Keys() {
		lineValue, _ := lines.Get(lineName)
		lineMap, ok := lineValue.(orderedmap.OrderedMap)
		if !ok {
			return nil, fmt.Errorf("%w: line %q is not an object", ErrMalformedFile, lineName)
		}

		blocksValue, ok := lineMap.Get("blocks")
		if !ok {
			return nil, fmt.Errorf("%w: line %q has no \"blocks\"", ErrMalformedFile, lineName)
		}
		blocksMap, ok := blocksValue.(orderedmap.OrderedMap)
		if !ok {
			return nil, fmt.Errorf("%w: line %q \"blocks\" is not an object", ErrMalformedFile, lineName)
		}

		var blocks []Block
		for _, numStr := range blocksMap.Keys() {
			number, err := strconv.Atoi(numStr)
			if err != nil {
				return nil, fmt.Errorf("%w: line %q block %q: not a block number", ErrMalformedFile,
					lineName, numStr)
			}

			// Individual blocks don't care about key order, so round-trip
			// through encoding/json to decode their fields.
			blockValue, _ := blocksMap.Get(numStr)
			enc, err := json.Marshal(blockValue)
			if err != nil {
				return nil, fmt.Errorf("%w: line %q block %d: %v", ErrMalformedFile, lineName, number, err)
			}
			var bj blockJSON
			if err := json.Unmarshal(enc, &bj); err != nil {
				return nil, fmt.Errorf("%w: line %q block %d: %v", ErrMalformedFile, lineName, number, err)
			}

			b := Block{
				Number:      number,
				Length:      bj.LengthM,
				SpeedLimit:  math.KmhToMs(bj.SpeedLimitKmh),
				Underground: bj.Underground,
			}
			if bj.Station != nil {
				var side PlatformSide
				if err := side.UnmarshalJSON([]byte(strconv.Quote(bj.Station.Side))); err != nil {
					return nil, fmt.Errorf("%w: line %q block %d: %v", ErrMalformedFile, lineName, number, err)
				}
				b.Station = &Station{ID: bj.Station.ID, Name: bj.Station.Name, Side: side}
			}
			blocks = append(blocks, b)
		}

		layout.Lines[lineName] = makeLine(lineName, blocks)
	}

	return layout, nil
}

func LoadLayoutFile(path string) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadLayout(f)
}

// Validate accumulates semantic problems with the layout: duplicate block
// numbers, nonpositive lengths or speed limits, and duplicate station ids
// within a line.
func (t *Layout) Validate(e *util.ErrorLogger) {
	defer e.CheckDepth(e.CurrentDepth())

	if len(t.Lines) == 0 {
		e.ErrorString("layout has no lines")
		return
	}

	for _, name := range t.LineNames() {
		e.Push("line " + name)
		line := t.Lines[name]

		if len(line.Blocks) == 0 {
			e.ErrorString("line has no blocks")
		}

		seen := make(map[int]bool)
		stationIDs := make(map[int]string)
		for _, b := range line.Blocks {
			e.Push("block " + strconv.Itoa(b.Number))
			if seen[b.Number] {
				e.ErrorString("duplicate block number")
			}
			seen[b.Number] = true

			if b.Length <= 0 {
				e.ErrorString("block length %g must be positive", b.Length)
			}
			if b.SpeedLimit <= 0 {
				e.ErrorString("speed limit %g must be positive", b.SpeedLimit)
			}
			if b.Station != nil {
				if prev, ok := stationIDs[b.Station.ID]; ok {
					e.ErrorString("station id %d already used by %q", b.Station.ID, prev)
				}
				stationIDs[b.Station.ID] = b.Station.Name
				if b.Station.Name == "" {
					e.ErrorString("station has no name")
				}
			}
			e.Pop()
		}
		e.Pop()
	}
}
