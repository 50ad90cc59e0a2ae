// sim/save.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// saveVersion is bumped whenever the serialized form changes
// incompatibly; old save files are refused rather than misread.
const saveVersion = 1

var ErrUnsupportedSaveVersion = errors.New("Unsupported save file version")

type savedSim struct {
	Version int
	Sim     *Sim
}

// WriteSave writes a snapshot of the simulation to w, msgpack-encoded
// and zstd-compressed. Runtime wiring (loggers, the event stream, the
// track layout) is not saved; Activate restores it on load.
func WriteSave(w io.Writer, s *Sim) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	snap := s.GetSerializeSim()
	if err := msgpack.NewEncoder(zw).Encode(savedSim{Version: saveVersion, Sim: &snap}); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode sim: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

// ReadSave reads a simulation snapshot from r. The caller must call
// Activate on the result before running it.
func ReadSave(r io.Reader) (*Sim, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var sv savedSim
	if err := msgpack.NewDecoder(zr).Decode(&sv); err != nil {
		return nil, fmt.Errorf("failed to decode sim: %w", err)
	}
	if sv.Version != saveVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSaveVersion, sv.Version)
	}
	return sv.Sim, nil
}

// SaveFile writes the simulation snapshot to the named file.
func SaveFile(path string, s *Sim) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSave(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a simulation snapshot from the named file.
func LoadFile(path string) (*Sim, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadSave(f)
}
