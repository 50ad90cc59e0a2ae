// track/store.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package track

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openvobc/vobc/log"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// CompiledExt is the extension of compiled layout files: msgpack-encoded
// block tables, compressed with zstd. Compiled layouts skip the JSON
// decode and are the form shipped to vehicles.
const CompiledExt = ".msgpack.zst"

// rawLayout is the storage format for compiled layouts: line name to
// blocks in track order. Indexes are rebuilt at load time.
type rawLayout map[string][]Block

// Store hands out track layouts by name, looking for a compiled layout
// first and falling back to JSON. Loaded layouts are cached; the expiry
// lets a long-running process pick up a replaced layout file eventually.
type Store struct {
	dir   string
	cache *expirable.LRU[string, *Layout]
	lg    *log.Logger
}

func NewStore(dir string, lg *log.Logger) *Store {
	return &Store{
		dir:   dir,
		cache: expirable.NewLRU[string, *Layout](8, nil, 4*time.Hour),
		lg:    lg,
	}
}

// Layout returns the named layout, from cache if possible. The name is a
// file basename without extension: Layout("greenline") looks for
// greenline.msgpack.zst, then greenline.json, in the store directory.
func (s *Store) Layout(name string) (*Layout, error) {
	if l, ok := s.cache.Get(name); ok {
		return l, nil
	}

	var layout *Layout
	compiled := filepath.Join(s.dir, name+CompiledExt)
	if f, err := os.Open(compiled); err == nil {
		defer f.Close()
		layout, err = ReadCompiled(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", compiled, err)
		}
		s.lg.Info("loaded compiled layout", slog.String("path", compiled))
	} else {
		jsonPath := filepath.Join(s.dir, name+".json")
		layout, err = LoadLayoutFile(jsonPath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", jsonPath, err)
		}
		s.lg.Info("loaded layout", slog.String("path", jsonPath))
	}

	s.cache.Add(name, layout)
	return layout, nil
}

// WriteCompiled writes the layout to w in the compiled format.
func WriteCompiled(w io.Writer, t *Layout) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	raw := make(rawLayout)
	for name, line := range t.Lines {
		raw[name] = line.Blocks
	}
	if err := msgpack.NewEncoder(zw).Encode(raw); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode layout: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

// ReadCompiled reads a layout in the compiled format from r.
func ReadCompiled(r io.Reader) (*Layout, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var raw rawLayout
	if err := msgpack.NewDecoder(zr).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode layout: %w", err)
	}

	layout := &Layout{Lines: make(map[string]*Line)}
	for name, blocks := range raw {
		layout.Lines[name] = makeLine(name, blocks)
	}
	return layout, nil
}

// CompileLayoutFile converts a JSON layout file to the compiled format.
func CompileLayoutFile(jsonPath, outPath string) error {
	layout, err := LoadLayoutFile(jsonPath)
	if err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := WriteCompiled(f, layout); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

//go:embed layouts/greenline.json
var defaultLayoutJSON []byte

// DefaultLayout returns the built-in demonstration layout, used when no
// layout path is configured.
func DefaultLayout() (*Layout, error) {
	return LoadLayout(bytes.NewReader(defaultLayoutJSON))
}
