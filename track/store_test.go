// track/store_test.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package track

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCompiledRoundTrip(t *testing.T) {
	layout := loadTestLayout(t)

	var buf bytes.Buffer
	if err := WriteCompiled(&buf, layout); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	got, err := ReadCompiled(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}

	orig, _ := layout.Line("test")
	line, err := got.Line("test")
	if err != nil {
		t.Fatalf("line missing after round trip: %v", err)
	}

	if len(line.Blocks) != len(orig.Blocks) {
		t.Fatalf("got %d blocks, expected %d", len(line.Blocks), len(orig.Blocks))
	}
	for i, b := range line.Blocks {
		ob := orig.Blocks[i]
		if b.Number != ob.Number || b.Length != ob.Length || b.SpeedLimit != ob.SpeedLimit ||
			b.Underground != ob.Underground {
			t.Errorf("block %d: got %+v, expected %+v", i, b, ob)
		}
		if (b.Station == nil) != (ob.Station == nil) {
			t.Errorf("block %d: station presence mismatch", i)
		} else if b.Station != nil && *b.Station != *ob.Station {
			t.Errorf("block %d: got station %+v, expected %+v", i, *b.Station, *ob.Station)
		}
	}

	// Indexes must be rebuilt, not just the block table.
	if _, ok := line.Block(12); !ok {
		t.Errorf("block lookup broken after round trip")
	}
	if st, ok := line.StationByID(1); !ok || st.Name != "Midtown" {
		t.Errorf("station lookup broken after round trip: %+v, %v", st, ok)
	}
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "test.json"), []byte(orderTestLayout), 0o644); err != nil {
		t.Fatalf("%v", err)
	}

	s := NewStore(dir, nil)
	layout, err := s.Layout("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := layout.Line("test"); err != nil {
		t.Errorf("line missing from store-loaded layout: %v", err)
	}

	// Second lookup must come from the cache.
	again, err := s.Layout("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != layout {
		t.Errorf("cached layout not reused")
	}

	if _, err := s.Layout("nonexistent"); err == nil {
		t.Errorf("no error for missing layout")
	}
}

func TestStorePrefersCompiled(t *testing.T) {
	dir := t.TempDir()

	// Write a compiled layout and a JSON decoy with a different line name;
	// the store must pick the compiled one.
	layout := loadTestLayout(t)
	f, err := os.Create(filepath.Join(dir, "route"+CompiledExt))
	if err != nil {
		t.Fatalf("%v", err)
	}
	if err := WriteCompiled(f, layout); err != nil {
		t.Fatalf("%v", err)
	}
	f.Close()

	decoy := strings.Replace(orderTestLayout, `"test"`, `"decoy"`, 1)
	if err := os.WriteFile(filepath.Join(dir, "route.json"), []byte(decoy), 0o644); err != nil {
		t.Fatalf("%v", err)
	}

	s := NewStore(dir, nil)
	got, err := s.Layout("route")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := got.Line("test"); err != nil {
		t.Errorf("compiled layout was not preferred: %v", err)
	}
}

func TestDefaultLayout(t *testing.T) {
	layout, err := DefaultLayout()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line, err := layout.Line("green")
	if err != nil {
		t.Fatalf("default layout has no green line: %v", err)
	}
	if len(line.Blocks) == 0 {
		t.Fatalf("green line has no blocks")
	}

	// The demonstration line needs at least one station and one
	// underground section for the output side effects to exercise.
	stations, underground := 0, 0
	for _, b := range line.Blocks {
		if b.Station != nil {
			stations++
		}
		if b.Underground {
			underground++
		}
	}
	if stations == 0 {
		t.Errorf("green line has no stations")
	}
	if underground == 0 {
		t.Errorf("green line has no underground blocks")
	}
}
