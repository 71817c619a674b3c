package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func openWAL(t *testing.T, dir string, segSize int64) *WAL {
	t.Helper()
	w, err := Open(Config{Dir: dir, SegmentSize: segSize})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	return w
}

func collect(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	if _, err := Replay(dir, func(p []byte) error {
		out = append(out, string(p))
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	return out
}

func TestWAL_AppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w := openWAL(t, dir, 0)

	const n = 100
	for i := 0; i < n; i++ {
		if err := w.Append([]byte(fmt.Sprintf("update-%d", i))); err != nil {
			t.Fatalf("append: %v", err)
		}
		if i%20 == 0 {
			_ = w.Sync()
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := collect(t, dir)
	if len(got) != n {
		t.Fatalf("expected %d records, got %d", n, len(got))
	}
	for i, p := range got {
		if want := fmt.Sprintf("update-%d", i); p != want {
			t.Fatalf("record %d = %q, want %q", i, p, want)
		}
	}
}

func TestWAL_HeaderLayout(t *testing.T) {
	dir := t.TempDir()
	w := openWAL(t, dir, 0)
	w.Append([]byte("a"))
	w.Append([]byte("bc"))
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, segmentName(0)))
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	if got := binary.LittleEndian.Uint32(raw[0:4]); got != 0x5351574C {
		t.Errorf("magic = %#x", got)
	}
	if got := binary.LittleEndian.Uint32(raw[4:8]); got != Version {
		t.Errorf("version = %d", got)
	}
	if got := binary.LittleEndian.Uint64(raw[8:16]); got != 2 {
		t.Errorf("entry_count = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(raw[16:20]); got != 1 {
		t.Errorf("first frame length = %d, want 1", got)
	}
	if len(raw) != HeaderSize+frameHeaderSize*2+3 {
		t.Errorf("segment size = %d", len(raw))
	}
}

func TestWAL_Rotation(t *testing.T) {
	dir := t.TempDir()
	// Header + three 8+8 byte frames fit; the fourth rotates.
	w := openWAL(t, dir, HeaderSize+3*16)

	for i := 0; i < 10; i++ {
		if err := w.Append([]byte(fmt.Sprintf("entry-%02d", i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	paths, _ := Segments(dir)
	if len(paths) != 4 {
		t.Fatalf("expected 4 segments, found %d", len(paths))
	}
	got := collect(t, dir)
	if len(got) != 10 || got[9] != "entry-09" {
		t.Errorf("unexpected replay after rotation: %v", got)
	}
}

func TestWAL_EntryTooLarge(t *testing.T) {
	w := openWAL(t, t.TempDir(), 64)
	defer w.Close()

	err := w.Append(make([]byte, 64))
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Errorf("Expected ErrEntryTooLarge, got %v", err)
	}
}

func TestWAL_ReopenContinues(t *testing.T) {
	dir := t.TempDir()
	w := openWAL(t, dir, 0)
	w.Append([]byte("one"))
	w.Append([]byte("two"))
	w.Close()

	w = openWAL(t, dir, 0)
	w.Append([]byte("three"))
	w.Close()

	got := collect(t, dir)
	if len(got) != 3 || got[2] != "three" {
		t.Errorf("unexpected entries after reopen: %v", got)
	}
}

func TestWAL_TornTailRecovered(t *testing.T) {
	dir := t.TempDir()
	w := openWAL(t, dir, 0)
	w.Append([]byte("kept-1"))
	w.Append([]byte("kept-2"))
	w.Close()

	// Simulate a crash mid-write: a frame header promising more bytes than exist.
	path := filepath.Join(dir, segmentName(0))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	f.Write([]byte{100, 0, 0, 0, 1, 2, 3, 4, 'x'})
	f.Close()

	if got := collect(t, dir); len(got) != 2 {
		t.Fatalf("replay should stop at the torn tail, got %v", got)
	}

	w = openWAL(t, dir, 0)
	w.Append([]byte("after-crash"))
	w.Close()

	got := collect(t, dir)
	if len(got) != 3 || got[2] != "after-crash" {
		t.Errorf("torn tail should be truncated on open, got %v", got)
	}
}

func TestWAL_CorruptSealedSegment(t *testing.T) {
	dir := t.TempDir()
	w := openWAL(t, dir, HeaderSize+2*16)
	for i := 0; i < 4; i++ {
		w.Append([]byte(fmt.Sprintf("entry-%02d", i)))
	}
	w.Close()

	// Flip a payload byte inside the first (sealed) segment.
	path := filepath.Join(dir, segmentName(0))
	raw, _ := os.ReadFile(path)
	raw[HeaderSize+frameHeaderSize] ^= 0xFF
	os.WriteFile(path, raw, 0o644)

	_, err := Replay(dir, func([]byte) error { return nil })
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
}

func TestWAL_BadMagic(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, segmentName(0)), make([]byte, HeaderSize), 0o644)

	if _, err := Replay(dir, func([]byte) error { return nil }); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Replay: expected ErrCorrupt, got %v", err)
	}
	if _, err := Open(Config{Dir: dir}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Open: expected ErrCorrupt, got %v", err)
	}
}

func TestWAL_ReplayCallbackError(t *testing.T) {
	dir := t.TempDir()
	w := openWAL(t, dir, 0)
	w.Append([]byte("x"))
	w.Close()

	stop := errors.New("stop")
	if _, err := Replay(dir, func([]byte) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("Expected callback error, got %v", err)
	}
}

func TestWAL_AppendAfterClose(t *testing.T) {
	w := openWAL(t, t.TempDir(), 0)
	w.Close()
	if err := w.Append([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
