// Package wal is an append-only journal of opaque payloads stored in
// fixed-size segment files.
//
// Segment layout:
//
//	[magic u32][version u32][entry_count u64]          16-byte header, little endian
//	[u32 length][u32 CRC32-IEEE][payload] ...          one frame per entry
//
// entry_count is rewritten on Sync, rotation and Close. After a crash the
// writer trusts the frames, not the count: the torn tail is truncated and the
// count repaired on Open.
package wal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DefaultSegmentSize is the segment size when Config leaves it unset.
const DefaultSegmentSize = 64 << 20

var (
	// ErrCorrupt is returned for segments that cannot be trusted.
	ErrCorrupt = errors.New("wal: corrupt segment")

	// ErrEntryTooLarge is returned when a frame cannot fit in an empty segment.
	ErrEntryTooLarge = errors.New("wal: entry larger than segment")

	// ErrClosed is returned by operations on a closed WAL.
	ErrClosed = errors.New("wal: closed")
)

// Config defines configuration for a WAL instance.
type Config struct {
	Dir         string
	SegmentSize int64
}

// WAL is the segment writer. Appends are buffered until Sync.
type WAL struct {
	mu      sync.Mutex
	cfg     Config
	current *segment
	closed  bool
}

// Open creates dir if needed and resumes after the last valid entry.
func Open(cfg Config) (*WAL, error) {
	if cfg.Dir == "" {
		cfg.Dir = "./wal_data"
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = DefaultSegmentSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}

	paths, err := Segments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	var seg *segment
	if len(paths) == 0 {
		seg, err = createSegment(cfg.Dir, 0)
	} else {
		last := paths[len(paths)-1]
		var index int
		index, err = parseIndex(last)
		if err == nil {
			seg, err = recoverSegment(last, index, cfg.SegmentSize)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}

	slog.Info("WAL opened",
		slog.String("dir", cfg.Dir),
		slog.Int("segment", seg.index),
		slog.Uint64("entries", seg.entries))

	return &WAL{cfg: cfg, current: seg}, nil
}

func parseIndex(path string) (int, error) {
	base := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "segment-"), ".wal")
	return strconv.Atoi(base)
}

// Append buffers one entry, rotating first when it would overflow the segment.
func (w *WAL) Append(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	frame := int64(frameHeaderSize + len(payload))
	if HeaderSize+frame > w.cfg.SegmentSize {
		return fmt.Errorf("%d bytes: %w", len(payload), ErrEntryTooLarge)
	}
	if w.current.size+frame > w.cfg.SegmentSize {
		if err := w.rotate(); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
	}
	return w.current.append(payload)
}

func (w *WAL) rotate() error {
	if err := w.current.close(); err != nil {
		return err
	}
	next, err := createSegment(w.cfg.Dir, w.current.index+1)
	if err != nil {
		return err
	}
	slog.Info("WAL rotated",
		slog.Int("segment", next.index),
		slog.Uint64("prev_entries", w.current.entries))
	w.current = next
	return nil
}

// Sync flushes buffered entries, persists the header count and fsyncs.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	return w.current.sync()
}

// Close syncs and closes the active segment.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.current.close()
}

// Dir returns the segment directory.
func (w *WAL) Dir() string { return w.cfg.Dir }
