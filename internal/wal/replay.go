package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// Replay calls fn for every entry in dir, oldest first, and returns the number
// of entries delivered. The payload slice is only valid during the call.
//
// A torn tail in the newest segment ends replay cleanly: those bytes were
// never synced. Damage anywhere else returns ErrCorrupt.
func Replay(dir string, fn func(payload []byte) error) (uint64, error) {
	paths, err := Segments(dir)
	if err != nil {
		return 0, err
	}

	var total uint64
	for i, path := range paths {
		last := i == len(paths)-1
		n, err := replaySegment(path, last, fn)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func replaySegment(path string, last bool, fn func([]byte) error) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	r := bufio.NewReaderSize(f, 1<<20)
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("%s: short header: %w", path, ErrCorrupt)
	}
	h, err := decodeHeader(hdr[:])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	_, entries, err := scanFrames(r, info.Size(), fn)
	if errors.Is(err, errTornFrame) {
		if last {
			return entries, nil
		}
		return entries, fmt.Errorf("%s: damaged frame after %d entries: %w", path, entries, ErrCorrupt)
	}
	if err != nil {
		return entries, err
	}
	if !last && entries < h.EntryCount {
		return entries, fmt.Errorf("%s: %d of %d entries: %w", path, entries, h.EntryCount, ErrCorrupt)
	}
	return entries, nil
}
