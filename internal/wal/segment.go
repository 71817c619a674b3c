package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
)

const (
	// Magic opens every segment file ("SQWL").
	Magic uint32 = 0x5351_574C

	// Version is the segment format version.
	Version uint32 = 1

	// HeaderSize is {magic u32, version u32, entry_count u64}.
	HeaderSize = 16

	// frameHeaderSize is [u32 length][u32 CRC32].
	frameHeaderSize = 8
)

// Header is the fixed segment preamble.
type Header struct {
	Magic      uint32
	Version    uint32
	EntryCount uint64
}

func encodeHeader(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.EntryCount)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	h := Header{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		EntryCount: binary.LittleEndian.Uint64(buf[8:16]),
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("bad magic %#x: %w", h.Magic, ErrCorrupt)
	}
	if h.Version != Version {
		return h, fmt.Errorf("unsupported version %d: %w", h.Version, ErrCorrupt)
	}
	return h, nil
}

func segmentName(index int) string {
	return fmt.Sprintf("segment-%06d.wal", index)
}

// Segments lists segment files in dir in replay order.
func Segments(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "segment-*.wal"))
}

type segment struct {
	file    *os.File
	w       *bufio.Writer
	index   int
	size    int64
	entries uint64
}

func createSegment(dir string, index int) (*segment, error) {
	path := filepath.Join(dir, segmentName(index))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	s := &segment{file: f, index: index, size: HeaderSize}
	if err := s.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(HeaderSize, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	s.w = bufio.NewWriterSize(f, 1<<20)
	return s, nil
}

// recoverSegment reopens the last segment for appending. A torn or corrupt tail
// left by a crash is truncated and the header count repaired.
func recoverSegment(path string, index int, maxSize int64) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("read header %s: %w", path, ErrCorrupt)
	}
	if _, err := decodeHeader(hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	valid, entries, err := scanFrames(bufio.NewReader(f), maxSize, nil)
	if err != nil && !errors.Is(err, errTornFrame) {
		f.Close()
		return nil, err
	}

	end := HeaderSize + valid
	if err := f.Truncate(end); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(end, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	s := &segment{file: f, index: index, size: end, entries: entries}
	if err := s.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	s.w = bufio.NewWriterSize(f, 1<<20)
	return s, nil
}

func (s *segment) append(payload []byte) error {
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:], crc32.ChecksumIEEE(payload))
	if _, err := s.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	s.size += int64(frameHeaderSize + len(payload))
	s.entries++
	return nil
}

func (s *segment) writeHeader() error {
	buf := encodeHeader(Header{Magic: Magic, Version: Version, EntryCount: s.entries})
	_, err := s.file.WriteAt(buf[:], 0)
	return err
}

func (s *segment) sync() error {
	if s.w != nil {
		if err := s.w.Flush(); err != nil {
			return err
		}
	}
	if err := s.writeHeader(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	if err := s.sync(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

var errTornFrame = errors.New("torn frame")

// scanFrames reads frames until EOF. It returns the byte length and count of
// the valid prefix. A short read or checksum mismatch yields errTornFrame.
// fn, if set, sees each payload; the slice is reused between calls.
func scanFrames(r io.Reader, maxSize int64, fn func([]byte) error) (int64, uint64, error) {
	var (
		valid   int64
		entries uint64
		header  [frameHeaderSize]byte
		payload []byte
	)
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				return valid, entries, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return valid, entries, errTornFrame
			}
			return valid, entries, err
		}

		n := binary.LittleEndian.Uint32(header[:4])
		if int64(n) > maxSize {
			return valid, entries, errTornFrame
		}
		if cap(payload) < int(n) {
			payload = make([]byte, n)
		}
		payload = payload[:n]
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				return valid, entries, errTornFrame
			}
			return valid, entries, err
		}
		if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(header[4:]) {
			return valid, entries, errTornFrame
		}

		if fn != nil {
			if err := fn(payload); err != nil {
				return valid, entries, err
			}
		}
		valid += int64(frameHeaderSize) + int64(n)
		entries++
	}
}
