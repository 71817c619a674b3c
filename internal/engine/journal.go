package engine

import (
	"fmt"

	"lob_go/internal/event"
	"lob_go/internal/wal"
)

// Journal persists accepted events before they touch a book.
type Journal interface {
	Append(ev event.Event) error
	Sync() error
	Close() error
}

// WALJournal encodes events with the event codec into WAL frames.
type WALJournal struct {
	w   *wal.WAL
	buf []byte
}

// OpenJournal opens (or creates) the WAL in dir.
func OpenJournal(dir string, segmentSize int64) (*WALJournal, error) {
	w, err := wal.Open(wal.Config{Dir: dir, SegmentSize: segmentSize})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &WALJournal{w: w, buf: make([]byte, 0, 128)}, nil
}

// Append is called only from the sequencer goroutine; buf is reused.
func (j *WALJournal) Append(ev event.Event) error {
	var err error
	j.buf, err = event.AppendMarshal(j.buf[:0], ev)
	if err != nil {
		return err
	}
	return j.w.Append(j.buf)
}

func (j *WALJournal) Sync() error  { return j.w.Sync() }
func (j *WALJournal) Close() error { return j.w.Close() }
func (j *WALJournal) Dir() string  { return j.w.Dir() }
