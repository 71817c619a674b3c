package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lob_go/internal/domain"
	"lob_go/pkg/quant"

	"github.com/cockroachdb/pebble"
)

const ckptPrefix = "ckpt/"

// ErrNoCheckpoint is returned by Latest when a symbol has none.
var ErrNoCheckpoint = errors.New("no checkpoint")

// Checkpoint pins a book's state hash to a journal position.
type Checkpoint struct {
	Symbol     string
	JournalSeq uint64
	BookSeq    uint64
	Hash       uint64
	Ts         quant.TimeStamp
}

// CheckpointStore keeps checkpoints in pebble, ordered by symbol then journal seq.
type CheckpointStore struct {
	db *pebble.DB
}

func OpenCheckpointStore(dir string) (*CheckpointStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

// key: ckpt/<symbol>/<journalSeq, 20 digits>
func checkpointKey(symbol string, journalSeq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", ckptPrefix, symbol, journalSeq))
}

// binary encoding: [bookSeq:8][hash:8][ts:8]
func encodeCheckpoint(c Checkpoint) []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], c.BookSeq)
	binary.BigEndian.PutUint64(buf[8:16], c.Hash)
	binary.BigEndian.PutUint64(buf[16:24], uint64(c.Ts))
	return buf
}

func decodeCheckpoint(key, val []byte) (Checkpoint, error) {
	if len(val) != 24 {
		return Checkpoint{}, errors.New("invalid checkpoint record length")
	}
	k := strings.TrimPrefix(string(key), ckptPrefix)
	i := strings.LastIndexByte(k, '/')
	if i < 0 {
		return Checkpoint{}, fmt.Errorf("invalid checkpoint key %q", key)
	}
	seq, err := strconv.ParseUint(k[i+1:], 10, 64)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("invalid checkpoint key %q: %w", key, err)
	}
	return Checkpoint{
		Symbol:     k[:i],
		JournalSeq: seq,
		BookSeq:    binary.BigEndian.Uint64(val[0:8]),
		Hash:       binary.BigEndian.Uint64(val[8:16]),
		Ts:         quant.TimeStamp(binary.BigEndian.Uint64(val[16:24])),
	}, nil
}

// checkSymbol rejects symbols that would make one symbol's key range overlap
// another's.
func checkSymbol(symbol string) error {
	if symbol == "" || strings.ContainsRune(symbol, '/') {
		return fmt.Errorf("checkpoint symbol %q: %w", symbol, domain.ErrInvalidSymbol)
	}
	return nil
}

// Put stores c. Checkpoints trail the journal, so NoSync is enough.
func (s *CheckpointStore) Put(c Checkpoint) error {
	if err := checkSymbol(c.Symbol); err != nil {
		return err
	}
	return s.db.Set(checkpointKey(c.Symbol, c.JournalSeq), encodeCheckpoint(c), pebble.NoSync)
}

// Latest returns the checkpoint with the highest journal seq for symbol.
func (s *CheckpointStore) Latest(symbol string) (Checkpoint, error) {
	if err := checkSymbol(symbol); err != nil {
		return Checkpoint{}, err
	}
	iter, err := s.db.NewIter(symbolBounds(symbol))
	if err != nil {
		return Checkpoint{}, err
	}
	defer iter.Close()

	if !iter.Last() {
		return Checkpoint{}, fmt.Errorf("%s: %w", symbol, ErrNoCheckpoint)
	}
	return decodeCheckpoint(iter.Key(), iter.Value())
}

// Scan iterates symbol's checkpoints in journal order.
func (s *CheckpointStore) Scan(symbol string, fn func(Checkpoint) error) error {
	if err := checkSymbol(symbol); err != nil {
		return err
	}
	return s.scan(symbolBounds(symbol), fn)
}

// ScanAll iterates every checkpoint, grouped by symbol.
func (s *CheckpointStore) ScanAll(fn func(Checkpoint) error) error {
	return s.scan(&pebble.IterOptions{
		LowerBound: []byte(ckptPrefix),
		UpperBound: []byte("ckpt0"), // '0' follows '/'
	}, fn)
}

// Sync flushes pending writes.
func (s *CheckpointStore) Sync() error {
	return s.db.Flush()
}

func (s *CheckpointStore) scan(opts *pebble.IterOptions, fn func(Checkpoint) error) error {
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		c, err := decodeCheckpoint(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return iter.Error()
}

func symbolBounds(symbol string) *pebble.IterOptions {
	prefix := ckptPrefix + symbol + "/"
	return &pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(ckptPrefix + symbol + "0"),
	}
}
