package book

import (
	"errors"
	"fmt"

	"lob_go/pkg/quant"
)

var (
	// ErrCrossedBook is the sentinel behind CrossedBookError.
	ErrCrossedBook = errors.New("crossed book")

	// ErrInvalidLevel is the sentinel behind InvalidLevelError.
	ErrInvalidLevel = errors.New("invalid level")

	// ErrInvalidSide is the sentinel behind InvalidSideError.
	ErrInvalidSide = errors.New("invalid side")
)

// CrossedBookError reports best bid >= best ask after a committed write.
// The write that caused it is not rolled back.
type CrossedBookError struct {
	Bid quant.Px
	Ask quant.Px
}

func (e *CrossedBookError) Error() string {
	return fmt.Sprintf("crossed book: bid=%d ask=%d", e.Bid, e.Ask)
}

func (e *CrossedBookError) Unwrap() error {
	return ErrCrossedBook
}

// InvalidLevelError reports a slot index outside [0, Depth).
type InvalidLevelError struct {
	Level uint8
	Depth int
}

func (e *InvalidLevelError) Error() string {
	return fmt.Sprintf("invalid level %d (depth %d)", e.Level, e.Depth)
}

func (e *InvalidLevelError) Unwrap() error {
	return ErrInvalidLevel
}

// InvalidSideError reports an update whose side is neither Bid nor Ask.
type InvalidSideError struct {
	Side Side
}

func (e *InvalidSideError) Error() string {
	return fmt.Sprintf("invalid side %d", uint8(e.Side))
}

func (e *InvalidSideError) Unwrap() error {
	return ErrInvalidSide
}
