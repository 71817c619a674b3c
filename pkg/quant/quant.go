// Package quant holds the fixed-point value types used for every price and
// quantity in the system. Money never passes through float64.
package quant

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Px is a price expressed as a whole number of ticks.
type Px int64

// Qty is a quantity expressed as a whole number of lots.
type Qty int64

// TimeStamp is nanoseconds since the Unix epoch.
type TimeStamp uint64

// QtyZero marks a removed level.
const QtyZero Qty = 0

var (
	// ErrPrecision is returned when a value carries more decimals than the scale allows.
	ErrPrecision = errors.New("value exceeds scale precision")

	// ErrOverflow is returned when a scaled value does not fit in int64.
	ErrOverflow = errors.New("value overflows int64 ticks")

	maxTicks = decimal.NewFromInt(math.MaxInt64)
	minTicks = decimal.NewFromInt(math.MinInt64)
)

func (p Px) String() string  { return strconv.FormatInt(int64(p), 10) }
func (q Qty) String() string { return strconv.FormatInt(int64(q), 10) }

// IsZero reports whether the quantity is the removal sentinel.
func (q Qty) IsZero() bool { return q == QtyZero }

// Now returns the current wall clock as a TimeStamp.
func Now() TimeStamp {
	return TimeStamp(time.Now().UnixNano())
}

// FromUnixMilli converts venue millisecond timestamps.
func FromUnixMilli(ms int64) TimeStamp {
	if ms <= 0 {
		return 0
	}
	return TimeStamp(ms) * TimeStamp(time.Millisecond)
}

// Time converts the timestamp back to time.Time.
func (t TimeStamp) Time() time.Time {
	return time.Unix(0, int64(t))
}

// Scale is the number of decimal places one tick represents.
// A USD price quoted in cents uses Scale(2): 99.50 -> 9950 ticks.
type Scale int32

// Ticks converts an exact decimal into ticks. Values with more decimals than
// the scale are rejected rather than rounded.
func (s Scale) Ticks(d decimal.Decimal) (int64, error) {
	shifted := d.Shift(int32(s))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrPrecision
	}
	if shifted.GreaterThan(maxTicks) || shifted.LessThan(minTicks) {
		return 0, ErrOverflow
	}
	return shifted.IntPart(), nil
}

// Px converts a decimal price into ticks.
func (s Scale) Px(d decimal.Decimal) (Px, error) {
	t, err := s.Ticks(d)
	return Px(t), err
}

// Qty converts a decimal quantity into lots.
func (s Scale) Qty(d decimal.Decimal) (Qty, error) {
	t, err := s.Ticks(d)
	return Qty(t), err
}

// ParsePx parses a venue price string such as "99.50".
func (s Scale) ParsePx(str string) (Px, error) {
	d, err := decimal.NewFromString(str)
	if err != nil {
		return 0, err
	}
	return s.Px(d)
}

// ParseQty parses a venue quantity string.
func (s Scale) ParseQty(str string) (Qty, error) {
	d, err := decimal.NewFromString(str)
	if err != nil {
		return 0, err
	}
	return s.Qty(d)
}

// Decimal renders ticks back into a decimal for display and outbound messages.
func (s Scale) Decimal(ticks int64) decimal.Decimal {
	return decimal.New(ticks, -int32(s))
}
