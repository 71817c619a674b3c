package event

import (
	"lob_go/internal/book"
	"lob_go/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvL2Update Type = iota + 1
	EvResync
)

// String returns the string representation of Type
func (t Type) String() string {
	switch t {
	case EvL2Update:
		return "L2_UPDATE"
	case EvResync:
		return "RESYNC"
	default:
		return "UNKNOWN"
	}
}

// Event is the interface for all sequencer events.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
	GetSymbol() string
}

// BaseEvent contains common fields for all events.
// Seq is the journal sequence, stamped by the sequencer on acceptance.
type BaseEvent struct {
	Seq uint64          `json:"seq"`
	Ts  quant.TimeStamp `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }

// SetSeq stamps the journal sequence.
func (e *BaseEvent) SetSeq(seq uint64) { e.Seq = seq }

// L2UpdateEvent carries one positional depth update from a feed adapter.
type L2UpdateEvent struct {
	BaseEvent
	Symbol   string    `json:"symbol"`
	Side     book.Side `json:"side"`
	Price    quant.Px  `json:"price"`
	Qty      quant.Qty `json:"qty"`
	Level    uint8     `json:"level"`
	Exchange string    `json:"exchange"`
}

func (e *L2UpdateEvent) GetType() Type     { return EvL2Update }
func (e *L2UpdateEvent) GetSymbol() string { return e.Symbol }

// Update converts the event into the book's input shape.
func (e *L2UpdateEvent) Update() book.L2Update {
	return book.L2Update{
		Ts:     e.Ts,
		Symbol: e.Symbol,
		Side:   e.Side,
		Price:  e.Price,
		Qty:    e.Qty,
		Level:  e.Level,
	}
}

// Resync reasons.
const (
	ReasonConnect  = "connect"
	ReasonGap      = "gap"
	ReasonCrossed  = "crossed"
	ReasonDropped  = "dropped"
	ReasonSnapshot = "snapshot"
)

// ResyncEvent clears a symbol's book ahead of a fresh snapshot.
type ResyncEvent struct {
	BaseEvent
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

func (e *ResyncEvent) GetType() Type     { return EvResync }
func (e *ResyncEvent) GetSymbol() string { return e.Symbol }
