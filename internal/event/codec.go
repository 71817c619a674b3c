package event

import (
	"errors"
	"fmt"

	"lob_go/internal/book"
	"lob_go/pkg/quant"

	"google.golang.org/protobuf/encoding/protowire"
)

// Journal wire format. Events are encoded as protobuf messages so the log can
// be read by other tooling; field numbers must never be reused.
const (
	fieldType     protowire.Number = 1
	fieldSeq      protowire.Number = 2
	fieldTs       protowire.Number = 3
	fieldSymbol   protowire.Number = 4
	fieldSide     protowire.Number = 5
	fieldPrice    protowire.Number = 6 // sint64
	fieldQty      protowire.Number = 7 // sint64
	fieldLevel    protowire.Number = 8
	fieldExchange protowire.Number = 9
	fieldReason   protowire.Number = 10
)

var (
	// ErrUnknownType is returned when a payload carries an unsupported event type.
	ErrUnknownType = errors.New("unknown event type")
)

// AppendMarshal appends the wire encoding of ev to dst.
func AppendMarshal(dst []byte, ev Event) ([]byte, error) {
	dst = protowire.AppendTag(dst, fieldType, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(ev.GetType()))
	dst = protowire.AppendTag(dst, fieldSeq, protowire.VarintType)
	dst = protowire.AppendVarint(dst, ev.GetSeq())
	dst = protowire.AppendTag(dst, fieldTs, protowire.Fixed64Type)
	dst = protowire.AppendFixed64(dst, uint64(ev.GetTs()))
	dst = protowire.AppendTag(dst, fieldSymbol, protowire.BytesType)
	dst = protowire.AppendString(dst, ev.GetSymbol())

	switch e := ev.(type) {
	case *L2UpdateEvent:
		dst = protowire.AppendTag(dst, fieldSide, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(e.Side))
		dst = protowire.AppendTag(dst, fieldPrice, protowire.VarintType)
		dst = protowire.AppendVarint(dst, protowire.EncodeZigZag(int64(e.Price)))
		dst = protowire.AppendTag(dst, fieldQty, protowire.VarintType)
		dst = protowire.AppendVarint(dst, protowire.EncodeZigZag(int64(e.Qty)))
		dst = protowire.AppendTag(dst, fieldLevel, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(e.Level))
		if e.Exchange != "" {
			dst = protowire.AppendTag(dst, fieldExchange, protowire.BytesType)
			dst = protowire.AppendString(dst, e.Exchange)
		}
	case *ResyncEvent:
		dst = protowire.AppendTag(dst, fieldReason, protowire.BytesType)
		dst = protowire.AppendString(dst, e.Reason)
	default:
		return dst, fmt.Errorf("marshal %v: %w", ev.GetType(), ErrUnknownType)
	}
	return dst, nil
}

// Marshal encodes ev into a new buffer.
func Marshal(ev Event) ([]byte, error) {
	return AppendMarshal(make([]byte, 0, 64), ev)
}

// Unmarshal decodes a journal payload. L2 updates come from the event pool;
// callers on the hot path should hand them back with Release.
func Unmarshal(b []byte) (Event, error) {
	var (
		typ      Type
		base     BaseEvent
		symbol   string
		side     book.Side
		price    quant.Px
		qty      quant.Qty
		level    uint8
		exchange string
		reason   string
	)

	for len(b) > 0 {
		num, wtyp, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case wtyp == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldType:
				typ = Type(v)
			case fieldSeq:
				base.Seq = v
			case fieldSide:
				side = book.Side(v)
			case fieldPrice:
				price = quant.Px(protowire.DecodeZigZag(v))
			case fieldQty:
				qty = quant.Qty(protowire.DecodeZigZag(v))
			case fieldLevel:
				if v > 255 {
					return nil, fmt.Errorf("level %d out of range", v)
				}
				level = uint8(v)
			}
		case wtyp == protowire.Fixed64Type && num == fieldTs:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			base.Ts = quant.TimeStamp(v)
		case wtyp == protowire.BytesType && (num == fieldSymbol || num == fieldExchange || num == fieldReason):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldSymbol:
				symbol = v
			case fieldExchange:
				exchange = v
			case fieldReason:
				reason = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, wtyp, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}

	switch typ {
	case EvL2Update:
		ev := AcquireL2UpdateEvent()
		ev.BaseEvent = base
		ev.Symbol = symbol
		ev.Side = side
		ev.Price = price
		ev.Qty = qty
		ev.Level = level
		ev.Exchange = exchange
		return ev, nil
	case EvResync:
		return &ResyncEvent{BaseEvent: base, Symbol: symbol, Reason: reason}, nil
	default:
		return nil, fmt.Errorf("unmarshal type %d: %w", typ, ErrUnknownType)
	}
}
