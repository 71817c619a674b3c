package book

import "lob_go/pkg/quant"

// SideBook is a fixed-capacity, index-addressed array of levels for one side.
// Writes are positional: Set never shifts or re-sorts other slots, so the feed
// must present slot-consistent updates (bids descending, asks ascending).
type SideBook struct {
	levels []Level
	n      int // populated depth
}

// NewSideBook allocates a side with room for depth levels.
// All memory is allocated here; Set and Clear never allocate.
func NewSideBook(depth int) SideBook {
	return SideBook{levels: make([]Level, depth)}
}

// Set overwrites slot level. The caller validates level < Cap().
func (s *SideBook) Set(level int, px quant.Px, qty quant.Qty) {
	if level >= s.n {
		// Slots between the old populated depth and level may hold data from
		// before a Clear; they must not resurface.
		for i := s.n; i < level; i++ {
			s.levels[i] = Level{}
		}
		s.n = level + 1
	}
	s.levels[level] = Level{Px: px, Qty: qty}
}

// Best returns slot 0 when it is populated with non-zero quantity.
func (s *SideBook) Best() (Level, bool) {
	if s.n == 0 || s.levels[0].Qty == quant.QtyZero {
		return Level{}, false
	}
	return s.levels[0], true
}

// TotalQty sums quantity across the first depth populated slots.
func (s *SideBook) TotalQty(depth int) quant.Qty {
	if depth > s.n {
		depth = s.n
	}
	var total quant.Qty
	for i := 0; i < depth; i++ {
		total += s.levels[i].Qty
	}
	return total
}

// Clear hides every slot. Stale contents stay in memory but are unreachable.
func (s *SideBook) Clear() {
	s.n = 0
}

// Len returns the populated depth.
func (s *SideBook) Len() int { return s.n }

// Cap returns the fixed capacity.
func (s *SideBook) Cap() int { return len(s.levels) }

// At returns slot i. ok is false past the populated depth.
func (s *SideBook) At(i int) (Level, bool) {
	if i < 0 || i >= s.n {
		return Level{}, false
	}
	return s.levels[i], true
}
