package book

// StateHash folds every populated slot into a 64-bit polynomial hash,
// h = h*31 + v with wrapping arithmetic: bids first, then asks, price before
// quantity. Values enter as the raw bit pattern of the int64, so a book
// rebuilt from the journal hashes identically to the live one.
func (b *OrderBook) StateHash() uint64 {
	var h uint64
	h = foldSide(h, &b.bids)
	h = foldSide(h, &b.asks)
	return h
}

func foldSide(h uint64, s *SideBook) uint64 {
	for i := 0; i < s.n; i++ {
		h = h*31 + uint64(s.levels[i].Px)
		h = h*31 + uint64(s.levels[i].Qty)
	}
	return h
}
