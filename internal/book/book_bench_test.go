package book

import (
	"testing"

	"lob_go/pkg/quant"
)

// BenchmarkOrderBook_Apply measures the hot path. It must report 0 allocs/op.
func BenchmarkOrderBook_Apply(b *testing.B) {
	ob := NewOrderBook("BTC-USD", DefaultDepth)
	updates := randomLadder(1, 4096, DefaultDepth)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = ob.Apply(updates[i&4095])
	}
}

func BenchmarkOrderBook_Analytics(b *testing.B) {
	ob := NewOrderBook("BTC-USD", DefaultDepth)
	for _, u := range randomLadder(2, 4096, DefaultDepth) {
		ob.Apply(u)
	}
	ob.Apply(L2Update{Side: Bid, Level: 0, Price: 9990, Qty: 5})
	ob.Apply(L2Update{Side: Ask, Level: 0, Price: 10020, Qty: 5})

	b.ResetTimer()
	b.ReportAllocs()

	var sink quant.Px
	for i := 0; i < b.N; i++ {
		mp, _ := ob.Microprice()
		sp, _ := ob.SpreadTicks()
		sink += mp + sp
	}
	_ = sink
}

func BenchmarkOrderBook_StateHash(b *testing.B) {
	ob := NewOrderBook("BTC-USD", DefaultDepth)
	for _, u := range randomLadder(3, 4096, DefaultDepth) {
		ob.Apply(u)
	}

	b.ResetTimer()
	b.ReportAllocs()

	var sink uint64
	for i := 0; i < b.N; i++ {
		sink ^= ob.StateHash()
	}
	_ = sink
}
