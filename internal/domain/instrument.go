package domain

import (
	"time"

	"lob_go/pkg/quant"
)

// Instrument is a tracked book and how its venue prices map to ticks.
type Instrument struct {
	Symbol      string    `gorm:"primaryKey" json:"symbol"`
	Exchange    string    `gorm:"index" json:"exchange"`
	VenueSymbol string    `json:"venue_symbol"`
	PriceScale  int32     `json:"price_scale"`
	QtyScale    int32     `json:"qty_scale"`
	Depth       int       `json:"depth"`
	IsActive    bool      `gorm:"index" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Scales returns the price and quantity scales.
func (i Instrument) Scales() (px, qty quant.Scale) {
	return quant.Scale(i.PriceScale), quant.Scale(i.QtyScale)
}
