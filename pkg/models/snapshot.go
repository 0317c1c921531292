package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTicker is one 24-hour ticker row as reported by the exchange
type RawTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

// Snapshot is one observation of a symbol's derived metrics.
// Rows are insert-only and superseded by newer rows.
type Snapshot struct {
	ID         int64      `json:"id,omitempty" db:"id"`
	SymbolID   int64      `json:"symbol_id" db:"symbol_id"`
	Symbol     string     `json:"symbol,omitempty" db:"symbol"`
	MarketType MarketType `json:"market_type,omitempty" db:"market_type"`
	Timestamp  time.Time  `json:"ts" db:"ts"`

	Price        decimal.Decimal `json:"price" db:"price"`
	OpenInterest float64         `json:"open_interest" db:"open_interest"`
	FundingRate  float64         `json:"funding_rate" db:"funding_rate"`

	Change5m  float64 `json:"change_5m" db:"change_5m"`
	Change15m float64 `json:"change_15m" db:"change_15m"`
	Change1h  float64 `json:"change_1h" db:"change_1h"`
	Change8h  float64 `json:"change_8h" db:"change_8h"`
	Change1d  float64 `json:"change_1d" db:"change_1d"`

	OIChange5m  float64 `json:"oi_change_5m" db:"oi_change_5m"`
	OIChange15m float64 `json:"oi_change_15m" db:"oi_change_15m"`
	OIChange1h  float64 `json:"oi_change_1h" db:"oi_change_1h"`
	OIChange8h  float64 `json:"oi_change_8h" db:"oi_change_8h"`
	OIChange1d  float64 `json:"oi_change_1d" db:"oi_change_1d"`

	Volatility5m  float64 `json:"volatility_5m" db:"volatility_5m"`
	Volatility15m float64 `json:"volatility_15m" db:"volatility_15m"`
	Volatility1h  float64 `json:"volatility_1h" db:"volatility_1h"`

	Ticks5m  int64 `json:"ticks_5m" db:"ticks_5m"`
	Ticks15m int64 `json:"ticks_15m" db:"ticks_15m"`
	Ticks1h  int64 `json:"ticks_1h" db:"ticks_1h"`

	Vdelta5m  float64 `json:"vdelta_5m" db:"vdelta_5m"`
	Vdelta15m float64 `json:"vdelta_15m" db:"vdelta_15m"`
	Vdelta1h  float64 `json:"vdelta_1h" db:"vdelta_1h"`
	Vdelta8h  float64 `json:"vdelta_8h" db:"vdelta_8h"`
	Vdelta1d  float64 `json:"vdelta_1d" db:"vdelta_1d"`

	Volume5m  float64 `json:"volume_5m" db:"volume_5m"`
	Volume15m float64 `json:"volume_15m" db:"volume_15m"`
	Volume1h  float64 `json:"volume_1h" db:"volume_1h"`
	Volume8h  float64 `json:"volume_8h" db:"volume_8h"`
	Volume1d  float64 `json:"volume_1d" db:"volume_1d"`
}

// Page selects a window of a timestamp-descending result set
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Normalize clamps the page to valid bounds
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the row offset of the page
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Number - 1) * n.Size
}

// IngestCycle summarises one ingestion pass over a market
type IngestCycle struct {
	Market    MarketType    `json:"market"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Tickers   int           `json:"tickers"`
	Stored    int           `json:"stored"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}
