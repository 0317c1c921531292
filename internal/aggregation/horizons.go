// Package aggregation derives multi-horizon screener metrics from a single
// 24-hour ticker.
//
// Sub-day values are a linear decomposition of the 24h window: every horizon
// receives change24h/divisor and volume24h/divisor as if activity were spread
// evenly over the day. They are approximations, not measurements, and under-
// or overstate short-horizon activity whenever trading is uneven. Tick counts
// are likewise a volume proxy, not a trade count.
package aggregation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/screener-back/pkg/models"
)

// Horizon is a fixed lookback window
type Horizon string

const (
	Horizon5m  Horizon = "5m"
	Horizon15m Horizon = "15m"
	Horizon1h  Horizon = "1h"
	Horizon8h  Horizon = "8h"
	Horizon1d  Horizon = "1d"
)

// Horizons lists every horizon, shortest first
var Horizons = []Horizon{Horizon5m, Horizon15m, Horizon1h, Horizon8h, Horizon1d}

// Divisor returns how many horizon-sized slices fit in 24 hours
func (h Horizon) Divisor() float64 {
	switch h {
	case Horizon5m:
		return 288
	case Horizon15m:
		return 96
	case Horizon1h:
		return 24
	case Horizon8h:
		return 3
	default:
		return 1
	}
}

// TickSize is the volume represented by one synthetic tick
const TickSize = 1000.0

// Ticker is a parsed exchange ticker
type Ticker struct {
	Symbol        string
	Price         decimal.Decimal
	ChangePercent float64
	Volume        float64 // quote-currency volume over 24h
}

// ParseTicker converts the exchange's string fields. Missing fields read as
// zero; malformed ones are rejected.
func ParseTicker(raw models.RawTicker) (Ticker, error) {
	t := Ticker{Symbol: raw.Symbol}
	if t.Symbol == "" {
		return t, fmt.Errorf("ticker has no symbol")
	}

	price := strings.TrimSpace(raw.LastPrice)
	if price == "" {
		price = "0"
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return t, fmt.Errorf("invalid last price %q: %w", raw.LastPrice, err)
	}
	t.Price = p

	if t.ChangePercent, err = parseOptionalFloat(raw.PriceChangePercent); err != nil {
		return t, fmt.Errorf("invalid price change percent %q: %w", raw.PriceChangePercent, err)
	}

	volume := raw.QuoteVolume
	if strings.TrimSpace(volume) == "" {
		volume = raw.Volume
	}
	if t.Volume, err = parseOptionalFloat(volume); err != nil {
		return t, fmt.Errorf("invalid volume %q: %w", volume, err)
	}

	return t, nil
}

func parseOptionalFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return v, nil
}

// FuturesInput carries everything needed to derive a futures snapshot
type FuturesInput struct {
	SymbolID     int64
	Ticker       Ticker
	OpenInterest float64
	FundingRate  float64
	// Previous is the symbol's latest stored snapshot, nil if none
	Previous *models.Snapshot
	At       time.Time
}

// SpotInput carries everything needed to derive a spot snapshot
type SpotInput struct {
	SymbolID int64
	Ticker   Ticker
	// Futures is the latest futures snapshot of the same ticker, nil if none
	Futures *models.Snapshot
	At      time.Time
}

// DeriveFutures builds a futures snapshot. Volume delta is
// change(h) * volume(h) / 100 and OI change is computed against Previous.
func DeriveFutures(in FuturesInput) *models.Snapshot {
	s := base(in.SymbolID, models.MarketFutures, in.Ticker, in.At)
	s.OpenInterest = in.OpenInterest
	s.FundingRate = in.FundingRate

	s.Vdelta5m = s.Change5m * s.Volume5m / 100
	s.Vdelta15m = s.Change15m * s.Volume15m / 100
	s.Vdelta1h = s.Change1h * s.Volume1h / 100
	s.Vdelta8h = s.Change8h * s.Volume8h / 100
	s.Vdelta1d = s.Change1d * s.Volume1d / 100

	if prev := in.Previous; prev != nil && prev.OpenInterest > 0 {
		pct := (in.OpenInterest - prev.OpenInterest) / prev.OpenInterest * 100
		s.OIChange5m = pct / Horizon5m.Divisor()
		s.OIChange15m = pct / Horizon15m.Divisor()
		s.OIChange1h = pct / Horizon1h.Divisor()
		s.OIChange8h = pct / Horizon8h.Divisor()
		s.OIChange1d = pct / Horizon1d.Divisor()
	}

	return s
}

// DeriveSpot builds a spot snapshot. Volume delta is change(h) * volume24h
// with no /100, and open interest, funding and OI change are copied as-is
// from the futures snapshot of the same ticker.
func DeriveSpot(in SpotInput) *models.Snapshot {
	s := base(in.SymbolID, models.MarketSpot, in.Ticker, in.At)

	v := in.Ticker.Volume
	s.Vdelta5m = s.Change5m * v
	s.Vdelta15m = s.Change15m * v
	s.Vdelta1h = s.Change1h * v
	s.Vdelta8h = s.Change8h * v
	s.Vdelta1d = s.Change1d * v

	if f := in.Futures; f != nil {
		s.OpenInterest = f.OpenInterest
		s.FundingRate = f.FundingRate
		s.OIChange5m = f.OIChange5m
		s.OIChange15m = f.OIChange15m
		s.OIChange1h = f.OIChange1h
		s.OIChange8h = f.OIChange8h
		s.OIChange1d = f.OIChange1d
	}

	return s
}

// base fills the fields shared by both markets
func base(symbolID int64, market models.MarketType, t Ticker, at time.Time) *models.Snapshot {
	s := &models.Snapshot{
		SymbolID:   symbolID,
		Symbol:     t.Symbol,
		MarketType: market,
		Timestamp:  at.UTC(),
		Price:      t.Price,
	}

	s.Change5m = t.ChangePercent / Horizon5m.Divisor()
	s.Change15m = t.ChangePercent / Horizon15m.Divisor()
	s.Change1h = t.ChangePercent / Horizon1h.Divisor()
	s.Change8h = t.ChangePercent / Horizon8h.Divisor()
	s.Change1d = t.ChangePercent / Horizon1d.Divisor()

	s.Volume5m = t.Volume / Horizon5m.Divisor()
	s.Volume15m = t.Volume / Horizon15m.Divisor()
	s.Volume1h = t.Volume / Horizon1h.Divisor()
	s.Volume8h = t.Volume / Horizon8h.Divisor()
	s.Volume1d = t.Volume / Horizon1d.Divisor()

	s.Volatility5m = math.Abs(s.Change5m)
	s.Volatility15m = math.Abs(s.Change15m)
	s.Volatility1h = math.Abs(s.Change1h)

	s.Ticks5m = ticks(s.Volume5m)
	s.Ticks15m = ticks(s.Volume15m)
	s.Ticks1h = ticks(s.Volume1h)

	return s
}

func ticks(volume float64) int64 {
	return int64(math.Floor(volume / TickSize))
}
