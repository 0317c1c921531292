package models

import "fmt"

// MarketType identifies a market segment on the exchange
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// MarketTypes lists every supported market segment
var MarketTypes = []MarketType{MarketFutures, MarketSpot}

// ParseMarketType validates a market segment name
func ParseMarketType(s string) (MarketType, error) {
	switch MarketType(s) {
	case MarketSpot, MarketFutures:
		return MarketType(s), nil
	default:
		return "", fmt.Errorf("unknown market type %q (expected spot or futures)", s)
	}
}

func (m MarketType) String() string {
	return string(m)
}

// Symbol is one tradable instrument on one market segment.
// The (Symbol, MarketType) pair is unique.
type Symbol struct {
	ID         int64      `json:"id" db:"id"`
	Symbol     string     `json:"symbol" db:"symbol"`
	Name       string     `json:"name" db:"name"`
	MarketType MarketType `json:"market_type" db:"market_type"`
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s/%s", s.Symbol, s.MarketType)
}
