// Package format renders metric values for notifications and listings.
package format

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/screener-back/pkg/models"
)

// Volume renders a volume with B/M/K suffixes and two decimals
func Volume(v float64) string {
	if v == 0 {
		return "0.00"
	}
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", v/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.2fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.2fK", v/1_000)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// Vdelta renders a volume delta. Whole values between 1 and 1000 print
// as integers, other values under 1000 keep one or two decimals.
func Vdelta(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs < 0.0001:
		return "0.00"
	case abs >= 1_000_000:
		return fmt.Sprintf("%.2fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.2fK", v/1_000)
	case abs >= 1:
		if abs == math.Trunc(abs) {
			return strconv.FormatInt(int64(v), 10)
		}
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// Ticks renders a tick count with B/M/K suffixes
func Ticks(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", v/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.2fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.2fK", v/1_000)
	default:
		return strconv.FormatInt(int64(v), 10)
	}
}

// Percent renders a percentage with two decimals
func Percent(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// Rate renders a funding rate with six decimals
func Rate(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// Price renders a price without losing precision
func Price(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// Metric renders a value according to the metric's kind
func Metric(m models.Metric, v float64) string {
	switch m.Kind() {
	case models.KindVolume:
		return Volume(v)
	case models.KindVdelta:
		return Vdelta(v)
	case models.KindTicks:
		return Ticks(v)
	case models.KindRate:
		return Rate(v)
	case models.KindPrice:
		return Price(v)
	default:
		return Percent(v)
	}
}
