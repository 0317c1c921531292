package models

import (
	"fmt"
	"sort"
)

// Metric names one evaluable snapshot field
type Metric string

// MetricKind groups metrics that share a display format
type MetricKind int

const (
	KindPercent MetricKind = iota
	KindVolume
	KindVdelta
	KindTicks
	KindRate
	KindPrice
)

const (
	MetricPrice        Metric = "price"
	MetricOpenInterest Metric = "open_interest"
	MetricFundingRate  Metric = "funding_rate"

	MetricChange5m  Metric = "change_5m"
	MetricChange15m Metric = "change_15m"
	MetricChange1h  Metric = "change_1h"
	MetricChange8h  Metric = "change_8h"
	MetricChange1d  Metric = "change_1d"

	MetricOIChange5m  Metric = "oi_change_5m"
	MetricOIChange15m Metric = "oi_change_15m"
	MetricOIChange1h  Metric = "oi_change_1h"
	MetricOIChange8h  Metric = "oi_change_8h"
	MetricOIChange1d  Metric = "oi_change_1d"

	MetricVolatility5m  Metric = "volatility_5m"
	MetricVolatility15m Metric = "volatility_15m"
	MetricVolatility1h  Metric = "volatility_1h"

	MetricTicks5m  Metric = "ticks_5m"
	MetricTicks15m Metric = "ticks_15m"
	MetricTicks1h  Metric = "ticks_1h"

	MetricVdelta5m  Metric = "vdelta_5m"
	MetricVdelta15m Metric = "vdelta_15m"
	MetricVdelta1h  Metric = "vdelta_1h"
	MetricVdelta8h  Metric = "vdelta_8h"
	MetricVdelta1d  Metric = "vdelta_1d"

	MetricVolume5m  Metric = "volume_5m"
	MetricVolume15m Metric = "volume_15m"
	MetricVolume1h  Metric = "volume_1h"
	MetricVolume8h  Metric = "volume_8h"
	MetricVolume1d  Metric = "volume_1d"
)

type metricSpec struct {
	label string
	kind  MetricKind
	value func(*Snapshot) float64
}

var metricTable = map[Metric]metricSpec{
	MetricPrice:        {"Price", KindPrice, func(s *Snapshot) float64 { return s.Price.InexactFloat64() }},
	MetricOpenInterest: {"Open interest", KindVolume, func(s *Snapshot) float64 { return s.OpenInterest }},
	MetricFundingRate:  {"Funding rate", KindRate, func(s *Snapshot) float64 { return s.FundingRate }},

	MetricChange5m:  {"Price change 5m, %", KindPercent, func(s *Snapshot) float64 { return s.Change5m }},
	MetricChange15m: {"Price change 15m, %", KindPercent, func(s *Snapshot) float64 { return s.Change15m }},
	MetricChange1h:  {"Price change 1h, %", KindPercent, func(s *Snapshot) float64 { return s.Change1h }},
	MetricChange8h:  {"Price change 8h, %", KindPercent, func(s *Snapshot) float64 { return s.Change8h }},
	MetricChange1d:  {"Price change 1d, %", KindPercent, func(s *Snapshot) float64 { return s.Change1d }},

	MetricOIChange5m:  {"OI change 5m, %", KindPercent, func(s *Snapshot) float64 { return s.OIChange5m }},
	MetricOIChange15m: {"OI change 15m, %", KindPercent, func(s *Snapshot) float64 { return s.OIChange15m }},
	MetricOIChange1h:  {"OI change 1h, %", KindPercent, func(s *Snapshot) float64 { return s.OIChange1h }},
	MetricOIChange8h:  {"OI change 8h, %", KindPercent, func(s *Snapshot) float64 { return s.OIChange8h }},
	MetricOIChange1d:  {"OI change 1d, %", KindPercent, func(s *Snapshot) float64 { return s.OIChange1d }},

	MetricVolatility5m:  {"Volatility 5m, %", KindPercent, func(s *Snapshot) float64 { return s.Volatility5m }},
	MetricVolatility15m: {"Volatility 15m, %", KindPercent, func(s *Snapshot) float64 { return s.Volatility15m }},
	MetricVolatility1h:  {"Volatility 1h, %", KindPercent, func(s *Snapshot) float64 { return s.Volatility1h }},

	MetricTicks5m:  {"Ticks 5m", KindTicks, func(s *Snapshot) float64 { return float64(s.Ticks5m) }},
	MetricTicks15m: {"Ticks 15m", KindTicks, func(s *Snapshot) float64 { return float64(s.Ticks15m) }},
	MetricTicks1h:  {"Ticks 1h", KindTicks, func(s *Snapshot) float64 { return float64(s.Ticks1h) }},

	MetricVdelta5m:  {"Vdelta 5m", KindVdelta, func(s *Snapshot) float64 { return s.Vdelta5m }},
	MetricVdelta15m: {"Vdelta 15m", KindVdelta, func(s *Snapshot) float64 { return s.Vdelta15m }},
	MetricVdelta1h:  {"Vdelta 1h", KindVdelta, func(s *Snapshot) float64 { return s.Vdelta1h }},
	MetricVdelta8h:  {"Vdelta 8h", KindVdelta, func(s *Snapshot) float64 { return s.Vdelta8h }},
	MetricVdelta1d:  {"Vdelta 1d", KindVdelta, func(s *Snapshot) float64 { return s.Vdelta1d }},

	MetricVolume5m:  {"Volume 5m", KindVolume, func(s *Snapshot) float64 { return s.Volume5m }},
	MetricVolume15m: {"Volume 15m", KindVolume, func(s *Snapshot) float64 { return s.Volume15m }},
	MetricVolume1h:  {"Volume 1h", KindVolume, func(s *Snapshot) float64 { return s.Volume1h }},
	MetricVolume8h:  {"Volume 8h", KindVolume, func(s *Snapshot) float64 { return s.Volume8h }},
	MetricVolume1d:  {"Volume 1d", KindVolume, func(s *Snapshot) float64 { return s.Volume1d }},
}

// ParseMetric validates a metric name against the closed set
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if _, ok := metricTable[m]; !ok {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return m, nil
}

// Valid reports whether the metric is part of the evaluable set
func (m Metric) Valid() bool {
	_, ok := metricTable[m]
	return ok
}

// Label returns the human readable metric name
func (m Metric) Label() string {
	if entry, ok := metricTable[m]; ok {
		return entry.label
	}
	return string(m)
}

// Kind returns the display kind of the metric
func (m Metric) Kind() MetricKind {
	return metricTable[m].kind
}

// Value reads the metric from a snapshot. ok is false for unknown metrics
// or a nil snapshot.
func (m Metric) Value(s *Snapshot) (value float64, ok bool) {
	entry, found := metricTable[m]
	if !found || s == nil {
		return 0, false
	}
	return entry.value(s), true
}

// Metrics returns every evaluable metric name, sorted
func Metrics() []Metric {
	out := make([]Metric, 0, len(metricTable))
	for m := range metricTable {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Operator is a threshold comparison
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// ParseOperator validates a comparison operator
func ParseOperator(s string) (Operator, error) {
	switch Operator(s) {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return Operator(s), nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// Compare applies the operator to a live value and a threshold
func (o Operator) Compare(value, threshold float64) (bool, error) {
	switch o {
	case OpGreater:
		return value > threshold, nil
	case OpLess:
		return value < threshold, nil
	case OpGreaterEqual:
		return value >= threshold, nil
	case OpLessEqual:
		return value <= threshold, nil
	default:
		return false, fmt.Errorf("unknown operator %q", string(o))
	}
}
