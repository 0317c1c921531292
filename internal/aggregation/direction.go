package aggregation

// Trend is the movement of a value relative to its previous observation
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// DirectionEpsilon is the dead band below which a move counts as flat
const DirectionEpsilon = 0.0001

// Direction compares a value with its previous observation. A missing value
// on either side is flat.
func Direction(current, previous *float64) Trend {
	if current == nil || previous == nil {
		return TrendFlat
	}
	diff := *current - *previous
	switch {
	case diff > DirectionEpsilon:
		return TrendUp
	case diff < -DirectionEpsilon:
		return TrendDown
	default:
		return TrendFlat
	}
}
