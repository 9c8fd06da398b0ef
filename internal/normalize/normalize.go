// Package normalize maps raw benchmark metric values onto a [0,1] goodness
// score so that heterogeneous metric kinds (quality, latency, cost, context)
// can be combined under a single weighted composite.
package normalize

import "math"

// Quality performs a min-max linear scale between floor and ceiling. Values
// outside the range clamp to the endpoints; a zero-width range yields 0.5.
func Quality(value, floor, ceiling float64) float64 {
	if ceiling == floor {
		return 0.5
	}
	v := (value - floor) / (ceiling - floor)
	return clamp(v)
}

// DefaultEloFloor and DefaultEloCeiling bound the min-max scale used when a
// quality metric is an Elo rating.
const (
	DefaultEloFloor    = 800.0
	DefaultEloCeiling  = 1400.0
	DefaultBenchFloor  = 0.0
	DefaultBenchCeiling = 100.0
)

// Latency applies a log scale: values at or below excellentMs map to 1.0,
// values at or above poorMs map to 0.0, with log interpolation between.
// Non-positive input is treated as excellent (unknown latency, no penalty).
func Latency(ms, excellentMs, poorMs float64) float64 {
	if ms <= 0 {
		return 1.0
	}
	if ms <= excellentMs {
		return 1.0
	}
	if ms >= poorMs {
		return 0.0
	}
	v := 1.0 - (math.Log(ms)-math.Log(excellentMs))/(math.Log(poorMs)-math.Log(excellentMs))
	return clamp(v)
}

const (
	DefaultLatencyExcellentMs = 100.0
	DefaultLatencyPoorMs      = 5000.0
)

// Cost applies a log scale: free (<=0) is 1.0, at or below cheap scales
// linearly from 1.0 to 0.8, between cheap and expensive uses log
// interpolation from 0.8 down to 0.0, at or above expensive is 0.0.
func Cost(perMillion, cheap, expensive float64) float64 {
	if perMillion <= 0 {
		return 1.0
	}
	if perMillion <= cheap {
		if cheap == 0 {
			return 0.8
		}
		return clamp(1.0 - 0.2*(perMillion/cheap))
	}
	if perMillion >= expensive {
		return 0.0
	}
	v := 0.8 * (1.0 - (math.Log(perMillion)-math.Log(cheap))/(math.Log(expensive)-math.Log(cheap)))
	return clamp(v)
}

const (
	DefaultCostCheapPerMillion     = 0.5
	DefaultCostExpensivePerMillion = 50.0
)

// Context applies a log scale shifted into [0.1, 1.0]: at or below min maps
// to 0.1, at or above max maps to 1.0, log interpolation between.
func Context(tokens, min, max float64) float64 {
	if tokens <= min {
		return 0.1
	}
	if tokens >= max {
		return 1.0
	}
	v := 0.1 + 0.9*(math.Log(tokens)-math.Log(min))/(math.Log(max)-math.Log(min))
	return clamp(v)
}

const (
	DefaultContextMin = 4096.0
	DefaultContextMax = 1_000_000.0
)

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
