package airquality

import "math"

const (
	avogadro = 6.022e23

	// ppbFactor is a fixed unit conversion; it ignores column height,
	// pressure and temperature.
	ppbFactor = 1e12

	// MaxAQI is the upper bound of the index.
	MaxAQI = 500
)

type breakpoint struct {
	concLo, concHi int
	aqiLo, aqiHi   int
}

// no2Breakpoints is the EPA NO2 table in ppb.
var no2Breakpoints = [...]breakpoint{
	{0, 53, 0, 50},
	{54, 100, 51, 100},
	{101, 360, 101, 150},
	{361, 649, 151, 200},
	{650, 1249, 201, 300},
	{1250, 1649, 301, 400},
	{1650, 2049, 401, 500},
}

// Display categories.
var (
	CategoryGood               = Category{Label: "Good", Color: "#00E400"}
	CategoryModerate           = Category{Label: "Moderate", Color: "#FFFF00"}
	CategoryUnhealthySensitive = Category{Label: "Unhealthy for Sensitive Groups", Color: "#FF7E00"}
	CategoryUnhealthy          = Category{Label: "Unhealthy", Color: "#FF0000"}
	CategoryVeryUnhealthy      = Category{Label: "Very Unhealthy", Color: "#8F3F97"}
	CategoryHazardous          = Category{Label: "Hazardous", Color: "#7E0023"}
)

// ColumnDensityToPPB converts a tropospheric column in molecules/cm² to
// the ppb-equivalent scale the breakpoint table expects.
func ColumnDensityToPPB(molecules float64) float64 {
	return molecules / avogadro * ppbFactor
}

// AQIOf maps a ppb concentration to a score in [0, MaxAQI] and its category.
func AQIOf(ppb float64) (int, Category) {
	score := scoreOf(ppb)
	return score, CategoryOf(score)
}

func scoreOf(ppb float64) int {
	if math.IsNaN(ppb) || ppb <= 0 {
		return 0
	}
	if ppb > float64(no2Breakpoints[len(no2Breakpoints)-1].concHi) {
		return MaxAQI
	}

	conc := int(ppb)
	for _, bp := range no2Breakpoints {
		if conc < bp.concLo || conc > bp.concHi {
			continue
		}
		slope := float64(bp.aqiHi-bp.aqiLo) / float64(bp.concHi-bp.concLo)
		v := math.RoundToEven(slope*float64(conc-bp.concLo) + float64(bp.aqiLo))
		return clamp(int(v), 0, MaxAQI)
	}
	return MaxAQI
}

// CategoryOf returns the display band for a score.
func CategoryOf(score int) Category {
	switch {
	case score <= 50:
		return CategoryGood
	case score <= 100:
		return CategoryModerate
	case score <= 150:
		return CategoryUnhealthySensitive
	case score <= 200:
		return CategoryUnhealthy
	case score <= 300:
		return CategoryVeryUnhealthy
	default:
		return CategoryHazardous
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
