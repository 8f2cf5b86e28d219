package weather

import (
	"fmt"
	"math"
)

// Closed-form display derivations over a snapshot. All pure; the rendering
// layer applies them.

// DewPoint computes the dew point in the temperature's own unit scale using
// the Magnus formula, rounded to the nearest degree. Temperature is expected
// in Celsius; humidity is a percentage.
func DewPoint(tempC, humidity float64) int {
	const a = 17.27
	const b = 237.7
	alpha := (a*tempC)/(b+tempC) + math.Log(humidity/100)
	return int(math.Round(b * alpha / (a - alpha)))
}

var compassPoints = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// WindDirection renders wind degrees as a 16-point compass label.
func WindDirection(deg float64) string {
	idx := int(math.Round(deg/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compassPoints[idx]
}

// AQILabel describes a 1-5 air-quality category with its display color.
type AQILabel struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var aqiLabels = map[int]AQILabel{
	1: {"Good", "#22c55e"},
	2: {"Fair", "#eab308"},
	3: {"Moderate", "#f97316"},
	4: {"Poor", "#ef4444"},
	5: {"Very Poor", "#7c3aed"},
}

// AQILabelFor returns the label for a category, or an "Unknown" fallback.
func AQILabelFor(category int) AQILabel {
	if l, ok := aqiLabels[category]; ok {
		return l
	}
	return AQILabel{Label: "Unknown", Color: "#64748b"}
}

// SunPosition returns the sun's progress along the sunrise-to-sunset arc as
// a percentage, clamped to [0, 100].
func SunPosition(sunrise, sunset, current int64) float64 {
	if current < sunrise {
		return 0
	}
	if current > sunset {
		return 100
	}
	total := sunset - sunrise
	if total <= 0 {
		return 100
	}
	pct := float64(current-sunrise) / float64(total) * 100
	return math.Min(100, math.Max(0, pct))
}

// FormatWindSpeed renders a wind speed for display: metric speeds arrive in
// m/s and are shown in km/h, imperial speeds are already mph.
func FormatWindSpeed(speed float64, imperial bool) string {
	if imperial {
		return fmt.Sprintf("%d mph", int(math.Round(speed)))
	}
	return fmt.Sprintf("%d km/h", int(math.Round(speed*3.6)))
}

// FormatVisibility renders a visibility distance in meters as miles, km, or
// meters depending on the unit system and magnitude.
func FormatVisibility(meters float64, imperial bool) string {
	if imperial {
		return fmt.Sprintf("%.1f mi", meters/1609.34)
	}
	if meters >= 1000 {
		return fmt.Sprintf("%.1f km", meters/1000)
	}
	return fmt.Sprintf("%d m", int(meters))
}

// PressureTrend labels a sea-level pressure reading in hPa.
func PressureTrend(pressure float64) string {
	switch {
	case pressure >= 1020:
		return "High"
	case pressure >= 1013:
		return "Normal"
	case pressure >= 1000:
		return "Low"
	}
	return "Very Low"
}
