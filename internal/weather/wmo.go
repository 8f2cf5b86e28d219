package weather

import "strings"

// wmoEntry maps one WMO weather interpretation code to its description,
// OpenWeatherMap-style icons, and high-level category.
type wmoEntry struct {
	description string
	iconDay     string
	iconNight   string
	main        string
}

var wmoCodes = map[int]wmoEntry{
	0:  {"Clear sky", "01d", "01n", "Clear"},
	1:  {"Mainly clear", "01d", "01n", "Clear"},
	2:  {"Partly cloudy", "02d", "02n", "Clouds"},
	3:  {"Overcast", "04d", "04n", "Clouds"},
	45: {"Fog", "50d", "50n", "Fog"},
	48: {"Depositing rime fog", "50d", "50n", "Fog"},
	51: {"Light drizzle", "09d", "09n", "Drizzle"},
	53: {"Moderate drizzle", "09d", "09n", "Drizzle"},
	55: {"Dense drizzle", "09d", "09n", "Drizzle"},
	56: {"Light freezing drizzle", "09d", "09n", "Drizzle"},
	57: {"Dense freezing drizzle", "09d", "09n", "Drizzle"},
	61: {"Slight rain", "10d", "10n", "Rain"},
	63: {"Moderate rain", "10d", "10n", "Rain"},
	65: {"Heavy rain", "10d", "10n", "Rain"},
	66: {"Light freezing rain", "13d", "13n", "Rain"},
	67: {"Heavy freezing rain", "13d", "13n", "Rain"},
	71: {"Slight snow fall", "13d", "13n", "Snow"},
	73: {"Moderate snow fall", "13d", "13n", "Snow"},
	75: {"Heavy snow fall", "13d", "13n", "Snow"},
	77: {"Snow grains", "13d", "13n", "Snow"},
	80: {"Slight rain showers", "09d", "09n", "Rain"},
	81: {"Moderate rain showers", "09d", "09n", "Rain"},
	82: {"Violent rain showers", "09d", "09n", "Rain"},
	85: {"Slight snow showers", "13d", "13n", "Snow"},
	86: {"Heavy snow showers", "13d", "13n", "Snow"},
	95: {"Thunderstorm", "11d", "11n", "Thunderstorm"},
	96: {"Thunderstorm with slight hail", "11d", "11n", "Thunderstorm"},
	99: {"Thunderstorm with heavy hail", "11d", "11n", "Thunderstorm"},
}

// WMODescription returns the human description for a code, or "Unknown".
func WMODescription(code int) string {
	if e, ok := wmoCodes[code]; ok {
		return e.description
	}
	return "Unknown"
}

// WMOIcon returns the icon token for a code and day/night flag. Unknown
// codes fall back to the clear-sky icon, never an error.
func WMOIcon(code int, isDay bool) string {
	e, ok := wmoCodes[code]
	if !ok {
		if isDay {
			return "01d"
		}
		return "01n"
	}
	if isDay {
		return e.iconDay
	}
	return e.iconNight
}

// WMOMain returns the high-level category for a code, or "Unknown".
func WMOMain(code int) string {
	if e, ok := wmoCodes[code]; ok {
		return e.main
	}
	return "Unknown"
}

// WMOWeatherID maps a WMO code onto the nearest OpenWeatherMap weather ID.
func WMOWeatherID(code int) int {
	switch {
	case code <= 1:
		return 800 // clear
	case code == 2:
		return 802 // few clouds
	case code == 3:
		return 804 // overcast
	case code <= 48:
		return 741 // fog
	case code <= 57:
		return 300 // drizzle
	case code <= 67:
		return 500 // rain
	case code <= 77:
		return 600 // snow
	case code <= 82:
		return 520 // showers
	case code <= 86:
		return 620 // snow showers
	case code <= 99:
		return 200 // thunderstorm
	}
	return 800
}

// conditionFor builds the single-element condition entry for a code.
func conditionFor(code int, isDay bool) Condition {
	return Condition{
		ID:          WMOWeatherID(code),
		Main:        WMOMain(code),
		Description: strings.ToLower(WMODescription(code)),
		Icon:        WMOIcon(code, isDay),
	}
}
