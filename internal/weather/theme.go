package weather

// ThemeColors is the background palette derived from current conditions.
// The rendering layer applies it; nothing in this package touches
// presentation state.
type ThemeColors struct {
	BG   string `json:"bg"`
	Orb1 string `json:"orb1"`
	Orb2 string `json:"orb2"`
	Orb3 string `json:"orb3"`
}

// DeriveTheme picks the palette for a weather ID (OpenWeatherMap scale),
// day/night flag, and temperature in Celsius. Extreme heat (>35) and cold
// (<-5) override the condition palette.
func DeriveTheme(weatherID int, isDay bool, tempC float64) ThemeColors {
	theme := ThemeColors{
		BG:   "#0a0e1a",
		Orb1: "rgba(59, 130, 246, 0.12)",
		Orb2: "rgba(139, 92, 246, 0.1)",
		Orb3: "rgba(6, 182, 212, 0.08)",
	}

	switch {
	case weatherID >= 200 && weatherID < 300: // thunderstorm
		theme = ThemeColors{
			BG:   "#0b0614",
			Orb1: "rgba(139, 92, 246, 0.18)",
			Orb2: "rgba(168, 85, 247, 0.14)",
			Orb3: "rgba(234, 179, 8, 0.1)",
		}
	case weatherID >= 300 && weatherID < 600: // drizzle and rain
		theme = ThemeColors{
			BG:   "#080e1e",
			Orb1: "rgba(30, 64, 175, 0.16)",
			Orb2: "rgba(99, 102, 241, 0.12)",
			Orb3: "rgba(6, 182, 212, 0.1)",
		}
	case weatherID >= 600 && weatherID < 700: // snow
		theme = ThemeColors{
			BG:   "#0c1220",
			Orb1: "rgba(147, 197, 253, 0.15)",
			Orb2: "rgba(199, 210, 254, 0.12)",
			Orb3: "rgba(224, 231, 255, 0.08)",
		}
	case weatherID >= 700 && weatherID < 800: // fog, haze, mist
		theme = ThemeColors{
			BG:   "#10131c",
			Orb1: "rgba(148, 163, 184, 0.12)",
			Orb2: "rgba(100, 116, 139, 0.1)",
			Orb3: "rgba(203, 213, 225, 0.06)",
		}
	case weatherID == 800: // clear
		if isDay {
			theme = ThemeColors{
				BG:   "#060d1f",
				Orb1: "rgba(14, 165, 233, 0.15)",
				Orb2: "rgba(234, 179, 8, 0.1)",
				Orb3: "rgba(59, 130, 246, 0.08)",
			}
		} else {
			theme = ThemeColors{
				BG:   "#050810",
				Orb1: "rgba(30, 58, 138, 0.15)",
				Orb2: "rgba(88, 28, 135, 0.1)",
				Orb3: "rgba(15, 23, 42, 0.12)",
			}
		}
	case weatherID > 800: // cloudy
		theme = ThemeColors{
			BG:   "#090d18",
			Orb1: "rgba(71, 85, 105, 0.14)",
			Orb2: "rgba(100, 116, 139, 0.1)",
			Orb3: "rgba(59, 130, 246, 0.06)",
		}
	}

	switch {
	case tempC > 35:
		theme.BG = "#140a06"
		theme.Orb1 = "rgba(249, 115, 22, 0.16)"
		theme.Orb2 = "rgba(239, 68, 68, 0.12)"
		theme.Orb3 = "rgba(234, 179, 8, 0.08)"
	case tempC < -5:
		theme.BG = "#060a14"
		theme.Orb1 = "rgba(147, 197, 253, 0.18)"
		theme.Orb2 = "rgba(199, 210, 254, 0.14)"
		theme.Orb3 = "rgba(224, 231, 255, 0.1)"
	}

	return theme
}
