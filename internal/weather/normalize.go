package weather

import (
	"math"
	"strings"
	"time"

	"github.com/skypulse/skypulse/internal/openmeteo"
)

const (
	// forecastWindowHours bounds the 3-hourly list to 48 hours (16 samples).
	forecastWindowHours = 48
	// forecastStepHours is the spacing of the primary forecast list.
	forecastStepHours = 3
	// detailedHours is the length of the 1-hourly detailed slice.
	detailedHours = 9
	// defaultVisibility is used when the hourly series has no reading (meters).
	defaultVisibility = 10000.0
)

// Normalize transforms an Open-Meteo forecast plus an optional air-quality
// reading into the dashboard snapshot. It is pure and total: missing
// air-quality data is a fully valid input (zeroed pollutants, category 1),
// and unknown weather codes map to a defined fallback. The now argument
// anchors the current-hour index into the hourly series.
func Normalize(fc *openmeteo.ForecastResponse, aq *openmeteo.AirQualityResponse, lat, lon float64, imperial bool, now time.Time) Snapshot {
	offset := fc.UTCOffsetSeconds
	dt := parseLocal(fc.Current.Time, offset)
	isDay := fc.Current.IsDay == 1

	sunrise := parseLocal(stringAt(fc.Daily.Sunrise, 0), offset)
	sunset := parseLocal(stringAt(fc.Daily.Sunset, 0), offset)

	idx := currentHourIndex(fc.Hourly.Time, offset, now)
	pressure := int(math.Round(fc.Current.PressureMSL))
	gust := convertWind(fc.Current.WindGusts, imperial)

	current := CurrentWeather{
		Coord:   Coord{Lon: lon, Lat: lat},
		Weather: []Condition{conditionFor(fc.Current.WeatherCode, isDay)},
		Base:    "open-meteo",
		Main: MainBlock{
			Temp:      fc.Current.Temperature,
			FeelsLike: fc.Current.ApparentTemp,
			// Min/max come from the first day's daily aggregate, not the
			// instantaneous reading.
			TempMin:   floatAt(fc.Daily.TemperatureMin, 0),
			TempMax:   floatAt(fc.Daily.TemperatureMax, 0),
			Pressure:  pressure,
			Humidity:  fc.Current.RelativeHumidity,
			SeaLevel:  pressure,
			GrndLevel: int(math.Round(fc.Current.SurfacePressure)),
		},
		Visibility: visibilityAt(fc.Hourly.Visibility, idx),
		Wind: Wind{
			Speed: convertWind(fc.Current.WindSpeed, imperial),
			Deg:   fc.Current.WindDirection,
			Gust:  &gust,
		},
		Clouds:   Clouds{All: fc.Current.CloudCover},
		Rain:     accumulation1h(fc.Current.Rain),
		Snow:     accumulation1h(fc.Current.Snowfall),
		Dt:       dt,
		Sys:      Sys{Type: 2, Country: "", Sunrise: sunrise, Sunset: sunset},
		Timezone: offset,
		Cod:      200,
	}

	list := forecastSlice(fc, idx, forecastStepHours, forecastWindowHours, imperial, pressure)
	detailed := forecastSlice(fc, idx, 1, detailedHours, imperial, pressure)

	forecast := ForecastData{
		Cod:  "200",
		Cnt:  len(list),
		List: list,
		City: ForecastCity{
			Coord:    Coord{Lat: lat, Lon: lon},
			Timezone: offset,
			Sunrise:  sunrise,
			Sunset:   sunset,
		},
	}

	return Snapshot{
		Current:        current,
		Forecast:       forecast,
		AirQuality:     normalizeAirQuality(aq, lat, lon, dt),
		HourlyDetailed: detailed,
	}
}

// forecastSlice derives forecast items from the hourly series: every stepth
// sample starting at the current hour index, within a window of windowHours.
func forecastSlice(fc *openmeteo.ForecastResponse, idx, step, windowHours int, imperial bool, pressure int) []ForecastItem {
	h := fc.Hourly
	end := idx + windowHours
	if end > len(h.Time) {
		end = len(h.Time)
	}

	items := make([]ForecastItem, 0, (windowHours+step-1)/step)
	for i := idx; i < end; i += step {
		temp := floatAt(h.Temperature, i)
		code := intAt(h.WeatherCode, i)
		hourIsDay := intAt(h.IsDay, i) == 1

		items = append(items, ForecastItem{
			Dt: parseLocal(stringAt(h.Time, i), fc.UTCOffsetSeconds),
			Main: MainBlock{
				Temp:      temp,
				FeelsLike: floatAt(h.ApparentTemp, i),
				// The provider has no sub-daily min/max; a synthetic one-degree
				// band around the instantaneous reading stands in for it.
				TempMin:  temp - 1,
				TempMax:  temp + 1,
				Pressure: pressure,
				Humidity: floatAt(h.RelativeHumidity, i),
			},
			Weather: []Condition{conditionFor(code, hourIsDay)},
			Clouds:  Clouds{All: floatAt(h.CloudCover, i)},
			Wind: Wind{
				Speed: convertWind(floatAt(h.WindSpeed, i), imperial),
				Deg:   floatAt(h.WindDirection, i),
			},
			Visibility: visibilityAt(h.Visibility, i),
			Pop:        floatAt(h.PrecipitationProbability, i) / 100,
			Rain:       accumulation3h(floatAt(h.Precipitation, i)),
			DtTxt:      dtTxt(stringAt(h.Time, i)),
		})
	}

	return items
}

// normalizeAirQuality buckets the European AQI into the 1-5 category scale.
// A missing payload degrades to category 1 with zeroed pollutants rather
// than an "unknown" marker.
func normalizeAirQuality(aq *openmeteo.AirQualityResponse, lat, lon float64, dt int64) AirQualityData {
	item := AirQualityItem{Dt: dt}
	item.Main.AQI = 1

	if aq != nil {
		item.Main.AQI = EuropeanAQICategory(aq.Current.EuropeanAQI)
		item.Components = AirQualityComponents{
			CO:   aq.Current.CarbonMonoxide,
			NO2:  aq.Current.NitrogenDioxide,
			O3:   aq.Current.Ozone,
			SO2:  aq.Current.SulphurDioxide,
			PM25: aq.Current.PM25,
			PM10: aq.Current.PM10,
			NH3:  aq.Current.Ammonia,
		}
	}

	return AirQualityData{
		Coord: Coord{Lon: lon, Lat: lat},
		List:  []AirQualityItem{item},
	}
}

// EuropeanAQICategory maps a European AQI value (0-100+) onto the 1-5
// category scale: <=20 Good, <=40 Fair, <=60 Moderate, <=80 Poor, else
// Very Poor.
func EuropeanAQICategory(eaqi float64) int {
	switch {
	case eaqi <= 20:
		return 1
	case eaqi <= 40:
		return 2
	case eaqi <= 60:
		return 3
	case eaqi <= 80:
		return 4
	}
	return 5
}

// convertWind converts provider wind speed to the output unit. The provider
// sends km/h for metric requests, which the schema wants as m/s; imperial
// requests already arrive in mph and pass through unchanged.
func convertWind(speed float64, imperial bool) float64 {
	if imperial {
		return speed
	}
	return speed / 3.6
}

// currentHourIndex finds the first hourly timestamp at or after now and
// steps one position back, clamped to zero. This index anchors both the
// 3-hourly and the 1-hourly forecast derivations.
func currentHourIndex(times []string, offset int, now time.Time) int {
	for i, raw := range times {
		ts := parseLocal(raw, offset)
		if ts != 0 && !time.Unix(ts, 0).Before(now) {
			if i > 0 {
				return i - 1
			}
			return 0
		}
	}
	return 0
}

// parseLocal converts an Open-Meteo local-time string to epoch seconds using
// the payload's UTC offset. Unparseable input yields 0.
func parseLocal(raw string, offsetSeconds int) int64 {
	if raw == "" {
		return 0
	}
	layout := "2006-01-02T15:04"
	if strings.Count(raw, ":") == 2 {
		layout = "2006-01-02T15:04:05"
	}
	t, err := time.ParseInLocation(layout, raw, time.FixedZone("", offsetSeconds))
	if err != nil {
		return 0
	}
	return t.Unix()
}

// dtTxt renders a provider time string as "2006-01-02 15:04:00".
func dtTxt(raw string) string {
	return strings.Replace(raw, "T", " ", 1) + ":00"
}

func visibilityAt(vis []float64, i int) float64 {
	if v := floatAt(vis, i); v > 0 {
		return v
	}
	return defaultVisibility
}

func accumulation1h(mm float64) *Precipitation {
	if mm > 0 {
		return &Precipitation{OneHour: mm}
	}
	return nil
}

func accumulation3h(mm float64) *Precipitation {
	if mm > 0 {
		return &Precipitation{ThreeHours: mm}
	}
	return nil
}

// Provider arrays are index-aligned but defensively may be shorter than the
// time series; out-of-range reads degrade to zero values instead of panicking.

func floatAt(s []float64, i int) float64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func intAt(s []int, i int) int {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func stringAt(s []string, i int) string {
	if i < 0 || i >= len(s) {
		return ""
	}
	return s[i]
}
