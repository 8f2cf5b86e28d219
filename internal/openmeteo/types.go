package openmeteo

// Units selects the measurement system requested from the provider.
// Unit conversion is baked into the upstream call, not applied post-hoc.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// ParseUnits interprets a raw units query value. Anything other than
// "imperial" is treated as metric, matching the dashboard contract.
func ParseUnits(raw string) Units {
	if raw == string(UnitsImperial) {
		return UnitsImperial
	}
	return UnitsMetric
}

// ForecastResponse is the Open-Meteo forecast payload. All hourly and daily
// arrays are aligned by index to their Time arrays. Timestamps are local-time
// strings ("2006-01-02T15:04") in the zone given by UTCOffsetSeconds.
type ForecastResponse struct {
	Latitude             float64      `json:"latitude"`
	Longitude            float64      `json:"longitude"`
	Timezone             string       `json:"timezone"`
	TimezoneAbbreviation string       `json:"timezone_abbreviation"`
	UTCOffsetSeconds     int          `json:"utc_offset_seconds"`
	Current              CurrentBlock `json:"current"`
	Hourly               HourlyBlock  `json:"hourly"`
	Daily                DailyBlock   `json:"daily"`
}

// CurrentBlock holds instantaneous conditions.
type CurrentBlock struct {
	Time             string  `json:"time"`
	Temperature      float64 `json:"temperature_2m"`
	RelativeHumidity float64 `json:"relative_humidity_2m"`
	ApparentTemp     float64 `json:"apparent_temperature"`
	IsDay            int     `json:"is_day"`
	Precipitation    float64 `json:"precipitation"`
	Rain             float64 `json:"rain"`
	Showers          float64 `json:"showers"`
	Snowfall         float64 `json:"snowfall"`
	WeatherCode      int     `json:"weather_code"`
	CloudCover       float64 `json:"cloud_cover"`
	PressureMSL      float64 `json:"pressure_msl"`
	SurfacePressure  float64 `json:"surface_pressure"`
	WindSpeed        float64 `json:"wind_speed_10m"`
	WindDirection    float64 `json:"wind_direction_10m"`
	WindGusts        float64 `json:"wind_gusts_10m"`
}

// HourlyBlock holds the hourly forecast series.
type HourlyBlock struct {
	Time                     []string  `json:"time"`
	Temperature              []float64 `json:"temperature_2m"`
	RelativeHumidity         []float64 `json:"relative_humidity_2m"`
	ApparentTemp             []float64 `json:"apparent_temperature"`
	PrecipitationProbability []float64 `json:"precipitation_probability"`
	Precipitation            []float64 `json:"precipitation"`
	WeatherCode              []int     `json:"weather_code"`
	CloudCover               []float64 `json:"cloud_cover"`
	WindSpeed                []float64 `json:"wind_speed_10m"`
	WindDirection            []float64 `json:"wind_direction_10m"`
	Visibility               []float64 `json:"visibility"`
	IsDay                    []int     `json:"is_day"`
}

// DailyBlock holds per-day aggregates for at least one day.
type DailyBlock struct {
	Time                        []string  `json:"time"`
	WeatherCode                 []int     `json:"weather_code"`
	TemperatureMax              []float64 `json:"temperature_2m_max"`
	TemperatureMin              []float64 `json:"temperature_2m_min"`
	ApparentTempMax             []float64 `json:"apparent_temperature_max"`
	ApparentTempMin             []float64 `json:"apparent_temperature_min"`
	Sunrise                     []string  `json:"sunrise"`
	Sunset                      []string  `json:"sunset"`
	PrecipitationSum            []float64 `json:"precipitation_sum"`
	PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
	WindSpeedMax                []float64 `json:"wind_speed_10m_max"`
}

// AirQualityResponse is the Open-Meteo air-quality payload.
type AirQualityResponse struct {
	Current AirQualityCurrent `json:"current"`
}

// AirQualityCurrent holds the current air-quality reading.
type AirQualityCurrent struct {
	Time            string  `json:"time"`
	EuropeanAQI     float64 `json:"european_aqi"`
	USAQI           float64 `json:"us_aqi"`
	PM10            float64 `json:"pm10"`
	PM25            float64 `json:"pm2_5"`
	CarbonMonoxide  float64 `json:"carbon_monoxide"`
	NitrogenDioxide float64 `json:"nitrogen_dioxide"`
	SulphurDioxide  float64 `json:"sulphur_dioxide"`
	Ozone           float64 `json:"ozone"`
	Ammonia         float64 `json:"ammonia"`
}

// CityMatch is one geocoding search result in the shape served to the
// dashboard: {name, country, countryName, state, lat, lon}.
type CityMatch struct {
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	CountryName string  `json:"countryName"`
	State       string  `json:"state"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// geocodingResponse is the raw Open-Meteo geocoding payload.
type geocodingResponse struct {
	Results []struct {
		Name        string  `json:"name"`
		CountryCode string  `json:"country_code"`
		Country     string  `json:"country"`
		Admin1      string  `json:"admin1"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
	} `json:"results"`
}
