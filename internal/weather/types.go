// Package weather turns Open-Meteo payloads into the OpenWeatherMap-compatible
// snapshot the dashboard renders. Field names and nesting are a compatibility
// contract with that schema and are reproduced exactly, including the literal
// "1h"/"3h" precipitation sub-keys and visibility in meters.
package weather

// Snapshot is the normalized weather view for one (lat, lon, units) key.
// It is immutable once produced; refreshing means building a new one.
type Snapshot struct {
	Current        CurrentWeather `json:"current"`
	Forecast       ForecastData   `json:"forecast"`
	AirQuality     AirQualityData `json:"airQuality"`
	HourlyDetailed []ForecastItem `json:"hourlyDetailed"`
}

// Condition is one weather-code mapping entry. The provider always yields a
// single code, so the slice it lives in carries exactly one element; the
// slice shape exists for schema compatibility only.
type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Coord is a coordinate pair in the schema's lon-first order.
type Coord struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// MainBlock holds the temperature and atmosphere readings.
type MainBlock struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  float64 `json:"humidity"`
	SeaLevel  int     `json:"sea_level,omitempty"`
	GrndLevel int     `json:"grnd_level,omitempty"`
}

// Wind holds speed (m/s for metric, mph for imperial), direction, and gusts.
type Wind struct {
	Speed float64  `json:"speed"`
	Deg   float64  `json:"deg"`
	Gust  *float64 `json:"gust,omitempty"`
}

// Clouds holds cloud cover percent.
type Clouds struct {
	All float64 `json:"all"`
}

// Precipitation is an accumulation volume under the schema's literal
// "1h"/"3h" keys. Only one of the two is ever populated per reading.
type Precipitation struct {
	OneHour    float64 `json:"1h,omitempty"`
	ThreeHours float64 `json:"3h,omitempty"`
}

// Sys carries country and sun times on the current block.
type Sys struct {
	Type    int    `json:"type,omitempty"`
	ID      int    `json:"id,omitempty"`
	Country string `json:"country"`
	Sunrise int64  `json:"sunrise"`
	Sunset  int64  `json:"sunset"`
}

// CurrentWeather is the normalized current-conditions block.
type CurrentWeather struct {
	Coord      Coord          `json:"coord"`
	Weather    []Condition    `json:"weather"`
	Base       string         `json:"base"`
	Main       MainBlock      `json:"main"`
	Visibility float64        `json:"visibility"`
	Wind       Wind           `json:"wind"`
	Clouds     Clouds         `json:"clouds"`
	Rain       *Precipitation `json:"rain,omitempty"`
	Snow       *Precipitation `json:"snow,omitempty"`
	Dt         int64          `json:"dt"`
	Sys        Sys            `json:"sys"`
	Timezone   int            `json:"timezone"`
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	Cod        int            `json:"cod"`
}

// ForecastItem is one forecast sample: 3-hour spacing in the primary list,
// 1-hour spacing in the detailed slice.
type ForecastItem struct {
	Dt         int64          `json:"dt"`
	Main       MainBlock      `json:"main"`
	Weather    []Condition    `json:"weather"`
	Clouds     Clouds         `json:"clouds"`
	Wind       Wind           `json:"wind"`
	Visibility float64        `json:"visibility"`
	Pop        float64        `json:"pop"`
	Rain       *Precipitation `json:"rain,omitempty"`
	Snow       *Precipitation `json:"snow,omitempty"`
	DtTxt      string         `json:"dt_txt"`
}

// ForecastCity associates the forecast list with its location, UTC offset,
// and sun times.
type ForecastCity struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Coord      Coord  `json:"coord"`
	Country    string `json:"country"`
	Population int    `json:"population"`
	Timezone   int    `json:"timezone"`
	Sunrise    int64  `json:"sunrise"`
	Sunset     int64  `json:"sunset"`
}

// ForecastData is the normalized forecast block.
type ForecastData struct {
	Cod     string         `json:"cod"`
	Message int            `json:"message"`
	Cnt     int            `json:"cnt"`
	List    []ForecastItem `json:"list"`
	City    ForecastCity   `json:"city"`
}

// AirQualityComponents holds raw pollutant concentrations. NO is always zero;
// the provider does not supply it.
type AirQualityComponents struct {
	CO   float64 `json:"co"`
	NO   float64 `json:"no"`
	NO2  float64 `json:"no2"`
	O3   float64 `json:"o3"`
	SO2  float64 `json:"so2"`
	PM25 float64 `json:"pm2_5"`
	PM10 float64 `json:"pm10"`
	NH3  float64 `json:"nh3"`
}

// AirQualityItem is a single air-quality reading with the 1-5 category index.
type AirQualityItem struct {
	Main struct {
		AQI int `json:"aqi"`
	} `json:"main"`
	Components AirQualityComponents `json:"components"`
	Dt         int64                `json:"dt"`
}

// AirQualityData is the normalized air-quality block.
type AirQualityData struct {
	Coord Coord            `json:"coord"`
	List  []AirQualityItem `json:"list"`
}
