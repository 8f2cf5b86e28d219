package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	defaultForecastURL   = "https://api.open-meteo.com/v1/forecast"
	defaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	defaultGeocodingURL  = "https://geocoding-api.open-meteo.com/v1/search"

	httpTimeout  = 10 * time.Second
	searchLimit  = 5
	forecastDays = 6
)

const (
	currentVars = "temperature_2m,relative_humidity_2m,apparent_temperature,is_day,precipitation," +
		"rain,showers,snowfall,weather_code,cloud_cover,pressure_msl,surface_pressure," +
		"wind_speed_10m,wind_direction_10m,wind_gusts_10m"
	hourlyVars = "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation_probability," +
		"precipitation,weather_code,cloud_cover,wind_speed_10m,wind_direction_10m,visibility,is_day"
	dailyVars = "weather_code,temperature_2m_max,temperature_2m_min,apparent_temperature_max," +
		"apparent_temperature_min,sunrise,sunset,precipitation_sum,precipitation_probability_max," +
		"wind_speed_10m_max"
	airQualityVars = "european_aqi,us_aqi,pm10,pm2_5,carbon_monoxide,nitrogen_dioxide," +
		"sulphur_dioxide,ozone,ammonia"
)

var (
	// ErrUpstreamStatus marks a non-success response from Open-Meteo.
	ErrUpstreamStatus = errors.New("upstream returned non-success status")

	errCircuitOpen = errors.New("circuit breaker open")
)

// retryConfig controls the exponential backoff applied to transient failures.
type retryConfig struct {
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
}

// Client talks to the Open-Meteo forecast, air-quality, and geocoding APIs.
// Each endpoint gets its own circuit breaker so a dead air-quality API does
// not trip requests to the forecast API.
type Client struct {
	forecastURL   string
	airQualityURL string
	geocodingURL  string

	client *http.Client
	retry  retryConfig

	forecastCB   *gobreaker.CircuitBreaker
	airQualityCB *gobreaker.CircuitBreaker
	geocodingCB  *gobreaker.CircuitBreaker

	log *slog.Logger
}

// NewClient constructs a Client against the production Open-Meteo endpoints.
func NewClient(log *slog.Logger) *Client {
	return NewClientWithURLs(defaultForecastURL, defaultAirQualityURL, defaultGeocodingURL, log)
}

// NewClientWithURLs constructs a Client against custom base URLs (for tests).
func NewClientWithURLs(forecastURL, airQualityURL, geocodingURL string, log *slog.Logger) *Client {
	return &Client{
		forecastURL:   forecastURL,
		airQualityURL: airQualityURL,
		geocodingURL:  geocodingURL,
		client:        &http.Client{Timeout: httpTimeout},
		retry: retryConfig{
			maxRetries:      2,
			initialInterval: 250 * time.Millisecond,
			maxInterval:     2 * time.Second,
		},
		forecastCB:   newBreaker("openmeteo-forecast"),
		airQualityCB: newBreaker("openmeteo-air-quality"),
		geocodingCB:  newBreaker("openmeteo-geocoding"),
		log:          log,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// Forecast fetches current, hourly, and daily weather for the coordinates.
// Metric requests celsius and km/h; imperial requests fahrenheit and mph.
// Precipitation is always in millimeters.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, units Units) (*ForecastResponse, error) {
	tempUnit, windUnit := "celsius", "kmh"
	if units == UnitsImperial {
		tempUnit, windUnit = "fahrenheit", "mph"
	}

	values := url.Values{}
	values.Set("latitude", formatCoord(lat))
	values.Set("longitude", formatCoord(lon))
	values.Set("current", currentVars)
	values.Set("hourly", hourlyVars)
	values.Set("daily", dailyVars)
	values.Set("temperature_unit", tempUnit)
	values.Set("wind_speed_unit", windUnit)
	values.Set("precipitation_unit", "mm")
	values.Set("timezone", "auto")
	values.Set("forecast_days", strconv.Itoa(forecastDays))

	var payload ForecastResponse
	if err := c.getJSON(ctx, c.forecastCB, c.forecastURL+"?"+values.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("openmeteo forecast for %s,%s: %w", formatCoord(lat), formatCoord(lon), err)
	}

	if len(payload.Hourly.Time) == 0 || len(payload.Daily.Time) == 0 {
		return nil, fmt.Errorf("openmeteo forecast for %s,%s: %w", formatCoord(lat), formatCoord(lon),
			errors.New("payload missing hourly or daily series"))
	}

	return &payload, nil
}

// AirQuality fetches the current air-quality reading for the coordinates.
func (c *Client) AirQuality(ctx context.Context, lat, lon float64) (*AirQualityResponse, error) {
	values := url.Values{}
	values.Set("latitude", formatCoord(lat))
	values.Set("longitude", formatCoord(lon))
	values.Set("current", airQualityVars)

	var payload AirQualityResponse
	if err := c.getJSON(ctx, c.airQualityCB, c.airQualityURL+"?"+values.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("openmeteo air quality for %s,%s: %w", formatCoord(lat), formatCoord(lon), err)
	}

	return &payload, nil
}

// Search geocodes a free-text city query into up to 5 ranked matches.
// An upstream non-success status yields an empty result set, not an error;
// the dashboard treats a broken search as "no matches".
func (c *Client) Search(ctx context.Context, query string) ([]CityMatch, error) {
	values := url.Values{}
	values.Set("name", query)
	values.Set("count", strconv.Itoa(searchLimit))
	values.Set("language", "en")
	values.Set("format", "json")

	var payload geocodingResponse
	err := c.getJSON(ctx, c.geocodingCB, c.geocodingURL+"?"+values.Encode(), &payload)
	if err != nil {
		if errors.Is(err, ErrUpstreamStatus) {
			c.log.Warn("geocoding search degraded", "query", query, "err", err)
			return []CityMatch{}, nil
		}
		return nil, fmt.Errorf("openmeteo search for %q: %w", query, err)
	}

	matches := make([]CityMatch, 0, len(payload.Results))
	for _, r := range payload.Results {
		matches = append(matches, CityMatch{
			Name:        r.Name,
			Country:     strings.ToUpper(r.CountryCode),
			CountryName: r.Country,
			State:       r.Admin1,
			Lat:         r.Latitude,
			Lon:         r.Longitude,
		})
	}

	return matches, nil
}

// getJSON performs a GET through the circuit breaker with retries and decodes
// the JSON response into dst. Only transport errors and 5xx/429 responses are
// retried; other non-success statuses fail immediately with ErrUpstreamStatus.
func (c *Client) getJSON(ctx context.Context, cb *gobreaker.CircuitBreaker, rawURL string, dst any) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.doOnce(ctx, cb, rawURL, dst)
		if err == nil {
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if !retryable(err) {
			return err
		}

		lastErr = err
		if attempt >= c.retry.maxRetries {
			return lastErr
		}

		delay := c.retry.initialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > c.retry.maxInterval {
			delay = c.retry.maxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// transientError marks failures worth retrying (transport errors, 5xx, 429).
type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var te transientError
	return errors.As(err, &te)
}

func (c *Client) doOnce(ctx context.Context, cb *gobreaker.CircuitBreaker, rawURL string, dst any) error {
	_, err := cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, transientError{fmt.Errorf("GET %s: %w", rawURL, err)}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, transientError{fmt.Errorf("GET %s: %w: %d", rawURL, ErrUpstreamStatus, resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s: %w: %d", rawURL, ErrUpstreamStatus, resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return nil, fmt.Errorf("decoding response from %s: %w", rawURL, err)
		}

		return nil, nil
	})
	return err
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
