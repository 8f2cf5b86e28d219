// Package geocode resolves coordinates back to city names. A small table of
// well-known coordinates is checked before falling back to Nominatim; every
// failure path degrades to "Unknown" rather than an error, since a missing
// city label never justifies breaking the dashboard.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org/reverse"
	userAgent           = "SkyPulse Weather Dashboard/1.0"
	httpTimeout         = 10 * time.Second
)

// Place is a reverse-geocoding result: {name, country}.
type Place struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

// unknownPlace is the defined fallback for any lookup failure.
var unknownPlace = Place{Name: "Unknown", Country: ""}

// knownCities short-circuits lookups for the default dashboard cities,
// keyed by coordinates rounded to two decimals.
var knownCities = map[string]Place{
	"51.51,-0.13":  {Name: "London", Country: "GB"},
	"40.71,-74.01": {Name: "New York", Country: "US"},
	"35.68,139.65": {Name: "Tokyo", Country: "JP"},
	"19.08,72.88":  {Name: "Mumbai", Country: "IN"},
	"25.20,55.27":  {Name: "Dubai", Country: "AE"},
}

// Resolver reverse-geocodes coordinates via the built-in table and Nominatim.
type Resolver struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewResolver constructs a Resolver against the production Nominatim endpoint.
func NewResolver(log *slog.Logger) *Resolver {
	return NewResolverWithURL(defaultNominatimURL, log)
}

// NewResolverWithURL constructs a Resolver against a custom endpoint (for tests).
func NewResolverWithURL(baseURL string, log *slog.Logger) *Resolver {
	return &Resolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: httpTimeout},
		log:     log,
	}
}

// Key returns the two-decimal coordinate key used for the known-cities table
// and for caching resolved places.
func Key(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

type nominatimResponse struct {
	Name    string `json:"name"`
	Address struct {
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

// Resolve maps coordinates to a place. The known-cities table wins; otherwise
// Nominatim is consulted with a city-level zoom. Any failure returns the
// "Unknown" place with a nil error.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) Place {
	if p, ok := knownCities[Key(lat, lon)]; ok {
		return p
	}

	values := url.Values{}
	values.Set("lat", fmt.Sprintf("%v", lat))
	values.Set("lon", fmt.Sprintf("%v", lon))
	values.Set("format", "json")
	values.Set("zoom", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		r.log.Warn("reverse geocode request build failed", "lat", lat, "lon", lon, "err", err)
		return unknownPlace
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("reverse geocode fetch failed", "lat", lat, "lon", lon, "err", err)
		return unknownPlace
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.Warn("reverse geocode non-success status", "lat", lat, "lon", lon, "status", resp.StatusCode)
		return unknownPlace
	}

	var raw nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		r.log.Warn("reverse geocode decode failed", "lat", lat, "lon", lon, "err", err)
		return unknownPlace
	}

	name := firstNonEmpty(raw.Address.City, raw.Address.Town, raw.Address.Village, raw.Name)
	if name == "" {
		name = "Unknown"
	}

	return Place{
		Name:    name,
		Country: strings.ToUpper(raw.Address.CountryCode),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
