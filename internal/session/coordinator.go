// Package session implements the per-dashboard-session request coordinator:
// the tracked city list, the (lat, lon, units) snapshot cache with in-flight
// de-duplication, batched prefetch, and debounced city search.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skypulse/skypulse/internal/openmeteo"
	"github.com/skypulse/skypulse/internal/weather"
)

const (
	// proximityThreshold is the coordinate distance below which two cities
	// are considered the same place. Identity is proximity, not name
	// equality: two search results that round to the same spot are one city.
	proximityThreshold = 0.01

	// defaultDebounce is the quiet period after the last search keystroke.
	defaultDebounce = 300 * time.Millisecond
)

var (
	// ErrIndexOutOfRange is returned for operations on an invalid city index.
	ErrIndexOutOfRange = errors.New("city index out of range")

	// ErrSearchSuperseded marks a search that was cancelled by a newer query.
	// Callers discard it silently; it never reaches the user.
	ErrSearchSuperseded = errors.New("search superseded by a newer query")
)

// City is one tracked dashboard city.
type City struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// State is the persistable view of a coordinator.
type State struct {
	Cities      []City          `json:"cities"`
	ActiveIndex int             `json:"active_index"`
	Units       openmeteo.Units `json:"units"`
}

// WeatherFetcher is the network boundary the coordinator fetches through.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, lat, lon float64, units openmeteo.Units) (*weather.Snapshot, error)
}

// CitySearcher resolves free-text city queries.
type CitySearcher interface {
	SearchCities(ctx context.Context, query string) ([]openmeteo.CityMatch, error)
}

// DefaultCities is the tracked list a fresh session starts with.
func DefaultCities() []City {
	return []City{
		{Name: "London", Country: "GB", Lat: 51.5074, Lon: -0.1278},
		{Name: "New York", Country: "US", Lat: 40.7128, Lon: -74.006},
		{Name: "Tokyo", Country: "JP", Lat: 35.6762, Lon: 139.6503},
		{Name: "Mumbai", Country: "IN", Lat: 19.076, Lon: 72.8777},
		{Name: "Dubai", Country: "AE", Lat: 25.2048, Lon: 55.2708},
	}
}

// CacheKey identifies one cached snapshot by its (lat, lon, units) triple.
func CacheKey(lat, lon float64, units openmeteo.Units) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(lon, 'f', -1, 64) + "," + string(units)
}

// Coordinator owns one session's mutable weather state. All state lives
// behind a single mutex; snapshots themselves are never mutated after being
// cached. In-flight tracking is an atomic try-reserve on the reservation map,
// so the dedup check cannot race with its own update.
type Coordinator struct {
	mu       sync.Mutex
	cities   []City
	active   int
	units    openmeteo.Units
	cache    map[string]*weather.Snapshot
	inflight map[string]struct{}

	searchGen     int
	searchCancel  context.CancelFunc
	searchResults []openmeteo.CityMatch

	fetcher  WeatherFetcher
	searcher CitySearcher
	debounce time.Duration
	log      *slog.Logger
}

// NewCoordinator builds a coordinator over the given tracked cities. An empty
// list falls back to the defaults; the active index is clamped into range.
func NewCoordinator(cities []City, active int, units openmeteo.Units, fetcher WeatherFetcher, searcher CitySearcher, log *slog.Logger) *Coordinator {
	if len(cities) == 0 {
		cities = DefaultCities()
	}
	if active < 0 || active >= len(cities) {
		active = 0
	}
	if units == "" {
		units = openmeteo.UnitsMetric
	}

	return &Coordinator{
		cities:   append([]City(nil), cities...),
		active:   active,
		units:    units,
		cache:    make(map[string]*weather.Snapshot),
		inflight: make(map[string]struct{}),
		fetcher:  fetcher,
		searcher: searcher,
		debounce: defaultDebounce,
		log:      log,
	}
}

// SetDebounce overrides the search quiet period (tests).
func (c *Coordinator) SetDebounce(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debounce = d
}

// State returns a copy of the persistable session state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Cities:      append([]City(nil), c.cities...),
		ActiveIndex: c.active,
		Units:       c.units,
	}
}

// ActiveCity returns the currently selected city.
func (c *Coordinator) ActiveCity() City {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cities[c.active]
}

// Cached returns the snapshot for a city under the current units, or nil.
func (c *Coordinator) Cached(city City) *weather.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache[CacheKey(city.Lat, city.Lon, c.units)]
}

// FetchWeather returns the snapshot for the city's cache key, fetching it if
// needed. At most one fetch is outstanding per key: a call that finds the key
// reserved returns (nil, nil) and relies on the reserving call's cache write.
// A repeated fetch for a populated key produces no network call.
func (c *Coordinator) FetchWeather(ctx context.Context, city City) (*weather.Snapshot, error) {
	c.mu.Lock()
	units := c.units
	key := CacheKey(city.Lat, city.Lon, units)
	if snap := c.cache[key]; snap != nil {
		c.mu.Unlock()
		return snap, nil
	}
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return nil, nil
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	snap, err := c.fetcher.FetchWeather(ctx, city.Lat, city.Lon, units)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)

	if err != nil {
		return nil, fmt.Errorf("fetching weather for %s: %w", city.Name, err)
	}

	// First writer wins: if the key was filled while this fetch was in
	// flight, keep the existing snapshot.
	if existing := c.cache[key]; existing != nil {
		return existing, nil
	}
	c.cache[key] = snap
	return snap, nil
}

// SelectCity switches the active city and ensures its snapshot is available.
func (c *Coordinator) SelectCity(ctx context.Context, index int) (*weather.Snapshot, error) {
	c.mu.Lock()
	if index < 0 || index >= len(c.cities) {
		c.mu.Unlock()
		return nil, ErrIndexOutOfRange
	}
	c.active = index
	city := c.cities[index]
	c.mu.Unlock()

	return c.FetchWeather(ctx, city)
}

// AddCity tracks a new city from a search result. A match within the
// proximity threshold of an existing city switches to that city instead of
// inserting, so no two tracked entries are ever near-duplicates.
func (c *Coordinator) AddCity(ctx context.Context, match openmeteo.CityMatch) (*weather.Snapshot, error) {
	c.mu.Lock()
	found := -1
	for i, existing := range c.cities {
		if near(existing.Lat, match.Lat) && near(existing.Lon, match.Lon) {
			found = i
			break
		}
	}

	if found >= 0 {
		c.active = found
	} else {
		c.cities = append(c.cities, City{
			Name:    match.Name,
			Country: match.Country,
			State:   match.State,
			Lat:     match.Lat,
			Lon:     match.Lon,
		})
		c.active = len(c.cities) - 1
	}
	city := c.cities[c.active]
	c.mu.Unlock()

	return c.FetchWeather(ctx, city)
}

func near(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < proximityThreshold
}

// RemoveCity drops a tracked city. Removing the last remaining city is a
// no-op: at least one city is always shown. Removing at or before the active
// index shifts the index back so it keeps pointing at the same city.
func (c *Coordinator) RemoveCity(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.cities) {
		return ErrIndexOutOfRange
	}
	if len(c.cities) <= 1 {
		return nil
	}

	c.cities = append(c.cities[:index], c.cities[index+1:]...)
	if c.active >= index && c.active > 0 {
		c.active--
	}
	return nil
}

// SetUnits switches the unit system and fetches the active city under the
// new cache key. Snapshots cached under the old units stay cached.
func (c *Coordinator) SetUnits(ctx context.Context, units openmeteo.Units) (*weather.Snapshot, error) {
	c.mu.Lock()
	c.units = units
	city := c.cities[c.active]
	c.mu.Unlock()

	return c.FetchWeather(ctx, city)
}

// PrefetchAll fetches every tracked city whose key is neither cached nor
// reserved. Individual failures are logged and swallowed so one bad city
// does not block the others; all successes are merged into the cache in a
// single batched update after the last fetch resolves.
func (c *Coordinator) PrefetchAll(ctx context.Context) {
	type task struct {
		key  string
		city City
	}

	c.mu.Lock()
	units := c.units
	var tasks []task
	for _, city := range c.cities {
		key := CacheKey(city.Lat, city.Lon, units)
		if _, ok := c.cache[key]; ok {
			continue
		}
		if _, busy := c.inflight[key]; busy {
			continue
		}
		c.inflight[key] = struct{}{}
		tasks = append(tasks, task{key: key, city: city})
	}
	c.mu.Unlock()

	if len(tasks) == 0 {
		return
	}

	results := make([]*weather.Snapshot, len(tasks))
	g, gCtx := errgroup.WithContext(ctx)
	for i, tk := range tasks {
		i, tk := i, tk
		g.Go(func() error {
			snap, err := c.fetcher.FetchWeather(gCtx, tk.city.Lat, tk.city.Lon, units)
			if err != nil {
				c.log.Warn("prefetch failed", "city", tk.city.Name, "err", err)
				return nil
			}
			results[i] = snap
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, tk := range tasks {
		delete(c.inflight, tk.key)
		if results[i] == nil {
			continue
		}
		if _, ok := c.cache[tk.key]; !ok {
			c.cache[tk.key] = results[i]
		}
	}
}

// Search resolves a city query after the debounce quiet period. Each call
// cancels the previous pending search, timer and network call both; queries
// shorter than two characters resolve to an empty set without the network,
// and results arriving for a superseded query are discarded.
func (c *Coordinator) Search(ctx context.Context, query string) ([]openmeteo.CityMatch, error) {
	c.mu.Lock()
	c.searchGen++
	gen := c.searchGen
	if c.searchCancel != nil {
		c.searchCancel()
		c.searchCancel = nil
	}
	if len([]rune(query)) < 2 {
		c.searchResults = nil
		c.mu.Unlock()
		return []openmeteo.CityMatch{}, nil
	}
	sctx, cancel := context.WithCancel(ctx)
	c.searchCancel = cancel
	debounce := c.debounce
	c.mu.Unlock()

	timer := time.NewTimer(debounce)
	select {
	case <-sctx.Done():
		timer.Stop()
		return nil, ErrSearchSuperseded
	case <-timer.C:
	}

	matches, err := c.searcher.SearchCities(sctx, query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.searchGen {
		// A newer query started while this one was on the wire.
		return nil, ErrSearchSuperseded
	}
	c.searchCancel = nil

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrSearchSuperseded
		}
		return nil, fmt.Errorf("searching cities for %q: %w", query, err)
	}

	c.searchResults = matches
	return matches, nil
}

// SearchResults returns the most recent completed search's results.
func (c *Coordinator) SearchResults() []openmeteo.CityMatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]openmeteo.CityMatch(nil), c.searchResults...)
}
