package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skypulse/skypulse/internal/geocode"
	"github.com/skypulse/skypulse/internal/openmeteo"
	"github.com/skypulse/skypulse/internal/weather"
)

// upstreamClient is the slice of openmeteo.Client used by the service.
type upstreamClient interface {
	Forecast(ctx context.Context, lat, lon float64, units openmeteo.Units) (*openmeteo.ForecastResponse, error)
	AirQuality(ctx context.Context, lat, lon float64) (*openmeteo.AirQualityResponse, error)
	Search(ctx context.Context, query string) ([]openmeteo.CityMatch, error)
}

// placeResolver is the slice of geocode.Resolver used by the service.
type placeResolver interface {
	Resolve(ctx context.Context, lat, lon float64) geocode.Place
}

// snapshotCache is the slice of cache.Cache used by the service. Cache
// failures degrade to misses; they never fail a request.
type snapshotCache interface {
	GetSnapshot(ctx context.Context, lat, lon float64, units openmeteo.Units) (*weather.Snapshot, error)
	SetSnapshot(ctx context.Context, lat, lon float64, units openmeteo.Units, snap *weather.Snapshot) error
	GetPlace(ctx context.Context, lat, lon float64) (*geocode.Place, error)
	SetPlace(ctx context.Context, lat, lon float64, place geocode.Place) error
}

// Service is the network boundary in front of the upstream APIs: it fetches,
// normalizes, and caches. It satisfies both the handlers' WeatherService and
// the session package's fetcher and searcher contracts.
type Service struct {
	client   upstreamClient
	resolver placeResolver
	cache    snapshotCache
	now      func() time.Time
	log      *slog.Logger
}

// NewService constructs a Service with all dependencies.
func NewService(client upstreamClient, resolver placeResolver, cache snapshotCache, log *slog.Logger) *Service {
	return &Service{
		client:   client,
		resolver: resolver,
		cache:    cache,
		now:      time.Now,
		log:      log,
	}
}

// FetchWeather returns the normalized snapshot for one (lat, lon, units)
// key. The forecast and air-quality fetches run in parallel; a failed
// air-quality fetch degrades to the zeroed category-1 reading, while a
// failed forecast fetch fails the whole operation. No partial snapshot is
// ever synthesized.
func (s *Service) FetchWeather(ctx context.Context, lat, lon float64, units openmeteo.Units) (*weather.Snapshot, error) {
	cached, err := s.cache.GetSnapshot(ctx, lat, lon, units)
	if err != nil {
		s.log.Warn("snapshot cache get failed", "lat", lat, "lon", lon, "err", err)
	}
	if cached != nil {
		return cached, nil
	}

	var fc *openmeteo.ForecastResponse
	var aq *openmeteo.AirQualityResponse

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fc, err = s.client.Forecast(gCtx, lat, lon, units)
		return err
	})
	g.Go(func() error {
		reading, err := s.client.AirQuality(gCtx, lat, lon)
		if err != nil {
			s.log.Warn("air quality fetch failed", "lat", lat, "lon", lon, "err", err)
			return nil
		}
		aq = reading
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching weather for %v,%v: %w", lat, lon, err)
	}

	snap := weather.Normalize(fc, aq, lat, lon, units == openmeteo.UnitsImperial, s.now())

	if err := s.cache.SetSnapshot(ctx, lat, lon, units, &snap); err != nil {
		s.log.Warn("snapshot cache set failed", "lat", lat, "lon", lon, "err", err)
	}

	return &snap, nil
}

// SearchCities delegates free-text queries to the geocoding API.
func (s *Service) SearchCities(ctx context.Context, query string) ([]openmeteo.CityMatch, error) {
	return s.client.Search(ctx, query)
}

// ResolvePlace reverse-geocodes coordinates, caching resolved names for a
// day. Failed lookups yield the "Unknown" place and are not cached.
func (s *Service) ResolvePlace(ctx context.Context, lat, lon float64) (geocode.Place, error) {
	cached, err := s.cache.GetPlace(ctx, lat, lon)
	if err != nil {
		s.log.Warn("place cache get failed", "lat", lat, "lon", lon, "err", err)
	}
	if cached != nil {
		return *cached, nil
	}

	place := s.resolver.Resolve(ctx, lat, lon)

	if place.Name != "Unknown" {
		if err := s.cache.SetPlace(ctx, lat, lon, place); err != nil {
			s.log.Warn("place cache set failed", "lat", lat, "lon", lon, "err", err)
		}
	}

	return place, nil
}
