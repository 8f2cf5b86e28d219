package api

import (
	"context"

	"github.com/skypulse/skypulse/internal/geocode"
	"github.com/skypulse/skypulse/internal/openmeteo"
	"github.com/skypulse/skypulse/internal/session"
	"github.com/skypulse/skypulse/internal/weather"
)

// WeatherService defines the weather, search, and geocoding operations
// needed by handlers.
type WeatherService interface {
	FetchWeather(ctx context.Context, lat, lon float64, units openmeteo.Units) (*weather.Snapshot, error)
	SearchCities(ctx context.Context, query string) ([]openmeteo.CityMatch, error)
	ResolvePlace(ctx context.Context, lat, lon float64) (geocode.Place, error)
}

// SessionManager defines the session lifecycle operations needed by handlers.
type SessionManager interface {
	Create(ctx context.Context) (string, *session.Coordinator, error)
	Get(ctx context.Context, id string) (*session.Coordinator, error)
	Persist(ctx context.Context, id string, coord *session.Coordinator) error
	Delete(ctx context.Context, id string) error
}
