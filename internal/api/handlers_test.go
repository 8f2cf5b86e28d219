package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypulse/skypulse/internal/api"
	"github.com/skypulse/skypulse/internal/geocode"
	"github.com/skypulse/skypulse/internal/openmeteo"
	"github.com/skypulse/skypulse/internal/session"
	"github.com/skypulse/skypulse/internal/weather"
)

// ---- mock implementations ----

type mockService struct {
	fetchWeatherFn func(ctx context.Context, lat, lon float64, units openmeteo.Units) (*weather.Snapshot, error)
	searchFn       func(ctx context.Context, query string) ([]openmeteo.CityMatch, error)
	resolveFn      func(ctx context.Context, lat, lon float64) (geocode.Place, error)
}

func (m *mockService) FetchWeather(ctx context.Context, lat, lon float64, units openmeteo.Units) (*weather.Snapshot, error) {
	return m.fetchWeatherFn(ctx, lat, lon, units)
}
func (m *mockService) SearchCities(ctx context.Context, query string) ([]openmeteo.CityMatch, error) {
	return m.searchFn(ctx, query)
}
func (m *mockService) ResolvePlace(ctx context.Context, lat, lon float64) (geocode.Place, error) {
	return m.resolveFn(ctx, lat, lon)
}

// memStore is an in-memory session.Store.
type memStore struct {
	mu      sync.Mutex
	records map[string]session.State
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]session.State)}
}

func (s *memStore) GetSession(_ context.Context, id string) (*session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &session.Record{ID: id, State: state}, nil
}

func (s *memStore) UpsertSession(_ context.Context, id string, state session.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = state
	return nil
}

func (s *memStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// ---- helpers ----

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSnapshot() *weather.Snapshot {
	snap := &weather.Snapshot{}
	snap.Current.Base = "open-meteo"
	snap.Current.Main.Temp = 20.5
	snap.Current.Weather = []weather.Condition{
		{ID: 800, Main: "Clear", Description: "clear sky", Icon: "01d"},
	}
	snap.Forecast.Cod = "200"
	return snap
}

func okService() *mockService {
	return &mockService{
		fetchWeatherFn: func(_ context.Context, lat, lon float64, _ openmeteo.Units) (*weather.Snapshot, error) {
			snap := sampleSnapshot()
			snap.Current.Coord = weather.Coord{Lat: lat, Lon: lon}
			return snap, nil
		},
		searchFn: func(_ context.Context, _ string) ([]openmeteo.CityMatch, error) {
			return []openmeteo.CityMatch{{Name: "London", Country: "GB", Lat: 51.5074, Lon: -0.1278}}, nil
		},
		resolveFn: func(_ context.Context, _, _ float64) (geocode.Place, error) {
			return geocode.Place{Name: "London", Country: "GB"}, nil
		},
	}
}

// newTestServer wires a router over the given service, a real session manager
// backed by an in-memory store, and healthy pingers.
func newTestServer(t *testing.T, svc api.WeatherService) (*httptest.Server, *memStore) {
	t.Helper()
	log := discardLogger()

	store := newMemStore()
	sessions := session.NewManager(store, svc, svc, log)
	handlers := api.NewHandlers(svc, sessions, log)
	router := api.NewRouter(handlers, []string{"*"}, &mockPinger{}, &mockPinger{}, log)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type sessionBody struct {
	ID          string            `json:"id"`
	Cities      []session.City    `json:"cities"`
	ActiveIndex int               `json:"active_index"`
	Units       string            `json:"units"`
	Weather     *weather.Snapshot `json:"weather"`
}

func createSession(t *testing.T, srv *httptest.Server) sessionBody {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[sessionBody](t, resp)
}

// ---- weather endpoint ----

func TestGetWeather(t *testing.T) {
	srv, _ := newTestServer(t, okService())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/weather?lat=51.5074&lon=-0.1278", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, s-maxage=600, stale-while-revalidate=1200", resp.Header.Get("Cache-Control"))

	snap := decodeBody[weather.Snapshot](t, resp)
	assert.Equal(t, "open-meteo", snap.Current.Base)
	assert.Equal(t, 51.5074, snap.Current.Coord.Lat)
}

func TestGetWeather_MissingCoords(t *testing.T) {
	srv, _ := newTestServer(t, okService())

	for _, path := range []string{
		"/api/v1/weather",
		"/api/v1/weather?lat=51.5",
		"/api/v1/weather?lon=-0.12",
	} {
		resp := doJSON(t, http.MethodGet, srv.URL+path, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		body := decodeBody[map[string]string](t, resp)
		assert.Equal(t, "Please provide coordinates (lat & lon)", body["error"])
	}
}

func TestGetWeather_InvalidCoords(t *testing.T) {
	srv, _ := newTestServer(t, okService())

	for _, path := range []string{
		"/api/v1/weather?lat=abc&lon=-0.12",
		"/api/v1/weather?lat=51.5&lon=NaN",
		"/api/v1/weather?lat=Inf&lon=-0.12",
	} {
		resp := doJSON(t, http.MethodGet, srv.URL+path, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		body := decodeBody[map[string]string](t, resp)
		assert.Equal(t, "Invalid coordinates provided", body["error"])
	}
}

func TestGetWeather_UpstreamFailure(t *testing.T) {
	svc := okService()
	svc.fetchWeatherFn = func(_ context.Context, _, _ float64, _ openmeteo.Units) (*weather.Snapshot, error) {
		return nil, fmt.Errorf("upstream down")
	}
	srv, _ := newTestServer(t, svc)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/weather?lat=51.5&lon=-0.12", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "Failed to fetch weather data", body["error"])
}

func TestGetWeather_UnitsForwarded(t *testing.T) {
	var gotUnits openmeteo.Units
	svc := okService()
	base := svc.fetchWeatherFn
	svc.fetchWeatherFn = func(ctx context.Context, lat, lon float64, units openmeteo.Units) (*weather.Snapshot, error) {
		gotUnits = units
		return base(ctx, lat, lon, units)
	}
	srv, _ := newTestServer(t, svc)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/weather?lat=51.5&lon=-0.12&units=imperial", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, openmeteo.UnitsImperial, gotUnits)
}

// ---- search endpoint ----

func TestSearchCities(t *testing.T) {
	srv, _ := newTestServer(t, okService())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/search?q=London", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	matches := decodeBody[[]openmeteo.CityMatch](t, resp)
	require.Len(t, matches, 1)
	assert.Equal(t, "London", matches[0].Name)
}

func TestSearchCities_ShortQuery(t *testing.T) {
	svc := okService()
	svc.searchFn = func(_ context.Context, _ string) ([]openmeteo.CityMatch, error) {
		t.Error("short queries must not reach the service")
		return nil, nil
	}
	srv, _ := newTestServer(t, svc)

	for _, q := range []string{"", "L"} {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/search?q="+q, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, decodeBody[[]openmeteo.CityMatch](t, resp))
	}
}

func TestSearchCities_Failure(t *testing.T) {
	svc := okService()
	svc.searchFn = func(_ context.Context, _ string) ([]openmeteo.CityMatch, error) {
		return nil, fmt.Errorf("upstream down")
	}
	srv, _ := newTestServer(t, svc)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/search?q=London", nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

// ---- geocode endpoint ----

func TestReverseGeocode(t *testing.T) {
	srv, _ := newTestServer(t, okService())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/geocode?lat=51.5074&lon=-0.1278", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, s-maxage=86400, stale-while-revalidate=604800", resp.Header.Get("Cache-Control"))

	place := decodeBody[geocode.Place](t, resp)
	assert.Equal(t, "London", place.Name)
	assert.Equal(t, "GB", place.Country)
}

func TestReverseGeocode_UnknownIsNotCached(t *testing.T) {
	svc := okService()
	svc.resolveFn = func(_ context.Context, _, _ float64) (geocode.Place, error) {
		return geocode.Place{Name: "Unknown"}, nil
	}
	srv, _ := newTestServer(t, svc)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/geocode?lat=0&lon=0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

// ---- theme endpoint ----

func TestGetTheme_Defaults(t *testing.T) {
	srv, _ := newTestServer(t, okService())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/theme?is_day=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	theme := decodeBody[weather.ThemeColors](t, resp)
	assert.Equal(t, weather.DeriveTheme(800, true, 0), theme)
}

func TestGetTheme_ImperialTemperatureConverted(t *testing.T) {
	srv, _ := newTestServer(t, okService())

	// 100.4F is 38C, which triggers the heat palette.
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/theme?id=800&is_day=1&temp=100.4&units=imperial", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	theme := decodeBody[weather.ThemeColors](t, resp)
	assert.Equal(t, "#140a06", theme.BG)
}

func TestGetTheme_InvalidID(t *testing.T) {
	srv, _ := newTestServer(t, okService())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/theme?id=clear", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ---- health endpoint ----

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, okService())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
	assert.Equal(t, "ok", body["redis"])
}

func TestHealth_Degraded(t *testing.T) {
	log := discardLogger()
	svc := okService()
	sessions := session.NewManager(newMemStore(), svc, svc, log)
	handlers := api.NewHandlers(svc, sessions, log)
	router := api.NewRouter(handlers, []string{"*"}, &mockPinger{err: fmt.Errorf("db down")}, &mockPinger{}, log)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "error", body["db"])
	assert.Equal(t, "ok", body["redis"])
}

// ---- session endpoints ----

func TestCreateSession(t *testing.T) {
	srv, store := newTestServer(t, okService())

	body := createSession(t, srv)
	assert.NotEmpty(t, body.ID)
	require.Len(t, body.Cities, 5)
	assert.Equal(t, "London", body.Cities[0].Name)
	assert.Equal(t, 0, body.ActiveIndex)
	assert.Equal(t, "metric", body.Units)

	store.mu.Lock()
	_, persisted := store.records[body.ID]
	store.mu.Unlock()
	assert.True(t, persisted, "a new session must be written to the store")
}

func TestGetSession_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, okService())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetSession_RebuiltFromStore(t *testing.T) {
	log := discardLogger()
	svc := okService()
	store := newMemStore()
	store.records["sess-1"] = session.State{
		Cities:      []session.City{{Name: "Paris", Country: "FR", Lat: 48.8566, Lon: 2.3522}},
		ActiveIndex: 0,
		Units:       openmeteo.UnitsImperial,
	}

	sessions := session.NewManager(store, svc, svc, log)
	handlers := api.NewHandlers(svc, sessions, log)
	router := api.NewRouter(handlers, []string{"*"}, &mockPinger{}, &mockPinger{}, log)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/sess-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[sessionBody](t, resp)
	require.Len(t, body.Cities, 1)
	assert.Equal(t, "Paris", body.Cities[0].Name)
	assert.Equal(t, "imperial", body.Units)
}

func TestAddSessionCity(t *testing.T) {
	srv, store := newTestServer(t, okService())
	created := createSession(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions/"+created.ID+"/cities", openmeteo.CityMatch{
		Name: "Paris", Country: "FR", Lat: 48.8566, Lon: 2.3522,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[sessionBody](t, resp)
	require.Len(t, body.Cities, 6)
	assert.Equal(t, 5, body.ActiveIndex)
	assert.Equal(t, "Paris", body.Cities[5].Name)
	require.NotNil(t, body.Weather, "adding a city fetches its snapshot")
	assert.Equal(t, 48.8566, body.Weather.Current.Coord.Lat)

	store.mu.Lock()
	persisted := store.records[created.ID]
	store.mu.Unlock()
	assert.Len(t, persisted.Cities, 6, "the new city list must be written through")
}

func TestAddSessionCity_NearDuplicateSwitches(t *testing.T) {
	srv, _ := newTestServer(t, okService())
	created := createSession(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions/"+created.ID+"/cities", openmeteo.CityMatch{
		Name: "London (alt)", Country: "GB", Lat: 51.509, Lon: -0.122,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[sessionBody](t, resp)
	assert.Len(t, body.Cities, 5, "a near-duplicate must not be inserted")
	assert.Equal(t, 0, body.ActiveIndex)
}

func TestRemoveSessionCity(t *testing.T) {
	srv, _ := newTestServer(t, okService())
	created := createSession(t, srv)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/sessions/"+created.ID+"/cities/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[sessionBody](t, resp)
	require.Len(t, body.Cities, 4)
	assert.Equal(t, "Tokyo", body.Cities[1].Name)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/sessions/"+created.ID+"/cities/9", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSelectSessionCity(t *testing.T) {
	srv, _ := newTestServer(t, okService())
	created := createSession(t, srv)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/sessions/"+created.ID+"/active", map[string]int{"index": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[sessionBody](t, resp)
	assert.Equal(t, 2, body.ActiveIndex)
	require.NotNil(t, body.Weather)
	assert.Equal(t, 35.6762, body.Weather.Current.Coord.Lat)

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/v1/sessions/"+created.ID+"/active", map[string]int{"index": 9})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetSessionUnits(t *testing.T) {
	srv, store := newTestServer(t, okService())
	created := createSession(t, srv)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/sessions/"+created.ID+"/units", map[string]string{"units": "imperial"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[sessionBody](t, resp)
	assert.Equal(t, "imperial", body.Units)
	assert.NotNil(t, body.Weather)

	store.mu.Lock()
	persisted := store.records[created.ID]
	store.mu.Unlock()
	assert.Equal(t, openmeteo.UnitsImperial, persisted.Units)
}

func TestPrefetchSession(t *testing.T) {
	srv, _ := newTestServer(t, okService())
	created := createSession(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions/"+created.ID+"/prefetch", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Every tracked city is now cached, so the active snapshot is served
	// immediately.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/"+created.ID+"/weather", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := decodeBody[weather.Snapshot](t, resp)
	assert.Equal(t, 51.5074, snap.Current.Coord.Lat)
}

func TestSessionWeather_FetchFailure(t *testing.T) {
	svc := okService()
	svc.fetchWeatherFn = func(_ context.Context, _, _ float64, _ openmeteo.Units) (*weather.Snapshot, error) {
		return nil, fmt.Errorf("upstream down")
	}
	srv, _ := newTestServer(t, svc)
	created := createSession(t, srv)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/"+created.ID+"/weather", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSessionSearch(t *testing.T) {
	srv, _ := newTestServer(t, okService())
	created := createSession(t, srv)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/"+created.ID+"/search?q=London", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	matches := decodeBody[[]openmeteo.CityMatch](t, resp)
	require.Len(t, matches, 1)
	assert.Equal(t, "London", matches[0].Name)
}

func TestSessionSearch_ShortQuery(t *testing.T) {
	srv, _ := newTestServer(t, okService())
	created := createSession(t, srv)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/"+created.ID+"/search?q=L", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[[]openmeteo.CityMatch](t, resp))
}

func TestDeleteSession(t *testing.T) {
	srv, store := newTestServer(t, okService())
	created := createSession(t, srv)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	store.mu.Lock()
	_, ok := store.records[created.ID]
	store.mu.Unlock()
	assert.False(t, ok)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
