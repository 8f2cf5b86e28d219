package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skypulse/skypulse/internal/openmeteo"
	"github.com/skypulse/skypulse/internal/session"
	"github.com/skypulse/skypulse/internal/weather"
)

const (
	weatherCacheControl = "public, s-maxage=600, stale-while-revalidate=1200"
	geocodeCacheControl = "public, s-maxage=86400, stale-while-revalidate=604800"
	noStoreCacheControl = "no-store"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	svc      WeatherService
	sessions SessionManager
	log      *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(svc WeatherService, sessions SessionManager, log *slog.Logger) *Handlers {
	return &Handlers{svc: svc, sessions: sessions, log: log}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseCoords validates the lat/lon query parameters. Missing or non-finite
// values are rejected before any network call.
func parseCoords(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	rawLat := r.URL.Query().Get("lat")
	rawLon := r.URL.Query().Get("lon")

	if rawLat == "" || rawLon == "" {
		w.Header().Set("Cache-Control", noStoreCacheControl)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Please provide coordinates (lat & lon)"})
		return 0, 0, false
	}

	lat, errLat := strconv.ParseFloat(rawLat, 64)
	lon, errLon := strconv.ParseFloat(rawLon, 64)
	if errLat != nil || errLon != nil ||
		math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		w.Header().Set("Cache-Control", noStoreCacheControl)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid coordinates provided"})
		return 0, 0, false
	}

	return lat, lon, true
}

// GetWeather handles GET /api/v1/weather?lat&lon&units.
// The whole operation fails when the forecast fetch fails; there is no
// partial snapshot.
func (h *Handlers) GetWeather(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := parseCoords(w, r)
	if !ok {
		return
	}
	units := openmeteo.ParseUnits(r.URL.Query().Get("units"))

	snap, err := h.svc.FetchWeather(r.Context(), lat, lon, units)
	if err != nil {
		h.log.Error("weather fetch failed", "lat", lat, "lon", lon, "err", err)
		w.Header().Set("Cache-Control", noStoreCacheControl)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to fetch weather data"})
		return
	}

	w.Header().Set("Cache-Control", weatherCacheControl)
	writeJSON(w, http.StatusOK, snap)
}

// SearchCities handles GET /api/v1/search?q.
// Queries shorter than two characters resolve to an empty list without
// contacting the network.
func (h *Handlers) SearchCities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if len([]rune(query)) < 2 {
		writeJSON(w, http.StatusOK, []openmeteo.CityMatch{})
		return
	}

	matches, err := h.svc.SearchCities(r.Context(), query)
	if err != nil {
		h.log.Error("city search failed", "query", query, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to search cities"})
		return
	}

	writeJSON(w, http.StatusOK, matches)
}

// ReverseGeocode handles GET /api/v1/geocode?lat&lon.
// Failures degrade to the "Unknown" place; the endpoint never errors past
// input validation.
func (h *Handlers) ReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := parseCoords(w, r)
	if !ok {
		return
	}

	place, err := h.svc.ResolvePlace(r.Context(), lat, lon)
	if err != nil {
		h.log.Warn("reverse geocode failed", "lat", lat, "lon", lon, "err", err)
		w.Header().Set("Cache-Control", noStoreCacheControl)
		writeJSON(w, http.StatusOK, map[string]string{"name": "Unknown", "country": ""})
		return
	}

	if place.Name == "Unknown" {
		w.Header().Set("Cache-Control", noStoreCacheControl)
	} else {
		w.Header().Set("Cache-Control", geocodeCacheControl)
	}
	writeJSON(w, http.StatusOK, place)
}

// GetTheme handles GET /api/v1/theme?id&is_day&temp&units.
// Temperature arrives in the requested unit system and is converted to
// Celsius before theme derivation.
func (h *Handlers) GetTheme(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	weatherID := 800
	if raw := q.Get("id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid weather id"})
			return
		}
		weatherID = id
	}

	isDay := q.Get("is_day") == "true" || q.Get("is_day") == "1"

	var tempC float64
	if raw := q.Get("temp"); raw != "" {
		temp, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid temperature"})
			return
		}
		tempC = temp
		if openmeteo.ParseUnits(q.Get("units")) == openmeteo.UnitsImperial {
			tempC = (temp - 32) * 5 / 9
		}
	}

	writeJSON(w, http.StatusOK, weather.DeriveTheme(weatherID, isDay, tempC))
}

// ---- session endpoints ----

// sessionResponse is the session state as served to the dashboard.
type sessionResponse struct {
	ID          string            `json:"id"`
	Cities      []session.City    `json:"cities"`
	ActiveIndex int               `json:"active_index"`
	Units       openmeteo.Units   `json:"units"`
	Weather     *weather.Snapshot `json:"weather,omitempty"`
}

func newSessionResponse(id string, state session.State, snap *weather.Snapshot) sessionResponse {
	return sessionResponse{
		ID:          id,
		Cities:      state.Cities,
		ActiveIndex: state.ActiveIndex,
		Units:       state.Units,
		Weather:     snap,
	}
}

// CreateSession handles POST /api/v1/sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, coord, err := h.sessions.Create(r.Context())
	if err != nil {
		h.log.Error("session create failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create session"})
		return
	}

	writeJSON(w, http.StatusCreated, newSessionResponse(id, coord.State(), nil))
}

// getSession resolves the {id} URL parameter to a live coordinator, writing
// the error response itself when that fails.
func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) (string, *session.Coordinator, bool) {
	id := chi.URLParam(r, "id")

	coord, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
			return "", nil, false
		}
		h.log.Error("session load failed", "session", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load session"})
		return "", nil, false
	}

	return id, coord, true
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := h.getSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(id, coord.State(), coord.Cached(coord.ActiveCity())))
}

// DeleteSession handles DELETE /api/v1/sessions/{id}.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		h.log.Error("session delete failed", "session", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete session"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddSessionCity handles POST /api/v1/sessions/{id}/cities.
// A result near an already-tracked city switches to it instead of inserting.
func (h *Handlers) AddSessionCity(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := h.getSession(w, r)
	if !ok {
		return
	}

	var match openmeteo.CityMatch
	if err := json.NewDecoder(r.Body).Decode(&match); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid city payload"})
		return
	}

	snap, err := coord.AddCity(r.Context(), match)
	h.persist(r.Context(), id, coord)
	if err != nil {
		h.log.Error("add city fetch failed", "session", id, "city", match.Name, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to fetch weather data"})
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(id, coord.State(), snap))
}

// RemoveSessionCity handles DELETE /api/v1/sessions/{id}/cities/{index}.
// Removing the last remaining city is a no-op.
func (h *Handlers) RemoveSessionCity(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := h.getSession(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid city index"})
		return
	}

	if err := coord.RemoveCity(index); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "City index out of range"})
		return
	}
	h.persist(r.Context(), id, coord)

	writeJSON(w, http.StatusOK, newSessionResponse(id, coord.State(), nil))
}

// SelectSessionCity handles PUT /api/v1/sessions/{id}/active.
func (h *Handlers) SelectSessionCity(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := h.getSession(w, r)
	if !ok {
		return
	}

	var body struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid selection payload"})
		return
	}

	snap, err := coord.SelectCity(r.Context(), body.Index)
	if err != nil {
		if errors.Is(err, session.ErrIndexOutOfRange) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "City index out of range"})
			return
		}
		h.persist(r.Context(), id, coord)
		h.log.Error("select city fetch failed", "session", id, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to fetch weather data"})
		return
	}
	h.persist(r.Context(), id, coord)

	writeJSON(w, http.StatusOK, newSessionResponse(id, coord.State(), snap))
}

// SetSessionUnits handles PUT /api/v1/sessions/{id}/units.
// Snapshots cached under the previous unit system stay cached.
func (h *Handlers) SetSessionUnits(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := h.getSession(w, r)
	if !ok {
		return
	}

	var body struct {
		Units string `json:"units"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid units payload"})
		return
	}

	snap, err := coord.SetUnits(r.Context(), openmeteo.ParseUnits(body.Units))
	h.persist(r.Context(), id, coord)
	if err != nil {
		h.log.Error("set units fetch failed", "session", id, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to fetch weather data"})
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(id, coord.State(), snap))
}

// PrefetchSession handles POST /api/v1/sessions/{id}/prefetch.
// Individual city failures are swallowed; the endpoint always succeeds.
func (h *Handlers) PrefetchSession(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := h.getSession(w, r)
	if !ok {
		return
	}

	coord.PrefetchAll(r.Context())
	writeJSON(w, http.StatusOK, newSessionResponse(id, coord.State(), nil))
}

// SessionWeather handles GET /api/v1/sessions/{id}/weather: the snapshot for
// the active city. A fetch already underway elsewhere yields 202.
func (h *Handlers) SessionWeather(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := h.getSession(w, r)
	if !ok {
		return
	}

	snap, err := coord.FetchWeather(r.Context(), coord.ActiveCity())
	if err != nil {
		h.log.Error("session weather fetch failed", "session", id, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to fetch weather data"})
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "fetching"})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// SessionSearch handles GET /api/v1/sessions/{id}/search?q.
// Superseded searches resolve to an empty list, never an error.
func (h *Handlers) SessionSearch(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := h.getSession(w, r)
	if !ok {
		return
	}

	matches, err := coord.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		if errors.Is(err, session.ErrSearchSuperseded) {
			writeJSON(w, http.StatusOK, []openmeteo.CityMatch{})
			return
		}
		h.log.Error("session search failed", "session", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to search cities"})
		return
	}

	writeJSON(w, http.StatusOK, matches)
}

// persist writes session state through to the store, logging failures rather
// than surfacing them: the live coordinator is still authoritative.
func (h *Handlers) persist(ctx context.Context, id string, coord *session.Coordinator) {
	if err := h.sessions.Persist(ctx, id, coord); err != nil {
		h.log.Warn("session persist failed", "session", id, "err", err)
	}
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis
// connectivity: 200 when both respond, 503 otherwise.
func HealthHandlerFunc(db dbPinger, redis redisPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		redisStatus := "ok"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if err := redis.Ping(ctx); err != nil {
			log.Error("health check: redis ping failed", "err", err)
			redisStatus = "error"
			status = http.StatusServiceUnavailable
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}

		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}

type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}
