package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/fortuna/clio/internal/ingest/bbref"
	"github.com/fortuna/clio/internal/store"
	"github.com/fortuna/clio/internal/store/repository"
	"github.com/gorilla/mux"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// PlayerReader is the read side of the player repository.
type PlayerReader interface {
	GetByID(ctx context.Context, playerID string) (*store.Player, error)
	Search(ctx context.Context, name string, limit int) ([]*store.Player, error)
	ListByLetter(ctx context.Context, letter string, limit int) ([]*store.Player, error)
	Count(ctx context.Context) (int, error)
}

// StatsReader loads decoded season rows for a player.
type StatsReader interface {
	StatRows(ctx context.Context, playerID string) ([]bbref.StatRow, error)
}

// HealthChecker is implemented by the database and the Redis cache.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	players PlayerReader
	stats   StatsReader
	checks  map[string]HealthChecker
}

// NewHandler creates a new handler. checks maps a component name to its
// health probe; nil probes are ignored.
func NewHandler(players PlayerReader, stats StatsReader, checks map[string]HealthChecker) *Handler {
	return &Handler{
		players: players,
		stats:   stats,
		checks:  checks,
	}
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := map[string]string{}
	for name, check := range h.checks {
		if check == nil {
			continue
		}
		if err := check.HealthCheck(r.Context()); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}

	respondJSON(w, status, map[string]interface{}{
		"status":     overall,
		"service":    "clio",
		"components": components,
	})
}

// ListPlayers returns stored players for one index letter
func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	letter := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("letter")))
	if len(letter) != 1 || letter[0] < 'a' || letter[0] > 'z' {
		respondError(w, http.StatusBadRequest, "Query parameter 'letter' must be a single letter a-z", nil)
		return
	}

	players, err := h.players.ListByLetter(r.Context(), letter, parseLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list players", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"letter":  letter,
		"players": playerPayloads(players),
	})
}

// SearchPlayers searches for players by name
func (h *Handler) SearchPlayers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "Missing query parameter 'q'", nil)
		return
	}

	players, err := h.players.Search(r.Context(), query, parseLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to search players", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"players": playerPayloads(players)})
}

// GetPlayer returns a player by ID
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := mux.Vars(r)["playerID"]

	player, err := h.players.GetByID(r.Context(), playerID)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Player not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch player", err)
		return
	}

	respondJSON(w, http.StatusOK, playerPayload(player))
}

// GetPlayerStats returns a player's season rows in page order
func (h *Handler) GetPlayerStats(w http.ResponseWriter, r *http.Request) {
	playerID := mux.Vars(r)["playerID"]

	if _, err := h.players.GetByID(r.Context(), playerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Player not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to fetch player", err)
		return
	}

	rows, err := h.stats.StatRows(r.Context(), playerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch player stats", err)
		return
	}

	seasons := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		seasons = append(seasons, statRowPayload(row))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"player_id": playerID,
		"seasons":   seasons,
	})
}

func parseLimit(r *http.Request) int {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= maxListLimit {
			limit = l
		}
	}
	return limit
}

func playerPayloads(players []*store.Player) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(players))
	for _, p := range players {
		out = append(out, playerPayload(p))
	}
	return out
}

func playerPayload(p *store.Player) map[string]interface{} {
	payload := map[string]interface{}{
		"player_id":        p.PlayerID,
		"name":             p.FullName,
		"url":              p.SourceURL,
		"positions":        []string(p.Positions),
		"year_from":        p.YearFrom,
		"defaulted_fields": []string(p.DefaultedFields),
		"scraped_at":       p.ScrapedAt,
	}

	if p.Positions == nil {
		payload["positions"] = []string{}
	}
	if p.DefaultedFields == nil {
		payload["defaulted_fields"] = []string{}
	}
	if p.HeightMeters.Valid {
		payload["height_m"] = p.HeightMeters.Float64
	}
	if p.WeightPounds.Valid {
		payload["weight_lb"] = p.WeightPounds.Float64
	}
	if p.WeightKilograms.Valid {
		payload["weight_kg"] = p.WeightKilograms.Float64
	}
	if p.BirthDate.Valid {
		payload["birthdate"] = p.BirthDate.Time.Format("2006-01-02")
	}
	if p.DebutDate.Valid {
		payload["nba_debut"] = p.DebutDate.Time.Format("2006-01-02")
	}
	if p.YearTo.Valid {
		payload["year_to"] = p.YearTo.Int32
	}

	return payload
}

func statRowPayload(row bbref.StatRow) map[string]interface{} {
	values := make(map[string]interface{}, len(row.Values))
	for col, v := range row.Values {
		if v.Numeric {
			values[col] = v.Number
		} else {
			values[col] = v.Raw
		}
	}
	return map[string]interface{}{
		"season":  row.Season,
		"columns": row.Columns,
		"values":  values,
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	respondJSON(w, status, response)
}
