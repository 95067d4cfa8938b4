// Package api maps HTTP requests onto the scoring service.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/globalboard/internal/domain/model"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	// UpdatePlayer scores a player and stores the result.
	UpdatePlayer(ctx context.Context, requester, idOrName string) (model.UpdateResult, error)

	// Read operations expose the stored scoreboard.
	Players(ctx context.Context) ([]model.RankedPlayer, error)
	PlayersByCountry(ctx context.Context, codes []string) ([]model.Player, error)
	ScoreDetails(ctx context.Context, id string) (model.Breakdown, error)
	GameValues(ctx context.Context) ([]model.GameValue, error)

	Stats(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	playersHandler    *PlayersHandler
	gameValuesHandler *GameValuesHandler

	updateLimiter *IPRateLimiter
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:     NewHealthHandler(deps),
		playersHandler:    NewPlayersHandler(deps),
		gameValuesHandler: NewGameValuesHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	update := s.playersHandler.HandleUpdate
	if s.updateLimiter != nil {
		update = RateLimitMiddleware(s.updateLimiter, update)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("POST /players/{id}/update", MetricsMiddleware(update, "update_player"))
	mux.HandleFunc("GET /players", MetricsMiddleware(s.playersHandler.HandleList, "players"))
	mux.HandleFunc("GET /players/{id}/score-details", MetricsMiddleware(s.playersHandler.HandleScoreDetails, "score_details"))
	mux.HandleFunc("GET /game-values", MetricsMiddleware(s.gameValuesHandler.HandleList, "game_values"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
