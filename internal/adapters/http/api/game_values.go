package api

import (
	"context"
	"net/http"

	"github.com/okian/globalboard/internal/domain/model"
)

// GameValuesDependencies defines the game value operations.
type GameValuesDependencies interface {
	GameValues(ctx context.Context) ([]model.GameValue, error)
}

// GameValuesHandler handles game value requests.
type GameValuesHandler struct {
	deps GameValuesDependencies
}

// NewGameValuesHandler creates a new game values handler.
func NewGameValuesHandler(deps GameValuesDependencies) *GameValuesHandler {
	return &GameValuesHandler{deps: deps}
}

// HandleList handles GET /game-values requests.
func (h *GameValuesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	values, err := h.deps.GameValues(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap("api.game_values", err))
		return
	}
	if values == nil {
		values = []model.GameValue{}
	}
	writeJSON(w, http.StatusOK, values)
}
