package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/globalboard/internal/adapters/repository"
	service "github.com/okian/globalboard/internal/app"
	"github.com/okian/globalboard/internal/domain/model"
	"github.com/okian/globalboard/internal/domain/upstream"
)

// PlayersDependencies defines the player operations used by the handlers.
type PlayersDependencies interface {
	UpdatePlayer(ctx context.Context, requester, idOrName string) (model.UpdateResult, error)
	Players(ctx context.Context) ([]model.RankedPlayer, error)
	PlayersByCountry(ctx context.Context, codes []string) ([]model.Player, error)
	ScoreDetails(ctx context.Context, id string) (model.Breakdown, error)
}

// PlayersHandler handles player requests.
type PlayersHandler struct {
	deps PlayersDependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayersDependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

// playerResponse is a scoreboard row.
type playerResponse struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	CountryCode string `json:"countryCode"`
	Score       int64  `json:"score"`
	LastUpdate  string `json:"lastUpdate"`
	Rank        int    `json:"rank,omitempty"`
}

func toPlayerResponse(p model.Player, rank int) playerResponse {
	last := ""
	if !p.LastUpdate.IsZero() {
		last = p.LastUpdate.Format(model.LastUpdateLayout)
	}
	return playerResponse{
		UserID:      p.ID,
		Name:        p.Name,
		CountryCode: p.CountryCode,
		Score:       p.Score,
		LastUpdate:  last,
		Rank:        rank,
	}
}

// HandleUpdate handles POST /players/{id}/update requests.
func (h *PlayersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_player"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	result, err := h.deps.UpdatePlayer(r.Context(), clientIP(r), id)
	if err != nil {
		writeUpdateError(w, op, err)
		return
	}

	status := http.StatusOK
	if result.State == model.StateWarning || result.State == model.StateDanger {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

func writeUpdateError(w http.ResponseWriter, op string, err error) {
	var uerr *upstream.Error
	switch {
	case errors.Is(err, service.ErrEmptyID):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrUpdateInProgress):
		writeError(w, http.StatusConflict, "in_progress", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case upstream.IsOverload(err):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Code:    "overloaded",
			Message: "speedrun.com is overloaded. Please try again later.",
			Details: err.Error(),
		})
	case errors.As(err, &uerr):
		writeJSON(w, http.StatusFailedDependency, errorResponse{
			Code:    uerr.Kind.String(),
			Message: uerr.Label,
			Details: uerr.Detail,
		})
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// HandleList handles GET /players[?region=a,b] requests.
func (h *PlayersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_players"
	codes := splitCodes(r.URL.Query().Get("region"))

	out := []playerResponse{}
	if len(codes) > 0 {
		players, err := h.deps.PlayersByCountry(r.Context(), codes)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
		for _, p := range players {
			out = append(out, toPlayerResponse(p, 0))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	ranked, err := h.deps.Players(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	for _, p := range ranked {
		out = append(out, toPlayerResponse(p.Player, p.Rank))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleScoreDetails handles GET /players/{id}/score-details requests.
func (h *PlayersHandler) HandleScoreDetails(w http.ResponseWriter, r *http.Request) {
	const op = "api.score_details"
	details, err := h.deps.ScoreDetails(r.Context(), r.PathValue("id"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func splitCodes(raw string) []string {
	var codes []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}
