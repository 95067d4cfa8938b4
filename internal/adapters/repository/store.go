// Package repository persists scored players and game values.
package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/okian/globalboard/internal/domain/model"
	"github.com/okian/globalboard/pkg/metrics"
)

// Store provides read/write access to the scoreboard state.
type Store interface {
	// GetPlayer returns ErrNotFound if the player is unknown.
	GetPlayer(ctx context.Context, id string) (model.Player, error)
	// UpsertPlayer inserts the player or replaces the stored row.
	UpsertPlayer(ctx context.Context, p model.Player) error
	// DeletePlayer removes a player. Deleting an unknown player is not an error.
	DeletePlayer(ctx context.Context, id string) error

	// ListPlayers returns every player with a positive score, best first.
	// Players with equal scores share a rank.
	ListPlayers(ctx context.Context) ([]model.RankedPlayer, error)
	// ListPlayersByCountry returns players whose country code is one of codes
	// or a subdivision of one ("ca" matches "ca" and "ca/qc").
	ListPlayersByCountry(ctx context.Context, codes []string) ([]model.Player, error)
	// ScoreDetails returns the stored breakdown of a player's score.
	ScoreDetails(ctx context.Context, id string) (model.Breakdown, error)

	UpsertGameValues(ctx context.Context, values []model.GameValue) error
	ListGameValues(ctx context.Context) ([]model.GameValue, error)

	Close() error
}

// Rank orders players by score desc then name and assigns competition
// ranks: equal scores share a rank and the next rank skips accordingly.
// Players without a positive score are left out.
func Rank(players []model.Player) []model.RankedPlayer {
	out := make([]model.RankedPlayer, 0, len(players))
	for _, p := range players {
		if p.Score > 0 {
			out = append(out, model.RankedPlayer{Player: p})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}

// MatchesCountry reports whether code is one of codes or a subdivision of one.
func MatchesCountry(code string, codes []string) bool {
	for _, c := range codes {
		if c == "" {
			continue
		}
		if code == c || strings.HasPrefix(code, c+"/") {
			return true
		}
	}
	return false
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
