package model

import (
	"math"
	"strings"
)

// GameValue records the world record worth of a full-game category,
// used to search games by how many points they are worth.
type GameValue struct {
	GameID             string `db:"game_id" json:"gameId"`
	CategoryID         string `db:"category_id" json:"categoryId"`
	RunID              string `db:"run_id" json:"runId"`
	PlatformID         string `db:"platform_id" json:"platformId"`
	AlternatePlatforms string `db:"alternate_platforms" json:"alternatePlatforms"`
	WRTime             int64  `db:"wr_time" json:"wrTime"`
	WRPoints           int64  `db:"wr_points" json:"wrPoints"`
	MeanTime           int64  `db:"mean_time" json:"meanTime"`
}

// GameValueOf returns the game value recorded for r. Only full-game world
// record runs worth at least one point qualify.
func GameValueOf(r *Run) (GameValue, bool) {
	if r.Points < 1 || r.IsLevel() || !r.IsWRTime {
		return GameValue{}, false
	}
	alternates := make([]string, 0, len(r.GamePlatforms))
	for _, p := range r.GamePlatforms {
		if p != r.PlatformID {
			alternates = append(alternates, p)
		}
	}
	return GameValue{
		GameID:             r.GameID,
		CategoryID:         r.CategoryID,
		RunID:              r.ID,
		PlatformID:         r.PlatformID,
		AlternatePlatforms: strings.Join(alternates, ","),
		WRTime:             int64(math.Floor(r.Time)),
		WRPoints:           int64(math.Floor(r.Points)),
		MeanTime:           int64(math.Floor(r.MeanTime)),
	}, true
}
