// Package personalbest selects the runs of a player worth scoring.
package personalbest

import (
	"github.com/okian/globalboard/internal/domain/model"
	"github.com/okian/globalboard/internal/domain/upstream"
)

const (
	// GametypeMultiGame marks compilation games whose categories span several games.
	GametypeMultiGame = "rj1dy1o8"

	// MinLevelTime is the shortest individual-level run considered, in seconds.
	MinLevelTime = 60.0
)

// Select keeps the fastest eligible run per (game, category, level,
// subcategory) identity, in order of first appearance.
func Select(runs []upstream.RawRun) []upstream.RawRun {
	best := make(map[string]int)
	var out []upstream.RawRun
	for _, r := range runs {
		if !eligible(r) {
			continue
		}
		key := identity(r)
		if i, ok := best[key]; ok {
			if r.PrimaryTime < out[i].PrimaryTime {
				out[i] = r
			}
			continue
		}
		best[key] = len(out)
		out = append(out, r)
	}
	return out
}

func eligible(r upstream.RawRun) bool {
	if r.LevelID != "" && r.PrimaryTime < MinLevelTime {
		return false
	}
	for _, t := range r.GameTypes {
		if t == GametypeMultiGame {
			return false
		}
	}
	return r.CategoryID != "" && r.HasVideo
}

func identity(r upstream.RawRun) string {
	probe := model.Run{Variables: r.SubcategoryValues()}
	return r.GameID + "\x00" + r.CategoryID + "\x00" + r.LevelID + "\x00" + probe.VariablesKey()
}

// NewRun builds the scoring candidate for a personal best. levels are the
// levels of the run's game and are only consulted for level runs. ok is
// false for a level run whose level is not in levels; such a run has no
// known weight and must not be scored.
func NewRun(pb upstream.RawRun, levels []upstream.Level) (run *model.Run, ok bool) {
	run = &model.Run{
		ID:            pb.ID,
		Time:          pb.PrimaryTime,
		GameID:        pb.GameID,
		GameName:      pb.GameName,
		CategoryID:    pb.CategoryID,
		LevelID:       pb.LevelID,
		Variables:     pb.SubcategoryValues(),
		PlatformID:    pb.PlatformID,
		GamePlatforms: append([]string(nil), pb.GamePlatforms...),
	}
	if pb.LevelID == "" {
		run.LevelFraction = model.LevelFraction("", 0)
		return run, true
	}
	for _, l := range levels {
		if l.ID == pb.LevelID {
			run.LevelName = l.Name
			run.LevelFraction = model.LevelFraction(pb.LevelID, len(levels))
			return run, true
		}
	}
	return run, false
}
