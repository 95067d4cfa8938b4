// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Run is one scoring candidate: a player's personal best in a single
// (game, category, level, subcategory) combination.
type Run struct {
	ID         string
	Time       float64 // primary time in seconds
	GameID     string
	GameName   string
	CategoryID string
	LevelID    string            // empty for full-game runs
	LevelName  string            // empty for full-game runs
	Variables  map[string]string // subcategory variable id -> value id

	// LevelFraction is 1 for full-game runs and 1/(levels+1) for level runs.
	LevelFraction float64

	PlatformID    string
	GamePlatforms []string

	// Set once by the normalizer.
	Points           float64
	DiminishedPoints float64
	MeanTime         float64
	IsWRTime         bool
	CategoryName     string
}

// Slot identifies the deduplication bucket of a run. Runs of different
// subcategories in the same category and level share a slot.
type Slot struct {
	CategoryID string
	LevelID    string
}

// LevelFraction returns the weight of a run given the number of levels of its game.
func LevelFraction(levelID string, levelCount int) float64 {
	if levelID == "" {
		return 1
	}
	return 1 / float64(levelCount+1)
}

// IsLevel reports whether the run is an individual-level run.
func (r *Run) IsLevel() bool { return r.LevelID != "" }

// Slot returns the deduplication key of the run.
func (r *Run) Slot() Slot { return Slot{CategoryID: r.CategoryID, LevelID: r.LevelID} }

// WeightedPoints is the full-game equivalent value used for ranking.
func (r *Run) WeightedPoints() float64 {
	if r.LevelFraction <= 0 {
		return 0
	}
	return r.Points / r.LevelFraction
}

// VariablesKey renders the subcategory variables in a stable order.
func (r *Run) VariablesKey() string {
	keys := make([]string, 0, len(r.Variables))
	for k := range r.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r.Variables[k])
	}
	return b.String()
}

func (r *Run) String() string {
	level := ""
	if r.IsLevel() {
		level = fmt.Sprintf("Level/%g: %s, ", r.LevelFraction, r.LevelID)
	}
	return fmt.Sprintf("Run: <Game: %s, Category: %s, %s{%s} %.2f>",
		r.GameID, r.CategoryID, level, r.VariablesKey(), math.Ceil(r.Points*100)/100)
}

// RunDTO is the serialized form of a run inside a score breakdown.
type RunDTO struct {
	RunID            string  `json:"runId,omitempty"`
	GameName         string  `json:"gameName"`
	CategoryName     string  `json:"categoryName"`
	LevelName        string  `json:"levelName"`
	Points           float64 `json:"points"`
	DiminishedPoints float64 `json:"diminishedPoints"`
	LevelFraction    float64 `json:"levelFraction"`
}

// DTO converts the run to its breakdown representation.
func (r *Run) DTO() RunDTO {
	return RunDTO{
		RunID:            r.ID,
		GameName:         r.GameName,
		CategoryName:     r.CategoryName,
		LevelName:        r.LevelName,
		Points:           r.Points,
		DiminishedPoints: r.DiminishedPoints,
		LevelFraction:    r.LevelFraction,
	}
}
