// Package scoring turns a run and its leaderboard into a point value.
package scoring

import (
	"math"
	"sort"

	"github.com/okian/globalboard/internal/domain/model"
	"github.com/okian/globalboard/internal/domain/upstream"
)

const (
	// MinLeaderboardSize is the smallest population that can give points.
	MinLeaderboardSize = 3

	// MinWRTime is the shortest world record, in seconds, of a full-game
	// board worth scoring. Level boards scale it by their level fraction.
	MinWRTime = 60.0

	// TimeBonusDivisor is the world record length, in seconds, that doubles the points.
	TimeBonusDivisor = 12 * 60 * 60

	trimRatio        = 0.95
	cutoffPercentile = 0.8
)

// ValidTimes returns the ascending times of the entries that may compete
// with a run of the given level fraction, or nil when the board cannot be
// scored (too small, too short or score based).
func ValidTimes(lb upstream.Leaderboard, levelFraction float64) []float64 {
	if len(lb.Entries) < MinLeaderboardSize {
		return nil
	}
	wr := lb.Entries[0].Time
	if wr < MinWRTime*levelFraction {
		return nil
	}

	knownSpeedrun := false
	times := make([]float64, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		// Stop comparing once the order is known; missing times would
		// otherwise look like a score board.
		if !knownSpeedrun {
			if e.Time < wr {
				return nil
			}
			if e.Time > wr {
				knownSpeedrun = true
			}
		}
		if e.Place > 0 && e.HasVideo && !lb.HasBannedPlayer(e) {
			times = append(times, e.Time)
		}
	}
	sort.Float64s(times)
	return times
}

// softCutoff drops the tail of a sorted population after the longest
// plateau of identical times found past the 80th percentile. One member of
// the plateau is kept as the zero-point reference.
func softCutoff(times []float64) []float64 {
	i := len(times)
	cut := times[int(float64(i)*cutoffPercentile)]
	count, mostCount, mostPos := 0, 0, 0
	previous := 0.0
	for j := len(times) - 1; j >= 0; j-- {
		value := times[j]
		if value == previous {
			count++
		} else {
			if count > mostCount {
				mostCount = count
				mostPos = i + 1
			}
			count = 0
		}
		previous = value

		// a plateau sitting on the percentile itself is still removed
		if value < cut {
			if mostCount > MinLeaderboardSize {
				return times[:mostPos]
			}
			break
		}
		i--
	}
	return times
}

// probabilityTerms computes mean, population standard deviation and size
// in a single pass.
func probabilityTerms(times []float64) (mean, stdDev float64, population int) {
	var sigma float64
	for _, v := range times {
		population++
		prev := mean
		mean += (v - prev) / float64(population)
		sigma += (v - prev) * (v - mean)
	}
	if population == 0 {
		return 0, 0, 0
	}
	// rounding can leave a tiny negative sum on flat populations
	if sigma < 0 {
		sigma = 0
	}
	return mean, math.Sqrt(sigma / float64(population)), population
}

// Normalize computes the points of run against lb and records them on the
// run together with its mean time, world record flag and category name.
// Boards that cannot be scored leave the run at zero points.
func Normalize(run *model.Run, lb upstream.Leaderboard) {
	times := ValidTimes(lb, run.LevelFraction)
	if len(times) < MinLeaderboardSize {
		return
	}

	if keep := int(float64(len(times)) * trimRatio); keep > 0 {
		times = times[:keep]
	}

	preCutoffWorst := times[len(times)-1]
	times = softCutoff(times)

	wr := times[0]
	mean, stdDev, population := probabilityTerms(times)
	if stdDev <= 0 {
		return
	}

	signed := mean - run.Time
	lowest := times[len(times)-1] - mean
	// worst time maps to 0
	adjusted := signed + lowest
	if adjusted <= 0 {
		return
	}

	normalized := adjusted / (preCutoffWorst - mean)
	certainty := 1 - 1/float64(population-MinLeaderboardSize+2)
	exponent := math.Min(normalized, math.Pi) * certainty
	lengthBonus := 1 + wr/TimeBonusDivisor

	run.Points = (math.Exp(exponent) - 1) * 10 * lengthBonus * run.LevelFraction
	run.DiminishedPoints = run.Points
	run.CategoryName = CategoryName(lb.Weblink)
	run.IsWRTime = wr == run.Time
	run.MeanTime = mean
}
