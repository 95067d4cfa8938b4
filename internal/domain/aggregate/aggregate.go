// Package aggregate turns a player's normalized runs into a final score.
package aggregate

import (
	"sort"

	"github.com/okian/globalboard/internal/domain/model"
)

// MinSampleSize is the weight, in full-game equivalents, of the top sample.
const MinSampleSize = 60.0

// Aggregator deduplicates, diminishes and splits normalized runs.
type Aggregator struct {
	sampleSize float64
	diminisher Diminisher
}

// New creates an Aggregator. Without options it counts 60 full games and
// does not diminish points.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		sampleSize: MinSampleSize,
		diminisher: GameDecay{Decay: 1},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate returns the points distribution of runs and the score it is worth.
func (a *Aggregator) Aggregate(runs []*model.Run) (model.PointsDistribution, float64) {
	counted := Dedupe(runs)
	a.diminisher.Diminish(counted)
	top, lesser := Split(counted, a.sampleSize)
	return model.PointsDistribution{Top: top, Lesser: lesser}, Score(top)
}

// Dedupe keeps the runs worth points, one per (category, level) slot. The
// most valuable run of a slot wins; ties go to the smallest run id.
func Dedupe(runs []*model.Run) []*model.Run {
	slots := make(map[model.Slot]int)
	out := make([]*model.Run, 0, len(runs))
	for _, r := range runs {
		if r.Points <= 0 {
			continue
		}
		if i, ok := slots[r.Slot()]; ok {
			if better(r, out[i]) {
				out[i] = r
			}
			continue
		}
		slots[r.Slot()] = len(out)
		out = append(out, r)
	}
	return out
}

func better(a, b *model.Run) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	return a.ID < b.ID
}

// Split ranks runs by full-game equivalent value and fills the top sample
// until its weight reaches sampleSize. The rest is returned as lesser runs.
//
// When level runs leave the sample short of a whole full game, the last
// level runs of the sample are traded for the best left-out full-game run
// if they are worth less than it.
func Split(runs []*model.Run, sampleSize float64) (top, lesser []*model.Run) {
	sorted := append([]*model.Run(nil), runs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		wi, wj := sorted[i].WeightedPoints(), sorted[j].WeightedPoints()
		if wi != wj {
			return wi > wj
		}
		return sorted[i].ID < sorted[j].ID
	})

	top = make([]*model.Run, 0, len(sorted))
	lesser = make([]*model.Run, 0)
	position := 0.0
	for _, r := range sorted {
		if position+r.LevelFraction <= sampleSize {
			position += r.LevelFraction
			top = append(top, r)
		} else {
			lesser = append(lesser, r)
		}
	}

	rescued := -1
	for i, r := range lesser {
		if r.LevelFraction == 1 {
			rescued = i
			break
		}
	}
	if rescued < 0 || position >= sampleSize {
		return top, lesser
	}

	freed := sampleSize - position
	evict := make(map[int]bool)
	evictedPoints := 0.0
	for i := len(top) - 1; i >= 0; i-- {
		if freed >= 1 {
			break
		}
		next := freed + top[i].LevelFraction
		if next > 1 {
			continue
		}
		freed = next
		evict[i] = true
		evictedPoints += top[i].Points
	}

	fullGame := lesser[rescued]
	if evictedPoints >= fullGame.Points {
		return top, lesser
	}

	kept := make([]*model.Run, 0, len(top)-len(evict)+1)
	moved := make([]*model.Run, 0, len(evict))
	for i, r := range top {
		if evict[i] {
			moved = append(moved, r)
		} else {
			kept = append(kept, r)
		}
	}
	kept = append(kept, fullGame)

	rest := make([]*model.Run, 0, len(lesser)-1+len(moved))
	rest = append(rest, moved...)
	rest = append(rest, lesser[:rescued]...)
	rest = append(rest, lesser[rescued+1:]...)
	return kept, rest
}

// Score sums the diminished points of the top sample.
func Score(top []*model.Run) float64 {
	total := 0.0
	for _, r := range top {
		total += r.DiminishedPoints
	}
	return total
}
