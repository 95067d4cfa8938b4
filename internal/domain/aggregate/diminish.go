package aggregate

import (
	"math"
	"sort"

	"github.com/okian/globalboard/internal/domain/model"
)

// Diminisher sets DiminishedPoints on counted runs before they are split.
type Diminisher interface {
	Diminish(runs []*model.Run)
}

// GameDecay multiplies the n-th most valuable counted run of a game by
// Decay^n, so the first run of every game keeps its full value. A Decay of
// 1 leaves every run at its raw points.
type GameDecay struct {
	Decay float64
}

// Diminish implements Diminisher.
func (g GameDecay) Diminish(runs []*model.Run) {
	byGame := make(map[string][]*model.Run)
	for _, r := range runs {
		byGame[r.GameID] = append(byGame[r.GameID], r)
	}
	for _, group := range byGame {
		sort.SliceStable(group, func(i, j int) bool { return better(group[i], group[j]) })
		for n, r := range group {
			r.DiminishedPoints = r.Points * math.Pow(g.Decay, float64(n))
		}
	}
}
