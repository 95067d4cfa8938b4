package service_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/globalboard/internal/domain/upstream"
)

// fakeClient serves canned speedrun.com data.
type fakeClient struct {
	mu sync.Mutex

	profiles  map[string]upstream.Profile
	runs      map[string][]upstream.RawRun
	levels    map[string][]upstream.Level
	boards    map[string]upstream.Leaderboard
	boardErrs map[string]error

	runsCalls   int
	levelsCalls int

	// Profile calls for blockName wait on block after signalling entered.
	blockName string
	block     chan struct{}
	entered   chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		profiles:  make(map[string]upstream.Profile),
		runs:      make(map[string][]upstream.RawRun),
		levels:    make(map[string][]upstream.Level),
		boards:    make(map[string]upstream.Leaderboard),
		boardErrs: make(map[string]error),
	}
}

func boardKey(game, category, level string) string {
	return game + "/" + category + "/" + level
}

func (f *fakeClient) Profile(_ context.Context, idOrName string) (upstream.Profile, error) {
	if f.block != nil && idOrName == f.blockName {
		f.entered <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[idOrName]
	if !ok {
		return upstream.Profile{}, upstream.NewError(upstream.KindNotFound, "404 (speedrun.com)", "The user could not be found.")
	}
	return p, nil
}

func (f *fakeClient) Runs(_ context.Context, playerID string) ([]upstream.RawRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runsCalls++
	return f.runs[playerID], nil
}

func (f *fakeClient) Levels(_ context.Context, gameID string) ([]upstream.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levelsCalls++
	levels, ok := f.levels[gameID]
	if !ok {
		return nil, upstream.NewError(upstream.KindNotFound, "404 (speedrun.com)", "game not found")
	}
	return levels, nil
}

func (f *fakeClient) Leaderboard(_ context.Context, q upstream.LeaderboardQuery) (upstream.Leaderboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := boardKey(q.GameID, q.CategoryID, q.LevelID)
	if err, ok := f.boardErrs[key]; ok {
		return upstream.Leaderboard{}, err
	}
	lb, ok := f.boards[key]
	if !ok {
		return upstream.Leaderboard{}, upstream.NewError(upstream.KindNotFound, "404 (speedrun.com)", "category not found")
	}
	return lb, nil
}

func (f *fakeClient) calls() (runs, levels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runsCalls, f.levelsCalls
}

// board builds a leaderboard of the given times, all placed with video.
func board(times ...float64) upstream.Leaderboard {
	lb := upstream.Leaderboard{
		Weblink: "https://www.speedrun.com/game#Any",
		Banned:  map[string]struct{}{},
	}
	for i, t := range times {
		lb.Entries = append(lb.Entries, upstream.Entry{
			Place:     i + 1,
			Time:      t,
			HasVideo:  true,
			PlayerIDs: []string{fmt.Sprintf("p%d", i)},
		})
	}
	return lb
}

func tenSeconds() upstream.Leaderboard {
	return board(100, 101, 102, 103, 104, 105, 106, 107, 108, 109)
}

func rawRun(id, game, category, level string, t float64) upstream.RawRun {
	return upstream.RawRun{
		ID:            id,
		PrimaryTime:   t,
		GameID:        game,
		GameName:      "Game " + game,
		GamePlatforms: []string{"pc", "ps2"},
		CategoryID:    category,
		LevelID:       level,
		HasVideo:      true,
		PlatformID:    "pc",
	}
}
