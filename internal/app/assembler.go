package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/globalboard/internal/adapters/mq/queue"
	"github.com/okian/globalboard/internal/domain/model"
	"github.com/okian/globalboard/internal/domain/personalbest"
	"github.com/okian/globalboard/internal/domain/scoring"
	"github.com/okian/globalboard/internal/domain/upstream"
	"github.com/okian/globalboard/pkg/logger"
	"github.com/okian/globalboard/pkg/metrics"
)

// score runs one scoring pass for user and sets its points and
// distribution. It returns the game values found among the counted runs.
func (s *Service) score(ctx context.Context, log logger.Logger, user *model.User) ([]model.GameValue, error) {
	if user.Banned {
		user.Points = 0
		user.Distribution = model.PointsDistribution{}
		return nil, nil
	}

	raw, err := s.client.Runs(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	pbs := personalbest.Select(raw)
	log.Debug(ctx, "personal bests selected", logger.Int("runs", len(raw)), logger.Int("pbs", len(pbs)))

	if s.maxRuns > 0 && len(pbs) > s.maxRuns {
		return nil, &upstream.Error{
			Kind:   upstream.KindTooManyRuns,
			Label:  "Too many runs",
			Detail: fmt.Sprintf("%s has %d personal bests, more than the %d that can be scored.", user.Name, len(pbs), s.maxRuns),
		}
	}

	runs, err := s.normalizeAll(ctx, log, pbs)
	if err != nil {
		return nil, err
	}

	dist, points := s.aggregator.Aggregate(runs)
	if user.Banned {
		points = 0
	}
	user.Points = points
	user.Distribution = dist

	var values []model.GameValue
	for _, runs := range [][]*model.Run{dist.Top, dist.Lesser} {
		for _, r := range runs {
			if v, ok := model.GameValueOf(r); ok {
				values = append(values, v)
			}
		}
	}
	return values, nil
}

type normalized struct {
	run *model.Run
	err error
}

// normalizeAll fans the personal bests out to the worker pool and waits for
// every one of them. An overload aborts the pass at once; other failures
// are collected and reported together.
func (s *Service) normalizeAll(ctx context.Context, log logger.Logger, pbs []upstream.RawRun) ([]*model.Run, error) {
	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()

	results := make(chan normalized, len(pbs))
	levels := newLevelMemo(s.client)

	submitted := 0
	for _, pb := range pbs {
		task := queue.Task{
			Ctx:  passCtx,
			Name: "normalize:" + pb.ID,
			Run: func(taskCtx context.Context) {
				defer func() {
					if r := recover(); r != nil {
						results <- normalized{err: upstream.NewError(upstream.KindUpstream,
							"Unhandled exception in thread", fmt.Sprint(r))}
					}
				}()
				run, err := s.normalizeOne(taskCtx, pb, levels)
				results <- normalized{run: run, err: err}
			},
		}
		if err := s.submit(passCtx, task); err != nil {
			return nil, err
		}
		submitted++
	}

	runs := make([]*model.Run, 0, submitted)
	var errs []error
	for range submitted {
		select {
		case <-passCtx.Done():
			return nil, fmt.Errorf("scoring pass cancelled: %w", passCtx.Err())
		case <-stopped:
			return nil, ErrNotStarted
		case res := <-results:
			switch {
			case res.err == nil:
				runs = append(runs, res.run)
			case upstream.IsOverload(res.err):
				log.Warn(ctx, "upstream overloaded, aborting pass", logger.Error(res.err))
				return nil, res.err
			default:
				errs = append(errs, res.err)
			}
		}
	}
	if err := upstream.Aggregate(errs); err != nil {
		return nil, err
	}
	return runs, nil
}

// submit enqueues t, waiting and retrying while the queue is full.
func (s *Service) submit(ctx context.Context, t queue.Task) error {
	for !s.queue.Enqueue(ctx, t) {
		if s.queue.IsClosed() {
			return ErrNotStarted
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("submit %s: %w", t.Name, ctx.Err())
		case <-time.After(s.submitBackoff):
		}
	}
	metrics.UpdateQueueSize(s.queue.Len(ctx))
	return nil
}

// normalizeOne scores a single personal best against its leaderboard.
// A leaderboard or level that no longer exists makes the run worth 0.
func (s *Service) normalizeOne(ctx context.Context, pb upstream.RawRun, memo *levelMemo) (*model.Run, error) {
	start := time.Now()
	outcome := "scored"
	defer func() {
		metrics.RecordRunNormalized(outcome, float64(time.Since(start).Milliseconds()))
	}()

	var levels []upstream.Level
	if pb.LevelID != "" {
		var err error
		levels, err = memo.get(ctx, pb.GameID)
		if err != nil && !upstream.IsNotFound(err) {
			outcome = "error"
			return nil, err
		}
	}
	run, ok := personalbest.NewRun(pb, levels)
	if !ok {
		outcome = "not_found"
		return run, nil
	}

	lb, err := s.client.Leaderboard(ctx, upstream.LeaderboardQuery{
		GameID:     run.GameID,
		CategoryID: run.CategoryID,
		LevelID:    run.LevelID,
		Variables:  run.Variables,
	})
	switch {
	case upstream.IsNotFound(err):
		outcome = "not_found"
		return run, nil
	case err != nil:
		outcome = "error"
		return nil, err
	}

	scoring.Normalize(run, lb)
	if run.Points <= 0 {
		outcome = "zero"
	}
	return run, nil
}

// levelMemo fetches the level list of each game once per pass.
type levelMemo struct {
	client upstream.Client
	mu     sync.Mutex
	games  map[string]*levelEntry
}

type levelEntry struct {
	once   sync.Once
	levels []upstream.Level
	err    error
}

func newLevelMemo(client upstream.Client) *levelMemo {
	return &levelMemo{client: client, games: make(map[string]*levelEntry)}
}

func (m *levelMemo) get(ctx context.Context, gameID string) ([]upstream.Level, error) {
	m.mu.Lock()
	e, ok := m.games[gameID]
	if !ok {
		e = &levelEntry{}
		m.games[gameID] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.levels, e.err = m.client.Levels(ctx, gameID)
	})
	return e.levels, e.err
}
