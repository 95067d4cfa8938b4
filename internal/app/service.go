// Package service scores players and applies the results to the scoreboard.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/globalboard/internal/adapters/mq/queue"
	"github.com/okian/globalboard/internal/adapters/mq/worker"
	"github.com/okian/globalboard/internal/adapters/repository"
	"github.com/okian/globalboard/internal/domain/aggregate"
	"github.com/okian/globalboard/internal/domain/dedupe"
	"github.com/okian/globalboard/internal/domain/model"
	"github.com/okian/globalboard/internal/domain/upstream"
	"github.com/okian/globalboard/pkg/logger"
	"github.com/okian/globalboard/pkg/metrics"
)

const day = 24 * time.Hour

// Service runs scoring passes for update requests and serves the stored scoreboard.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store      repository.Store
	client     upstream.Client
	aggregator *aggregate.Aggregator

	// Created by Start
	guard dedupe.Deduper
	queue queue.Queue
	pool  *worker.Pool

	// Configuration
	workerCount       int
	queueSize         int
	submitBackoff     time.Duration
	minUpdateInterval time.Duration
	updateLock        time.Duration
	bypass            bool
	maxRuns           int
	now               func() time.Time

	started bool
	stopped chan struct{} // closed once the pool has shut down
	logger  logger.Logger
}

// New constructs a Service scoring players from client into store.
func New(store repository.Store, client upstream.Client, opts ...Option) *Service {
	s := &Service{
		store:             store,
		client:            client,
		aggregator:        aggregate.New(),
		workerCount:       32,
		queueSize:         1024,
		submitBackoff:     250 * time.Millisecond,
		minUpdateInterval: 7 * day,
		updateLock:        5 * time.Minute,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the in-flight guard, the task queue and the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.guard = dedupe.NewInMemoryDeduper(dedupe.WithWindow(s.updateLock))
	q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.queue = q
	s.pool = worker.NewPool(s.workerCount, q)
	// Workers outlive the caller's context; Stop drains them.
	s.pool.Start(context.WithoutCancel(ctx))
	s.stopped = make(chan struct{})

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Bool("bypassRestrictions", s.bypass),
	)
	return nil
}

// Stop drains the worker pool. Passes still running fail with ErrNotStarted.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	err := s.pool.Shutdown(ctx)
	close(s.stopped)
	s.logger.Info(ctx, "scoring service stopped")
	return err
}

// UpdatePlayer scores the player named or identified by idOrName and
// applies the result to the store. requester identifies the caller for the
// in-flight guard and may be empty.
//
// Refusals that are part of the update policy (unknown player, updated too
// recently, score below one) are reported through the result state, not as
// errors. Errors are ErrUpdateInProgress, upstream failures and store failures.
func (s *Service) UpdatePlayer(ctx context.Context, requester, idOrName string) (model.UpdateResult, error) {
	idOrName = strings.TrimSpace(idOrName)
	if idOrName == "" {
		return model.UpdateResult{}, ErrEmptyID
	}

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return model.UpdateResult{}, ErrNotStarted
	}

	release, ok := s.acquire(ctx, requester, idOrName)
	if !ok {
		return model.UpdateResult{}, ErrUpdateInProgress
	}
	defer release()

	log := s.logger.With(logger.String("pass", uuid.NewString()), logger.String("player", idOrName))
	start := time.Now()
	log.Info(ctx, "update requested", logger.String("requester", requester))

	result, err := s.update(ctx, log, idOrName)
	outcome := string(result.State)
	if err != nil {
		outcome = upstream.KindOf(err).String()
		log.Error(ctx, "update failed", logger.Error(err))
	} else {
		log.Info(ctx, result.Message, logger.String("state", string(result.State)), logger.Int("score", int(result.Score)))
	}
	metrics.RecordPass(outcome, float64(time.Since(start).Milliseconds()))
	return result, err
}

// acquire records the target and the requester in the in-flight guard.
func (s *Service) acquire(ctx context.Context, requester, idOrName string) (func(), bool) {
	if s.bypass {
		return func() {}, true
	}
	keys := []string{"target:" + strings.ToLower(idOrName)}
	if requester != "" {
		keys = append(keys, "requester:"+requester)
	}
	for i, k := range keys {
		if s.guard.SeenAndRecord(ctx, k) {
			for _, held := range keys[:i] {
				s.guard.Unrecord(ctx, held)
			}
			return nil, false
		}
	}
	return func() {
		for _, k := range keys {
			s.guard.Unrecord(ctx, k)
		}
	}, true
}

func (s *Service) update(ctx context.Context, log logger.Logger, idOrName string) (model.UpdateResult, error) {
	user := model.NewUser(idOrName)
	now := s.now().UTC()

	profile, err := s.client.Profile(ctx, idOrName)
	if upstream.IsNotFound(err) {
		message, err := s.forget(ctx, idOrName)
		if err != nil {
			return model.UpdateResult{}, err
		}
		return resultOf(user, now, message, model.StateWarning), nil
	}
	if err != nil {
		return model.UpdateResult{}, err
	}
	user.ID = profile.ID
	user.Name = profile.Name
	user.CountryCode = profile.CountryCode
	user.Banned = profile.Banned

	existing, err := s.store.GetPlayer(ctx, user.ID)
	found := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.UpdateResult{}, fmt.Errorf("load player %s: %w", user.ID, err)
	}

	if found && !s.bypass && !existing.LastUpdate.IsZero() && now.Sub(existing.LastUpdate) < s.minUpdateInterval {
		days := int(s.minUpdateInterval / day)
		plural := "s"
		if days == 1 {
			plural = ""
		}
		message := fmt.Sprintf("This user has already been updated in the past %d day%s", days, plural)
		return resultOf(user, now, message, model.StateWarning), nil
	}

	values, err := s.score(ctx, log, user)
	if err != nil {
		return model.UpdateResult{}, err
	}
	message, state, err := s.apply(ctx, user, found, now)
	if err != nil {
		return model.UpdateResult{}, err
	}
	if err := s.store.UpsertGameValues(ctx, values); err != nil {
		return model.UpdateResult{}, fmt.Errorf("store game values of %s: %w", user.ID, err)
	}
	if user.Points > 0 {
		metrics.RecordPlayerScore(user.Points)
	}
	return resultOf(user, now, message, state), nil
}

// forget handles a player that no longer exists upstream.
func (s *Service) forget(ctx context.Context, idOrName string) (string, error) {
	_, err := s.store.GetPlayer(ctx, idOrName)
	switch {
	case err == nil:
		if err := s.store.DeletePlayer(ctx, idOrName); err != nil {
			return "", fmt.Errorf("delete player %s: %w", idOrName, err)
		}
		return fmt.Sprintf("User ID '%s' not found on speedrun.com. \nRemoved them from the database.", idOrName), nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Sprintf("User '%s' not found. \nMake sure the name or ID is typed properly. "+
			"It's possible the user you're looking for changed their name. "+
			"In case of doubt, use their ID.", idOrName), nil
	default:
		return "", fmt.Errorf("load player %s: %w", idOrName, err)
	}
}

// apply writes the scored user to the store.
func (s *Service) apply(ctx context.Context, user *model.User, found bool, now time.Time) (string, model.State, error) {
	player := model.Player{
		ID:           user.ID,
		Name:         user.Name,
		CountryCode:  user.CountryCode,
		Score:        user.Score(),
		ScoreDetails: user.Distribution.DTO(),
		LastUpdate:   now,
	}

	switch {
	case found && user.Banned:
		if err := s.store.DeletePlayer(ctx, user.ID); err != nil {
			return "", "", fmt.Errorf("delete player %s: %w", user.ID, err)
		}
		return fmt.Sprintf("%s found. Removed their entry as they are banned.", user), model.StateWarning, nil
	case found:
		if err := s.store.UpsertPlayer(ctx, player); err != nil {
			return "", "", fmt.Errorf("update player %s: %w", user.ID, err)
		}
		if user.Points < 1 {
			return fmt.Sprintf("%s found. Removed their entry as they have a score lower than 1.", user), model.StateWarning, nil
		}
		return fmt.Sprintf("%s found. Updated their entry.", user), model.StateSuccess, nil
	case user.Points >= 1:
		if err := s.store.UpsertPlayer(ctx, player); err != nil {
			return "", "", fmt.Errorf("insert player %s: %w", user.ID, err)
		}
		return fmt.Sprintf("%s not found. Added a new row.", user), model.StateSuccess, nil
	case user.Banned:
		return fmt.Sprintf("Not inserting new data as %s is banned.", user), model.StateWarning, nil
	default:
		return fmt.Sprintf("Not inserting new data as %s has a score lower than 1.", user), model.StateWarning, nil
	}
}

func resultOf(user *model.User, now time.Time, message string, state model.State) model.UpdateResult {
	return model.UpdateResult{
		UserID:       user.ID,
		Name:         user.Name,
		CountryCode:  user.CountryCode,
		Score:        user.Score(),
		LastUpdate:   now.Format(model.LastUpdateLayout),
		ScoreDetails: user.Distribution.DTO(),
		Message:      message,
		State:        state,
	}
}

// Players returns the ranked scoreboard.
func (s *Service) Players(ctx context.Context) ([]model.RankedPlayer, error) {
	return s.store.ListPlayers(ctx)
}

// PlayersByCountry returns the players of the given countries or regions.
func (s *Service) PlayersByCountry(ctx context.Context, codes []string) ([]model.Player, error) {
	return s.store.ListPlayersByCountry(ctx, codes)
}

// ScoreDetails returns the stored breakdown of a player's score.
func (s *Service) ScoreDetails(ctx context.Context, id string) (model.Breakdown, error) {
	return s.store.ScoreDetails(ctx, id)
}

// GameValues returns the recorded world record worth of every full-game category.
func (s *Service) GameValues(ctx context.Context) ([]model.GameValue, error) {
	return s.store.ListGameValues(ctx)
}

// Stats reports the service state for health checks.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["inFlight"] = s.guard.Size()
	}
	return stats
}
