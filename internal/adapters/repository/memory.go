package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/globalboard/internal/domain/model"
	"github.com/okian/globalboard/pkg/metrics"
)

type gameValueKey struct {
	gameID     string
	categoryID string
}

// MemoryStore is an in-process Store guarded by a single RWMutex.
type MemoryStore struct {
	mu         sync.RWMutex
	players    map[string]model.Player
	gameValues map[gameValueKey]model.GameValue
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players:    make(map[string]model.Player),
		gameValues: make(map[gameValueKey]model.GameValue),
	}
}

func (s *MemoryStore) GetPlayer(_ context.Context, id string) (model.Player, error) {
	defer observe("get_player", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[id]
	if !ok {
		return model.Player{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) UpsertPlayer(_ context.Context, p model.Player) error {
	defer observe("upsert_player", time.Now())
	if p.ID == "" {
		return ErrNoID
	}
	p.ScoreDetails = breakdownOrEmpty(p.ScoreDetails)
	p.LastUpdate = p.LastUpdate.UTC()

	s.mu.Lock()
	s.players[p.ID] = p
	n := len(s.players)
	s.mu.Unlock()

	metrics.UpdatePlayersTotal(n)
	return nil
}

func (s *MemoryStore) DeletePlayer(_ context.Context, id string) error {
	defer observe("delete_player", time.Now())

	s.mu.Lock()
	delete(s.players, id)
	n := len(s.players)
	s.mu.Unlock()

	metrics.UpdatePlayersTotal(n)
	return nil
}

func (s *MemoryStore) ListPlayers(_ context.Context) ([]model.RankedPlayer, error) {
	defer observe("list_players", time.Now())
	return Rank(s.snapshot()), nil
}

func (s *MemoryStore) ListPlayersByCountry(_ context.Context, codes []string) ([]model.Player, error) {
	defer observe("list_players_by_country", time.Now())

	out := []model.Player{}
	for _, p := range s.snapshot() {
		if MatchesCountry(p.CountryCode, codes) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) ScoreDetails(ctx context.Context, id string) (model.Breakdown, error) {
	p, err := s.GetPlayer(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.ScoreDetails, nil
}

func (s *MemoryStore) UpsertGameValues(_ context.Context, values []model.GameValue) error {
	defer observe("upsert_game_values", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range values {
		s.gameValues[gameValueKey{v.GameID, v.CategoryID}] = v
	}
	return nil
}

func (s *MemoryStore) ListGameValues(_ context.Context) ([]model.GameValue, error) {
	defer observe("list_game_values", time.Now())
	s.mu.RLock()
	out := make([]model.GameValue, 0, len(s.gameValues))
	for _, v := range s.gameValues {
		out = append(out, v)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.WRPoints != b.WRPoints {
			return a.WRPoints > b.WRPoints
		}
		if a.GameID != b.GameID {
			return a.GameID < b.GameID
		}
		return a.CategoryID < b.CategoryID
	})
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) snapshot() []model.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	return out
}
