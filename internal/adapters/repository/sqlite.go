package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/okian/globalboard/internal/domain/model"
	"github.com/okian/globalboard/pkg/metrics"
)

// playerRow is the players table layout.
type playerRow struct {
	UserID       string    `db:"user_id"`
	Name         string    `db:"name"`
	CountryCode  string    `db:"country_code"`
	Score        int64     `db:"score"`
	ScoreDetails string    `db:"score_details"`
	LastUpdate   time.Time `db:"last_update"`
}

func (r playerRow) player() (model.Player, error) {
	p := model.Player{
		ID:          r.UserID,
		Name:        r.Name,
		CountryCode: r.CountryCode,
		Score:       r.Score,
		LastUpdate:  r.LastUpdate.UTC(),
	}
	if err := json.Unmarshal([]byte(r.ScoreDetails), &p.ScoreDetails); err != nil {
		return model.Player{}, fmt.Errorf("decode score details of %s: %w", r.UserID, err)
	}
	return p, nil
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db           *sqlx.DB
	maxOpenConns int
	busyTimeout  time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens a SQLite database at path and creates the schema.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{maxOpenConns: 1, busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	if path == ":memory:" {
		// every connection would see its own empty database
		s.maxOpenConns = 1
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_time_format=sqlite",
		path, s.busyTimeout.Milliseconds())
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(s.maxOpenConns)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s.db = db
	s.refreshCount(ctx)
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetPlayer(ctx context.Context, id string) (model.Player, error) {
	defer observe("get_player", time.Now())

	var row playerRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM players WHERE user_id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, ErrNotFound
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("get player %s: %w", id, err)
	}
	return row.player()
}

func (s *SQLiteStore) UpsertPlayer(ctx context.Context, p model.Player) error {
	defer observe("upsert_player", time.Now())
	if p.ID == "" {
		return ErrNoID
	}

	details, err := json.Marshal(breakdownOrEmpty(p.ScoreDetails))
	if err != nil {
		return fmt.Errorf("encode score details of %s: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO players (user_id, name, country_code, score, score_details, last_update)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			country_code = excluded.country_code,
			score = excluded.score,
			score_details = excluded.score_details,
			last_update = excluded.last_update
	`, p.ID, p.Name, p.CountryCode, p.Score, string(details), p.LastUpdate.UTC())
	if err != nil {
		return fmt.Errorf("upsert player %s: %w", p.ID, err)
	}
	s.refreshCount(ctx)
	return nil
}

func (s *SQLiteStore) DeletePlayer(ctx context.Context, id string) error {
	defer observe("delete_player", time.Now())

	if _, err := s.db.ExecContext(ctx, "DELETE FROM players WHERE user_id = ?", id); err != nil {
		return fmt.Errorf("delete player %s: %w", id, err)
	}
	s.refreshCount(ctx)
	return nil
}

func (s *SQLiteStore) ListPlayers(ctx context.Context) ([]model.RankedPlayer, error) {
	defer observe("list_players", time.Now())

	players, err := s.selectPlayers(ctx, "SELECT * FROM players WHERE score > 0")
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return Rank(players), nil
}

func (s *SQLiteStore) ListPlayersByCountry(ctx context.Context, codes []string) ([]model.Player, error) {
	defer observe("list_players_by_country", time.Now())

	var (
		clauses []string
		args    []any
	)
	for _, c := range codes {
		if c == "" {
			continue
		}
		clauses = append(clauses, "country_code = ? OR country_code LIKE ?")
		args = append(args, c, c+"/%")
	}
	if len(clauses) == 0 {
		return []model.Player{}, nil
	}

	query := "SELECT * FROM players WHERE " + strings.Join(clauses, " OR ") + " ORDER BY score DESC, name"
	players, err := s.selectPlayers(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list players by country: %w", err)
	}
	return players, nil
}

func (s *SQLiteStore) ScoreDetails(ctx context.Context, id string) (model.Breakdown, error) {
	p, err := s.GetPlayer(ctx, id)
	if err != nil {
		return nil, err
	}
	return breakdownOrEmpty(p.ScoreDetails), nil
}

func (s *SQLiteStore) UpsertGameValues(ctx context.Context, values []model.GameValue) error {
	defer observe("upsert_game_values", time.Now())
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin game values: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, v := range values {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO game_values (game_id, category_id, run_id, platform_id, alternate_platforms, wr_time, wr_points, mean_time)
			VALUES (:game_id, :category_id, :run_id, :platform_id, :alternate_platforms, :wr_time, :wr_points, :mean_time)
			ON CONFLICT(game_id, category_id) DO UPDATE SET
				run_id = excluded.run_id,
				platform_id = excluded.platform_id,
				alternate_platforms = excluded.alternate_platforms,
				wr_time = excluded.wr_time,
				wr_points = excluded.wr_points,
				mean_time = excluded.mean_time
		`, v)
		if err != nil {
			return fmt.Errorf("upsert game value %s/%s: %w", v.GameID, v.CategoryID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit game values: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListGameValues(ctx context.Context) ([]model.GameValue, error) {
	defer observe("list_game_values", time.Now())

	values := []model.GameValue{}
	err := s.db.SelectContext(ctx, &values,
		"SELECT * FROM game_values ORDER BY wr_points DESC, game_id, category_id")
	if err != nil {
		return nil, fmt.Errorf("list game values: %w", err)
	}
	return values, nil
}

func (s *SQLiteStore) selectPlayers(ctx context.Context, query string, args ...any) ([]model.Player, error) {
	var rows []playerRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	players := make([]model.Player, 0, len(rows))
	for _, r := range rows {
		p, err := r.player()
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, nil
}

func (s *SQLiteStore) refreshCount(ctx context.Context) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM players"); err == nil {
		metrics.UpdatePlayersTotal(n)
	}
}

func breakdownOrEmpty(b model.Breakdown) model.Breakdown {
	if len(b) == 0 {
		return model.Breakdown{{}, {}}
	}
	return b
}
