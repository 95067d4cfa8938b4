// Package upstream defines the contract of the leaderboard service the
// scoring engine reads from, and the errors it may raise.
package upstream

import "context"

// Client fetches players, runs and leaderboards from the leaderboard service.
type Client interface {
	// Profile resolves a player by id or name.
	Profile(ctx context.Context, idOrName string) (Profile, error)
	// Runs returns every verified run of a player.
	Runs(ctx context.Context, playerID string) ([]RawRun, error)
	// Levels returns the individual levels of a game.
	Levels(ctx context.Context, gameID string) ([]Level, error)
	// Leaderboard returns the video-only leaderboard matching q.
	Leaderboard(ctx context.Context, q LeaderboardQuery) (Leaderboard, error)
}

// Profile is the public profile of a player.
type Profile struct {
	ID          string
	Name        string
	CountryCode string
	Banned      bool
}

// RawRun is a verified run as listed on a player's profile.
type RawRun struct {
	ID          string
	PrimaryTime float64
	GameID      string
	GameName    string
	GameTypes   []string
	// GamePlatforms lists every platform the game was released on.
	GamePlatforms []string
	// SubcategoryIDs are the game variables flagged as subcategories.
	SubcategoryIDs []string
	CategoryID     string
	LevelID        string
	Values         map[string]string
	HasVideo       bool
	PlatformID     string
}

// SubcategoryValues keeps the values of the run that select a subcategory.
func (r RawRun) SubcategoryValues() map[string]string {
	out := make(map[string]string)
	for _, id := range r.SubcategoryIDs {
		if v, ok := r.Values[id]; ok {
			out[id] = v
		}
	}
	return out
}

// Level is an individual level of a game.
type Level struct {
	ID   string
	Name string
}

// LeaderboardQuery selects one leaderboard.
type LeaderboardQuery struct {
	GameID     string
	CategoryID string
	LevelID    string
	Variables  map[string]string
}

// Leaderboard is a ranked board. Entries are in upstream order (by place).
type Leaderboard struct {
	Weblink string
	Entries []Entry
	// Banned holds the ids of board participants flagged as banned.
	Banned map[string]struct{}
}

// Entry is a single ranked run of a leaderboard.
type Entry struct {
	Place     int
	Time      float64
	HasVideo  bool
	PlayerIDs []string
}

// HasBannedPlayer reports whether any participant of e is banned on lb.
func (lb Leaderboard) HasBannedPlayer(e Entry) bool {
	for _, id := range e.PlayerIDs {
		if _, ok := lb.Banned[id]; ok {
			return true
		}
	}
	return false
}
