package model

import (
	"fmt"
	"math"
	"time"
)

// LastUpdateLayout is the timestamp format exposed to clients.
const LastUpdateLayout = "2006-01-02 15:04"

// PointsDistribution splits the counted runs of a player into the
// weight-capped top sample and the remainder kept for display.
type PointsDistribution struct {
	Top    []*Run
	Lesser []*Run
}

// Breakdown is the serialized points distribution: [top, lesser].
type Breakdown [][]RunDTO

// DTO serializes the distribution. Both lists are always present.
func (d PointsDistribution) DTO() Breakdown {
	top := make([]RunDTO, 0, len(d.Top))
	for _, r := range d.Top {
		top = append(top, r.DTO())
	}
	lesser := make([]RunDTO, 0, len(d.Lesser))
	for _, r := range d.Lesser {
		lesser = append(lesser, r.DTO())
	}
	return Breakdown{top, lesser}
}

// User is the subject of one scoring pass.
type User struct {
	ID           string
	Name         string
	CountryCode  string
	Banned       bool
	Points       float64
	Distribution PointsDistribution
}

// NewUser returns a user identified by a name or id until the profile is resolved.
func NewUser(idOrName string) *User {
	return &User{ID: idOrName, Name: idOrName}
}

// Score is the floored total.
func (u *User) Score() int64 {
	return int64(math.Floor(u.Points))
}

func (u *User) String() string {
	banned := ""
	if u.Banned {
		banned = "(Banned)"
	}
	return fmt.Sprintf("User: <%s, %.2f, %s%s>", u.Name, math.Ceil(u.Points*100)/100, u.ID, banned)
}

// Player is the persisted leaderboard entry of a user.
type Player struct {
	ID           string    `json:"userId"`
	Name         string    `json:"name"`
	CountryCode  string    `json:"countryCode"`
	Score        int64     `json:"score"`
	ScoreDetails Breakdown `json:"scoreDetails"`
	LastUpdate   time.Time `json:"-"`
}

// RankedPlayer is a Player with its position in the global ranking.
type RankedPlayer struct {
	Player
	Rank int `json:"rank"`
}
