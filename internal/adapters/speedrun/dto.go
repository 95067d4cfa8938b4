package speedrun

import (
	"encoding/json"

	"github.com/okian/globalboard/internal/domain/upstream"
)

// errorEnvelope is the body speedrun.com sends instead of data on failure.
type errorEnvelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type pagination struct {
	Offset int `json:"offset"`
	Max    int `json:"max"`
	Size   int `json:"size"`
}

type pageEnvelope struct {
	Data       json.RawMessage `json:"data"`
	Pagination pagination      `json:"pagination"`
}

type names struct {
	International string `json:"international"`
}

type code struct {
	Code string `json:"code"`
}

type userDTO struct {
	ID       string `json:"id"`
	Names    names  `json:"names"`
	Role     string `json:"role"`
	Location *struct {
		Country *code `json:"country"`
		Region  *code `json:"region"`
	} `json:"location"`
}

func (u userDTO) profile() upstream.Profile {
	p := upstream.Profile{
		ID:     u.ID,
		Name:   u.Names.International,
		Banned: u.Role == "banned",
	}
	if u.Location != nil {
		switch {
		case u.Location.Region != nil && u.Location.Region.Code != "":
			p.CountryCode = u.Location.Region.Code
		case u.Location.Country != nil:
			p.CountryCode = u.Location.Country.Code
		}
	}
	return p
}

type variableDTO struct {
	ID            string `json:"id"`
	IsSubcategory bool   `json:"is-subcategory"`
}

type gameDTO struct {
	ID        string   `json:"id"`
	Names     names    `json:"names"`
	Gametypes []string `json:"gametypes"`
	Platforms []string `json:"platforms"`
	Variables struct {
		Data []variableDTO `json:"data"`
	} `json:"variables"`
}

type timesDTO struct {
	PrimaryT float64 `json:"primary_t"`
}

type runDTO struct {
	ID   string `json:"id"`
	Game struct {
		Data gameDTO `json:"data"`
	} `json:"game"`
	Level    *string           `json:"level"`
	Category *string           `json:"category"`
	Times    timesDTO          `json:"times"`
	Videos   json.RawMessage   `json:"videos"`
	Values   map[string]string `json:"values"`
	System   struct {
		Platform *string `json:"platform"`
	} `json:"system"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func hasVideo(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "{}", "[]":
		return false
	}
	return true
}

func (r runDTO) raw() upstream.RawRun {
	game := r.Game.Data
	subcategories := make([]string, 0, len(game.Variables.Data))
	for _, v := range game.Variables.Data {
		if v.IsSubcategory {
			subcategories = append(subcategories, v.ID)
		}
	}
	return upstream.RawRun{
		ID:             r.ID,
		PrimaryTime:    r.Times.PrimaryT,
		GameID:         game.ID,
		GameName:       game.Names.International,
		GameTypes:      game.Gametypes,
		GamePlatforms:  game.Platforms,
		SubcategoryIDs: subcategories,
		CategoryID:     deref(r.Category),
		LevelID:        deref(r.Level),
		Values:         r.Values,
		HasVideo:       hasVideo(r.Videos),
		PlatformID:     deref(r.System.Platform),
	}
}

type levelDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type playerRefDTO struct {
	Rel string `json:"rel"`
	ID  string `json:"id"`
}

type leaderboardDTO struct {
	Weblink string `json:"weblink"`
	Runs    []struct {
		Place int `json:"place"`
		Run   struct {
			Times   timesDTO        `json:"times"`
			Videos  json.RawMessage `json:"videos"`
			Players []playerRefDTO  `json:"players"`
		} `json:"run"`
	} `json:"runs"`
	Players struct {
		Data []struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"data"`
	} `json:"players"`
}

func (l leaderboardDTO) leaderboard() upstream.Leaderboard {
	lb := upstream.Leaderboard{
		Weblink: l.Weblink,
		Entries: make([]upstream.Entry, 0, len(l.Runs)),
		Banned:  make(map[string]struct{}),
	}
	for _, p := range l.Players.Data {
		if p.Role == "banned" && p.ID != "" {
			lb.Banned[p.ID] = struct{}{}
		}
	}
	for _, r := range l.Runs {
		ids := make([]string, 0, len(r.Run.Players))
		for _, p := range r.Run.Players {
			if p.ID != "" {
				ids = append(ids, p.ID)
			}
		}
		lb.Entries = append(lb.Entries, upstream.Entry{
			Place:     r.Place,
			Time:      r.Run.Times.PrimaryT,
			HasVideo:  hasVideo(r.Run.Videos),
			PlayerIDs: ids,
		})
	}
	return lb
}
