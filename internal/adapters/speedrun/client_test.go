package speedrun_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/globalboard/internal/adapters/speedrun"
	"github.com/okian/globalboard/internal/domain/upstream"
	"github.com/okian/globalboard/pkg/logger"
)

func newClient(srv *httptest.Server, opts ...speedrun.Option) *speedrun.Client {
	base := []speedrun.Option{
		speedrun.WithBaseURL(srv.URL),
		speedrun.WithRateLimit(60000),
		speedrun.WithRetry(2, time.Millisecond),
	}
	return speedrun.New(append(base, opts...)...)
}

func writeBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestProfile(t *testing.T) {
	Convey("Given a speedrun.com user endpoint", t, func() {
		So(logger.Init(), ShouldBeNil)
		users := map[string]any{
			"regional": map[string]any{"data": map[string]any{
				"id": "u1", "names": map[string]any{"international": "Alice"}, "role": "user",
				"location": map[string]any{
					"country": map[string]any{"code": "ca"},
					"region":  map[string]any{"code": "ca/qc"},
				},
			}},
			"national": map[string]any{"data": map[string]any{
				"id": "u2", "names": map[string]any{"international": "Bob"}, "role": "banned",
				"location": map[string]any{"country": map[string]any{"code": "fr"}, "region": nil},
			}},
			"nowhere": map[string]any{"data": map[string]any{
				"id": "u3", "names": map[string]any{"international": "Carol"}, "role": "user",
				"location": nil,
			}},
		}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := r.URL.Path[len("/users/"):]
			if body, ok := users[name]; ok {
				writeBody(w, http.StatusOK, body)
				return
			}
			writeBody(w, http.StatusNotFound, map[string]any{"status": 404, "message": "The user could not be found."})
		}))
		defer srv.Close()
		c := newClient(srv)
		ctx := context.Background()

		Convey("The region code wins over the country code", func() {
			p, err := c.Profile(ctx, "regional")
			So(err, ShouldBeNil)
			So(p, ShouldResemble, upstream.Profile{ID: "u1", Name: "Alice", CountryCode: "ca/qc"})
		})

		Convey("The country code is used without a region", func() {
			p, err := c.Profile(ctx, "national")
			So(err, ShouldBeNil)
			So(p.CountryCode, ShouldEqual, "fr")
			So(p.Banned, ShouldBeTrue)
		})

		Convey("A missing location leaves no country", func() {
			p, err := c.Profile(ctx, "nowhere")
			So(err, ShouldBeNil)
			So(p.CountryCode, ShouldEqual, "")
		})

		Convey("An unknown user is reported as not found", func() {
			_, err := c.Profile(ctx, "ghost")
			So(upstream.IsNotFound(err), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "404 (speedrun.com)")
			So(err.Error(), ShouldContainSubstring, "The user could not be found.")
		})
	})
}

func TestErrorClassification(t *testing.T) {
	Convey("Given an upstream that fails", t, func() {
		So(logger.Init(), ShouldBeNil)
		ctx := context.Background()

		Convey("A 503 is an overload", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer srv.Close()
			_, err := newClient(srv).Profile(ctx, "x")
			So(upstream.IsOverload(err), ShouldBeTrue)
		})

		Convey("A 420 saying the site is too busy is an overload and is not retried", func() {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeBody(w, 420, map[string]any{"status": 420, "message": "The server is too busy right now."})
			}))
			defer srv.Close()
			_, err := newClient(srv).Profile(ctx, "x")
			So(upstream.IsOverload(err), ShouldBeTrue)
			So(calls.Load(), ShouldEqual, 1)
		})

		Convey("A 502 is retried until it succeeds", func() {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) < 3 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				writeBody(w, http.StatusOK, map[string]any{"data": map[string]any{"id": "u1"}})
			}))
			defer srv.Close()
			p, err := newClient(srv).Profile(ctx, "x")
			So(err, ShouldBeNil)
			So(p.ID, ShouldEqual, "u1")
			So(calls.Load(), ShouldEqual, 3)
		})

		Convey("A 504 that never clears gives up after the retries", func() {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusGatewayTimeout)
			}))
			defer srv.Close()
			_, err := newClient(srv).Profile(ctx, "x")
			So(err, ShouldNotBeNil)
			So(upstream.KindOf(err), ShouldEqual, upstream.KindUpstream)
			So(err.Error(), ShouldStartWith, "HTTPError 504")
			So(calls.Load(), ShouldEqual, 3)
		})

		Convey("Other envelope statuses keep the service label", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeBody(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "bad"})
			}))
			defer srv.Close()
			_, err := newClient(srv).Profile(ctx, "x")
			So(err.Error(), ShouldEqual, "400 (speedrun.com): bad")
		})

		Convey("A malformed body is a decode failure", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("<html>"))
			}))
			defer srv.Close()
			_, err := newClient(srv).Profile(ctx, "x")
			So(err.Error(), ShouldStartWith, "JSONDecodeError")
		})

		Convey("An unreachable host is a connection failure", func() {
			srv := httptest.NewServer(http.NotFoundHandler())
			srv.Close()
			_, err := newClient(srv).Profile(ctx, "x")
			So(err.Error(), ShouldStartWith, "Can't establish connexion to speedrun.com")
		})
	})
}

func runJSON(i int) map[string]any {
	return map[string]any{
		"id": fmt.Sprintf("r%02d", i),
		"game": map[string]any{"data": map[string]any{
			"id": "g1", "names": map[string]any{"international": "Game"},
			"gametypes": []string{}, "platforms": []string{"pc", "ps2"},
			"variables": map[string]any{"data": []map[string]any{
				{"id": "v1", "is-subcategory": true},
				{"id": "v2", "is-subcategory": false},
			}},
		}},
		"level":    nil,
		"category": "c1",
		"times":    map[string]any{"primary_t": 100 + i},
		"videos":   map[string]any{"links": []map[string]any{{"uri": "https://example.com"}}},
		"values":   map[string]string{"v1": "a", "v2": "b"},
		"system":   map[string]any{"platform": "pc"},
	}
}

// pagedRuns serves total runs honouring max/offset and records every page size asked for.
func pagedRuns(total int, fail func(max int, call int) bool) (*httptest.Server, *[]int) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size, _ := strconv.Atoi(r.URL.Query().Get("max"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		mu.Lock()
		sizes = append(sizes, size)
		call := len(sizes)
		mu.Unlock()

		if fail != nil && fail(size, call) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Internal Server Error"))
			return
		}
		data := []map[string]any{}
		for i := offset; i < total && i < offset+size; i++ {
			data = append(data, runJSON(i))
		}
		writeBody(w, http.StatusOK, map[string]any{
			"data":       data,
			"pagination": map[string]any{"offset": offset, "max": size, "size": len(data)},
		})
	}))
	return srv, &sizes
}

func TestRuns(t *testing.T) {
	Convey("Given a player with many verified runs", t, func() {
		So(logger.Init(), ShouldBeNil)
		ctx := context.Background()

		Convey("Every page is collected", func() {
			srv, sizes := pagedRuns(60, nil)
			defer srv.Close()
			runs, err := newClient(srv, speedrun.WithPageSize(50)).Runs(ctx, "u1")
			So(err, ShouldBeNil)
			So(len(runs), ShouldEqual, 60)
			So(*sizes, ShouldResemble, []int{50, 50})
			So(runs[59].ID, ShouldEqual, "r59")
		})

		Convey("A server error shrinks the page and success grows it back", func() {
			srv, sizes := pagedRuns(60, func(_ int, call int) bool { return call == 1 })
			defer srv.Close()
			runs, err := newClient(srv, speedrun.WithPageSize(50)).Runs(ctx, "u1")
			So(err, ShouldBeNil)
			So(len(runs), ShouldEqual, 60)
			So(*sizes, ShouldResemble, []int{50, 20, 30, 45})
		})

		Convey("A server error at the smallest page is returned", func() {
			srv, _ := pagedRuns(60, func(int, int) bool { return true })
			defer srv.Close()
			_, err := newClient(srv, speedrun.WithPageSize(20)).Runs(ctx, "u1")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldStartWith, "HTTPError 500")
		})

		Convey("Runs are mapped from the embedded game", func() {
			srv, _ := pagedRuns(1, nil)
			defer srv.Close()
			runs, err := newClient(srv).Runs(ctx, "u1")
			So(err, ShouldBeNil)
			So(len(runs), ShouldEqual, 1)
			r := runs[0]
			So(r.GameID, ShouldEqual, "g1")
			So(r.GameName, ShouldEqual, "Game")
			So(r.CategoryID, ShouldEqual, "c1")
			So(r.LevelID, ShouldEqual, "")
			So(r.PrimaryTime, ShouldEqual, 100)
			So(r.HasVideo, ShouldBeTrue)
			So(r.PlatformID, ShouldEqual, "pc")
			So(r.GamePlatforms, ShouldResemble, []string{"pc", "ps2"})
			So(r.SubcategoryValues(), ShouldResemble, map[string]string{"v1": "a"})
		})
	})
}

func TestLevelsAndLeaderboard(t *testing.T) {
	Convey("Given game and leaderboard endpoints", t, func() {
		So(logger.Init(), ShouldBeNil)
		var (
			mu                sync.Mutex
			lastPath, lastRaw string
		)
		last := func() (string, string) {
			mu.Lock()
			defer mu.Unlock()
			return lastPath, lastRaw
		}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			lastPath, lastRaw = r.URL.Path, r.URL.RawQuery
			mu.Unlock()
			switch {
			case r.URL.Path == "/games/g1/levels":
				writeBody(w, http.StatusOK, map[string]any{"data": []map[string]any{
					{"id": "l1", "name": "Stage 1"}, {"id": "l2", "name": "Stage 2"},
				}})
			default:
				writeBody(w, http.StatusOK, map[string]any{"data": map[string]any{
					"weblink": "https://www.speedrun.com/game#Any",
					"runs": []map[string]any{
						{"place": 1, "run": map[string]any{
							"times":   map[string]any{"primary_t": 90.5},
							"videos":  map[string]any{"links": []any{}},
							"players": []map[string]any{{"rel": "user", "id": "p1"}},
						}},
						{"place": 2, "run": map[string]any{
							"times":   map[string]any{"primary_t": 95},
							"videos":  nil,
							"players": []map[string]any{{"rel": "guest", "name": "someone"}, {"rel": "user", "id": "p2"}},
						}},
					},
					"players": map[string]any{"data": []map[string]any{
						{"rel": "user", "id": "p1", "role": "user"},
						{"rel": "user", "id": "p2", "role": "banned"},
						{"rel": "guest", "name": "someone"},
					}},
				}})
			}
		}))
		defer srv.Close()
		c := newClient(srv)
		ctx := context.Background()

		Convey("Levels are listed", func() {
			levels, err := c.Levels(ctx, "g1")
			So(err, ShouldBeNil)
			So(levels, ShouldResemble, []upstream.Level{{ID: "l1", Name: "Stage 1"}, {ID: "l2", Name: "Stage 2"}})
		})

		Convey("A level leaderboard uses the level path and variable filters", func() {
			lb, err := c.Leaderboard(ctx, upstream.LeaderboardQuery{
				GameID: "g1", CategoryID: "c1", LevelID: "l1",
				Variables: map[string]string{"v1": "a"},
			})
			So(err, ShouldBeNil)
			gotPath, gotQuery := last()
			So(gotPath, ShouldEqual, "/leaderboards/g1/level/l1/c1")
			So(gotQuery, ShouldContainSubstring, "var-v1=a")
			So(gotQuery, ShouldContainSubstring, "video-only=true")
			So(gotQuery, ShouldContainSubstring, "embed=players")

			So(lb.Weblink, ShouldEqual, "https://www.speedrun.com/game#Any")
			So(len(lb.Entries), ShouldEqual, 2)
			So(lb.Entries[0], ShouldResemble, upstream.Entry{Place: 1, Time: 90.5, HasVideo: true, PlayerIDs: []string{"p1"}})
			So(lb.Entries[1].HasVideo, ShouldBeFalse)
			So(lb.Entries[1].PlayerIDs, ShouldResemble, []string{"p2"})
			So(lb.HasBannedPlayer(lb.Entries[0]), ShouldBeFalse)
			So(lb.HasBannedPlayer(lb.Entries[1]), ShouldBeTrue)
		})

		Convey("A full-game leaderboard uses the category path", func() {
			_, err := c.Leaderboard(ctx, upstream.LeaderboardQuery{GameID: "g1", CategoryID: "c1"})
			So(err, ShouldBeNil)
			gotPath, _ := last()
			So(gotPath, ShouldEqual, "/leaderboards/g1/category/c1")
		})
	})
}
