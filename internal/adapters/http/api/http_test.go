package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/globalboard/internal/adapters/http/api"
	"github.com/okian/globalboard/internal/adapters/repository"
	service "github.com/okian/globalboard/internal/app"
	"github.com/okian/globalboard/internal/domain/model"
	"github.com/okian/globalboard/internal/domain/upstream"
)

type mockDeps struct {
	result    model.UpdateResult
	updateErr error
	requester string
	target    string

	ranked    []model.RankedPlayer
	byCountry []model.Player
	codes     []string
	details   model.Breakdown
	values    []model.GameValue
}

func (m *mockDeps) UpdatePlayer(_ context.Context, requester, idOrName string) (model.UpdateResult, error) {
	m.requester, m.target = requester, idOrName
	return m.result, m.updateErr
}

func (m *mockDeps) Players(context.Context) ([]model.RankedPlayer, error) { return m.ranked, nil }

func (m *mockDeps) PlayersByCountry(_ context.Context, codes []string) ([]model.Player, error) {
	m.codes = codes
	return m.byCountry, nil
}

func (m *mockDeps) ScoreDetails(_ context.Context, id string) (model.Breakdown, error) {
	if m.details == nil {
		return nil, repository.ErrNotFound
	}
	return m.details, nil
}

func (m *mockDeps) GameValues(context.Context) ([]model.GameValue, error) { return m.values, nil }

func (m *mockDeps) Stats(context.Context) map[string]any {
	return map[string]any{"started": true}
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.NewDecoder(w.Body).Decode(v), ShouldBeNil)
}

func TestUpdatePlayer(t *testing.T) {
	Convey("Given the update endpoint", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("A successful update answers 200 with the result", func() {
			deps.result = model.UpdateResult{UserID: "u1", Name: "Alice", Score: 120, State: model.StateSuccess,
				Message: "updated", ScoreDetails: model.Breakdown{{}, {}}}
			w := do(mux, http.MethodPost, "/players/alice/update")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.target, ShouldEqual, "alice")
			So(deps.requester, ShouldEqual, "192.0.2.1")

			var got model.UpdateResult
			decode(w, &got)
			So(got.UserID, ShouldEqual, "u1")
			So(got.Score, ShouldEqual, 120)
			So(got.State, ShouldEqual, model.StateSuccess)
		})

		Convey("A refused update answers 400 with the result", func() {
			deps.result = model.UpdateResult{State: model.StateWarning, Message: "This user has already been updated in the past 7 days"}
			w := do(mux, http.MethodPost, "/players/alice/update")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "already been updated")
		})

		Convey("Errors map to status codes", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{service.ErrUpdateInProgress, http.StatusConflict, "in_progress"},
				{service.ErrEmptyID, http.StatusBadRequest, "bad_request"},
				{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
				{upstream.NewError(upstream.KindOverload, "503 (speedrun.com)", ""), http.StatusServiceUnavailable, "overloaded"},
				{upstream.NewError(upstream.KindUpstream, "HTTPError 502", "bad gateway"), http.StatusFailedDependency, "upstream"},
				{upstream.NewError(upstream.KindTooManyRuns, "Too many runs", "too many"), http.StatusFailedDependency, "too_many_runs"},
				{errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
			}
			for _, c := range cases {
				deps.updateErr = c.err
				w := do(mux, http.MethodPost, "/players/alice/update")
				So(w.Code, ShouldEqual, c.status)
				var body map[string]string
				decode(w, &body)
				So(body["code"], ShouldEqual, c.code)
			}
		})

		Convey("An upstream error carries its label and details", func() {
			deps.updateErr = upstream.NewError(upstream.KindUpstream, "HTTPError 502", "502 Bad Gateway")
			w := do(mux, http.MethodPost, "/players/alice/update")
			var body map[string]string
			decode(w, &body)
			So(body["message"], ShouldEqual, "HTTPError 502")
			So(body["details"], ShouldEqual, "502 Bad Gateway")
		})

		Convey("GET is not allowed", func() {
			w := do(mux, http.MethodGet, "/players/alice/update")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	Convey("Given a rate limited update endpoint", t, func() {
		deps := &mockDeps{result: model.UpdateResult{State: model.StateSuccess}}
		mux := newMux(deps, api.WithUpdateRateLimit(1))

		Convey("A second request from the same address is refused", func() {
			So(do(mux, http.MethodPost, "/players/a/update").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodPost, "/players/b/update").Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("Reads are not limited", func() {
			for range 3 {
				So(do(mux, http.MethodGet, "/players").Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestReadEndpoints(t *testing.T) {
	Convey("Given a stored scoreboard", t, func() {
		last := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
		deps := &mockDeps{
			ranked: []model.RankedPlayer{
				{Player: model.Player{ID: "u1", Name: "Alice", CountryCode: "ca/qc", Score: 300, LastUpdate: last}, Rank: 1},
				{Player: model.Player{ID: "u2", Name: "Bob", CountryCode: "us", Score: 300, LastUpdate: last}, Rank: 1},
			},
			byCountry: []model.Player{{ID: "u1", Name: "Alice", CountryCode: "ca/qc", Score: 300, LastUpdate: last}},
		}
		mux := newMux(deps)

		Convey("GET /players returns the ranking", func() {
			w := do(mux, http.MethodGet, "/players")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got []map[string]any
			decode(w, &got)
			So(len(got), ShouldEqual, 2)
			So(got[0]["userId"], ShouldEqual, "u1")
			So(got[0]["lastUpdate"], ShouldEqual, "2024-05-10 12:00")
			So(got[1]["rank"], ShouldEqual, float64(1))
			So(got[0], ShouldNotContainKey, "scoreDetails")
		})

		Convey("GET /players?region= filters by country", func() {
			w := do(mux, http.MethodGet, "/players?region=CA,%20us,")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.codes, ShouldResemble, []string{"ca", "us"})
			var got []map[string]any
			decode(w, &got)
			So(len(got), ShouldEqual, 1)
			So(got[0], ShouldNotContainKey, "rank")
		})

		Convey("An empty scoreboard is an empty array", func() {
			deps.ranked = nil
			w := do(mux, http.MethodGet, "/players")
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})

		Convey("Score details of an unknown player are not found", func() {
			w := do(mux, http.MethodGet, "/players/u9/score-details")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Score details are served as two lists", func() {
			deps.details = model.Breakdown{{{GameName: "Game", CategoryName: "Any%", Points: 10, DiminishedPoints: 10, LevelFraction: 1}}, {}}
			w := do(mux, http.MethodGet, "/players/u1/score-details")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got model.Breakdown
			decode(w, &got)
			So(got, ShouldResemble, deps.details)
		})

		Convey("Game values default to an empty array", func() {
			w := do(mux, http.MethodGet, "/game-values")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})

		Convey("GET /healthz reports the service state", func() {
			w := do(mux, http.MethodGet, "/healthz")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got map[string]any
			decode(w, &got)
			So(got["status"], ShouldEqual, "ok")
			So(got["started"], ShouldEqual, true)
		})

		Convey("GET /metrics exposes the HTTP metrics", func() {
			do(mux, http.MethodGet, "/healthz")
			w := do(mux, http.MethodGet, "/metrics")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "globalboard_http_requests_total")
		})
	})
}
