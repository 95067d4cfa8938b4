// Package speedrun implements the leaderboard client against the
// speedrun.com REST API (v1).
package speedrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/globalboard/internal/domain/upstream"
	"github.com/okian/globalboard/pkg/logger"
	"github.com/okian/globalboard/pkg/metrics"
)

const (
	defaultBaseURL    = "https://www.speedrun.com/api/v1"
	defaultTimeout    = 30 * time.Second
	defaultRatePerMin = 99
	defaultPageSize   = 200
	defaultRetries    = 3
	defaultRetryDelay = time.Second

	// MinPageSize is the smallest page requested when shrinking after server errors.
	MinPageSize = 20

	maxBodyBytes = 32 << 20
)

// Client talks to speedrun.com. All requests share one rate limiter.
type Client struct {
	http       *http.Client
	baseURL    string
	limiter    *rate.Limiter
	pageSize   int
	retries    int
	retryDelay time.Duration
	logger     logger.Logger
}

var _ upstream.Client = (*Client)(nil)

// New creates a Client with configuration options.
func New(opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		limiter:    perMinute(defaultRatePerMin),
		pageSize:   defaultPageSize,
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		logger:     logger.Get().Named("speedrun"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

func perMinute(n int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

// Profile implements upstream.Client.
func (c *Client) Profile(ctx context.Context, idOrName string) (upstream.Profile, error) {
	var u userDTO
	if err := c.get(ctx, "users", "/users/"+url.PathEscape(idOrName), nil, &u); err != nil {
		return upstream.Profile{}, err
	}
	return u.profile(), nil
}

// Runs implements upstream.Client.
func (c *Client) Runs(ctx context.Context, playerID string) ([]upstream.RawRun, error) {
	q := url.Values{}
	q.Set("user", playerID)
	q.Set("status", "verified")
	q.Set("embed", "game.variables")

	var out []upstream.RawRun
	err := c.paginate(ctx, "runs", "/runs", q, func(data json.RawMessage) error {
		var page []runDTO
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		for _, r := range page {
			out = append(out, r.raw())
		}
		return nil
	})
	return out, err
}

// Levels implements upstream.Client.
func (c *Client) Levels(ctx context.Context, gameID string) ([]upstream.Level, error) {
	q := url.Values{}
	q.Set("max", strconv.Itoa(c.pageSize))

	var levels []levelDTO
	if err := c.get(ctx, "levels", "/games/"+url.PathEscape(gameID)+"/levels", q, &levels); err != nil {
		return nil, err
	}
	out := make([]upstream.Level, 0, len(levels))
	for _, l := range levels {
		out = append(out, upstream.Level{ID: l.ID, Name: l.Name})
	}
	return out, nil
}

// Leaderboard implements upstream.Client.
func (c *Client) Leaderboard(ctx context.Context, lq upstream.LeaderboardQuery) (upstream.Leaderboard, error) {
	path := "/leaderboards/" + url.PathEscape(lq.GameID) + "/category/" + url.PathEscape(lq.CategoryID)
	if lq.LevelID != "" {
		path = "/leaderboards/" + url.PathEscape(lq.GameID) + "/level/" + url.PathEscape(lq.LevelID) + "/" + url.PathEscape(lq.CategoryID)
	}
	q := url.Values{}
	q.Set("video-only", "true")
	q.Set("embed", "players")
	for id, value := range lq.Variables {
		q.Set("var-"+id, value)
	}

	var lb leaderboardDTO
	if err := c.get(ctx, "leaderboards", path, q, &lb); err != nil {
		return upstream.Leaderboard{}, err
	}
	return lb.leaderboard(), nil
}

// paginate walks every page of a listing. A page that fails with a server
// error is retried with a smaller page size, which then grows back after
// each success.
func (c *Client) paginate(ctx context.Context, endpoint, path string, q url.Values, each func(json.RawMessage) error) error {
	size, offset := c.pageSize, 0
	for {
		q.Set("max", strconv.Itoa(size))
		q.Set("offset", strconv.Itoa(offset))

		var page pageEnvelope
		if err := c.do(ctx, endpoint, path, q, &page); err != nil {
			var e *upstream.Error
			if errors.As(err, &e) && e.Status == http.StatusInternalServerError && size > MinPageSize {
				reduced := max(size*2/5, MinPageSize)
				c.logger.Warn(ctx, "server error on a paginated request, reducing page size",
					logger.String("path", path),
					logger.Int("from", size),
					logger.Int("to", reduced),
				)
				size = reduced
				continue
			}
			return err
		}
		if err := each(page.Data); err != nil {
			return upstream.Wrap(err, "JSONDecodeError")
		}
		if page.Pagination.Size < size {
			return nil
		}
		offset += size
		if size < c.pageSize {
			size = min(c.pageSize, int(math.Ceil(float64(size)*1.5)))
		}
	}
}

// get fetches a single resource and decodes its data field into out.
func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	var env dataEnvelope
	if err := c.do(ctx, endpoint, path, q, &env); err != nil {
		return err
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &upstream.Error{Kind: upstream.KindUpstream, Label: "JSONDecodeError", Detail: err.Error(), Err: err}
	}
	return nil
}

// do performs a rate-limited GET, retrying statuses speedrun.com uses for
// transient failures, and decodes the body into out.
func (c *Client) do(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	for attempt := 0; ; attempt++ {
		body, status, err := c.fetch(ctx, endpoint, u)
		if err != nil {
			return err
		}

		uerr := classify(status, body)
		if uerr == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return &upstream.Error{
					Kind:   upstream.KindUpstream,
					Label:  "JSONDecodeError",
					Detail: fmt.Sprintf("%s in:\n%s", err, truncate(body)),
					Err:    err,
				}
			}
			return nil
		}
		if !retryable(uerr) || attempt >= c.retries {
			return uerr
		}

		c.logger.Warn(ctx, "retrying speedrun.com request",
			logger.String("url", u),
			logger.String("error", uerr.Error()),
			logger.Int("attempt", attempt+1),
		)
		select {
		case <-ctx.Done():
			return upstream.Wrap(ctx.Err(), "Request cancelled")
		case <-time.After(c.retryDelay * time.Duration(attempt+1)):
		}
	}
}

func (c *Client) fetch(ctx context.Context, endpoint, u string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, upstream.Wrap(err, "Request cancelled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, upstream.Wrap(err, "Invalid request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(endpoint, "error", float64(time.Since(start).Milliseconds()))
		return nil, 0, &upstream.Error{
			Kind:   upstream.KindUpstream,
			Label:  "Can't establish connexion to speedrun.com. Please try again",
			Detail: err.Error(),
			Err:    err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.RecordUpstreamRequest(endpoint, strconv.Itoa(resp.StatusCode), float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, 0, upstream.Wrap(err, "Connexion interrupted")
	}
	c.logger.Debug(ctx, "[ GET ]", logger.String("url", u), logger.Int("status", resp.StatusCode))
	return body, resp.StatusCode, nil
}

// classify maps an HTTP status and body to an upstream error, or nil on success.
// A body carrying a "status" field is a speedrun.com error envelope and
// takes precedence over the HTTP status.
func classify(status int, body []byte) *upstream.Error {
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Status != 0 {
		label := fmt.Sprintf("%d (speedrun.com)", env.Status)
		switch {
		case env.Status == http.StatusNotFound:
			return &upstream.Error{Kind: upstream.KindNotFound, Label: label, Detail: env.Message, Status: env.Status}
		case env.Status == http.StatusServiceUnavailable,
			env.Status == 420 && strings.Contains(env.Message, "too busy"):
			return &upstream.Error{Kind: upstream.KindOverload, Label: label, Detail: env.Message, Status: env.Status}
		default:
			return &upstream.Error{Kind: upstream.KindUpstream, Label: label, Detail: env.Message, Status: env.Status}
		}
	}

	if status >= 200 && status < 300 {
		return nil
	}
	label := fmt.Sprintf("HTTPError %d", status)
	detail := fmt.Sprintf("%d %s", status, http.StatusText(status))
	switch status {
	case http.StatusNotFound:
		return &upstream.Error{Kind: upstream.KindNotFound, Label: label, Detail: detail, Status: status}
	case http.StatusServiceUnavailable:
		return &upstream.Error{Kind: upstream.KindOverload, Label: fmt.Sprintf("%d (speedrun.com)", status), Detail: detail, Status: status}
	default:
		return &upstream.Error{Kind: upstream.KindUpstream, Label: label, Detail: detail, Status: status}
	}
}

// retryable reports statuses that speedrun.com returns transiently.
func retryable(e *upstream.Error) bool {
	if e.Kind != upstream.KindUpstream {
		return false
	}
	switch e.Status {
	case http.StatusUnauthorized, 420, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
