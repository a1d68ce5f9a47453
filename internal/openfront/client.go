package openfront

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

const (
	defaultBaseURL = "https://openfront.io/api"
	defaultTimeout = 10 * time.Second
)

// Config controls the feed client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
}

// Client talks to the public OpenFront endpoints. All requests share one
// rate limiter and one 429 cool-down window, so a rate-limit answer on any
// request parks the whole client until the window passes.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	mu        sync.Mutex
	coolUntil time.Time
}

func NewClient(cfg Config, log logx.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 4
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log,
	}
}

type wireLobby struct {
	GameID string `json:"gameID"`
	ID     string `json:"id"`
}

func (l wireLobby) matchID() string {
	if l.GameID != "" {
		return l.GameID
	}
	return l.ID
}

// ListLobbies returns the match ids currently visible in the public lobby list.
func (c *Client) ListLobbies(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/public_lobbies")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Lobbies []wireLobby `json:"lobbies"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode lobby list: %w", err)
	}
	ids := make([]string, 0, len(payload.Lobbies))
	for _, l := range payload.Lobbies {
		if id := l.matchID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// FetchMatch fetches and normalizes the archived detail of a finished match.
// Returns a 404 APIError while the match is still running.
func (c *Client) FetchMatch(ctx context.Context, matchID string) (*MatchDetail, error) {
	body, err := c.get(ctx, "/public/game/"+matchID)
	if err != nil {
		return nil, err
	}
	return ParseMatchDetail(matchID, body)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.waitCoolDown(ctx); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openfront: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("openfront: read body: %w", err)
		}
		return body, nil
	case http.StatusTooManyRequests:
		delay := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.startCoolDown(delay)
		c.log.Warn("openfront rate limited", logx.String("path", path), logx.Duration("retry_after", delay))
		return nil, &APIError{Status: resp.StatusCode, RetryAfter: delay}
	default:
		return nil, &APIError{Status: resp.StatusCode}
	}
}

func (c *Client) startCoolDown(d time.Duration) {
	until := time.Now().Add(d)
	c.mu.Lock()
	if until.After(c.coolUntil) {
		c.coolUntil = until
	}
	c.mu.Unlock()
}

func (c *Client) waitCoolDown(ctx context.Context) error {
	for {
		c.mu.Lock()
		until := c.coolUntil
		c.mu.Unlock()
		d := time.Until(until)
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return time.Second
}
