package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"showsync/internal/config"
	"showsync/internal/ratelimit"
)

// ErrNotFound marks an id the metadata provider does not know.
var ErrNotFound = errors.New("tmdb: not found")

// Images holds the relative image paths of one title.
type Images struct {
	PosterPath   string `json:"poster_path"`
	BackdropPath string `json:"backdrop_path"`
}

// Client fetches image metadata from TMDB. Every request first acquires a
// permit from the shared limiter, so callers never exceed the provider quota
// no matter how many goroutines resolve images at once.
type Client struct {
	baseURL    string
	apiKey     string
	limiter    *ratelimit.Limiter
	httpClient *http.Client
	logger     *zerolog.Logger
}

// NewClient builds a TMDB client sharing the given limiter.
func NewClient(cfg config.TmdbConfig, limiter *ratelimit.Limiter, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    limiter,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// ShowImages returns the poster and backdrop paths for a TV show.
func (c *Client) ShowImages(ctx context.Context, tmdbID int64) (*Images, error) {
	return c.fetch(ctx, fmt.Sprintf("/tv/%d", tmdbID))
}

// MovieImages returns the poster and backdrop paths for a movie.
func (c *Client) MovieImages(ctx context.Context, tmdbID int64) (*Images, error) {
	return c.fetch(ctx, fmt.Sprintf("/movie/%d", tmdbID))
}

func (c *Client) fetch(ctx context.Context, path string) (*Images, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s%s?api_key=%s", c.baseURL, path, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("tmdb returned http %d", resp.StatusCode)
	}

	var images Images
	if err := json.NewDecoder(resp.Body).Decode(&images); err != nil {
		return nil, err
	}
	return &images, nil
}
