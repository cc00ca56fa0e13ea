package trakt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"showsync/internal/config"
)

// Client talks to the Trakt API on behalf of one authorized user. The
// underlying transport refreshes the OAuth token transparently.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	logger     *zerolog.Logger
}

// NewClient builds a client from config. The access token is refreshed
// automatically via the configured token endpoint.
func NewClient(cfg config.TraktConfig, logger *zerolog.Logger) *Client {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}
	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
	}

	httpClient := oauthCfg.Client(context.Background(), token)
	httpClient.Timeout = 15 * time.Second

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		clientID:   cfg.ClientID,
		httpClient: httpClient,
		logger:     logger,
	}
}

// IDs carries the remote identifiers of an item.
type IDs struct {
	Trakt int64 `json:"trakt"`
}

type itemRef struct {
	IDs         IDs        `json:"ids"`
	WatchedAt   *time.Time `json:"watched_at,omitempty"`
	CollectedAt *time.Time `json:"collected_at,omitempty"`
	RatedAt     *time.Time `json:"rated_at,omitempty"`
	Rating      int        `json:"rating,omitempty"`
}

type syncItems struct {
	Shows    []itemRef `json:"shows,omitempty"`
	Episodes []itemRef `json:"episodes,omitempty"`
	Movies   []itemRef `json:"movies,omitempty"`
}

func oneShow(ref itemRef) syncItems    { return syncItems{Shows: []itemRef{ref}} }
func oneEpisode(ref itemRef) syncItems { return syncItems{Episodes: []itemRef{ref}} }
func oneMovie(ref itemRef) syncItems   { return syncItems{Movies: []itemRef{ref}} }

// RateShow submits or clears a show rating. Rating 0 clears.
func (c *Client) RateShow(ctx context.Context, traktID int64, rating int, ratedAt time.Time) error {
	return c.rate(ctx, oneShow(itemRef{IDs: IDs{Trakt: traktID}, Rating: rating, RatedAt: &ratedAt}), rating)
}

// RateEpisode submits or clears an episode rating. Rating 0 clears.
func (c *Client) RateEpisode(ctx context.Context, traktID int64, rating int, ratedAt time.Time) error {
	return c.rate(ctx, oneEpisode(itemRef{IDs: IDs{Trakt: traktID}, Rating: rating, RatedAt: &ratedAt}), rating)
}

// RateMovie submits or clears a movie rating. Rating 0 clears.
func (c *Client) RateMovie(ctx context.Context, traktID int64, rating int, ratedAt time.Time) error {
	return c.rate(ctx, oneMovie(itemRef{IDs: IDs{Trakt: traktID}, Rating: rating, RatedAt: &ratedAt}), rating)
}

func (c *Client) rate(ctx context.Context, items syncItems, rating int) error {
	path := "/sync/ratings"
	if rating == 0 {
		path = "/sync/ratings/remove"
	}
	return c.doPost(ctx, path, items, nil)
}

// AddEpisodeToHistory records a watch on the remote history.
func (c *Client) AddEpisodeToHistory(ctx context.Context, traktID int64, watchedAt time.Time) error {
	return c.doPost(ctx, "/sync/history",
		oneEpisode(itemRef{IDs: IDs{Trakt: traktID}, WatchedAt: &watchedAt}), nil)
}

// RemoveEpisodeFromHistory removes every watch of the episode.
func (c *Client) RemoveEpisodeFromHistory(ctx context.Context, traktID int64) error {
	return c.doPost(ctx, "/sync/history/remove",
		oneEpisode(itemRef{IDs: IDs{Trakt: traktID}}), nil)
}

// AddMovieToHistory records a watch on the remote history.
func (c *Client) AddMovieToHistory(ctx context.Context, traktID int64, watchedAt time.Time) error {
	return c.doPost(ctx, "/sync/history",
		oneMovie(itemRef{IDs: IDs{Trakt: traktID}, WatchedAt: &watchedAt}), nil)
}

// RemoveMovieFromHistory removes every watch of the movie.
func (c *Client) RemoveMovieFromHistory(ctx context.Context, traktID int64) error {
	return c.doPost(ctx, "/sync/history/remove",
		oneMovie(itemRef{IDs: IDs{Trakt: traktID}}), nil)
}

// SetShowWatchlist adds or removes a show from the watchlist.
func (c *Client) SetShowWatchlist(ctx context.Context, traktID int64, inWatchlist bool) error {
	return c.doPost(ctx, watchlistPath(inWatchlist), oneShow(itemRef{IDs: IDs{Trakt: traktID}}), nil)
}

// SetEpisodeWatchlist adds or removes an episode from the watchlist.
func (c *Client) SetEpisodeWatchlist(ctx context.Context, traktID int64, inWatchlist bool) error {
	return c.doPost(ctx, watchlistPath(inWatchlist), oneEpisode(itemRef{IDs: IDs{Trakt: traktID}}), nil)
}

// SetMovieWatchlist adds or removes a movie from the watchlist.
func (c *Client) SetMovieWatchlist(ctx context.Context, traktID int64, inWatchlist bool) error {
	return c.doPost(ctx, watchlistPath(inWatchlist), oneMovie(itemRef{IDs: IDs{Trakt: traktID}}), nil)
}

func watchlistPath(add bool) string {
	if add {
		return "/sync/watchlist"
	}
	return "/sync/watchlist/remove"
}

// SetShowCollection adds or removes a show from the collection.
func (c *Client) SetShowCollection(ctx context.Context, traktID int64, inCollection bool) error {
	return c.doPost(ctx, collectionPath(inCollection), oneShow(itemRef{IDs: IDs{Trakt: traktID}}), nil)
}

// SetEpisodeCollection adds or removes an episode from the collection.
func (c *Client) SetEpisodeCollection(ctx context.Context, traktID int64, inCollection bool, collectedAt *time.Time) error {
	return c.doPost(ctx, collectionPath(inCollection),
		oneEpisode(itemRef{IDs: IDs{Trakt: traktID}, CollectedAt: collectedAt}), nil)
}

// SetMovieCollection adds or removes a movie from the collection.
func (c *Client) SetMovieCollection(ctx context.Context, traktID int64, inCollection bool) error {
	return c.doPost(ctx, collectionPath(inCollection), oneMovie(itemRef{IDs: IDs{Trakt: traktID}}), nil)
}

func collectionPath(add bool) string {
	if add {
		return "/sync/collection"
	}
	return "/sync/collection/remove"
}

// AddListItem adds an item to a custom list.
func (c *Client) AddListItem(ctx context.Context, listTraktID int64, itemType string, itemTraktID int64) error {
	return c.doPost(ctx, fmt.Sprintf("/users/me/lists/%d/items", listTraktID),
		listItems(itemType, itemTraktID), nil)
}

// RemoveListItem removes an item from a custom list.
func (c *Client) RemoveListItem(ctx context.Context, listTraktID int64, itemType string, itemTraktID int64) error {
	return c.doPost(ctx, fmt.Sprintf("/users/me/lists/%d/items/remove", listTraktID),
		listItems(itemType, itemTraktID), nil)
}

func listItems(itemType string, traktID int64) syncItems {
	ref := itemRef{IDs: IDs{Trakt: traktID}}
	switch itemType {
	case "show":
		return oneShow(ref)
	case "episode":
		return oneEpisode(ref)
	case "movie":
		return oneMovie(ref)
	}
	return syncItems{}
}

type commentRequest struct {
	Show    *itemRef `json:"show,omitempty"`
	Episode *itemRef `json:"episode,omitempty"`
	Movie   *itemRef `json:"movie,omitempty"`
	Comment string   `json:"comment"`
	Spoiler bool     `json:"spoiler"`
}

type commentResponse struct {
	ID int64 `json:"id"`
}

// AddComment posts a new comment and returns the remote-assigned id.
func (c *Client) AddComment(ctx context.Context, itemType string, traktID int64, text string, spoiler bool) (int64, error) {
	req := commentRequest{Comment: text, Spoiler: spoiler}
	ref := &itemRef{IDs: IDs{Trakt: traktID}}
	switch itemType {
	case "show":
		req.Show = ref
	case "episode":
		req.Episode = ref
	case "movie":
		req.Movie = ref
	default:
		return 0, fmt.Errorf("unsupported comment item type %q", itemType)
	}

	var resp commentResponse
	if err := c.doPost(ctx, "/comments", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// UpdateComment replaces the text of an existing comment.
func (c *Client) UpdateComment(ctx context.Context, remoteID int64, text string, spoiler bool) error {
	body := commentRequest{Comment: text, Spoiler: spoiler}
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/comments/%d", remoteID), body, nil)
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, remoteID int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/comments/%d", remoteID), nil, nil)
}

type checkinRequest struct {
	Episode *itemRef `json:"episode,omitempty"`
	Movie   *itemRef `json:"movie,omitempty"`
}

// CheckinEpisode starts watching an episode. A 409 surfaces as
// ErrCheckinInProgress.
func (c *Client) CheckinEpisode(ctx context.Context, traktID int64) error {
	return c.doPost(ctx, "/checkin", checkinRequest{Episode: &itemRef{IDs: IDs{Trakt: traktID}}}, nil)
}

// CheckinMovie starts watching a movie. A 409 surfaces as
// ErrCheckinInProgress.
func (c *Client) CheckinMovie(ctx context.Context, traktID int64) error {
	return c.doPost(ctx, "/checkin", checkinRequest{Movie: &itemRef{IDs: IDs{Trakt: traktID}}}, nil)
}

// DeleteCheckin cancels whatever checkin is active remotely.
func (c *Client) DeleteCheckin(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/checkin", nil, nil)
}

// WatchedShow is one entry of the remote watched-shows report.
type WatchedShow struct {
	Show struct {
		Title string `json:"title"`
		IDs   IDs    `json:"ids"`
	} `json:"show"`
	Seasons []struct {
		Number   int `json:"number"`
		Episodes []struct {
			Number        int       `json:"number"`
			Plays         int       `json:"plays"`
			LastWatchedAt time.Time `json:"last_watched_at"`
		} `json:"episodes"`
	} `json:"seasons"`
}

// WatchedShows fetches the full remote watched state for reconciliation.
func (c *Client) WatchedShows(ctx context.Context) ([]WatchedShow, error) {
	var shows []WatchedShow
	if err := c.doJSON(ctx, http.MethodGet, "/sync/watched/shows", nil, &shows); err != nil {
		return nil, err
	}
	return shows, nil
}

// Watching describes what the user is checked in to right now.
type Watching struct {
	ExpiresAt time.Time `json:"expires_at"`
	StartedAt time.Time `json:"started_at"`
	Type      string    `json:"type"`
	Episode   *struct {
		Season int    `json:"season"`
		Number int    `json:"number"`
		Title  string `json:"title"`
		IDs    IDs    `json:"ids"`
	} `json:"episode,omitempty"`
	Movie *struct {
		Title string `json:"title"`
		IDs   IDs    `json:"ids"`
	} `json:"movie,omitempty"`
}

// CurrentlyWatching fetches the active checkin, nil when there is none.
func (c *Client) CurrentlyWatching(ctx context.Context) (*Watching, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me/watching", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("trakt-api-version", "2")
	req.Header.Set("trakt-api-key", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var watching Watching
	if err := json.NewDecoder(resp.Body).Decode(&watching); err != nil {
		return nil, err
	}
	return &watching, nil
}

// RatedItem is one entry of the remote ratings report. Episode entries carry
// both the episode and its show.
type RatedItem struct {
	RatedAt time.Time `json:"rated_at"`
	Rating  int       `json:"rating"`
	Type    string    `json:"type"`
	Show    *struct {
		Title string `json:"title"`
		IDs   IDs    `json:"ids"`
	} `json:"show,omitempty"`
	Episode *struct {
		Season int    `json:"season"`
		Number int    `json:"number"`
		Title  string `json:"title"`
		IDs    IDs    `json:"ids"`
	} `json:"episode,omitempty"`
	Movie *struct {
		Title string `json:"title"`
		IDs   IDs    `json:"ids"`
	} `json:"movie,omitempty"`
}

// Ratings fetches everything the user has rated.
func (c *Client) Ratings(ctx context.Context) ([]RatedItem, error) {
	var items []RatedItem
	if err := c.doJSON(ctx, http.MethodGet, "/sync/ratings", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// WatchlistItem is one entry of the remote watchlist.
type WatchlistItem struct {
	ListedAt time.Time `json:"listed_at"`
	Type     string    `json:"type"`
	Show     *struct {
		Title string `json:"title"`
		IDs   IDs    `json:"ids"`
	} `json:"show,omitempty"`
	Episode *struct {
		Season int    `json:"season"`
		Number int    `json:"number"`
		Title  string `json:"title"`
		IDs    IDs    `json:"ids"`
	} `json:"episode,omitempty"`
	Movie *struct {
		Title string `json:"title"`
		IDs   IDs    `json:"ids"`
	} `json:"movie,omitempty"`
}

// Watchlist fetches the full remote watchlist.
func (c *Client) Watchlist(ctx context.Context) ([]WatchlistItem, error) {
	var items []WatchlistItem
	if err := c.doJSON(ctx, http.MethodGet, "/sync/watchlist", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// LastActivities carries the remote change timestamps used to decide which
// resync jobs are worth enqueueing.
type LastActivities struct {
	All      time.Time `json:"all"`
	Episodes struct {
		WatchedAt     time.Time `json:"watched_at"`
		CollectedAt   time.Time `json:"collected_at"`
		RatedAt       time.Time `json:"rated_at"`
		WatchlistedAt time.Time `json:"watchlisted_at"`
	} `json:"episodes"`
	Shows struct {
		RatedAt       time.Time `json:"rated_at"`
		CollectedAt   time.Time `json:"collected_at"`
		WatchlistedAt time.Time `json:"watchlisted_at"`
	} `json:"shows"`
	Movies struct {
		WatchedAt     time.Time `json:"watched_at"`
		CollectedAt   time.Time `json:"collected_at"`
		RatedAt       time.Time `json:"rated_at"`
		WatchlistedAt time.Time `json:"watchlisted_at"`
	} `json:"movies"`
	Comments struct {
		LikedAt time.Time `json:"liked_at"`
	} `json:"comments"`
}

// UserComment is one entry of the user's remote comment list.
type UserComment struct {
	Type    string `json:"type"`
	Comment struct {
		ID        int64     `json:"id"`
		Comment   string    `json:"comment"`
		Spoiler   bool      `json:"spoiler"`
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"comment"`
}

// UserComments fetches every comment the user authored.
func (c *Client) UserComments(ctx context.Context) ([]UserComment, error) {
	var comments []UserComment
	if err := c.doJSON(ctx, http.MethodGet, "/users/me/comments/all", nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// UserActivity fetches the last-activities timestamps.
func (c *Client) UserActivity(ctx context.Context) (*LastActivities, error) {
	var activities LastActivities
	if err := c.doJSON(ctx, http.MethodGet, "/sync/last_activities", nil, &activities); err != nil {
		return nil, err
	}
	return &activities, nil
}

func (c *Client) doPost(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", "2")
	req.Header.Set("trakt-api-key", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("remote call rejected")
		return &StatusError{Code: resp.StatusCode}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
