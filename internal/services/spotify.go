// Spotify Web API client used by the job engine
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL  = "https://api.spotify.com/v1"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	savedTracksPageSize = 50
	playlistPageSize    = 100

	// maxCoverBytes bounds how much of a source cover image is read.
	maxCoverBytes = 4 << 20
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL string `json:"url"`
}

type Owner struct {
	ID string `json:"id"`
}

// SpotifyPlaylist represents playlist details as requested with the details field filter.
type SpotifyPlaylist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Owner       Owner          `json:"owner"`
	Images      []SpotifyImage `json:"images"`
}

// CoverURL returns the first image url, or "" when the playlist has no cover.
func (p *SpotifyPlaylist) CoverURL() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// SpotifyTrack is the slice of a track object the engine reads.
type SpotifyTrack struct {
	URI string `json:"uri"`
}

// SpotifyTrackItem wraps a track inside a playlist or saved-tracks page. Track is nil for unavailable items.
type SpotifyTrackItem struct {
	Track *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents one page of playlist or saved tracks.
type SpotifyPaginatedTracks struct {
	Items  []SpotifyTrackItem `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
	Next   *string            `json:"next"`
}

// APIError is a non-2xx response from the Web API.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error: %s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
}

func (e *APIError) Unwrap() error { return shared.ErrAPIRequest }

// StatusCode extracts the HTTP status from an [APIError] in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// SpotifyClient issues Web API requests on behalf of any token.
//
// Requests share one rate limiter so concurrent jobs on the same client are paced together.
type SpotifyClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewSpotifyClient creates a client from cfg. A nil logger discards output.
func NewSpotifyClient(cfg shared.SpotifyConfig, logger *log.Logger) *SpotifyClient {
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &SpotifyClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// send performs an authenticated request. Endpoints starting with http are used verbatim, which is how
// pagination cursors are followed.
func (s *SpotifyClient) send(ctx context.Context, token, method, endpoint, contentType string, body io.Reader, result any) error {
	if token == "" {
		return shared.ErrNotAuthenticated
	}

	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		apiURL = s.baseURL + endpoint
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Debug("spotify request failed", "method", method, "endpoint", endpoint, "status", resp.StatusCode)
		return &APIError{Method: method, Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// doRequest sends body, if any, as JSON.
func (s *SpotifyClient) doRequest(ctx context.Context, token, method, endpoint string, body, result any) error {
	if body == nil {
		return s.send(ctx, token, method, endpoint, "", nil, result)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return s.send(ctx, token, method, endpoint, "application/json", bytes.NewReader(data), result)
}

// CurrentUser retrieves the profile that owns token.
func (s *SpotifyClient) CurrentUser(ctx context.Context, token string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, token, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, fmt.Errorf("%w: current user: %w", shared.ErrFetch, err)
	}
	return &user, nil
}

// PlaylistDetails retrieves id, name, description, owner and images. The liked-songs sentinel is synthesized
// without a request.
func (s *SpotifyClient) PlaylistDetails(ctx context.Context, token, playlistID string) (*SpotifyPlaylist, error) {
	if playlistID == models.LikedSongsID {
		return &SpotifyPlaylist{ID: models.LikedSongsID, Name: models.LikedSongsName}, nil
	}

	endpoint := fmt.Sprintf("/playlists/%s?fields=%s", url.PathEscape(playlistID), url.QueryEscape("id,name,description,owner(id),images(url)"))

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, token, http.MethodGet, endpoint, nil, &playlist); err != nil {
		return nil, fmt.Errorf("%w: playlist %s: %w", shared.ErrFetch, playlistID, err)
	}
	return &playlist, nil
}

// ReadAllTracks returns every track uri of a playlist or of the saved-tracks collection, in listing order.
//
// Items without a track or uri are skipped. Any failed page discards what was read so far.
func (s *SpotifyClient) ReadAllTracks(ctx context.Context, token, playlistID string) ([]string, error) {
	next := fmt.Sprintf("/playlists/%s/tracks?limit=%d", url.PathEscape(playlistID), playlistPageSize)
	if playlistID == models.LikedSongsID {
		next = fmt.Sprintf("/me/tracks?limit=%d", savedTracksPageSize)
	}

	uris := []string{}
	for next != "" {
		var page SpotifyPaginatedTracks
		if err := s.doRequest(ctx, token, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("%w: tracks of %s: %w", shared.ErrFetch, playlistID, err)
		}

		for _, item := range page.Items {
			if item.Track != nil && item.Track.URI != "" {
				uris = append(uris, item.Track.URI)
			}
		}

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}

	s.logger.Debug("read tracks", "playlist", playlistID, "count", len(uris))
	return uris, nil
}

// CreatePlaylist creates a playlist owned by token's user.
func (s *SpotifyClient) CreatePlaylist(ctx context.Context, token, name, description string) (*SpotifyPlaylist, error) {
	body := map[string]string{"name": name, "description": description}

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, token, http.MethodPost, "/me/playlists", body, &playlist); err != nil {
		return nil, fmt.Errorf("%w: create playlist: %w", shared.ErrMutation, err)
	}
	return &playlist, nil
}

// FollowPlaylist adds a playlist to token's library without making it public.
func (s *SpotifyClient) FollowPlaylist(ctx context.Context, token, playlistID string) error {
	endpoint := fmt.Sprintf("/playlists/%s/followers", url.PathEscape(playlistID))
	if err := s.doRequest(ctx, token, http.MethodPut, endpoint, map[string]bool{"public": false}, nil); err != nil {
		return fmt.Errorf("%w: follow %s: %w", shared.ErrMutation, playlistID, err)
	}
	return nil
}

// AddPlaylistTracks appends one batch of uris. Callers keep batches at or under [MaxBatchSize].
func (s *SpotifyClient) AddPlaylistTracks(ctx context.Context, token, playlistID string, uris []string) error {
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	if err := s.doRequest(ctx, token, http.MethodPost, endpoint, map[string][]string{"uris": uris}, nil); err != nil {
		return fmt.Errorf("%w: add tracks to %s: %w", shared.ErrMutation, playlistID, err)
	}
	return nil
}

type trackRef struct {
	URI string `json:"uri"`
}

// RemovePlaylistTracks deletes every occurrence of one batch of uris.
func (s *SpotifyClient) RemovePlaylistTracks(ctx context.Context, token, playlistID string, uris []string) error {
	refs := make([]trackRef, len(uris))
	for i, uri := range uris {
		refs[i] = trackRef{URI: uri}
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	if err := s.doRequest(ctx, token, http.MethodDelete, endpoint, map[string][]trackRef{"tracks": refs}, nil); err != nil {
		return fmt.Errorf("%w: remove tracks from %s: %w", shared.ErrMutation, playlistID, err)
	}
	return nil
}

// SaveTrack saves one track id to token's library.
func (s *SpotifyClient) SaveTrack(ctx context.Context, token, trackID string) error {
	if err := s.doRequest(ctx, token, http.MethodPut, "/me/tracks", map[string][]string{"ids": {trackID}}, nil); err != nil {
		return fmt.Errorf("%w: save track %s: %w", shared.ErrMutation, trackID, err)
	}
	return nil
}

// RemoveSavedTrack removes one track id from token's library.
func (s *SpotifyClient) RemoveSavedTrack(ctx context.Context, token, trackID string) error {
	endpoint := "/me/tracks?ids=" + url.QueryEscape(trackID)
	if err := s.doRequest(ctx, token, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("%w: remove saved track %s: %w", shared.ErrMutation, trackID, err)
	}
	return nil
}

// BestEffortResult reports the outcome of an operation whose failure never fails a job.
type BestEffortResult string

const (
	Applied BestEffortResult = "applied"
	Skipped BestEffortResult = "skipped"
	Ignored BestEffortResult = "ignored"
)

// CopyCover downloads a JPEG cover from imageURL and uploads it to playlistID.
//
// A missing url or a non-JPEG image is [Skipped]; download or upload failures are [Ignored].
func (s *SpotifyClient) CopyCover(ctx context.Context, token, playlistID, imageURL string) BestEffortResult {
	if imageURL == "" {
		return Skipped
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return Ignored
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug("cover download failed", "url", imageURL, "error", err)
		return Ignored
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Ignored
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "jpeg") && !strings.Contains(contentType, "jpg") {
		return Skipped
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return Ignored
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	endpoint := fmt.Sprintf("/playlists/%s/images", url.PathEscape(playlistID))
	if err := s.send(ctx, token, http.MethodPut, endpoint, "image/jpeg", strings.NewReader(encoded), nil); err != nil {
		s.logger.Debug("cover upload failed", "playlist", playlistID, "error", err)
		return Ignored
	}
	return Applied
}
