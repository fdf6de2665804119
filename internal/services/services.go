package services

import (
	"context"
)

// MaxBatchSize is the largest number of uris the Web API accepts per playlist add or remove.
const MaxBatchSize = 100

// SpotifyAPI is the set of Web API calls the job engine drives. [SpotifyClient] implements it.
type SpotifyAPI interface {
	CurrentUser(ctx context.Context, token string) (*SpotifyUser, error)
	PlaylistDetails(ctx context.Context, token, playlistID string) (*SpotifyPlaylist, error)
	ReadAllTracks(ctx context.Context, token, playlistID string) ([]string, error)
	CreatePlaylist(ctx context.Context, token, name, description string) (*SpotifyPlaylist, error)
	FollowPlaylist(ctx context.Context, token, playlistID string) error
	AddPlaylistTracks(ctx context.Context, token, playlistID string, uris []string) error
	RemovePlaylistTracks(ctx context.Context, token, playlistID string, uris []string) error
	SaveTrack(ctx context.Context, token, trackID string) error
	RemoveSavedTrack(ctx context.Context, token, trackID string) error
	CopyCover(ctx context.Context, token, playlistID, imageURL string) BestEffortResult
}

// CredentialProvider turns a possibly empty access token and an optional refresh token into a usable token.
type CredentialProvider interface {
	EnsureToken(ctx context.Context, current, refresh string) (string, error)
}

var (
	_ SpotifyAPI         = (*SpotifyClient)(nil)
	_ CredentialProvider = (*TokenRefresher)(nil)
)
