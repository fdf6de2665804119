package tasks

import (
	"context"
	"regexp"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
)

// Target applies additions and removals to one destination.
//
// Writes are strictly sequential. A failed write aborts the rest; writes already applied stay applied.
type Target interface {
	// Add writes uris, calling onProgress with the number of tracks each successful request applied.
	Add(ctx context.Context, uris []string, onProgress func(n int)) error
	// Remove deletes every occurrence of uris.
	Remove(ctx context.Context, uris []string) error
	// Writable returns the subset of uris this target can store, in order.
	Writable(uris []string) []string
}

// writableURIs narrows uris to what target accepts, logging how many were skipped.
func writableURIs(rec *jobRecord, target Target, uris []string) []string {
	out := target.Writable(uris)
	if skipped := len(uris) - len(out); skipped > 0 {
		rec.log(skippedLine(skipped))
	}
	return out
}

// NewTarget selects the strategy for playlistID once: the liked-songs sentinel writes to the saved-tracks
// collection, anything else to a regular playlist.
func NewTarget(api services.SpotifyAPI, token, playlistID string, savedDelay time.Duration) Target {
	if playlistID == models.LikedSongsID {
		return &SavedTracksTarget{api: api, token: token, delay: savedDelay, sleep: sleepContext}
	}
	return &RegularPlaylistTarget{api: api, token: token, playlistID: playlistID}
}

// RegularPlaylistTarget writes to a playlist in batches of [services.MaxBatchSize].
type RegularPlaylistTarget struct {
	api        services.SpotifyAPI
	token      string
	playlistID string
}

func (t *RegularPlaylistTarget) Add(ctx context.Context, uris []string, onProgress func(n int)) error {
	for _, batch := range chunk(uris, services.MaxBatchSize) {
		if err := t.api.AddPlaylistTracks(ctx, t.token, t.playlistID, batch); err != nil {
			return failure(AddTracks, msgAddTracks, err)
		}
		if onProgress != nil {
			onProgress(len(batch))
		}
	}
	return nil
}

func (t *RegularPlaylistTarget) Writable(uris []string) []string { return uris }

func (t *RegularPlaylistTarget) Remove(ctx context.Context, uris []string) error {
	for _, batch := range chunk(uris, services.MaxBatchSize) {
		if err := t.api.RemovePlaylistTracks(ctx, t.token, t.playlistID, batch); err != nil {
			return failure(RemoveTracks, msgRemoveTracks, err)
		}
	}
	return nil
}

var trackURIPattern = regexp.MustCompile(`^spotify:track:([A-Za-z0-9]+)$`)

// trackIDs converts track uris to bare ids, dropping anything that is not a track uri.
func trackIDs(uris []string) []string {
	ids := make([]string, 0, len(uris))
	for _, uri := range uris {
		if m := trackURIPattern.FindStringSubmatch(uri); m != nil {
			ids = append(ids, m[1])
		}
	}
	return ids
}

// SavedTracksTarget writes to the saved-tracks collection one track per request.
//
// The collection lists newest first, so additions are written in reverse to end up in input order,
// pausing after each save.
type SavedTracksTarget struct {
	api   services.SpotifyAPI
	token string
	delay time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

func (t *SavedTracksTarget) Add(ctx context.Context, uris []string, onProgress func(n int)) error {
	for _, id := range trackIDs(reversed(uris)) {
		if err := t.api.SaveTrack(ctx, t.token, id); err != nil {
			return failure(AddTracks, msgSaveTrack, err)
		}
		if onProgress != nil {
			onProgress(1)
		}
		if err := t.sleep(ctx, t.delay); err != nil {
			return failure(AddTracks, msgSaveTrack, err)
		}
	}
	return nil
}

// Writable keeps track uris only. Local files and episodes have no saved-tracks id.
func (t *SavedTracksTarget) Writable(uris []string) []string {
	out := make([]string, 0, len(uris))
	for _, uri := range uris {
		if trackURIPattern.MatchString(uri) {
			out = append(out, uri)
		}
	}
	return out
}

func (t *SavedTracksTarget) Remove(ctx context.Context, uris []string) error {
	for _, id := range trackIDs(uris) {
		if err := t.api.RemoveSavedTrack(ctx, t.token, id); err != nil {
			return failure(RemoveTracks, msgRemoveSavedTrack, err)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
