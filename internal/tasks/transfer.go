package tasks

import (
	"context"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
)

// runTransfer copies each item's playlist into the destination account.
//
// Errors inside an item fail only that item. Errors returned from here (the destination check and the source
// profile lookup) fail the whole job.
func (e *JobEngine) runTransfer(ctx context.Context, rec *jobRecord, auth models.Credentials) error {
	sourceToken, destToken, ok := e.resolveTokens(ctx, rec, auth)
	if !ok {
		return nil
	}

	if _, err := e.api.CurrentUser(ctx, destToken); err != nil {
		return failure(FetchUser, msgFetchUser, err)
	}

	var sourceUserID string
	if e.opts.FollowForeignPlaylists {
		user, err := e.api.CurrentUser(ctx, sourceToken)
		if err != nil {
			return failure(FetchUser, msgFetchUser, err)
		}
		sourceUserID = user.ID
	}

	for idx, item := range rec.snapshot().Items {
		if err := e.transferOne(ctx, rec, idx, item, sourceToken, destToken, sourceUserID); err != nil {
			message := messageOf(err)
			rec.logger.Warn("transfer item failed", "playlist", item.PlaylistID, "phase", phaseOf(err), "error", err)
			rec.failItem(idx, message)
			rec.log(failedLine(item.PlaylistName, message))
		}
	}

	rec.finish()
	return nil
}

func (e *JobEngine) transferOne(ctx context.Context, rec *jobRecord, idx int, item models.PlaylistProgress, sourceToken, destToken, sourceUserID string) error {
	id := item.PlaylistID

	rec.advance(idx, models.ItemRunning)
	rec.log(readingPlaylistLine(item.PlaylistName))

	details, err := e.api.PlaylistDetails(ctx, sourceToken, id)
	if err != nil {
		return failure(FetchDetails, msgFetchDetails, err)
	}

	if e.shouldFollow(details, sourceUserID) {
		rec.log(addingToLibraryLine(details.Name))
		err := e.api.FollowPlaylist(ctx, destToken, id)
		if err == nil {
			rec.advance(idx, models.ItemCompleted)
			rec.log(addedToLibraryLine(details.Name))
			return nil
		}
		rec.logger.Debug("follow failed", "playlist", id, "error", err)
		rec.log(followFailedLine(services.StatusCode(err)))
	}

	uris, err := e.readTracks(ctx, sourceToken, id)
	if err != nil {
		return err
	}
	rec.start(idx, len(uris))
	rec.log(foundTracksLine(len(uris)))

	rec.log(creatingPlaylistLine(details.Name))
	created, err := e.api.CreatePlaylist(ctx, destToken, details.Name, details.Description)
	if err != nil {
		return failure(CreatePlaylist, msgCreatePlaylist, err)
	}
	if result := e.api.CopyCover(ctx, destToken, created.ID, details.CoverURL()); result != services.Applied {
		rec.logger.Debug("cover not copied", "playlist", created.ID, "result", result)
	}

	rec.log(addingTracksLine)
	target := NewTarget(e.api, destToken, created.ID, e.opts.SavedTracksDelay)
	if err := e.addWithProgress(ctx, rec, target, idx, uris); err != nil {
		return err
	}

	rec.advance(idx, models.ItemCompleted)
	rec.log(completedLine(details.Name))
	return nil
}

// shouldFollow reports whether a playlist belongs to someone other than the source user and can be followed
// instead of copied.
func (e *JobEngine) shouldFollow(details *services.SpotifyPlaylist, sourceUserID string) bool {
	if !e.opts.FollowForeignPlaylists || details.ID == models.LikedSongsID {
		return false
	}
	return details.Owner.ID != "" && sourceUserID != "" && details.Owner.ID != sourceUserID
}
