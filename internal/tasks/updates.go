package tasks

import (
	"errors"
	"fmt"
)

// Operation phase enumeration
type Phase int

const (
	Authenticate Phase = iota
	FetchUser
	FetchDetails
	FetchTracks
	FollowPlaylist
	CreatePlaylist
	AddTracks
	RemoveTracks
)

func (p Phase) String() string {
	switch p {
	case Authenticate:
		return "authenticate"
	case FetchUser:
		return "fetch_user"
	case FetchDetails:
		return "fetch_details"
	case FetchTracks:
		return "fetch_tracks"
	case FollowPlaylist:
		return "follow_playlist"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	case RemoveTracks:
		return "remove_tracks"
	default:
		return ""
	}
}

// Step failure messages recorded on items and jobs.
const (
	msgNotAuthenticated = "Not authenticated"
	msgFetchUser        = "Failed to fetch Spotify user"
	msgFetchDetails     = "Failed to get playlist details"
	msgFetchTracks      = "Failed to fetch playlist tracks"
	msgFetchLiked       = "Failed to fetch liked songs"
	msgCreatePlaylist   = "Failed to create destination playlist"
	msgAddTracks        = "Failed to add tracks"
	msgRemoveTracks     = "Failed to remove tracks"
	msgSaveTrack        = "Failed to save track to library"
	msgRemoveSavedTrack = "Failed to remove track from library"
	msgUnknown          = "Unknown error"
)

const authenticationMissingLine = "Authentication missing. Please sign in to both accounts."

// stepError pairs the user-facing message of a failed step with its cause.
type stepError struct {
	phase   Phase
	message string
	err     error
}

func (e *stepError) Error() string { return e.message }

func (e *stepError) Unwrap() error { return e.err }

func failure(phase Phase, message string, err error) error {
	return &stepError{phase: phase, message: message, err: err}
}

// messageOf returns the user-facing message for err.
func messageOf(err error) string {
	var se *stepError
	if errors.As(err, &se) {
		return se.message
	}
	if err == nil || err.Error() == "" {
		return msgUnknown
	}
	return err.Error()
}

// phaseOf returns the phase an error was raised in, or -1.
func phaseOf(err error) Phase {
	var se *stepError
	if errors.As(err, &se) {
		return se.phase
	}
	return -1
}

func readingPlaylistLine(name string) string { return "Reading playlist: " + name }

func addingToLibraryLine(name string) string { return "Adding playlist to destination library: " + name }

func addedToLibraryLine(name string) string { return "Added to library: " + name }

func followFailedLine(status int) string {
	return fmt.Sprintf("Follow failed (status %d). Creating a copy instead...", status)
}

func foundTracksLine(n int) string { return fmt.Sprintf("Found %d tracks", n) }

func creatingPlaylistLine(name string) string { return "Creating destination playlist: " + name }

const addingTracksLine = "Adding tracks..."

func completedLine(name string) string { return "Completed: " + name }

func failedLine(name, message string) string { return fmt.Sprintf("Failed %s: %s", name, message) }

func fetchingSourceLine(name string) string { return "Fetching source tracks: " + name }

func sourceCountLine(n int) string { return fmt.Sprintf("Source has %d tracks", n) }

func fetchingDestLine(name string) string { return "Fetching destination tracks: " + name }

func destCountLine(n int) string { return fmt.Sprintf("Destination has %d tracks", n) }

func oneWayAddLine(n int) string {
	return fmt.Sprintf("One-way sync: adding %d missing tracks to destination", n)
}

func oneWayRemoveLine(n int) string {
	return fmt.Sprintf("One-way sync: removing %d tracks from destination not present in source", n)
}

func skippedLine(n int) string {
	return fmt.Sprintf("Skipping %d items that cannot be saved to Liked Songs", n)
}

func removedLine(n int) string { return fmt.Sprintf("Removed %d tracks from destination", n) }

const (
	removalDisabledLine = "Removal disabled: skipping removal from destination"
	nothingToRemoveLine = "No tracks to remove from destination"
	oneWayDoneLine      = "One-way sync completed"
	twoWayDoneLine      = "Two-way sync completed"
)

func twoWayToDestLine(n int) string { return fmt.Sprintf("Two-way sync: adding %d tracks to destination", n) }

func twoWayToSourceLine(n int) string { return fmt.Sprintf("Two-way sync: adding %d tracks to source", n) }

func progressMessage(added, total int) string { return fmt.Sprintf("%d/%d", added, total) }
