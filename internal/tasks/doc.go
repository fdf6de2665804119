// Package tasks runs playlist transfer and sync jobs against the Spotify Web API.
//
// # Jobs
//
// [JobEngine] creates a job through a [repositories.JobStore] and runs it on a goroutine detached from the
// request that started it. Two bodies exist:
//
//  1. Transfer: for each playlist in order, read its details and tracks, create a copy in the destination
//     account and add the tracks in batches. Playlists owned by someone else are followed instead of copied
//     when the follow succeeds. A failure fails only that playlist's item.
//
//  2. Sync: read the source and destination once, [Reconcile] them and apply the result.
//     One-way adds what the destination lacks and optionally removes what the source lacks.
//     Two-way adds in both directions and never removes. A failure fails the whole job.
//
// # State
//
// All mutations of a running job go through a single lock-guarded record that saves a full copy to the store
// after each change. Item statuses only move forward (pending, running, then completed or failed) and a
// finished job never changes again.
//
// # Targets
//
// [NewTarget] picks a write strategy once per destination: [RegularPlaylistTarget] for playlists (batches
// of 100) or [SavedTracksTarget] for the liked-songs collection (one id per request, paced, in reverse).
package tasks
