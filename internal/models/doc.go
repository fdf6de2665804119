// Package models defines the job records shared by the engine, the job stores and the HTTP surface.
//
//   - [Job] : one Transfer or Sync run with its append-only log
//   - [PlaylistProgress] : one item of work inside a job (a playlist copy or a sync direction)
//   - [PlaylistRef] : the {id, name} pair clients use to name playlists
//
// Job records are plain values. Mutation happens only inside the engine's job record, which hands
// deep copies ([Job.Clone]) to stores and readers so no one observes a half-written update.
package models
