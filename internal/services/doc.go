// Package services talks HTTP: to the Spotify Web API on behalf of the job engine, to the Spotify token
// endpoint, and to a running plsync server.
//
// # Spotify Web API
//
// [SpotifyClient] implements [SpotifyAPI]. It is stateless with respect to users: every call takes the
// access token it should act with, so one client serves both accounts of a job. All requests, including
// pagination cursors, pass through a shared [rate.Limiter].
//
// Pages are read by following the absolute next cursor until it is null:
//   - saved tracks: /me/tracks?limit=50
//   - playlists: /playlists/{id}/tracks?limit=100
//
// # Credentials
//
// [TokenRefresher] implements [CredentialProvider] with a refresh-token grant through [oauth2.Config].
// It never starts an authorization flow.
//
// # Job server client
//
// [APIService] starts jobs and polls their status over the server's JSON API.
//
// # Error Handling
//
// Services wrap typed errors from the shared package:
//   - [shared.ErrFetch] : a read (profile, details, page) failed
//   - [shared.ErrMutation] : a write (create, add, remove, save, follow) failed
//   - [shared.ErrAPIRequest] : the underlying non-2xx response, see [APIError] and [StatusCode]
//   - [shared.ErrNotAuthenticated], [shared.ErrRefreshFailed] : no usable token
//
// Cover copies never return an error; they report a [BestEffortResult].
package services
