// Package server exposes the job engine over HTTP.
//
// # Endpoints
//
//   - POST /api/transfer/start : copy playlists into the destination account
//   - POST /api/sync/start : reconcile two playlists, one_way or two_way
//   - GET /api/transfer/status?id= : the current job snapshot
//   - GET /health, GET /metrics
//
// Start requests take credentials from an auth object in the body, falling back to the Spotify cookies a
// browser session carries. Errors are JSON objects of the form {"error": "..."}.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// The [BasicRouter] implementation uses [http.ServeMux] with method patterns.
//
// CORS (github.com/rs/cors) wraps the router as a whole so that preflight requests never reach method routing.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
