package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// FakePlaylist is a playlist held by [FakeSpotify].
//
// An empty string in Tracks is served as a null track, the way the Web API reports local or unavailable items.
type FakePlaylist struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	ImageURL    string
	Tracks      []string
}

// RecordedRequest is one request seen by [FakeSpotify].
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Token  string
	Body   string
	At     time.Time
}

type failure struct {
	method, path string
	status       int
	skip         int
}

// FakeSpotify is an in-process stand-in for the Spotify Web API and token endpoint.
//
// Saved tracks behave like the real library: a save lands at the top of the listing.
type FakeSpotify struct {
	Server *httptest.Server

	mu        sync.Mutex
	users     map[string]string
	refresh   map[string]string
	playlists map[string]*FakePlaylist
	saved     map[string][]string
	follows   map[string][]string
	covers    map[string]string
	images    map[string][]byte
	imageType map[string]string
	failures  []*failure
	requests  []RecordedRequest
	created   int
}

// NewFakeSpotify starts a fake server that is closed when the test ends.
func NewFakeSpotify(t *testing.T) *FakeSpotify {
	t.Helper()
	f := &FakeSpotify{
		users:     make(map[string]string),
		refresh:   make(map[string]string),
		playlists: make(map[string]*FakePlaylist),
		saved:     make(map[string][]string),
		follows:   make(map[string][]string),
		covers:    make(map[string]string),
		images:    make(map[string][]byte),
		imageType: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", f.handleToken)
	mux.HandleFunc("GET /images/{name}", f.handleImage)
	mux.HandleFunc("GET /v1/me", f.authed(f.handleMe))
	mux.HandleFunc("GET /v1/me/tracks", f.authed(f.handleSavedList))
	mux.HandleFunc("PUT /v1/me/tracks", f.authed(f.handleSave))
	mux.HandleFunc("DELETE /v1/me/tracks", f.authed(f.handleUnsave))
	mux.HandleFunc("POST /v1/me/playlists", f.authed(f.handleCreate))
	mux.HandleFunc("GET /v1/playlists/{id}", f.authed(f.handlePlaylist))
	mux.HandleFunc("GET /v1/playlists/{id}/tracks", f.authed(f.handlePlaylistTracks))
	mux.HandleFunc("POST /v1/playlists/{id}/tracks", f.authed(f.handleAddTracks))
	mux.HandleFunc("DELETE /v1/playlists/{id}/tracks", f.authed(f.handleRemoveTracks))
	mux.HandleFunc("PUT /v1/playlists/{id}/followers", f.authed(f.handleFollow))
	mux.HandleFunc("PUT /v1/playlists/{id}/images", f.authed(f.handleCover))

	f.Server = httptest.NewServer(f.record(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the Web API root, e.g. http://127.0.0.1:1234/v1.
func (f *FakeSpotify) BaseURL() string { return f.Server.URL + "/v1" }

// TokenURL is the token endpoint.
func (f *FakeSpotify) TokenURL() string { return f.Server.URL + "/api/token" }

// ImageURL is where an image registered with [FakeSpotify.AddImage] is served.
func (f *FakeSpotify) ImageURL(name string) string { return f.Server.URL + "/images/" + name }

// AddUser registers an access token for userID.
func (f *FakeSpotify) AddUser(token, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[token] = userID
}

// AddRefreshToken makes refresh exchangeable for access at the token endpoint.
func (f *FakeSpotify) AddRefreshToken(refresh, access string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[refresh] = access
}

// AddPlaylist stores a copy of p.
func (f *FakeSpotify) AddPlaylist(p FakePlaylist) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Tracks = slices.Clone(p.Tracks)
	f.playlists[p.ID] = &p
}

// SetSaved replaces the user's saved tracks, newest first.
func (f *FakeSpotify) SetSaved(userID string, uris []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[userID] = slices.Clone(uris)
}

// AddImage serves data at [FakeSpotify.ImageURL] with the given content type.
func (f *FakeSpotify) AddImage(name, contentType string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[name] = data
	f.imageType[name] = contentType
}

// Fail makes requests matching method and path return status after the first skip matches succeed.
// Path is relative to the server root, e.g. /v1/playlists/p1/tracks.
func (f *FakeSpotify) Fail(method, path string, status, skip int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, &failure{method: method, path: path, status: status, skip: skip})
}

// Playlist returns a copy of the stored playlist, or nil.
func (f *FakeSpotify) Playlist(id string) *FakePlaylist {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.playlists[id]
	if !ok {
		return nil
	}
	c := *p
	c.Tracks = slices.Clone(p.Tracks)
	return &c
}

// PlaylistsOwnedBy returns copies of every playlist owned by userID, sorted by id.
func (f *FakeSpotify) PlaylistsOwnedBy(userID string) []FakePlaylist {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FakePlaylist
	for _, p := range f.playlists {
		if p.OwnerID == userID {
			c := *p
			c.Tracks = slices.Clone(p.Tracks)
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b FakePlaylist) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Saved returns the user's saved tracks, newest first.
func (f *FakeSpotify) Saved(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.saved[userID])
}

// Follows returns the playlist ids userID followed.
func (f *FakeSpotify) Follows(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.follows[userID])
}

// Cover returns the base64 body uploaded as the playlist's cover.
func (f *FakeSpotify) Cover(playlistID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.covers[playlistID]
	return c, ok
}

// Requests returns every recorded request in arrival order.
func (f *FakeSpotify) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// RequestsTo returns recorded requests matching method and path.
func (f *FakeSpotify) RequestsTo(method, path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range f.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (f *FakeSpotify) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Token:  strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
			Body:   string(body),
			At:     time.Now(),
		})
		status := 0
		for _, fl := range f.failures {
			if fl.method == r.Method && fl.path == r.URL.Path {
				if fl.skip > 0 {
					fl.skip--
					continue
				}
				status = fl.status
				break
			}
		}
		f.mu.Unlock()

		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeSpotify) authed(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		userID, ok := f.users[token]
		f.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid access token")
			return
		}
		next(w, r, userID)
	}
}

func (f *FakeSpotify) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("client_id") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	f.mu.Lock()
	access, ok := f.refresh[r.PostForm.Get("refresh_token")]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (f *FakeSpotify) handleImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f.mu.Lock()
	data, ok := f.images[name]
	contentType := f.imageType[name]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (f *FakeSpotify) handleMe(w http.ResponseWriter, r *http.Request, userID string) {
	writeJSON(w, http.StatusOK, map[string]any{"id": userID, "display_name": userID})
}

func (f *FakeSpotify) handleSavedList(w http.ResponseWriter, r *http.Request, userID string) {
	f.mu.Lock()
	uris := slices.Clone(f.saved[userID])
	f.mu.Unlock()
	f.writePage(w, r, uris)
}

func (f *FakeSpotify) handleSave(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range body.IDs {
		f.saved[userID] = append([]string{"spotify:track:" + id}, f.saved[userID]...)
	}
	w.WriteHeader(http.StatusOK)
}

func (f *FakeSpotify) handleUnsave(w http.ResponseWriter, r *http.Request, userID string) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.saved[userID] = slices.DeleteFunc(f.saved[userID], func(u string) bool { return u == "spotify:track:"+id })
	}
	w.WriteHeader(http.StatusOK)
}

func (f *FakeSpotify) handleCreate(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	f.mu.Lock()
	f.created++
	p := &FakePlaylist{
		ID:          fmt.Sprintf("created_%d", f.created),
		Name:        body.Name,
		Description: body.Description,
		OwnerID:     userID,
	}
	f.playlists[p.ID] = p
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, playlistJSON(p))
}

func (f *FakeSpotify) handlePlaylist(w http.ResponseWriter, r *http.Request, _ string) {
	p := f.Playlist(r.PathValue("id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, playlistJSON(p))
}

func (f *FakeSpotify) handlePlaylistTracks(w http.ResponseWriter, r *http.Request, _ string) {
	p := f.Playlist(r.PathValue("id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	f.writePage(w, r, p.Tracks)
}

func (f *FakeSpotify) handleAddTracks(w http.ResponseWriter, r *http.Request, _ string) {
	var body struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.URIs) == 0 {
		writeError(w, http.StatusBadRequest, "uris required")
		return
	}
	if len(body.URIs) > 100 {
		writeError(w, http.StatusBadRequest, "Too many ids requested")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.playlists[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	p.Tracks = append(p.Tracks, body.URIs...)
	writeJSON(w, http.StatusCreated, map[string]string{"snapshot_id": strconv.Itoa(len(p.Tracks))})
}

func (f *FakeSpotify) handleRemoveTracks(w http.ResponseWriter, r *http.Request, _ string) {
	var body struct {
		Tracks []struct {
			URI string `json:"uri"`
		} `json:"tracks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Tracks) == 0 {
		writeError(w, http.StatusBadRequest, "tracks required")
		return
	}
	if len(body.Tracks) > 100 {
		writeError(w, http.StatusBadRequest, "Too many tracks requested")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.playlists[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	for _, t := range body.Tracks {
		p.Tracks = slices.DeleteFunc(p.Tracks, func(u string) bool { return u == t.URI })
	}
	writeJSON(w, http.StatusOK, map[string]string{"snapshot_id": strconv.Itoa(len(p.Tracks))})
}

func (f *FakeSpotify) handleFollow(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.playlists[id]; !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	f.follows[userID] = append(f.follows[userID], id)
	w.WriteHeader(http.StatusOK)
}

func (f *FakeSpotify) handleCover(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Header.Get("Content-Type") != "image/jpeg" {
		writeError(w, http.StatusBadRequest, "expected image/jpeg")
		return
	}
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.covers[r.PathValue("id")] = string(body)
	w.WriteHeader(http.StatusAccepted)
}

func (f *FakeSpotify) writePage(w http.ResponseWriter, r *http.Request, uris []string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	end := min(offset+limit, len(uris))
	start := min(offset, end)

	items := make([]map[string]any, 0, end-start)
	for _, uri := range uris[start:end] {
		if uri == "" {
			items = append(items, map[string]any{"track": nil})
			continue
		}
		items = append(items, map[string]any{"track": map[string]string{"uri": uri}})
	}

	var next any
	if end < len(uris) {
		next = fmt.Sprintf("%s%s?offset=%d&limit=%d", f.Server.URL, r.URL.Path, end, limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  len(uris),
		"limit":  limit,
		"offset": offset,
		"next":   next,
	})
}

func playlistJSON(p *FakePlaylist) map[string]any {
	images := []map[string]string{}
	if p.ImageURL != "" {
		images = append(images, map[string]string{"url": p.ImageURL})
	}
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"owner":       map[string]string{"id": p.OwnerID},
		"images":      images,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"status": status, "message": message}})
}
