package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

// recordingStore keeps every snapshot the engine saves.
type recordingStore struct {
	*repositories.MemoryJobStore
	mu        sync.Mutex
	snapshots []*models.Job
}

func (s *recordingStore) Save(job *models.Job) error {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, job.Clone())
	s.mu.Unlock()
	return s.MemoryJobStore.Save(job)
}

func (s *recordingStore) history() []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.snapshots)
}

type harness struct {
	t      *testing.T
	fake   *tu.FakeSpotify
	store  *recordingStore
	engine *JobEngine
}

var testAuth = models.Credentials{SourceAccessToken: "src-token", DestAccessToken: "dst-token"}

func newHarness(t *testing.T, opts EngineOptions) *harness {
	t.Helper()
	fake := tu.NewFakeSpotify(t)
	fake.AddUser("src-token", "alice")
	fake.AddUser("dst-token", "bob")

	client := services.NewSpotifyClient(shared.SpotifyConfig{APIBaseURL: fake.BaseURL(), Timeout: 5 * time.Second}, nil)
	creds := services.NewTokenRefresher("client", fake.TokenURL(), nil)
	store := &recordingStore{MemoryJobStore: repositories.NewMemoryJobStore()}

	return &harness{t: t, fake: fake, store: store, engine: NewJobEngine(store, client, creds, nil, opts)}
}

func (h *harness) finish(job *models.Job, err error) *models.Job {
	t := h.t
	t.Helper()
	if err != nil {
		t.Fatalf("failed to start job: %v", err)
	}
	h.engine.Wait()

	final, err := h.engine.Job(job.ID)
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	return final
}

func trackURIs(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("spotify:track:%s%d", prefix, i)
	}
	return out
}

// addedHistory returns the distinct added values an item went through.
func addedHistory(snapshots []*models.Job, itemID string) []int {
	var seen []int
	for _, s := range snapshots {
		it := s.Item(itemID)
		if it == nil || it.Added == 0 {
			continue
		}
		if len(seen) == 0 || seen[len(seen)-1] != it.Added {
			seen = append(seen, it.Added)
		}
	}
	return seen
}

func countLines(logs []string, prefix string) int {
	n := 0
	for _, line := range logs {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func assertMonotonic(t *testing.T, snapshots []*models.Job) {
	t.Helper()
	rank := map[models.ItemStatus]int{models.ItemPending: 0, models.ItemRunning: 1, models.ItemCompleted: 2, models.ItemFailed: 2}
	for i := 1; i < len(snapshots); i++ {
		prev, cur := snapshots[i-1], snapshots[i]
		if cur.UpdatedAt.Before(prev.UpdatedAt) {
			t.Errorf("updatedAt went backwards at snapshot %d", i)
		}
		if prev.Status.Terminal() && cur.Status != prev.Status {
			t.Errorf("terminal job status changed from %s to %s", prev.Status, cur.Status)
		}
		if len(cur.Logs) < len(prev.Logs) {
			t.Errorf("logs shrank at snapshot %d", i)
		}
		for j := range cur.Items {
			p, c := prev.Items[j], cur.Items[j]
			if rank[c.Status] < rank[p.Status] || (p.Status.Terminal() && c.Status != p.Status) {
				t.Errorf("item %s moved from %s to %s", c.PlaylistID, p.Status, c.Status)
			}
			if c.Added < p.Added {
				t.Errorf("item %s added went from %d to %d", c.PlaylistID, p.Added, c.Added)
			}
		}
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("Two Playlists In Batches", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p1", Name: "Road Trip", OwnerID: "alice", Tracks: trackURIs("r", 120)})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p2", Name: "Focus", OwnerID: "alice", Tracks: trackURIs("f", 30)})

		job, err := h.engine.StartTransfer(ctx, []models.PlaylistRef{{ID: "p1", Name: "Road Trip"}, {ID: "p2", Name: "Focus"}}, testAuth)
		if err == nil && job.Status != models.JobQueued {
			t.Errorf("expected queued snapshot, got %s", job.Status)
		}
		final := h.finish(job, err)

		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s: %v", final.Status, final.Logs)
		}
		first, second := final.Items[0], final.Items[1]
		if first.Added != 120 || first.Total != 120 || first.Status != models.ItemCompleted || first.Message != "120/120" {
			t.Errorf("unexpected first item: %+v", first)
		}
		if second.Added != 30 || second.Total != 30 || second.Status != models.ItemCompleted {
			t.Errorf("unexpected second item: %+v", second)
		}

		history := h.store.history()
		if got := addedHistory(history, "p1"); !slices.Equal(got, []int{100, 120}) {
			t.Errorf("expected progress [100 120] for first item, got %v", got)
		}
		if got := addedHistory(history, "p2"); !slices.Equal(got, []int{30}) {
			t.Errorf("expected progress [30] for second item, got %v", got)
		}
		assertMonotonic(t, history)

		copies := h.fake.PlaylistsOwnedBy("bob")
		if len(copies) != 2 {
			t.Fatalf("expected 2 destination playlists, got %d", len(copies))
		}
		if !slices.Equal(copies[0].Tracks, trackURIs("r", 120)) || copies[0].Name != "Road Trip" {
			t.Errorf("first copy does not match source: %s with %d tracks", copies[0].Name, len(copies[0].Tracks))
		}

		want := []string{
			"Reading playlist: Road Trip",
			"Found 120 tracks",
			"Creating destination playlist: Road Trip",
			"Adding tracks...",
			"Completed: Road Trip",
			"Reading playlist: Focus",
			"Found 30 tracks",
			"Creating destination playlist: Focus",
			"Adding tracks...",
			"Completed: Focus",
		}
		if !slices.Equal(final.Logs, want) {
			t.Errorf("unexpected logs:\n%s", strings.Join(final.Logs, "\n"))
		}
	})

	t.Run("Same Playlist Listed Twice", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p1", Name: "Road Trip", OwnerID: "alice", Tracks: trackURIs("r", 3)})

		refs := []models.PlaylistRef{{ID: "p1", Name: "Road Trip"}, {ID: "p1", Name: "Road Trip"}}
		final := h.finish(h.engine.StartTransfer(ctx, refs, testAuth))

		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s: %v", final.Status, final.Logs)
		}
		for i, item := range final.Items {
			if item.Status != models.ItemCompleted || item.Added != 3 || item.Total != 3 || item.Error != "" {
				t.Errorf("item %d: unexpected %+v", i, item)
			}
		}
		if copies := h.fake.PlaylistsOwnedBy("bob"); len(copies) != 2 {
			t.Errorf("expected 2 destination playlists, got %d", len(copies))
		}
		assertMonotonic(t, h.store.history())
	})

	t.Run("Batches Are Sequential And Bounded", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p1", Name: "Big", OwnerID: "alice", Tracks: trackURIs("b", 301)})

		final := h.finish(h.engine.StartTransfer(ctx, []models.PlaylistRef{{ID: "p1", Name: "Big"}}, testAuth))
		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s", final.Status)
		}

		adds := h.fake.RequestsTo(http.MethodPost, "/v1/playlists/created_1/tracks")
		if len(adds) != 4 {
			t.Errorf("expected ceil(301/100)=4 batch requests, got %d", len(adds))
		}
	})

	t.Run("Item Failure Does Not Stop Later Items", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p1", Name: "One", OwnerID: "alice", Tracks: trackURIs("o", 5)})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p2", Name: "Two", OwnerID: "alice", Tracks: trackURIs("t", 5)})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p3", Name: "Three", OwnerID: "alice", Tracks: trackURIs("h", 5)})
		h.fake.Fail(http.MethodGet, "/v1/playlists/p2/tracks", http.StatusInternalServerError, 0)

		refs := []models.PlaylistRef{{ID: "p1", Name: "One"}, {ID: "p2", Name: "Two"}, {ID: "p3", Name: "Three"}}
		final := h.finish(h.engine.StartTransfer(ctx, refs, testAuth))

		if final.Status != models.JobFailed {
			t.Errorf("expected failed, got %s", final.Status)
		}
		if final.Items[0].Status != models.ItemCompleted || final.Items[2].Status != models.ItemCompleted {
			t.Errorf("expected items 1 and 3 completed, got %s and %s", final.Items[0].Status, final.Items[2].Status)
		}
		if final.Items[1].Status != models.ItemFailed || final.Items[1].Error != "Failed to fetch playlist tracks" {
			t.Errorf("unexpected failed item: %+v", final.Items[1])
		}
		if n := countLines(final.Logs, "Failed "); n != 1 {
			t.Errorf("expected exactly one failure line, got %d", n)
		}
		if !slices.Contains(final.Logs, "Failed Two: Failed to fetch playlist tracks") {
			t.Errorf("expected failure line for Two, got %v", final.Logs)
		}
		assertMonotonic(t, h.store.history())
	})

	t.Run("Add Failure Keeps Applied Batches", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p1", Name: "Big", OwnerID: "alice", Tracks: trackURIs("b", 250)})
		h.fake.Fail(http.MethodPost, "/v1/playlists/created_1/tracks", http.StatusBadGateway, 1)

		final := h.finish(h.engine.StartTransfer(ctx, []models.PlaylistRef{{ID: "p1", Name: "Big"}}, testAuth))
		item := final.Items[0]
		if item.Status != models.ItemFailed || item.Error != "Failed to add tracks" {
			t.Errorf("unexpected item: %+v", item)
		}
		if item.Added != 100 {
			t.Errorf("expected 100 tracks recorded before the failure, got %d", item.Added)
		}
		if got := len(h.fake.Playlist("created_1").Tracks); got != 100 {
			t.Errorf("expected applied batch to stay applied, got %d tracks", got)
		}
		if n := len(h.fake.RequestsTo(http.MethodPost, "/v1/playlists/created_1/tracks")); n != 2 {
			t.Errorf("expected the remainder to be aborted after 2 requests, got %d", n)
		}
	})

	t.Run("Liked Songs Source", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.SetSaved("alice", trackURIs("l", 60))

		final := h.finish(h.engine.StartTransfer(ctx, []models.PlaylistRef{{ID: models.LikedSongsID, Name: "Liked Songs"}}, testAuth))
		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s: %v", final.Status, final.Logs)
		}
		copies := h.fake.PlaylistsOwnedBy("bob")
		if len(copies) != 1 || copies[0].Name != "Liked Songs" || len(copies[0].Tracks) != 60 {
			t.Errorf("unexpected copies: %+v", copies)
		}
		if n := len(h.fake.RequestsTo(http.MethodGet, "/v1/playlists/liked_songs")); n != 0 {
			t.Errorf("liked songs details should be synthesized, got %d requests", n)
		}
	})

	t.Run("Liked Songs Read Failure Message", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.Fail(http.MethodGet, "/v1/me/tracks", http.StatusInternalServerError, 0)

		final := h.finish(h.engine.StartTransfer(ctx, []models.PlaylistRef{{ID: models.LikedSongsID, Name: "Liked Songs"}}, testAuth))
		if final.Items[0].Error != "Failed to fetch liked songs" {
			t.Errorf("unexpected error %q", final.Items[0].Error)
		}
	})

	t.Run("Follows Foreign Playlists", func(t *testing.T) {
		h := newHarness(t, EngineOptions{FollowForeignPlaylists: true})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "ext", Name: "Editorial", OwnerID: "spotify", Tracks: trackURIs("e", 10)})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "own", Name: "Mine", OwnerID: "alice", Tracks: trackURIs("m", 3)})

		refs := []models.PlaylistRef{{ID: "ext", Name: "Editorial"}, {ID: "own", Name: "Mine"}}
		final := h.finish(h.engine.StartTransfer(ctx, refs, testAuth))

		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s", final.Status)
		}
		if !slices.Equal(h.fake.Follows("bob"), []string{"ext"}) {
			t.Errorf("expected destination to follow ext, got %v", h.fake.Follows("bob"))
		}
		if ext := final.Items[0]; ext.Total != 0 || ext.Added != 0 {
			t.Errorf("followed playlist should not count tracks: %+v", ext)
		}
		if copies := h.fake.PlaylistsOwnedBy("bob"); len(copies) != 1 || copies[0].Name != "Mine" {
			t.Errorf("expected only the owned playlist to be copied, got %+v", copies)
		}
		if !slices.Contains(final.Logs, "Added to library: Editorial") || !slices.Contains(final.Logs, "Adding playlist to destination library: Editorial") {
			t.Errorf("expected follow log lines, got %v", final.Logs)
		}
	})

	t.Run("Follow Failure Falls Back To Copy", func(t *testing.T) {
		h := newHarness(t, EngineOptions{FollowForeignPlaylists: true})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "ext", Name: "Editorial", OwnerID: "spotify", Tracks: trackURIs("e", 10)})
		h.fake.Fail(http.MethodPut, "/v1/playlists/ext/followers", http.StatusForbidden, 0)

		final := h.finish(h.engine.StartTransfer(ctx, []models.PlaylistRef{{ID: "ext", Name: "Editorial"}}, testAuth))
		if final.Status != models.JobCompleted || final.Items[0].Added != 10 {
			t.Fatalf("expected completed copy, got %s %+v", final.Status, final.Items[0])
		}
		if !slices.Contains(final.Logs, "Follow failed (status 403). Creating a copy instead...") {
			t.Errorf("expected follow failure line, got %v", final.Logs)
		}
	})

	t.Run("Cover Copy Is Best Effort", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddImage("a.jpg", "image/jpeg", []byte{0xff, 0xd8, 0xff})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p1", Name: "Covered", OwnerID: "alice", ImageURL: h.fake.ImageURL("a.jpg"), Tracks: trackURIs("c", 2)})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p2", Name: "Broken", OwnerID: "alice", ImageURL: h.fake.ImageURL("missing.jpg"), Tracks: trackURIs("x", 2)})

		refs := []models.PlaylistRef{{ID: "p1", Name: "Covered"}, {ID: "p2", Name: "Broken"}}
		final := h.finish(h.engine.StartTransfer(ctx, refs, testAuth))
		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s", final.Status)
		}
		if _, ok := h.fake.Cover("created_1"); !ok {
			t.Error("expected cover to be uploaded for the first copy")
		}
		if _, ok := h.fake.Cover("created_2"); ok {
			t.Error("expected no cover for the second copy")
		}
	})

	t.Run("Authentication Missing", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		auth := models.Credentials{SourceAccessToken: "src-token"}

		final := h.finish(h.engine.StartTransfer(ctx, []models.PlaylistRef{{ID: "p1", Name: "One"}, {ID: "p2", Name: "Two"}}, auth))
		if final.Status != models.JobFailed {
			t.Errorf("expected failed, got %s", final.Status)
		}
		for _, it := range final.Items {
			if it.Status != models.ItemFailed || it.Error != "Not authenticated" {
				t.Errorf("unexpected item: %+v", it)
			}
		}
		if !slices.Contains(final.Logs, "Authentication missing. Please sign in to both accounts.") {
			t.Errorf("expected authentication log line, got %v", final.Logs)
		}
		if n := len(h.fake.Requests()); n != 0 {
			t.Errorf("expected no provider requests, got %d", n)
		}
	})

	t.Run("Refresh Token Is Used", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddRefreshToken("dst-refresh", "dst-token")
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p1", Name: "One", OwnerID: "alice", Tracks: trackURIs("o", 1)})
		auth := models.Credentials{SourceAccessToken: "src-token", DestRefreshToken: "dst-refresh"}

		final := h.finish(h.engine.StartTransfer(ctx, []models.PlaylistRef{{ID: "p1", Name: "One"}}, auth))
		if final.Status != models.JobCompleted {
			t.Errorf("expected completed, got %s: %v", final.Status, final.Logs)
		}
	})

	t.Run("Invalid Destination Token Fails Job", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		auth := models.Credentials{SourceAccessToken: "src-token", DestAccessToken: "expired"}

		final := h.finish(h.engine.StartTransfer(ctx, []models.PlaylistRef{{ID: "p1", Name: "One"}}, auth))
		if final.Status != models.JobFailed {
			t.Errorf("expected failed, got %s", final.Status)
		}
		if final.Items[0].Error != "Failed to fetch Spotify user" {
			t.Errorf("unexpected item error %q", final.Items[0].Error)
		}
		if !slices.Contains(final.Logs, "Failed to fetch Spotify user") {
			t.Errorf("expected message in log, got %v", final.Logs)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		if _, err := h.engine.StartTransfer(ctx, nil, testAuth); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := h.engine.StartTransfer(ctx, []models.PlaylistRef{{ID: "p1"}}, testAuth); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Survives Cancelled Request Context", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "p1", Name: "One", OwnerID: "alice", Tracks: trackURIs("o", 3)})

		reqCtx, cancel := context.WithCancel(ctx)
		job, err := h.engine.StartTransfer(reqCtx, []models.PlaylistRef{{ID: "p1", Name: "One"}}, testAuth)
		cancel()
		final := h.finish(job, err)
		if final.Status != models.JobCompleted {
			t.Errorf("expected completed, got %s: %v", final.Status, final.Logs)
		}
	})
}

func TestSync(t *testing.T) {
	ctx := context.Background()

	t.Run("One Way With Removal", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "src", Name: "Source", OwnerID: "alice", Tracks: []string{"spotify:track:a", "spotify:track:b", "spotify:track:c"}})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "dst", Name: "Dest", OwnerID: "bob", Tracks: []string{"spotify:track:b", "spotify:track:d"}})

		spec := SyncJob{Source: models.PlaylistRef{ID: "src", Name: "Source"}, Destination: models.PlaylistRef{ID: "dst", Name: "Dest"}, Mode: models.OneWay, RemoveMissing: true}
		final := h.finish(h.engine.StartSync(ctx, spec, testAuth))

		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s: %v", final.Status, final.Logs)
		}
		item := final.Items[0]
		if item.PlaylistID != "dst" || item.PlaylistName != "Add to Dest" || item.Total != 2 || item.Added != 2 {
			t.Errorf("unexpected item: %+v", item)
		}

		got := h.fake.Playlist("dst").Tracks
		slices.Sort(got)
		if !slices.Equal(got, []string{"spotify:track:a", "spotify:track:b", "spotify:track:c"}) {
			t.Errorf("expected destination {a,b,c}, got %v", got)
		}

		want := []string{
			"Fetching source tracks: Source",
			"Source has 3 tracks",
			"Fetching destination tracks: Dest",
			"Destination has 2 tracks",
			"One-way sync: adding 2 missing tracks to destination",
			"One-way sync: removing 1 tracks from destination not present in source",
			"Removed 1 tracks from destination",
			"One-way sync completed",
		}
		if !slices.Equal(final.Logs, want) {
			t.Errorf("unexpected logs:\n%s", strings.Join(final.Logs, "\n"))
		}
		assertMonotonic(t, h.store.history())
	})

	t.Run("One Way Removal Disabled", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "src", Name: "Source", OwnerID: "alice", Tracks: []string{"spotify:track:a"}})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "dst", Name: "Dest", OwnerID: "bob", Tracks: []string{"spotify:track:d"}})

		spec := SyncJob{Source: models.PlaylistRef{ID: "src", Name: "Source"}, Destination: models.PlaylistRef{ID: "dst", Name: "Dest"}, Mode: models.OneWay}
		final := h.finish(h.engine.StartSync(ctx, spec, testAuth))

		if !slices.Contains(final.Logs, "Removal disabled: skipping removal from destination") {
			t.Errorf("expected removal disabled line, got %v", final.Logs)
		}
		if got := h.fake.Playlist("dst").Tracks; !slices.Equal(got, []string{"spotify:track:d", "spotify:track:a"}) {
			t.Errorf("unexpected destination %v", got)
		}
		if n := len(h.fake.RequestsTo(http.MethodDelete, "/v1/playlists/dst/tracks")); n != 0 {
			t.Errorf("expected no removals, got %d", n)
		}
	})

	t.Run("One Way Nothing To Remove", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "src", Name: "Source", OwnerID: "alice", Tracks: []string{"spotify:track:a"}})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "dst", Name: "Dest", OwnerID: "bob", Tracks: []string{"spotify:track:a"}})

		spec := SyncJob{Source: models.PlaylistRef{ID: "src", Name: "Source"}, Destination: models.PlaylistRef{ID: "dst", Name: "Dest"}, Mode: models.OneWay, RemoveMissing: true}
		final := h.finish(h.engine.StartSync(ctx, spec, testAuth))

		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s", final.Status)
		}
		if !slices.Contains(final.Logs, "No tracks to remove from destination") || !slices.Contains(final.Logs, "One-way sync: adding 0 missing tracks to destination") {
			t.Errorf("unexpected logs %v", final.Logs)
		}
		if n := len(h.fake.RequestsTo(http.MethodPost, "/v1/playlists/dst/tracks")); n != 0 {
			t.Errorf("expected no add requests, got %d", n)
		}
	})

	t.Run("One Way Reads Each Side Once", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "src", Name: "Source", OwnerID: "alice", Tracks: []string{"spotify:track:a", "spotify:track:b"}})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "dst", Name: "Dest", OwnerID: "bob", Tracks: []string{"spotify:track:d"}})

		spec := SyncJob{Source: models.PlaylistRef{ID: "src", Name: "Source"}, Destination: models.PlaylistRef{ID: "dst", Name: "Dest"}, Mode: models.OneWay, RemoveMissing: true}
		final := h.finish(h.engine.StartSync(ctx, spec, testAuth))

		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s: %v", final.Status, final.Logs)
		}
		for _, path := range []string{"/v1/playlists/src/tracks", "/v1/playlists/dst/tracks"} {
			if n := len(h.fake.RequestsTo(http.MethodGet, path)); n != 1 {
				t.Errorf("expected one read of %s, got %d", path, n)
			}
		}
		if n := len(h.fake.RequestsTo(http.MethodDelete, "/v1/playlists/dst/tracks")); n != 1 {
			t.Errorf("expected one removal request, got %d", n)
		}
		if got := h.fake.Playlist("dst").Tracks; !slices.Equal(got, []string{"spotify:track:a", "spotify:track:b"}) {
			t.Errorf("unexpected destination %v", got)
		}
	})

	t.Run("Two Way", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "src", Name: "Source", OwnerID: "alice", Tracks: []string{"spotify:track:a", "spotify:track:b"}})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "dst", Name: "Dest", OwnerID: "bob", Tracks: []string{"spotify:track:b", "spotify:track:c", "spotify:track:d"}})

		spec := SyncJob{Source: models.PlaylistRef{ID: "src", Name: "Source"}, Destination: models.PlaylistRef{ID: "dst", Name: "Dest"}, Mode: models.TwoWay}
		final := h.finish(h.engine.StartSync(ctx, spec, testAuth))

		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s: %v", final.Status, final.Logs)
		}
		toDest, toSource := final.Items[0], final.Items[1]
		if toDest.PlaylistID != "to:dst" || toDest.PlaylistName != "To destination: Dest" || toDest.Added != 1 {
			t.Errorf("unexpected destination leg: %+v", toDest)
		}
		if toSource.PlaylistID != "to:src" || toSource.PlaylistName != "To source: Source" || toSource.Added != 2 {
			t.Errorf("unexpected source leg: %+v", toSource)
		}

		if got := h.fake.Playlist("src").Tracks; !slices.Equal(got, []string{"spotify:track:a", "spotify:track:b", "spotify:track:c", "spotify:track:d"}) {
			t.Errorf("unexpected source %v", got)
		}
		if got := h.fake.Playlist("dst").Tracks; !slices.Equal(got, []string{"spotify:track:b", "spotify:track:c", "spotify:track:d", "spotify:track:a"}) {
			t.Errorf("unexpected destination %v", got)
		}

		srcAdds := h.fake.RequestsTo(http.MethodPost, "/v1/playlists/src/tracks")
		dstAdds := h.fake.RequestsTo(http.MethodPost, "/v1/playlists/dst/tracks")
		if len(srcAdds) != 1 || len(dstAdds) != 1 || srcAdds[0].Token != "src-token" || dstAdds[0].Token != "dst-token" {
			t.Fatalf("expected one add per side with the matching token, got %+v / %+v", srcAdds, dstAdds)
		}
		if srcAdds[0].At.Before(dstAdds[0].At) {
			t.Error("expected the destination leg to run before the source leg")
		}
		if final.Logs[len(final.Logs)-1] != "Two-way sync completed" {
			t.Errorf("unexpected last line %q", final.Logs[len(final.Logs)-1])
		}
	})

	t.Run("Two Way Never Removes", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "src", Name: "Source", OwnerID: "alice", Tracks: []string{"spotify:track:a"}})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "dst", Name: "Dest", OwnerID: "bob", Tracks: []string{"spotify:track:b"}})

		spec := SyncJob{Source: models.PlaylistRef{ID: "src", Name: "Source"}, Destination: models.PlaylistRef{ID: "dst", Name: "Dest"}, Mode: models.TwoWay, RemoveMissing: true}
		h.finish(h.engine.StartSync(ctx, spec, testAuth))

		for _, r := range h.fake.Requests() {
			if r.Method == http.MethodDelete {
				t.Errorf("unexpected removal %s %s", r.Method, r.Path)
			}
		}
	})

	t.Run("Failure Fails Job And Open Items", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "src", Name: "Source", OwnerID: "alice", Tracks: []string{"spotify:track:a"}})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "dst", Name: "Dest", OwnerID: "bob", Tracks: []string{"spotify:track:b"}})
		h.fake.Fail(http.MethodPost, "/v1/playlists/src/tracks", http.StatusInternalServerError, 0)

		spec := SyncJob{Source: models.PlaylistRef{ID: "src", Name: "Source"}, Destination: models.PlaylistRef{ID: "dst", Name: "Dest"}, Mode: models.TwoWay}
		final := h.finish(h.engine.StartSync(ctx, spec, testAuth))

		if final.Status != models.JobFailed {
			t.Errorf("expected failed, got %s", final.Status)
		}
		if final.Items[0].Status != models.ItemCompleted {
			t.Errorf("expected the finished destination leg to stay completed, got %s", final.Items[0].Status)
		}
		if final.Items[1].Status != models.ItemFailed || final.Items[1].Error != "Failed to add tracks" {
			t.Errorf("unexpected source leg: %+v", final.Items[1])
		}
		if final.Logs[len(final.Logs)-1] != "Failed to add tracks" {
			t.Errorf("expected error message appended to log, got %v", final.Logs)
		}
		assertMonotonic(t, h.store.history())
	})

	t.Run("Read Failure Before Any Item", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "src", Name: "Source", OwnerID: "alice"})
		h.fake.Fail(http.MethodGet, "/v1/playlists/dst/tracks", http.StatusNotFound, 0)

		spec := SyncJob{Source: models.PlaylistRef{ID: "src", Name: "Source"}, Destination: models.PlaylistRef{ID: "dst", Name: "Dest"}, Mode: models.OneWay}
		final := h.finish(h.engine.StartSync(ctx, spec, testAuth))

		if final.Status != models.JobFailed || final.Items[0].Status != models.ItemFailed || final.Items[0].Error != "Failed to fetch playlist tracks" {
			t.Errorf("unexpected job: %s %+v", final.Status, final.Items[0])
		}
	})

	t.Run("Liked Songs Destination", func(t *testing.T) {
		h := newHarness(t, EngineOptions{SavedTracksDelay: 20 * time.Millisecond})
		h.fake.AddPlaylist(tu.FakePlaylist{ID: "src", Name: "Source", OwnerID: "alice", Tracks: []string{"spotify:track:a", "spotify:track:b", "spotify:local:x", "spotify:track:c"}})
		h.fake.SetSaved("bob", []string{"spotify:track:b"})

		spec := SyncJob{Source: models.PlaylistRef{ID: "src", Name: "Source"}, Destination: models.PlaylistRef{ID: models.LikedSongsID, Name: "Liked Songs"}, Mode: models.OneWay}
		final := h.finish(h.engine.StartSync(ctx, spec, testAuth))

		if final.Status != models.JobCompleted {
			t.Fatalf("expected completed, got %s: %v", final.Status, final.Logs)
		}
		if item := final.Items[0]; item.Added != 2 || item.Total != 2 || item.Message != "2/2" {
			t.Errorf("expected total to count only savable tracks, got %+v", item)
		}
		if !slices.Contains(final.Logs, "Skipping 1 items that cannot be saved to Liked Songs") {
			t.Errorf("expected skipped line, got %v", final.Logs)
		}

		saves := h.fake.RequestsTo(http.MethodPut, "/v1/me/tracks")
		if len(saves) != 2 {
			t.Fatalf("expected one request per valid track id, got %d", len(saves))
		}
		if !strings.Contains(saves[0].Body, `"c"`) || !strings.Contains(saves[1].Body, `"a"`) {
			t.Errorf("expected reversed writes c then a, got %s then %s", saves[0].Body, saves[1].Body)
		}
		if gap := saves[1].At.Sub(saves[0].At); gap < 20*time.Millisecond {
			t.Errorf("expected at least the configured delay between saves, got %v", gap)
		}
		if got := h.fake.Saved("bob"); !slices.Equal(got, []string{"spotify:track:a", "spotify:track:c", "spotify:track:b"}) {
			t.Errorf("expected saved order to follow source order, got %v", got)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		h := newHarness(t, EngineOptions{})
		src := models.PlaylistRef{ID: "src", Name: "Source"}
		dst := models.PlaylistRef{ID: "dst", Name: "Dest"}

		if _, err := h.engine.StartSync(ctx, SyncJob{Source: src, Destination: dst, Mode: "sideways"}, testAuth); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for mode, got %v", err)
		}
		if _, err := h.engine.StartSync(ctx, SyncJob{Source: src, Destination: src, Mode: models.OneWay}, testAuth); !errors.Is(err, shared.ErrUnsupportedSync) {
			t.Errorf("expected ErrUnsupportedSync, got %v", err)
		}
		if _, err := h.engine.StartSync(ctx, SyncJob{Source: src, Mode: models.OneWay}, testAuth); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for destination, got %v", err)
		}
	})
}

// panicAPI panics on every call through its nil embedded interface.
type panicAPI struct {
	services.SpotifyAPI
}

type staticCredentials struct{}

func (staticCredentials) EnsureToken(_ context.Context, current, _ string) (string, error) {
	if current == "" {
		return "", shared.ErrNotAuthenticated
	}
	return current, nil
}

func TestOuterBoundary(t *testing.T) {
	store := &recordingStore{MemoryJobStore: repositories.NewMemoryJobStore()}
	engine := NewJobEngine(store, panicAPI{}, staticCredentials{}, nil, EngineOptions{})

	job, err := engine.StartTransfer(context.Background(), []models.PlaylistRef{{ID: "p1", Name: "One"}, {ID: "p2", Name: "Two"}}, testAuth)
	if err != nil {
		t.Fatalf("failed to start job: %v", err)
	}
	engine.Wait()

	final, err := engine.Job(job.ID)
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if final.Status != models.JobFailed {
		t.Errorf("expected failed, got %s", final.Status)
	}
	for _, it := range final.Items {
		if it.Status != models.ItemFailed || it.Error == "" {
			t.Errorf("expected every open item failed with an error, got %+v", it)
		}
	}
	if len(final.Logs) == 0 || !strings.HasPrefix(final.Logs[len(final.Logs)-1], "Unknown error") {
		t.Errorf("expected panic recorded in log, got %v", final.Logs)
	}
	assertMonotonic(t, store.history())
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	finished map[models.JobStatus]int
	items    map[models.ItemStatus]int
	tracks   int
}

func (o *countingObserver) JobStarted(models.JobKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingObserver) JobFinished(_ models.JobKind, status models.JobStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished[status]++
}

func (o *countingObserver) ItemFinished(_ models.JobKind, status models.ItemStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[status]++
}

func (o *countingObserver) TracksWritten(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tracks += n
}

func TestObserver(t *testing.T) {
	obs := &countingObserver{finished: map[models.JobStatus]int{}, items: map[models.ItemStatus]int{}}
	h := newHarness(t, EngineOptions{Observer: obs})
	h.fake.AddPlaylist(tu.FakePlaylist{ID: "p1", Name: "One", OwnerID: "alice", Tracks: trackURIs("o", 150)})

	h.finish(h.engine.StartTransfer(context.Background(), []models.PlaylistRef{{ID: "p1", Name: "One"}, {ID: "gone", Name: "Gone"}}, testAuth))

	if obs.started != 1 || obs.finished[models.JobFailed] != 1 {
		t.Errorf("unexpected job counts: started=%d finished=%v", obs.started, obs.finished)
	}
	if obs.items[models.ItemCompleted] != 1 || obs.items[models.ItemFailed] != 1 {
		t.Errorf("unexpected item counts: %v", obs.items)
	}
	if obs.tracks != 150 {
		t.Errorf("expected 150 tracks written, got %d", obs.tracks)
	}
}
