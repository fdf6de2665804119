package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
)

const (
	maxBodyBytes = 1 << 20

	// ActiveJobCookie remembers the most recent sync job for browser clients.
	ActiveJobCookie = "active_transfer_job_id"
)

// Credential cookies, checked in order for each role.
var (
	sourceAccessCookies  = []string{"spotify_source_access_token", "spotify_access_token"}
	sourceRefreshCookies = []string{"spotify_source_refresh_token", "spotify_refresh_token"}
	destAccessCookies    = []string{"spotify_destination_access_token"}
	destRefreshCookies   = []string{"spotify_destination_refresh_token"}
)

// JobService starts jobs and reads their snapshots. [tasks.JobEngine] implements it.
type JobService interface {
	StartTransfer(ctx context.Context, playlists []models.PlaylistRef, auth models.Credentials) (*models.Job, error)
	StartSync(ctx context.Context, spec tasks.SyncJob, auth models.Credentials) (*models.Job, error)
	Job(id string) (*models.Job, error)
}

// JobsHandler serves the start and status endpoints.
type JobsHandler struct {
	jobs   JobService
	logger *log.Logger
	now    func() time.Time
}

// NewJobsHandler creates a handler over jobs.
func NewJobsHandler(jobs JobService, logger *log.Logger) *JobsHandler {
	return &JobsHandler{jobs: jobs, logger: logger, now: time.Now}
}

// Register adds the handler's routes to r.
func (h *JobsHandler) Register(r *BasicRouter) {
	r.HandleFunc(http.MethodPost, "/api/transfer/start", h.StartTransfer)
	r.HandleFunc(http.MethodPost, "/api/sync/start", h.StartSync)
	r.HandleFunc(http.MethodGet, "/api/transfer/status", h.Status)
}

type transferBody struct {
	Playlists []any               `json:"playlists"`
	Auth      *models.Credentials `json:"auth"`
}

// StartTransfer handles POST /api/transfer/start.
func (h *JobsHandler) StartTransfer(w http.ResponseWriter, r *http.Request) {
	var body transferBody
	if err := decodeBody(w, r, &body); err != nil || body.Playlists == nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	playlists := make([]models.PlaylistRef, 0, len(body.Playlists))
	for _, entry := range body.Playlists {
		if ref, ok := playlistRef(entry); ok {
			playlists = append(playlists, ref)
		}
	}
	if len(playlists) == 0 {
		writeError(w, http.StatusBadRequest, "No playlists provided")
		return
	}

	auth := credentials(r, body.Auth)
	if !auth.HasSource() || !auth.HasDestination() {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	job, err := h.jobs.StartTransfer(r.Context(), playlists, auth)
	if err != nil {
		h.writeStartError(w, err)
		return
	}

	h.logger.Info("transfer started", "job", job.ID, "playlists", len(playlists))
	writeJSON(w, http.StatusOK, models.StartResponse{ID: job.ID, State: job})
}

type syncBody struct {
	Source        any                 `json:"source"`
	Destination   any                 `json:"destination"`
	Mode          models.SyncMode     `json:"mode"`
	RemoveMissing bool                `json:"removeMissing"`
	Auth          *models.Credentials `json:"auth"`
}

// StartSync handles POST /api/sync/start.
func (h *JobsHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	var body syncBody
	if err := decodeBody(w, r, &body); err != nil || body.Source == nil || body.Destination == nil || !body.Mode.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	source, srcOK := playlistRef(body.Source)
	destination, dstOK := playlistRef(body.Destination)
	if !srcOK || !dstOK {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if source.IsLikedSongs() || destination.IsLikedSongs() {
		writeError(w, http.StatusBadRequest, "Syncing Liked Songs is not supported")
		return
	}

	auth := credentials(r, body.Auth)
	if !auth.HasSource() || !auth.HasDestination() {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	spec := tasks.SyncJob{Source: source, Destination: destination, Mode: body.Mode, RemoveMissing: body.RemoveMissing}
	job, err := h.jobs.StartSync(r.Context(), spec, auth)
	if err != nil {
		h.writeStartError(w, err)
		return
	}

	h.logger.Info("sync started", "job", job.ID, "mode", body.Mode, "source", source.ID, "destination", destination.ID)
	http.SetCookie(w, &http.Cookie{
		Name:    ActiveJobCookie,
		Value:   job.ID,
		Path:    "/",
		MaxAge:  int(time.Hour.Seconds()),
		Expires: h.now().Add(time.Hour),
	})
	writeJSON(w, http.StatusOK, models.StartResponse{ID: job.ID, State: job})
}

// Status handles GET /api/transfer/status?id=.
func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing id")
		return
	}

	job, err := h.jobs.Job(id)
	if errors.Is(err, shared.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load job", "job", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobsHandler) writeStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnsupportedSync):
		writeError(w, http.StatusBadRequest, "Source and destination must be different playlists")
	case errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid request")
	default:
		h.logger.Error("failed to start job", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}

// playlistRef accepts a JSON object whose id and name are non-empty strings.
func playlistRef(v any) (models.PlaylistRef, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return models.PlaylistRef{}, false
	}
	id, idOK := obj["id"].(string)
	name, nameOK := obj["name"].(string)
	if !idOK || !nameOK || id == "" || name == "" {
		return models.PlaylistRef{}, false
	}
	return models.PlaylistRef{ID: id, Name: name}, true
}

// credentials uses the body's auth object when present and falls back to cookies.
func credentials(r *http.Request, auth *models.Credentials) models.Credentials {
	if auth != nil {
		return *auth
	}
	return models.Credentials{
		SourceAccessToken:  firstCookie(r, sourceAccessCookies),
		SourceRefreshToken: firstCookie(r, sourceRefreshCookies),
		DestAccessToken:    firstCookie(r, destAccessCookies),
		DestRefreshToken:   firstCookie(r, destRefreshCookies),
	}
}

func firstCookie(r *http.Request, names []string) string {
	for _, name := range names {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
