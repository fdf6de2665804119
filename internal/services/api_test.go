package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

func TestAPIService(t *testing.T) {
	ctx := context.Background()

	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := NewAPIService("http://example.com", customClient)

			if srv.baseURL != "http://example.com" {
				t.Errorf("expected baseURL 'http://example.com', got %s", srv.baseURL)
			}
			if srv.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Empty BaseURL", func(t *testing.T) {
			srv := NewAPIService("", nil)

			if srv.baseURL != "http://localhost:3000" {
				t.Errorf("expected default baseURL 'http://localhost:3000', got %s", srv.baseURL)
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Non JSON Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("plain text"))
			}))
			defer server.Close()

			resp, err := NewAPIService(server.URL, nil).Get(ctx, "/health")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.IsJSON {
				t.Error("expected IsJSON to be false")
			}
			if string(resp.Body) != "plain text" {
				t.Errorf("unexpected body %q", resp.Body)
			}
		})

		t.Run("Network Error", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("network error"))}
			_, err := NewAPIService("http://example.com", client).Get(ctx, "/test")
			if !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})

		t.Run("Response Read Error", func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(&tu.FCloser{}), Header: make(http.Header)}
			client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}

			_, err := NewAPIService("http://example.com", client).Get(ctx, "/test")
			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected read error, got %v", err)
			}
		})
	})

	t.Run("StartTransfer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/api/transfer/start" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
			}

			var req models.TransferRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			if len(req.Playlists) != 1 || req.Playlists[0].ID != "p1" || req.Auth.SourceAccessToken != "src" {
				t.Errorf("unexpected request: %+v", req)
			}

			job := models.NewJob("job_1", models.KindTransfer, []models.PlaylistProgress{models.NewPlaylistProgress("p1", "One")}, time.Now())
			json.NewEncoder(w).Encode(models.StartResponse{ID: job.ID, State: job})
		}))
		defer server.Close()

		started, err := NewAPIService(server.URL, nil).StartTransfer(ctx, models.TransferRequest{
			Playlists: []models.PlaylistRef{{ID: "p1", Name: "One"}},
			Auth:      &models.Credentials{SourceAccessToken: "src", DestAccessToken: "dst"},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if started.ID != "job_1" || started.State.Status != models.JobQueued {
			t.Errorf("unexpected response: %+v", started)
		}
	})

	t.Run("StartSync Error Message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(models.ErrorResponse{Error: "Syncing Liked Songs is not supported"})
		}))
		defer server.Close()

		_, err := NewAPIService(server.URL, nil).StartSync(ctx, models.SyncRequest{Mode: models.OneWay})
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
		if !strings.Contains(err.Error(), "Syncing Liked Songs is not supported") {
			t.Errorf("expected server message in error, got %v", err)
		}
	})

	t.Run("JobStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("id") {
			case "job_1":
				job := models.NewJob("job_1", models.KindSync, []models.PlaylistProgress{models.NewPlaylistProgress("d", "Add to D")}, time.UnixMilli(1000))
				job.Status = models.JobCompleted
				json.NewEncoder(w).Encode(job)
			default:
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(models.ErrorResponse{Error: "Not found"})
			}
		}))
		defer server.Close()

		api := NewAPIService(server.URL, nil)
		job, err := api.JobStatus(ctx, "job_1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if job.Status != models.JobCompleted || job.CreatedAt.UnixMilli() != 1000 {
			t.Errorf("unexpected job: %+v", job)
		}

		if _, err := api.JobStatus(ctx, "job_missing"); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})
}
