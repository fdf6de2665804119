package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// scriptedSource returns its snapshots in order, repeating the last one.
type scriptedSource struct {
	mu    sync.Mutex
	jobs  []*models.Job
	err   error
	calls int
}

func (s *scriptedSource) JobStatus(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	i := min(s.calls-1, len(s.jobs)-1)
	return s.jobs[i].Clone(), nil
}

func testJob(status models.JobStatus, added int) *models.Job {
	item := models.NewPlaylistProgress("p1", "Road Trip")
	item.Total, item.Added = 120, added
	job := models.NewJob("job_1", models.KindTransfer, []models.PlaylistProgress{item}, time.UnixMilli(0))
	job.Status = status
	job.Logs = []string{"Reading playlist Road Trip", "Found 120 tracks"}
	return job
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModelUpdate(t *testing.T) {
	t.Run("running job schedules another poll", func(t *testing.T) {
		m := NewModel(context.Background(), &scriptedSource{}, "job_1", time.Millisecond)

		_, cmd := m.Update(jobFetchedMsg(testJob(models.JobRunning, 100), nil))
		if cmd == nil {
			t.Fatal("expected a tick command")
		}
		msg, ok := cmd().(Msg)
		if !ok || msg.kind != MsgTick {
			t.Fatalf("expected tick message, got %#v", msg)
		}
		if m.Job().Status != models.JobRunning {
			t.Errorf("expected running job to be stored, got %s", m.Job().Status)
		}
	})

	t.Run("tick fetches", func(t *testing.T) {
		src := &scriptedSource{jobs: []*models.Job{testJob(models.JobRunning, 0)}}
		m := NewModel(context.Background(), src, "job_1", time.Millisecond)

		_, cmd := m.Update(tickMsg(time.Now()))
		msg := cmd().(Msg)
		if msg.kind != MsgJobFetched {
			t.Fatalf("expected fetched message, got %v", msg.kind)
		}
		if src.calls != 1 {
			t.Errorf("expected one fetch, got %d", src.calls)
		}
	})

	t.Run("terminal job quits", func(t *testing.T) {
		for _, status := range []models.JobStatus{models.JobCompleted, models.JobFailed} {
			m := NewModel(context.Background(), &scriptedSource{}, "job_1", time.Millisecond)
			_, cmd := m.Update(jobFetchedMsg(testJob(status, 120), nil))
			if !isQuit(cmd) {
				t.Errorf("%s: expected quit", status)
			}
		}
	})

	t.Run("unknown job quits", func(t *testing.T) {
		m := NewModel(context.Background(), &scriptedSource{}, "nope", time.Millisecond)
		_, cmd := m.Update(jobFetchedMsg(nil, shared.ErrJobNotFound))
		if !isQuit(cmd) {
			t.Error("expected quit")
		}
		if !errors.Is(m.Err(), shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", m.Err())
		}
	})

	t.Run("transient error keeps polling", func(t *testing.T) {
		m := NewModel(context.Background(), &scriptedSource{}, "job_1", time.Millisecond)
		m.Update(jobFetchedMsg(testJob(models.JobRunning, 10), nil))

		_, cmd := m.Update(jobFetchedMsg(nil, shared.ErrServiceUnavailable))
		if cmd == nil || isQuit(cmd) {
			t.Fatal("expected another poll")
		}
		if m.Job() == nil {
			t.Error("expected last snapshot to be kept")
		}
		if !strings.Contains(m.View(), "Last poll failed") {
			t.Error("expected poll error in view")
		}
	})

	t.Run("keys", func(t *testing.T) {
		m := NewModel(context.Background(), &scriptedSource{}, "job_1", time.Millisecond)

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		if !isQuit(cmd) {
			t.Error("expected q to quit")
		}

		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
		if m.showLogs {
			t.Error("expected l to hide the log")
		}
	})
}

func TestModelView(t *testing.T) {
	t.Run("before first snapshot", func(t *testing.T) {
		m := NewModel(context.Background(), &scriptedSource{}, "job_1", 0)
		if got := m.View(); !strings.Contains(got, "Waiting for job") {
			t.Errorf("expected waiting message, got:\n%s", got)
		}
	})

	t.Run("renders items and log tail", func(t *testing.T) {
		m := NewModel(context.Background(), &scriptedSource{}, "job_1", 0)
		m.Update(jobFetchedMsg(testJob(models.JobRunning, 100), nil))

		got := m.View()
		for _, want := range []string{"transfer job job_1", "running", "Road Trip", "100/120", "Found 120 tracks"} {
			if !strings.Contains(got, want) {
				t.Errorf("expected view to contain %q, got:\n%s", want, got)
			}
		}
	})

	t.Run("renders item errors", func(t *testing.T) {
		job := testJob(models.JobFailed, 0)
		job.Items[0].Status = models.ItemFailed
		job.Items[0].Error = "Failed to fetch playlist tracks"

		m := NewModel(context.Background(), &scriptedSource{}, "job_1", 0)
		m.Update(jobFetchedMsg(job, nil))

		if got := m.View(); !strings.Contains(got, "Failed to fetch playlist tracks") {
			t.Errorf("expected item error in view, got:\n%s", got)
		}
	})
}

func TestRatio(t *testing.T) {
	tests := []struct {
		added, total int
		want         float64
	}{
		{0, 0, 0},
		{50, 100, 0.5},
		{120, 120, 1},
		{130, 120, 1},
	}
	for _, tt := range tests {
		if got := ratio(tt.added, tt.total); got != tt.want {
			t.Errorf("ratio(%d, %d) = %v, want %v", tt.added, tt.total, got, tt.want)
		}
	}
}
