package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// LikedSongsID is the sentinel playlist id naming the user's saved-tracks collection.
const LikedSongsID = "liked_songs"

// LikedSongsName is the display name synthesized for [LikedSongsID].
const LikedSongsName = "Liked Songs"

// JobKind distinguishes the two job bodies.
type JobKind string

const (
	KindTransfer JobKind = "transfer"
	KindSync     JobKind = "sync"
)

// JobStatus is the lifecycle state of a [Job].
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ItemStatus is the lifecycle state of a [PlaylistProgress].
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemRunning   ItemStatus = "running"
	ItemCompleted ItemStatus = "completed"
	ItemFailed    ItemStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed
}

// rank orders statuses pending < running < completed|failed.
func (s ItemStatus) rank() int {
	switch s {
	case ItemPending:
		return 0
	case ItemRunning:
		return 1
	case ItemCompleted, ItemFailed:
		return 2
	default:
		return -1
	}
}

// CanAdvance reports whether moving from s to next keeps the status sequence non-decreasing.
// Terminal statuses never advance.
func (s ItemStatus) CanAdvance(next ItemStatus) bool {
	if s.Terminal() || next.rank() < 0 {
		return false
	}
	return next.rank() >= s.rank()
}

// PlaylistRef names a playlist by id and display name.
type PlaylistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsLikedSongs reports whether the reference is the saved-tracks sentinel.
func (p PlaylistRef) IsLikedSongs() bool {
	return p.ID == LikedSongsID
}

// Validate checks that both fields are present.
func (p PlaylistRef) Validate() error {
	if p.ID == "" || p.Name == "" {
		return fmt.Errorf("playlist reference requires id and name")
	}
	return nil
}

// PlaylistProgress tracks one item of work inside a job.
type PlaylistProgress struct {
	PlaylistID   string     `json:"playlistId"`
	PlaylistName string     `json:"playlistName"`
	Status       ItemStatus `json:"status"`
	Total        int        `json:"total"`
	Added        int        `json:"added"`
	Message      string     `json:"message,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// NewPlaylistProgress returns a pending item.
func NewPlaylistProgress(id, name string) PlaylistProgress {
	return PlaylistProgress{PlaylistID: id, PlaylistName: name, Status: ItemPending}
}

// Job is one Transfer or Sync run.
type Job struct {
	ID        string             `json:"id"`
	Kind      JobKind            `json:"kind"`
	Status    JobStatus          `json:"status"`
	CreatedAt time.Time          `json:"-"`
	UpdatedAt time.Time          `json:"-"`
	Logs      []string           `json:"logs"`
	Items     []PlaylistProgress `json:"items"`
}

// NewJob returns a queued job with the given items.
func NewJob(id string, kind JobKind, items []PlaylistProgress, now time.Time) *Job {
	copied := make([]PlaylistProgress, len(items))
	copy(copied, items)
	return &Job{
		ID:        id,
		Kind:      kind,
		Status:    JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Logs:      []string{},
		Items:     copied,
	}
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Logs = append(make([]string, 0, len(j.Logs)), j.Logs...)
	c.Items = append(make([]PlaylistProgress, 0, len(j.Items)), j.Items...)
	return &c
}

// Item returns the first item with the given playlist id, or nil.
func (j *Job) Item(playlistID string) *PlaylistProgress {
	for i := range j.Items {
		if j.Items[i].PlaylistID == playlistID {
			return &j.Items[i]
		}
	}
	return nil
}

// DerivedStatus computes the terminal status from the items: completed only when every item completed.
func (j *Job) DerivedStatus() JobStatus {
	for _, it := range j.Items {
		if it.Status != ItemCompleted {
			return JobFailed
		}
	}
	return JobCompleted
}

// Validate enforces the structural invariants of a job record.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	switch j.Kind {
	case KindTransfer, KindSync:
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	if len(j.Items) == 0 {
		return fmt.Errorf("job requires at least one item")
	}
	for _, it := range j.Items {
		if it.Added < 0 || (it.Status == ItemRunning && it.Added > it.Total) {
			return fmt.Errorf("item %s has added=%d outside [0, %d]", it.PlaylistID, it.Added, it.Total)
		}
		if (it.Status == ItemFailed) != (it.Error != "") {
			return fmt.Errorf("item %s error must be set iff failed", it.PlaylistID)
		}
	}
	return nil
}

// jobJSON is the wire form; timestamps are unix milliseconds.
type jobJSON struct {
	ID        string             `json:"id"`
	Kind      JobKind            `json:"kind"`
	Status    JobStatus          `json:"status"`
	CreatedAt int64              `json:"createdAt"`
	UpdatedAt int64              `json:"updatedAt"`
	Logs      []string           `json:"logs"`
	Items     []PlaylistProgress `json:"items"`
}

// MarshalJSON encodes timestamps as unix milliseconds.
func (j Job) MarshalJSON() ([]byte, error) {
	logs, items := j.Logs, j.Items
	if logs == nil {
		logs = []string{}
	}
	if items == nil {
		items = []PlaylistProgress{}
	}
	return json.Marshal(jobJSON{
		ID:        j.ID,
		Kind:      j.Kind,
		Status:    j.Status,
		CreatedAt: j.CreatedAt.UnixMilli(),
		UpdatedAt: j.UpdatedAt.UnixMilli(),
		Logs:      logs,
		Items:     items,
	})
}

// UnmarshalJSON decodes the wire form produced by [Job.MarshalJSON].
func (j *Job) UnmarshalJSON(data []byte) error {
	var w jobJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*j = Job{
		ID:        w.ID,
		Kind:      w.Kind,
		Status:    w.Status,
		CreatedAt: time.UnixMilli(w.CreatedAt),
		UpdatedAt: time.UnixMilli(w.UpdatedAt),
		Logs:      w.Logs,
		Items:     w.Items,
	}
	return nil
}
