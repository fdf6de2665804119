package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/plsync/internal/models"
)

// MsgKind enumerates all message types in the watcher.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgJobFetched MsgKind = iota
	MsgTick
)

type jobFetched struct {
	job *models.Job
	err error
}

// jobFetchedMsg is the constructor for [MsgJobFetched]
func jobFetchedMsg(job *models.Job, err error) Msg {
	return Msg{kind: MsgJobFetched, data: jobFetched{job, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}
