package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const (
	DefaultInterval = time.Second
	logTail         = 6
	barWidth        = 40
)

// JobSource fetches job snapshots. [services.APIService] implements it.
type JobSource interface {
	JobStatus(ctx context.Context, id string) (*models.Job, error)
}

// Model polls a job and renders one progress bar per item until the job is terminal.
type Model struct {
	ctx      context.Context
	source   JobSource
	id       string
	interval time.Duration
	job      *models.Job
	err      error
	showLogs bool
	bar      progress.Model
	help     help.Model
	keys     keyMap
	width    int
}

// NewModel creates a watcher for job id. A zero interval uses [DefaultInterval].
func NewModel(ctx context.Context, source JobSource, id string, interval time.Duration) *Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Model{
		ctx:      ctx,
		source:   source,
		id:       id,
		interval: interval,
		showLogs: true,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Job returns the last snapshot received.
func (m *Model) Job() *models.Job { return m.job }

// Err returns the last fetch error, if the watcher stopped because of one.
func (m *Model) Err() error { return m.err }

// Init fetches the first snapshot.
func (m *Model) Init() tea.Cmd {
	return m.fetch()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(barWidth, max(10, msg.Width-30))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.refresh):
			return m, m.fetch()
		case key.Matches(msg, m.keys.logs):
			m.showLogs = !m.showLogs
		}
		return m, nil

	case Msg:
		switch msg.kind {
		case MsgTick:
			return m, m.fetch()
		case MsgJobFetched:
			return m.handleFetched(msg.data.(jobFetched))
		}
	}
	return m, nil
}

func (m *Model) handleFetched(res jobFetched) (tea.Model, tea.Cmd) {
	if res.err != nil {
		m.err = res.err
		if errors.Is(res.err, shared.ErrJobNotFound) || errors.Is(res.err, context.Canceled) {
			return m, tea.Quit
		}
		return m, m.tick()
	}

	m.job, m.err = res.job, nil
	if m.job.Status.Terminal() {
		return m, tea.Quit
	}
	return m, m.tick()
}

func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		job, err := m.source.JobStatus(m.ctx, m.id)
		return jobFetchedMsg(job, err)
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// View renders the job header, the item bars and the log tail.
func (m *Model) View() string {
	var b strings.Builder

	if m.job == nil {
		b.WriteString(styles.title.Render("Job " + m.id))
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(styles.help.Render("Waiting for job..."))
		}
		b.WriteString("\n\n" + m.help.ShortHelpView(m.keys.ShortHelp()))
		return b.String()
	}

	b.WriteString(styles.title.Render(fmt.Sprintf("%s job %s", m.job.Kind, m.job.ID)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Status: %s\n\n", styles.Job(m.job.Status))

	for _, item := range m.job.Items {
		fmt.Fprintf(&b, "%s  %s\n", item.PlaylistName, styles.Item(item.Status))
		fmt.Fprintf(&b, "%s %d/%d\n", m.bar.ViewAs(ratio(item.Added, item.Total)), item.Added, item.Total)
		if item.Error != "" {
			b.WriteString(styles.err.Render("  "+item.Error) + "\n")
		}
		b.WriteString("\n")
	}

	if m.showLogs && len(m.job.Logs) > 0 {
		start := max(0, len(m.job.Logs)-logTail)
		for _, line := range m.job.Logs[start:] {
			b.WriteString(styles.help.Render(line) + "\n")
		}
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(styles.warn.Render(fmt.Sprintf("Last poll failed: %v", m.err)) + "\n\n")
	}

	if !m.job.Status.Terminal() {
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return b.String()
}

func ratio(added, total int) float64 {
	if total <= 0 {
		return 0
	}
	return min(1, float64(added)/float64(total))
}

// Watch runs the watcher on out until the job is terminal or the user quits, and returns the last snapshot.
func Watch(ctx context.Context, source JobSource, id string, interval time.Duration, in io.Reader, out io.Writer) (*models.Job, error) {
	m := NewModel(ctx, source, id, interval)
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(out)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}

	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return nil, err
	}

	fm := final.(*Model)
	if fm.job == nil && fm.err != nil {
		return nil, fm.err
	}
	return fm.job, nil
}
