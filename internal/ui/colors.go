package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/plsync/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

var _ Painter = (*Palette)(nil)

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func (p *Palette) On(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Background(c).Render(s)
}

func (p *Palette) As(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

// Job renders a job status in its color.
func (p *Palette) Job(status models.JobStatus) string {
	switch status {
	case models.JobCompleted:
		return p.ok.Render(string(status))
	case models.JobFailed:
		return p.err.Render(string(status))
	case models.JobRunning:
		return p.warn.Render(string(status))
	default:
		return p.help.Render(string(status))
	}
}

// Item renders an item status in its color.
func (p *Palette) Item(status models.ItemStatus) string {
	switch status {
	case models.ItemCompleted:
		return p.ok.Render(string(status))
	case models.ItemFailed:
		return p.err.Render(string(status))
	case models.ItemRunning:
		return p.warn.Render(string(status))
	default:
		return p.help.Render(string(status))
	}
}
