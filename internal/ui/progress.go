package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus is the state of one step in the step list
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepComplete
	StepFailed
	StepSkipped
)

// Step is one line of the step list
type Step struct {
	Name    string
	Status  StepStatus
	Message string // Optional note, e.g. "V1.2.7" or "block 3/12"
}

// Progress is a progress bar over a step list
type Progress struct {
	Label   string
	Steps   []Step
	Percent float64 // 0.0 - 1.0
	Width   int
	bar     progress.Model
}

// NewProgress creates a progress display with one pending step per name
func NewProgress(label string, names ...string) *Progress {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Name: name}
	}
	p := &Progress{Label: label, Steps: steps}
	return p.SetWidth(MinTerminalWidth)
}

// SetWidth sizes the bar for the given terminal width
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = clampWidth(width)
	barWidth := p.Width - 20
	if barWidth > 50 {
		barWidth = 50
	}
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
	)
	return p
}

// Update sets a step's status and note. Out-of-range indexes are ignored.
func (p *Progress) Update(index int, status StepStatus, message string) {
	if index < 0 || index >= len(p.Steps) {
		return
	}
	p.Steps[index].Status = status
	p.Steps[index].Message = message
}

// Start marks a step running
func (p *Progress) Start(index int, message string) {
	p.Update(index, StepRunning, message)
}

// Complete marks a step complete
func (p *Progress) Complete(index int, message string) {
	p.Update(index, StepComplete, message)
}

// Fail marks a step failed
func (p *Progress) Fail(index int, message string) {
	p.Update(index, StepFailed, message)
}

// Running returns the index of the running step, or -1
func (p *Progress) Running() int {
	for i, s := range p.Steps {
		if s.Status == StepRunning {
			return i
		}
	}
	return -1
}

// Done returns the number of complete or skipped steps
func (p *Progress) Done() int {
	n := 0
	for _, s := range p.Steps {
		if s.Status == StepComplete || s.Status == StepSkipped {
			n++
		}
	}
	return n
}

// Render returns the styled progress display
func (p *Progress) Render() string {
	var b strings.Builder

	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}

	b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(fmt.Sprintf("%s  %3.0f%%  [%d/%d]",
		p.bar.ViewAs(p.Percent), p.Percent*100, p.Done(), len(p.Steps))))
	b.WriteString("\n\n")

	lines := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		lines[i] = p.renderStep(i, s)
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

func (p *Progress) renderStep(i int, s Step) string {
	var (
		marker string
		style  lipgloss.Style
	)
	switch s.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = StepMarkerSkipped, StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  [%d/%d] ", i+1, len(p.Steps))
	b.WriteString(style.Render(s.Name))

	pad := 40 - lipgloss.Width(s.Name)
	if pad < 1 {
		pad = 1
	}
	b.WriteString(strings.Repeat(" ", pad))
	b.WriteString(style.Render(marker))

	if s.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + s.Message + ")"))
	}
	return b.String()
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}
