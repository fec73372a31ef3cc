package ui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/banddump/internal/session"
)

// Download step indexes
const (
	stepConnect = iota
	stepPair
	stepRange
	stepTransfer
	stepSave
)

var downloadSteps = []string{
	"Connect to tracker",
	"Check firmware and pair",
	"Read data range",
	"Download flash blocks",
	"Save image",
}

// DownloadView folds session events into a step list
type DownloadView struct {
	*Progress
	State    session.State
	Last     session.Progress
	Events   int
	readyHit int
}

// NewDownloadView creates a view with every download step pending
func NewDownloadView(label string) *DownloadView {
	return &DownloadView{Progress: NewProgress(label, downloadSteps...)}
}

// Apply advances the step list for one event
func (v *DownloadView) Apply(ev session.Event) {
	v.Events++

	if ev.Kind == session.EventProgress {
		v.Last = ev.Progress
		v.Percent = ev.Progress.Fraction()
		v.Start(stepTransfer, fmt.Sprintf("block %d/%d", ev.Progress.Block+1, ev.Progress.Blocks))
		return
	}

	switch ev.State {
	case session.Pairing:
		v.Start(stepConnect, "")
	case session.Connected:
		v.Complete(stepConnect, "")
		v.Start(stepPair, "")
	case session.Ready:
		v.readyHit++
		if v.readyHit == 1 {
			v.Complete(stepPair, "")
			v.Start(stepRange, "")
			break
		}
		v.Percent = 1
		v.Complete(stepTransfer, fmt.Sprintf("%d bytes", v.Last.Bytes))
		v.Complete(stepSave, "")
	case session.Receiving:
		v.Complete(stepRange, "")
		v.Start(stepTransfer, "")
	case session.Disconnected:
		if i := v.Running(); i >= 0 {
			v.Fail(i, "link lost")
		}
	}
	v.State = ev.State
}

// Finish marks the running step failed when the download ended with err
func (v *DownloadView) Finish(err error) {
	if err == nil {
		return
	}
	if i := v.Running(); i >= 0 {
		v.Fail(i, "")
	}
}

type eventMsg session.Event

type closedMsg struct{}

func waitForEvent(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

// downloadModel renders a DownloadView live until the event channel closes
type downloadModel struct {
	view   *DownloadView
	events <-chan session.Event
}

func (m downloadModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m downloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.view.Apply(session.Event(msg))
		return m, waitForEvent(m.events)
	case closedMsg:
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.view.SetWidth(msg.Width)
	}
	return m, nil
}

func (m downloadModel) View() string {
	return m.view.Render() + "\n"
}

// Watch consumes events until the channel closes and returns the final
// view. Terminals get a live step list; other writers get one line per
// event. Watch never reads stdin, so interrupting is left to the caller's
// signal handling.
func Watch(ctx context.Context, events <-chan session.Event, out io.Writer) (*DownloadView, error) {
	view := NewDownloadView("Downloading flash image...")
	if !IsTerminal(out) {
		LogEvents(events, out, view)
		return view, nil
	}

	view.SetWidth(TerminalWidth(out))
	p := tea.NewProgram(downloadModel{view: view, events: events},
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	if _, err := p.Run(); err != nil {
		// Keep draining so the session never blocks on a dead observer
		for ev := range events {
			view.Apply(ev)
		}
		return view, err
	}
	return view, nil
}

// LogEvents prints one line per event until the channel closes. view may be
// nil.
func LogEvents(events <-chan session.Event, out io.Writer, view *DownloadView) {
	for ev := range events {
		if view != nil {
			view.Apply(ev)
		}
		_, _ = fmt.Fprintf(out, "%s %s\n", ev.Time.Format("15:04:05.000"), ev)
	}
}
