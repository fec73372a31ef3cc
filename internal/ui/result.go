package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/banddump/internal/protocol"
	"github.com/muurk/banddump/internal/session"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result is the box printed when a command finishes
type Result struct {
	Type            ResultType
	Title           string
	Details         []Field
	Error           error
	Troubleshooting []string
	Width           int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Field) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: MinTerminalWidth}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           MinTerminalWidth,
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Field) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: MinTerminalWidth}
}

// SetWidth sets the width used for rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = clampWidth(width)
	return r
}

// AddDetail appends a detail line
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Field{Key: key, Value: value})
	return r
}

// Render returns the styled result box
func (r *Result) Render() string {
	width := clampWidth(r.Width)

	var (
		title  string
		color  lipgloss.Color
		border = lipgloss.DoubleBorder()
	)
	switch r.Type {
	case ResultFailure:
		title = ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title))
		color = ErrorColor
	case ResultWarning:
		title = WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title))
		color = WarningColor
	default:
		title = SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
		color = SuccessColor
	}

	lines := []string{"", title, ""}

	for _, d := range r.Details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
	}

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}

	if len(r.Troubleshooting) > 0 {
		lines = append(lines, r.renderTroubleshooting(width), "")
	}

	return boxStyle(width, border, color).Render(strings.Join(lines, "\n"))
}

func (r *Result) renderTroubleshooting(width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}

	inner := width - 12
	if inner < 40 {
		inner = 40
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(inner).
		Padding(0, 1).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// Troubleshoot returns tips for a failed download
func Troubleshoot(err error) []string {
	var (
		te *session.TransportError
		se *session.SinkError
	)
	switch {
	case errors.As(err, &se):
		return []string{
			"Check that the output directory exists and is writable",
			"Check free disk space",
		}
	case errors.Is(err, protocol.ErrUnsupportedDataRange):
		return []string{
			"The tracker reported a flash layout this tool does not read",
			"Capture the session with --capture and keep the file for analysis",
		}
	case errors.Is(err, protocol.ErrBlockTransferFailed):
		return []string{
			"Move the tracker closer to the bridge to reduce radio errors",
			"Retry the download; a corrupted block aborts the whole transfer",
		}
	case errors.Is(err, protocol.ErrHandshakeFailed):
		return []string{
			"Wake the tracker (tap or charge it) and retry",
			"Make sure no phone app is connected to the tracker",
			"Use 'banddump decode' on captured frames to inspect the reply",
		}
	case errors.As(err, &te):
		return []string{
			"Check the bridge is running: banddump scan",
			"Check --bridge URL or --serial port and baud rate",
			"Increase --timeout if the tracker replies slowly",
		}
	default:
		return nil
	}
}

// DownloadSummary describes a finished download
func DownloadSummary(res *session.Result, path string) *Result {
	r := NewSuccessResult("Flash image downloaded")
	r.AddDetail("Firmware", res.Firmware)
	r.AddDetail("Range", res.Info.String())
	r.AddDetail("Size", fmt.Sprintf("%d bytes", len(res.Image)))
	r.AddDetail("Duration", res.Duration.Round(time.Millisecond).String())
	if path != "" {
		r.AddDetail("Saved to", path)
	}
	return r
}
