// Package ui renders terminal output for the banddump CLI.
//
// It uses Bubble Tea and Lipgloss for "run once and exit" output: a header
// before a command starts, a live step list while a download runs, and a
// result box at the end. Nothing here is interactive apart from Confirm.
//
// Components:
//
//   - Header: command banner with ordered parameters
//   - Progress: progress bar over a step list
//   - DownloadView: a Progress driven by session events
//   - Result: success, failure or warning box, with troubleshooting tips
//
// A download is rendered by handing the session's event channel to Watch:
//
//	s := session.New(t, sink)
//	done := make(chan *ui.DownloadView)
//	go func() {
//	    view, _ := ui.Watch(ctx, s.Events(), os.Stdout)
//	    done <- view
//	}()
//	res, err := s.Run(ctx)
//	view := <-done
//	view.Finish(err)
//
// When stdout is not a terminal, Watch prints one timestamped line per
// event instead, which keeps piped output and CI logs readable.
//
// Logging is controlled separately through BANDDUMP_LOG_LEVEL. When it is
// unset, zap is silent and only this package writes to the terminal.
package ui
