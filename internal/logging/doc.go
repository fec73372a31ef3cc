// Package logging provides structured logging for banddump.
//
// This package wraps a global zap logger with convenience functions and a few
// protocol-specific helpers for logging frames on the tracker link.
//
// # Log Levels
//
//   - Debug: every frame sent and received, with hex dumps
//   - Info: session state changes, link events
//   - Warn: recoverable oddities (incomplete captures, config save failures)
//   - Error: session aborts
//
// # Configuration
//
// Logging is silent unless a level is given on the command line or through
// BANDDUMP_LOG_LEVEL:
//
//	if err := logging.Initialize(levelFlag); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// Logs go to stderr so they never mix with image data or the progress view
// on stdout.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use once Initialize has
// returned.
package logging
