// Package config provides user configuration management for banddump.
//
// This package manages a YAML configuration file that remembers trackers
// (keyed by the name they advertise), how they were last reached and what
// was last downloaded from them, plus application preferences such as the
// output directory and receive timeout. Command line flags override the
// preferences.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/banddump/config.yaml or $HOME/.config/banddump/config.yaml
//   - macOS: $HOME/.config/banddump/config.yaml
//   - Windows: %LOCALAPPDATA%\banddump\config.yaml
//
// BANDDUMP_CONFIG overrides the location.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SetTrackerNickname("ID107 HR", "Left wrist")
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
