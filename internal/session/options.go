package session

import (
	"time"

	"go.uber.org/zap"
)

// DefaultFileID selects the activity log on the tracker
const DefaultFileID = 1

// EventBuffer is the capacity of the observer channel
const EventBuffer = 2

// Config holds the session configuration.
type Config struct {
	// Logger receives state changes and frame dumps (optional)
	Logger *zap.Logger

	// ReceiveTimeout bounds every wait for an inbound frame. Zero waits
	// forever, which is what the tracker's own phone app does.
	ReceiveTimeout time.Duration

	// FileID is sent with GetData
	FileID uint16

	// FinishAck sends GetDataFinish after the image is persisted and
	// expects DataFinishOk
	FinishAck bool
}

func defaultConfig() Config {
	return Config{
		FileID: DefaultFileID,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithReceiveTimeout bounds each receive. Zero disables the timeout.
//
// Example:
//
//	s := session.New(t, sink, session.WithReceiveTimeout(10*time.Second))
func WithReceiveTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ReceiveTimeout = timeout
	}
}

// WithFileID selects the file requested by GetData.
func WithFileID(id uint16) Option {
	return func(c *Config) {
		c.FileID = id
	}
}

// WithFinishAck enables the GetDataFinish exchange after a download.
func WithFinishAck(enabled bool) Option {
	return func(c *Config) {
		c.FinishAck = enabled
	}
}
