package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/muurk/banddump/internal/discovery"
	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/version"
)

// Status is the JSON document served at /status
type Status struct {
	Device      string                 `json:"device"`
	Firmware    string                 `json:"firmware"`
	DataStart   uint16                 `json:"data_start"`
	DataEnd     uint16                 `json:"data_end"`
	FlashSize   uint16                 `json:"flash_size"`
	Path        string                 `json:"path"`
	Connections int                    `json:"connections"`
	Version     string                 `json:"version"`
	TLS         map[string]interface{} `json:"tls"`
}

// Handler returns the HTTP handler: the WebSocket link at the configured
// path and a status document at /status
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleLink)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.tracker.Info()
	status := Status{
		Device:      s.config.Device,
		Firmware:    s.tracker.Firmware(),
		DataStart:   info.DataStart,
		DataEnd:     info.DataEnd,
		FlashSize:   info.FlashSize,
		Path:        s.config.Path,
		Connections: s.GetActiveConnections(),
		Version:     version.Version,
		TLS:         GetTLSInfo(s.tlsConfig),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logging.Error("Failed to write status",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
	}
}

// acceptsDevice reports whether a link request names our tracker. A
// request without a device parameter takes whatever tracker is in range.
func (s *Server) acceptsDevice(r *http.Request) bool {
	want := r.URL.Query().Get("device")
	if want == "" || s.config.Device == "" {
		return true
	}
	return discovery.MatchName(s.config.Device, want)
}

// LogRequestDetails logs the parts of a link request worth keeping
func LogRequestDetails(r *http.Request) {
	logging.Debug("Link request",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("path", r.URL.Path),
		zap.String("device", r.URL.Query().Get("device")),
		zap.String("char", r.URL.Query().Get("char")),
		zap.String("user_agent", r.Header.Get("User-Agent")),
	)
}
