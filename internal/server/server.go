package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/banddump/internal/discovery"
	"github.com/muurk/banddump/internal/emulator"
	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/syncutil"
	"github.com/muurk/banddump/internal/version"
)

// Config holds the server configuration
type Config struct {
	Host     string
	Port     int
	Path     string // WebSocket path, defaults to discovery.DefaultPath
	CertPath string // TLS certificate (optional, serves wss:// when set with KeyPath)
	KeyPath  string
	Device   string // Tracker name advertised and accepted in ?device=
	Instance string // mDNS instance name; empty disables advertising
}

// Server is a bridge emulator: it accepts WebSocket links and answers
// them with an emulated tracker, the way a BLE bridge relays a real one.
type Server struct {
	config   *Config
	tracker  *emulator.Tracker
	upgrader websocket.Upgrader

	listener   net.Listener
	httpServer *http.Server
	tlsConfig  *tls.Config
	advert     *discovery.Advertisement

	ctx    context.Context
	cancel context.CancelFunc

	wg          sync.WaitGroup
	mu          syncutil.Mutex
	activeConns map[string]*websocket.Conn
}

// New creates a new Server instance
func New(config *Config, tracker *emulator.Tracker) (*Server, error) {
	if tracker == nil {
		return nil, errors.New("server needs a tracker")
	}
	if config.Path == "" {
		config.Path = discovery.DefaultPath
	}

	var tlsConfig *tls.Config
	if config.CertPath != "" || config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:      config,
		tracker:     tracker,
		tlsConfig:   tlsConfig,
		ctx:         ctx,
		cancel:      cancel,
		activeConns: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Bridges are local tools; any origin may link
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start listens, advertises over mDNS when configured and blocks until ctx
// ends, a shutdown signal arrives or serving fails
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}

	logging.Info("Starting bridge emulator",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.config.Path),
		zap.String("device", s.config.Device),
		zap.Bool("tls", s.tlsConfig != nil),
	)

	if s.config.Instance != "" {
		port := listener.Addr().(*net.TCPAddr).Port
		advert, err := discovery.Advertise(s.config.Instance, port, s.config.Path, []string{s.config.Device}, version.Version)
		if err != nil {
			_ = listener.Close()
			return err
		}
		s.advert = advert
		logging.Info("Advertising bridge",
			zap.String("instance", s.config.Instance),
			zap.String("service", discovery.ServiceType),
		)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
	case <-ctx.Done():
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Serve accepts connections on l until Shutdown
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the listening address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.advert.Shutdown()
	s.cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Error("Error stopping HTTP server", zap.Error(err))
	}

	// Hijacked WebSocket connections are not tracked by http.Server
	s.mu.Lock()
	for addr, conn := range s.activeConns {
		logging.Info("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return nil
}

// GetActiveConnections returns the number of active links
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

func (s *Server) track(addr string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeConns[addr] = conn
}

func (s *Server) untrack(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeConns, addr)
}
