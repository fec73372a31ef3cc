package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/banddump/internal/config"
	"github.com/muurk/banddump/internal/discovery"
	"github.com/muurk/banddump/internal/link"
	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/session"
	"github.com/muurk/banddump/internal/storage"
	"github.com/muurk/banddump/internal/ui"
)

// Download command flags
var (
	bridgeURL   string
	serialPort  string
	baudRate    int
	outDir      string
	outFile     string
	recvTimeout time.Duration
	fileID      uint16
	finishAck   bool
	capturePath string
	force       bool
	insecureTLS bool
)

func init() {
	downloadCmd.Flags().StringVar(&bridgeURL, "bridge", "", "WebSocket bridge URL (ws:// or wss://), skips discovery")
	downloadCmd.Flags().StringVar(&serialPort, "serial", "", "Serial port of a BLE UART bridge dongle, skips discovery")
	downloadCmd.Flags().IntVar(&baudRate, "baud", 0, fmt.Sprintf("Serial bridge baud rate (default %d)", link.DefaultBaudRate))
	downloadCmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default from config, else current directory)")
	downloadCmd.Flags().StringVar(&outFile, "name", "", "Image file name (default <tracker>-<time>.bin)")
	downloadCmd.Flags().DurationVar(&recvTimeout, "timeout", 0, "Give up when no frame arrives for this long (0 waits forever)")
	downloadCmd.Flags().Uint16Var(&fileID, "file-id", 0, "File selector sent with GetData (default from config, else 1)")
	downloadCmd.Flags().BoolVar(&finishAck, "finish-ack", false, "Send GetDataFinish once the image is saved")
	downloadCmd.Flags().StringVar(&capturePath, "capture", "", "Write every frame to this JSON lines file")
	downloadCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing image without asking")
	downloadCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "Skip certificate verification for wss:// bridges")

	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download [tracker]",
	Short: "Download a tracker's flash image",
	Long: `Pair with a tracker and download its activity flash.

The tracker is reached through, in order of preference:
  1. --serial, a BLE UART dongle in transparent mode
  2. --bridge, a WebSocket bridge URL
  3. the bridge or port remembered for this tracker in the config file
  4. the first bridge found over mDNS that sees a matching tracker

The tracker argument is matched against advertised names by
case-insensitive prefix. Without it, the config name_prefix is used.

The image is written atomically together with a YAML manifest holding its
size, SHA-256 and the data range the tracker reported.`,
	Example: `  # Discover a bridge and download from the first ID107 it sees
  banddump download ID107

  # Use a known bridge and write into ./dumps
  banddump download "ID107 HR" --bridge ws://bandbridge.local:8080/link -o dumps

  # Serial dongle, capture frames for later replay
  banddump download --serial /dev/ttyUSB0 --capture session.jsonl

  # Abort when the tracker goes quiet for 10 seconds
  banddump download ID107 --timeout 10s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

// target is a resolved route to a tracker
type target struct {
	transport link.Transport
	device    string
	endpoint  string // what the transport connects to, for display
	bridgeURL string // bridge base URL to remember
	port      string // serial port to remember
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	prefs := registry.Preferences

	device := ""
	if len(args) > 0 {
		device = args[0]
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())

	tgt, err := resolveTarget(ctx, registry, device)
	if err != nil {
		return err
	}

	dir := outDir
	if dir == "" {
		dir = prefs.OutputDir
	}
	name := outFile
	if name == "" {
		name = storage.ImageName(tgt.device, time.Now())
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil && !force {
		if !ui.IsTerminal(os.Stdin) || !printer.ConfirmOverwrite(os.Stdin, path) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	transport := tgt.transport
	var recorder *link.Recorder
	if capturePath != "" {
		f, err := os.Create(capturePath)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		recorder = link.NewRecorder(transport, f)
		transport = recorder
	}

	opts := []session.Option{
		session.WithLogger(logging.GetLogger()),
		session.WithReceiveTimeout(pick(cmd, "timeout", recvTimeout, prefs.ReceiveTimeoutDuration())),
		session.WithFileID(pick(cmd, "file-id", fileID, prefs.FileID)),
		session.WithFinishAck(pick(cmd, "finish-ack", finishAck, prefs.FinishAck)),
	}

	printer.PrintHeader("Flash download", "banddump download",
		ui.Field{Key: "Tracker", Value: registry.DisplayName(orDefault(tgt.device, "(any)"))},
		ui.Field{Key: "Link", Value: tgt.endpoint},
		ui.Field{Key: "Output", Value: path},
	)

	sink := storage.NewFileSink(dir, name)
	res, err := runSession(ctx, printer, transport, sink, opts...)

	if recorder != nil {
		if rerr := recorder.Err(); rerr != nil {
			logging.Warn("Capture incomplete", zap.String("path", capturePath), zap.Error(rerr))
		}
	}

	if err != nil {
		printer.PrintError("Flash download", err, ui.Troubleshoot(err))
		return err
	}

	manifest := storage.NewManifest(tgt.device, res.Firmware, res.Info, res.Image)
	manifest.Link = tgt.endpoint
	manifest.Duration = res.Duration.Round(time.Millisecond).String()
	manifestPath, err := storage.WriteManifest(sink.Path(), manifest)
	if err != nil {
		logging.Warn("Failed to write manifest", zap.Error(err))
	}

	if tgt.device != "" {
		registry.RecordDownload(tgt.device, res.Firmware, res.Info, sink.Path())
		registry.UpdateTrackerLastSeen(tgt.device, tgt.bridgeURL)
		if tgt.port != "" {
			registry.EnsureTracker(tgt.device).SerialPort = tgt.port
		}
		if err := registry.Save(); err != nil {
			logging.Warn("Failed to save config", zap.Error(err))
		}
	}

	summary := ui.DownloadSummary(res, sink.Path())
	if manifestPath != "" {
		summary.AddDetail("Manifest", manifestPath)
	}
	if recorder != nil {
		summary.AddDetail("Capture", fmt.Sprintf("%s (%d frames)", capturePath, recorder.Frames()))
	}
	printer.PrintResult(summary)
	return nil
}

// resolveTarget picks the transport for device following the order in the
// download help text
func resolveTarget(ctx context.Context, registry *config.Registry, device string) (*target, error) {
	prefs := registry.Preferences

	serialTarget := func(port string) *target {
		baud := baudRate
		if baud == 0 {
			baud = prefs.BaudRate
		}
		return &target{
			transport: link.NewSerial(port, baud),
			device:    device,
			endpoint:  "serial:" + port,
			port:      port,
		}
	}
	bridgeTarget := func(base string) (*target, error) {
		u, err := discovery.WithDevice(base, device)
		if err != nil {
			return nil, err
		}
		ws := link.NewWebSocket(u, nil)
		if insecureTLS {
			ws.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // opt-in for self-signed bridges
		}
		return &target{transport: ws, device: device, endpoint: u, bridgeURL: base}, nil
	}

	switch {
	case serialPort != "":
		return serialTarget(serialPort), nil
	case bridgeURL != "":
		return bridgeTarget(bridgeURL)
	}

	if known := registry.GetTracker(device); device != "" && known != nil {
		switch {
		case known.SerialPort != "":
			logging.Debug("Using remembered serial port", zap.String("port", known.SerialPort))
			return serialTarget(known.SerialPort), nil
		case known.BridgeURL != "":
			logging.Debug("Using remembered bridge", zap.String("url", known.BridgeURL))
			return bridgeTarget(known.BridgeURL)
		}
	}

	pattern := device
	if pattern == "" {
		pattern = prefs.NamePrefix
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = prefs.DiscoverTimeoutDuration()
	scanner.NamePattern = pattern

	bridge, name, err := scanner.FindTracker(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("no bridge sees a tracker matching %q (use --bridge or --serial): %w", pattern, err)
	}
	logging.Info("Found tracker", zap.String("tracker", name), zap.Stringer("bridge", bridge))

	device = name
	return bridgeTarget(bridge.URL())
}

// runSession runs s while rendering its events, and waits for the display
// to finish before returning
func runSession(ctx context.Context, printer *ui.Printer, t link.Transport, sink session.Sink, opts ...session.Option) (*session.Result, error) {
	s := session.New(t, sink, opts...)

	done := make(chan *ui.DownloadView, 1)
	go func() {
		view, err := ui.Watch(ctx, s.Events(), printer.Writer())
		if err != nil {
			logging.Debug("Progress display stopped", zap.Error(err))
		}
		done <- view
	}()

	res, err := s.Run(ctx)
	view := <-done
	view.Finish(err)
	printer.Newline()

	if errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("download interrupted: %w", err)
	}
	return res, err
}

// pick returns the flag value when it was set on the command line and the
// configured value otherwise
func pick[T any](cmd *cobra.Command, flag string, value, configured T) T {
	if cmd.Flags().Changed(flag) {
		return value
	}
	return configured
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
