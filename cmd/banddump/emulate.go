package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/banddump/internal/discovery"
	"github.com/muurk/banddump/internal/emulator"
	"github.com/muurk/banddump/internal/link"
	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/server"
)

// Emulate command flags
var (
	emuHost          string
	emuPort          int
	emuPath          string
	emuDevice        string
	emuBlocks        int
	emuImage         string
	emuFirmware      string
	emuInstance      string
	emuCert          string
	emuKey           string
	emuSerial        string
	emuCorruptBlock  int
	emuDisconnectAft int
)

func init() {
	emulateCmd.Flags().StringVar(&emuHost, "host", "", "Listen address (empty = all interfaces)")
	emulateCmd.Flags().IntVar(&emuPort, "port", discovery.DefaultPort, "Listen port")
	emulateCmd.Flags().StringVar(&emuPath, "path", discovery.DefaultPath, "WebSocket path")
	emulateCmd.Flags().StringVar(&emuDevice, "device", "ID107 HR", "Tracker name to advertise and accept")
	emulateCmd.Flags().IntVar(&emuBlocks, "blocks", 4, "Size of the generated flash image in blocks")
	emulateCmd.Flags().StringVar(&emuImage, "image", "", "Serve this image file instead of a generated one")
	emulateCmd.Flags().StringVar(&emuFirmware, "firmware", emulator.DefaultFirmware, "Firmware version to report")
	emulateCmd.Flags().StringVar(&emuInstance, "mdns", "", "Advertise over mDNS with this instance name")
	emulateCmd.Flags().StringVar(&emuCert, "cert", "", "TLS certificate file (serves wss://)")
	emulateCmd.Flags().StringVar(&emuKey, "key", "", "TLS private key file")
	emulateCmd.Flags().StringVar(&emuSerial, "serial", "", "Answer on this serial port instead of WebSocket")
	emulateCmd.Flags().IntVar(&emuCorruptBlock, "corrupt-block", -1, "Flip a bit in this block's payload")
	emulateCmd.Flags().IntVar(&emuDisconnectAft, "disconnect-after", 0, "Drop the link after this many frames")

	rootCmd.AddCommand(emulateCmd)
}

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Run an emulated tracker behind a bridge",
	Long: `Run a tracker emulator that answers the download protocol.

By default it behaves like a WebSocket BLE bridge with one tracker in
range: each link gets the handshake, the data range and the 206-frame
blocks of an in-memory flash image. With --serial it answers on a serial
port instead, which pairs with a second port of a null-modem cable.

Faults can be injected to exercise the downloader's error paths.`,
	Example: `  # Bridge on :8080 advertised over mDNS
  banddump emulate --mdns bandbridge-test

  # Serve a saved image over wss://
  banddump emulate --image band.bin --cert cert.pem --key key.pem

  # Corrupt block 2 to see a BlockTransferFailed
  banddump emulate --blocks 8 --corrupt-block 2`,
	Args: cobra.NoArgs,
	RunE: runEmulate,
}

func runEmulate(cmd *cobra.Command, args []string) error {
	image, err := emulatorImage()
	if err != nil {
		return err
	}

	opts := []emulator.Option{
		emulator.WithFirmware(emuFirmware),
		emulator.WithLogger(logging.GetLogger().Named("emulator")),
	}
	if emuCorruptBlock >= 0 {
		opts = append(opts, emulator.WithCorruption(emulator.Corruption{Block: emuCorruptBlock, Frame: 1, Offset: 5, Mask: 0x01}))
	}
	if emuDisconnectAft > 0 {
		opts = append(opts, emulator.WithDisconnectAfter(emuDisconnectAft))
	}

	tracker, err := emulator.New(image, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Emulating %q: firmware %s, %s\n", emuDevice, tracker.Firmware(), tracker.Info())

	if emuSerial != "" {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		port := link.NewSerial(emuSerial, baudRate)
		if err := port.Connect(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "Answering on %s\n", emuSerial)
		return tracker.Serve(ctx, port)
	}

	srv, err := server.New(&server.Config{
		Host:     emuHost,
		Port:     emuPort,
		Path:     emuPath,
		CertPath: emuCert,
		KeyPath:  emuKey,
		Device:   emuDevice,
		Instance: emuInstance,
	}, tracker)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Listening on port %d, path %s (Ctrl-C to stop)\n", emuPort, emuPath)
	return srv.Start(cmd.Context())
}

func emulatorImage() ([]byte, error) {
	if emuImage == "" {
		if emuBlocks <= 0 {
			return nil, fmt.Errorf("--blocks must be positive, got %d", emuBlocks)
		}
		return emulator.PatternImage(emuBlocks), nil
	}

	image, err := os.ReadFile(emuImage)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	logging.Info("Loaded image", zap.String("path", emuImage), zap.Int("bytes", len(image)))
	return image, nil
}
