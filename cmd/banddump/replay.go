package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/muurk/banddump/internal/link"
	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/session"
	"github.com/muurk/banddump/internal/storage"
	"github.com/muurk/banddump/internal/ui"
)

// Replay command flags
var (
	replayOut      string
	replayManifest string
	replayFileID   uint16
	replayFinish   bool
)

func init() {
	replayCmd.Flags().StringVarP(&replayOut, "out", "o", "", "Write the reassembled image to this file")
	replayCmd.Flags().StringVar(&replayManifest, "manifest", "", "Check the image against a manifest written by download")
	replayCmd.Flags().Uint16Var(&replayFileID, "file-id", 1, "File selector the capture was made with")
	replayCmd.Flags().BoolVar(&replayFinish, "finish-ack", false, "The capture ends with a GetDataFinish exchange")

	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <capture.jsonl>",
	Short: "Re-run a download from a capture file",
	Long: `Feed the tracker frames of a capture file through the download logic.

Captures are written by 'banddump download --capture'. Replaying one checks
every frame and block CRC again without a tracker, and can rebuild the
image or compare it with a manifest.`,
	Example: `  # Check a capture decodes cleanly
  banddump replay session.jsonl

  # Rebuild the image and compare with the saved manifest
  banddump replay session.jsonl -o again.bin --manifest band-20261019T101500Z.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	records, err := link.ReadCapture(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	replay, err := link.NewReplay(records)
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.PrintHeader("Capture replay", "banddump replay",
		ui.Field{Key: "Capture", Value: args[0]},
		ui.Field{Key: "Frames", Value: fmt.Sprintf("%d recorded, %d inbound", len(records), replay.Remaining())},
	)

	var sink session.Sink = session.SinkFunc(func([]byte) error { return nil })
	var fileSink *storage.FileSink
	if replayOut != "" {
		fileSink = storage.NewFileSink(filepath.Dir(replayOut), filepath.Base(replayOut))
		sink = fileSink
	}

	res, err := runSession(cmd.Context(), printer, replay, sink,
		session.WithLogger(logging.GetLogger()),
		session.WithFileID(replayFileID),
		session.WithFinishAck(replayFinish),
	)
	if err != nil {
		printer.PrintError("Capture replay", err, ui.Troubleshoot(err))
		return err
	}

	path := ""
	if fileSink != nil {
		path = fileSink.Path()
	}
	summary := ui.DownloadSummary(res, path)
	summary.Title = "Capture replayed"
	if n := replay.Remaining(); n > 0 {
		summary.AddDetail("Unused", fmt.Sprintf("%d trailing frames", n))
	}

	if replayManifest != "" {
		m, err := storage.ReadManifest(replayManifest)
		if err != nil {
			return err
		}
		if err := m.Verify(res.Image); err != nil {
			printer.PrintError("Manifest check", err, []string{
				"The capture and the manifest come from different downloads",
			})
			return err
		}
		summary.AddDetail("Manifest", "matches "+replayManifest)
	}

	printer.PrintResult(summary)
	return nil
}
