package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/muurk/banddump/internal/link"
	"github.com/muurk/banddump/internal/protocol"
)

var inspectMaxFailures int

func init() {
	inspectCmd.Flags().IntVar(&inspectMaxFailures, "max-failures", 10, "Failures to list in detail")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <capture.jsonl|directory>",
	Short: "Check every frame and block in capture files",
	Long: `Validate capture files written by 'banddump download --capture'.

Every inbound frame is checked. Frames answering a GetData are joined into
blocks and each block CRC is verified. A directory argument inspects all
*.jsonl files in it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := captureFiles(args[0])
		if err != nil {
			return err
		}

		stats := newCaptureStats()
		for _, file := range files {
			if err := stats.addFile(file); err != nil {
				return err
			}
		}
		stats.print(cmd.OutOrStdout(), inspectMaxFailures)
		return nil
	},
}

// captureFailure is one frame or block that did not check out
type captureFailure struct {
	File  string
	Seq   int
	Hex   string
	Error string
}

// captureStats accumulates results over capture files
type captureStats struct {
	Files        int
	Records      int
	Commands     map[string]int
	Responses    map[string]int
	BlocksOK     int
	BlocksFailed int
	Partial      int // Blocks cut off by the end of a capture
	Failures     []captureFailure
}

func newCaptureStats() *captureStats {
	return &captureStats{
		Commands:  make(map[string]int),
		Responses: make(map[string]int),
	}
}

func captureFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	files, err := filepath.Glob(filepath.Join(path, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no capture files in %s", path)
	}
	return files, nil
}

func (s *captureStats) addFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := link.ReadCapture(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.Files++
	s.addRecords(path, records)
	return nil
}

// addRecords walks one capture. Inbound frames after a GetData belong to
// the block until PacketsInBlock of them have arrived.
func (s *captureStats) addRecords(file string, records []link.CaptureRecord) {
	var (
		buf     protocol.BlockBuffer
		inBlock bool
		first   int
	)

	fail := func(seq int, hex string, err error) {
		s.Failures = append(s.Failures, captureFailure{File: file, Seq: seq, Hex: hex, Error: err.Error()})
	}

	for _, rec := range records {
		s.Records++

		f, err := rec.Frame()
		if err != nil {
			fail(rec.Seq, rec.Hex, err)
			continue
		}

		if rec.Direction == link.DirectionTx {
			if inBlock {
				s.Partial++
			}
			inBlock = f.Opcode() == protocol.OpGetData
			if inBlock {
				buf.Reset()
				first = rec.Seq
			}
			s.Commands[protocol.CommandOpcodeName(f.Opcode())]++
			continue
		}

		if inBlock {
			_ = buf.Append(f)
			if !buf.Complete() {
				continue
			}
			inBlock = false
			s.Responses[protocol.OpcodeName(protocol.OpDataBlock)]++
			if _, err := buf.Reassemble(); err != nil {
				s.BlocksFailed++
				fail(first, "", err)
			} else {
				s.BlocksOK++
			}
			continue
		}

		s.Responses[protocol.OpcodeName(f.Opcode())]++
		if f.Opcode() == protocol.OpDataInfo {
			_, err = protocol.DecodeDataInfo(f[:])
		} else {
			_, err = protocol.Decode(f[:])
		}
		if err != nil {
			fail(rec.Seq, rec.Hex, err)
		}
	}

	if inBlock {
		s.Partial++
	}
}

func (s *captureStats) print(out io.Writer, maxFailures int) {
	fmt.Fprintln(out, "========================================")
	fmt.Fprintln(out, "CAPTURE INSPECTION")
	fmt.Fprintln(out, "========================================")
	fmt.Fprintf(out, "Files:          %d\n", s.Files)
	fmt.Fprintf(out, "Records:        %d\n", s.Records)
	fmt.Fprintf(out, "Blocks OK:      %d\n", s.BlocksOK)
	fmt.Fprintf(out, "Blocks failed:  %d\n", s.BlocksFailed)
	if s.Partial > 0 {
		fmt.Fprintf(out, "Blocks partial: %d\n", s.Partial)
	}

	printCounts(out, "COMMANDS", s.Commands)
	printCounts(out, "RESPONSES", s.Responses)

	if len(s.Failures) == 0 {
		return
	}
	fmt.Fprintln(out, "\n----------------------------------------")
	fmt.Fprintf(out, "FAILURES (%d total)\n", len(s.Failures))
	fmt.Fprintln(out, "----------------------------------------")
	for i, f := range s.Failures {
		if i >= maxFailures {
			fmt.Fprintf(out, "(%d more not shown)\n", len(s.Failures)-maxFailures)
			break
		}
		fmt.Fprintf(out, "%s seq %d: %s\n", filepath.Base(f.File), f.Seq, f.Error)
		if f.Hex != "" {
			fmt.Fprintf(out, "  %s\n", f.Hex)
		}
	}
}

func printCounts(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "\n----------------------------------------")
	fmt.Fprintln(out, title)
	fmt.Fprintln(out, "----------------------------------------")
	for _, name := range names {
		fmt.Fprintf(out, "%-16s %d\n", name, counts[name])
	}
}
