package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/banddump/internal/config"
	"github.com/muurk/banddump/internal/discovery"
	"github.com/muurk/banddump/internal/link"
	"github.com/muurk/banddump/internal/protocol"
)

// Tool command flags
var (
	scanTimeout  int
	encodeStart  uint16
	encodeFile   uint16
	outputFormat string
)

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "Scan timeout in seconds (default from config, else 5)")
	encodeCmd.Flags().Uint16Var(&encodeStart, "start", 0, "Start block for GetData/GetDataFinish")
	encodeCmd.Flags().Uint16Var(&encodeFile, "file-id", 1, "File selector for GetData/GetDataFinish")
	decodeCmd.Flags().StringVar(&outputFormat, "format", "text", "Output format (text, json)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configNicknameCmd)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(configCmd)
}

// scanCmd discovers bridges on the network
var scanCmd = &cobra.Command{
	Use:   "scan [tracker]",
	Short: "Scan for BLE bridges on the network",
	Long: `Scan for BLE bridges using mDNS/DNS-SD discovery.

Bridges advertise ` + discovery.ServiceType + ` with the names of the
trackers they can see. An optional tracker argument keeps only bridges
that see a tracker with a matching name prefix.`,
	Example: `  # Scan with the configured timeout
  banddump scan

  # Only bridges that see an ID107, waiting up to 10 seconds
  banddump scan ID107 --timeout 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	registry, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = registry.Preferences.DiscoverTimeoutDuration()
	if scanTimeout > 0 {
		scanner.Timeout = time.Duration(scanTimeout) * time.Second
	}
	if len(args) > 0 {
		scanner.NamePattern = args[0]
	} else {
		scanner.NamePattern = registry.Preferences.NamePrefix
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning for bridges (timeout: %s)...\n\n", scanner.Timeout)

	bridges, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(bridges) == 0 {
		fmt.Fprintln(out, "No bridges found.")
		fmt.Fprintln(out, "\nTroubleshooting:")
		fmt.Fprintln(out, "  - Ensure the bridge is running and on this network")
		fmt.Fprintln(out, "  - Wake the tracker so the bridge can see it")
		fmt.Fprintln(out, "  - Try increasing --timeout")
		fmt.Fprintln(out, "  - Use 'banddump download --bridge <url>' if multicast is blocked")
		return nil
	}

	fmt.Fprintf(out, "Found %d bridge(s):\n\n", len(bridges))
	for i, b := range bridges {
		fmt.Fprintf(out, "%d. %s\n", i+1, b.Instance)
		fmt.Fprintf(out, "   Host:     %s\n", b.Hostname)
		fmt.Fprintf(out, "   URL:      %s\n", b.URL())
		if v := b.GetMetadata(discovery.TxtVersion); v != "" {
			fmt.Fprintf(out, "   Version:  %s\n", v)
		}
		for _, name := range b.Match(scanner.NamePattern) {
			fmt.Fprintf(out, "   Tracker:  %s\n", registry.DisplayName(name))
			registry.UpdateTrackerLastSeen(name, b.URL())
		}
		fmt.Fprintln(out)
	}

	if err := registry.Save(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to save config: %v\n", err)
	}

	fmt.Fprintln(out, "Use 'banddump download <tracker>' to download a tracker's flash")
	return nil
}

// portsCmd lists serial ports
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports for BLE UART bridge dongles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := link.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found.")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

// encodeCmd prints the frame for a command
var encodeCmd = &cobra.Command{
	Use:   "encode <command>",
	Short: "Print the 20-byte frame for a tracker command",
	Long: `Print the hex frame the tracker expects for a command.

Known commands: ` + strings.Join(commandNames(), ", ") + `

Only GetVersion, NewPairing, GetDataInfo, GetData and GetDataFinish have a
known wire encoding; the others fail with "unsupported command".`,
	Example: `  banddump encode GetVersion
  banddump encode GetData --start 3 --file-id 1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := protocol.ParseCommandKind(args[0])
		if err != nil {
			return err
		}
		c := protocol.Command{Kind: kind, Start: encodeStart, File: encodeFile}
		f, err := protocol.Encode(c)
		if err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), f.Hex())
		return nil
	},
}

func commandNames() []string {
	var names []string
	for k := protocol.CmdReset; k <= protocol.CmdGetDataFinish; k++ {
		names = append(names, k.String())
	}
	return names
}

// decodedFrame is the decode command's output
type decodedFrame struct {
	Hex      string `json:"hex"`
	Opcode   byte   `json:"opcode"`
	Name     string `json:"name"`
	CRC      string `json:"crc"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
	Response string `json:"response,omitempty"`
}

// decodeCmd explains a frame received from a tracker
var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Check and decode a 20-byte frame from a tracker",
	Long: `Check the tag and CRC of a tracker frame and decode its contents.

Spaces and colons in the hex string are ignored.`,
	Example: `  banddump decode 7e49ffffffffffffffffffffffffffffffffefb7
  banddump decode "7e 05 00 00 00 0c 00 20 ff ff ff ff ff ff ff ff ff ff b0 3f" --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := protocol.ParseHex(strings.Join(args, ""))
		if err != nil {
			return err
		}
		d := decodeFrame(f)

		switch outputFormat {
		case "json":
			data, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		default:
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Opcode:   %d (%s)\n", d.Opcode, d.Name)
			fmt.Fprintf(out, "CRC:      %s\n", d.CRC)
			if d.Valid {
				fmt.Fprintln(out, "Valid:    yes")
			} else {
				fmt.Fprintf(out, "Valid:    no (%s)\n", d.Error)
			}
			if d.Response != "" {
				fmt.Fprintf(out, "Response: %s\n", d.Response)
			}
		}

		if !d.Valid {
			return errors.New("invalid frame")
		}
		return nil
	},
}

func decodeFrame(f protocol.Frame) decodedFrame {
	d := decodedFrame{
		Hex:    f.Hex(),
		Opcode: f.Opcode(),
		Name:   protocol.OpcodeName(f.Opcode()),
		CRC:    fmt.Sprintf("0x%04x", f.CRC()),
	}

	var err error
	switch f.Opcode() {
	case protocol.OpDataInfo:
		var info protocol.DataInfo
		if info, err = protocol.DecodeDataInfo(f[:]); err == nil {
			d.Response = info.String()
		}
	case protocol.OpDataBlock:
		// Block frames only carry a CRC once all 206 are joined
		if f[0] != protocol.Tag {
			err = &protocol.FrameError{Err: protocol.ErrBadTag, Length: protocol.FrameSize, Tag: f[0]}
			break
		}
		d.Response = "first frame of a data block"
	default:
		var resp protocol.Response
		if resp, err = protocol.Decode(f[:]); err == nil {
			d.Response = fmt.Sprint(resp)
		}
	}

	if err != nil {
		d.Error = err.Error()
		return d
	}
	d.Valid = true
	return d
}

// configCmd groups config file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		registry, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		data, err := registry.Marshal(path)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefaultConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
		return nil
	},
}

var configNicknameCmd = &cobra.Command{
	Use:   "nickname <tracker> <nickname>",
	Short: "Give a tracker a friendly name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		registry.SetTrackerNickname(args[0], args[1])
		return registry.Save()
	},
}
