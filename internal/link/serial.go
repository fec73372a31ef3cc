package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/protocol"
)

const (
	// DefaultBaudRate matches the transparent-mode default of common BLE
	// UART dongles (HM-10, JDY-08)
	DefaultBaudRate = 115200

	// Read timeout per port read; Recv loops until a full frame or ctx
	serialPollInterval = 50 * time.Millisecond
)

// Serial is a Transport to a BLE UART dongle in transparent mode. The dongle
// forwards writes to the tracker's control characteristic and notification
// payloads back as raw bytes, so frames arrive as a byte stream and are cut
// at 20-byte boundaries.
type Serial struct {
	portName string
	mode     *serial.Mode
	port     serial.Port

	pending []byte
	closed  bool
}

// NewSerial creates a transport for the dongle on portName. A zero baud
// rate selects DefaultBaudRate.
func NewSerial(portName string, baudRate int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		portName: portName,
		mode: &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
}

// ListPorts returns the serial ports present on this machine
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the port and drops any stale bytes from a previous session
func (s *Serial) Connect(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("serial connect: %w", ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	port, err := serial.Open(s.portName, s.mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.portName, err)
	}
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set serial read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		logging.Warn("Failed to flush serial input",
			zap.String("port", s.portName),
			zap.Error(err),
		)
	}

	s.port = port
	logging.LogLinkEvent(s.portName, "serial_opened")
	return nil
}

// Send writes one frame
func (s *Serial) Send(ctx context.Context, f protocol.Frame) error {
	if s.port == nil {
		return ErrNotConnected
	}
	if s.closed {
		return fmt.Errorf("serial send: %w", ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := s.port.Write(f[:])
	if err != nil {
		return s.portError("write", err)
	}
	if n != protocol.FrameSize {
		return fmt.Errorf("serial write: short write %d/%d bytes", n, protocol.FrameSize)
	}
	return nil
}

// Recv reads until a full frame is buffered
func (s *Serial) Recv(ctx context.Context) (protocol.Frame, error) {
	if s.port == nil {
		return protocol.Frame{}, ErrNotConnected
	}

	buf := make([]byte, 256)
	for len(s.pending) < protocol.FrameSize {
		if s.closed {
			return protocol.Frame{}, fmt.Errorf("serial recv: %w", ErrClosed)
		}
		if err := ctx.Err(); err != nil {
			return protocol.Frame{}, err
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return protocol.Frame{}, s.portError("read", err)
		}
		// n == 0 is a read timeout, poll ctx again
		s.pending = append(s.pending, buf[:n]...)
	}

	f, err := protocol.FrameFromBytes(s.pending[:protocol.FrameSize])
	s.pending = s.pending[protocol.FrameSize:]
	return f, err
}

func (s *Serial) portError(op string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("serial %s: %w (%v)", op, ErrClosed, err)
	}
	return fmt.Errorf("serial %s on %s: %w", op, s.portName, err)
}

// Close closes the port
func (s *Serial) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.port == nil {
		return nil
	}

	logging.LogLinkEvent(s.portName, "serial_closed")
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("serial close failed: %w", err)
	}
	return nil
}

// Type implements Transport
func (*Serial) Type() Type {
	return TypeSerial
}
