package ktransport

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/pkg/term"

	"golang.org/x/sys/unix"
)

// SerialPort is a Port backed by a real serial device, grounded in the
// teacher's serial_port_open/serial_port_get1/serial_port_write trio
// (src/serial_port.go), reimplemented with github.com/pkg/term instead of
// the teacher's termios cgo calls.
type SerialPort struct {
	*Port
	dev *term.Term
}

// OpenSerial opens device at the given baud rate in raw mode, the Go
// equivalent of the teacher's serial_port_open for the non-Windows path.
// kissPort is the KISS channel number the port will tag outbound frames
// with.
func OpenSerial(device string, baud int, kissPort int, onFrame FrameHandler, logger *log.Logger) (*SerialPort, error) {
	dev, err := term.Open(device, term.Speed(baud), term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("ktransport: open serial %s: %w", device, err)
	}
	// Disable the inter-character read timeout: kissserial_get/Listen
	// need blocking byte-at-a-time semantics, not the library's default
	// read deadline.
	if err := dev.SetReadTimeout(0); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("ktransport: configure serial %s: %w", device, err)
	}

	sp := &SerialPort{Port: NewPort(dev, kissPort, onFrame, logger), dev: dev}
	return sp, nil
}

// Close releases the underlying device, matching serial_port_close.
func (s *SerialPort) Close() error {
	return s.dev.Close()
}

// EnableDCDBusySignal wires the serial line's DCD modem-control signal in
// as the port's channel-busy probe, for TNCs that assert DCD on the serial
// line itself instead of over KISS SetHardware commands.
func (s *SerialPort) EnableDCDBusySignal() {
	fd := int(s.dev.Fd())
	s.SetBusySignal(func() bool {
		busy, err := dcdFromCTS(fd)
		return err == nil && busy
	})
}

// dcdFromCTS reads the serial line's CTS/DCD modem-control signal as a
// channel-busy proxy for transports that assert it (e.g. a TNC with DCD
// wired through), using the raw fd ioctl rather than pkg/term's higher
// level API, mirroring the termios-level detail the teacher's ptt.go
// performs for PTT on the same family of devices.
func dcdFromCTS(fd int) (bool, error) {
	status, err := unix.IoctlGetInt(fd, unix.TIOCMGET)
	if err != nil {
		return false, err
	}
	return status&unix.TIOCM_CD != 0, nil
}
