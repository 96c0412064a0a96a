package ktransport

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// PTYPort is a Port backed by a pseudo-terminal pair, the non-cgo
// equivalent of the teacher's kisspt_open_pt (src/kiss.go): a virtual KISS
// TNC endpoint a client application (Xastir, a test harness) can open at
// the slave device path instead of a real serial port.
type PTYPort struct {
	*Port
	Master *os.File
	Slave  *os.File
}

// OpenPTY creates a pseudo-terminal pair and wraps the master side as a
// Port; a client connects to Slave.Name(). Mirrors kisspt_open_pt, minus
// the teacher's /tmp/kisstnc symlink convenience (callers can os.Symlink
// Slave.Name() themselves if they want it).
func OpenPTY(kissPort int, onFrame FrameHandler, logger *log.Logger) (*PTYPort, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("ktransport: open pty: %w", err)
	}
	return &PTYPort{
		Port:   NewPort(master, kissPort, onFrame, logger),
		Master: master,
		Slave:  slave,
	}, nil
}

// Close releases both ends of the pty pair.
func (p *PTYPort) Close() error {
	errSlave := p.Slave.Close()
	errMaster := p.Master.Close()
	if errMaster != nil {
		return errMaster
	}
	return errSlave
}

// LoopbackPair wires two Ports together over a single pty, one reading
// what the other writes, for integration tests that exercise a Transport
// without any real hardware. The caller still owns calling Listen on both.
func LoopbackPair(kissPortA, kissPortB int, onFrameA, onFrameB FrameHandler, logger *log.Logger) (a, b *Port, closeFn func() error, err error) {
	master, slave, openErr := pty.Open()
	if openErr != nil {
		return nil, nil, nil, fmt.Errorf("ktransport: open loopback pty: %w", openErr)
	}
	// A new pty starts in cooked mode (line buffering, echo, signal
	// characters); put the slave in raw mode so bytes pass through as-is.
	if rc, scErr := slave.SyscallConn(); scErr == nil {
		_ = rc.Control(func(fd uintptr) {
			tio, tcErr := unix.IoctlGetTermios(int(fd), unix.TCGETS)
			if tcErr != nil {
				return
			}
			tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
			tio.Oflag &^= unix.OPOST
			tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
			tio.Cflag &^= unix.CSIZE | unix.PARENB
			tio.Cflag |= unix.CS8
			_ = unix.IoctlSetTermios(int(fd), unix.TCSETS, tio)
		})
	}
	a = NewPort(master, kissPortA, onFrameA, logger)
	b = NewPort(slave, kissPortB, onFrameB, logger)
	closeFn = func() error {
		errSlave := slave.Close()
		errMaster := master.Close()
		if errMaster != nil {
			return errMaster
		}
		return errSlave
	}
	return a, b, closeFn, nil
}
