package ktransport

import (
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"
)

// TCPPort is a Port backed by a TCP connection to a network-attached TNC
// (spec.md §6 C1: "...BLE/Serial/TCP"), the same wire protocol as the
// serial and pty transports since KISS-over-TCP only changes the carrier.
type TCPPort struct {
	*Port
	conn net.Conn
}

// DialTCP connects to a KISS-over-TCP TNC (e.g. a network radio bridge, or
// another copy of this station's own KISS-TCP server) at addr.
func DialTCP(addr string, kissPort int, onFrame FrameHandler, logger *log.Logger) (*TCPPort, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ktransport: dial %s: %w", addr, err)
	}
	return &TCPPort{Port: NewPort(conn, kissPort, onFrame, logger), conn: conn}, nil
}

// Close closes the TCP connection.
func (t *TCPPort) Close() error {
	return t.conn.Close()
}
