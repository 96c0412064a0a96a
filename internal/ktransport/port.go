// Package ktransport implements the byte-oriented transport layer (spec.md
// §6, component C1): KISS framing over a serial TNC, a pseudo-terminal
// loopback for testing, USB-serial device discovery, PTT keying, and the
// optional Hamlib squelch-cycle adjunct used by klink's retry workaround.
//
// Grounded in the teacher's src/kissserial.go and src/serial_port.go (the
// read-one-byte-at-a-time serial KISS interface) and src/ptt.go (the
// output-line keying logic), reworked onto real io.ReadWriter transports
// instead of the teacher's cgo termios calls.
package ktransport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/k1fsy/station-samoyed/internal/kkiss"
)

// FrameHandler receives one decoded AX.25 frame (KISS framing and escapes
// already stripped) read from a Port.
type FrameHandler func(frame []byte)

// BusySignal reports whether the channel is presently busy (DCD/squelch),
// for carrier sense (spec.md §4.6.1). Transports without a real busy
// signal leave this nil and are always reported idle.
type BusySignal func() bool

// Port adapts an io.ReadWriter byte stream to klink.Transport: it KISS-wraps
// outbound AX.25 frames and KISS-unwraps the inbound byte stream back into
// frames, mirroring the teacher's kissserial_send_rec_packet/kissserial_get
// pair but without the teacher's global mutable state.
type Port struct {
	rw      io.ReadWriter
	kissPort int
	onFrame FrameHandler
	busy    BusySignal
	log     *log.Logger

	mu sync.Mutex
}

// NewPort wraps rw as a KISS transport. kissPort is the KISS port/channel
// number placed in the command byte (spec.md's C1 is single-channel, so
// this is almost always 0). onFrame is invoked for every frame decoded from
// the inbound stream; it must not block.
func NewPort(rw io.ReadWriter, kissPort int, onFrame FrameHandler, logger *log.Logger) *Port {
	return &Port{rw: rw, kissPort: kissPort, onFrame: onFrame, log: logger}
}

// SetBusySignal installs the channel-busy probe (e.g. a PTT/DCD line read),
// used by carrier sense. Optional.
func (p *Port) SetBusySignal(busy BusySignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = busy
}

// WriteFrame implements klink.Transport: KISS-encapsulates frame and writes
// it whole, matching kissserial_send_rec_packet's "this write can block"
// behavior on the underlying stream.
func (p *Port) WriteFrame(frame []byte) error {
	wire := kkiss.Wrap(frame, p.kissPort)
	n, err := p.rw.Write(wire)
	if err != nil {
		return fmt.Errorf("ktransport: write: %w", err)
	}
	if n != len(wire) {
		return fmt.Errorf("ktransport: short write (%d of %d bytes)", n, len(wire))
	}
	return nil
}

// ChannelBusy implements klink.Transport.
func (p *Port) ChannelBusy() bool {
	p.mu.Lock()
	busy := p.busy
	p.mu.Unlock()
	if busy == nil {
		return false
	}
	return busy()
}

// Listen reads the underlying stream until ctx is cancelled or a read
// error occurs, feeding bytes through a kkiss.Reassembler and dispatching
// each decoded frame to onFrame — the idiomatic replacement for the
// teacher's kissserial_listen_thread byte-at-a-time loop.
func (p *Port) Listen(ctx context.Context) error {
	r := bufio.NewReaderSize(p.rw, 4096)
	reassembler := &kkiss.Reassembler{}
	buf := make([]byte, 1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, raw := range reassembler.Feed(buf[:n]) {
				_, payload, ok := kkiss.Unwrap(raw)
				if !ok {
					if p.log != nil {
						p.log.Warn("discarding malformed KISS frame")
					}
					continue
				}
				if p.onFrame != nil {
					p.onFrame(payload)
				}
			}
		}
		if err != nil {
			if p.log != nil {
				p.log.Error("port read loop ended", "err", err)
			}
			return err
		}
	}
}
