// Package kbridge implements the KISS-TCP and AGWPE network bridge
// servers (spec.md §4.10, component C11), and their mDNS advertisement.
//
// Grounded in the teacher's src/kissnet.go (single-client-at-a-time TCP
// KISS service, forced-RST disconnect) and src/agwpe.go (the 36-byte
// AGWPE header struct), with the command dispatch rebuilt from
// spec.md's literal command table since the teacher's AGWPE port was an
// unfinished cgo stub.
package kbridge

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/k1fsy/station-samoyed/internal/kkiss"
)

// FrameWriter sends a raw AX.25 frame out over the transport, the same
// capability klink.Transport exposes, named locally so the KISS-TCP
// bridge depends on that one method only.
type FrameWriter interface {
	WriteFrame(frame []byte) error
}

// KISSBridge is the KISS-TCP server from spec.md §4.10: a single client
// at a time, bytes from the client go straight to the transport, every
// pipeline frame goes straight to the client.
type KISSBridge struct {
	listener net.Listener
	tx       FrameWriter
	log      *log.Logger

	mu     sync.Mutex
	client net.Conn
}

// ListenKISSBridge opens the TCP listener for the bridge. Call Serve to
// start accepting.
func ListenKISSBridge(addr string, tx FrameWriter, logger *log.Logger) (*KISSBridge, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("kbridge: listen %s: %w", addr, err)
	}
	return &KISSBridge{listener: ln, tx: tx, log: logger}, nil
}

// Addr reports the bound listen address.
func (b *KISSBridge) Addr() net.Addr { return b.listener.Addr() }

// Serve accepts connections until ctx is cancelled, one at a time;
// additional connection attempts while a client is already attached are
// rejected immediately.
func (b *KISSBridge) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = b.listener.Close()
	}()

	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		b.mu.Lock()
		busy := b.client != nil
		if !busy {
			b.client = conn
		}
		b.mu.Unlock()

		if busy {
			_ = conn.Close()
			continue
		}

		go b.serveClient(ctx, conn)
	}
}

// DeliverFrame implements kpipeline.BridgeSink: every frame the RX
// pipeline processes is written verbatim (KISS-wrapped) to the attached
// client, if any.
func (b *KISSBridge) DeliverFrame(raw []byte) {
	b.mu.Lock()
	conn := b.client
	b.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write(kkiss.Wrap(raw, 0)); err != nil && b.log != nil {
		b.log.Warn("kiss-tcp client write failed", "err", err)
	}
}

func (b *KISSBridge) serveClient(ctx context.Context, conn net.Conn) {
	defer b.detach(conn)

	reassembler := &kkiss.Reassembler{}
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := conn.Read(buf)
		if n > 0 {
			for _, frame := range reassembler.Feed(buf[:n]) {
				_, payload, ok := kkiss.Unwrap(frame)
				if !ok {
					continue
				}
				if err := b.tx.WriteFrame(payload); err != nil && b.log != nil {
					b.log.Error("kiss-tcp client frame write to transport failed", "err", err)
				}
			}
		}
		if err != nil {
			if err != io.EOF && b.log != nil {
				b.log.Debug("kiss-tcp client disconnected", "err", err)
			}
			return
		}
	}
}

// detach removes conn as the attached client and forcibly resets the TCP
// connection (SO_LINGER (on, 0) so the peer sees RST, not a graceful
// FIN), per spec.md §4.10, then resumes accepting new clients.
func (b *KISSBridge) detach(conn net.Conn) {
	resetClose(conn)

	b.mu.Lock()
	if b.client == conn {
		b.client = nil
	}
	b.mu.Unlock()
}

// resetClose sets SO_LINGER to force an RST on close, grounded in
// golang.org/x/sys/unix's socket-option binding (SPEC_FULL.md §2).
func resetClose(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return
	}
	raw, err := tcp.SyscallConn()
	if err == nil {
		_ = raw.Control(func(fd uintptr) {
			_ = unix.SetsockoptLinger(int(fd), unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
		})
	}
	_ = tcp.Close()
}

// Close shuts down the listener and any attached client.
func (b *KISSBridge) Close() error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client != nil {
		_ = client.Close()
	}
	return b.listener.Close()
}
