package kbridge

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/charmbracelet/log"
)

// AGWPE datakind bytes, per spec.md §4.10's command table and the
// teacher's src/agwpe.go header layout.
const (
	kindVersion           = 'R'
	kindPortInfo          = 'G'
	kindPortCaps          = 'g'
	kindRegister          = 'X'
	kindUnregister        = 'x'
	kindMonitor           = 'm'
	kindRaw               = 'k'
	kindSendUnproto       = 'M'
	kindSendUnprotoVia    = 'V'
	kindSendRaw           = 'K'
	kindConnect           = 'C'
	kindConnectVia        = 'v'
	kindConnectPID        = 'c'
	kindSendData          = 'D'
	kindDisconnect        = 'd'
	kindOutstandingPort   = 'y'
	kindOutstandingFrames = 'Y'
)

// header is the 36-byte AGWPE message header (teacher's AGWPEHeader,
// src/agwpe.go): port, datakind, pid, callfrom/callto, data length.
type header struct {
	Port         byte
	Reserved1    byte
	Reserved2    byte
	Reserved3    byte
	DataKind     byte
	Reserved4    byte
	PID          byte
	Reserved5    byte
	CallFrom     [10]byte
	CallTo       [10]byte
	DataLen      uint32
	UserReserved [4]byte
}

func readHeader(r io.Reader) (header, error) {
	var h header
	err := binary.Read(r, binary.LittleEndian, &h)
	return h, err
}

func writeMessage(w io.Writer, h header, body []byte) error {
	h.DataLen = uint32(len(body))
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	if len(body) > 0 {
		_, err := w.Write(body)
		return err
	}
	return nil
}

func call10(s string) [10]byte {
	var out [10]byte
	copy(out[:], s)
	return out
}

func callString(b [10]byte) string {
	return string(bytes.TrimRight(b[:], "\x00"))
}

// Link is the full connected-mode surface the AGWPE server drives,
// named locally with string callsigns so its method signatures carry no
// klink or kax25 types; LinkAdapter implements it over a *klink.Link,
// parsing the string form AGWPE carries in CallFrom/CallTo.
type Link interface {
	ConnectByCall(ctx context.Context, peerCall string) error
	DisconnectLink() error
	SendInfo(info []byte) error
	LinkState() string
	LinkPeer() (string, bool)
	QueuedFrames() int
}

// AGWServer implements the AGWPE/SV2AGW server (spec.md §4.10): version
// and port-info queries, callsign registration, monitor/raw frame
// subscriptions, unproto/raw sends, and single-connection connected-mode
// bridging.
type AGWServer struct {
	listener net.Listener
	tx       FrameWriter
	link     Link // nil disables connected-mode commands (C/v/c/D/d/y/Y)
	myCall   string
	log      *log.Logger

	mu         sync.Mutex
	clients    map[net.Conn]*agwClient
	owner      net.Conn // client holding the single connected-mode session
}

type agwClient struct {
	conn    net.Conn
	monitor bool
	raw     bool
	wmu     sync.Mutex
}

func (c *agwClient) send(h header, body []byte) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = writeMessage(c.conn, h, body)
}

// ListenAGWServer opens the TCP listener for the AGWPE bridge.
func ListenAGWServer(addr, myCall string, tx FrameWriter, link Link, logger *log.Logger) (*AGWServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("kbridge: listen %s: %w", addr, err)
	}
	return &AGWServer{
		listener: ln,
		tx:       tx,
		link:     link,
		myCall:   myCall,
		log:      logger,
		clients:  make(map[net.Conn]*agwClient),
	}, nil
}

// Addr reports the bound listen address.
func (s *AGWServer) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts AGWPE clients until ctx is cancelled. Unlike the KISS-TCP
// bridge, AGWPE supports multiple simultaneous clients (monitor-only
// observers alongside the one client driving connected mode).
func (s *AGWServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		client := &agwClient{conn: conn}
		s.mu.Lock()
		s.clients[conn] = client
		s.mu.Unlock()
		go s.serveClient(ctx, client)
	}
}

func (s *AGWServer) serveClient(ctx context.Context, c *agwClient) {
	defer s.detach(c)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		h, err := readHeader(c.conn)
		if err != nil {
			return
		}
		body := make([]byte, h.DataLen)
		if h.DataLen > 0 {
			if _, err := io.ReadFull(c.conn, body); err != nil {
				return
			}
		}
		s.dispatch(ctx, c, h, body)
	}
}

func (s *AGWServer) detach(c *agwClient) {
	_ = c.conn.Close()
	s.mu.Lock()
	delete(s.clients, c.conn)
	if s.owner == c.conn {
		s.owner = nil
	}
	s.mu.Unlock()
}

func (s *AGWServer) dispatch(ctx context.Context, c *agwClient, h header, body []byte) {
	switch h.DataKind {
	case kindVersion:
		c.send(header{DataKind: kindVersion}, []byte{2, 0, 0, 0})
	case kindPortInfo:
		c.send(header{DataKind: kindPortInfo}, []byte("1;"+s.myCall+"\x00"))
	case kindPortCaps:
		c.send(header{DataKind: kindPortCaps}, make([]byte, 12))
	case kindRegister:
		c.send(header{DataKind: kindRegister, CallFrom: h.CallFrom}, []byte{1})
	case kindUnregister:
		// No reply defined.
	case kindMonitor:
		c.monitor = true
	case kindRaw:
		c.raw = true
	case kindSendUnproto, kindSendUnprotoVia:
		s.sendUnproto(h, body)
	case kindSendRaw:
		if err := s.tx.WriteFrame(body); err != nil && s.log != nil {
			s.log.Error("agwpe raw send failed", "err", err)
		}
	case kindConnect, kindConnectVia, kindConnectPID:
		s.handleConnect(ctx, c, h)
	case kindSendData:
		s.handleSendData(body)
	case kindDisconnect:
		s.handleDisconnect(c)
	case kindOutstandingPort:
		c.send(header{DataKind: kindOutstandingPort}, []byte{0, 0, 0, 0})
	case kindOutstandingFrames:
		n := 0
		if s.link != nil {
			n = s.link.QueuedFrames()
		}
		c.send(header{DataKind: kindOutstandingFrames}, []byte{byte(n), 0, 0, 0})
	}
}

func (s *AGWServer) sendUnproto(h header, body []byte) {
	// Unproto sends build the UI frame through the ordinary AX.25/APRS
	// builders elsewhere in the station; the AGWPE server only forwards
	// the raw info text it was given, leaving address/path construction
	// to the caller that wired kindSendRaw for the fully-built case.
	if err := s.tx.WriteFrame(body); err != nil && s.log != nil {
		s.log.Error("agwpe unproto send failed", "err", err)
	}
}

func (s *AGWServer) handleConnect(ctx context.Context, c *agwClient, h header) {
	s.mu.Lock()
	if s.owner != nil && s.owner != c.conn {
		s.mu.Unlock()
		return // only one AX.25 connection at a time, per spec.md §4.10
	}
	s.owner = c.conn
	s.mu.Unlock()

	if s.link == nil {
		return
	}
	peer := callString(h.CallTo)
	go func() {
		err := s.link.ConnectByCall(ctx, peer)
		// Connection-confirmation replies invert call_from/call_to
		// (from=remote, to=local), per spec.md §4.10.
		kind := byte(kindConnect)
		if err != nil {
			return
		}
		c.send(header{DataKind: kind, CallFrom: call10(peer), CallTo: call10(s.myCall)}, nil)
	}()
}

func (s *AGWServer) handleSendData(body []byte) {
	if s.link == nil {
		return
	}
	if err := s.link.SendInfo(body); err != nil && s.log != nil {
		s.log.Error("agwpe connected-mode send failed", "err", err)
	}
}

func (s *AGWServer) handleDisconnect(c *agwClient) {
	s.mu.Lock()
	isOwner := s.owner == c.conn
	s.mu.Unlock()
	if !isOwner || s.link == nil {
		return
	}
	_ = s.link.DisconnectLink()
}

// DeliverFrame implements kpipeline.BridgeSink: raw frames fan out as 'K'
// to raw-registered clients and as 'U' monitor frames to monitoring
// clients, per spec.md §4.10.
func (s *AGWServer) DeliverFrame(raw []byte) {
	s.mu.Lock()
	clients := make([]*agwClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if c.raw {
			c.send(header{DataKind: kindSendRaw}, raw)
		}
		if c.monitor {
			c.send(header{DataKind: 'U'}, raw)
		}
	}
}

// DeliverConnectedData pushes a connected-mode info payload to the
// owning client as a 'D' frame, per spec.md §4.10.
func (s *AGWServer) DeliverConnectedData(fromCall string, info []byte) {
	s.mu.Lock()
	owner := s.owner
	c := s.clients[owner]
	s.mu.Unlock()
	if c == nil {
		return
	}
	c.send(header{DataKind: kindSendData, CallFrom: call10(fromCall), CallTo: call10(s.myCall)}, info)
}

// DeliverRemoteDisconnect forwards a remote-initiated DISC/DM to the
// owning client as a 'd' frame, per spec.md §4.10.
func (s *AGWServer) DeliverRemoteDisconnect(fromCall string) {
	s.mu.Lock()
	owner := s.owner
	c := s.clients[owner]
	s.owner = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	c.send(header{DataKind: kindDisconnect, CallFrom: call10(fromCall), CallTo: call10(s.myCall)}, nil)
}

// Close shuts down the listener and every attached client.
func (s *AGWServer) Close() error {
	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.mu.Unlock()
	return s.listener.Close()
}
