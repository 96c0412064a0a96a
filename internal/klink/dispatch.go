package klink

import (
	"errors"
	"fmt"
	"time"

	"github.com/k1fsy/station-samoyed/internal/kax25"
)

// ErrNotConnected is returned by SendI when no connected-mode session is
// active.
var ErrNotConnected = errors.New("klink: not connected")

// outbound is a frame decided on while holding the link's mutex, to be
// transmitted once it is released. isAck marks RR/REJ replies, which
// carry the extra ack-delay described in spec.md §4.6.1.
type outbound struct {
	frame kax25.Frame
	isAck bool
}

// HandleFrame dispatches a decoded frame addressed to this link's mycall
// into the connected-mode state machine, per spec.md §4.6. A SABM from a
// callsign other than the current peer while Connected, a DISC from
// anyone but the connected peer, and an I-frame outside a session with
// its sender are answered with DM, matching the single-peer model
// spec.md §9 settles on ("Multiple simultaneous connections: Non-goal");
// S-frames and UA from other stations are ignored. State is decided
// under the lock and released before any transmit, since carrier sense
// and the ack delay can each block for up to a couple of seconds. The
// deliver callback also runs after the lock is released, so it may call
// back into the Link.
func (l *Link) HandleFrame(f kax25.Frame) {
	from := f.Addrs.Source

	l.mu.Lock()
	l.lastRXAt = time.Now()

	var out *outbound
	var delivered []byte
	switch f.Control.Class {
	case kax25.ClassU:
		out = l.handleU(f, from)
	case kax25.ClassS:
		l.handleS(f, from)
	case kax25.ClassI:
		out, delivered = l.handleI(f, from)
	}
	l.mu.Unlock()

	if delivered != nil && l.deliver != nil {
		l.deliver(delivered)
	}
	if out == nil {
		return
	}
	if out.isAck {
		time.Sleep(l.ackDelay())
	}
	_ = l.transmit(out.frame)
}

// ackDelay is spec.md §4.6.1's "max(TXDELAY, 1.5s - time_since_last_rx)"
// pause before transmitting an acknowledgment, giving a multi-frame
// response from the peer time to finish arriving.
func (l *Link) ackDelay() time.Duration {
	l.mu.Lock()
	since := time.Since(l.lastRXAt)
	txDelay := l.timing.TXDelay
	ceiling := l.timing.AckHoldoff
	l.mu.Unlock()

	rest := ceiling - since
	if rest < 0 {
		rest = 0
	}
	if txDelay > rest {
		return txDelay
	}
	return rest
}

func (l *Link) handleU(f kax25.Frame, from kax25.Callsign) *outbound {
	switch f.Control.UType {
	case kax25.SABM:
		if l.state == Connected && !from.EqualStation(l.peer) {
			return &outbound{frame: kax25.BuildDM(from, l.mycall, nil, true)}
		}
		l.state = Connected
		l.peer = from
		l.resetSequence()
		l.logf("connected (incoming SABM)", "peer", from.String())
		return &outbound{frame: kax25.BuildUA(from, l.mycall, nil, f.Control.PF)}

	case kax25.UA:
		if l.state != Connecting || !from.EqualStation(l.peer) {
			return nil
		}
		l.state = Connected
		l.resetSequence()
		l.notifyConnectWaiters(true)
		l.logf("connected (UA received)", "peer", from.String())

	case kax25.DM:
		if l.state == Connecting && from.EqualStation(l.peer) {
			l.notifyConnectWaiters(false)
		}
		if l.state == Connected && from.EqualStation(l.peer) {
			l.state = Disconnected
			l.peer = kax25.Callsign{}
			l.logf("peer reports disconnected mode", "peer", from.String())
			l.notifyDisconnect(from.String())
		}

	case kax25.DISC:
		if l.state == Connected && from.EqualStation(l.peer) {
			l.state = Disconnected
			reply := kax25.BuildUA(from, l.mycall, nil, f.Control.PF)
			peer := l.peer
			l.peer = kax25.Callsign{}
			l.logf("disconnected by peer", "peer", peer.String())
			l.notifyDisconnect(peer.String())
			return &outbound{frame: reply}
		}
		return &outbound{frame: kax25.BuildDM(from, l.mycall, nil, f.Control.PF)}

	case kax25.FRMR:
		if l.state == Connected && from.EqualStation(l.peer) {
			l.logf("peer sent FRMR, resetting link", "peer", from.String())
			l.state = Disconnected
			l.peer = kax25.Callsign{}
		}
	}
	return nil
}

// notifyDisconnect calls the disconnect callback, if one was supplied to
// NewLink. It fires while the link's mutex is held, so the callback must
// not call back into the Link.
func (l *Link) notifyDisconnect(peer string) {
	if l.disconnect != nil {
		l.disconnect(peer)
	}
}

func (l *Link) handleS(f kax25.Frame, from kax25.Callsign) {
	if l.state != Connected || !from.EqualStation(l.peer) {
		return
	}
	switch f.Control.SType {
	case kax25.RR:
		l.rnr = false
		l.purgeAcked(f.Control.NR)
	case kax25.RNR:
		l.rnr = true
		l.purgeAcked(f.Control.NR)
	case kax25.REJ:
		l.rnr = false
		l.purgeAcked(f.Control.NR)
		l.requeueFrom(f.Control.NR)
	}
}

// purgeAcked drops every queued entry the peer's N(R) now acknowledges.
// The queue is kept in send order, so everything the peer has caught up
// to sits at the front: pop entries until the front matches nr (still
// outstanding) or the queue empties (fully acked), per spec.md §4.6's
// half-window ACK purge rule. An nr outside the window from the oldest
// queued V(S) up to V(S) is ignored and leaves the queue untouched.
func (l *Link) purgeAcked(nr int) {
	if len(l.queue) > 0 {
		old := l.queue[0].vs
		if (nr-old+8)%8 > (l.vs-old+8)%8 {
			return
		}
	}
	for len(l.queue) > 0 && l.queue[0].vs != nr {
		l.queue = l.queue[1:]
	}
}

// requeueFrom resets every still-queued entry's send timestamp so the
// retransmit worker resends the whole outstanding window on its next
// tick, the REJ recovery path in spec.md §4.6.
func (l *Link) requeueFrom(nr int) {
	for i := range l.queue {
		l.queue[i].sentAt = time.Time{}
	}
}

// handleI returns the reply to send and, for an in-sequence frame, a copy
// of its info field for HandleFrame to pass to deliver once unlocked.
func (l *Link) handleI(f kax25.Frame, from kax25.Callsign) (*outbound, []byte) {
	if l.state != Connected || !from.EqualStation(l.peer) {
		return &outbound{frame: kax25.BuildDM(from, l.mycall, nil, true)}, nil
	}

	// Acknowledge frames the peer claims we've received (its N(R)),
	// then check whether this I-frame arrived in sequence.
	l.purgeAcked(f.Control.NR)

	if f.Control.NS != l.vr {
		if f.Control.NS == (l.vr-1+8)%8 {
			// This is a retransmission of the last frame we already
			// delivered (the peer never saw our ack), not a gap: per
			// spec.md line 128, resend the plain RR instead of treating
			// it as out-of-order and rejecting.
			l.logf("duplicate I-frame, resending RR", "peer", from.String(), "got_ns", f.Control.NS, "vr", l.vr)
			return &outbound{frame: kax25.BuildRR(from, l.mycall, nil, l.vr, f.Control.PF), isAck: true}, nil
		}
		l.logf("out-of-order I-frame, sending REJ", "peer", from.String(), "got_ns", f.Control.NS, "want", l.vr)
		return &outbound{frame: kax25.BuildREJ(from, l.mycall, nil, l.vr, f.Control.PF), isAck: true}, nil
	}

	l.vr = (l.vr + 1) % 8
	info := make([]byte, len(f.Info))
	copy(info, f.Info)
	return &outbound{frame: kax25.BuildRR(from, l.mycall, nil, l.vr, f.Control.PF), isAck: true}, info
}

// SendI transmits info as a connected-mode I-frame and enqueues it for
// retransmission until acknowledged. Returns an error if the link is not
// currently connected.
func (l *Link) SendI(info []byte) error {
	l.mu.Lock()
	if l.state != Connected {
		l.mu.Unlock()
		return fmt.Errorf("klink: SendI: %w", ErrNotConnected)
	}
	peer := l.peer
	ns := l.vs
	nr := l.vr
	l.vs = (l.vs + 1) % 8
	frame := kax25.BuildI(peer, l.mycall, nil, ns, nr, false, info)
	l.queue = append(l.queue, queueEntry{vs: ns, raw: frame.Encode(), sentAt: time.Now()})
	l.mu.Unlock()

	return l.transport.WriteFrame(frame.Encode())
}
