package klink

import (
	"context"
	"time"

	"github.com/k1fsy/station-samoyed/internal/kax25"
)

// Run starts the retransmit worker and runs until ctx is cancelled. It
// should be started once per Link, typically from the owning station's
// top-level goroutine group.
func (l *Link) Run(ctx context.Context) {
	ticker := time.NewTicker(kax25.RetransmitWorkerTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.retransmitTick()
		}
	}
}

// retransmitTick resends any queued I-frame whose backoff has elapsed,
// and tears the link down if an entry has exhausted RetransmitMax
// attempts without acknowledgment, per spec.md §4.6 and §7.
func (l *Link) retransmitTick() {
	l.mu.Lock()
	if l.state != Connected || len(l.queue) == 0 {
		l.mu.Unlock()
		return
	}
	if time.Since(l.lastRXAt) < l.timing.RXHoldoff {
		// Something arrived on the link moments ago; give it a chance
		// to be a fresh ACK before assuming it was lost.
		l.mu.Unlock()
		return
	}
	peer := l.peer

	var toResend []queueEntry
	now := time.Now()
	for i := range l.queue {
		e := &l.queue[i]
		if e.retries >= l.timing.RetransmitMax {
			l.logf("retransmit budget exhausted, tearing down link", "peer", peer.String(), "vs", e.vs)
			l.state = Disconnected
			l.peer = kax25.Callsign{}
			l.queue = nil
			l.mu.Unlock()
			return
		}
		if now.Sub(e.sentAt) >= l.backoff(e.retries) {
			e.sentAt = now
			e.retries++
			toResend = append(toResend, *e)
		}
	}
	l.mu.Unlock()

	for _, e := range toResend {
		l.carrierSense()
		_ = l.transport.WriteFrame(e.raw)
	}
}

// backoff returns the delay before the (retries+1)'th retransmission
// attempt: T_base * 1.5^retries + uniform(0, jitter), per spec.md §5.
func (l *Link) backoff(retries int) time.Duration {
	delay := float64(l.timing.RetransmitBase)
	for i := 0; i < retries; i++ {
		delay *= 1.5
	}
	jitter := time.Duration(0)
	if l.timing.RetransmitJitter > 0 {
		jitter = time.Duration(l.rng.Int63n(int64(l.timing.RetransmitJitter)))
	}
	return time.Duration(delay) + jitter
}

// Disconnect sends DISC and tears the link down locally without waiting
// for UA, since the peer may be gone.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	if l.state != Connected {
		l.mu.Unlock()
		return nil
	}
	peer := l.peer
	l.mu.Unlock()

	err := l.transmit(kax25.BuildDISC(peer, l.mycall, nil))

	l.mu.Lock()
	l.state = Disconnected
	l.peer = kax25.Callsign{}
	l.queue = nil
	l.mu.Unlock()

	return err
}
