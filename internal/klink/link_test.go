package klink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1fsy/station-samoyed/internal/kax25"
)

// fakeTransport records every frame written and lets tests control
// channel-busy state.
type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	busy   bool
}

func (f *fakeTransport) WriteFrame(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeTransport) ChannelBusy() bool { return f.busy }

func (f *fakeTransport) last() kax25.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := f.frames[len(f.frames)-1]
	fr, err := kax25.DecodeFrame(raw)
	if err != nil {
		panic(err)
	}
	return fr
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func mustCall(t *testing.T, s string) kax25.Callsign {
	t.Helper()
	c, err := kax25.ParseCallsign(s)
	require.NoError(t, err)
	return c
}

func fastTiming() Timing {
	return Timing{
		ConnectTimeout:   30 * time.Millisecond,
		ConnectRetries:   3,
		RetransmitBase:   10 * time.Millisecond,
		RetransmitJitter: 0,
		RetransmitMax:    3,
		RXHoldoff:        time.Millisecond,
		CarrierSenseTick: time.Millisecond,
		CarrierSenseCap:  2 * time.Millisecond,
		AckHoldoff:       time.Millisecond,
	}
}

// TestConnectHandshake exercises spec.md §8 scenario 3: Connect sends
// SABM, and a UA reply from the peer completes the connection.
func TestConnectHandshake(t *testing.T) {
	tr := &fakeTransport{}
	mycall := mustCall(t, "N0CALL-1")
	peer := mustCall(t, "N0CALL-2")
	link := NewLink(mycall, tr, nil, nil, nil, fastTiming())

	done := make(chan error, 1)
	go func() {
		done <- link.Connect(context.Background(), peer)
	}()

	require.Eventually(t, func() bool { return tr.count() >= 1 }, time.Second, time.Millisecond)
	sabm := tr.last()
	assert.Equal(t, kax25.SABM, sabm.Control.UType)
	assert.Equal(t, peer, sabm.Addrs.Destination)

	link.HandleFrame(kax25.BuildUA(mycall, peer, nil, true))

	require.NoError(t, <-done)
	assert.Equal(t, Connected, link.State())
}

// TestConnectTimesOutWithoutUA covers the retry-exhaustion path: no UA
// ever arrives, so Connect returns ErrLinkTimeout after ConnectRetries
// attempts and the link falls back to Disconnected.
func TestConnectTimesOutWithoutUA(t *testing.T) {
	tr := &fakeTransport{}
	mycall := mustCall(t, "N0CALL-1")
	peer := mustCall(t, "N0CALL-2")
	link := NewLink(mycall, tr, nil, nil, nil, fastTiming())

	err := link.Connect(context.Background(), peer)
	assert.ErrorIs(t, err, ErrLinkTimeout)
	assert.Equal(t, Disconnected, link.State())
	assert.GreaterOrEqual(t, tr.count(), 3)
}

// TestIncomingSABMAutoAccepts covers the passive side of the handshake:
// an unsolicited SABM is answered with UA and moves the link to
// Connected.
func TestIncomingSABMAutoAccepts(t *testing.T) {
	tr := &fakeTransport{}
	mycall := mustCall(t, "N0CALL-1")
	peer := mustCall(t, "N0CALL-2")
	link := NewLink(mycall, tr, nil, nil, nil, fastTiming())

	link.HandleFrame(kax25.BuildSABM(mycall, peer, nil))

	require.Equal(t, 1, tr.count())
	ua := tr.last()
	assert.Equal(t, kax25.UA, ua.Control.UType)
	assert.Equal(t, Connected, link.State())
	gotPeer, connected := link.Peer()
	assert.True(t, connected)
	assert.Equal(t, peer, gotPeer)
}

// TestOutOfOrderIFrameTriggersREJ is spec.md §8 scenario 4: an I-frame
// arriving with N(S) ahead of V(R) must be rejected with REJ carrying
// the expected sequence number, and must not be delivered.
func TestOutOfOrderIFrameTriggersREJ(t *testing.T) {
	tr := &fakeTransport{}
	mycall := mustCall(t, "N0CALL-1")
	peer := mustCall(t, "N0CALL-2")

	var delivered [][]byte
	link := NewLink(mycall, tr, func(info []byte) {
		delivered = append(delivered, info)
	}, nil, nil, fastTiming())

	link.HandleFrame(kax25.BuildSABM(mycall, peer, nil))
	require.Equal(t, Connected, link.State())

	// Peer sends N(S)=1 while our V(R) is still 0: out of sequence.
	link.HandleFrame(kax25.BuildI(mycall, peer, nil, 1, 0, false, []byte("skipped")))

	rej := tr.last()
	assert.Equal(t, kax25.ClassS, rej.Control.Class)
	assert.Equal(t, kax25.REJ, rej.Control.SType)
	assert.Equal(t, 0, rej.Control.NR)
	assert.Empty(t, delivered, "out-of-order frame must not be delivered")
}

// TestInOrderIFrameDeliversAndAcks checks the ordinary path: N(S)
// matches V(R), so the info field is delivered and V(R) advances.
func TestInOrderIFrameDeliversAndAcks(t *testing.T) {
	tr := &fakeTransport{}
	mycall := mustCall(t, "N0CALL-1")
	peer := mustCall(t, "N0CALL-2")

	var delivered [][]byte
	link := NewLink(mycall, tr, func(info []byte) {
		delivered = append(delivered, info)
	}, nil, nil, fastTiming())

	link.HandleFrame(kax25.BuildSABM(mycall, peer, nil))
	link.HandleFrame(kax25.BuildI(mycall, peer, nil, 0, 0, false, []byte("hello")))

	require.Len(t, delivered, 1)
	assert.Equal(t, []byte("hello"), delivered[0])

	rr := tr.last()
	assert.Equal(t, kax25.RR, rr.Control.SType)
	assert.Equal(t, 1, rr.Control.NR)
}

// TestDuplicateIFrameResendsRRWithoutRedelivery is spec.md line 128: a
// retransmitted I-frame carrying the N(S) we already delivered (our RR
// never reached the peer) must get a plain RR resend, not a REJ, and
// must not be delivered a second time.
func TestDuplicateIFrameResendsRRWithoutRedelivery(t *testing.T) {
	tr := &fakeTransport{}
	mycall := mustCall(t, "N0CALL-1")
	peer := mustCall(t, "N0CALL-2")

	var delivered [][]byte
	link := NewLink(mycall, tr, func(info []byte) {
		delivered = append(delivered, info)
	}, nil, nil, fastTiming())

	link.HandleFrame(kax25.BuildSABM(mycall, peer, nil))
	link.HandleFrame(kax25.BuildI(mycall, peer, nil, 0, 0, false, []byte("hello")))
	require.Len(t, delivered, 1)

	// Peer never saw our RR and resends N(S)=0 again.
	link.HandleFrame(kax25.BuildI(mycall, peer, nil, 0, 0, false, []byte("hello")))

	assert.Len(t, delivered, 1, "duplicate I-frame must not be delivered twice")
	rr := tr.last()
	assert.Equal(t, kax25.ClassS, rr.Control.Class)
	assert.Equal(t, kax25.RR, rr.Control.SType)
	assert.Equal(t, 1, rr.Control.NR)
}

// TestDISCNotifiesDisconnectCallback is spec.md §4.10: a peer-initiated
// DISC must reach the disconnect callback with the peer's callsign, so
// a bridge can forward the teardown to its owning client.
func TestDISCNotifiesDisconnectCallback(t *testing.T) {
	tr := &fakeTransport{}
	mycall := mustCall(t, "N0CALL-1")
	peer := mustCall(t, "N0CALL-2")

	var notified string
	link := NewLink(mycall, tr, nil, func(p string) { notified = p }, nil, fastTiming())

	link.HandleFrame(kax25.BuildSABM(mycall, peer, nil))
	require.Equal(t, Connected, link.State())

	link.HandleFrame(kax25.BuildDISC(mycall, peer, nil))

	assert.Equal(t, peer.String(), notified)
	assert.Equal(t, Disconnected, link.State())
}

// TestSendIQueuesAndRetransmits checks that an unacknowledged I-frame is
// resent by the retransmit worker and eventually torn down once the
// retry budget is exhausted.
func TestSendIQueuesAndRetransmits(t *testing.T) {
	tr := &fakeTransport{}
	mycall := mustCall(t, "N0CALL-1")
	peer := mustCall(t, "N0CALL-2")
	timing := fastTiming()
	link := NewLink(mycall, tr, nil, nil, nil, timing)

	link.HandleFrame(kax25.BuildSABM(mycall, peer, nil))
	require.NoError(t, link.SendI([]byte("payload")))
	require.Equal(t, 2, tr.count()) // UA + the I-frame itself

	for i := 0; i < timing.RetransmitMax+2; i++ {
		time.Sleep(2 * timing.RetransmitBase)
		link.retransmitTick()
	}

	assert.Equal(t, Disconnected, link.State(), "link must tear down once retries are exhausted")
}

// TestRRAcknowledgesQueuedIFrame verifies that an RR with a matching
// N(R) purges the outstanding queue entry so the retransmit worker
// leaves the link connected.
func TestRRAcknowledgesQueuedIFrame(t *testing.T) {
	tr := &fakeTransport{}
	mycall := mustCall(t, "N0CALL-1")
	peer := mustCall(t, "N0CALL-2")
	link := NewLink(mycall, tr, nil, nil, nil, fastTiming())

	link.HandleFrame(kax25.BuildSABM(mycall, peer, nil))
	require.NoError(t, link.SendI([]byte("payload")))
	require.Len(t, link.queue, 1)

	link.HandleFrame(kax25.BuildRR(mycall, peer, nil, 1, false))
	assert.Empty(t, link.queue)
}

// TestDisconnectSendsDISC checks the explicit teardown path.
func TestDisconnectSendsDISC(t *testing.T) {
	tr := &fakeTransport{}
	mycall := mustCall(t, "N0CALL-1")
	peer := mustCall(t, "N0CALL-2")
	link := NewLink(mycall, tr, nil, nil, nil, fastTiming())

	link.HandleFrame(kax25.BuildSABM(mycall, peer, nil))
	require.NoError(t, link.Disconnect())

	disc := tr.last()
	assert.Equal(t, kax25.DISC, disc.Control.UType)
	assert.Equal(t, Disconnected, link.State())
}
