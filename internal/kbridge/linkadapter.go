package kbridge

import (
	"context"
	"fmt"

	"github.com/k1fsy/station-samoyed/internal/kax25"
	"github.com/k1fsy/station-samoyed/internal/klink"
)

// LinkAdapter adapts *klink.Link to the kbridge.Link interface, translating
// between AGWPE's string callsigns and kax25.Callsign.
type LinkAdapter struct {
	Link *klink.Link
}

func (a LinkAdapter) ConnectByCall(ctx context.Context, peerCall string) error {
	peer, err := kax25.ParseCallsign(peerCall)
	if err != nil {
		return fmt.Errorf("kbridge: invalid peer callsign %q: %w", peerCall, err)
	}
	return a.Link.Connect(ctx, peer)
}

func (a LinkAdapter) DisconnectLink() error { return a.Link.Disconnect() }

func (a LinkAdapter) SendInfo(info []byte) error { return a.Link.SendI(info) }

func (a LinkAdapter) LinkState() string { return a.Link.State().String() }

func (a LinkAdapter) LinkPeer() (string, bool) {
	peer, ok := a.Link.Peer()
	return peer.String(), ok
}

func (a LinkAdapter) QueuedFrames() int { return a.Link.QueuedFrames() }
