package kdigi

import "github.com/k1fsy/station-samoyed/internal/kax25"

// HopCount returns the number of already-consumed (repeated) digipeater
// hops in path — spec.md §3's hop-count field, computed fresh from the
// AX.25 H-bits rather than trusted from elsewhere.
func HopCount(path []kax25.Callsign) int {
	n := 0
	for _, hop := range path {
		if hop.Repeated {
			n++
		}
	}
	return n
}

// DigipeatFrame evaluates f against the admission test and, if it
// qualifies, returns a new frame with the path rewritten and the
// original control/PID/info field otherwise untouched, per spec.md
// §4.7's "reconstruct the KISS frame with the new path" output rule.
// The second return value reports whether digipeating applied.
// DigipeatFrame evaluates f for digipeating and, if admitted, returns the
// rewritten frame ready for retransmission. hopCount is supplied by the
// caller rather than recomputed from f.Addrs.Path, since some traffic
// (third-party/igated packets) carries a hop classification that the
// path itself cannot express — see kstation.HopIgated.
func (d *Digipeater) DigipeatFrame(f kax25.Frame, hopCount int, messageAddressee string) (kax25.Frame, bool) {
	path := f.Addrs.Path
	p := Packet{
		Source:           f.Addrs.Source,
		Destination:      f.Addrs.Destination,
		Path:             path,
		HopCount:         hopCount,
		MessageAddressee: messageAddressee,
	}

	if !d.ShouldDigipeat(p) {
		return kax25.Frame{}, false
	}

	courtesy := d.Mode == Self && d.isInbound(p) && p.HopCount > 0
	newPath, _ := d.Rewrite(path, courtesy)

	out := f
	out.Addrs.Path = newPath
	d.Count++
	if d.log != nil {
		d.log.Debug("digipeated frame", "source", f.Addrs.Source.String(), "count", d.Count)
	}
	return out, true
}
