package kdigi

import (
	"github.com/k1fsy/station-samoyed/internal/kax25"
)

// Rewrite applies the path-rewrite rules from spec.md §4.7 to path and
// returns the new path plus a label describing what hop was filled (for
// logging/telemetry), mirroring the teacher's traced "used_alias".
// courtesyRelay selects the SELF-mode insertion rule instead of the
// ordinary WIDEn-N/mycall fill.
func (d *Digipeater) Rewrite(path []kax25.Callsign, courtesyRelay bool) ([]kax25.Callsign, string) {
	if courtesyRelay {
		return d.rewriteCourtesy(path), "Courtesy"
	}
	return d.rewriteNormal(path)
}

// rewriteNormal walks path and fills the first unconsumed WIDEn-N or
// mycall/myalias hop with mycall*, decrementing WIDEn-N as needed.
func (d *Digipeater) rewriteNormal(path []kax25.Callsign) ([]kax25.Callsign, string) {
	out := make([]kax25.Callsign, 0, len(path)+1)
	filled := false
	label := ""

	for _, hop := range path {
		if filled || hop.Repeated {
			out = append(out, hop)
			continue
		}

		if isWideN(hop) {
			out = append(out, mine(d.MyCall))
			n := hop.SSID
			if n > 1 {
				out = append(out, kax25.Callsign{Base: hop.Base, SSID: n - 1})
			} else {
				out = append(out, kax25.Callsign{Base: hop.Base, SSID: 0, Repeated: true})
			}
			label = hop.String()
			filled = true
			continue
		}

		if d.matchesMyCalls(hop) {
			out = append(out, mine(d.MyCall))
			label = hop.String()
			filled = true
			continue
		}

		out = append(out, hop)
	}

	return out, label
}

// rewriteCourtesy inserts mycall* immediately after the last consumed
// hop (or at the end if every hop is consumed), with no WIDE decrement —
// the SELF-mode last-mile delivery rule.
func (d *Digipeater) rewriteCourtesy(path []kax25.Callsign) []kax25.Callsign {
	insertAt := len(path)
	for i, hop := range path {
		if !hop.Repeated {
			insertAt = i
			break
		}
	}

	out := make([]kax25.Callsign, 0, len(path)+1)
	out = append(out, path[:insertAt]...)
	out = append(out, mine(d.MyCall))
	out = append(out, path[insertAt:]...)
	return out
}

// mine returns mycall marked as a consumed (repeated) hop.
func mine(call kax25.Callsign) kax25.Callsign {
	c := call
	c.Repeated = true
	return c
}
