// Package kdigi implements the new-paradigm APRS digipeater: the
// should-digipeat admission test, WIDEn-N path rewriting, and the SELF
// courtesy-relay variant, per spec.md §4.7.
//
// Grounded in the teacher's src/digipeater.go (digipeat_match: trapping
// on MYCALL/MYALIAS, WIDEn-N decrement rules, preemptive digipeating)
// and original_source/src/digipeater.py, which spells out the SELF-mode
// inbound/outbound rules the teacher's single-channel port never needed.
package kdigi

import (
	"strings"

	"github.com/charmbracelet/log"

	"github.com/k1fsy/station-samoyed/internal/kax25"
)

// Mode is the digipeater's operating mode (spec.md §4.7).
type Mode int

const (
	Off Mode = iota
	On
	Self
)

func (m Mode) String() string {
	switch m {
	case On:
		return "ON"
	case Self:
		return "SELF"
	default:
		return "OFF"
	}
}

// ParseMode parses the textual config value for the `digipeat` key.
func ParseMode(s string) Mode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON":
		return On
	case "SELF":
		return Self
	default:
		return Off
	}
}

// DigipeaterClassifier reports whether a callsign is a known digipeater,
// the station-database side of the admission test (spec.md §9 Open
// Questions: bootstrapped by observation, not configuration).
type DigipeaterClassifier interface {
	IsKnownDigipeater(call string) bool
}

// Digipeater evaluates and rewrites AX.25 paths per the configured mode.
type Digipeater struct {
	MyCall  kax25.Callsign
	MyAlias string // base only, e.g. "WIDE1"; empty disables alias matching
	Mode    Mode

	Classifier DigipeaterClassifier
	Count      int

	log *log.Logger
}

// New constructs a Digipeater.
func New(mycall kax25.Callsign, myAlias string, mode Mode, classifier DigipeaterClassifier, logger *log.Logger) *Digipeater {
	return &Digipeater{
		MyCall:     mycall,
		MyAlias:    strings.ToUpper(myAlias),
		Mode:       mode,
		Classifier: classifier,
		log:        logger,
	}
}

// NewDigipeaterFromEnabled is a convenience constructor mirroring the
// teacher's legacy boolean `enabled` toggle (SPEC_FULL.md §3): true maps
// to On, false to Off. SELF is only reachable via the mode-string form.
func NewDigipeaterFromEnabled(mycall kax25.Callsign, myAlias string, enabled bool, classifier DigipeaterClassifier, logger *log.Logger) *Digipeater {
	mode := Off
	if enabled {
		mode = On
	}
	return New(mycall, myAlias, mode, classifier, logger)
}

// matchesMyCalls reports whether a path hop (callsign+SSID, no trailing
// '*') is our exact MYCALL or our MYALIAS with any SSID.
func (d *Digipeater) matchesMyCalls(hop kax25.Callsign) bool {
	if hop.EqualStation(d.MyCall) {
		return true
	}
	if d.MyAlias == "" {
		return false
	}
	return hop.Base == d.MyAlias
}

// Packet bundles the fields the admission test and rewrite need, decoded
// once by the RX pipeline from an AX.25 frame plus its parsed APRS
// message addressee (if any).
type Packet struct {
	Source           kax25.Callsign
	Destination      kax25.Callsign
	Path             []kax25.Callsign // path as heard; Repeated marks consumed hops
	HopCount         int              // count of already-consumed (Repeated) hops
	MessageAddressee string           // non-empty only for APRS message packets
}

func baseEqual(a, b string) bool { return a == b }

// ShouldDigipeat is the admission test from spec.md §4.7.
func (d *Digipeater) ShouldDigipeat(p Packet) bool {
	if d.Mode == Off {
		return false
	}

	selfInbound := d.Mode == Self && d.isInbound(p)

	if p.HopCount != 0 && !selfInbound {
		return false
	}

	isSourceDigi := d.Classifier != nil && d.Classifier.IsKnownDigipeater(p.Source.String())
	if isSourceDigi && !selfInbound {
		return false
	}

	if p.Source.EqualStation(d.MyCall) {
		return false
	}

	if d.Mode == Self {
		outbound := baseEqual(p.Source.Base, d.MyCall.Base) && p.HopCount == 0
		if !outbound && !selfInbound {
			return false
		}
	}

	if selfInbound {
		return true
	}

	return d.hasViableHop(p.Path)
}

// isInbound reports whether p is addressed to our base callsign from a
// different station, by AX.25 destination or APRS message addressee —
// the SELF-mode courtesy-relay trigger.
func (d *Digipeater) isInbound(p Packet) bool {
	myBase := d.MyCall.Base
	if baseEqual(p.Source.Base, myBase) {
		return false
	}
	if baseEqual(p.Destination.Base, myBase) && !p.Destination.EqualStation(d.MyCall) {
		return true
	}
	if p.MessageAddressee != "" {
		addr, err := kax25.ParseCallsign(p.MessageAddressee)
		if err == nil && baseEqual(addr.Base, myBase) && !addr.EqualStation(d.MyCall) {
			return true
		}
	}
	return false
}

// hasViableHop reports whether path contains an unconsumed WIDEn-N (N>=1)
// or our mycall/myalias.
func (d *Digipeater) hasViableHop(path []kax25.Callsign) bool {
	for _, hop := range path {
		if hop.Repeated {
			continue
		}
		if isWideN(hop) {
			return true
		}
		if d.matchesMyCalls(hop) {
			return true
		}
	}
	return false
}

// isWideN reports whether hop's base is WIDEn for some digit n, with a
// positive SSID (the N in WIDEn-N).
func isWideN(hop kax25.Callsign) bool {
	if !strings.HasPrefix(hop.Base, "WIDE") || len(hop.Base) != 5 {
		return false
	}
	d := hop.Base[4]
	return d >= '1' && d <= '9' && hop.SSID >= 1
}
