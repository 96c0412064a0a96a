// Package kax25 implements the AX.25 link-layer framing: address encode
// and decode, control-byte classification, and frame construction for
// UI, I, S and U frames.
package kax25

import (
	"fmt"
	"strconv"
	"strings"
)

// Callsign is an amateur-radio station identifier: a base of up to six
// uppercase alphanumerics plus a secondary station identifier (0-15).
// Repeated marks the AX.25 "has-been-repeated" (H) bit, meaningful only
// when the callsign appears as a digipeater in a path.
type Callsign struct {
	Base     string
	SSID     int
	Repeated bool
}

// ParseCallsign parses the textual form BASE, BASE-N or BASE-N* (the
// trailing * marks Repeated).
func ParseCallsign(s string) (Callsign, error) {
	var c Callsign
	s = strings.ToUpper(strings.TrimSpace(s))
	if strings.HasSuffix(s, "*") {
		c.Repeated = true
		s = s[:len(s)-1]
	}

	base, ssidStr, hasSSID := strings.Cut(s, "-")
	if base == "" || len(base) > 6 {
		return Callsign{}, fmt.Errorf("%w: base %q", ErrAddressInvalid, base)
	}
	for _, r := range base {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return Callsign{}, fmt.Errorf("%w: character %q in base", ErrAddressInvalid, r)
		}
	}
	c.Base = base

	if hasSSID {
		ssid, err := strconv.Atoi(ssidStr)
		if err != nil || ssid < 0 || ssid > 15 {
			return Callsign{}, fmt.Errorf("%w: ssid %q", ErrAddressInvalid, ssidStr)
		}
		c.SSID = ssid
	}
	return c, nil
}

// String renders BASE when SSID is zero, else BASE-N, with a trailing *
// when Repeated.
func (c Callsign) String() string {
	var b strings.Builder
	b.WriteString(c.Base)
	if c.SSID != 0 {
		fmt.Fprintf(&b, "-%d", c.SSID)
	}
	if c.Repeated {
		b.WriteByte('*')
	}
	return b.String()
}

// EqualStation reports whether two callsigns name the same station,
// ignoring the Repeated (H) bit.
func (c Callsign) EqualStation(o Callsign) bool {
	return c.Base == o.Base && c.SSID == o.SSID
}

// EqualBase reports whether two callsigns share the same base,
// regardless of SSID or Repeated bit — the "MYALIAS matches any SSID"
// comparison used by the digipeater.
func (c Callsign) EqualBase(o Callsign) bool {
	return c.Base == o.Base
}
