package kaprs

import (
	"strings"

	"github.com/k1fsy/station-samoyed/internal/kax25"
)

// ThirdParty is a decoded third-party packet ('}' indicator): an entire
// inner APRS packet (source, path, info) wrapped and preceded by the
// relaying station, per APRS 1.01 §18. Per spec.md line 86 ("mark the
// outer source as the relay"), RelaySource is the outer AX.25 frame's
// source address — the station that actually relayed this packet onto
// RF — not the original-station callsign named in the inner TNC2
// header, which is preserved instead as Inner's own source via
// OriginalSource.
type ThirdParty struct {
	RelaySource    kax25.Callsign
	OriginalSource kax25.Callsign
	Dest           kax25.Callsign
	Path           []kax25.Callsign
	Inner          Packet
}

// parseThirdParty decodes "}SRC>DEST,DIGI1,DIGI2:info" — the TNC2 text
// representation of a fully addressed inner packet — and recursively
// parses the inner info field. relaySource is the carrying frame's true
// AX.25 source address (the relay), supplied by the caller rather than
// read from the TNC2 header.
func parseThirdParty(relaySource kax25.Callsign, info []byte) (*ThirdParty, bool) {
	body := string(info[1:])
	header, innerInfo, ok := strings.Cut(body, ":")
	if !ok {
		return nil, false
	}

	srcStr, rest, ok := strings.Cut(header, ">")
	if !ok {
		return nil, false
	}
	originalSource, err := kax25.ParseCallsign(srcStr)
	if err != nil {
		return nil, false
	}

	parts := strings.Split(rest, ",")
	dest, err := kax25.ParseCallsign(parts[0])
	if err != nil {
		return nil, false
	}

	var path []kax25.Callsign
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		c, err := kax25.ParseCallsign(p)
		if err != nil {
			continue
		}
		path = append(path, c)
	}

	inner := Parse(dest, originalSource, []byte(innerInfo))
	return &ThirdParty{
		RelaySource:    relaySource,
		OriginalSource: originalSource,
		Dest:           dest,
		Path:           path,
		Inner:          inner,
	}, true
}
