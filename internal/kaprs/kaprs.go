// Package kaprs implements APRS info-field classification and decoding:
// position reports (including MIC-E and the Complete Weather Report
// encoding), messages, weather-only, status, object, item, telemetry and
// third-party packets, per APRS 1.01 and spec.md §4.3.
package kaprs

import "github.com/k1fsy/station-samoyed/internal/kax25"

// Kind tags the variant held by a Packet.
type Kind int

const (
	KindUnknown Kind = iota
	KindPosition
	KindMICE
	KindMessage
	KindWeather
	KindStatus
	KindObject
	KindItem
	KindTelemetry
	KindThirdParty
)

func (k Kind) String() string {
	switch k {
	case KindPosition:
		return "position"
	case KindMICE:
		return "mic-e"
	case KindMessage:
		return "message"
	case KindWeather:
		return "weather"
	case KindStatus:
		return "status"
	case KindObject:
		return "object"
	case KindItem:
		return "item"
	case KindTelemetry:
		return "telemetry"
	case KindThirdParty:
		return "third-party"
	default:
		return "unknown"
	}
}

// Packet is a decoded APRS info field. Exactly one of the typed pointer
// fields matching Kind is non-nil; the parser never fails hard on an
// unrecognized format, instead returning KindUnknown with Raw populated.
type Packet struct {
	Kind Kind
	Raw  []byte

	Position   *Position
	Message    *Message
	Weather    *Weather
	Status     *Status
	Object     *Object
	Item       *Item
	Telemetry  *Telemetry
	ThirdParty *ThirdParty
}

// Parse classifies and decodes an APRS info field. dest is the AX.25
// destination address of the carrying frame, needed only for MIC-E
// decode (which stashes part of the position there). source is the
// frame's AX.25 source address, needed only for third-party packets,
// where it is the actual relaying station (spec.md line 86: "mark the
// outer source as the relay") — distinct from whatever original-station
// callsign the inner TNC2 header names.
func Parse(dest, source kax25.Callsign, info []byte) Packet {
	if len(info) == 0 {
		return Packet{Kind: KindUnknown, Raw: info}
	}

	switch info[0] {
	case '!', '=', '@', '/':
		if p, ok := parsePosition(info); ok {
			return Packet{Kind: KindPosition, Raw: info, Position: p}
		}
	case '`', '\'':
		if m, ok := parseMICE(dest, info); ok {
			return Packet{Kind: KindMICE, Raw: info, Position: m}
		}
	case ':':
		if m, ok := parseMessage(info); ok {
			return Packet{Kind: KindMessage, Raw: info, Message: m}
		}
	case '_':
		if w, ok := parseWeatherOnly(info); ok {
			return Packet{Kind: KindWeather, Raw: info, Weather: w}
		}
	case '>':
		return Packet{Kind: KindStatus, Raw: info, Status: parseStatus(info)}
	case ';':
		if o, ok := parseObject(info); ok {
			return Packet{Kind: KindObject, Raw: info, Object: o}
		}
	case ')':
		if it, ok := parseItem(info); ok {
			return Packet{Kind: KindItem, Raw: info, Item: it}
		}
	case '}':
		if tp, ok := parseThirdParty(source, info); ok {
			return Packet{Kind: KindThirdParty, Raw: info, ThirdParty: tp}
		}
	default:
		if len(info) >= 2 && info[0] == 'T' && info[1] == '#' {
			if tl, ok := parseTelemetry(info); ok {
				return Packet{Kind: KindTelemetry, Raw: info, Telemetry: tl}
			}
		}
	}

	return Packet{Kind: KindUnknown, Raw: info}
}
