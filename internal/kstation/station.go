// Package kstation maintains the in-memory database of heard stations
// and their reception, position and weather history, per spec.md §4.5.
//
// Grounded in the teacher's src/mheard.go (map-keyed station records,
// mutex-guarded writes, reader-without-lock convention) generalized
// from a heard-count tally into the full reception/position/weather
// history spec.md §3 and §4.5 require.
package kstation

import (
	"time"

	"github.com/k1fsy/station-samoyed/internal/kaprs"
)

// Retention caps per spec.md §4.5.
const (
	MaxPositions  = 100
	MaxWeather    = 100
	MaxReceptions = 500
)

// HopIgated marks a reception as having arrived via a third-party
// (igate) relay rather than direct RF or digipeating, per spec.md §3.
const HopIgated = 999

// ReceptionEvent is a per-packet record appended to a station's history
// in receive order.
type ReceptionEvent struct {
	Timestamp  time.Time
	HopCount   int // 0=direct, 1-7=digipeated N times, HopIgated=igated
	DirectRF   bool
	RelayCall  string
	Path       []string
	PacketType string
	FrameRef   int // optional frame-buffer reference number, 0 if absent
}

// PositionEntry is one historical position fix.
type PositionEntry struct {
	Timestamp time.Time
	Lat, Lon  float64
	Symbol    string // two characters: table then code
	Comment   string
	HopCount  int
	DirectRF  bool
	RelayCall string
	Path      []string
}

// WeatherEntry is one historical weather observation.
type WeatherEntry struct {
	Timestamp time.Time
	Weather   kaprs.Weather
}

// Station is the record for one callsign: reception history plus
// classification flags derived from what has been observed.
type Station struct {
	Callsign string

	FirstHeard time.Time
	LastHeard  time.Time

	Receptions []ReceptionEvent
	Positions  []PositionEntry
	Weather    []WeatherEntry
	LastStatus string

	IsDigipeater     bool
	IsWeatherStation bool
	IsObject         bool

	DigipeatCount int

	// DebugLevel overrides the global log level for this station when
	// non-zero (a supplemented feature from original_source/constants.py
	// DEBUG_STATION_FILTERS; see SPEC_FULL.md §3).
	DebugLevel int
}

func (s *Station) recordReception(ev ReceptionEvent) {
	s.Receptions = append(s.Receptions, ev)
	if len(s.Receptions) > MaxReceptions {
		s.Receptions = s.Receptions[len(s.Receptions)-MaxReceptions:]
	}
}

// recordPosition appends a position fix, deduplicating by
// timestamp-at-minute-granularity to tolerate reception bursts from
// multiple digipeater paths of the same fix.
func (s *Station) recordPosition(p PositionEntry) {
	minuteOf := p.Timestamp.Truncate(time.Minute)
	for i := range s.Positions {
		if s.Positions[i].Timestamp.Truncate(time.Minute).Equal(minuteOf) {
			s.Positions[i] = p
			return
		}
	}
	s.Positions = append(s.Positions, p)
	if len(s.Positions) > MaxPositions {
		s.Positions = s.Positions[len(s.Positions)-MaxPositions:]
	}
}

func (s *Station) recordWeather(w WeatherEntry) {
	minuteOf := w.Timestamp.Truncate(time.Minute)
	for i := range s.Weather {
		if s.Weather[i].Timestamp.Truncate(time.Minute).Equal(minuteOf) {
			s.Weather[i] = w
			return
		}
	}
	s.Weather = append(s.Weather, w)
	if len(s.Weather) > MaxWeather {
		s.Weather = s.Weather[len(s.Weather)-MaxWeather:]
	}
}

// PositionsNewestFirst returns the position history sorted
// newest-first, the external-facing order spec.md §3 specifies
// ("histories are kept newest-first after sorting (application-level)").
func (s *Station) PositionsNewestFirst() []PositionEntry {
	out := make([]PositionEntry, len(s.Positions))
	copy(out, s.Positions)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
