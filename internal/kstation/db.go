package kstation

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang/geo/s2"
)

// PrunableAgeDefault is the default age (§4.5) beyond which a station's
// last_heard makes it eligible for Prune.
const PrunableAgeDefault = 30 * 24 * time.Hour

// DB is the in-memory station database. All mutation happens from the
// RX pipeline and from explicit Save/Load calls; the mutex exists
// for the bridge/web-UI read paths that run concurrently with RX.
type DB struct {
	mu       sync.Mutex
	stations map[string]*Station
	log      *log.Logger
	home     *s2.LatLng // set by SetHome; nil until configured
}

// New constructs an empty database.
func New(logger *log.Logger) *DB {
	return &DB{stations: make(map[string]*Station), log: logger}
}

// Reception bundles everything one heard packet can contribute to a
// station's record: always a ReceptionEvent, and optionally a position
// or weather fix decoded from the same packet.
type Reception struct {
	Event    ReceptionEvent
	Position *PositionEntry
	Weather  *WeatherEntry
	Status   string // empty if absent
}

// RecordReception inserts a new station or updates the existing one,
// per spec.md §4.5.
func (db *DB) RecordReception(call string, r Reception) *Station {
	db.mu.Lock()
	defer db.mu.Unlock()

	s, ok := db.stations[call]
	if !ok {
		s = &Station{Callsign: call, FirstHeard: r.Event.Timestamp}
		db.stations[call] = s
	}
	s.LastHeard = r.Event.Timestamp
	s.recordReception(r.Event)
	if r.Position != nil {
		s.recordPosition(*r.Position)
		s.IsObject = false
		db.checkDigipeatRangeSanity(call, r.Event, r.Position)
	}
	if r.Weather != nil {
		s.recordWeather(*r.Weather)
		s.IsWeatherStation = true
	}
	if r.Status != "" {
		s.LastStatus = r.Status
	}
	return s
}

// RecordPathOnly updates only the path-history side effect of a
// duplicate reception: spec.md §8 scenario 6 requires that a
// detected-duplicate packet still contributes its new digipeater path
// to history without adding a new reception event or re-delivering the
// payload.
func (db *DB) RecordPathOnly(call string, timestamp time.Time, path []string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	s, ok := db.stations[call]
	if !ok || len(s.Positions) == 0 {
		return
	}
	last := &s.Positions[len(s.Positions)-1]
	last.Path = path
}

// MarkDigipeater classifies call as a digipeater. Per spec.md §9 Open
// Questions, classification is bootstrapped the first time a station is
// observed actually digipeating a packet; until then it is not treated
// as one.
func (db *DB) MarkDigipeater(call string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.stations[call]
	if !ok {
		s = &Station{Callsign: call}
		db.stations[call] = s
	}
	if !s.IsDigipeater {
		s.IsDigipeater = true
		if db.log != nil {
			db.log.Debug("classified station as digipeater", "callsign", call)
		}
	}
	s.DigipeatCount++
}

// IsKnownDigipeater reports whether call has previously been observed
// digipeating.
func (db *DB) IsKnownDigipeater(call string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.stations[call]
	return ok && s.IsDigipeater
}

// Get returns a copy-free pointer to the station record for call, if
// known. Callers must not mutate the returned Station outside the DB's
// own methods.
func (db *DB) Get(call string) (*Station, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.stations[call]
	return s, ok
}

// All returns every known station, for snapshot export and UI listing.
func (db *DB) All() []*Station {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*Station, 0, len(db.stations))
	for _, s := range db.stations {
		out = append(out, s)
	}
	return out
}

// Prune removes every station whose LastHeard is older than age,
// returning the count removed.
func (db *DB) Prune(age time.Duration) int {
	db.mu.Lock()
	defer db.mu.Unlock()

	cutoff := time.Now().Add(-age)
	removed := 0
	for call, s := range db.stations {
		if s.LastHeard.Before(cutoff) {
			delete(db.stations, call)
			removed++
		}
	}
	return removed
}

// DebugLevelFor returns the per-station debug-level override for call
// (SPEC_FULL.md §3), or 0 if none is set.
func (db *DB) DebugLevelFor(call string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s, ok := db.stations[call]; ok {
		return s.DebugLevel
	}
	return 0
}

// SetDebugLevelFor sets a per-station debug-level override, creating the
// station record if it does not yet exist.
func (db *DB) SetDebugLevelFor(call string, level int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.stations[call]
	if !ok {
		s = &Station{Callsign: call}
		db.stations[call] = s
	}
	s.DebugLevel = level
}
