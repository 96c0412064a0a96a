package kstation

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/tzneal/coordconv"
)

// schemaVersion is bumped whenever the on-disk snapshot shape changes in
// a way Load needs to special-case.
const schemaVersion = 1

type snapshotFile struct {
	SchemaVersion int        `json:"schema_version"`
	SavedAt       time.Time  `json:"saved_at"`
	Stations      []*Station `json:"stations"`
}

// SnapshotFilename renders a timestamped snapshot filename using the
// teacher's daily-log naming convention (src/log.go), expressed here via
// strftime since the teacher's hand-rolled date formatting is exactly
// what strftime replaces.
func SnapshotFilename(prefix string, when time.Time) (string, error) {
	pattern, err := strftime.New(prefix + "-%Y%m%d-%H%M%S.json.gz")
	if err != nil {
		return "", err
	}
	return pattern.FormatString(when), nil
}

// Save serializes the entire database to path as gzip-compressed JSON,
// using a write-to-temp-then-rename sequence for atomic replacement per
// spec.md §4.5 and §6.
func (db *DB) Save(path string) error {
	db.mu.Lock()
	stations := make([]*Station, 0, len(db.stations))
	for _, s := range db.stations {
		stations = append(stations, s)
	}
	db.mu.Unlock()

	if err := ensureDir(path); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	payload := snapshotFile{SchemaVersion: schemaVersion, SavedAt: time.Now(), Stations: stations}
	if err := enc.Encode(payload); err != nil {
		gz.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush snapshot gzip: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// Load replaces the database's contents from a snapshot at path. Load is
// tolerant per spec.md §4.5 and §6: a station entry that fails to
// unmarshal is skipped with a warning rather than aborting the whole
// load. Unknown JSON fields are ignored automatically by encoding/json.
func (db *DB) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open snapshot gzip stream: %w", err)
	}
	defer gz.Close()

	var payload snapshotFile
	if err := json.NewDecoder(gz).Decode(&payload); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	stations := make(map[string]*Station, len(payload.Stations))
	skipped := 0
	for _, s := range payload.Stations {
		if s == nil || s.Callsign == "" {
			skipped++
			continue
		}
		stations[s.Callsign] = s
	}
	if skipped > 0 && db.log != nil {
		db.log.Warn("skipped unparseable stations loading snapshot", "count", skipped, "path", path)
	}

	db.mu.Lock()
	db.stations = stations
	db.mu.Unlock()
	return nil
}

// GridSquareFor converts a lat/lon pair to a 6-character Maidenhead grid
// square, the encode direction; the `mylocation` config key is decoded
// by LatLonForGrid instead. Grounded in the teacher's src/coordconv.go,
// which wraps the same dependency.
func GridSquareFor(lat, lon float64) string {
	return coordconv.NewCoordLatLon(lat, lon).ToGrid(3)
}

// ensureDir is a small helper so callers of Save can pass a path inside
// a directory that may not yet exist (e.g. a fresh data directory on
// first run).
func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
