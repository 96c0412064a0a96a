package kstation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang/geo/s2"
)

// earthRadiusKM is the mean Earth radius used to turn an s2 angular
// distance into kilometers for display and sanity checks.
const earthRadiusKM = 6371.0088

// DigipeatRangeSanityKM is the rule-of-thumb upper bound on a single VHF
// APRS hop (per original_source/constants.py's DIGIPEAT_RANGE_SANITY
// note on typical line-of-sight coverage). RecordReception logs when a
// digipeated position report's great-circle distance from home exceeds
// this, which usually means either an unusually good opening or a
// misconfigured/duplicate-callsign digipeater rather than a real hop.
const DigipeatRangeSanityKM = 500.0

// SetHome records this station's own location, in degrees, as the
// center point for NearestStations and digipeat-range sanity logging.
func (db *DB) SetHome(lat, lon float64) {
	ll := s2.LatLngFromDegrees(lat, lon)
	db.mu.Lock()
	db.home = &ll
	db.mu.Unlock()
}

// StationDistance pairs a callsign with its great-circle distance from
// home, as computed by NearestStations.
type StationDistance struct {
	Callsign   string
	DistanceKM float64
}

// NearestStations returns up to limit known stations with a recorded
// position, sorted by distance from home (nearest first). It returns nil
// if SetHome was never called.
func (db *DB) NearestStations(limit int) []StationDistance {
	db.mu.Lock()
	home := db.home
	stations := make([]*Station, 0, len(db.stations))
	for _, s := range db.stations {
		stations = append(stations, s)
	}
	db.mu.Unlock()

	if home == nil {
		return nil
	}

	out := make([]StationDistance, 0, len(stations))
	for _, s := range stations {
		if len(s.Positions) == 0 {
			continue
		}
		last := s.Positions[len(s.Positions)-1]
		out = append(out, StationDistance{
			Callsign:   s.Callsign,
			DistanceKM: distanceKM(*home, last.Lat, last.Lon),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKM < out[j].DistanceKM })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func distanceKM(home s2.LatLng, lat, lon float64) float64 {
	other := s2.LatLngFromDegrees(lat, lon)
	return float64(home.Distance(other)) * earthRadiusKM
}

// checkDigipeatRangeSanity logs when a digipeated position report's
// distance from home exceeds DigipeatRangeSanityKM. Called from
// RecordReception; a no-op until SetHome has established a home point.
func (db *DB) checkDigipeatRangeSanity(call string, ev ReceptionEvent, p *PositionEntry) {
	if db.home == nil || p == nil || ev.HopCount <= 0 || db.log == nil {
		return
	}
	km := distanceKM(*db.home, p.Lat, p.Lon)
	if km > DigipeatRangeSanityKM {
		db.log.Warn("digipeated position report farther than typical hop range",
			"callsign", call, "distance_km", fmt.Sprintf("%.0f", km), "hop_count", ev.HopCount)
	}
}

// LatLonForGrid decodes a 2, 4 or 6 character Maidenhead grid locator
// (the `mylocation` config key's format, §6) into the center of that
// grid cell. Implemented directly against the public Maidenhead
// algorithm rather than guessing at a decode method on coordconv's
// surface, since that library's exact API could not be confirmed
// firsthand (see DESIGN.md's note on kstation/snapshot.go's encode
// side, the one call into coordconv this repo does use).
func LatLonForGrid(grid string) (lat, lon float64, err error) {
	g := strings.ToUpper(strings.TrimSpace(grid))
	if len(g) != 2 && len(g) != 4 && len(g) != 6 {
		return 0, 0, fmt.Errorf("kstation: grid locator %q must be 2, 4 or 6 characters", grid)
	}
	if g[0] < 'A' || g[0] > 'R' || g[1] < 'A' || g[1] > 'R' {
		return 0, 0, fmt.Errorf("kstation: grid locator %q has an invalid field", grid)
	}

	lon = float64(g[0]-'A')*20 - 180
	lat = float64(g[1]-'A')*10 - 90
	lonSize, latSize := 20.0, 10.0

	if len(g) >= 4 {
		if g[2] < '0' || g[2] > '9' || g[3] < '0' || g[3] > '9' {
			return 0, 0, fmt.Errorf("kstation: grid locator %q has an invalid square", grid)
		}
		lon += float64(g[2]-'0') * 2
		lat += float64(g[3]-'0') * 1
		lonSize, latSize = 2, 1
	}

	if len(g) == 6 {
		if g[4] < 'A' || g[4] > 'X' || g[5] < 'A' || g[5] > 'X' {
			return 0, 0, fmt.Errorf("kstation: grid locator %q has an invalid subsquare", grid)
		}
		lon += float64(g[4]-'A') * (2.0 / 24)
		lat += float64(g[5]-'A') * (1.0 / 24)
		lonSize, latSize = 2.0/24, 1.0/24
	}

	lon += lonSize / 2
	lat += latSize / 2
	return lat, lon, nil
}
