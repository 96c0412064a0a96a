package kaprs

import (
	"regexp"
	"strconv"
)

// Weather is a decoded Complete Weather Report, either embedded in a
// position comment or standalone (the '_' positionless format).
type Weather struct {
	WindDirDeg      *int // cDDD
	WindSpeedMPH    *int // sDDD
	GustMPH         *int // gDDD
	TempF           *int // tDDD, signed
	HumidityPercent *int // hHH, 00 means 100
	PressureTenths  *int // bDDDDD, tenths of a millibar
	Rain1hHundreds  *int // rDDD, hundredths of an inch
	Rain24hHundreds *int // pDDD
	RainMidnight    *int // PDDD
	Raw             string
}

// These regexps match the Complete Weather Report fields anywhere in a
// string, per spec.md §4.3. Each field is optional and order is fixed by
// the APRS 1.01 grammar (wind dir/speed first, then the rest).
var (
	reWind = regexp.MustCompile(`c(\d{3})s(\d{3})`)
	reGust = regexp.MustCompile(`g(\d{3})`)
	reTemp = regexp.MustCompile(`t(-?\d{2,3})`)
	reHum  = regexp.MustCompile(`h(\d{2})`)
	rePres = regexp.MustCompile(`b(\d{5})`)
	reR1   = regexp.MustCompile(`r(\d{3})`)
	reR24  = regexp.MustCompile(`p(\d{3})`)
	reRMid = regexp.MustCompile(`P(\d{3})`)
)

// looksLikeWeather reports whether s contains the mandatory cDDDsDDD
// wind fields that mark a Complete Weather Report per spec.md §4.3.
func looksLikeWeather(s string) bool {
	return reWind.MatchString(s)
}

func atoiPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// parseWeatherFields extracts every recognized weather field from s.
func parseWeatherFields(s string) *Weather {
	w := &Weather{Raw: s}
	if m := reWind.FindStringSubmatch(s); m != nil {
		w.WindDirDeg = atoiPtr(m[1])
		w.WindSpeedMPH = atoiPtr(m[2])
	}
	if m := reGust.FindStringSubmatch(s); m != nil {
		w.GustMPH = atoiPtr(m[1])
	}
	if m := reTemp.FindStringSubmatch(s); m != nil {
		w.TempF = atoiPtr(m[1])
	}
	if m := reHum.FindStringSubmatch(s); m != nil {
		h := atoiPtr(m[1])
		if h != nil && *h == 0 {
			*h = 100
		}
		w.HumidityPercent = h
	}
	if m := rePres.FindStringSubmatch(s); m != nil {
		w.PressureTenths = atoiPtr(m[1])
	}
	if m := reR1.FindStringSubmatch(s); m != nil {
		w.Rain1hHundreds = atoiPtr(m[1])
	}
	if m := reR24.FindStringSubmatch(s); m != nil {
		w.Rain24hHundreds = atoiPtr(m[1])
	}
	if m := reRMid.FindStringSubmatch(s); m != nil {
		w.RainMidnight = atoiPtr(m[1])
	}
	return w
}

// parseWeatherOnly decodes the positionless weather report ('_'
// indicator): an 8-character DDHHMM-style timestamp-like prefix
// followed by the same field grammar as an embedded weather comment.
func parseWeatherOnly(info []byte) (*Weather, bool) {
	body := string(info[1:])
	if !looksLikeWeather(body) {
		return nil, false
	}
	return parseWeatherFields(body), true
}
