package kaprs

import "github.com/k1fsy/station-samoyed/internal/kax25"

// micEStdStatus maps the 3-bit standard message code to the eight MIC-E
// status strings.
var micEStdStatus = [8]string{
	"Emergency", "Priority", "Special", "Committed",
	"Returning", "In Service", "En Route", "Off Duty",
}

// micEDigit decodes one character of the MIC-E destination address to
// a latitude digit (0-9), recording whether it set a standard-message
// or custom-message bit at the given mask position, per the table in
// APRS 1.01 chapter 10 (destination address field encoding).
func micEDigit(c byte, mask int, std, cust *int) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'J':
		*cust |= mask
		return int(c - 'A')
	case c >= 'P' && c <= 'Y':
		*std |= mask
		return int(c - 'P')
	case c == 'K':
		*cust |= mask
		return 0
	case c == 'L':
		return 0
	case c == 'Z':
		*std |= mask
		return 0
	default:
		return 0
	}
}

const micEPacketMinLen = 9 // DTI + 3 lon + 3 speed/course + symbol code + symbol table

// parseMICE decodes a MIC-E position packet. dest is the carrying
// frame's AX.25 destination address, which stashes the latitude digits
// and the 3-bit message-type code.
func parseMICE(dest kax25.Callsign, info []byte) (*Position, bool) {
	if len(info) < micEPacketMinLen {
		return nil, false
	}

	destBase := dest.Base
	for len(destBase) < 6 {
		destBase += " "
	}
	d := []byte(destBase)

	var std, cust int
	lat := float64(micEDigit(d[0], 4, &std, &cust)*10+micEDigit(d[1], 2, &std, &cust)) +
		float64(micEDigit(d[2], 1, &std, &cust)*1000+
			micEDigit(d[3], 0, &std, &cust)*100+
			micEDigit(d[4], 0, &std, &cust)*10+
			micEDigit(d[5], 0, &std, &cust))/6000.0

	switch {
	case (d[3] >= '0' && d[3] <= '9') || d[3] == 'L':
		lat = -lat // South
	case d[3] >= 'P' && d[3] <= 'Z':
		// North, no change.
	default:
		return nil, false
	}

	var lonOffset bool
	switch {
	case (d[4] >= '0' && d[4] <= '9') || d[4] == 'L':
		lonOffset = false
	case d[4] >= 'P' && d[4] <= 'Z':
		lonOffset = true
	default:
		return nil, false
	}

	lon0, lon1, lon2 := info[1], info[2], info[3]

	var lon float64
	switch {
	case lonOffset && lon0 >= 118 && lon0 <= 127:
		lon = float64(lon0 - 118)
	case !lonOffset && lon0 >= 38 && lon0 <= 127:
		lon = float64(lon0-38) + 10
	case lonOffset && lon0 >= 108 && lon0 <= 117:
		lon = float64(lon0-108) + 100
	case lonOffset && lon0 >= 38 && lon0 <= 107:
		lon = float64(lon0-38) + 110
	default:
		return nil, false
	}

	if lon1 < 38 || lon1 > 97 {
		return nil, false
	}
	if lon1 >= 88 && lon1 <= 97 {
		lon += float64(lon1-88) / 60.0
	} else if lon1 >= 38 && lon1 <= 87 {
		lon += float64((lon1-38)+10) / 60.0
	} else {
		return nil, false
	}

	if lon2 < 28 {
		return nil, false
	}
	lon += float64(lon2-28) / 6000.0

	switch {
	case (d[5] >= '0' && d[5] <= '9') || d[5] == 'L':
		// East, no change.
	case d[5] >= 'P' && d[5] <= 'Z':
		lon = -lon
	default:
		return nil, false
	}

	symCode := info[7]
	symTable := info[8]

	sc0, sc1, sc2 := int(info[4])-28, int(info[5])-28, int(info[6])-28
	speedKnots := sc0*10 + sc1/10
	if speedKnots >= 800 {
		speedKnots -= 800
	}
	speedMPH := int(float64(speedKnots) * 1.15078)

	course := (sc1%10)*100 + sc2
	if course >= 400 {
		course -= 400
	}
	if course == 360 {
		course = 0
	}

	comment := ""
	if len(info) > micEPacketMinLen {
		comment = string(info[micEPacketMinLen:])
	}

	status := "Unknown MIC-E Message Type"
	switch {
	case std == 0 && cust == 0:
		status = "Emergency"
	case std != 0 && cust == 0:
		status = micEStdStatus[std]
	}

	return &Position{
		Lat:         lat,
		Lon:         lon,
		SymbolTable: symTable,
		SymbolCode:  symCode,
		Comment:     comment,
		SpeedMPH:    &speedMPH,
		CourseDeg:   &course,
		Status:      status,
	}, true
}
