package kaprs

import "strings"

// Telemetry is a decoded telemetry report ("T#" indicator): a sequence
// number, five analog values, and eight digital bits, per APRS
// 1.01 §13.
type Telemetry struct {
	Sequence string
	Analog   [5]string
	Digital  string
}

func parseTelemetry(info []byte) (*Telemetry, bool) {
	body := string(info[2:])
	fields := strings.Split(body, ",")
	if len(fields) < 7 {
		return nil, false
	}
	t := &Telemetry{Sequence: fields[0], Digital: fields[6]}
	for i := 0; i < 5; i++ {
		t.Analog[i] = fields[i+1]
	}
	return t, true
}
