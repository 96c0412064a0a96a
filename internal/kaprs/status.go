package kaprs

// Status is a decoded status report ('>' indicator): free text,
// optionally led by a 7-char timestamp (APRS 1.01 §16). This system
// does not interpret the timestamp and retains the raw text.
type Status struct {
	Text string
}

func parseStatus(info []byte) *Status {
	return &Status{Text: string(info[1:])}
}
