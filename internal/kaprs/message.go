package kaprs

import "strings"

// Message is a decoded APRS message packet (':' indicator).
type Message struct {
	Addressee string
	Text      string
	MsgID     string // empty if absent
	IsAck     bool
	IsRej     bool
}

// parseMessage decodes the ':' message format: bytes 1-9 are the
// addressee right-padded to 9 characters, byte 10 is ':', and the rest
// is free text optionally suffixed with "{MSGID".
func parseMessage(info []byte) (*Message, bool) {
	if len(info) < 11 || info[10] != ':' {
		return nil, false
	}
	addressee := strings.TrimRight(string(info[1:10]), " ")
	rest := string(info[11:])

	m := &Message{Addressee: addressee, Text: rest}
	if idx := strings.LastIndexByte(rest, '{'); idx >= 0 {
		m.Text = rest[:idx]
		m.MsgID = rest[idx+1:]
	}

	switch {
	case strings.HasPrefix(m.Text, "ack"):
		m.IsAck = true
		m.MsgID = strings.TrimPrefix(m.Text, "ack")
		m.Text = ""
	case strings.HasPrefix(m.Text, "rej"):
		m.IsRej = true
		m.MsgID = strings.TrimPrefix(m.Text, "rej")
		m.Text = ""
	}
	return m, true
}

// FormatMessage encodes a Message into its wire info-field form.
func FormatMessage(addressee, text, msgID string) string {
	for len(addressee) < 9 {
		addressee += " "
	}
	s := ":" + addressee[:9] + ":" + text
	if msgID != "" {
		s += "{" + msgID
	}
	return s
}
