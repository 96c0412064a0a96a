package kaprs

import "strings"

// Object is a decoded object report (';' indicator): a named,
// independently-moving station announced on behalf of something that
// cannot transmit for itself.
type Object struct {
	Name     string
	Live     bool // true for '*', false ("killed") for '_'
	Position *Position
}

func parseObject(info []byte) (*Object, bool) {
	// ';' name(9) liveflag(1) timestamp(7) position...
	if len(info) < 1+9+1+7 {
		return nil, false
	}
	name := strings.TrimRight(string(info[1:10]), " ")
	flag := info[10]
	if flag != '*' && flag != '_' {
		return nil, false
	}

	rest := info[18:] // skip the 7-byte timestamp
	pos, ok := parsePosition(append([]byte{'!'}, rest...))
	if !ok {
		return &Object{Name: name, Live: flag == '*'}, true
	}
	return &Object{Name: name, Live: flag == '*', Position: pos}, true
}
