package kaprs

// Item is a decoded item report (')' indicator): like an Object but
// with a variable-length name (3-9 characters) terminated by '!'
// (live) or '_' (killed) instead of a fixed 9-character field.
type Item struct {
	Name     string
	Live     bool
	Position *Position
}

func parseItem(info []byte) (*Item, bool) {
	body := info[1:]
	term := -1
	for i := 0; i < len(body) && i < 10; i++ {
		if body[i] == '!' || body[i] == '_' {
			term = i
			break
		}
	}
	if term < 3 {
		return nil, false
	}

	name := string(body[:term])
	live := body[term] == '!'
	rest := body[term+1:]

	pos, ok := parsePosition(append([]byte{'!'}, rest...))
	if !ok {
		return &Item{Name: name, Live: live}, true
	}
	return &Item{Name: name, Live: live, Position: pos}, true
}
