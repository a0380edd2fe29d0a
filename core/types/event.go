package types

import "strconv"

// Event is the flattened form of an engine event: a dotted type such as
// "escrow.lock.created" and string attributes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute stored under key, or "".
func (e *Event) Attr(key string) string {
	if e == nil {
		return ""
	}
	return e.Attributes[key]
}

// Uint parses the attribute stored under key as a base-10 uint64.
func (e *Event) Uint(key string) (uint64, bool) {
	raw := e.Attr(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
