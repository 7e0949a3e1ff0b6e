package message

import "maps"

// Store-reserved header keys. They are stamped by the store and excluded from
// content comparison.
const (
	SavedKey            = "SAVED"
	CreatedTimestampKey = "CREATED_TIMESTAMP"
)

// Headers is the header bag of a Message: the reserved keys as typed fields
// layered over an extension map of caller-supplied keys.
type Headers struct {
	// Saved is set once the message has been persisted.
	Saved bool `json:"saved,omitempty"`

	// CreatedTimestamp is the unix-millisecond creation time of the record.
	CreatedTimestamp int64 `json:"created_timestamp,omitempty"`

	// Values holds caller-supplied headers.
	Values map[string]any `json:"values,omitempty"`
}

// IsReserved reports whether key is one of the store-reserved header keys.
func IsReserved(key string) bool {
	return key == SavedKey || key == CreatedTimestampKey
}

// Get returns the header value for key, resolving reserved keys to their
// typed fields. A zero reserved field reads as absent.
func (h Headers) Get(key string) (any, bool) {
	switch key {
	case SavedKey:
		if !h.Saved {
			return nil, false
		}
		return true, true
	case CreatedTimestampKey:
		if h.CreatedTimestamp == 0 {
			return nil, false
		}
		return h.CreatedTimestamp, true
	}
	v, ok := h.Values[key]
	return v, ok
}

// Set stores a caller-supplied header. Reserved keys cannot be set this way.
func (h *Headers) Set(key string, value any) {
	if IsReserved(key) {
		return
	}
	if h.Values == nil {
		h.Values = make(map[string]any)
	}
	h.Values[key] = value
}

// Delete removes a caller-supplied header.
func (h *Headers) Delete(key string) {
	delete(h.Values, key)
}

// Len returns the number of headers present, reserved ones included.
func (h Headers) Len() int {
	n := len(h.Values)
	if h.Saved {
		n++
	}
	if h.CreatedTimestamp != 0 {
		n++
	}
	return n
}

// Map flattens the headers into a single map, reserved keys included.
func (h Headers) Map() map[string]any {
	out := maps.Clone(h.Values)
	if out == nil {
		out = make(map[string]any, 2)
	}
	if h.Saved {
		out[SavedKey] = true
	}
	if h.CreatedTimestamp != 0 {
		out[CreatedTimestampKey] = h.CreatedTimestamp
	}
	return out
}
