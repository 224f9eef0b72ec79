package progression

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Payload is the free-form JSON object attached to an event. Field reads
// never fail: a missing or mistyped field reports ok=false and callers skip
// whatever depended on it.
type Payload struct {
	raw string
}

// NewPayload wraps raw JSON. Invalid JSON yields an empty payload.
func NewPayload(raw []byte) Payload {
	if !gjson.ValidBytes(raw) {
		return Payload{}
	}
	return Payload{raw: string(raw)}
}

// PayloadOf builds a payload from a map, mostly for callers assembling
// events in code.
func PayloadOf(fields map[string]any) Payload {
	raw, err := json.Marshal(fields)
	if err != nil {
		return Payload{}
	}
	return Payload{raw: string(raw)}
}

// Float reads a numeric field. Numeric strings are accepted.
func (p Payload) Float(field string) (float64, bool) {
	r := gjson.Get(p.raw, field)
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Bool reports whether a field is present and truthy.
func (p Payload) Bool(field string) bool {
	r := gjson.Get(p.raw, field)
	return r.Exists() && r.Bool()
}

// Has reports whether a field is present.
func (p Payload) Has(field string) bool {
	return gjson.Get(p.raw, field).Exists()
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.raw == "" {
		return []byte("{}"), nil
	}
	return []byte(p.raw), nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Payload{}
		return nil
	}
	*p = NewPayload(data)
	return nil
}
