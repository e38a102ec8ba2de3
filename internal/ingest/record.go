package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RawRecord is one untrusted lead record. Accessors never fail: a missing,
// null or wrongly typed value reads as absent.
type RawRecord map[string]json.RawMessage

// decodeRecord parses a single record. Anything but a JSON object is skipped.
func decodeRecord(raw json.RawMessage) (RawRecord, error) {
	var rec RawRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
		return nil, skipf("record is not an object")
	}
	return rec, nil
}

// Raw returns the value for key, or nil when absent or null.
func (r RawRecord) Raw(key string) json.RawMessage {
	v, ok := r[key]
	if !ok || isNull(v) {
		return nil
	}
	return v
}

// String returns a scalar as text. Empty strings, booleans, arrays and
// objects read as absent; numbers keep their literal form.
func (r RawRecord) String(key string) *string {
	v := r.Raw(key)
	if v == nil {
		return nil
	}
	s, ok := scalarText(v)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// Text returns a JSON string value. Any other type reads as absent.
func (r RawRecord) Text(key string) *string {
	var s string
	v := r.Raw(key)
	if v == nil || json.Unmarshal(v, &s) != nil {
		return nil
	}
	return &s
}

// Bool returns true only for a JSON true.
func (r RawRecord) Bool(key string) bool {
	var b bool
	if v := r.Raw(key); v != nil {
		_ = json.Unmarshal(v, &b)
	}
	return b
}

// Array returns the elements of a JSON array, or nil.
func (r RawRecord) Array(key string) []json.RawMessage {
	v := r.Raw(key)
	if v == nil {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil
	}
	return items
}

// Object returns a nested object as a RawRecord, or nil.
func (r RawRecord) Object(key string) RawRecord {
	v := r.Raw(key)
	if v == nil {
		return nil
	}
	var obj RawRecord
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil
	}
	return obj
}

// Time parses a timestamp given as text or epoch milliseconds.
func (r RawRecord) Time(key string) *time.Time {
	v := r.Raw(key)
	if v == nil {
		return nil
	}
	return parseTime(v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(v json.RawMessage) *time.Time {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			t := time.UnixMilli(ms).UTC()
			return &t
		}
		return nil
	}

	var ms json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&ms); err != nil {
		return nil
	}
	n, err := ms.Int64()
	if err != nil {
		return nil
	}
	t := time.UnixMilli(n).UTC()
	return &t
}

// scalarText renders a JSON string or number as text.
func scalarText(v json.RawMessage) (string, bool) {
	switch {
	case len(v) == 0:
		return "", false
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return s, true
	case v[0] == '-' || (v[0] >= '0' && v[0] <= '9'):
		return string(v), true
	default:
		return "", false
	}
}

// compactJSON returns v without insignificant whitespace.
func compactJSON(v json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}
