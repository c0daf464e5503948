package provider

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Timestamp is a resource date. The 2010-04-01 API writes dates in RFC 2822
// form ("Tue, 31 Aug 2010 20:36:28 +0000") and null while a call has not
// started; RFC 3339 is accepted too.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC3339}

// ParseTimestamp parses s in any accepted layout. Empty input is the zero
// Timestamp.
func ParseTimestamp(s string) (Timestamp, error) {
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, eris.Errorf("unrecognised timestamp %q", s)
}

// UnmarshalJSON accepts a date string or null
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return eris.Wrap(err, "timestamp must be a string")
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON writes RFC 3339, or null for the zero value
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}
