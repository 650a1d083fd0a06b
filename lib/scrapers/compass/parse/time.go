package parse

import (
	"encoding/json"
	"fmt"
	"time"
)

// instantLayouts covers the portal's ISO-like formats. Offset-less stamps
// are already UTC on the wire.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Instant is a point in time decoded from the portal's ISO-like strings,
// with or without a UTC offset, normalized to UTC.
type Instant struct {
	time.Time
}

func (i *Instant) UnmarshalJSON(data []byte) error {
	var raw string
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("datetime must be a string: %w", err)
	}
	for _, layout := range instantLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			i.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized datetime %q", raw)
}

func (i Instant) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.Time.UTC().Format(time.RFC3339))
}
