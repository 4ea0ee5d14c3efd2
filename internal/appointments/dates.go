package appointments

import (
	"strings"
	"time"

	"github.com/wolfman30/mundos-engagement/internal/docstore"
)

// naiveLayouts are accepted for timestamps that carry no zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	dateOnly,
}

const dateOnly = "2006-01-02"

// parseTime reads an RFC 3339 timestamp, or a zone-less one in loc. The
// second result reports whether the value was a bare date.
func parseTime(s string, loc *time.Location) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, false, nil
	}
	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, layout == dateOnly, nil
		}
		lastErr = err
	}
	return time.Time{}, false, lastErr
}

// StoredDate reads the appointment_date of a stored appointment document.
// Zone-less values are read in loc.
func StoredDate(doc docstore.Document, loc *time.Location) (time.Time, bool) {
	raw, ok := doc["appointment_date"].(string)
	if !ok {
		return time.Time{}, false
	}
	t, _, err := parseTime(raw, loc)
	return t, err == nil
}
