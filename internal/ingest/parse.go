// Package ingest parses semicolon-delimited air-quality measurement files
// and bulk-loads them into the station/reading store.
package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/airdata/internal/model"
)

// ErrUnparseable marks a malformed input line. Malformed lines are the
// expected/common case in third-party sensor exports; the loader skips
// them and moves on.
var ErrUnparseable = eris.New("ingest: unparseable line")

// Record is one parsed measurement line:
// timestamp;type;value;external_id;name;"lat,lon".
type Record struct {
	Date       time.Time
	Time       model.TimeOfDay
	Type       string
	Value      float64
	ExternalID string
	Name       string
	Lat        float64
	Lon        float64
}

// timestampLayouts are tried in order after the zone marker is stripped.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// ParseLine splits one line into a typed Record. It returns an error
// wrapping ErrUnparseable for the wrong field count, a non-numeric value,
// malformed coordinates, or an unparseable timestamp. It never panics.
func ParseLine(line string) (*Record, error) {
	fields := strings.Split(line, ";")
	if len(fields) != 6 {
		return nil, eris.Wrapf(ErrUnparseable, "expected 6 fields, got %d", len(fields))
	}

	ts, err := parseTimestamp(strings.TrimSpace(fields[0]))
	if err != nil {
		return nil, err
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return nil, eris.Wrapf(ErrUnparseable, "value %q is not numeric", fields[2])
	}

	lat, lon, err := parseCoords(fields[5])
	if err != nil {
		return nil, err
	}

	return &Record{
		Date:       model.DateOf(ts),
		Time:       model.TimeOfDayFrom(ts),
		Type:       strings.TrimSpace(fields[1]),
		Value:      value,
		ExternalID: strings.TrimSpace(fields[3]),
		Name:       strings.TrimSpace(fields[4]),
		Lat:        lat,
		Lon:        lon,
	}, nil
}

// parseTimestamp parses an ISO-8601-like timestamp. A trailing zone marker
// ("Z" or a +hh:mm/-hh:mm offset) is stripped, not converted: the wall
// clock in the file is taken as-is.
func parseTimestamp(s string) (time.Time, error) {
	s = stripZone(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrUnparseable, "timestamp %q", s)
}

func stripZone(s string) string {
	s = strings.TrimSuffix(s, "Z")
	// An offset suffix has a sign after the time portion, e.g.
	// 2024-02-10T09:00:00+01:00. The date's own dashes sit before 'T'.
	if t := strings.IndexByte(s, 'T'); t >= 0 {
		if i := strings.LastIndexAny(s[t:], "+-"); i > 0 {
			s = s[:t+i]
		}
	}
	return s
}

// parseCoords splits a "lat,lon" pair. Note the (lat, lon) order here is
// the reverse of the (lon, lat) order the store's lookup functions take.
func parseCoords(s string) (lat, lon float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, eris.Wrapf(ErrUnparseable, "coordinates %q", s)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, eris.Wrapf(ErrUnparseable, "latitude %q is not numeric", parts[0])
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, eris.Wrapf(ErrUnparseable, "longitude %q is not numeric", parts[1])
	}
	return lat, lon, nil
}
