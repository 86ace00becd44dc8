package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ValidationError enumerates field-level problems found before any store
// call. It is returned as a value, never panicked.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateStation checks station attributes against the data-model rules:
// name required, lon in [-180, 180], lat in [-90, 90]. Returns nil when
// the attributes are ready to persist.
func ValidateStation(attrs StationAttrs) *ValidationError {
	fields := map[string]string{}

	if strings.TrimSpace(attrs.Name) == "" {
		fields["name"] = "is required"
	}
	if !inRange(attrs.Longitude, -180, 180) {
		fields["lon"] = fmt.Sprintf("must be between -180 and 180, got %v", attrs.Longitude)
	}
	if !inRange(attrs.Latitude, -90, 90) {
		fields["lat"] = fmt.Sprintf("must be between -90 and 90, got %v", attrs.Latitude)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateReading checks reading attributes: date, time, type, value and
// station_id all required, value >= 0. Whether station_id references an
// existing station is the backing store's concern and surfaces as a
// constraint failure there, not here.
func ValidateReading(attrs ReadingAttrs) *ValidationError {
	fields := map[string]string{}

	if attrs.Date.IsZero() {
		fields["date"] = "is required"
	}
	if strings.TrimSpace(attrs.Type) == "" {
		fields["type"] = "is required"
	}
	if attrs.StationID <= 0 {
		fields["station_id"] = "is required"
	}
	if math.IsNaN(attrs.Value) || math.IsInf(attrs.Value, 0) || attrs.Value < 0 {
		fields["value"] = fmt.Sprintf("must be >= 0, got %v", attrs.Value)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= lo && v <= hi
}
