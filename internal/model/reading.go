package model

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// Reading represents a single timestamped pollutant measurement belonging
// to a station. Readings are created through validated construction and
// never updated in place.
type Reading struct {
	ID        int64     `json:"id"`
	Date      time.Time `json:"date"` // calendar date, UTC midnight
	Time      TimeOfDay `json:"time"` // wall-clock time, no date component
	Type      string    `json:"type"` // pollutant code, e.g. "PM10"
	Value     float64   `json:"value"`
	StationID int64     `json:"station_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReadingAttrs carries raw reading attributes prior to validation.
type ReadingAttrs struct {
	Date      time.Time `json:"date"`
	Time      TimeOfDay `json:"time"`
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
	StationID int64     `json:"station_id"`
}

// TimeOfDay is a wall-clock time stored as the offset from midnight.
type TimeOfDay time.Duration

// NewTimeOfDay builds a TimeOfDay from clock components.
func NewTimeOfDay(hour, min, sec int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour +
		time.Duration(min)*time.Minute +
		time.Duration(sec)*time.Second)
}

// TimeOfDayFrom extracts the wall-clock portion of t.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
}

// ParseTimeOfDay parses "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, eris.Wrapf(err, "model: parse time of day %q", s)
	}
	return TimeOfDayFrom(t), nil
}

// String renders the time as "HH:MM:SS".
func (t TimeOfDay) String() string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d:%02d",
		int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// Microseconds returns the offset from midnight in microseconds, the unit
// PostgreSQL uses for TIME columns.
func (t TimeOfDay) Microseconds() int64 {
	return int64(time.Duration(t) / time.Microsecond)
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
