package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStation_Valid(t *testing.T) {
	err := ValidateStation(StationAttrs{Name: "Kraków", Longitude: 19.933157, Latitude: 50.057224})
	assert.Nil(t, err)
}

func TestValidateStation_BoundaryCoords(t *testing.T) {
	for _, attrs := range []StationAttrs{
		{Name: "west", Longitude: -180, Latitude: 0},
		{Name: "east", Longitude: 180, Latitude: 0},
		{Name: "south", Longitude: 0, Latitude: -90},
		{Name: "north", Longitude: 0, Latitude: 90},
	} {
		assert.Nil(t, ValidateStation(attrs), "attrs %+v", attrs)
	}
}

func TestValidateStation_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		attrs StationAttrs
		field string
	}{
		{"missing name", StationAttrs{Longitude: 10, Latitude: 10}, "name"},
		{"lon too large", StationAttrs{Name: "x", Longitude: 200.0, Latitude: 10}, "lon"},
		{"lon too small", StationAttrs{Name: "x", Longitude: -180.5, Latitude: 10}, "lon"},
		{"lat too small", StationAttrs{Name: "x", Longitude: 10, Latitude: -95.0}, "lat"},
		{"lat too large", StationAttrs{Name: "x", Longitude: 10, Latitude: 90.1}, "lat"},
		{"NaN lat", StationAttrs{Name: "x", Longitude: 10, Latitude: math.NaN()}, "lat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStation(tt.attrs)
			require.NotNil(t, err)
			assert.Contains(t, err.Fields, tt.field)
		})
	}
}

func TestValidateStation_CollectsAllFields(t *testing.T) {
	err := ValidateStation(StationAttrs{Longitude: 300, Latitude: -100})
	require.NotNil(t, err)
	assert.Len(t, err.Fields, 3)
	assert.Contains(t, err.Error(), "lat")
	assert.Contains(t, err.Error(), "lon")
	assert.Contains(t, err.Error(), "name")
}

func TestValidateReading_Valid(t *testing.T) {
	err := ValidateReading(ReadingAttrs{
		Date:      DateOf(time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC)),
		Time:      NewTimeOfDay(9, 0, 0),
		Type:      "PM10",
		Value:     35.56,
		StationID: 1,
	})
	assert.Nil(t, err)
}

func TestValidateReading_NegativeValue(t *testing.T) {
	err := ValidateReading(ReadingAttrs{
		Date:      DateOf(time.Now()),
		Type:      "PM10",
		Value:     -1.0,
		StationID: 1,
	})
	require.NotNil(t, err)
	assert.Contains(t, err.Fields, "value")
}

func TestValidateReading_NonFiniteValue(t *testing.T) {
	for name, v := range map[string]float64{
		"positive inf": math.Inf(1),
		"negative inf": math.Inf(-1),
		"NaN":          math.NaN(),
	} {
		t.Run(name, func(t *testing.T) {
			err := ValidateReading(ReadingAttrs{
				Date:      DateOf(time.Now()),
				Type:      "PM10",
				Value:     v,
				StationID: 1,
			})
			require.NotNil(t, err)
			assert.Contains(t, err.Fields, "value")
		})
	}
}

func TestValidateReading_MissingFields(t *testing.T) {
	err := ValidateReading(ReadingAttrs{Value: 1.0})
	require.NotNil(t, err)
	assert.Contains(t, err.Fields, "date")
	assert.Contains(t, err.Fields, "type")
	assert.Contains(t, err.Fields, "station_id")
}

func TestTimeOfDay_RoundTrip(t *testing.T) {
	tod := NewTimeOfDay(9, 5, 30)
	assert.Equal(t, "09:05:30", tod.String())

	parsed, err := ParseTimeOfDay("09:05:30")
	require.NoError(t, err)
	assert.Equal(t, tod, parsed)
}

func TestParseTimeOfDay_Malformed(t *testing.T) {
	_, err := ParseTimeOfDay("25:99")
	assert.Error(t, err)
}

func TestStationRef(t *testing.T) {
	var ref StationRef = &Station{ID: 7}
	assert.Equal(t, int64(7), ref.StationID())

	ref = StationID(42)
	assert.Equal(t, int64(42), ref.StationID())
}

func TestDateOf(t *testing.T) {
	d := DateOf(time.Date(2024, 2, 10, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), d)
}
