// Package store persists stations and readings behind a backend-agnostic
// interface with PostgreSQL and SQLite implementations.
package store

import (
	"context"
	"time"

	"github.com/sells-group/airdata/internal/model"
)

// Store defines the persistence interface for stations and readings.
// Validation and constraint failures come back as error values
// (*model.ValidationError, *ConstraintError); callers must check the
// result, never assume insertion occurred.
type Store interface {
	// Stations
	AddStation(ctx context.Context, attrs model.StationAttrs) (*model.Station, error)
	ListStations(ctx context.Context) ([]model.Station, error)
	GetStation(ctx context.Context, id int64) (*model.Station, error)
	FindByLocation(ctx context.Context, lon, lat float64) ([]model.Station, error)
	GetByCoords(ctx context.Context, lat, lon float64) (*model.Station, error)
	FindByName(ctx context.Context, name string) ([]model.Station, error)
	FindByLocationRange(ctx context.Context, lonMin, lonMax, latMin, latMax float64) ([]model.Station, error)
	RemoveStation(ctx context.Context, station *model.Station) error
	UpdateStationName(ctx context.Context, station *model.Station, newName string) (*model.Station, error)

	// Readings
	AddReading(ctx context.Context, ref model.StationRef, date time.Time, tod model.TimeOfDay, typ string, value float64) (*model.Reading, error)
	AddReadingNow(ctx context.Context, ref model.StationRef, typ string, value float64) (*model.Reading, error)
	FindReadingsByDate(ctx context.Context, date time.Time) ([]model.Reading, error)

	// Bulk maintenance. ClearReadings must run before ClearStations:
	// readings reference stations.
	ClearReadings(ctx context.Context) error
	ClearStations(ctx context.Context) error
	CountStations(ctx context.Context) (int64, error)
	CountReadings(ctx context.Context) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ReadingCopier is implemented by backends that support bulk insertion of
// readings (PostgreSQL COPY). The phased loader upgrades to it when
// available.
type ReadingCopier interface {
	CopyReadings(ctx context.Context, readings []model.ReadingAttrs) (int64, error)
}
