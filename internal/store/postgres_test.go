package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/airdata/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit
// testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{
		pool: mock,
		now:  func() time.Time { return time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC) },
	}
	return s, mock
}

func TestPostgresStore_AddStation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO stations`).
		WithArgs("Kraków", 19.933157, 50.057224, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	station, err := s.AddStation(context.Background(), model.StationAttrs{
		Name: "Kraków", Longitude: 19.933157, Latitude: 50.057224,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), station.ID)
	assert.Equal(t, "Kraków", station.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddStation_ValidationShortCircuits(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Out-of-range coordinates never reach the pool.
	_, err := s.AddStation(context.Background(), model.StationAttrs{
		Name: "bad", Longitude: 200.0, Latitude: 0,
	})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByCoords_ArgOrder(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	// GetByCoords takes (lat, lon) but queries WHERE lon = $1 AND lat = $2.
	mock.ExpectQuery(`SELECT id, name, lon, lat, created_at, updated_at FROM stations WHERE lon = \$1 AND lat = \$2`).
		WithArgs(19.933157, 50.057224).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "lon", "lat", "created_at", "updated_at"}).
			AddRow(int64(3), "Kraków", 19.933157, 50.057224, now, now))

	station, err := s.GetByCoords(context.Background(), 50.057224, 19.933157)
	require.NoError(t, err)
	assert.Equal(t, int64(3), station.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByCoords_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, lon, lat, created_at, updated_at FROM stations WHERE lon = \$1 AND lat = \$2`).
		WithArgs(0.0, 0.0).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetByCoords(context.Background(), 0.0, 0.0)
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddReading_ForeignKeyViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO readings`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "PM10", 1.0, int64(999999), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "readings_station_id_fkey"})

	_, err := s.AddReading(context.Background(), model.StationID(999999),
		time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), model.NewTimeOfDay(9, 0, 0), "PM10", 1.0)
	require.True(t, IsConstraint(err), "got %v", err)

	var ce *ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "readings_station_id_fkey", ce.Constraint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddReading_NegativeValue(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.AddReading(context.Background(), model.StationID(1),
		time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), model.NewTimeOfDay(9, 0, 0), "PM10", -1.0)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddReadingNow_StampsClock(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO readings`).
		WithArgs(
			time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
			pgxmock.AnyArg(),
			"PM10", 35.56, int64(1),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(10)))

	r, err := s.AddReadingNow(context.Background(), model.StationID(1), "PM10", 35.56)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), r.Date)
	assert.Equal(t, model.NewTimeOfDay(9, 0, 0), r.Time)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStationName_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE stations SET name = \$1`).
		WithArgs("New", pgxmock.AnyArg(), int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	station := &model.Station{ID: 5, Name: "Old", Longitude: 19.9, Latitude: 50.0}
	_, err := s.UpdateStationName(context.Background(), station, "New")
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RemoveStation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM stations WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := s.RemoveStation(context.Background(), &model.Station{ID: 5})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearOrder(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM readings`).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM stations`).WillReturnResult(pgxmock.NewResult("DELETE", 1))

	ctx := context.Background()
	require.NoError(t, s.ClearReadings(ctx))
	require.NoError(t, s.ClearStations(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CopyReadings(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"readings"},
		[]string{"date", "time", "type", "value", "station_id", "created_at", "updated_at"}).
		WillReturnResult(2)

	n, err := s.CopyReadings(context.Background(), []model.ReadingAttrs{
		{Date: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), Time: model.NewTimeOfDay(9, 0, 0), Type: "PM10", Value: 35.56, StationID: 1},
		{Date: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), Time: model.NewTimeOfDay(10, 0, 0), Type: "PM25", Value: 12.3, StationID: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CopyReadings_ValidatesFirst(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.CopyReadings(context.Background(), []model.ReadingAttrs{
		{Date: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), Type: "PM10", Value: -1.0, StationID: 1},
	})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByLocationRange(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`WHERE lon BETWEEN \$1 AND \$2 AND lat BETWEEN \$3 AND \$4`).
		WithArgs(19.0, 20.0, 49.0, 51.0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "lon", "lat", "created_at", "updated_at"}).
			AddRow(int64(1), "Kraków", 19.9, 50.0, now, now))

	found, err := s.FindByLocationRange(context.Background(), 19.0, 20.0, 49.0, 51.0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Kraków", found[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
