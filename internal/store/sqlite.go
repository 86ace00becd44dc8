package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/airdata/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. PRAGMAs apply per connection, so the pool is pinned to a single
// connection; a single-writer loader does not need more.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	lon        REAL NOT NULL,
	lat        REAL NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS readings (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	date       TEXT NOT NULL,
	time       TEXT NOT NULL,
	type       TEXT NOT NULL,
	value      REAL NOT NULL,
	station_id INTEGER NOT NULL REFERENCES stations(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_readings_station_id ON readings(station_id);
CREATE INDEX IF NOT EXISTS idx_readings_date ON readings(date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AddStation(ctx context.Context, attrs model.StationAttrs) (*model.Station, error) {
	if verr := model.ValidateStation(attrs); verr != nil {
		return nil, verr
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stations (name, lon, lat, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		attrs.Name, attrs.Longitude, attrs.Latitude, now, now,
	)
	if err != nil {
		return nil, wrapSQLiteError(err, "sqlite: insert station")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert station id")
	}

	return &model.Station{
		ID:        id,
		Name:      attrs.Name,
		Longitude: attrs.Longitude,
		Latitude:  attrs.Latitude,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) ListStations(ctx context.Context) ([]model.Station, error) {
	return s.queryStations(ctx, "sqlite: list stations",
		`SELECT `+stationColumns+` FROM stations`)
}

func (s *SQLiteStore) GetStation(ctx context.Context, id int64) (*model.Station, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stationColumns+` FROM stations WHERE id = ?`, id)

	var st model.Station
	err := row.Scan(&st.ID, &st.Name, &st.Longitude, &st.Latitude, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "station", Key: fmt64(id)}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get station %d", id)
	}
	return &st, nil
}

func (s *SQLiteStore) FindByLocation(ctx context.Context, lon, lat float64) ([]model.Station, error) {
	return s.queryStations(ctx, "sqlite: find by location",
		`SELECT `+stationColumns+` FROM stations WHERE lon = ? AND lat = ? ORDER BY id`,
		lon, lat)
}

// GetByCoords returns the first exact match. Argument order is (lat, lon),
// the reverse of FindByLocation.
func (s *SQLiteStore) GetByCoords(ctx context.Context, lat, lon float64) (*model.Station, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stationColumns+` FROM stations WHERE lon = ? AND lat = ? ORDER BY id LIMIT 1`,
		lon, lat)

	var st model.Station
	err := row.Scan(&st.ID, &st.Name, &st.Longitude, &st.Latitude, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "station", Key: coordKey(lat, lon)}
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get by coords")
	}
	return &st, nil
}

func (s *SQLiteStore) FindByName(ctx context.Context, name string) ([]model.Station, error) {
	return s.queryStations(ctx, "sqlite: find by name",
		`SELECT `+stationColumns+` FROM stations WHERE name = ? ORDER BY id`,
		name)
}

func (s *SQLiteStore) FindByLocationRange(ctx context.Context, lonMin, lonMax, latMin, latMax float64) ([]model.Station, error) {
	return s.queryStations(ctx, "sqlite: find by location range",
		`SELECT `+stationColumns+` FROM stations
		 WHERE lon BETWEEN ? AND ? AND lat BETWEEN ? AND ? ORDER BY id`,
		lonMin, lonMax, latMin, latMax)
}

func (s *SQLiteStore) RemoveStation(ctx context.Context, station *model.Station) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stations WHERE id = ?`, station.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: remove station %d", station.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return &NotFoundError{Entity: "station", Key: fmt64(station.ID)}
	}
	return nil
}

func (s *SQLiteStore) UpdateStationName(ctx context.Context, station *model.Station, newName string) (*model.Station, error) {
	attrs := model.StationAttrs{Name: newName, Longitude: station.Longitude, Latitude: station.Latitude}
	if verr := model.ValidateStation(attrs); verr != nil {
		return nil, verr
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE stations SET name = ?, updated_at = ? WHERE id = ?`,
		newName, now, station.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update station name %d", station.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return nil, &NotFoundError{Entity: "station", Key: fmt64(station.ID)}
	}

	updated := *station
	updated.Name = newName
	updated.UpdatedAt = now
	return &updated, nil
}

func (s *SQLiteStore) AddReading(ctx context.Context, ref model.StationRef, date time.Time, tod model.TimeOfDay, typ string, value float64) (*model.Reading, error) {
	attrs := model.ReadingAttrs{
		Date:      model.DateOf(date),
		Time:      tod,
		Type:      typ,
		Value:     value,
		StationID: ref.StationID(),
	}
	if verr := model.ValidateReading(attrs); verr != nil {
		return nil, verr
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (date, time, type, value, station_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attrs.Date.Format(time.DateOnly), attrs.Time.String(), attrs.Type, attrs.Value, attrs.StationID, now, now,
	)
	if err != nil {
		return nil, wrapSQLiteError(err, "sqlite: insert reading")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert reading id")
	}

	return &model.Reading{
		ID:        id,
		Date:      attrs.Date,
		Time:      attrs.Time,
		Type:      attrs.Type,
		Value:     attrs.Value,
		StationID: attrs.StationID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) AddReadingNow(ctx context.Context, ref model.StationRef, typ string, value float64) (*model.Reading, error) {
	now := s.now()
	return s.AddReading(ctx, ref, model.DateOf(now), model.TimeOfDayFrom(now), typ, value)
}

func (s *SQLiteStore) FindReadingsByDate(ctx context.Context, date time.Time) ([]model.Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, time, type, value, station_id, created_at, updated_at FROM readings WHERE date = ? ORDER BY id`,
		model.DateOf(date).Format(time.DateOnly),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find readings by date")
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		var r model.Reading
		var dateStr, todStr string
		if err := rows.Scan(&r.ID, &dateStr, &todStr, &r.Type, &r.Value, &r.StationID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reading")
		}
		r.Date, err = time.ParseInLocation(time.DateOnly, dateStr, time.UTC)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse reading date %q", dateStr)
		}
		r.Time, err = model.ParseTimeOfDay(todStr)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse reading time")
		}
		readings = append(readings, r)
	}
	return readings, eris.Wrap(rows.Err(), "sqlite: find readings by date iterate")
}

func (s *SQLiteStore) ClearReadings(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM readings`)
	return eris.Wrap(err, "sqlite: clear readings")
}

func (s *SQLiteStore) ClearStations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM stations`)
	return eris.Wrap(err, "sqlite: clear stations")
}

func (s *SQLiteStore) CountStations(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stations`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count stations")
}

func (s *SQLiteStore) CountReadings(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count readings")
}

// helpers

func (s *SQLiteStore) queryStations(ctx context.Context, op, query string, args ...any) ([]model.Station, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, op)
	}
	defer rows.Close()

	var stations []model.Station
	for rows.Next() {
		var st model.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Longitude, &st.Latitude, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, eris.Wrapf(err, "%s: scan", op)
		}
		stations = append(stations, st)
	}
	return stations, eris.Wrapf(rows.Err(), "%s: iterate", op)
}

// wrapSQLiteError maps SQLITE_CONSTRAINT result codes onto ConstraintError.
func wrapSQLiteError(err error, op string) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) && serr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		constraint := "constraint"
		if serr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			constraint = "foreign key"
		}
		return &ConstraintError{Op: op, Constraint: constraint, Err: err}
	}
	return eris.Wrap(err, op)
}
