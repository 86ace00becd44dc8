package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/airdata/internal/db"
	"github.com/sells-group/airdata/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. The
// loader hits these once or twice per CSV line.
var preparedStatements = map[string]string{
	"get_station_by_coords": `SELECT id, name, lon, lat, created_at, updated_at FROM stations WHERE lon = $1 AND lat = $2 ORDER BY id LIMIT 1`,
	"insert_station":        `INSERT INTO stations (name, lon, lat, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
	"insert_reading":        `INSERT INTO readings (date, time, type, value, station_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{
		pool:    pool,
		closeFn: pool.Close,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS stations (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	lon        DOUBLE PRECISION NOT NULL,
	lat        DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS readings (
	id         BIGSERIAL PRIMARY KEY,
	date       DATE NOT NULL,
	time       TIME NOT NULL,
	type       TEXT NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	station_id BIGINT NOT NULL REFERENCES stations(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_readings_station_id ON readings(station_id);
CREATE INDEX IF NOT EXISTS idx_readings_date ON readings(date);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) AddStation(ctx context.Context, attrs model.StationAttrs) (*model.Station, error) {
	if verr := model.ValidateStation(attrs); verr != nil {
		return nil, verr
	}

	now := s.now()
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stations (name, lon, lat, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		attrs.Name, attrs.Longitude, attrs.Latitude, now, now,
	).Scan(&id)
	if err != nil {
		return nil, wrapPgError(err, "postgres: insert station")
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

const stationColumns = `id, name, lon, lat, created_at, updated_at`

func (s *PostgresStore) ListStations(ctx context.Context) ([]model.Station, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stationColumns+` FROM stations`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stations")
	}
	return scanStations(rows, "postgres: list stations")
}

func (s *PostgresStore) GetStation(ctx context.Context, id int64) (*model.Station, error) {
	var st model.Station
	err := s.pool.QueryRow(ctx,
		`SELECT `+stationColumns+` FROM stations WHERE id = $1`,
		id,
	).Scan(&st.ID, &st.Name, &st.Longitude, &st.Latitude, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "station", Key: fmt64(id)}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get station %d", id)
	}
	return &st, nil
}

// FindByLocation matches stations by exact floating-point equality on
// (lon, lat). More than one row is possible when duplicates exist.
func (s *PostgresStore) FindByLocation(ctx context.Context, lon, lat float64) ([]model.Station, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stationColumns+` FROM stations WHERE lon = $1 AND lat = $2 ORDER BY id`,
		lon, lat,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by location")
	}
	return scanStations(rows, "postgres: find by location")
}

// GetByCoords returns the first exact match. Argument order is (lat, lon),
// the reverse of FindByLocation.
func (s *PostgresStore) GetByCoords(ctx context.Context, lat, lon float64) (*model.Station, error) {
	var st model.Station
	err := s.pool.QueryRow(ctx,
		`SELECT `+stationColumns+` FROM stations WHERE lon = $1 AND lat = $2 ORDER BY id LIMIT 1`,
		lon, lat,
	).Scan(&st.ID, &st.Name, &st.Longitude, &st.Latitude, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "station", Key: coordKey(lat, lon)}
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get by coords")
	}
	return &st, nil
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) ([]model.Station, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stationColumns+` FROM stations WHERE name = $1 ORDER BY id`,
		name,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by name")
	}
	return scanStations(rows, "postgres: find by name")
}

func (s *PostgresStore) FindByLocationRange(ctx context.Context, lonMin, lonMax, latMin, latMax float64) ([]model.Station, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stationColumns+` FROM stations
		 WHERE lon BETWEEN $1 AND $2 AND lat BETWEEN $3 AND $4 ORDER BY id`,
		lonMin, lonMax, latMin, latMax,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by location range")
	}
	return scanStations(rows, "postgres: find by location range")
}

// RemoveStation deletes the station; its readings go away via the
// ON DELETE CASCADE on readings.station_id.
func (s *PostgresStore) RemoveStation(ctx context.Context, station *model.Station) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stations WHERE id = $1`, station.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: remove station %d", station.ID)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "station", Key: fmt64(station.ID)}
	}
	return nil
}

func (s *PostgresStore) UpdateStationName(ctx context.Context, station *model.Station, newName string) (*model.Station, error) {
	attrs := model.StationAttrs{Name: newName, Longitude: station.Longitude, Latitude: station.Latitude}
	if verr := model.ValidateStation(attrs); verr != nil {
		return nil, verr
	}

	now := s.now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE stations SET name = $1, updated_at = $2 WHERE id = $3`,
		newName, now, station.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update station name %d", station.ID)
	}
	if tag.RowsAffected() == 0 {
		return nil, &NotFoundError{Entity: "station", Key: fmt64(station.ID)}
	}

	updated := *station
	updated.Name = newName
	updated.UpdatedAt = now
	return &updated, nil
}

func (s *PostgresStore) AddReading(ctx context.Context, ref model.StationRef, date time.Time, tod model.TimeOfDay, typ string, value float64) (*model.Reading, error) {
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
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO readings (date, time, type, value, station_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		attrs.Date, pgTime(attrs.Time), attrs.Type, attrs.Value, attrs.StationID, now, now,
	).Scan(&id)
	if err != nil {
		return nil, wrapPgError(err, "postgres: insert reading")
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

func (s *PostgresStore) AddReadingNow(ctx context.Context, ref model.StationRef, typ string, value float64) (*model.Reading, error) {
	now := s.now()
	return s.AddReading(ctx, ref, model.DateOf(now), model.TimeOfDayFrom(now), typ, value)
}

func (s *PostgresStore) FindReadingsByDate(ctx context.Context, date time.Time) ([]model.Reading, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, date, time, type, value, station_id, created_at, updated_at FROM readings WHERE date = $1 ORDER BY id`,
		model.DateOf(date),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find readings by date")
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		var r model.Reading
		var tod pgtype.Time
		if err := rows.Scan(&r.ID, &r.Date, &tod, &r.Type, &r.Value, &r.StationID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reading")
		}
		r.Date = model.DateOf(r.Date)
		r.Time = model.TimeOfDay(time.Duration(tod.Microseconds) * time.Microsecond)
		readings = append(readings, r)
	}
	return readings, eris.Wrap(rows.Err(), "postgres: find readings by date iterate")
}

// CopyReadings bulk-inserts pre-validated readings via COPY. It implements
// ReadingCopier for the phased loader's throughput path.
func (s *PostgresStore) CopyReadings(ctx context.Context, readings []model.ReadingAttrs) (int64, error) {
	now := s.now()
	rows := make([][]any, 0, len(readings))
	for _, attrs := range readings {
		if verr := model.ValidateReading(attrs); verr != nil {
			return 0, verr
		}
		rows = append(rows, []any{
			model.DateOf(attrs.Date), pgTime(attrs.Time), attrs.Type, attrs.Value, attrs.StationID, now, now,
		})
	}
	columns := []string{"date", "time", "type", "value", "station_id", "created_at", "updated_at"}
	n, err := db.CopyFrom(ctx, s.pool, "readings", columns, rows)
	if err != nil {
		return 0, wrapPgError(err, "postgres: copy readings")
	}
	return n, nil
}

func (s *PostgresStore) ClearReadings(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM readings`)
	return eris.Wrap(err, "postgres: clear readings")
}

func (s *PostgresStore) ClearStations(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM stations`)
	return eris.Wrap(err, "postgres: clear stations")
}

func (s *PostgresStore) CountStations(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stations`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count stations")
}

func (s *PostgresStore) CountReadings(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count readings")
}

// helpers

func scanStations(rows pgx.Rows, op string) ([]model.Station, error) {
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

// wrapPgError maps backend constraint violations (SQLSTATE class 23) onto
// ConstraintError so callers can pattern on them instead of crashing.
func wrapPgError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
		return &ConstraintError{Op: op, Constraint: pgErr.ConstraintName, Err: err}
	}
	return eris.Wrap(err, op)
}

func pgTime(tod model.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: tod.Microseconds(), Valid: true}
}

func fmt64(id int64) string {
	return strconv.FormatInt(id, 10)
}

func coordKey(lat, lon float64) string {
	return fmt.Sprintf("(%v, %v)", lat, lon)
}
