package ingest

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/airdata/internal/model"
	"github.com/sells-group/airdata/internal/store"
)

// Loader streams a measurement file into the store: parse each line,
// resolve or create the owning station, insert the reading. Individual bad
// rows are tolerated; the whole-file load completes even if a minority of
// rows fail.
type Loader struct {
	store         store.Store
	progressEvery int
	batchSize     int
	now           func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithProgressEvery sets how many lines pass between progress reports.
func WithProgressEvery(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.progressEvery = n
		}
	}
}

// WithBatchSize sets the reading batch size for the bulk-copy path.
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// NewLoader creates a Loader over the given store.
func NewLoader(st store.Store, opts ...Option) *Loader {
	l := &Loader{
		store:         st,
		progressEvery: 1000,
		batchSize:     5000,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadStats summarizes one load run.
type LoadStats struct {
	Lines    int           `json:"lines"`
	Parsed   int           `json:"parsed"`
	Skipped  int           `json:"skipped"`
	Stations int           `json:"stations"`
	Readings int           `json:"readings"`
	Failed   int           `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Load performs a full-file load: clear existing readings then stations,
// then one pass over the file inserting a reading per parseable line.
// Station identity is resolved by exact (lat, lon) lookup; absent stations
// are created on first sight. Lookup-or-create is not atomic, so
// concurrent loads against the same file can produce duplicate stations at
// identical coordinates.
func (l *Loader) Load(ctx context.Context, path string) (*LoadStats, error) {
	log := zap.L().With(zap.String("run_id", uuid.New().String()), zap.String("file", path))
	start := l.now()

	total, err := countLines(path)
	if err != nil {
		return nil, err
	}
	log.Info("starting load", zap.Int("total_lines", total))

	// Readings reference stations, so they clear first.
	if err := l.store.ClearReadings(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: clear readings")
	}
	if err := l.store.ClearStations(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: clear stations")
	}

	stats := &LoadStats{}
	err = l.eachLine(ctx, path, func(line string) error {
		stats.Lines++
		if stats.Lines%l.progressEvery == 0 {
			logProgress(log, stats.Lines, total)
		}

		rec, perr := ParseLine(line)
		if perr != nil {
			stats.Skipped++
			return nil
		}
		stats.Parsed++

		station, created, serr := l.resolveStation(ctx, rec)
		if serr != nil {
			if !isRowError(serr) {
				return serr
			}
			stats.Failed++
			log.Warn("station rejected",
				zap.String("station", rec.Name),
				zap.Error(serr),
			)
			return nil
		}
		if created {
			stats.Stations++
		}

		if _, rerr := l.store.AddReading(ctx, station, rec.Date, rec.Time, rec.Type, rec.Value); rerr != nil {
			stats.Failed++
			log.Warn("reading rejected",
				zap.String("station", station.Name),
				zap.Int64("station_id", station.ID),
				zap.Error(rerr),
			)
			return nil
		}
		stats.Readings++
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.Elapsed = l.now().Sub(start)
	log.Info("load complete",
		zap.Int("lines", stats.Lines),
		zap.Int("stations", stats.Stations),
		zap.Int("readings", stats.Readings),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return stats, nil
}

// resolveStation looks a station up by its exact coordinates and creates
// it when absent. Reported as (station, created-now, error).
func (l *Loader) resolveStation(ctx context.Context, rec *Record) (*model.Station, bool, error) {
	station, err := l.store.GetByCoords(ctx, rec.Lat, rec.Lon)
	if err == nil {
		return station, false, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, eris.Wrap(err, "ingest: station lookup")
	}

	station, err = l.store.AddStation(ctx, model.StationAttrs{
		Name:      rec.Name,
		Longitude: rec.Lon,
		Latitude:  rec.Lat,
	})
	if err != nil {
		return nil, false, eris.Wrapf(err, "ingest: create station %q", rec.Name)
	}
	return station, true, nil
}

// isRowError reports whether err condemns a single input row rather than
// the load as a whole. Validation and constraint failures are per-row;
// anything else (connection loss, bad file) aborts.
func isRowError(err error) bool {
	var verr *model.ValidationError
	return errors.As(err, &verr) || store.IsConstraint(err)
}

func (l *Loader) eachLine(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "ingest: cancelled")
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return eris.Wrapf(scanner.Err(), "ingest: read %s", path)
}

// countLines makes the pre-pass that gives progress reporting a
// denominator. Blank lines are not counted; the load pass skips them too.
func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, eris.Wrapf(err, "ingest: count lines in %s", path)
	}
	return n, nil
}

func logProgress(log *zap.Logger, processed, total int) {
	pct := 0.0
	if total > 0 {
		pct = float64(processed) / float64(total) * 100
	}
	log.Info("progress",
		zap.Int("processed", processed),
		zap.Int("total", total),
		zap.Float64("percent", pct),
	)
}
