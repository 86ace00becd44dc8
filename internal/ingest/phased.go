package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/airdata/internal/model"
	"github.com/sells-group/airdata/internal/store"
)

// PhasedStats summarizes a phased load run, with each phase timed
// independently for throughput measurement.
type PhasedStats struct {
	Lines        int           `json:"lines"`
	Skipped      int           `json:"skipped"`
	Stations     int           `json:"stations"`
	Readings     int           `json:"readings"`
	Failed       int           `json:"failed"`
	StationPhase time.Duration `json:"station_phase"`
	ReadingPhase time.Duration `json:"reading_phase"`
}

type coord struct {
	lat, lon float64
}

// LoadPhased is the capacity-measurement variant of Load: a station
// creation phase followed by a reading insertion phase, functionally
// equivalent to the combined pipeline. When the store supports bulk copy
// (PostgreSQL), readings go in through COPY in batches; otherwise one
// insert per row.
func (l *Loader) LoadPhased(ctx context.Context, path string) (*PhasedStats, error) {
	log := zap.L().With(zap.String("run_id", uuid.New().String()), zap.String("file", path))

	total, err := countLines(path)
	if err != nil {
		return nil, err
	}
	log.Info("starting phased load", zap.Int("total_lines", total))

	if err := l.store.ClearReadings(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: clear readings")
	}
	if err := l.store.ClearStations(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: clear stations")
	}

	stats := &PhasedStats{}

	// Phase 1: create one station per distinct exact coordinate pair.
	phaseStart := l.now()
	stationIDs := map[coord]int64{}
	err = l.eachLine(ctx, path, func(line string) error {
		stats.Lines++
		rec, perr := ParseLine(line)
		if perr != nil {
			stats.Skipped++
			return nil
		}

		key := coord{lat: rec.Lat, lon: rec.Lon}
		if _, ok := stationIDs[key]; ok {
			return nil
		}
		station, _, serr := l.resolveStation(ctx, rec)
		if serr != nil {
			if !isRowError(serr) {
				return serr
			}
			// Rows owned by this station count as failed in phase 2.
			log.Warn("station rejected",
				zap.String("station", rec.Name),
				zap.Error(serr),
			)
			return nil
		}
		stationIDs[key] = station.ID
		stats.Stations++
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.StationPhase = l.now().Sub(phaseStart)
	log.Info("station phase complete",
		zap.Int("stations", stats.Stations),
		zap.Duration("elapsed", stats.StationPhase),
	)

	// Phase 2: insert readings against the phase-1 id map.
	phaseStart = l.now()
	copier, bulk := l.store.(store.ReadingCopier)
	var batch []model.ReadingAttrs
	processed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, cerr := copier.CopyReadings(ctx, batch)
		if cerr != nil {
			return eris.Wrap(cerr, "ingest: copy readings")
		}
		stats.Readings += int(n)
		batch = batch[:0]
		return nil
	}

	err = l.eachLine(ctx, path, func(line string) error {
		processed++
		if processed%l.progressEvery == 0 {
			logProgress(log, processed, total)
		}

		rec, perr := ParseLine(line)
		if perr != nil {
			return nil // already counted as skipped in phase 1
		}

		id, ok := stationIDs[coord{lat: rec.Lat, lon: rec.Lon}]
		if !ok {
			// Station creation failed in phase 1; this row has no owner.
			stats.Failed++
			return nil
		}

		if bulk {
			attrs := model.ReadingAttrs{
				Date:      rec.Date,
				Time:      rec.Time,
				Type:      rec.Type,
				Value:     rec.Value,
				StationID: id,
			}
			// Validate up front so one bad row cannot poison a COPY batch.
			if verr := model.ValidateReading(attrs); verr != nil {
				stats.Failed++
				log.Warn("reading rejected",
					zap.Int64("station_id", id),
					zap.Error(verr),
				)
				return nil
			}
			batch = append(batch, attrs)
			if len(batch) >= l.batchSize {
				return flush()
			}
		} else {
			if _, rerr := l.store.AddReading(ctx, model.StationID(id), rec.Date, rec.Time, rec.Type, rec.Value); rerr != nil {
				stats.Failed++
				log.Warn("reading rejected",
					zap.Int64("station_id", id),
					zap.Error(rerr),
				)
				return nil
			}
			stats.Readings++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if bulk {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	stats.ReadingPhase = l.now().Sub(phaseStart)

	log.Info("phased load complete",
		zap.Int("stations", stats.Stations),
		zap.Int("readings", stats.Readings),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("station_phase", stats.StationPhase),
		zap.Duration("reading_phase", stats.ReadingPhase),
	)
	return stats, nil
}
