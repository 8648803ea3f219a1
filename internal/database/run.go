package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/seasondb/internal/domain"
)

// fixed-width so that text ordering matches time ordering
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// RunRepo implements domain.RunRepo interface
type RunRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewRunRepo creates a new run history repository
func NewRunRepo(log zerolog.Logger, db *DB) domain.RunRepo {
	return &RunRepo{
		log: log.With().Str("repo", "run").Logger(),
		db:  db,
	}
}

// Record inserts or replaces a run
func (r *RunRepo) Record(ctx context.Context, run *domain.RunRecord) error {
	queryBuilder := r.db.squirrel.
		Replace("runs").
		Columns("id", "period", "status", "records", "uploads", "cache_hits", "failures", "fallbacks", "reason", "started_at", "finished_at").
		Values(run.ID, run.Period, string(run.Status), run.Records, run.Uploads, run.CacheHits, run.Failures, run.Fallbacks, run.Reason,
			run.StartedAt.UTC().Format(timeFormat), run.FinishedAt.UTC().Format(timeFormat))

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Record")

	r.db.lock.RLock()
	defer r.db.lock.RUnlock()

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "error executing query")
	}
	return nil
}

// Latest returns up to limit runs, newest first
func (r *RunRepo) Latest(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	queryBuilder := r.db.squirrel.
		Select("id", "period", "status", "records", "uploads", "cache_hits", "failures", "fallbacks", "reason", "started_at", "finished_at").
		From("runs").
		OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		queryBuilder = queryBuilder.Limit(uint64(limit))
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Latest")

	r.db.lock.RLock()
	defer r.db.lock.RUnlock()

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	var runs []*domain.RunRecord
	for rows.Next() {
		var (
			run               domain.RunRecord
			status            string
			started, finished string
		)
		if err := rows.Scan(&run.ID, &run.Period, &status, &run.Records, &run.Uploads, &run.CacheHits, &run.Failures, &run.Fallbacks, &run.Reason, &started, &finished); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		run.Status = domain.RunStatus(status)
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return runs, nil
}
