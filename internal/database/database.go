package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/seasondb/internal/domain"
	_ "modernc.org/sqlite"
)

// DB is the run history database.
type DB struct {
	handler  *sql.DB
	log      zerolog.Logger
	lock     sync.RWMutex
	squirrel sq.StatementBuilderType
}

// MigrationReport describes what Migrate did to the runs schema.
type MigrationReport struct {
	From    int
	To      int
	Created bool
	// Applied names the incremental migrations that ran, in order.
	Applied []string
}

// Changed reports whether the schema version moved.
func (r MigrationReport) Changed() bool {
	return r.From != r.To
}

// NewDB opens (creating if needed) the run history database in dir and brings the
// runs table up to date.
func NewDB(dir string, log zerolog.Logger) (*DB, error) {
	db := &DB{
		log:      log.With().Str("module", "database").Logger(),
		squirrel: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}

	var (
		err error
		DSN = filepath.Join(dir, domain.DatabaseFile) + "?_pragma=busy_timeout%3d1000"
	)

	db.handler, err = sql.Open("sqlite", DSN)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to database")
	}

	if _, err = db.handler.Exec(`PRAGMA journal_mode = wal;`); err != nil {
		db.handler.Close()
		return nil, errors.Wrap(err, "unable to enable WAL mode")
	}

	report, err := db.Migrate(context.Background())
	if err != nil {
		db.handler.Close()
		return nil, errors.Wrap(err, "failed to migrate run history schema")
	}
	if report.Changed() {
		db.log.Info().
			Int("from", report.From).
			Int("to", report.To).
			Bool("created", report.Created).
			Strs("applied", report.Applied).
			Msg("run history schema ready")
	}

	return db, nil
}

// Migrate creates the runs table on a fresh database, or applies the pending entries of
// runMigrations starting at the stored PRAGMA user_version. Everything runs in one transaction.
func (db *DB) Migrate(ctx context.Context) (MigrationReport, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	latest := len(runMigrations)
	report := MigrationReport{To: latest}

	if err := db.handler.QueryRowContext(ctx, "PRAGMA user_version").Scan(&report.From); err != nil {
		return report, errors.Wrap(err, "failed to query schema version")
	}

	switch {
	case report.From == latest:
		return report, nil
	case report.From > latest:
		report.To = report.From
		return report, errors.Errorf("run history schema version (%d) is newer than supported (%d)", report.From, latest)
	}

	tx, err := db.handler.BeginTx(ctx, nil)
	if err != nil {
		return report, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if report.From == 0 {
		if _, err := tx.ExecContext(ctx, runSchema); err != nil {
			return report, errors.Wrap(err, "failed to create runs table")
		}
		report.Created = true
	} else {
		for _, m := range runMigrations[report.From:] {
			db.log.Debug().Str("migration", m.name).Msg("applying run history migration")
			if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
				return report, errors.Wrapf(err, "failed to apply migration %q", m.name)
			}
			report.Applied = append(report.Applied, m.name)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", latest)); err != nil {
		return report, errors.Wrap(err, "failed to bump schema version")
	}

	return report, errors.Wrap(tx.Commit(), "failed to commit schema migration")
}

// Close closes the database connection
func (db *DB) Close() error {
	if _, err := db.handler.Exec(`PRAGMA optimize;`); err != nil {
		return errors.Wrap(err, "query planner optimization")
	}

	return db.handler.Close()
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.handler.PingContext(ctx)
}
