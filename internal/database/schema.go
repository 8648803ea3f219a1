package database

// runSchema is the latest runs table, used as is on a fresh database.
const runSchema = `
CREATE TABLE runs (
	id TEXT PRIMARY KEY,
	period TEXT NOT NULL,
	status TEXT NOT NULL,
	records INTEGER NOT NULL DEFAULT 0,
	uploads INTEGER NOT NULL DEFAULT 0,
	cache_hits INTEGER NOT NULL DEFAULT 0,
	failures INTEGER NOT NULL DEFAULT 0,
	fallbacks INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);

CREATE INDEX idx_runs_period ON runs(period);
CREATE INDEX idx_runs_started_at ON runs(started_at);
`

type migration struct {
	name string
	stmt string
}

// runMigrations moves an existing database from version i to i+1 with runMigrations[i].
// Version 1 is the original runs table, so runMigrations[0] is never applied.
var runMigrations = []migration{
	{name: "create runs table"},
	{name: "add runs.fallbacks", stmt: `ALTER TABLE runs ADD COLUMN fallbacks INTEGER NOT NULL DEFAULT 0;`},
}
