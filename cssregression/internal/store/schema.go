package store

// Schema is applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	query       TEXT NOT NULL DEFAULT '',
	threshold   INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'running',
	ok          INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS results (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	entity          TEXT NOT NULL,
	site            TEXT NOT NULL,
	name            TEXT NOT NULL,
	width           INTEGER NOT NULL,
	url             TEXT NOT NULL,
	reference_path  TEXT NOT NULL,
	test_path       TEXT NOT NULL,
	difference_path TEXT NOT NULL,
	difference      INTEGER NOT NULL DEFAULT 0,
	ok              INTEGER NOT NULL,
	failure         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_results_failed ON results(run_id, ok);
`
