package storage

// schema is the storage schema from spec.md §6, verbatim down to the
// "-1" sentinel defaults that mark which typed column is live for a row.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS flows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	src TEXT NOT NULL,
	dst TEXT NOT NULL,
	sport INTEGER NOT NULL,
	dport INTEGER NOT NULL,
	l4proto INTEGER NOT NULL,
	UNIQUE (src, dst, sport, dport, l4proto)
);

CREATE TABLE IF NOT EXISTS flow_attributes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	flow_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	value_boolean INTEGER DEFAULT -1,
	value_integer INTEGER DEFAULT -1,
	value_float REAL DEFAULT -1,
	value_text TEXT,
	UNIQUE (flow_id, name),
	FOREIGN KEY (flow_id) REFERENCES flows(id)
);

CREATE TABLE IF NOT EXISTS time_series (
	time_series_id INTEGER PRIMARY KEY AUTOINCREMENT,
	flow_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	type INTEGER NOT NULL,
	UNIQUE (flow_id, name),
	FOREIGN KEY (flow_id) REFERENCES flows(id)
);

CREATE TABLE IF NOT EXISTS time_series_data (
	time_series_id INTEGER NOT NULL,
	timestamp REAL NOT NULL,
	value_boolean INTEGER DEFAULT -1,
	value_integer INTEGER DEFAULT -1,
	value_float REAL DEFAULT -1,
	value_text TEXT,
	PRIMARY KEY (time_series_id, timestamp),
	FOREIGN KEY (time_series_id) REFERENCES time_series(time_series_id) ON DELETE CASCADE
);
`
