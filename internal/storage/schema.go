package storage

// schema defines the relational shape of the Artifact Store: JSON-shaped
// attributes live in TEXT columns, foreign keys cascade from targets down
// through scans to every scan-owned entity.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS targets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL,
	include    TEXT DEFAULT '[]',
	exclude    TEXT DEFAULT '[]',
	ip_ranges  TEXT DEFAULT '[]',
	asns       TEXT DEFAULT '[]',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS scans (
	id              TEXT PRIMARY KEY,
	target_id       TEXT NOT NULL,
	profile         TEXT NOT NULL DEFAULT 'normal',
	status          TEXT NOT NULL DEFAULT 'pending',
	progress        TEXT DEFAULT '{}',
	current_stage   TEXT,
	error_message   TEXT,
	resumed         BOOLEAN DEFAULT 0,
	stop_on_error   BOOLEAN DEFAULT 0,
	skip_stages     TEXT DEFAULT '[]',
	stage_errors    TEXT DEFAULT '{}',
	stages_run      TEXT DEFAULT '[]',
	tool_versions   TEXT DEFAULT '{}',
	checkpoint_data BLOB,
	created_at      TIMESTAMP NOT NULL,
	started_at      TIMESTAMP,
	completed_at    TIMESTAMP,
	FOREIGN KEY (target_id) REFERENCES targets(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS subdomains (
	scan_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	domain       TEXT,
	resolved     BOOLEAN DEFAULT 0,
	ips          TEXT DEFAULT '[]',
	dns_records  TEXT DEFAULT '[]',
	live         BOOLEAN DEFAULT 0,
	last_status  INTEGER,
	title        TEXT,
	tech         TEXT DEFAULT '[]',
	sources      TEXT DEFAULT '[]',
	is_cdn       BOOLEAN DEFAULT 0,
	cdn_provider TEXT,
	is_dangling  BOOLEAN DEFAULT 0,
	PRIMARY KEY (scan_id, name),
	FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS endpoints (
	scan_id         TEXT NOT NULL,
	url             TEXT NOT NULL,
	method          TEXT DEFAULT 'GET',
	status          INTEGER,
	content_type    TEXT,
	content_length  INTEGER,
	params          TEXT DEFAULT '[]',
	pattern_matches TEXT DEFAULT '[]',
	source          TEXT,
	PRIMARY KEY (scan_id, url),
	FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS findings (
	scan_id        TEXT NOT NULL,
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	severity       TEXT NOT NULL,
	cvss           REAL,
	url            TEXT,
	parameter      TEXT,
	evidence       TEXT,
	repro_command  TEXT,
	tool_source    TEXT,
	template_id    TEXT,
	false_positive BOOLEAN DEFAULT 0,
	rationale      TEXT,
	FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS ports (
	scan_id  TEXT NOT NULL,
	ip       TEXT NOT NULL,
	number   INTEGER NOT NULL,
	protocol TEXT NOT NULL,
	service  TEXT,
	version  TEXT,
	state    TEXT NOT NULL,
	PRIMARY KEY (scan_id, ip, number, protocol),
	FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS system_state (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	network_status   TEXT NOT NULL DEFAULT 'online',
	tunnel_url       TEXT,
	tunnel_service   TEXT,
	battery_level    INTEGER,
	charging         BOOLEAN DEFAULT 0,
	temperature_c    REAL,
	llm_model_loaded TEXT,
	available_mem_mb INTEGER,
	updated_at       TIMESTAMP NOT NULL
);
`
