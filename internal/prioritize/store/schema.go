// Package store provides the Persistent Store adapter (§6) backed by
// SQLite, grounded on internal/memory/sqlite.go's database/sql +
// modernc.org/sqlite wiring and schema-in-a-string convention.
package store

const schema = `
CREATE TABLE IF NOT EXISTS user_outcomes (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	direction TEXT NOT NULL,
	object_text TEXT NOT NULL DEFAULT '',
	metric_text TEXT NOT NULL DEFAULT '',
	clarifier TEXT NOT NULL DEFAULT '',
	assembled_text TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 0,
	state_preference TEXT,
	daily_capacity_hours REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_user ON user_outcomes(user_id);

CREATE TABLE IF NOT EXISTS task_embeddings (
	task_id TEXT PRIMARY KEY,
	task_text TEXT NOT NULL,
	document_id TEXT,
	embedding BLOB,
	status TEXT NOT NULL DEFAULT 'pending',
	is_manual INTEGER NOT NULL DEFAULT 0,
	created_by TEXT,
	quality_metadata TEXT,
	manual_overrides TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_embeddings_status ON task_embeddings(status);

CREATE TABLE IF NOT EXISTS agent_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	outcome_id TEXT NOT NULL,
	status TEXT NOT NULL,
	prioritized_plan TEXT,
	baseline_plan TEXT,
	adjusted_plan TEXT,
	strategic_scores TEXT,
	excluded_tasks TEXT,
	evaluation_metadata TEXT,
	execution_metadata TEXT,
	result TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_outcome ON agent_sessions(user_id, outcome_id);

CREATE TABLE IF NOT EXISTS reasoning_traces (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_traces_session ON reasoning_traces(session_id);

CREATE TABLE IF NOT EXISTS processing_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation TEXT NOT NULL,
	status TEXT NOT NULL,
	session_id TEXT,
	task_id TEXT,
	attempts INTEGER,
	last_error TEXT,
	metadata TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_session ON processing_logs(session_id);

CREATE TABLE IF NOT EXISTS reflections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	text TEXT NOT NULL,
	is_active_for_prioritization INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reflections_user ON reflections(user_id);

CREATE TABLE IF NOT EXISTS reflection_intents (
	reflection_id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	subtype TEXT,
	keywords TEXT,
	strength REAL NOT NULL DEFAULT 0,
	duration TEXT,
	summary TEXT
);

CREATE TABLE IF NOT EXISTS manual_tasks (
	task_id TEXT PRIMARY KEY,
	outcome_id TEXT NOT NULL,
	status TEXT NOT NULL,
	agent_rank INTEGER,
	placement_reason TEXT,
	exclusion_reason TEXT,
	duplicate_task_id TEXT,
	similarity_score REAL,
	marked_done_at TEXT,
	deleted_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_manual_tasks_outcome ON manual_tasks(outcome_id);

CREATE TABLE IF NOT EXISTS gap_analysis_sessions (
	id TEXT PRIMARY KEY,
	agent_session_id TEXT NOT NULL,
	gaps TEXT NOT NULL,
	suggestions TEXT,
	performance_metrics TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gap_sessions_agent_session ON gap_analysis_sessions(agent_session_id);

CREATE TABLE IF NOT EXISTS task_relationships (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_task_id TEXT NOT NULL,
	target_task_id TEXT NOT NULL,
	relationship_type TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	created_at TEXT NOT NULL,
	UNIQUE(source_task_id, target_task_id, relationship_type)
);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON task_relationships(source_task_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON task_relationships(target_task_id);
`
