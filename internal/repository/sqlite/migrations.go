package sqlite

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// Versions must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id       TEXT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	email    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	deadline      TEXT,
	priority      TEXT NOT NULL DEFAULT 'Medium',
	status        TEXT NOT NULL DEFAULT 'Pending',
	reminder_time TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(deadline);

CREATE TABLE IF NOT EXISTS notifications (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	task_id       TEXT,
	kind          TEXT NOT NULL,
	tier          TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL,
	scheduled_for TEXT NOT NULL,
	sent_at       TEXT,
	is_read       INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	push_status   TEXT NOT NULL DEFAULT '',
	email_status  TEXT NOT NULL DEFAULT '',
	last_error    TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_notifications_pending_reminder
	ON notifications(task_id, tier) WHERE sent_at IS NULL AND kind = 'reminder';
CREATE INDEX IF NOT EXISTS idx_notifications_due
	ON notifications(scheduled_for) WHERE sent_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_notifications_user
	ON notifications(user_id, created_at);

CREATE TABLE IF NOT EXISTS user_streaks (
	user_id            TEXT PRIMARY KEY,
	current_streak     INTEGER NOT NULL DEFAULT 0,
	longest_streak     INTEGER NOT NULL DEFAULT 0,
	last_activity_date TEXT,
	total_days_active  INTEGER NOT NULL DEFAULT 0,
	updated_at         TEXT NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
