package store

// schemaStatements is the full relational schema. The unique index on
// attendance_records (session_id, student_id) is the source of truth for the
// one-record-per-student-per-session invariant; the validator's duplicate
// check is only a fast path.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		full_name   TEXT NOT NULL,
		email       TEXT NOT NULL UNIQUE,
		role        TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id          TEXT PRIMARY KEY,
		class_name  TEXT NOT NULL,
		code        TEXT NOT NULL UNIQUE,
		teacher_id  TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS class_members (
		id          TEXT PRIMARY KEY,
		class_id    TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		student_id  TEXT NOT NULL,
		joined_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (class_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id               TEXT PRIMARY KEY,
		class_id         TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		title            TEXT NOT NULL,
		scheduled_at     TIMESTAMPTZ NOT NULL,
		status           TEXT NOT NULL DEFAULT 'CLOSED',
		checkin_token    TEXT,
		token_expires_at TIMESTAMPTZ,
		anchor_lat       DOUBLE PRECISION,
		anchor_lng       DOUBLE PRECISION,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id            TEXT PRIMARY KEY,
		session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		student_id    TEXT NOT NULL,
		check_in_time TIMESTAMPTZ NOT NULL,
		lat           DOUBLE PRECISION,
		lng           DOUBLE PRECISION,
		photo_ref     TEXT,
		status        TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (session_id, student_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_class ON sessions (class_id, scheduled_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_session ON attendance_records (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records (student_id)`,
}
