package store

import (
	"context"
	"fmt"
)

// migrations is the forward-only schema history. Entries are applied in
// order inside one transaction per revision; existing data survives every
// revision (new indexes and tables only, no destructive rewrites).
var migrations = []string{
	// revision 1: the two core collections
	`CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		name TEXT NOT NULL,
		grade TEXT NOT NULL,
		gender TEXT NOT NULL DEFAULT '',
		course TEXT NOT NULL DEFAULT '',
		is_signed_out BOOLEAN NOT NULL DEFAULT FALSE,
		sign_out_time TIMESTAMPTZ,
		sign_out_destination TEXT,
		sign_out_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS signout_records (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		student_id TEXT NOT NULL,
		student_name TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL CHECK (type IN ('signout', 'signin')),
		destination TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		override BOOLEAN NOT NULL DEFAULT FALSE,
		occurred_at TIMESTAMPTZ NOT NULL,
		day TEXT NOT NULL
	);`,

	// revision 2: secondary lookup indexes.
	// student_id is deliberately NOT unique at the store level; the roster
	// manager enforces natural-key uniqueness via a prior read.
	`CREATE INDEX IF NOT EXISTS idx_students_student_id ON students (student_id);
	CREATE INDEX IF NOT EXISTS idx_students_is_signed_out ON students (is_signed_out);
	CREATE INDEX IF NOT EXISTS idx_students_name ON students (name);
	CREATE INDEX IF NOT EXISTS idx_records_student_id ON signout_records (student_id);
	CREATE INDEX IF NOT EXISTS idx_records_occurred_at ON signout_records (occurred_at);
	CREATE INDEX IF NOT EXISTS idx_records_day ON signout_records (day);
	CREATE INDEX IF NOT EXISTS idx_records_type ON signout_records (type);`,

	// revision 3: workstation auth
	`CREATE TABLE IF NOT EXISTS stations (
		station_id TEXT PRIMARY KEY,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token TEXT PRIMARY KEY,
		station_id TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
}

// Migrate brings the schema up to the current revision.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		revision INT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return Wrap("create schema_migrations", err)
	}

	var current int
	row := d.Client.QueryRowContext(ctx, `SELECT COALESCE(MAX(revision), 0) FROM schema_migrations`)
	if err := row.Scan(&current); err != nil {
		return Wrap("read schema revision", err)
	}

	for rev := current + 1; rev <= len(migrations); rev++ {
		tx, err := d.Client.BeginTx(ctx, nil)
		if err != nil {
			return Wrap(fmt.Sprintf("begin migration %d", rev), err)
		}
		if _, err := tx.ExecContext(ctx, migrations[rev-1]); err != nil {
			_ = tx.Rollback()
			return Wrap(fmt.Sprintf("apply migration %d", rev), err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (revision) VALUES ($1)`, rev); err != nil {
			_ = tx.Rollback()
			return Wrap(fmt.Sprintf("record migration %d", rev), err)
		}
		if err := tx.Commit(); err != nil {
			return Wrap(fmt.Sprintf("commit migration %d", rev), err)
		}
	}
	return nil
}
