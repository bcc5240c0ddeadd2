package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"hallpass/internal/store"
)

// Repository persists ledger entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append writes a new entry. Write-once: entries are never updated after
// this call. Missing ID, OccurredAt and Day are filled in.
func (r *Repository) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.Day == "" {
		e.Day = e.OccurredAt.Format("2006-01-02")
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO signout_records (id, student_id, student_name, type, destination, reason, override, occurred_at, day)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING seq
	`, e.ID, e.StudentID, e.StudentName, e.Type, e.Destination, e.Reason, e.Override, e.OccurredAt, e.Day)
	if err := row.Scan(&e.Seq); err != nil {
		return Entry{}, store.Wrap("append ledger entry", err)
	}
	return e, nil
}

const entryColumns = `seq, id, student_id, student_name, type, destination, reason, override, occurred_at, day`

// Recent returns up to limit entries, newest first by timestamp with seq
// breaking ties.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM signout_records
		ORDER BY occurred_at DESC, seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, store.Wrap("list recent ledger entries", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForStudentInRange returns a student's entries with occurred_at inside
// [start, end], both inclusive, oldest first. Callers filter further by
// type and destination.
func (r *Repository) ForStudentInRange(ctx context.Context, studentID string, start, end time.Time) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM signout_records
		WHERE student_id = $1 AND occurred_at >= $2 AND occurred_at <= $3
		ORDER BY occurred_at ASC, seq ASC
	`, studentID, start, end)
	if err != nil {
		return nil, store.Wrap("list ledger entries in range", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Get returns a single entry by id.
func (r *Repository) Get(ctx context.Context, id string) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM signout_records WHERE id = $1
	`, id)
	var e Entry
	if err := row.Scan(&e.Seq, &e.ID, &e.StudentID, &e.StudentName, &e.Type, &e.Destination, &e.Reason, &e.Override, &e.OccurredAt, &e.Day); err != nil {
		return Entry{}, store.Wrap("get ledger entry", err)
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var res []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.ID, &e.StudentID, &e.StudentName, &e.Type, &e.Destination, &e.Reason, &e.Override, &e.OccurredAt, &e.Day); err != nil {
			return nil, store.Wrap("scan ledger entry", err)
		}
		res = append(res, e)
	}
	return res, store.Wrap("iterate ledger entries", rows.Err())
}
