package roster

import (
	"context"
	"database/sql"
	"errors"

	"hallpass/internal/store"
)

// Repository persists roster records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentColumns = `id, student_id, name, grade, gender, course, is_signed_out, sign_out_time, sign_out_destination, sign_out_reason, created_at, updated_at`

// GetAll returns every roster record. Order is unspecified here; consumers
// sort for display.
func (r *Repository) GetAll(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students`)
	if err != nil {
		return nil, store.Wrap("list students", err)
	}
	defer rows.Close()
	return scanStudents(rows)
}

// GetByID returns a student by internal surrogate id.
func (r *Repository) GetByID(ctx context.Context, id string) (Student, error) {
	return r.getOne(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
}

// GetByStudentID returns a student by natural key via the secondary index.
func (r *Repository) GetByStudentID(ctx context.Context, studentID string) (Student, error) {
	return r.getOne(ctx, `SELECT `+studentColumns+` FROM students WHERE student_id = $1`, studentID)
}

func (r *Repository) getOne(ctx context.Context, query, key string) (Student, error) {
	row := r.db.QueryRowContext(ctx, query, key)
	s, err := scanStudent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, store.Wrap("get student", err)
	}
	return s, nil
}

// Save upserts by internal id and returns the stored record. Natural-key
// uniqueness is the manager's job, not the store's.
func (r *Repository) Save(ctx context.Context, s Student) (Student, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			student_id = EXCLUDED.student_id,
			name = EXCLUDED.name,
			grade = EXCLUDED.grade,
			gender = EXCLUDED.gender,
			course = EXCLUDED.course,
			is_signed_out = EXCLUDED.is_signed_out,
			sign_out_time = EXCLUDED.sign_out_time,
			sign_out_destination = EXCLUDED.sign_out_destination,
			sign_out_reason = EXCLUDED.sign_out_reason,
			updated_at = EXCLUDED.updated_at
	`, s.ID, s.StudentID, s.Name, s.Grade, s.Gender, s.Course,
		s.IsSignedOut, s.SignOutTime, s.SignOutDestination, s.SignOutReason,
		s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return Student{}, store.Wrap("save student", err)
	}
	return s, nil
}

// Delete removes a student by internal id. Idempotent: deleting an absent
// id is not an error. Ledger entries are intentionally left in place.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	return store.Wrap("delete student", err)
}

// BatchSave durably writes every student given and returns the count
// written. All-or-nothing is not required at this layer.
func (r *Repository) BatchSave(ctx context.Context, students []Student) (int, error) {
	count := 0
	for _, s := range students {
		if _, err := r.Save(ctx, s); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// GetActiveSignouts returns students currently marked signed out.
func (r *Repository) GetActiveSignouts(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+studentColumns+` FROM students WHERE is_signed_out = TRUE
	`)
	if err != nil {
		return nil, store.Wrap("list active signouts", err)
	}
	defer rows.Close()
	return scanStudents(rows)
}

func scanStudent(scan func(...any) error) (Student, error) {
	var s Student
	err := scan(&s.ID, &s.StudentID, &s.Name, &s.Grade, &s.Gender, &s.Course,
		&s.IsSignedOut, &s.SignOutTime, &s.SignOutDestination, &s.SignOutReason,
		&s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func scanStudents(rows *sql.Rows) ([]Student, error) {
	var res []Student
	for rows.Next() {
		s, err := scanStudent(rows.Scan)
		if err != nil {
			return nil, store.Wrap("scan student", err)
		}
		res = append(res, s)
	}
	return res, store.Wrap("iterate students", rows.Err())
}
