package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the slice of the persistent store the manager needs.
type Store interface {
	GetAll(ctx context.Context) ([]Student, error)
	GetByID(ctx context.Context, id string) (Student, error)
	GetByStudentID(ctx context.Context, studentID string) (Student, error)
	Save(ctx context.Context, s Student) (Student, error)
	Delete(ctx context.Context, id string) error
	BatchSave(ctx context.Context, students []Student) (int, error)
}

// Manager owns roster mutations: create/update/delete plus bulk import.
// It is the single place natural-key uniqueness is enforced.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager creates a manager.
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Fields carries the editable roster attributes. ID empty means create.
type Fields struct {
	ID        string
	Name      string
	StudentID string
	Grade     string
	Gender    string
	Course    string
}

// CreateOrUpdate validates fields and upserts one student. Name, StudentID
// and Grade are required after trimming. On create the natural key must be
// free; on update the student keeps the right to its own key.
func (m *Manager) CreateOrUpdate(ctx context.Context, f Fields) (Student, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.StudentID = strings.TrimSpace(f.StudentID)
	f.Grade = strings.TrimSpace(f.Grade)
	f.Gender = strings.TrimSpace(f.Gender)
	f.Course = strings.TrimSpace(f.Course)

	var missing []string
	if f.Name == "" {
		missing = append(missing, "Name")
	}
	if f.StudentID == "" {
		missing = append(missing, "Student ID")
	}
	if f.Grade == "" {
		missing = append(missing, "Grade")
	}
	if len(missing) > 0 {
		return Student{}, &ValidationError{Missing: missing}
	}

	holder, err := m.store.GetByStudentID(ctx, f.StudentID)
	switch {
	case err == nil:
		if f.ID == "" || holder.ID != f.ID {
			return Student{}, ErrDuplicateID
		}
	case errors.Is(err, ErrNotFound):
		// key is free
	default:
		return Student{}, err
	}

	now := time.Now().UTC()
	var s Student
	if f.ID == "" {
		s = Student{
			ID:            uuid.NewString(),
			StudentID:     f.StudentID,
			Name:          f.Name,
			Grade:         f.Grade,
			Gender:        f.Gender,
			Course:        f.Course,
			SignOutReason: "",
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	} else {
		current, err := m.store.GetByID(ctx, f.ID)
		if err != nil {
			return Student{}, err
		}
		s = current
		s.StudentID = f.StudentID
		s.Name = f.Name
		s.Grade = f.Grade
		s.Gender = f.Gender
		s.Course = f.Course
		s.UpdatedAt = now
	}

	saved, err := m.store.Save(ctx, s)
	if err != nil {
		return Student{}, err
	}
	m.logger.Info("student saved",
		zap.String("student_id", saved.StudentID),
		zap.Bool("created", f.ID == ""))
	return saved, nil
}

// Delete hard-deletes by internal id. The student's ledger entries remain
// as historical records.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// ColumnMapping maps roster attributes to column indexes in an imported
// row. Unmapped attributes are -1.
type ColumnMapping struct {
	Name      int
	StudentID int
	Grade     int
	Gender    int
	Course    int
}

// RowError is one rejected import row.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e RowError) String() string { return fmt.Sprintf("Row %d: %s", e.Row, e.Reason) }

// ImportResult reports a best-effort bulk import.
type ImportResult struct {
	Imported int        `json:"imported"`
	Errors   []RowError `json:"errors,omitempty"`
}

// BulkImport writes every valid row even when some rows fail. Rows are
// numbered 1-based over the whole slice so error reports line up with the
// source file; the first skip rows (headers) are ignored and fully blank
// rows are dropped silently. Re-importing an existing natural key updates
// roster fields but never touches the student's sign-out state.
func (m *Manager) BulkImport(ctx context.Context, rows [][]string, mapping ColumnMapping, skip int) (ImportResult, error) {
	if mapping.Name < 0 || mapping.StudentID < 0 || mapping.Grade < 0 {
		var missing []string
		if mapping.Name < 0 {
			missing = append(missing, "Name")
		}
		if mapping.StudentID < 0 {
			missing = append(missing, "Student ID")
		}
		if mapping.Grade < 0 {
			missing = append(missing, "Grade")
		}
		return ImportResult{}, &ValidationError{Missing: missing}
	}
	if skip < 0 {
		skip = 0
	}

	var (
		result   ImportResult
		toSave   []Student
		seen     = map[string]bool{}
		importAt = time.Now().UTC()
	)

	for i := skip; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}

		name := cell(row, mapping.Name)
		studentID := cell(row, mapping.StudentID)
		grade := cell(row, mapping.Grade)
		gender := cell(row, mapping.Gender)
		course := cell(row, mapping.Course)

		rowNum := i + 1
		switch {
		case name == "":
			result.Errors = append(result.Errors, RowError{Row: rowNum, Reason: "Name is required"})
			continue
		case studentID == "":
			result.Errors = append(result.Errors, RowError{Row: rowNum, Reason: "Student ID is required"})
			continue
		case grade == "":
			result.Errors = append(result.Errors, RowError{Row: rowNum, Reason: "Grade is required"})
			continue
		case seen[studentID]:
			result.Errors = append(result.Errors, RowError{Row: rowNum, Reason: "Duplicate Student ID in file"})
			continue
		}
		seen[studentID] = true

		existing, err := m.store.GetByStudentID(ctx, studentID)
		switch {
		case err == nil:
			// update roster fields, preserve current sign-out state
			existing.Name = name
			existing.Grade = grade
			if gender != "" {
				existing.Gender = gender
			}
			if course != "" {
				existing.Course = course
			}
			existing.UpdatedAt = importAt
			toSave = append(toSave, existing)
		case errors.Is(err, ErrNotFound):
			toSave = append(toSave, Student{
				ID:        uuid.NewString(),
				StudentID: studentID,
				Name:      name,
				Grade:     grade,
				Gender:    gender,
				Course:    course,
				CreatedAt: importAt,
				UpdatedAt: importAt,
			})
		default:
			return result, err
		}
	}

	if len(toSave) > 0 {
		written, err := m.store.BatchSave(ctx, toSave)
		result.Imported = written
		if err != nil {
			return result, err
		}
	}

	m.logger.Info("bulk import finished",
		zap.Int("imported", result.Imported),
		zap.Int("row_errors", len(result.Errors)))
	return result, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// DetectColumns guesses a mapping from header labels. Attributes it cannot
// place stay -1 so the caller can ask the operator to map them by hand.
func DetectColumns(headers []string) ColumnMapping {
	mapping := ColumnMapping{Name: -1, StudentID: -1, Grade: -1, Gender: -1, Course: -1}
	for idx, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case mapping.StudentID < 0 && (h == "id" || strings.Contains(h, "student id") || strings.Contains(h, "studentid")):
			mapping.StudentID = idx
		case mapping.Name < 0 && (strings.Contains(h, "name") || strings.Contains(h, "student")):
			mapping.Name = idx
		case mapping.Grade < 0 && strings.Contains(h, "grade"):
			mapping.Grade = idx
		case mapping.Gender < 0 && (strings.Contains(h, "gender") || strings.Contains(h, "sex")):
			mapping.Gender = idx
		case mapping.Course < 0 && (strings.Contains(h, "course") || strings.Contains(h, "class") || strings.Contains(h, "period")):
			mapping.Course = idx
		}
	}
	return mapping
}
