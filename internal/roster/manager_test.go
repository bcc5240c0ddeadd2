package roster

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeStore struct {
	byID     map[string]Student
	batchErr error
}

func newFakeStore(students ...Student) *fakeStore {
	f := &fakeStore{byID: make(map[string]Student)}
	for _, s := range students {
		f.byID[s.ID] = s
	}
	return f
}

func (f *fakeStore) GetAll(_ context.Context) ([]Student, error) {
	var out []Student
	for _, s := range f.byID {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (Student, error) {
	if s, ok := f.byID[id]; ok {
		return s, nil
	}
	return Student{}, ErrNotFound
}

func (f *fakeStore) GetByStudentID(_ context.Context, studentID string) (Student, error) {
	for _, s := range f.byID {
		if s.StudentID == studentID {
			return s, nil
		}
	}
	return Student{}, ErrNotFound
}

func (f *fakeStore) Save(_ context.Context, s Student) (Student, error) {
	f.byID[s.ID] = s
	return s, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeStore) BatchSave(_ context.Context, students []Student) (int, error) {
	if f.batchErr != nil {
		return 0, f.batchErr
	}
	for _, s := range students {
		f.byID[s.ID] = s
	}
	return len(students), nil
}

func newTestManager(store Store) *Manager {
	return NewManager(store, zap.NewNop())
}

func TestCreateValidates(t *testing.T) {
	m := newTestManager(newFakeStore())

	_, err := m.CreateOrUpdate(context.Background(), Fields{Name: "  ", StudentID: "S100", Grade: ""})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Missing) != 2 || verr.Missing[0] != "Name" || verr.Missing[1] != "Grade" {
		t.Fatalf("expected Name and Grade missing, got %v", verr.Missing)
	}
}

func TestCreateAndDuplicate(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	s, err := m.CreateOrUpdate(context.Background(), Fields{Name: " Alice ", StudentID: " S100 ", Grade: "9"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if s.ID == "" {
		t.Fatalf("expected generated internal id")
	}
	if s.Name != "Alice" || s.StudentID != "S100" {
		t.Fatalf("expected trimmed fields, got %+v", s)
	}
	if s.IsSignedOut || s.SignOutTime != nil || s.SignOutDestination != nil || s.SignOutReason != "" {
		t.Fatalf("new student must start IN with empty sign-out fields: %+v", s)
	}

	if _, err := m.CreateOrUpdate(context.Background(), Fields{Name: "Other", StudentID: "S100", Grade: "10"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}

func TestUpdateKeepsOwnKeyAndSignoutState(t *testing.T) {
	now := time.Now().UTC()
	dest := "Bathroom"
	existing := Student{
		ID: "internal-1", StudentID: "S100", Name: "Alice", Grade: "9",
		IsSignedOut: true, SignOutTime: &now, SignOutDestination: &dest,
		CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
	}
	store := newFakeStore(existing)
	m := newTestManager(store)

	updated, err := m.CreateOrUpdate(context.Background(), Fields{
		ID: "internal-1", Name: "Alice B", StudentID: "S100", Grade: "10", Course: "Biology",
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "Alice B" || updated.Grade != "10" || updated.Course != "Biology" {
		t.Fatalf("roster fields not updated: %+v", updated)
	}
	if !updated.IsSignedOut || updated.SignOutTime == nil {
		t.Fatalf("manual edit must not clear sign-out state: %+v", updated)
	}
	if !updated.CreatedAt.Equal(existing.CreatedAt) {
		t.Fatalf("CreatedAt must be immutable")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newFakeStore(Student{ID: "internal-1", StudentID: "S100", Name: "Alice", Grade: "9"})
	m := newTestManager(store)

	if err := m.Delete(context.Background(), "internal-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := m.Delete(context.Background(), "internal-1"); err != nil {
		t.Fatalf("repeat delete should not error: %v", err)
	}
}

func standardMapping() ColumnMapping {
	return ColumnMapping{Name: 0, StudentID: 1, Grade: 2, Gender: 3, Course: 4}
}

func TestBulkImportBestEffort(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	rows := [][]string{
		{"Name", "ID", "Grade", "Gender", "Course"},
		{"Alice", "S100", "9", "F", "Math"},
		{"Bob", "", "9", "M", "Math"},
		{"Cara", "S102", "10", "", ""},
	}

	res, err := m.BulkImport(context.Background(), rows, standardMapping(), 1)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if res.Imported != 2 {
		t.Fatalf("expected 2 imported, got %d", res.Imported)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 row error, got %v", res.Errors)
	}
	if res.Errors[0].Row != 3 || res.Errors[0].Reason != "Student ID is required" {
		t.Fatalf("unexpected row error: %+v", res.Errors[0])
	}
	if _, err := store.GetByStudentID(context.Background(), "S100"); err != nil {
		t.Fatalf("valid row should persist: %v", err)
	}
	if _, err := store.GetByStudentID(context.Background(), "S102"); err != nil {
		t.Fatalf("valid row should persist: %v", err)
	}
}

func TestBulkImportSkipsBlankRowsAndDuplicates(t *testing.T) {
	m := newTestManager(newFakeStore())

	rows := [][]string{
		{"Alice", "S100", "9", "", ""},
		{"", "  ", "", "", ""},
		{"Alice Again", "S100", "9", "", ""},
	}

	res, err := m.BulkImport(context.Background(), rows, standardMapping(), 0)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if res.Imported != 1 {
		t.Fatalf("expected 1 imported, got %d", res.Imported)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 3 || res.Errors[0].Reason != "Duplicate Student ID in file" {
		t.Fatalf("expected duplicate-in-file error for row 3, got %v", res.Errors)
	}
}

func TestBulkImportPreservesSignoutState(t *testing.T) {
	outAt := time.Now().UTC().Add(-10 * time.Minute)
	dest := "Bathroom"
	store := newFakeStore(Student{
		ID: "internal-1", StudentID: "S100", Name: "Alice", Grade: "9", Gender: "F",
		IsSignedOut: true, SignOutTime: &outAt, SignOutDestination: &dest,
	})
	m := newTestManager(store)

	rows := [][]string{{"Alice Cooper", "S100", "10", "", "Chemistry"}}
	res, err := m.BulkImport(context.Background(), rows, standardMapping(), 0)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if res.Imported != 1 {
		t.Fatalf("expected 1 imported, got %d", res.Imported)
	}

	s, err := store.GetByStudentID(context.Background(), "S100")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if s.Name != "Alice Cooper" || s.Grade != "10" || s.Course != "Chemistry" {
		t.Fatalf("roster fields not updated: %+v", s)
	}
	if s.Gender != "F" {
		t.Fatalf("empty import cell must not clear gender: %+v", s)
	}
	if !s.IsSignedOut || s.SignOutTime == nil || !s.SignOutTime.Equal(outAt) {
		t.Fatalf("re-import must preserve sign-out state: %+v", s)
	}
	if s.ID != "internal-1" {
		t.Fatalf("re-import must keep the surrogate id")
	}
}

func TestBulkImportRejectsUnmappedRequiredColumns(t *testing.T) {
	m := newTestManager(newFakeStore())

	mapping := ColumnMapping{Name: 0, StudentID: -1, Grade: -1, Gender: -1, Course: -1}
	_, err := m.BulkImport(context.Background(), [][]string{{"Alice"}}, mapping, 0)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Missing) != 2 {
		t.Fatalf("expected Student ID and Grade reported, got %v", verr.Missing)
	}
}

func TestDetectColumns(t *testing.T) {
	headers := []string{"Student ID", "Full Name", "Grade Level", "Sex", "Class Period"}
	mapping := DetectColumns(headers)
	if mapping.StudentID != 0 {
		t.Fatalf("expected student id column 0, got %d", mapping.StudentID)
	}
	if mapping.Name != 1 {
		t.Fatalf("expected name column 1, got %d", mapping.Name)
	}
	if mapping.Grade != 2 {
		t.Fatalf("expected grade column 2, got %d", mapping.Grade)
	}
	if mapping.Gender != 3 {
		t.Fatalf("expected gender column 3, got %d", mapping.Gender)
	}
	if mapping.Course != 4 {
		t.Fatalf("expected course column 4, got %d", mapping.Course)
	}

	mapping = DetectColumns([]string{"a", "b"})
	if mapping.Name != -1 || mapping.StudentID != -1 || mapping.Grade != -1 {
		t.Fatalf("unrecognized headers should stay unmapped: %+v", mapping)
	}
}
