package signout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hallpass/internal/ledger"
	"hallpass/internal/quota"
	"hallpass/internal/roster"
)

// ErrInvalidTransition means sign-out was attempted on an OUT student or
// sign-in on an IN student. No state changes.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrPinMismatch means the override PIN was wrong. The pending context is
// retained so the caller may retry.
var ErrPinMismatch = errors.New("override pin mismatch")

// ErrNoPendingOverride means ConfirmOverride was called with nothing
// pending.
var ErrNoPendingOverride = errors.New("no pending override")

// StudentStore is the slice of the roster store the machine needs.
type StudentStore interface {
	GetByStudentID(ctx context.Context, studentID string) (roster.Student, error)
	Save(ctx context.Context, s roster.Student) (roster.Student, error)
}

// LedgerWriter appends transition records.
type LedgerWriter interface {
	Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
}

// QuotaChecker gates sign-outs to the monitored destination.
type QuotaChecker interface {
	Check(ctx context.Context, studentID, destination string, now time.Time) (quota.Decision, error)
}

// Result is one committed transition, or a suspended sign-out waiting for
// a teacher PIN when OverrideRequired is set (in that case nothing was
// written yet).
type Result struct {
	Student          roster.Student
	Entry            ledger.Entry
	OverrideRequired bool
	Decision         quota.Decision
}

type pendingOverride struct {
	student     roster.Student
	destination string
	reason      string
}

// Machine drives the per-student IN/OUT transitions. One machine per
// process; a mutex serializes transitions. At most one pending override
// context exists at a time, and a new quota-blocked attempt replaces it.
type Machine struct {
	mu       sync.Mutex
	students StudentStore
	ledger   LedgerWriter
	quota    QuotaChecker
	pin      string
	logger   *zap.Logger
	now      func() time.Time
	pending  *pendingOverride
}

// NewMachine creates a machine. pin is the teacher override PIN, compared
// verbatim.
func NewMachine(students StudentStore, lw LedgerWriter, qc QuotaChecker, pin string, logger *zap.Logger) *Machine {
	return &Machine{
		students: students,
		ledger:   lw,
		quota:    qc,
		pin:      pin,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SignOut attempts the IN -> OUT transition. When the quota policy demands
// an override, the attempt is parked as the pending context and the result
// carries OverrideRequired with nothing written.
func (m *Machine) SignOut(ctx context.Context, studentID, destination, reason string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	student, err := m.students.GetByStudentID(ctx, studentID)
	if err != nil {
		return Result{}, err
	}
	if student.IsSignedOut {
		return Result{}, fmt.Errorf("%w: %s is already signed out", ErrInvalidTransition, student.Name)
	}

	decision, err := m.quota.Check(ctx, student.StudentID, destination, m.now())
	if err != nil {
		return Result{}, err
	}
	if decision.Outcome == quota.RequireOverride {
		if m.pending != nil {
			m.logger.Warn("replacing pending override context",
				zap.String("abandoned_student_id", m.pending.student.StudentID),
				zap.String("new_student_id", student.StudentID))
		}
		m.pending = &pendingOverride{student: student, destination: destination, reason: reason}
		return Result{Student: student, OverrideRequired: true, Decision: decision}, nil
	}

	return m.commitSignOut(ctx, student, destination, reason, false)
}

// ConfirmOverride completes the pending sign-out when the PIN matches. A
// wrong PIN keeps the pending context so the teacher can retype it.
func (m *Machine) ConfirmOverride(ctx context.Context, pin string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return Result{}, ErrNoPendingOverride
	}
	if pin != m.pin {
		return Result{}, ErrPinMismatch
	}

	p := m.pending
	m.pending = nil

	// re-read in case the roster changed while the modal was open
	student, err := m.students.GetByStudentID(ctx, p.student.StudentID)
	if err != nil {
		return Result{}, err
	}
	if student.IsSignedOut {
		return Result{}, fmt.Errorf("%w: %s is already signed out", ErrInvalidTransition, student.Name)
	}

	return m.commitSignOut(ctx, student, p.destination, p.reason, true)
}

// CancelOverride abandons the pending sign-out without writing anything.
func (m *Machine) CancelOverride() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}

// Pending returns the student and destination of the suspended sign-out,
// if any.
func (m *Machine) Pending() (roster.Student, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return roster.Student{}, "", false
	}
	return m.pending.student, m.pending.destination, true
}

// SignIn performs the OUT -> IN transition: clears the sign-out fields and
// appends a signin ledger entry.
func (m *Machine) SignIn(ctx context.Context, studentID string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	student, err := m.students.GetByStudentID(ctx, studentID)
	if err != nil {
		return Result{}, err
	}
	if !student.IsSignedOut {
		return Result{}, fmt.Errorf("%w: %s is already signed in", ErrInvalidTransition, student.Name)
	}

	now := m.now()
	student.IsSignedOut = false
	student.SignOutTime = nil
	student.SignOutDestination = nil
	student.SignOutReason = ""
	student.UpdatedAt = now

	saved, err := m.students.Save(ctx, student)
	if err != nil {
		return Result{}, err
	}

	entry, err := m.ledger.Append(ctx, ledger.Entry{
		StudentID:   saved.StudentID,
		StudentName: saved.Name,
		Type:        ledger.TypeSignIn,
		Destination: "",
		Reason:      "Sign In",
		Override:    false,
		OccurredAt:  now,
	})
	if err != nil {
		return Result{}, err
	}

	m.logger.Info("student signed in", zap.String("student_id", saved.StudentID))
	return Result{Student: saved, Entry: entry}, nil
}

func (m *Machine) commitSignOut(ctx context.Context, student roster.Student, destination, reason string, override bool) (Result, error) {
	now := m.now()
	out := now
	dest := destination
	student.IsSignedOut = true
	student.SignOutTime = &out
	student.SignOutDestination = &dest
	student.SignOutReason = reason
	student.UpdatedAt = now

	saved, err := m.students.Save(ctx, student)
	if err != nil {
		return Result{}, err
	}

	entry, err := m.ledger.Append(ctx, ledger.Entry{
		StudentID:   saved.StudentID,
		StudentName: saved.Name,
		Type:        ledger.TypeSignOut,
		Destination: destination,
		Reason:      reason,
		Override:    override,
		OccurredAt:  now,
	})
	if err != nil {
		return Result{}, err
	}

	m.logger.Info("student signed out",
		zap.String("student_id", saved.StudentID),
		zap.String("destination", destination),
		zap.Bool("override", override))
	return Result{Student: saved, Entry: entry}, nil
}
