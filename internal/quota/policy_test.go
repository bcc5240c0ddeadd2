package quota

import (
	"context"
	"testing"
	"time"

	"hallpass/internal/ledger"
)

type fakeLedger struct {
	entries []ledger.Entry
	calls   int
}

func (f *fakeLedger) ForStudentInRange(_ context.Context, studentID string, start, end time.Time) ([]ledger.Entry, error) {
	f.calls++
	var out []ledger.Entry
	for _, e := range f.entries {
		if e.StudentID != studentID {
			continue
		}
		if e.OccurredAt.Before(start) || e.OccurredAt.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func bathroomSignout(studentID string, at time.Time) ledger.Entry {
	return ledger.Entry{StudentID: studentID, Type: ledger.TypeSignOut, Destination: "Bathroom", OccurredAt: at}
}

func TestCheckNonMonitoredAlwaysAllows(t *testing.T) {
	now := time.Date(2025, time.September, 10, 10, 0, 0, 0, time.UTC)
	fl := &fakeLedger{}
	for i := 0; i < 5; i++ {
		fl.entries = append(fl.entries, bathroomSignout("S100", now.Add(-time.Duration(i)*time.Hour)))
	}

	p := NewPolicy(fl, "Bathroom", 2)
	d, err := p.Check(context.Background(), "S100", "Office", now)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if d.Outcome != Allow {
		t.Fatalf("expected allow for non-monitored destination, got %s", d.Outcome)
	}
	if fl.calls != 0 {
		t.Fatalf("non-monitored destination should not touch the ledger")
	}
}

func TestCheckThreshold(t *testing.T) {
	now := time.Date(2025, time.September, 10, 10, 0, 0, 0, time.UTC)
	fl := &fakeLedger{entries: []ledger.Entry{
		bathroomSignout("S100", now.Add(-48*time.Hour)),
		bathroomSignout("S100", now.Add(-24*time.Hour)),
	}}

	p := NewPolicy(fl, "Bathroom", 2)
	d, err := p.Check(context.Background(), "S100", "Bathroom", now)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if d.Outcome != RequireOverride {
		t.Fatalf("expected override required at 2 prior passes, got %s", d.Outcome)
	}
	if d.Count != 2 {
		t.Fatalf("expected count 2, got %d", d.Count)
	}

	// one prior pass stays under the threshold
	fl.entries = fl.entries[:1]
	d, err = p.Check(context.Background(), "S100", "Bathroom", now)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if d.Outcome != Allow {
		t.Fatalf("expected allow under threshold, got %s", d.Outcome)
	}
}

func TestCheckIgnoresOtherTypesAndDestinations(t *testing.T) {
	now := time.Date(2025, time.September, 10, 10, 0, 0, 0, time.UTC)
	fl := &fakeLedger{entries: []ledger.Entry{
		{StudentID: "S100", Type: ledger.TypeSignIn, Destination: "", OccurredAt: now.Add(-time.Hour)},
		{StudentID: "S100", Type: ledger.TypeSignOut, Destination: "Office", OccurredAt: now.Add(-2 * time.Hour)},
		bathroomSignout("S100", now.Add(-3*time.Hour)),
		bathroomSignout("S200", now.Add(-time.Hour)),
	}}

	p := NewPolicy(fl, "Bathroom", 2)
	d, err := p.Check(context.Background(), "S100", "Bathroom", now)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if d.Count != 1 {
		t.Fatalf("expected only the bathroom signout to count, got %d", d.Count)
	}
	if d.Outcome != Allow {
		t.Fatalf("expected allow, got %s", d.Outcome)
	}
}

func TestCheckWindowIsCurrentPeriod(t *testing.T) {
	now := time.Date(2025, time.November, 5, 10, 0, 0, 0, time.UTC) // Q2
	fl := &fakeLedger{entries: []ledger.Entry{
		// Q1 passes, outside the current window
		bathroomSignout("S100", time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC)),
		bathroomSignout("S100", time.Date(2025, time.October, 10, 9, 0, 0, 0, time.UTC)),
		// one Q2 pass
		bathroomSignout("S100", time.Date(2025, time.November, 1, 9, 0, 0, 0, time.UTC)),
	}}

	p := NewPolicy(fl, "Bathroom", 2)
	d, err := p.Check(context.Background(), "S100", "Bathroom", now)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if d.Count != 1 {
		t.Fatalf("expected prior-period passes excluded, got count %d", d.Count)
	}
	if d.Period.Label != "Q2" {
		t.Fatalf("expected Q2 window, got %s", d.Period.Label)
	}
}

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy(&fakeLedger{}, "", 0)
	if p.Monitored() != "Bathroom" {
		t.Fatalf("expected default monitored destination Bathroom, got %s", p.Monitored())
	}
	if p.threshold != 2 {
		t.Fatalf("expected default threshold 2, got %d", p.threshold)
	}
}
