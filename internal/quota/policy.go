package quota

import (
	"context"
	"time"

	"hallpass/internal/ledger"
	"hallpass/internal/period"
)

// Outcome of a quota check.
type Outcome string

const (
	Allow           Outcome = "allow"
	RequireOverride Outcome = "require_override"
)

// Decision carries the outcome plus the evidence behind it, for caller
// messaging.
type Decision struct {
	Outcome Outcome
	Count   int
	Period  period.Period
}

// LedgerReader is the slice of the ledger store the policy needs.
type LedgerReader interface {
	ForStudentInRange(ctx context.Context, studentID string, start, end time.Time) ([]ledger.Entry, error)
}

// Policy counts a student's prior passes to the monitored destination
// within the current grading period. The count is computed fresh on every
// attempt so it is always consistent with the ledger at read time.
type Policy struct {
	ledger    LedgerReader
	monitored string
	threshold int
}

// NewPolicy creates a policy. Defaults: destination "Bathroom",
// threshold 2.
func NewPolicy(reader LedgerReader, monitored string, threshold int) *Policy {
	if monitored == "" {
		monitored = "Bathroom"
	}
	if threshold <= 0 {
		threshold = 2
	}
	return &Policy{ledger: reader, monitored: monitored, threshold: threshold}
}

// Monitored returns the single destination subject to quota enforcement.
func (p *Policy) Monitored() string { return p.monitored }

// Check decides Allow or RequireOverride for one sign-out attempt. Every
// destination other than the monitored one bypasses quota entirely.
func (p *Policy) Check(ctx context.Context, studentID, destination string, now time.Time) (Decision, error) {
	if destination != p.monitored {
		return Decision{Outcome: Allow}, nil
	}

	pd := period.Current(now)
	entries, err := p.ledger.ForStudentInRange(ctx, studentID, pd.Start, pd.End)
	if err != nil {
		return Decision{}, err
	}

	count := 0
	for _, e := range entries {
		if e.Type == ledger.TypeSignOut && e.Destination == p.monitored {
			count++
		}
	}

	d := Decision{Outcome: Allow, Count: count, Period: pd}
	if count >= p.threshold {
		d.Outcome = RequireOverride
	}
	return d, nil
}
