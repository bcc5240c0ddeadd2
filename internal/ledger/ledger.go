package ledger

import "time"

// Entry types.
const (
	TypeSignOut = "signout"
	TypeSignIn  = "signin"
)

// Entry is one immutable record in the sign-out ledger. Entries are never
// updated or deleted by normal operation; Seq breaks timestamp ties so the
// ordering is total.
type Entry struct {
	Seq         int64     `json:"seq"`
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Type        string    `json:"type"`
	Destination string    `json:"destination"`
	Reason      string    `json:"reason"`
	Override    bool      `json:"override"`
	OccurredAt  time.Time `json:"occurred_at"`
	Day         string    `json:"day"`
}
