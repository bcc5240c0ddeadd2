package roster

import "time"

// Student is one roster record. ID is the internal surrogate key, generated
// once and never changed; StudentID is the human-entered natural key,
// unique among live students.
//
// When IsSignedOut is false, SignOutTime and SignOutDestination are nil and
// SignOutReason is empty.
type Student struct {
	ID                 string     `json:"id"`
	StudentID          string     `json:"student_id"`
	Name               string     `json:"name"`
	Grade              string     `json:"grade"`
	Gender             string     `json:"gender,omitempty"`
	Course             string     `json:"course,omitempty"`
	IsSignedOut        bool       `json:"is_signed_out"`
	SignOutTime        *time.Time `json:"sign_out_time,omitempty"`
	SignOutDestination *string    `json:"sign_out_destination,omitempty"`
	SignOutReason      string     `json:"sign_out_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
