package models

import "time"

// Applicant is a principal's registered intent to work a fundable issue.
// Seq is the record's position in the issue's applicant collection; records
// are matched by principal, so the same principal may appear more than once.
type Applicant struct {
	Seq       int       `json:"seq" cbor:"-"`
	Applicant Principal `json:"applicant"`
	Message   string    `json:"message"`
	Approved  bool      `json:"approved"`
	Claimed   bool      `json:"claimed"`
	Timestamp time.Time `json:"timestamp"`
}
