package models

import "time"

// LogType categorizes an audit log entry.
type LogType string

const (
	LogTypeStatus  LogType = "status"
	LogTypeComment LogType = "comment"
	LogTypeFund    LogType = "fund"
	LogTypeApply   LogType = "apply"
	LogTypeEdit    LogType = "edit"
)

// Log is one append-only audit record on an issue. Status is the issue's
// status snapshot; Hash chains the record to its predecessor.
type Log struct {
	LogType   LogType     `json:"log_type"`
	Message   string      `json:"message"`
	Status    IssueStatus `json:"status"`
	Sender    Principal   `json:"sender"`
	Timestamp time.Time   `json:"timestamp"`
	Hash      string      `json:"hash"`
}
